package clustering

import (
	"maps"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/roach88/spikeclust/internal/ir"
)

// Merge moves every spike of ids into one freshly allocated cluster.
//
// Duplicate ids are ignored. Every id must currently exist and at least two
// distinct ids are required; otherwise Merge fails with InvalidOperation.
// A non-existent id is rejected rather than ignored, so [0, 1, 99] fails
// even though 0 and 1 exist.
func (c *Clustering) Merge(ids []ir.ClusterID) (*ir.UpdateInfo, error) {
	if err := c.guard("merge"); err != nil {
		return nil, err
	}

	ids = ir.SortedUniqueIDs(ids)
	bms := make([]*roaring.Bitmap, 0, len(ids))
	for _, id := range ids {
		bm, ok := c.index[id]
		if !ok {
			return nil, ir.NewInvalidOperationError("merge: cluster %d does not exist", id)
		}
		bms = append(bms, bm)
	}
	if len(ids) < 2 {
		return nil, ir.NewInvalidOperationError("merge: need at least two distinct clusters, got %d", len(ids))
	}

	parts := map[ir.ClusterID]*roaring.Bitmap{c.allocate(): roaring.FastOr(bms...)}
	return c.commit(c.record(ir.DescMerge, ids, parts)), nil
}

// Split moves the given spikes out of their current clusters.
//
// Touched clusters are processed in ascending id order. Each one yields a
// fresh id for its selected spikes, then a fresh id for its remaining spikes
// if any remain. Every touched cluster is deleted. Duplicate spike indices
// are ignored; an empty or out-of-range selection fails with
// InvalidOperation.
func (c *Clustering) Split(spikes []int) (*ir.UpdateInfo, error) {
	if err := c.guard("split"); err != nil {
		return nil, err
	}

	sel, err := selection("split", spikes, len(c.spikeClusters))
	if err != nil {
		return nil, err
	}

	touched := c.clustersOf(sel)
	parts := make(map[ir.ClusterID]*roaring.Bitmap, 2*len(touched))
	for _, old := range touched {
		bm := c.index[old]
		parts[c.allocate()] = roaring.And(bm, sel)
		if rest := roaring.AndNot(bm, sel); !rest.IsEmpty() {
			parts[c.allocate()] = rest
		}
	}
	return c.commit(c.record(ir.DescAssign, touched, parts)), nil
}

// Assign relabels spikes in bulk.
//
// labels is parallel to spikes, or has a single element applied to every
// spike. Labels only group spikes: each distinct label, in ascending order,
// receives a fresh id. The remaining spikes of every touched cluster, in
// ascending old id order, then receive a fresh id per cluster. A spike
// listed twice with different labels fails with InvalidOperation.
func (c *Clustering) Assign(spikes []int, labels []ir.ClusterID) (*ir.UpdateInfo, error) {
	if err := c.guard("assign"); err != nil {
		return nil, err
	}

	sel, err := selection("assign", spikes, len(c.spikeClusters))
	if err != nil {
		return nil, err
	}
	if len(labels) != 1 && len(labels) != len(spikes) {
		return nil, ir.NewInvalidOperationError("assign: %d labels for %d spikes", len(labels), len(spikes))
	}

	groups := make(map[ir.ClusterID]*roaring.Bitmap)
	labelOf := make(map[int]ir.ClusterID, len(spikes))
	for i, s := range spikes {
		label := labels[0]
		if len(labels) > 1 {
			label = labels[i]
		}
		if prev, ok := labelOf[s]; ok && prev != label {
			return nil, ir.NewInvalidOperationError("assign: spike %d given labels %d and %d", s, prev, label)
		}
		labelOf[s] = label
		bm, ok := groups[label]
		if !ok {
			bm = roaring.New()
			groups[label] = bm
		}
		bm.Add(uint32(s))
	}

	touched := c.clustersOf(sel)
	parts := make(map[ir.ClusterID]*roaring.Bitmap, len(groups)+len(touched))
	for _, label := range slices.Sorted(maps.Keys(groups)) {
		parts[c.allocate()] = groups[label]
	}
	for _, old := range touched {
		if rest := roaring.AndNot(c.index[old], sel); !rest.IsEmpty() {
			parts[c.allocate()] = rest
		}
	}
	return c.commit(c.record(ir.DescAssign, touched, parts)), nil
}

// Undo reverts the most recent applied transition.
//
// The returned record is the inverse of the original: added and deleted
// swapped, descendants reversed. The id counter is untouched.
func (c *Clustering) Undo() (*ir.UpdateInfo, error) {
	if err := c.guard("undo"); err != nil {
		return nil, err
	}

	entry, err := c.history.Undo()
	if err != nil {
		return nil, err
	}

	up := entry.Undone()
	c.apply(up)
	c.emit(up)
	return up.Clone(), nil
}

// Redo re-applies the most recently undone transition exactly as recorded.
func (c *Clustering) Redo() (*ir.UpdateInfo, error) {
	if err := c.guard("redo"); err != nil {
		return nil, err
	}

	entry, err := c.history.Redo()
	if err != nil {
		return nil, err
	}

	up := entry.Redone()
	c.apply(up)
	c.emit(up)
	return up.Clone(), nil
}

// record builds the change record of replacing the deleted clusters with
// parts. It must run before the transition is applied.
func (c *Clustering) record(desc ir.Description, deleted []ir.ClusterID, parts map[ir.ClusterID]*roaring.Bitmap) *ir.UpdateInfo {
	up := &ir.UpdateInfo{
		Description:         desc,
		History:             ir.HistoryNone,
		Added:               slices.Sorted(maps.Keys(parts)),
		Deleted:             slices.Clone(deleted),
		OldSpikesPerCluster: make(map[ir.ClusterID][]int, len(deleted)),
		NewSpikesPerCluster: make(map[ir.ClusterID][]int, len(parts)),
	}

	touched := roaring.New()
	for _, old := range deleted {
		bm := c.index[old]
		up.OldSpikesPerCluster[old] = toInts(bm)
		touched.Or(bm)
	}
	for _, id := range up.Added {
		bm := parts[id]
		up.NewSpikesPerCluster[id] = toInts(bm)
		for _, old := range deleted {
			if bm.Intersects(c.index[old]) {
				up.Descendants = append(up.Descendants, ir.Descendant{Old: old, New: id})
			}
		}
	}
	ir.SortDescendants(up.Descendants)
	up.SpikeIDs = toInts(touched)
	return up
}

// apply replaces the deleted clusters of up with its added clusters.
func (c *Clustering) apply(up *ir.UpdateInfo) {
	for _, id := range up.Deleted {
		delete(c.index, id)
	}
	for _, id := range up.Added {
		spikes := up.NewSpikesPerCluster[id]
		for _, s := range spikes {
			c.spikeClusters[s] = id
		}
		c.index[id] = fromInts(spikes)
	}
}

// commit applies a fresh transition, records it, and notifies subscribers.
func (c *Clustering) commit(up *ir.UpdateInfo) *ir.UpdateInfo {
	c.apply(up)
	c.history.Do(up)
	c.emit(up)
	return up.Clone()
}

func (c *Clustering) emit(up *ir.UpdateInfo) {
	c.logger.Debug("partition changed",
		"description", up.Description,
		"history", up.History,
		"added", up.Added,
		"deleted", up.Deleted,
		"spikes", len(up.SpikeIDs),
	)
	c.changes.Emit(*up.Clone())
}
