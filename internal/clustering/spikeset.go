package clustering

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/roach88/spikeclust/internal/ir"
)

// toInts returns the members of bm as ascending spike indices.
func toInts(bm *roaring.Bitmap) []int {
	out := make([]int, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}

// fromInts builds a bitmap from spike indices already known to be in range.
func fromInts(spikes []int) *roaring.Bitmap {
	bm := roaring.New()
	for _, s := range spikes {
		bm.Add(uint32(s))
	}
	return bm
}

// selection validates spike indices against n and returns them as a bitmap.
// Duplicates collapse.
func selection(op string, spikes []int, n int) (*roaring.Bitmap, error) {
	if len(spikes) == 0 {
		return nil, ir.NewInvalidOperationError("%s: no spikes given", op)
	}
	sel := roaring.New()
	for _, s := range spikes {
		if s < 0 || s >= n {
			return nil, ir.NewInvalidOperationError("%s: spike %d out of range [0, %d)", op, s, n)
		}
		sel.Add(uint32(s))
	}
	return sel, nil
}

// clustersOf returns the ascending ids currently labelling spikes in sel.
func (c *Clustering) clustersOf(sel *roaring.Bitmap) []ir.ClusterID {
	var ids []ir.ClusterID
	it := sel.Iterator()
	for it.HasNext() {
		ids = append(ids, c.spikeClusters[it.Next()])
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
