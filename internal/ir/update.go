package ir

import "slices"

// UpdateInfo is the change record of one partition transition.
//
// Both the forward and the inverse effect are fully described by the record:
// every spike of a deleted cluster appears in SpikeIDs, and every spike of an
// added cluster appears in SpikeIDs. OldSpikesPerCluster therefore restores
// the pre-transition slice of the index exactly, and NewSpikesPerCluster the
// post-transition one. The partition engine stores these records in its undo
// history and never recomputes them.
//
// INVARIANTS:
//   - Added, Deleted, SpikeIDs and every spike list are sorted ascending
//   - Descendants sorted by (Old, New)
//   - keys(OldSpikesPerCluster) == Deleted, keys(NewSpikesPerCluster) == Added
type UpdateInfo struct {
	Description         Description         `json:"description"`
	History             HistoryTag          `json:"history"`
	Added               []ClusterID         `json:"added"`
	Deleted             []ClusterID         `json:"deleted"`
	Descendants         []Descendant        `json:"descendants"`
	SpikeIDs            []int               `json:"spike_ids"`
	OldSpikesPerCluster map[ClusterID][]int `json:"old_spikes_per_cluster"`
	NewSpikesPerCluster map[ClusterID][]int `json:"new_spikes_per_cluster"`
}

// Clone returns a deep copy so callers may keep or modify it freely.
func (u *UpdateInfo) Clone() *UpdateInfo {
	if u == nil {
		return nil
	}
	return &UpdateInfo{
		Description:         u.Description,
		History:             u.History,
		Added:               slices.Clone(u.Added),
		Deleted:             slices.Clone(u.Deleted),
		Descendants:         slices.Clone(u.Descendants),
		SpikeIDs:            slices.Clone(u.SpikeIDs),
		OldSpikesPerCluster: cloneSpikeMap(u.OldSpikesPerCluster),
		NewSpikesPerCluster: cloneSpikeMap(u.NewSpikesPerCluster),
	}
}

// Undone returns the record describing the inverse transition.
// Added and Deleted are swapped, descendants are reversed to (new, old),
// and the old/new spike slices trade places.
func (u *UpdateInfo) Undone() *UpdateInfo {
	inv := u.Clone()
	inv.History = HistoryUndo
	inv.Added, inv.Deleted = inv.Deleted, inv.Added
	inv.OldSpikesPerCluster, inv.NewSpikesPerCluster = inv.NewSpikesPerCluster, inv.OldSpikesPerCluster
	for i, d := range inv.Descendants {
		inv.Descendants[i] = Descendant{Old: d.New, New: d.Old}
	}
	SortDescendants(inv.Descendants)
	return inv
}

// Redone returns a copy of the forward record tagged as a redo.
func (u *UpdateInfo) Redone() *UpdateInfo {
	r := u.Clone()
	r.History = HistoryRedo
	return r
}

// DescendantsOf returns the new ids that old contributed spikes to.
func (u *UpdateInfo) DescendantsOf(old ClusterID) []ClusterID {
	var out []ClusterID
	for _, d := range u.Descendants {
		if d.Old == old {
			out = append(out, d.New)
		}
	}
	return out
}

// ToIR converts the record to an IRObject for journaling and golden traces.
// Spike maps are keyed by the decimal cluster id.
func (u *UpdateInfo) ToIR() IRObject {
	desc := make(IRArray, len(u.Descendants))
	for i, d := range u.Descendants {
		desc[i] = IRArray{IRInt(d.Old), IRInt(d.New)}
	}
	return IRObject{
		"description":            IRString(u.Description),
		"history":                IRString(u.History),
		"added":                  IDsToIR(u.Added),
		"deleted":                IDsToIR(u.Deleted),
		"descendants":            desc,
		"spike_ids":              IntsToIR(u.SpikeIDs),
		"old_spikes_per_cluster": spikeMapToIR(u.OldSpikesPerCluster),
		"new_spikes_per_cluster": spikeMapToIR(u.NewSpikesPerCluster),
	}
}

// IDsToIR converts cluster ids to an IRArray of IRInt.
func IDsToIR(ids []ClusterID) IRArray {
	arr := make(IRArray, len(ids))
	for i, id := range ids {
		arr[i] = IRInt(id)
	}
	return arr
}

// IntsToIR converts ints to an IRArray of IRInt.
func IntsToIR(xs []int) IRArray {
	arr := make(IRArray, len(xs))
	for i, x := range xs {
		arr[i] = IRInt(x)
	}
	return arr
}

func spikeMapToIR(m map[ClusterID][]int) IRObject {
	obj := make(IRObject, len(m))
	for id, spikes := range m {
		obj[id.String()] = IntsToIR(spikes)
	}
	return obj
}

func cloneSpikeMap(m map[ClusterID][]int) map[ClusterID][]int {
	if m == nil {
		return nil
	}
	out := make(map[ClusterID][]int, len(m))
	for id, spikes := range m {
		out[id] = slices.Clone(spikes)
	}
	return out
}
