package ir

import (
	"slices"
	"strconv"
)

// ClusterID identifies a cluster. Always non-negative.
//
// INVARIANT: an id is never reused within a session. Once allocated it may
// disappear (merge, split) and reappear only through undo/redo of the
// transition that deleted it.
type ClusterID int64

// String returns the decimal form used as a JSON object key.
func (id ClusterID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseClusterID parses the decimal form produced by ClusterID.String.
func ParseClusterID(s string) (ClusterID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ClusterID(n), nil
}

// Description names the kind of partition transition.
type Description string

const (
	// DescMerge is a merge of two or more clusters into one fresh cluster.
	DescMerge Description = "merge"
	// DescAssign covers splits and any bulk reassignment.
	DescAssign Description = "assign"
)

// HistoryTag marks whether a record was produced by a fresh operation,
// an undo, or a redo.
type HistoryTag string

const (
	HistoryNone HistoryTag = "none"
	HistoryUndo HistoryTag = "undo"
	HistoryRedo HistoryTag = "redo"
)

// Descendant records that spikes of Old were moved into New.
type Descendant struct {
	Old ClusterID `json:"old"`
	New ClusterID `json:"new"`
}

// FieldSpec declares a metadata field and its default value.
type FieldSpec struct {
	Name    string  `json:"name"`
	Default IRValue `json:"default"`
}

// SortedUniqueIDs returns ids deduplicated and sorted ascending.
// The input slice is not modified.
func SortedUniqueIDs(ids []ClusterID) []ClusterID {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// SortedUniqueSpikes returns spike indices deduplicated and sorted ascending.
func SortedUniqueSpikes(spikes []int) []int {
	out := slices.Clone(spikes)
	slices.Sort(out)
	return slices.Compact(out)
}

// compareDescendants orders pairs by old id, then new id.
func compareDescendants(a, b Descendant) int {
	if a.Old != b.Old {
		if a.Old < b.Old {
			return -1
		}
		return 1
	}
	if a.New < b.New {
		return -1
	}
	if a.New > b.New {
		return 1
	}
	return 0
}

// SortDescendants sorts pairs in place by (old, new).
func SortDescendants(d []Descendant) {
	slices.SortFunc(d, compareDescendants)
}
