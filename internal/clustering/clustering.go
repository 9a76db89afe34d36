package clustering

import (
	"log/slog"
	"maps"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/roach88/spikeclust/internal/history"
	"github.com/roach88/spikeclust/internal/ir"
	"github.com/roach88/spikeclust/internal/notify"
)

// Clustering is the partition engine.
type Clustering struct {
	spikeClusters []ir.ClusterID
	index         map[ir.ClusterID]*roaring.Bitmap
	next          ir.ClusterID // Next id to allocate; never decremented

	history *history.History[*ir.UpdateInfo] // Forward records only
	changes notify.Emitter[ir.UpdateInfo]
	logger  *slog.Logger
}

// Option configures a Clustering.
type Option func(*Clustering)

// WithLogger sets the logger used for transition diagnostics.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Clustering) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a partition engine from the initial cluster id of every spike.
//
// Ids need not be contiguous. The next-id counter starts at max(ids)+1, or 0
// for an empty assignment. Negative ids are rejected with InvalidOperation.
// The input slice is copied.
func New(spikeClusters []ir.ClusterID, opts ...Option) (*Clustering, error) {
	if uint64(len(spikeClusters)) > math.MaxUint32 {
		return nil, ir.NewInvalidOperationError("too many spikes: %d", len(spikeClusters))
	}

	c := &Clustering{
		spikeClusters: slices.Clone(spikeClusters),
		index:         make(map[ir.ClusterID]*roaring.Bitmap),
		history:       history.New[*ir.UpdateInfo](),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for i, id := range c.spikeClusters {
		if id < 0 {
			return nil, ir.NewInvalidOperationError("spike %d has negative cluster id %d", i, id)
		}
		bm, ok := c.index[id]
		if !ok {
			bm = roaring.New()
			c.index[id] = bm
		}
		bm.Add(uint32(i))
		if id >= c.next {
			c.next = id + 1
		}
	}

	return c, nil
}

// NSpikes returns the number of spikes. Fixed for the life of the engine.
func (c *Clustering) NSpikes() int { return len(c.spikeClusters) }

// NClusters returns the number of current clusters.
func (c *Clustering) NClusters() int { return len(c.index) }

// ClusterIDs returns the current cluster ids in ascending order.
func (c *Clustering) ClusterIDs() []ir.ClusterID {
	return slices.Sorted(maps.Keys(c.index))
}

// Exists reports whether id currently labels at least one spike.
func (c *Clustering) Exists(id ir.ClusterID) bool {
	_, ok := c.index[id]
	return ok
}

// SpikeClusters returns a copy of the assignment.
func (c *Clustering) SpikeClusters() []ir.ClusterID {
	return slices.Clone(c.spikeClusters)
}

// ClusterOf returns the current cluster of one spike.
func (c *Clustering) ClusterOf(spike int) (ir.ClusterID, error) {
	if spike < 0 || spike >= len(c.spikeClusters) {
		return 0, ir.NewInvalidOperationError("spike %d out of range [0, %d)", spike, len(c.spikeClusters))
	}
	return c.spikeClusters[spike], nil
}

// SpikeCounts returns the number of spikes in every current cluster.
func (c *Clustering) SpikeCounts() map[ir.ClusterID]int {
	out := make(map[ir.ClusterID]int, len(c.index))
	for id, bm := range c.index {
		out[id] = int(bm.GetCardinality())
	}
	return out
}

// SpikesPerCluster returns the ascending spike indices of every current
// cluster.
func (c *Clustering) SpikesPerCluster() map[ir.ClusterID][]int {
	out := make(map[ir.ClusterID][]int, len(c.index))
	for id, bm := range c.index {
		out[id] = toInts(bm)
	}
	return out
}

// SpikesInCluster returns the ascending spike indices of one cluster, or nil
// if the id does not currently exist.
func (c *Clustering) SpikesInCluster(id ir.ClusterID) []int {
	bm, ok := c.index[id]
	if !ok {
		return nil
	}
	return toInts(bm)
}

// SpikesInClusters returns the ascending union of the spikes of ids.
// Ids that do not currently exist contribute nothing.
func (c *Clustering) SpikesInClusters(ids []ir.ClusterID) []int {
	bms := make([]*roaring.Bitmap, 0, len(ids))
	for _, id := range ids {
		if bm, ok := c.index[id]; ok {
			bms = append(bms, bm)
		}
	}
	return toInts(roaring.FastOr(bms...))
}

// NewClusterID returns the id the next allocation will use.
// It does not advance the counter.
func (c *Clustering) NewClusterID() ir.ClusterID { return c.next }

// CanUndo reports whether a transition can be undone.
func (c *Clustering) CanUndo() bool { return c.history.CanUndo() }

// CanRedo reports whether an undone transition can be redone.
func (c *Clustering) CanRedo() bool { return c.history.CanRedo() }

// HistoryLen returns the number of applied transitions.
func (c *Clustering) HistoryLen() int { return c.history.Position() }

// Connect registers fn to receive every change record in the order produced.
// Callbacks may query the engine but must not mutate it.
func (c *Clustering) Connect(fn func(ir.UpdateInfo)) notify.Subscription {
	return c.changes.Connect(fn)
}

// Disconnect removes a subscriber registered with Connect.
func (c *Clustering) Disconnect(s notify.Subscription) bool {
	return c.changes.Disconnect(s)
}

// allocate returns the next fresh id and advances the counter.
func (c *Clustering) allocate() ir.ClusterID {
	id := c.next
	c.next++
	return id
}

// guard rejects mutations issued from a change callback.
func (c *Clustering) guard(op string) error {
	if c.changes.Dispatching() {
		return ir.NewReentrantMutationError(op)
	}
	return nil
}
