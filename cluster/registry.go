package cluster

import (
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Registry is the authoritative map of shard ids to shard topologies on this
// routing node.
type Registry struct {
	logger *zap.Logger
	clk    clock.Clock

	mu     sync.RWMutex
	shards map[ShardID]*Shard
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: zap.NewNop(),
		clk:    clock.New(),
		shards: make(map[ShardID]*Shard),
	}
}

// NewRegistryFromConfig builds a registry seeded with the configured shards.
func NewRegistryFromConfig(c Config) (*Registry, error) {
	r := NewRegistry()
	if err := r.ApplyConfig(c); err != nil {
		return nil, err
	}
	return r, nil
}

// ApplyConfig seeds the registry with the configured shards. Call after
// WithLogger and WithClock so the shards inherit them.
func (r *Registry) ApplyConfig(c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}

	for _, sc := range c.Shards {
		members := make([]Member, 0, len(sc.Hosts))
		for _, h := range sc.Hosts {
			state := StateSecondary
			if h == sc.Primary {
				state = StatePrimary
			}
			members = append(members, Member{Addr: h, State: state})
		}
		r.AddShard(ShardID(sc.ID), members...)
	}
	return nil
}

// WithLogger sets the logger on the registry. Call before adding shards.
func (r *Registry) WithLogger(log *zap.Logger) {
	r.logger = log.With(zap.String("service", "shard-registry"))
}

// WithClock sets the clock used for targeting waits. Call before adding
// shards.
func (r *Registry) WithClock(clk clock.Clock) {
	r.clk = clk
}

// AddShard registers a shard with its initial topology and returns it.
// Adding an already registered id replaces the previous topology.
func (r *Registry) AddShard(id ShardID, members ...Member) *Shard {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.shards[id]; ok {
		s.SetMembers(members)
		return s
	}
	s := newShard(id, members, r.clk, r.logger)
	r.shards[id] = s
	return s
}

// Shard returns the shard for id, if registered.
func (r *Registry) Shard(id ShardID) (*Shard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.shards[id]
	return s, ok
}

// ShardIDs returns all registered shard ids in sorted order.
func (r *Registry) ShardIDs() []ShardID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]ShardID, 0, len(r.shards))
	for id := range r.shards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
