// Package cluster tracks the shard topology of the cluster and resolves
// shard ids to concrete hosts according to a read preference.
package cluster

import (
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/cascadedb/cascade/kit/errors"
)

// ShardID identifies a logical partition of data served by a replica set.
type ShardID string

// MemberState is the last known role of a replica-set member.
type MemberState int

const (
	StateUnknown MemberState = iota
	StatePrimary
	StateSecondary
	StateDown
)

func (s MemberState) String() string {
	switch s {
	case StatePrimary:
		return "primary"
	case StateSecondary:
		return "secondary"
	case StateDown:
		return "down"
	default:
		return "unknown"
	}
}

// Member is one replica-set member of a shard.
type Member struct {
	Addr  string
	State MemberState
}

// Shard holds the replica-set topology for one shard and doubles as its
// monitor: failures reported by the dispatcher update member state so that
// future resolutions re-target.
type Shard struct {
	id     ShardID
	logger *zap.Logger

	mu      sync.Mutex
	members []Member
	changed chan struct{} // closed and replaced on every topology change
	rr      int           // round-robin cursor for secondary/nearest picks

	targeter *Targeter
}

func newShard(id ShardID, members []Member, clk clock.Clock, logger *zap.Logger) *Shard {
	s := &Shard{
		id:      id,
		logger:  logger.With(zap.String("shard", string(id))),
		members: append([]Member(nil), members...),
		changed: make(chan struct{}),
	}
	s.targeter = newTargeter(s, clk)
	return s
}

// ID returns the shard's identity.
func (s *Shard) ID() ShardID { return s.id }

// Targeter returns the host resolver for this shard.
func (s *Shard) Targeter() *Targeter { return s.targeter }

// Members returns a copy of the current topology.
func (s *Shard) Members() []Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Member(nil), s.members...)
}

// SetMembers replaces the shard's topology and wakes any blocked resolutions.
func (s *Shard) SetMembers(members []Member) {
	s.mu.Lock()
	s.members = append([]Member(nil), members...)
	s.notifyLocked()
	s.mu.Unlock()
}

// UpdateMember sets the state of a single member, adding it if unknown, and
// wakes any blocked resolutions.
func (s *Shard) UpdateMember(addr string, state MemberState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.members {
		if s.members[i].Addr == addr {
			if s.members[i].State != state {
				s.members[i].State = state
				s.notifyLocked()
			}
			return
		}
	}
	s.members = append(s.members, Member{Addr: addr, State: state})
	s.notifyLocked()
}

// MarkHostFailed feeds a per-host failure back into the monitor. Network
// errors mark the host down; not-primary errors demote it so the next
// resolution re-targets. Other errors leave the topology alone.
func (s *Shard) MarkHostFailed(addr string, err error) {
	code := errors.ErrorCode(err)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.members {
		if s.members[i].Addr != addr {
			continue
		}
		switch {
		case errors.IsNetworkError(code):
			if s.members[i].State != StateDown {
				s.logger.Debug("Marking host down",
					zap.String("host", addr), zap.String("error_code", code))
				s.members[i].State = StateDown
				s.notifyLocked()
			}
		case errors.IsNotPrimaryError(code):
			if s.members[i].State == StatePrimary {
				s.logger.Debug("Demoting primary",
					zap.String("host", addr), zap.String("error_code", code))
				s.members[i].State = StateSecondary
				s.notifyLocked()
			}
		}
		return
	}
}

// notifyLocked signals a topology change to blocked resolutions. Callers must
// hold s.mu.
func (s *Shard) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// changeSignal returns the channel closed on the next topology change.
func (s *Shard) changeSignal() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}
