package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/cascadedb/cascade/kit/errors"
	"github.com/cascadedb/cascade/models"
)

// ReadMode selects which replica-set members may serve a read.
type ReadMode string

const (
	ReadPrimary            ReadMode = "primary"
	ReadPrimaryPreferred   ReadMode = "primaryPreferred"
	ReadSecondary          ReadMode = "secondary"
	ReadSecondaryPreferred ReadMode = "secondaryPreferred"
	ReadNearest            ReadMode = "nearest"
)

// ReadPreference describes which member of a shard may serve an operation.
// The dispatcher passes it through opaquely and serializes it into request
// metadata.
type ReadPreference struct {
	Mode ReadMode `toml:"mode"`
}

// Document serializes the preference into command metadata.
func (p ReadPreference) Document() models.Document {
	return models.Document{"mode": string(p.Mode)}
}

// Targeter resolves a shard id and read preference to a concrete host,
// waiting for the topology to produce an eligible member. Concurrent
// resolutions of the same shard and mode share one wait.
type Targeter struct {
	shard *Shard
	clk   clock.Clock
	group singleflight.Group
}

func newTargeter(s *Shard, clk clock.Clock) *Targeter {
	return &Targeter{shard: s, clk: clk}
}

// FindHost returns a host eligible under pref, waiting up to maxWait for the
// topology to provide one. The wait is bounded: expiry yields ENoPrimary for
// primary reads and ENoEligibleHost otherwise.
func (t *Targeter) FindHost(ctx context.Context, pref ReadPreference, maxWait time.Duration) (string, error) {
	v, err, _ := t.group.Do(string(pref.Mode), func() (interface{}, error) {
		return t.findHost(ctx, pref, maxWait)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (t *Targeter) findHost(ctx context.Context, pref ReadPreference, maxWait time.Duration) (interface{}, error) {
	timer := t.clk.Timer(maxWait)
	defer timer.Stop()

	for {
		if host, ok := t.shard.pickHost(pref); ok {
			return host, nil
		}

		change := t.shard.changeSignal()
		select {
		case <-change:
		case <-timer.C:
			code := errors.ENoEligibleHost
			if pref.Mode == ReadPrimary {
				code = errors.ENoPrimary
			}
			return nil, &errors.Error{
				Code: code,
				Msg:  fmt.Sprintf("timed out after %s resolving shard %s for %s reads", maxWait, t.shard.ID(), pref.Mode),
			}
		case <-ctx.Done():
			return nil, &errors.Error{Code: errors.EInterrupted, Err: ctx.Err()}
		}
	}
}

// pickHost chooses a member eligible under pref, or reports that none is
// currently available. Secondary and nearest picks rotate through the
// eligible members.
func (s *Shard) pickHost(pref ReadPreference) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var primary string
	var secondaries []string
	for _, m := range s.members {
		switch m.State {
		case StatePrimary:
			primary = m.Addr
		case StateSecondary:
			secondaries = append(secondaries, m.Addr)
		}
	}

	rotate := func(hosts []string) (string, bool) {
		if len(hosts) == 0 {
			return "", false
		}
		s.rr++
		return hosts[s.rr%len(hosts)], true
	}

	switch pref.Mode {
	case ReadPrimary:
		return primary, primary != ""
	case ReadPrimaryPreferred:
		if primary != "" {
			return primary, true
		}
		return rotate(secondaries)
	case ReadSecondary:
		return rotate(secondaries)
	case ReadSecondaryPreferred:
		if host, ok := rotate(secondaries); ok {
			return host, true
		}
		return primary, primary != ""
	case ReadNearest:
		if primary != "" {
			return rotate(append(secondaries, primary))
		}
		return rotate(secondaries)
	default:
		return primary, primary != ""
	}
}
