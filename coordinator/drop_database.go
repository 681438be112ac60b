package coordinator

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/cascadedb/cascade/cluster"
	"github.com/cascadedb/cascade/executor"
	"github.com/cascadedb/cascade/models"
)

// DropDatabase broadcasts a database drop to every shard in the registry and
// waits for all of them to answer. Per-shard failures are collected rather
// than short-circuiting, so a partially dropped database reports every shard
// that still holds data. Dropping with no registered shards is a no-op.
func DropDatabase(
	ctx context.Context,
	e executor.TaskExecutor,
	registry *cluster.Registry,
	db string,
	log *zap.Logger,
) error {
	ids := registry.ShardIDs()
	if len(ids) == 0 {
		return nil
	}

	requests := make([]Request, 0, len(ids))
	for _, id := range ids {
		requests = append(requests, Request{
			ShardID: id,
			Command: models.Document{"dropDatabase": 1},
		})
	}

	d := New(ctx, e, registry, db, requests,
		cluster.ReadPreference{Mode: cluster.ReadPrimary}, Idempotent, log)
	defer d.Close()

	var result *multierror.Error
	for !d.Done() {
		resp := d.Next()
		if resp.Err != nil {
			result = multierror.Append(result, fmt.Errorf("drop on shard %s: %w", resp.ShardID, resp.Err))
			continue
		}
		log.Debug("Dropped database on shard",
			zap.String("db", db),
			zap.String("shard", string(resp.ShardID)),
			zap.String("host", resp.Host))
	}
	return result.ErrorOrNil()
}
