package coordinator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cascadedb/cascade/cluster"
	"github.com/cascadedb/cascade/coordinator"
	kiterrors "github.com/cascadedb/cascade/kit/errors"
	"github.com/cascadedb/cascade/mock"
	"github.com/cascadedb/cascade/models"
)

func TestDropDatabase(t *testing.T) {
	registry := cluster.NewRegistry()
	primaryShard(registry, "a", "a1:7700")
	primaryShard(registry, "b", "b1:7700")
	exec := mock.NewTaskExecutor()

	go func() {
		for i := 0; i < 2; i++ {
			cmd, ok := exec.Take(takeTimeout)
			if !ok {
				return
			}
			if _, drop := cmd.Request.Command["dropDatabase"]; !drop {
				cmd.Respond(models.Document{"ok": 0, "errmsg": "unexpected command"})
				continue
			}
			cmd.Respond(okBody())
		}
	}()

	require.NoError(t, coordinator.DropDatabase(context.Background(), exec, registry, "db0", testLogger()))
	require.Equal(t, 2, exec.ScheduleCalls())
}

func TestDropDatabase_CollectsPerShardFailures(t *testing.T) {
	registry := cluster.NewRegistry()
	primaryShard(registry, "a", "a1:7700")
	primaryShard(registry, "b", "b1:7700")
	exec := mock.NewTaskExecutor()

	go func() {
		for i := 0; i < 2; i++ {
			cmd, ok := exec.Take(takeTimeout)
			if !ok {
				return
			}
			if cmd.Request.Target == "a1:7700" {
				cmd.Respond(models.Document{"ok": 0, "code": kiterrors.EUnauthorized, "errmsg": "drop requires admin"})
			} else {
				cmd.Respond(okBody())
			}
		}
	}()

	err := coordinator.DropDatabase(context.Background(), exec, registry, "db0", testLogger())
	require.Error(t, err)
	require.Contains(t, err.Error(), "drop on shard a")
	require.NotContains(t, err.Error(), "drop on shard b")
}

func TestDropDatabase_NoShards(t *testing.T) {
	registry := cluster.NewRegistry()
	exec := mock.NewTaskExecutor()
	require.NoError(t, coordinator.DropDatabase(context.Background(), exec, registry, "db0", testLogger()))
	require.Zero(t, exec.ScheduleCalls())
}
