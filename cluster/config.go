package cluster

import (
	"fmt"
)

// ShardConfig describes one shard's replica set in the node configuration.
type ShardConfig struct {
	ID      string   `toml:"id"`
	Hosts   []string `toml:"hosts"`
	Primary string   `toml:"primary"`
}

// Config seeds the shard registry.
type Config struct {
	Shards []ShardConfig `toml:"shard"`
}

// NewConfig returns a new instance of Config with defaults.
func NewConfig() Config {
	return Config{}
}

// Validate returns an error if the configuration is invalid.
func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Shards))
	for _, sc := range c.Shards {
		if sc.ID == "" {
			return fmt.Errorf("shard with empty id")
		}
		if _, ok := seen[sc.ID]; ok {
			return fmt.Errorf("duplicate shard id %q", sc.ID)
		}
		seen[sc.ID] = struct{}{}

		if len(sc.Hosts) == 0 {
			return fmt.Errorf("shard %q has no hosts", sc.ID)
		}
		if sc.Primary != "" {
			found := false
			for _, h := range sc.Hosts {
				if h == sc.Primary {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("shard %q primary %q is not a listed host", sc.ID, sc.Primary)
			}
		}
	}
	return nil
}
