package kv

import (
	"fmt"

	"minikv/internal/config"
	"minikv/pkg/btree"
	"minikv/pkg/lsm"
)

// Open opens the engine named by cfg.Engine ("lsm" or "btree") rooted at
// cfg.DataDir, replaying any WAL present and returning a ready-to-use KV.
func Open(cfg config.Config) (KV, error) {
	switch cfg.Engine {
	case "", "lsm":
		return lsm.Open(cfg.DataDir, cfg.LSM, cfg.Debug)
	case "btree":
		return btree.Open(cfg.DataDir, cfg.BTree, cfg.Debug)
	default:
		return nil, fmt.Errorf("minikv: unknown engine %q", cfg.Engine)
	}
}
