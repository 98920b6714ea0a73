// Package vm implements the sandboxed contract execution of spec.md §4.6:
// a wasmer-go module per deployed contract, a fixed host-import surface for
// environment data, gas-metered storage access, and cross-contract calls.
package vm

import (
	"crypto/sha256"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/wasmerio/wasmer-go/wasmer"
)

// ModuleCache memoizes compiled wasmer modules keyed by SHA-256(bytecode)
// (§4.6: "module compilation results are cached"), since re-compiling the
// same deployed contract on every call would dominate apply_entry's cost.
type ModuleCache struct {
	engine *wasmer.Engine
	mu     sync.Mutex
	lru    *lru.Cache
}

func NewModuleCache(capacity int) *ModuleCache {
	cache, _ := lru.New(capacity)
	return &ModuleCache{engine: wasmer.NewEngine(), lru: cache}
}

// Compile returns a cached module for bytecode, compiling (and inserting)
// on a cache miss.
func (c *ModuleCache) Compile(bytecode []byte) (*wasmer.Module, error) {
	key := sha256.Sum256(bytecode)

	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.lru.Get(key); ok {
		return cached.(*wasmer.Module), nil
	}
	store := wasmer.NewStore(c.engine)
	mod, err := wasmer.NewModule(store, bytecode)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, mod)
	return mod, nil
}
