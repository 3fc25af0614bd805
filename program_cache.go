package settings

import "sync"

// ProgramCache stores compiled expression programs. Evaluators namespace keys
// by engine so one cache can be shared between them.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// WithProgramCache registers a program cache on the engine.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *engineConfig) {
		cfg.programCache = cache
	}
}

// MemoryProgramCache is an unbounded, concurrency-safe ProgramCache. Rule
// expressions come from the definition catalog, so the key space is small.
type MemoryProgramCache struct {
	programs sync.Map
}

// NewMemoryProgramCache constructs an empty cache.
func NewMemoryProgramCache() *MemoryProgramCache {
	return &MemoryProgramCache{}
}

func (c *MemoryProgramCache) Get(key string) (any, bool) {
	return c.programs.Load(key)
}

func (c *MemoryProgramCache) Set(key string, value any) {
	c.programs.Store(key, value)
}

func cacheKey(engine, expression string) string {
	return engine + ":" + expression
}
