package engine

// Engine bundles a Scheduler with the KVCacheManager it schedules against.
// It is the usual entry point for callers that do not need to manage the
// two separately; NewScheduler/NewKVCacheManager remain available directly
// for callers that do (e.g. tests exercising one component in isolation).
type Engine struct {
	Scheduler *Scheduler
	KVCache   *KVCacheManager
}

// New validates cfg and constructs a ready-to-use Engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sched, err := NewScheduler(cfg)
	if err != nil {
		return nil, err
	}
	return &Engine{
		Scheduler: sched,
		KVCache:   NewKVCacheManager(cfg),
	}, nil
}

// Step runs one scheduling round: Schedule against the engine's own cache
// manager. Callers that need to interleave executor work between Schedule
// and UpdateAfterStep should call e.Scheduler.Schedule(e.KVCache) directly
// instead; Step exists for the common case of inspecting a step's
// decisions without threading the cache manager through by hand.
func (e *Engine) Step() ScheduleResult {
	return e.Scheduler.Schedule(e.KVCache)
}
