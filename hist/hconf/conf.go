package hconf

// Hist configures the history synchronization pipeline.
type Hist struct {
	// number of sync workers; an item id is always routed to the same
	// worker, the trend accumulator relies on it
	Workers int

	// per-worker sample queue capacity
	QueueMaxSize int

	// samples drained per sync iteration
	BatchMax int

	// wall-clock ceiling of one Sync call, seconds
	SyncTimeCeiling int

	// sleep between polls when a queue is empty, milliseconds
	PollTimeout int

	// trend entries idle longer than this are evicted, seconds
	TrendTTL int64

	// float samples with |value| above this are rejected
	FloatMax float64

	// recent-value cache window, seconds
	ValueCacheRetention int64

	// "memory" or "redis"
	ValueCacheBackend string

	// timer queue limits: at most TimersHardLimit due timers are popped
	// per cycle, and the pop stops early at TimersSoftLimit to leave
	// headroom for sample-driven work
	TimersHardLimit int
	TimersSoftLimit int

	// cron pattern for recomputing next evaluation times of time-based
	// triggers
	TimerRefreshCron string
}

func (h *Hist) PreCheck() {
	if h.Workers <= 0 {
		h.Workers = 4
	}

	if h.QueueMaxSize <= 0 {
		h.QueueMaxSize = 1000000
	}

	if h.BatchMax <= 0 {
		h.BatchMax = 1000
	}

	if h.SyncTimeCeiling <= 0 {
		h.SyncTimeCeiling = 10
	}

	if h.PollTimeout <= 0 {
		h.PollTimeout = 500
	}

	if h.TrendTTL <= 0 {
		h.TrendTTL = 2 * 86400
	}

	if h.FloatMax <= 0 {
		h.FloatMax = 1e12
	}

	if h.ValueCacheRetention <= 0 {
		h.ValueCacheRetention = 3 * 3600
	}

	if h.ValueCacheBackend == "" {
		h.ValueCacheBackend = "memory"
	}

	if h.TimersHardLimit <= 0 {
		h.TimersHardLimit = 1000
	}

	if h.TimersSoftLimit <= 0 || h.TimersSoftLimit > h.TimersHardLimit {
		h.TimersSoftLimit = h.TimersHardLimit * 4 / 5
	}

	if h.TimerRefreshCron == "" {
		h.TimerRefreshCron = "@every 30s"
	}
}
