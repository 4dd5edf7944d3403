// Package hist wires the whole flush pipeline: sample queues, normalizer,
// trend accumulators, trigger recalculation and the per-shard sync workers.
package hist

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vigilab/vigil/conf"
	"github.com/vigilab/vigil/hist/histcache"
	"github.com/vigilab/vigil/hist/hstats"
	"github.com/vigilab/vigil/hist/idents"
	"github.com/vigilab/vigil/hist/norm"
	"github.com/vigilab/vigil/hist/queue"
	"github.com/vigilab/vigil/hist/recalc"
	"github.com/vigilab/vigil/hist/sink"
	"github.com/vigilab/vigil/hist/syncer"
	"github.com/vigilab/vigil/hist/trend"
	"github.com/vigilab/vigil/memsto"
	"github.com/vigilab/vigil/pkg/ctx"
	"github.com/vigilab/vigil/pkg/logx"
	"github.com/vigilab/vigil/pkg/ormx"
	"github.com/vigilab/vigil/pkg/strpool"
	"github.com/vigilab/vigil/storage"
	"github.com/vigilab/vigil/vos"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// seconds between timer-driven evaluations of one time-based trigger
const timerEvalInterval = 30

const exprCacheSize = 4096

// how long a shutdown waits for in-flight commit retries before aborting them
const shutdownGrace = 30 * time.Second

// Pipeline is the running ingestion side of the server. Pollers hand their
// samples to Push, everything else happens on the sync workers.
type Pipeline struct {
	queues *queue.Queues
	stats  *hstats.Stats
}

// Push routes samples to their shard queues, dropping when a queue is
// full. Returns the number of dropped samples.
func (p *Pipeline) Push(samples []*vos.Sample) int {
	dropped := p.queues.PushBatch(samples)
	if dropped > 0 {
		p.stats.CounterSamplesDropped.WithLabelValues("queue_full").Add(float64(dropped))
	}
	return dropped
}

func Initialize(configDir string) (*Pipeline, func(), error) {
	config, err := conf.InitConfig(configDir)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "failed to init config")
	}

	logxClean, err := logx.Init(config.Log)
	if err != nil {
		return nil, nil, err
	}

	db, err := ormx.New(config.DB)
	if err != nil {
		return nil, nil, err
	}

	c := ctx.NewContext(context.Background(), db)

	var redis storage.Redis
	if config.Redis.Enable {
		redis, err = storage.NewRedis(config.Redis)
		if err != nil {
			return nil, nil, err
		}
	}

	syncStats := memsto.NewSyncStats()
	histStats := hstats.NewSyncStats()

	itemCache := memsto.NewItemCache(c, syncStats)
	triggerCache := memsto.NewTriggerCache(c, syncStats)
	macroCache := memsto.NewMacroCache(c, syncStats)

	var values histcache.Cache
	switch config.Hist.ValueCacheBackend {
	case "redis":
		if redis == nil {
			return nil, nil, fmt.Errorf("value cache backend is redis but redis is not enabled")
		}
		values = histcache.NewRedisCache(redis, config.Hist.ValueCacheRetention)
	default:
		values = histcache.NewMemoryCache(config.Hist.ValueCacheRetention)
	}

	queues := queue.New(config.Hist.Workers, config.Hist.QueueMaxSize)
	go queue.ReportQueueSize(queues, histStats)

	pool := strpool.New()
	locks := recalc.NewLocks()
	exprs := recalc.NewExprCache(exprCacheSize)
	funcs := recalc.NewFuncs(values)
	timers := recalc.NewTimerQueue(config.Hist.TimersSoftLimit, config.Hist.TimersHardLimit, timerEvalInterval)
	idset := idents.New(c)
	gormSink := sink.NewGormSink(c)

	timers.Refresh(triggerCache.TimeBasedTriggerIds(), time.Now().Unix())

	crontab := cron.New()
	if _, err := crontab.AddFunc(config.Hist.TimerRefreshCron, func() {
		timers.Refresh(triggerCache.TimeBasedTriggerIds(), time.Now().Unix())
	}); err != nil {
		return nil, nil, errors.WithMessage(err, "failed to schedule timer refresh")
	}
	crontab.Start()

	running := &atomic.Bool{}
	running.Store(true)

	var wg sync.WaitGroup
	syncers := make([]*syncer.Syncer, 0, config.Hist.Workers)
	for i := 0; i < config.Hist.Workers; i++ {
		shard := fmt.Sprint(i)
		engine := recalc.NewEngine(shard, triggerCache, itemCache, macroCache, funcs, exprs, locks, histStats)
		accumulator := trend.NewAccumulator(config.Hist.TrendTTL, pool, histStats)
		normalizer := norm.New(itemCache, config.Hist.FloatMax, histStats)

		s := syncer.New(i, config.Hist, queues, normalizer, accumulator, engine, timers,
			values, gormSink, itemCache, idset, histStats, running)
		syncers = append(syncers, s)

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Loop()
		}()
	}

	pipeline := &Pipeline{queues: queues, stats: histStats}

	clean := func() {
		running.Store(false)
		crontab.Stop()

		// let the final drain commit; if the store is down and the retry
		// loops keep spinning, cut them loose after the grace period
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(shutdownGrace):
			for _, s := range syncers {
				s.Stop()
			}
			<-done
		}

		logxClean()
	}

	return pipeline, clean, nil
}
