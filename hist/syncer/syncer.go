// Package syncer drives one flush cycle: drain a bounded batch of buffered
// samples, normalize, feed trends and the value cache, recalculate the
// affected triggers and commit everything. One Syncer runs per shard and is
// the only writer of that shard's trend accumulator.
package syncer

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vigilab/vigil/hist/hconf"
	"github.com/vigilab/vigil/hist/histcache"
	"github.com/vigilab/vigil/hist/hstats"
	"github.com/vigilab/vigil/hist/idents"
	"github.com/vigilab/vigil/hist/norm"
	"github.com/vigilab/vigil/hist/queue"
	"github.com/vigilab/vigil/hist/recalc"
	"github.com/vigilab/vigil/hist/sink"
	"github.com/vigilab/vigil/hist/trend"
	"github.com/vigilab/vigil/models"
	"github.com/vigilab/vigil/vos"

	"github.com/toolkits/pkg/logger"
)

// HostLookup resolves the owning host of an item, for proxy tracking.
type HostLookup interface {
	GetHost(hostId int64) (*models.Host, bool)
}

type Syncer struct {
	shard int
	conf  hconf.Hist

	queues *queue.Queues
	norm   *norm.Normalizer
	trend  *trend.Accumulator
	engine *recalc.Engine
	timers *recalc.TimerQueue
	values histcache.Cache
	sink   sink.Sink
	items  HostLookup
	idents *idents.Set
	stats  *hstats.Stats

	running *atomic.Bool
	stop    chan struct{}
}

func New(shard int, conf hconf.Hist, queues *queue.Queues, normalizer *norm.Normalizer,
	accumulator *trend.Accumulator, engine *recalc.Engine, timers *recalc.TimerQueue,
	values histcache.Cache, snk sink.Sink, items HostLookup,
	idset *idents.Set, stats *hstats.Stats, running *atomic.Bool) *Syncer {
	return &Syncer{
		shard:   shard,
		conf:    conf,
		queues:  queues,
		norm:    normalizer,
		trend:   accumulator,
		engine:  engine,
		timers:  timers,
		values:  values,
		sink:    snk,
		items:   items,
		idents:  idset,
		stats:   stats,
		running: running,
		stop:    make(chan struct{}),
	}
}

// Loop runs Sync until shutdown, sleeping between empty polls.
func (s *Syncer) Loop() {
	poll := time.Duration(s.conf.PollTimeout) * time.Millisecond
	shard := fmt.Sprint(s.shard)

	for s.running.Load() {
		start := time.Now()
		values, triggers, more := s.Sync()
		s.stats.GaugeSyncDuration.WithLabelValues(shard).Set(float64(time.Since(start).Milliseconds()))

		if values > 0 || triggers > 0 {
			logger.Debugf("shard %d: synced %d values, %d triggers, more: %v", s.shard, values, triggers, more)
		}

		if !more {
			time.Sleep(poll)
		}
	}

	// final drain so a graceful shutdown leaves nothing buffered
	s.Sync()
}

// Stop aborts any in-flight commit retry. Only for hard shutdown, a
// graceful one lets the retry win.
func (s *Syncer) Stop() {
	close(s.stop)
}

// Sync is one flush call. It loops over batches until the queue and the
// timers run dry or the wall-clock ceiling is reached; the ceiling is only
// checked between iterations, an in-flight commit retry may overrun it.
func (s *Syncer) Sync() (totalValues, totalTriggers int, more bool) {
	start := time.Now()
	ceiling := time.Duration(s.conf.SyncTimeCeiling) * time.Second
	shard := fmt.Sprint(s.shard)

	for {
		samples := s.queues.PopBatch(s.shard, s.conf.BatchMax)

		var dueTimers []int64
		if s.running.Load() {
			dueTimers = s.timers.PopDue(time.Now().Unix())
		}

		if len(samples) == 0 && len(dueTimers) == 0 {
			return totalValues, totalTriggers, false
		}

		now := time.Now().Unix()
		triggers, skipped := s.flush(samples, dueTimers, now)

		s.timers.Release(dueTimers, now)

		totalValues += len(samples)
		totalTriggers += triggers
		s.stats.CounterSamplesTotal.WithLabelValues(shard).Add(float64(len(samples)))

		// mostly lock-contended leftovers, let another shard make progress
		if skipped > 0 && len(samples) < s.conf.BatchMax/10 {
			break
		}

		if time.Since(start) >= ceiling {
			break
		}

		if !s.running.Load() {
			break
		}
	}

	return totalValues, totalTriggers, s.queues.Len(s.shard) > 0
}

// flush processes one drained batch end to end. Returns the number of
// triggers evaluated and the number of candidates skipped because another
// shard held their lock.
func (s *Syncer) flush(samples []*vos.Sample, dueTimers []int64, now int64) (int, int) {
	items, changes := s.norm.PrepareBatch(samples)

	persist := &sink.Batch{ItemChanges: changes}

	changedSeen := make(map[int64]struct{})
	var changedIds []int64
	proxySeen := make(map[int64]struct{})
	var proxyIds []int64

	for i, smp := range samples {
		if smp.Has(vos.FlagUndef) || items[i] == nil {
			continue
		}
		item := items[i]

		if _, has := changedSeen[smp.ItemID]; !has {
			changedSeen[smp.ItemID] = struct{}{}
			changedIds = append(changedIds, smp.ItemID)
		}

		host, hasHost := s.items.GetHost(item.HostId)
		if hasHost && host.ProxyId > 0 {
			if _, dup := proxySeen[host.ProxyId]; !dup {
				proxySeen[host.ProxyId] = struct{}{}
				proxyIds = append(proxyIds, host.ProxyId)
			}
		}

		if smp.Has(vos.FlagMeta) || smp.Has(vos.FlagNoValue) {
			continue
		}

		if smp.Storable(vos.FlagNoTrends) && smp.Value.Kind.IsNumeric() {
			var hostName string
			if hasHost {
				hostName = host.Name
			}
			s.trend.Account(smp, item.ItemKey, hostName)
		}

		if smp.Storable(vos.FlagNoHistory) {
			persist.AddSample(smp)
		}

		// the value cache feeds trigger functions, flags do not exclude it
		switch smp.Value.Kind {
		case vos.ValueTypeFloat:
			s.values.Put(smp.ItemID, vos.HPoint{Ts: smp.Sec, Value: smp.Value.F64})
		case vos.ValueTypeUint64:
			s.values.Put(smp.ItemID, vos.HPoint{Ts: smp.Sec, Value: float64(smp.Value.U64)})
		}
	}

	persist.TrendFloats, persist.TrendUints = s.trend.TakeExports(now)

	for _, c := range changes {
		persist.Events = append(persist.Events, &models.Event{
			Source:   models.EventSourceInternal,
			Object:   models.EventObjectItem,
			ObjectId: c.Item.Id,
			Clock:    c.Clock,
			Ns:       c.Ns,
			Value:    int(c.State),
			Name:     c.Error,
		})
	}

	res, skipped := s.engine.Recalc(changedIds, dueTimers, now)
	persist.Events = append(persist.Events, res.Events...)

	// the trigger updates commit on their own; the persisting transaction
	// runs regardless of how this one ended
	recalcBatch := &sink.Batch{TriggerDiffs: res.Diffs}
	if err := sink.CommitRetry(s.sink, recalcBatch, s.stats.CounterCommitRetries, s.stop); err != nil {
		logger.Errorf("shard %d: failed to commit trigger diffs: %v", s.shard, err)
	}

	if err := sink.CommitRetry(s.sink, persist, s.stats.CounterCommitRetries, s.stop); err != nil {
		logger.Errorf("shard %d: failed to commit history batch: %v", s.shard, err)
	}

	s.idents.MSet(proxyIds)

	return res.Triggers, skipped
}
