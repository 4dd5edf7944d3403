// Package trend folds numeric samples into hourly min/avg/max rollups.
// Every sync shard owns one Accumulator, and item ids are pinned to shards,
// so the accumulator runs without any locking.
package trend

import (
	"github.com/vigilab/vigil/hist/hstats"
	"github.com/vigilab/vigil/models"
	"github.com/vigilab/vigil/pkg/strpool"
	"github.com/vigilab/vigil/vos"

	"github.com/toolkits/pkg/logger"
)

const hourSeconds = 3600

type entry struct {
	key      string // item key, interned
	host     string // host name, interned
	kind     vos.ValueType
	clock    int64 // start of the hour being accumulated
	num      int
	sum      float64
	minF     float64
	maxF     float64
	minU     uint64
	maxU     uint64
	lastSeen int64
}

type Accumulator struct {
	ttl   int64
	pool  *strpool.Pool
	stats *hstats.Stats

	items map[int64]*entry

	// rollups waiting to be picked up by the next flush
	pendingFloat []*models.TrendFloat
	pendingUint  []*models.TrendUint

	nextSweep int64
}

func NewAccumulator(ttl int64, pool *strpool.Pool, stats *hstats.Stats) *Accumulator {
	return &Accumulator{
		ttl:   ttl,
		pool:  pool,
		stats: stats,
		items: make(map[int64]*entry),
	}
}

// Account folds one numeric sample into the item's current hour. When the
// sample opens a new hour, or the item changed its value type, the finished
// hour is exported first.
func (a *Accumulator) Account(s *vos.Sample, itemKey, hostName string) {
	if !s.Value.Kind.IsNumeric() {
		return
	}

	hour := s.Sec - s.Sec%hourSeconds

	e, has := a.items[s.ItemID]
	if !has {
		e = &entry{
			key:  a.pool.Intern(itemKey),
			host: a.pool.Intern(hostName),
		}
		a.items[s.ItemID] = e
	} else if e.clock != hour || e.kind != s.Value.Kind {
		a.export(s.ItemID, e)
	}

	if e.num == 0 {
		e.kind = s.Value.Kind
		e.clock = hour
	}

	switch s.Value.Kind {
	case vos.ValueTypeFloat:
		v := s.Value.F64
		if e.num == 0 || v < e.minF {
			e.minF = v
		}
		if e.num == 0 || v > e.maxF {
			e.maxF = v
		}
		e.sum += v
	case vos.ValueTypeUint64:
		v := s.Value.U64
		if e.num == 0 || v < e.minU {
			e.minU = v
		}
		if e.num == 0 || v > e.maxU {
			e.maxU = v
		}
		e.sum += float64(v)
	}

	e.num++
	e.lastSeen = s.Sec
}

// export moves the finished hour onto the pending lists and resets the
// entry in place. An empty entry exports nothing.
func (a *Accumulator) export(itemID int64, e *entry) {
	if e.num == 0 {
		return
	}

	avg := e.sum / float64(e.num)

	switch e.kind {
	case vos.ValueTypeFloat:
		a.pendingFloat = append(a.pendingFloat, &models.TrendFloat{
			ItemId:   itemID,
			Clock:    e.clock,
			Num:      e.num,
			ValueMin: e.minF,
			ValueAvg: avg,
			ValueMax: e.maxF,
			ItemKey:  e.key,
			HostName: e.host,
		})
	case vos.ValueTypeUint64:
		a.pendingUint = append(a.pendingUint, &models.TrendUint{
			ItemId:   itemID,
			Clock:    e.clock,
			Num:      e.num,
			ValueMin: e.minU,
			ValueAvg: avg,
			ValueMax: e.maxU,
			ItemKey:  e.key,
			HostName: e.host,
		})
	}

	a.stats.CounterTrendExports.Inc()

	e.num = 0
	e.sum = 0
}

// TakeExports hands out the rollups finished since the last call, running
// the idle-item sweep at most once per hour. The caller commits them in the
// same transaction as the samples that closed the hours.
func (a *Accumulator) TakeExports(now int64) ([]*models.TrendFloat, []*models.TrendUint) {
	if now >= a.nextSweep {
		a.sweep(now)
		a.nextSweep = now - now%hourSeconds + hourSeconds
	}

	floats := a.pendingFloat
	uints := a.pendingUint
	a.pendingFloat = nil
	a.pendingUint = nil
	return floats, uints
}

// sweep drops items that stopped reporting. The evicted partial hour is
// discarded, not exported: a swept item is indistinguishable from one that
// never reported. Without the sweep the accumulator would grow one entry
// per item ever seen.
func (a *Accumulator) sweep(now int64) {
	evicted := 0
	for itemID, e := range a.items {
		if now-e.lastSeen <= a.ttl {
			continue
		}
		a.pool.Release(e.key)
		a.pool.Release(e.host)
		delete(a.items, itemID)
		evicted++
	}

	if evicted > 0 {
		logger.Infof("trend: evicted %d idle items, %d still tracked", evicted, len(a.items))
	}
}

func (a *Accumulator) Len() int {
	return len(a.items)
}
