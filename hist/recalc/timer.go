package recalc

import (
	"sync"

	"github.com/toolkits/pkg/logger"
)

// TimerQueue schedules the triggers that need recalculation on wall-clock
// time (nodata and friends) instead of on fresh samples. It is shared by
// all sync shards, a popped timer stays locked until its shard releases it.
type TimerQueue struct {
	sync.Mutex

	soft     int
	hard     int
	interval int64 // seconds between evaluations of one trigger

	timers map[int64]*timerEntry
	locked int
}

type timerEntry struct {
	nextEval int64
	locked   bool
}

func NewTimerQueue(soft, hard int, interval int64) *TimerQueue {
	return &TimerQueue{
		soft:     soft,
		hard:     hard,
		interval: interval,
		timers:   make(map[int64]*timerEntry),
	}
}

// Refresh reconciles the queue against the current set of time-based
// triggers. New triggers become due immediately, vanished ones are dropped.
func (tq *TimerQueue) Refresh(triggerIds []int64, now int64) {
	tq.Lock()
	defer tq.Unlock()

	current := make(map[int64]struct{}, len(triggerIds))
	for _, id := range triggerIds {
		current[id] = struct{}{}
		if _, has := tq.timers[id]; !has {
			tq.timers[id] = &timerEntry{nextEval: now}
		}
	}

	for id, e := range tq.timers {
		if _, has := current[id]; has {
			continue
		}
		if e.locked {
			tq.locked--
		}
		delete(tq.timers, id)
	}

	logger.Debugf("timer queue refreshed, %d time-based triggers", len(tq.timers))
}

// PopDue locks and returns due timers. At most soft entries are handed out
// per call so that timer work never starves sample processing, and the
// total of locked timers never exceeds the hard limit.
func (tq *TimerQueue) PopDue(now int64) []int64 {
	tq.Lock()
	defer tq.Unlock()

	var ids []int64
	for id, e := range tq.timers {
		if len(ids) >= tq.soft || tq.locked >= tq.hard {
			break
		}
		if e.locked || e.nextEval > now {
			continue
		}
		e.locked = true
		tq.locked++
		ids = append(ids, id)
	}
	return ids
}

// Release unlocks popped timers and schedules their next evaluation.
func (tq *TimerQueue) Release(ids []int64, now int64) {
	tq.Lock()
	defer tq.Unlock()

	for _, id := range ids {
		e, has := tq.timers[id]
		if !has || !e.locked {
			continue
		}
		e.locked = false
		tq.locked--
		e.nextEval = now + tq.interval
	}
}

func (tq *TimerQueue) Len() int {
	tq.Lock()
	defer tq.Unlock()
	return len(tq.timers)
}
