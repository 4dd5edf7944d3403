package memsto

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vigilab/vigil/models"
	"github.com/vigilab/vigil/pkg/ctx"
	"github.com/vigilab/vigil/pkg/parser"

	"github.com/pkg/errors"
	"github.com/toolkits/pkg/logger"
)

// TriggerCacheType keeps the trigger definitions, the item->trigger index
// derived from their expressions, and the dependency edges. The index is
// what bounds recalculation to the triggers actually affected by a batch.
type TriggerCacheType struct {
	statTotal       int64
	statLastUpdated int64
	ctx             *ctx.Context
	stats           *Stats

	sync.RWMutex
	triggers  map[int64]*models.Trigger // key: trigger id
	itemIndex map[int64][]int64         // key: item id, value: trigger ids
	deps      map[int64][]int64         // key: trigger id, value: master trigger ids
}

func NewTriggerCache(ctx *ctx.Context, stats *Stats) *TriggerCacheType {
	tc := &TriggerCacheType{
		statTotal:       -1,
		statLastUpdated: -1,
		ctx:             ctx,
		stats:           stats,
		triggers:        make(map[int64]*models.Trigger),
		itemIndex:       make(map[int64][]int64),
		deps:            make(map[int64][]int64),
	}
	tc.SyncTriggers()
	return tc
}

func (tc *TriggerCacheType) StatChanged(total, lastUpdated int64) bool {
	if tc.statTotal == total && tc.statLastUpdated == lastUpdated {
		return false
	}

	return true
}

func (tc *TriggerCacheType) Set(triggers map[int64]*models.Trigger, itemIndex map[int64][]int64, deps map[int64][]int64, total, lastUpdated int64) {
	tc.Lock()
	tc.triggers = triggers
	tc.itemIndex = itemIndex
	tc.deps = deps
	tc.Unlock()

	// only one goroutine used, so no need lock
	tc.statTotal = total
	tc.statLastUpdated = lastUpdated
}

func (tc *TriggerCacheType) Get(triggerId int64) (*models.Trigger, bool) {
	tc.RLock()
	defer tc.RUnlock()
	t, has := tc.triggers[triggerId]
	return t, has
}

// GetByItemIds resolves every enabled trigger referencing any of the given
// items. Duplicates are fine here, the engine deduplicates by trigger id.
func (tc *TriggerCacheType) GetByItemIds(ids []int64) []*models.Trigger {
	tc.RLock()
	defer tc.RUnlock()

	var lst []*models.Trigger
	for _, id := range ids {
		for _, tid := range tc.itemIndex[id] {
			if t, has := tc.triggers[tid]; has {
				lst = append(lst, t)
			}
		}
	}
	return lst
}

// TimeBasedTriggerIds returns the triggers whose expressions depend on
// wall-clock time (nodata and friends) and therefore need timer-driven
// recalculation even without fresh samples.
func (tc *TriggerCacheType) TimeBasedTriggerIds() []int64 {
	tc.RLock()
	defer tc.RUnlock()

	var ids []int64
	for id, t := range tc.triggers {
		if t.TimeBased {
			ids = append(ids, id)
		}
	}
	return ids
}

func (tc *TriggerCacheType) Masters(triggerId int64) []int64 {
	tc.RLock()
	defer tc.RUnlock()
	return tc.deps[triggerId]
}

func (tc *TriggerCacheType) SyncTriggers() {
	err := tc.syncTriggers()
	if err != nil {
		fmt.Println("failed to sync triggers:", err)
		os.Exit(1)
	}

	go tc.loopSyncTriggers()
}

func (tc *TriggerCacheType) loopSyncTriggers() {
	duration := time.Duration(9000) * time.Millisecond
	for {
		time.Sleep(duration)
		if err := tc.syncTriggers(); err != nil {
			logger.Warning("failed to sync triggers:", err)
		}
	}
}

func (tc *TriggerCacheType) syncTriggers() error {
	start := time.Now()

	stat, err := models.TriggerStatistics(tc.ctx)
	if err != nil {
		return errors.WithMessage(err, "failed to exec TriggerStatistics")
	}

	if !tc.StatChanged(stat.Total, stat.LastUpdated) {
		tc.stats.GaugeCronDuration.WithLabelValues("sync_triggers").Set(0)
		tc.stats.GaugeSyncNumber.WithLabelValues("sync_triggers").Set(0)
		return nil
	}

	lst, err := models.TriggerGetsAll(tc.ctx)
	if err != nil {
		return errors.WithMessage(err, "failed to exec TriggerGetsAll")
	}

	depLst, err := models.TriggerDepGetsAll(tc.ctx)
	if err != nil {
		return errors.WithMessage(err, "failed to exec TriggerDepGetsAll")
	}

	triggers := make(map[int64]*models.Trigger, len(lst))
	itemIndex := make(map[int64][]int64)
	for i := 0; i < len(lst); i++ {
		t := lst[i]
		if t.Status != models.TriggerStatusEnabled {
			continue
		}
		triggers[t.Id] = t

		itemIds, timeBased := triggerRefs(t)
		t.TimeBased = timeBased
		for _, itemId := range itemIds {
			itemIndex[itemId] = append(itemIndex[itemId], t.Id)
		}
	}

	deps := make(map[int64][]int64)
	for i := 0; i < len(depLst); i++ {
		d := depLst[i]
		deps[d.TriggerId] = append(deps[d.TriggerId], d.MasterId)
	}

	tc.Set(triggers, itemIndex, deps, stat.Total, stat.LastUpdated)

	ms := time.Since(start).Milliseconds()
	tc.stats.GaugeCronDuration.WithLabelValues("sync_triggers").Set(float64(ms))
	tc.stats.GaugeSyncNumber.WithLabelValues("sync_triggers").Set(float64(len(triggers)))
	logger.Infof("timer: sync triggers done, cost: %dms, number: %d", ms, len(triggers))

	return nil
}

// triggerRefs extracts the item ids referenced by the problem and recovery
// expressions, and whether any function makes the trigger time-based. A
// malformed expression yields no index entries; the engine reports the
// parse error when the trigger is evaluated by timer.
func triggerRefs(t *models.Trigger) ([]int64, bool) {
	seen := make(map[int64]struct{})
	var ids []int64
	var timeBased bool

	collect := func(text string) {
		if text == "" {
			return
		}
		exp, err := parser.Parse(text)
		if err != nil {
			logger.Warningf("trigger %d: cannot index expression: %v", t.Id, err)
			return
		}
		for _, ref := range exp.Refs {
			if ref.Name == "nodata" {
				timeBased = true
			}
			if _, has := seen[ref.ItemID]; has {
				continue
			}
			seen[ref.ItemID] = struct{}{}
			ids = append(ids, ref.ItemID)
		}
	}

	collect(t.Expression)
	if t.RecoveryMode == models.RecoveryModeRecoveryExpression {
		collect(t.RecoveryExpression)
	}

	return ids, timeBased
}
