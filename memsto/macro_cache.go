package memsto

import (
	"strings"
	"sync"
	"time"

	"github.com/vigilab/vigil/models"
	"github.com/vigilab/vigil/pkg/ctx"

	"github.com/pkg/errors"
	"github.com/toolkits/pkg/logger"
)

// MacroCacheType holds per-host user macros ({$NAME} -> value) used to
// expand trigger function parameters before evaluation.
type MacroCacheType struct {
	statTotal       int64
	statLastUpdated int64
	ctx             *ctx.Context
	stats           *Stats

	sync.RWMutex
	macros map[int64]map[string]string // key: host id
}

func NewMacroCache(ctx *ctx.Context, stats *Stats) *MacroCacheType {
	mc := &MacroCacheType{
		statTotal:       -1,
		statLastUpdated: -1,
		ctx:             ctx,
		stats:           stats,
		macros:          make(map[int64]map[string]string),
	}
	mc.SyncMacros()
	return mc
}

func (mc *MacroCacheType) StatChanged(total, lastUpdated int64) bool {
	return mc.statTotal != total || mc.statLastUpdated != lastUpdated
}

func (mc *MacroCacheType) Set(m map[int64]map[string]string, total, lastUpdated int64) {
	mc.Lock()
	mc.macros = m
	mc.Unlock()

	mc.statTotal = total
	mc.statLastUpdated = lastUpdated
}

// ExpandParams substitutes {$MACRO} occurrences in function parameters,
// resolving against the given hosts in order. Unknown macros are left
// untouched so the evaluator can report them.
func (mc *MacroCacheType) ExpandParams(params []string, hostIds []int64) []string {
	if len(params) == 0 {
		return params
	}

	mc.RLock()
	defer mc.RUnlock()

	out := make([]string, len(params))
	for i, p := range params {
		if !strings.Contains(p, "{$") {
			out[i] = p
			continue
		}
		for _, hostId := range hostIds {
			for name, value := range mc.macros[hostId] {
				p = strings.ReplaceAll(p, name, value)
			}
		}
		out[i] = p
	}
	return out
}

func (mc *MacroCacheType) SyncMacros() {
	if err := mc.syncMacros(); err != nil {
		logger.Warning("failed to sync host macros:", err)
	}

	go mc.loopSyncMacros()
}

func (mc *MacroCacheType) loopSyncMacros() {
	duration := time.Duration(9000) * time.Millisecond
	for {
		time.Sleep(duration)
		if err := mc.syncMacros(); err != nil {
			logger.Warning("failed to sync host macros:", err)
		}
	}
}

func (mc *MacroCacheType) syncMacros() error {
	start := time.Now()

	stat, err := models.HostMacroStatistics(mc.ctx)
	if err != nil {
		return errors.WithMessage(err, "failed to exec HostMacroStatistics")
	}

	if !mc.StatChanged(stat.Total, stat.LastUpdated) {
		mc.stats.GaugeCronDuration.WithLabelValues("sync_host_macros").Set(0)
		mc.stats.GaugeSyncNumber.WithLabelValues("sync_host_macros").Set(0)
		return nil
	}

	lst, err := models.HostMacroGetsAll(mc.ctx)
	if err != nil {
		return errors.WithMessage(err, "failed to exec HostMacroGetsAll")
	}

	m := make(map[int64]map[string]string)
	for i := 0; i < len(lst); i++ {
		hm := lst[i]
		if _, has := m[hm.HostId]; !has {
			m[hm.HostId] = make(map[string]string)
		}
		m[hm.HostId][hm.Macro] = hm.Value
	}

	mc.Set(m, stat.Total, stat.LastUpdated)

	ms := time.Since(start).Milliseconds()
	mc.stats.GaugeCronDuration.WithLabelValues("sync_host_macros").Set(float64(ms))
	mc.stats.GaugeSyncNumber.WithLabelValues("sync_host_macros").Set(float64(len(m)))
	logger.Infof("timer: sync host macros done, cost: %dms, number: %d", ms, len(m))

	return nil
}
