package memsto

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vigilab/vigil/models"
	"github.com/vigilab/vigil/pkg/ctx"

	"github.com/pkg/errors"
	"github.com/toolkits/pkg/logger"
)

// ItemCacheType keeps the item metadata the pipeline needs for every
// incoming sample: declared value type, storage policy, owning host. It is
// read-only from the syncer's perspective and refreshed from the DB here.
type ItemCacheType struct {
	statTotal       int64
	statLastUpdated int64
	ctx             *ctx.Context
	stats           *Stats

	sync.RWMutex
	items map[int64]*models.Item // key: item id
	hosts map[int64]*models.Host // key: host id
}

func NewItemCache(ctx *ctx.Context, stats *Stats) *ItemCacheType {
	ic := &ItemCacheType{
		statTotal:       -1,
		statLastUpdated: -1,
		ctx:             ctx,
		stats:           stats,
		items:           make(map[int64]*models.Item),
		hosts:           make(map[int64]*models.Host),
	}
	ic.SyncItems()
	return ic
}

func (ic *ItemCacheType) StatChanged(total, lastUpdated int64) bool {
	if ic.statTotal == total && ic.statLastUpdated == lastUpdated {
		return false
	}

	return true
}

func (ic *ItemCacheType) Set(items map[int64]*models.Item, hosts map[int64]*models.Host, total, lastUpdated int64) {
	ic.Lock()
	ic.items = items
	ic.hosts = hosts
	ic.Unlock()

	// only one goroutine used, so no need lock
	ic.statTotal = total
	ic.statLastUpdated = lastUpdated
}

func (ic *ItemCacheType) Get(itemId int64) (*models.Item, bool) {
	ic.RLock()
	defer ic.RUnlock()
	item, has := ic.items[itemId]
	return item, has
}

// GetByIds is the batch lookup the normalizer drives: the returned slice is
// positional, a nil entry means the id could not be resolved.
func (ic *ItemCacheType) GetByIds(ids []int64) []*models.Item {
	ic.RLock()
	defer ic.RUnlock()

	lst := make([]*models.Item, len(ids))
	for i := range ids {
		lst[i] = ic.items[ids[i]]
	}
	return lst
}

func (ic *ItemCacheType) GetHost(hostId int64) (*models.Host, bool) {
	ic.RLock()
	defer ic.RUnlock()
	host, has := ic.hosts[hostId]
	return host, has
}

// HostActive reports whether the owning host of an item is still monitored.
func (ic *ItemCacheType) HostActive(hostId int64) bool {
	ic.RLock()
	defer ic.RUnlock()
	host, has := ic.hosts[hostId]
	return has && host.Status == models.HostStatusMonitored
}

func (ic *ItemCacheType) SyncItems() {
	err := ic.syncItems()
	if err != nil {
		fmt.Println("failed to sync items:", err)
		os.Exit(1)
	}

	go ic.loopSyncItems()
}

func (ic *ItemCacheType) loopSyncItems() {
	duration := time.Duration(9000) * time.Millisecond
	for {
		time.Sleep(duration)
		if err := ic.syncItems(); err != nil {
			logger.Warning("failed to sync items:", err)
		}
	}
}

func (ic *ItemCacheType) syncItems() error {
	start := time.Now()

	stat, err := models.ItemStatistics(ic.ctx)
	if err != nil {
		return errors.WithMessage(err, "failed to exec ItemStatistics")
	}

	if !ic.StatChanged(stat.Total, stat.LastUpdated) {
		ic.stats.GaugeCronDuration.WithLabelValues("sync_items").Set(0)
		ic.stats.GaugeSyncNumber.WithLabelValues("sync_items").Set(0)
		return nil
	}

	lst, err := models.ItemGetsAll(ic.ctx)
	if err != nil {
		return errors.WithMessage(err, "failed to exec ItemGetsAll")
	}

	hostLst, err := models.HostGetsAll(ic.ctx)
	if err != nil {
		return errors.WithMessage(err, "failed to exec HostGetsAll")
	}

	items := make(map[int64]*models.Item, len(lst))
	for i := 0; i < len(lst); i++ {
		items[lst[i].Id] = lst[i]
	}

	hosts := make(map[int64]*models.Host, len(hostLst))
	for i := 0; i < len(hostLst); i++ {
		hosts[hostLst[i].Id] = hostLst[i]
	}

	ic.Set(items, hosts, stat.Total, stat.LastUpdated)

	ms := time.Since(start).Milliseconds()
	ic.stats.GaugeCronDuration.WithLabelValues("sync_items").Set(float64(ms))
	ic.stats.GaugeSyncNumber.WithLabelValues("sync_items").Set(float64(len(items)))
	logger.Infof("timer: sync items done, cost: %dms, number: %d", ms, len(items))

	return nil
}
