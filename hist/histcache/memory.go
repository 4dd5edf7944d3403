package histcache

import (
	"container/list"
	"sync"
	"time"

	"github.com/vigilab/vigil/vos"
)

const memoryBuckets = 128

// SafeLinkedList holds the recent points of one item, newest at the front.
type SafeLinkedList struct {
	sync.RWMutex
	L *list.List
}

func NewSafeLinkedList() *SafeLinkedList {
	return &SafeLinkedList{L: list.New()}
}

func (ll *SafeLinkedList) Len() int {
	ll.RLock()
	defer ll.RUnlock()
	return ll.L.Len()
}

// PushFrontAndMaintain inserts a point and drops everything older than the
// retention window. Points at or before the newest timestamp are duplicates
// or clock skew and get discarded.
func (ll *SafeLinkedList) PushFrontAndMaintain(p vos.HPoint, retention int64) {
	ll.Lock()
	defer ll.Unlock()

	if front := ll.L.Front(); front != nil {
		if p.Ts <= front.Value.(vos.HPoint).Ts {
			return
		}
	}

	ll.L.PushFront(p)

	earliest := p.Ts - retention
	for {
		back := ll.L.Back()
		if back == nil || back.Value.(vos.HPoint).Ts >= earliest {
			break
		}
		ll.L.Remove(back)
	}
}

// HistoryPoints returns the points with Ts >= since, newest first.
func (ll *SafeLinkedList) HistoryPoints(since int64) []vos.HPoint {
	ll.RLock()
	defer ll.RUnlock()

	vs := make([]vos.HPoint, 0)
	for e := ll.L.Front(); e != nil; e = e.Next() {
		p := e.Value.(vos.HPoint)
		if p.Ts < since {
			break
		}
		vs = append(vs, p)
	}
	return vs
}

func (ll *SafeLinkedList) Nth(shift int) (vos.HPoint, bool) {
	ll.RLock()
	defer ll.RUnlock()

	for e := ll.L.Front(); e != nil; e = e.Next() {
		if shift == 0 {
			return e.Value.(vos.HPoint), true
		}
		shift--
	}
	return vos.HPoint{}, false
}

// MemoryCache keeps per-item linked lists behind a two-level map so writers
// on different buckets never contend on the same lock.
type MemoryCache struct {
	retention int64
	buckets   [memoryBuckets]*cacheBucket
}

type cacheBucket struct {
	sync.RWMutex
	items map[int64]*SafeLinkedList
}

func NewMemoryCache(retention int64) *MemoryCache {
	mc := &MemoryCache{retention: retention}
	for i := 0; i < memoryBuckets; i++ {
		mc.buckets[i] = &cacheBucket{items: make(map[int64]*SafeLinkedList)}
	}
	go mc.loopSweep()
	return mc
}

func (mc *MemoryCache) bucketOf(itemID int64) *cacheBucket {
	if itemID < 0 {
		itemID = -itemID
	}
	return mc.buckets[itemID%memoryBuckets]
}

func (mc *MemoryCache) Put(itemID int64, p vos.HPoint) {
	b := mc.bucketOf(itemID)

	b.RLock()
	ll, has := b.items[itemID]
	b.RUnlock()

	if !has {
		b.Lock()
		ll, has = b.items[itemID]
		if !has {
			ll = NewSafeLinkedList()
			b.items[itemID] = ll
		}
		b.Unlock()
	}

	ll.PushFrontAndMaintain(p, mc.retention)
}

func (mc *MemoryCache) Get(itemID int64, since int64) []vos.HPoint {
	b := mc.bucketOf(itemID)

	b.RLock()
	ll, has := b.items[itemID]
	b.RUnlock()

	if !has {
		return nil
	}
	return ll.HistoryPoints(since)
}

func (mc *MemoryCache) Last(itemID int64, shift int) (vos.HPoint, bool) {
	b := mc.bucketOf(itemID)

	b.RLock()
	ll, has := b.items[itemID]
	b.RUnlock()

	if !has {
		return vos.HPoint{}, false
	}
	return ll.Nth(shift)
}

// loopSweep drops items that stopped reporting, otherwise deleted items
// would pin their lists forever.
func (mc *MemoryCache) loopSweep() {
	for {
		time.Sleep(time.Duration(mc.retention) * time.Second)

		cutoff := time.Now().Unix() - mc.retention
		for _, b := range mc.buckets {
			b.Lock()
			for id, ll := range b.items {
				if p, ok := ll.Nth(0); !ok || p.Ts < cutoff {
					delete(b.items, id)
				}
			}
			b.Unlock()
		}
	}
}
