package queue

import (
	"fmt"
	"time"

	"github.com/vigilab/vigil/hist/hstats"
	"github.com/vigilab/vigil/vos"

	"github.com/toolkits/pkg/container/list"
)

// Queues holds one bounded sample queue per sync shard. An item id always
// maps to the same shard, which is what lets the per-shard trend
// accumulator run without a lock.
type Queues struct {
	shards []*list.SafeListLimited
}

func New(shards, maxSize int) *Queues {
	q := &Queues{
		shards: make([]*list.SafeListLimited, shards),
	}
	for i := 0; i < shards; i++ {
		q.shards[i] = list.NewSafeListLimited(maxSize)
	}
	return q
}

func (q *Queues) Shards() int {
	return len(q.shards)
}

func (q *Queues) shardOf(itemID int64) int {
	if itemID < 0 {
		itemID = -itemID
	}
	return int(itemID % int64(len(q.shards)))
}

// Push routes one sample to its shard. Returns false when the shard queue
// is full; the caller decides whether to drop or backpressure.
func (q *Queues) Push(s *vos.Sample) bool {
	return q.shards[q.shardOf(s.ItemID)].PushFront(s)
}

func (q *Queues) PushBatch(samples []*vos.Sample) int {
	dropped := 0
	for _, s := range samples {
		if !q.Push(s) {
			dropped++
		}
	}
	return dropped
}

// PopBatch drains at most max samples from one shard, oldest first.
func (q *Queues) PopBatch(shard, max int) []*vos.Sample {
	raw := q.shards[shard].PopBackBy(max)
	if len(raw) == 0 {
		return nil
	}

	samples := make([]*vos.Sample, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(*vos.Sample); ok {
			samples = append(samples, s)
		}
	}
	return samples
}

func (q *Queues) Len(shard int) int {
	return q.shards[shard].Len()
}

func ReportQueueSize(q *Queues, stats *hstats.Stats) {
	for {
		time.Sleep(time.Second)

		for i := 0; i < q.Shards(); i++ {
			stats.GaugeQueueSize.WithLabelValues(fmt.Sprint(i)).Set(float64(q.Len(i)))
		}
	}
}
