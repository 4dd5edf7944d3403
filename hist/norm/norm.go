// Package norm turns raw poller samples into storable history values:
// it binds each sample to its item, converts the value to the item's
// declared type and decides which stores the sample may enter.
package norm

import (
	"fmt"
	"math"

	"github.com/vigilab/vigil/hist/hstats"
	"github.com/vigilab/vigil/models"
	"github.com/vigilab/vigil/vos"

	"github.com/toolkits/pkg/logger"
)

// ItemLookup is the slice of the item cache the normalizer needs.
type ItemLookup interface {
	GetByIds(ids []int64) []*models.Item
	HostActive(hostId int64) bool
}

// StateChange records one supported <-> not-supported flip observed while
// preparing a batch. The syncer persists it and emits the internal event in
// the same transaction as the batch.
type StateChange struct {
	Item  *models.Item
	State vos.ItemState
	Error string
	Clock int64
	Ns    int32
}

type Normalizer struct {
	items    ItemLookup
	floatMax float64
	stats    *hstats.Stats
}

func New(items ItemLookup, floatMax float64, stats *hstats.Stats) *Normalizer {
	return &Normalizer{
		items:    items,
		floatMax: floatMax,
		stats:    stats,
	}
}

// PrepareBatch normalizes the samples in place. The returned item slice is
// positional with the batch, nil where the sample could not be bound; the
// state changes are deduplicated per item, last flip in the batch wins.
func (n *Normalizer) PrepareBatch(samples []*vos.Sample) ([]*models.Item, []StateChange) {
	ids := make([]int64, len(samples))
	for i := range samples {
		ids[i] = samples[i].ItemID
	}

	items := n.items.GetByIds(ids)

	changes := make([]StateChange, 0)
	changeIdx := make(map[int64]int)

	for i, s := range samples {
		item := items[i]

		if item == nil {
			s.Set(vos.FlagUndef)
			n.stats.CounterSamplesDropped.WithLabelValues("unresolved").Inc()
			continue
		}

		if item.Status != models.ItemStatusEnabled || !n.items.HostActive(item.HostId) {
			s.Set(vos.FlagUndef)
			items[i] = nil
			n.stats.CounterSamplesDropped.WithLabelValues("inactive").Inc()
			continue
		}

		if item.Type() == vos.ValueTypeNone {
			// internal bookkeeping item, nothing of it is stored
			s.Set(vos.FlagNoValue | vos.FlagNoHistory | vos.FlagNoTrends)
		} else {
			if item.KeepHistory == 0 {
				s.Set(vos.FlagNoHistory)
			}
			if item.KeepTrends == 0 || !item.Type().IsNumeric() {
				s.Set(vos.FlagNoTrends)
			}
		}

		if s.Has(vos.FlagMeta) || s.Has(vos.FlagNoValue) {
			continue
		}

		if s.State == vos.ItemStateNotSupported {
			// the poller already failed the item, the error travels in the value
			s.Set(vos.FlagUndef)
			n.recordChange(&changes, changeIdx, item, s, vos.ItemStateNotSupported, s.Value.Err)
			continue
		}

		if err := n.convert(s, item); err != nil {
			s.Set(vos.FlagUndef)
			s.State = vos.ItemStateNotSupported
			s.Value = vos.ErrValue(err.Error())
			n.recordChange(&changes, changeIdx, item, s, vos.ItemStateNotSupported, err.Error())
			n.stats.CounterSamplesDropped.WithLabelValues("unconvertible").Inc()
			continue
		}

		if item.State == uint8(vos.ItemStateNotSupported) {
			n.recordChange(&changes, changeIdx, item, s, vos.ItemStateNormal, "")
		}
	}

	return items, changes
}

func (n *Normalizer) convert(s *vos.Sample, item *models.Item) error {
	vt := item.Type()
	if vt == vos.ValueTypeNone {
		return nil
	}

	v, err := s.Value.ConvertTo(vt)
	if err != nil {
		return err
	}

	if vt == vos.ValueTypeFloat && math.Abs(v.F64) >= n.floatMax {
		return fmt.Errorf("value %s is too large for item %q", vos.FormatFloat(v.F64), item.ItemKey)
	}

	s.Value = v
	return nil
}

// recordChange keeps at most one state flip per item and only when the new
// state differs from what the batch has already decided for it. The cached
// item is updated in place, so later samples of the same item and later
// batches see the flipped state before the DB round-trips it.
func (n *Normalizer) recordChange(changes *[]StateChange, idx map[int64]int, item *models.Item, s *vos.Sample, state vos.ItemState, errmsg string) {
	if j, has := idx[item.Id]; has {
		if (*changes)[j].State == state {
			return
		}
		(*changes)[j].State = state
		(*changes)[j].Error = errmsg
		(*changes)[j].Clock = s.Sec
		(*changes)[j].Ns = s.Ns
		item.State = uint8(state)
		item.Error = errmsg
		return
	}

	if item.State == uint8(state) {
		return
	}

	if state == vos.ItemStateNotSupported {
		logger.Warningf("item %q became not supported: %s", item.ItemKey, errmsg)
	} else {
		logger.Infof("item %q became supported again", item.ItemKey)
	}

	idx[item.Id] = len(*changes)
	*changes = append(*changes, StateChange{
		Item:  item,
		State: state,
		Error: errmsg,
		Clock: s.Sec,
		Ns:    s.Ns,
	})
	item.State = uint8(state)
	item.Error = errmsg
}
