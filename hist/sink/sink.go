// Package sink is the persistence edge of the flush pipeline. Everything a
// sync iteration produced is written through one Batch inside one database
// transaction, so a crash never leaves half a flush behind.
package sink

import (
	"github.com/vigilab/vigil/hist/norm"
	"github.com/vigilab/vigil/models"
	"github.com/vigilab/vigil/vos"
)

// Batch collects the writes of one sync iteration.
type Batch struct {
	Floats []*models.HistoryFloat
	Uints  []*models.HistoryUint
	Texts  []*models.HistoryText

	TrendFloats []*models.TrendFloat
	TrendUints  []*models.TrendUint

	Events       []*models.Event
	TriggerDiffs []TriggerDiff
	ItemChanges  []norm.StateChange
}

// TriggerDiff is one trigger row update decided by the recalculation engine.
// It is written even when the value did not change, LastChange and Error
// must track every evaluation. Old value and error ride along for consumers
// that act on the transition rather than the end state.
type TriggerDiff struct {
	TriggerId  int64
	OldValue   int
	Value      int
	OldError   string
	Error      string
	Severity   int
	LastChange int64
}

func (b *Batch) Empty() bool {
	return len(b.Floats) == 0 && len(b.Uints) == 0 && len(b.Texts) == 0 &&
		len(b.TrendFloats) == 0 && len(b.TrendUints) == 0 &&
		len(b.Events) == 0 && len(b.TriggerDiffs) == 0 &&
		len(b.ItemChanges) == 0
}

// AddSample appends a storable sample to the matching history table.
func (b *Batch) AddSample(s *vos.Sample) {
	switch s.Value.Kind {
	case vos.ValueTypeFloat:
		b.Floats = append(b.Floats, &models.HistoryFloat{
			ItemId: s.ItemID,
			Clock:  s.Sec,
			Ns:     s.Ns,
			Value:  s.Value.F64,
		})
	case vos.ValueTypeUint64:
		b.Uints = append(b.Uints, &models.HistoryUint{
			ItemId: s.ItemID,
			Clock:  s.Sec,
			Ns:     s.Ns,
			Value:  s.Value.U64,
		})
	case vos.ValueTypeStr, vos.ValueTypeText, vos.ValueTypeLog:
		b.Texts = append(b.Texts, &models.HistoryText{
			ItemId: s.ItemID,
			Clock:  s.Sec,
			Ns:     s.Ns,
			Value:  s.Value.Text(),
		})
	}
}

// Sink commits batches. Commit returns ErrTransientDown when the store is
// temporarily unreachable and the same batch may be retried as is.
type Sink interface {
	Commit(b *Batch) error
}
