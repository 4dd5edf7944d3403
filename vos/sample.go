package vos

type ItemState uint8

const (
	ItemStateNormal ItemState = iota
	ItemStateNotSupported
)

// Sample flags. A sample carrying FlagUndef failed item resolution or type
// conversion and must never reach the history or trend stores.
const (
	FlagMeta uint8 = 1 << iota // only log position metadata, no value
	FlagNoValue
	FlagLLD
	FlagUndef
	FlagNoHistory
	FlagNoTrends
)

// Sample is one observed metric value as handed over by the pollers.
// A batch of samples is owned exclusively by the syncer for the duration
// of one flush cycle.
type Sample struct {
	ItemID int64
	Value  Value
	Sec    int64
	Ns     int32
	State  ItemState
	Flags  uint8
}

func (s *Sample) Has(flag uint8) bool { return s.Flags&flag != 0 }
func (s *Sample) Set(flag uint8)      { s.Flags |= flag }

// Storable reports whether the sample may be folded into the given store.
func (s *Sample) Storable(noStoreFlag uint8) bool {
	return s.Flags&(noStoreFlag|FlagUndef|FlagNoValue) == 0
}

// HPoint is one historical value as kept by the recent-value cache and
// consumed by the trigger functions.
type HPoint struct {
	Ts    int64
	Value float64
}
