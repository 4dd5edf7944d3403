package trend

import (
	"testing"

	"github.com/vigilab/vigil/hist/hstats"
	"github.com/vigilab/vigil/pkg/strpool"
	"github.com/vigilab/vigil/vos"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStats = hstats.NewSyncStats()

func floatSample(itemID int64, sec int64, v float64) *vos.Sample {
	return &vos.Sample{ItemID: itemID, Value: vos.FloatValue(v), Sec: sec}
}

func uintSample(itemID int64, sec int64, v uint64) *vos.Sample {
	return &vos.Sample{ItemID: itemID, Value: vos.Uint64Value(v), Sec: sec}
}

func newAccumulator(ttl int64) *Accumulator {
	return NewAccumulator(ttl, strpool.New(), testStats)
}

func TestAccountSameHour(t *testing.T) {
	a := newAccumulator(2 * 86400)
	hour := int64(3600 * 1000)

	a.Account(floatSample(1, hour, 10.0), "cpu.idle", "web01")
	a.Account(floatSample(1, hour+10, 20.0), "cpu.idle", "web01")

	// nothing finished yet
	floats, uints := a.TakeExports(hour + 20)
	assert.Empty(t, floats)
	assert.Empty(t, uints)

	// next hour closes the entry
	a.Account(floatSample(1, hour+3600, 30.0), "cpu.idle", "web01")

	floats, _ = a.TakeExports(hour + 3600)
	require.Len(t, floats, 1)
	assert.Equal(t, int64(1), floats[0].ItemId)
	assert.Equal(t, hour, floats[0].Clock)
	assert.Equal(t, 2, floats[0].Num)
	assert.Equal(t, 10.0, floats[0].ValueMin)
	assert.Equal(t, 20.0, floats[0].ValueMax)
	assert.Equal(t, 15.0, floats[0].ValueAvg)

	// the rollup carries the names the entry was opened with
	assert.Equal(t, "cpu.idle", floats[0].ItemKey)
	assert.Equal(t, "web01", floats[0].HostName)
}

func TestAccountHourRollover(t *testing.T) {
	a := newAccumulator(2 * 86400)
	hour := int64(3600 * 2000)

	a.Account(floatSample(1, hour, 5.0), "cpu.idle", "web01")
	a.Account(floatSample(1, hour+3600, 7.0), "cpu.idle", "web01")

	floats, _ := a.TakeExports(hour + 3600)
	require.Len(t, floats, 1)
	assert.Equal(t, hour, floats[0].Clock)
	assert.Equal(t, 1, floats[0].Num)
	assert.Equal(t, 5.0, floats[0].ValueMin)
	assert.Equal(t, 5.0, floats[0].ValueMax)
	assert.Equal(t, 5.0, floats[0].ValueAvg)

	// the new hour keeps accumulating
	a.Account(floatSample(1, hour+2*3600, 1.0), "cpu.idle", "web01")
	floats, _ = a.TakeExports(hour + 2*3600)
	require.Len(t, floats, 1)
	assert.Equal(t, hour+3600, floats[0].Clock)
	assert.Equal(t, 7.0, floats[0].ValueAvg)
}

func TestAccountTypeChange(t *testing.T) {
	a := newAccumulator(2 * 86400)
	hour := int64(3600 * 3000)

	a.Account(floatSample(1, hour, 5.0), "cpu.idle", "web01")
	a.Account(uintSample(1, hour+10, 9), "cpu.idle", "web01")

	// type flip exported the float entry mid-hour
	floats, uints := a.TakeExports(hour + 20)
	require.Len(t, floats, 1)
	assert.Equal(t, 5.0, floats[0].ValueAvg)
	assert.Empty(t, uints)

	a.Account(uintSample(1, hour+3600, 11), "cpu.idle", "web01")
	_, uints = a.TakeExports(hour + 3600)
	require.Len(t, uints, 1)
	assert.Equal(t, uint64(9), uints[0].ValueMin)
	assert.Equal(t, uint64(9), uints[0].ValueMax)
	assert.Equal(t, 9.0, uints[0].ValueAvg)
}

func TestNonNumericIgnored(t *testing.T) {
	a := newAccumulator(2 * 86400)

	a.Account(&vos.Sample{ItemID: 1, Value: vos.StrValue("up"), Sec: 3600}, "status", "web01")
	assert.Equal(t, 0, a.Len())
}

func TestSweepEvictsIdleItems(t *testing.T) {
	ttl := int64(2 * 86400)
	a := newAccumulator(ttl)
	hour := int64(3600 * 4000)

	a.Account(floatSample(1, hour, 5.0), "cpu.idle", "web01")
	assert.Equal(t, 1, a.Len())

	// beyond the TTL: the sweep drops the entry, the partial hour is
	// discarded without an export
	floats, _ := a.TakeExports(hour + ttl + 3600)
	assert.Empty(t, floats)
	assert.Equal(t, 0, a.Len())

	// afterwards the item is indistinguishable from one that never reported
	a.Account(floatSample(1, hour+ttl+7200, 9.0), "cpu.idle", "web01")
	assert.Equal(t, 1, a.Len())
	floats, _ = a.TakeExports(hour + ttl + 7200)
	assert.Empty(t, floats)
}

func TestEmptyEntryExportsNothing(t *testing.T) {
	a := newAccumulator(2 * 86400)
	hour := int64(3600 * 5000)

	a.Account(floatSample(1, hour, 5.0), "cpu.idle", "web01")
	a.Account(floatSample(1, hour+3600, 7.0), "cpu.idle", "web01")
	a.TakeExports(hour + 3600)

	// the already-exported entry holds count 0 for hour H, a second export
	// trigger for it must be a no-op
	a.items[1].num = 0
	a.export(1, a.items[1])
	floats, uints := a.TakeExports(hour + 3600)
	assert.Empty(t, floats)
	assert.Empty(t, uints)
}
