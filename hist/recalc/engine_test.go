package recalc

import (
	"testing"

	"github.com/vigilab/vigil/hist/histcache"
	"github.com/vigilab/vigil/hist/hstats"
	"github.com/vigilab/vigil/models"
	"github.com/vigilab/vigil/vos"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStats = hstats.NewSyncStats()

type fakeTriggerIndex struct {
	triggers map[int64]*models.Trigger
	index    map[int64][]int64 // item id -> trigger ids
	deps     map[int64][]int64 // trigger id -> master ids
}

func (f *fakeTriggerIndex) Get(id int64) (*models.Trigger, bool) {
	t, has := f.triggers[id]
	return t, has
}

func (f *fakeTriggerIndex) GetByItemIds(ids []int64) []*models.Trigger {
	var lst []*models.Trigger
	for _, id := range ids {
		for _, tid := range f.index[id] {
			if t, has := f.triggers[tid]; has {
				lst = append(lst, t)
			}
		}
	}
	return lst
}

func (f *fakeTriggerIndex) Masters(id int64) []int64 {
	return f.deps[id]
}

type fakeItemIndex struct {
	items map[int64]*models.Item
}

func (f *fakeItemIndex) Get(id int64) (*models.Item, bool) {
	item, has := f.items[id]
	return item, has
}

type fakeMacros struct{}

func (fakeMacros) ExpandParams(params []string, hostIds []int64) []string {
	return params
}

func newTestEngine(tix *fakeTriggerIndex, cache histcache.Cache, now int64) *Engine {
	f := NewFuncs(cache)
	f.now = func() int64 { return now }
	items := &fakeItemIndex{items: map[int64]*models.Item{
		1001: {Id: 1001, HostId: 10},
		1002: {Id: 1002, HostId: 10},
	}}
	return NewEngine("0", tix, items, fakeMacros{}, f, NewExprCache(128), NewLocks(), testStats)
}

func TestRecalcProblemTransition(t *testing.T) {
	tix := &fakeTriggerIndex{
		triggers: map[int64]*models.Trigger{
			1: {Id: 1, Name: "cpu high", Expression: "last(1001) > 90",
				Value: models.TriggerValueOK, Severity: 3},
		},
		index: map[int64][]int64{1001: {1}},
	}

	cache := histcache.NewMemoryCache(3600)
	cache.Put(1001, vos.HPoint{Ts: 995, Value: 95})

	e := newTestEngine(tix, cache, 1000)
	res, skipped := e.Recalc([]int64{1001}, nil, 1000)

	assert.Zero(t, skipped)
	require.Len(t, res.Diffs, 1)
	assert.Equal(t, int64(1), res.Diffs[0].TriggerId)
	assert.Equal(t, models.TriggerValueProblem, res.Diffs[0].Value)
	assert.Empty(t, res.Diffs[0].Error)
	assert.Equal(t, int64(1000), res.Diffs[0].LastChange)

	require.Len(t, res.Events, 1)
	assert.Equal(t, models.EventSourceTrigger, res.Events[0].Source)
	assert.Equal(t, models.TriggerValueProblem, res.Events[0].Value)
	assert.Equal(t, 3, res.Events[0].Severity)

	assert.Equal(t, 3, res.MaxSeverity)
	assert.Equal(t, models.TriggerValueProblem, tix.triggers[1].Value)
}

func TestRecalcUnknownOnEvalError(t *testing.T) {
	tix := &fakeTriggerIndex{
		triggers: map[int64]*models.Trigger{
			1: {Id: 1, Expression: "last(1001) > 90", Value: models.TriggerValueOK},
		},
		index: map[int64][]int64{1001: {1}},
	}

	e := newTestEngine(tix, histcache.NewMemoryCache(3600), 1000)
	res, _ := e.Recalc([]int64{1001}, nil, 1000)

	require.Len(t, res.Diffs, 1)
	assert.Equal(t, models.TriggerValueUnknown, res.Diffs[0].Value)
	assert.NotEmpty(t, res.Diffs[0].Error)

	// OK -> UNKNOWN emits an internal event only
	require.Len(t, res.Events, 1)
	assert.Equal(t, models.EventSourceInternal, res.Events[0].Source)
}

func TestRecalcHeartbeatDiff(t *testing.T) {
	tix := &fakeTriggerIndex{
		triggers: map[int64]*models.Trigger{
			1: {Id: 1, Expression: "last(1001) > 90", Value: models.TriggerValueOK},
		},
		index: map[int64][]int64{1001: {1}},
	}

	cache := histcache.NewMemoryCache(3600)
	cache.Put(1001, vos.HPoint{Ts: 995, Value: 10})

	e := newTestEngine(tix, cache, 1000)
	res, _ := e.Recalc([]int64{1001}, nil, 1000)

	// value unchanged: still one diff, zero events, no last change bump
	require.Len(t, res.Diffs, 1)
	assert.Equal(t, models.TriggerValueOK, res.Diffs[0].Value)
	assert.Zero(t, res.Diffs[0].LastChange)
	assert.Empty(t, res.Events)
}

func TestRecalcRecoveryModes(t *testing.T) {
	cache := histcache.NewMemoryCache(3600)
	cache.Put(1001, vos.HPoint{Ts: 995, Value: 50})

	t.Run("none stays problem", func(t *testing.T) {
		tix := &fakeTriggerIndex{
			triggers: map[int64]*models.Trigger{
				1: {Id: 1, Expression: "last(1001) > 90", Value: models.TriggerValueProblem,
					RecoveryMode: models.RecoveryModeNone},
			},
			index: map[int64][]int64{1001: {1}},
		}
		e := newTestEngine(tix, cache, 1000)
		res, _ := e.Recalc([]int64{1001}, nil, 1000)

		require.Len(t, res.Diffs, 1)
		assert.Equal(t, models.TriggerValueProblem, res.Diffs[0].Value)
		assert.Empty(t, res.Events)
	})

	t.Run("expression recovers", func(t *testing.T) {
		tix := &fakeTriggerIndex{
			triggers: map[int64]*models.Trigger{
				1: {Id: 1, Expression: "last(1001) > 90", Value: models.TriggerValueProblem,
					RecoveryMode: models.RecoveryModeExpression},
			},
			index: map[int64][]int64{1001: {1}},
		}
		e := newTestEngine(tix, cache, 1000)
		res, _ := e.Recalc([]int64{1001}, nil, 1000)

		require.Len(t, res.Diffs, 1)
		assert.Equal(t, models.TriggerValueOK, res.Diffs[0].Value)
		require.Len(t, res.Events, 1)
		assert.Equal(t, models.EventSourceTrigger, res.Events[0].Source)
	})

	t.Run("recovery expression still firing", func(t *testing.T) {
		tix := &fakeTriggerIndex{
			triggers: map[int64]*models.Trigger{
				1: {Id: 1, Expression: "last(1001) > 90", Value: models.TriggerValueProblem,
					RecoveryMode:       models.RecoveryModeRecoveryExpression,
					RecoveryExpression: "last(1001) > 40"},
			},
			index: map[int64][]int64{1001: {1}},
		}
		e := newTestEngine(tix, cache, 1000)
		res, _ := e.Recalc([]int64{1001}, nil, 1000)

		// recovery expression is non-zero, the problem stands
		require.Len(t, res.Diffs, 1)
		assert.Equal(t, models.TriggerValueProblem, res.Diffs[0].Value)
	})

	t.Run("recovery expression clears", func(t *testing.T) {
		tix := &fakeTriggerIndex{
			triggers: map[int64]*models.Trigger{
				1: {Id: 1, Expression: "last(1001) > 90", Value: models.TriggerValueProblem,
					RecoveryMode:       models.RecoveryModeRecoveryExpression,
					RecoveryExpression: "last(1001) > 60"},
			},
			index: map[int64][]int64{1001: {1}},
		}
		e := newTestEngine(tix, cache, 1000)
		res, _ := e.Recalc([]int64{1001}, nil, 1000)

		require.Len(t, res.Diffs, 1)
		assert.Equal(t, models.TriggerValueOK, res.Diffs[0].Value)
	})
}

func TestRecalcMasterOverride(t *testing.T) {
	tix := &fakeTriggerIndex{
		triggers: map[int64]*models.Trigger{
			1: {Id: 1, Expression: "last(1002) > 0", Value: models.TriggerValueProblem},
			2: {Id: 2, Expression: "last(1001) > 90", Value: models.TriggerValueOK},
		},
		index: map[int64][]int64{1001: {2}},
		deps:  map[int64][]int64{2: {1}},
	}

	cache := histcache.NewMemoryCache(3600)
	cache.Put(1001, vos.HPoint{Ts: 995, Value: 10})

	e := newTestEngine(tix, cache, 1000)
	res, _ := e.Recalc([]int64{1001}, nil, 1000)

	require.Len(t, res.Diffs, 1)
	assert.Equal(t, models.TriggerValueUnknown, res.Diffs[0].Value)
	assert.Equal(t, "There are master trigger(s) in PROBLEM or UNKNOWN state", res.Diffs[0].Error)
}

func TestRecalcMasterDecidedInSamePass(t *testing.T) {
	// both triggers fire on the same item; the master sorts first via the
	// topology index and its fresh PROBLEM blocks the dependent
	tix := &fakeTriggerIndex{
		triggers: map[int64]*models.Trigger{
			1: {Id: 1, Expression: "last(1001) > 90", Value: models.TriggerValueOK, TopoIndex: 0},
			2: {Id: 2, Expression: "last(1001) > 90", Value: models.TriggerValueOK, TopoIndex: 1},
		},
		index: map[int64][]int64{1001: {1, 2}},
		deps:  map[int64][]int64{2: {1}},
	}

	cache := histcache.NewMemoryCache(3600)
	cache.Put(1001, vos.HPoint{Ts: 995, Value: 95})

	e := newTestEngine(tix, cache, 1000)
	res, _ := e.Recalc([]int64{1001}, nil, 1000)

	require.Len(t, res.Diffs, 2)
	assert.Equal(t, models.TriggerValueProblem, res.Diffs[0].Value)
	assert.Equal(t, models.TriggerValueUnknown, res.Diffs[1].Value)
}

func TestRecalcDedupAndSorted(t *testing.T) {
	tix := &fakeTriggerIndex{
		triggers: map[int64]*models.Trigger{
			3: {Id: 3, Expression: "last(1002) > 90", Value: models.TriggerValueOK},
			5: {Id: 5, Expression: "last(1001) > 0 || last(1002) > 0", Value: models.TriggerValueOK},
		},
		index: map[int64][]int64{1001: {5}, 1002: {3, 5}},
	}

	cache := histcache.NewMemoryCache(3600)
	cache.Put(1001, vos.HPoint{Ts: 995, Value: 1})
	cache.Put(1002, vos.HPoint{Ts: 995, Value: 1})

	e := newTestEngine(tix, cache, 1000)
	res, _ := e.Recalc([]int64{1001, 1002}, nil, 1000)

	// trigger 5 referenced by both items is evaluated once
	assert.Equal(t, 2, res.Triggers)
	require.Len(t, res.Diffs, 2)
	assert.Equal(t, int64(3), res.Diffs[0].TriggerId)
	assert.Equal(t, int64(5), res.Diffs[1].TriggerId)
}

func TestRecalcEmptyExpressionSkipped(t *testing.T) {
	tix := &fakeTriggerIndex{
		triggers: map[int64]*models.Trigger{
			1: {Id: 1, Expression: "", Value: models.TriggerValueOK},
		},
		index: map[int64][]int64{1001: {1}},
	}

	e := newTestEngine(tix, histcache.NewMemoryCache(3600), 1000)
	res, _ := e.Recalc([]int64{1001}, nil, 1000)
	assert.Empty(t, res.Diffs)
}

func TestRecalcProblemGenMultiple(t *testing.T) {
	tix := &fakeTriggerIndex{
		triggers: map[int64]*models.Trigger{
			1: {Id: 1, Expression: "last(1001) > 90", Value: models.TriggerValueProblem,
				ProblemGen: models.ProblemGenMultiple, Severity: 2},
		},
		index: map[int64][]int64{1001: {1}},
	}

	cache := histcache.NewMemoryCache(3600)
	cache.Put(1001, vos.HPoint{Ts: 995, Value: 95})

	e := newTestEngine(tix, cache, 1000)
	res, _ := e.Recalc([]int64{1001}, nil, 1000)

	// PROBLEM -> PROBLEM re-fires in multiple-problem mode
	require.Len(t, res.Events, 1)
	assert.Equal(t, models.EventSourceTrigger, res.Events[0].Source)
}

func TestRecalcTimerDriven(t *testing.T) {
	tix := &fakeTriggerIndex{
		triggers: map[int64]*models.Trigger{
			7: {Id: 7, Expression: "nodata(1001, 300) == 1", Value: models.TriggerValueOK},
		},
		index: map[int64][]int64{},
	}

	e := newTestEngine(tix, histcache.NewMemoryCache(3600), 1000)
	res, _ := e.Recalc(nil, []int64{7}, 1000)

	require.Len(t, res.Diffs, 1)
	assert.Equal(t, models.TriggerValueProblem, res.Diffs[0].Value)
}

func TestRecalcLockedElsewhereSkipped(t *testing.T) {
	tix := &fakeTriggerIndex{
		triggers: map[int64]*models.Trigger{
			1: {Id: 1, Expression: "last(1001) > 90", Value: models.TriggerValueOK},
		},
		index: map[int64][]int64{1001: {1}},
	}

	e := newTestEngine(tix, histcache.NewMemoryCache(3600), 1000)
	e.locks.TryLock([]int64{1})

	res, skipped := e.Recalc([]int64{1001}, nil, 1000)
	assert.Equal(t, 1, skipped)
	assert.Empty(t, res.Diffs)
}

func TestEventsForTable(t *testing.T) {
	tests := []struct {
		prev, value  int
		problemGen   int
		wantTrigger  bool
		wantInternal bool
	}{
		{models.TriggerValueOK, models.TriggerValueOK, models.ProblemGenSingle, false, false},
		{models.TriggerValueOK, models.TriggerValueUnknown, models.ProblemGenSingle, false, true},
		{models.TriggerValueOK, models.TriggerValueProblem, models.ProblemGenSingle, true, false},
		{models.TriggerValueUnknown, models.TriggerValueOK, models.ProblemGenSingle, true, true},
		{models.TriggerValueUnknown, models.TriggerValueUnknown, models.ProblemGenSingle, false, false},
		{models.TriggerValueUnknown, models.TriggerValueProblem, models.ProblemGenSingle, true, true},
		{models.TriggerValueProblem, models.TriggerValueOK, models.ProblemGenSingle, true, false},
		{models.TriggerValueProblem, models.TriggerValueUnknown, models.ProblemGenSingle, false, true},
		{models.TriggerValueProblem, models.TriggerValueProblem, models.ProblemGenSingle, false, false},
		{models.TriggerValueProblem, models.TriggerValueProblem, models.ProblemGenMultiple, true, false},
	}

	for _, tt := range tests {
		gotTrigger, gotInternal := eventsFor(tt.prev, tt.value, tt.problemGen)
		assert.Equal(t, tt.wantTrigger, gotTrigger, "trigger event for %d->%d", tt.prev, tt.value)
		assert.Equal(t, tt.wantInternal, gotInternal, "internal event for %d->%d", tt.prev, tt.value)
	}
}
