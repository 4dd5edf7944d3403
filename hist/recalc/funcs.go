package recalc

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vigilab/vigil/hist/histcache"
	"github.com/vigilab/vigil/vos"
)

// Funcs evaluates the history functions a trigger expression may call,
// reading from the recent-value cache. Every function takes the item id
// first; window parameters are in seconds.
type Funcs struct {
	cache histcache.Cache
	now   func() int64
}

func NewFuncs(cache histcache.Cache) *Funcs {
	return &Funcs{
		cache: cache,
		now:   func() int64 { return time.Now().Unix() },
	}
}

func (f *Funcs) Eval(name string, itemID int64, params []string) (float64, error) {
	switch name {
	case "last":
		return f.last(itemID, params)
	case "change":
		return f.change(itemID)
	case "nodata":
		return f.nodata(itemID, params)
	case "avg", "min", "max", "sum", "count":
		return f.window(name, itemID, params)
	}
	return 0, fmt.Errorf("unknown function %s", name)
}

// last(item) or last(item, shift): shift 0 is the newest value.
func (f *Funcs) last(itemID int64, params []string) (float64, error) {
	shift := 0
	if len(params) > 0 {
		n, err := strconv.Atoi(strings.TrimSpace(params[0]))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("last(%d): bad shift %q", itemID, params[0])
		}
		shift = n
	}

	p, ok := f.cache.Last(itemID, shift)
	if !ok {
		return 0, fmt.Errorf("last(%d): not enough data", itemID)
	}
	return p.Value, nil
}

// change(item): difference between the two newest values.
func (f *Funcs) change(itemID int64) (float64, error) {
	cur, ok := f.cache.Last(itemID, 0)
	if !ok {
		return 0, fmt.Errorf("change(%d): not enough data", itemID)
	}
	prev, ok := f.cache.Last(itemID, 1)
	if !ok {
		return 0, fmt.Errorf("change(%d): not enough data", itemID)
	}
	return cur.Value - prev.Value, nil
}

// nodata(item, seconds): 1 when the item produced nothing inside the
// window. The only function that succeeds on an empty cache, which is the
// whole point of it.
func (f *Funcs) nodata(itemID int64, params []string) (float64, error) {
	if len(params) == 0 {
		return 0, fmt.Errorf("nodata(%d): missing window parameter", itemID)
	}

	seconds, err := parseSeconds(params[0])
	if err != nil {
		return 0, fmt.Errorf("nodata(%d): %v", itemID, err)
	}

	if p, ok := f.cache.Last(itemID, 0); ok && p.Ts >= f.now()-seconds {
		return 0, nil
	}
	return 1, nil
}

func (f *Funcs) window(name string, itemID int64, params []string) (float64, error) {
	if len(params) == 0 {
		return 0, fmt.Errorf("%s(%d): missing window parameter", name, itemID)
	}

	seconds, err := parseSeconds(params[0])
	if err != nil {
		return 0, fmt.Errorf("%s(%d): %v", name, itemID, err)
	}

	points := f.cache.Get(itemID, f.now()-seconds)

	if name == "count" {
		return f.count(itemID, points, params[1:])
	}

	if len(points) == 0 {
		return 0, fmt.Errorf("%s(%d): no data in the last %ds", name, itemID, seconds)
	}

	switch name {
	case "avg":
		sum := 0.0
		for _, p := range points {
			sum += p.Value
		}
		return sum / float64(len(points)), nil
	case "min":
		m := points[0].Value
		for _, p := range points[1:] {
			if p.Value < m {
				m = p.Value
			}
		}
		return m, nil
	case "max":
		m := points[0].Value
		for _, p := range points[1:] {
			if p.Value > m {
				m = p.Value
			}
		}
		return m, nil
	case "sum":
		sum := 0.0
		for _, p := range points {
			sum += p.Value
		}
		return sum, nil
	}
	return 0, fmt.Errorf("unknown window function %s", name)
}

// count(item, seconds) or count(item, seconds, op, threshold) with op in
// eq/ne/gt/ge/lt/le.
func (f *Funcs) count(itemID int64, points []vos.HPoint, params []string) (float64, error) {
	if len(params) == 0 {
		return float64(len(points)), nil
	}

	if len(params) < 2 {
		return 0, fmt.Errorf("count(%d): operator without threshold", itemID)
	}

	threshold, err := strconv.ParseFloat(strings.TrimSpace(params[1]), 64)
	if err != nil {
		return 0, fmt.Errorf("count(%d): bad threshold %q", itemID, params[1])
	}

	var match func(v float64) bool
	switch params[0] {
	case "eq":
		match = func(v float64) bool { return v == threshold }
	case "ne":
		match = func(v float64) bool { return v != threshold }
	case "gt":
		match = func(v float64) bool { return v > threshold }
	case "ge":
		match = func(v float64) bool { return v >= threshold }
	case "lt":
		match = func(v float64) bool { return v < threshold }
	case "le":
		match = func(v float64) bool { return v <= threshold }
	default:
		return 0, fmt.Errorf("count(%d): unknown operator %q", itemID, params[0])
	}

	n := 0
	for _, p := range points {
		if match(p.Value) {
			n++
		}
	}
	return float64(n), nil
}

func parseSeconds(s string) (int64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "s"))
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bad window %q", s)
	}
	return n, nil
}
