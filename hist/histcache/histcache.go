// Package histcache keeps the most recent numeric values per item, the
// window trigger functions evaluate over. It is fed by the syncer with
// already-normalized samples and read by the recalculation engine, so a
// trigger always sees the values of the batch currently being flushed.
package histcache

import (
	"github.com/vigilab/vigil/vos"
)

type Cache interface {
	// Put records one numeric point for an item.
	Put(itemID int64, p vos.HPoint)

	// Get returns the points with Ts >= since, newest first.
	Get(itemID int64, since int64) []vos.HPoint

	// Last returns the shift-th newest point (shift 0 is the newest).
	Last(itemID int64, shift int) (vos.HPoint, bool)
}
