package models

import (
	"github.com/vigilab/vigil/pkg/ctx"
	"github.com/vigilab/vigil/vos"
)

const (
	ItemStatusEnabled  = 0
	ItemStatusDisabled = 1
)

type Item struct {
	Id          int64  `json:"id" gorm:"primaryKey"`
	HostId      int64  `json:"host_id"`
	ItemKey     string `json:"item_key"`
	Name        string `json:"name"`
	ValueType   uint8  `json:"value_type"`
	Status      int    `json:"status"`
	State       uint8  `json:"state"`
	Error       string `json:"error"`
	KeepHistory int    `json:"keep_history"`
	KeepTrends  int    `json:"keep_trends"`
	UpdateAt    int64  `json:"update_at"`
}

func (Item) TableName() string {
	return "item"
}

func (i *Item) Type() vos.ValueType {
	return vos.ValueType(i.ValueType)
}

func ItemGetsAll(ctx *ctx.Context) ([]*Item, error) {
	var lst []*Item
	err := DB(ctx).Find(&lst).Error
	return lst, err
}

func ItemStatistics(ctx *ctx.Context) (*Statistics, error) {
	return StatisticsGet(ctx, &Item{})
}

// ItemUpdateState records a state flip (supported <-> not supported)
// together with the last conversion error, so the UI can surface why an
// item stopped producing history.
func ItemUpdateState(ctx *ctx.Context, id int64, state uint8, errmsg string) error {
	if len(errmsg) > vos.StrLenMax {
		errmsg = errmsg[:vos.StrLenMax]
	}
	return DB(ctx).Model(&Item{}).Where("id = ?", id).
		Updates(map[string]interface{}{"state": state, "error": errmsg}).Error
}
