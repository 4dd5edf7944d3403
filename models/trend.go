package models

import (
	"github.com/vigilab/vigil/pkg/ctx"
)

// TrendFloat is one exported hourly rollup of a float item. ItemKey and
// HostName are stamped at export time so consumers see the names the item
// carried when the hour closed, not the ones it has when they read.
type TrendFloat struct {
	ItemId   int64   `json:"item_id" gorm:"primaryKey"`
	Clock    int64   `json:"clock" gorm:"primaryKey"`
	Num      int     `json:"num"`
	ValueMin float64 `json:"value_min"`
	ValueAvg float64 `json:"value_avg"`
	ValueMax float64 `json:"value_max"`
	ItemKey  string  `json:"item_key"`
	HostName string  `json:"host_name"`
}

func (TrendFloat) TableName() string {
	return "trend_float"
}

// TrendUint is one exported hourly rollup of an unsigned item. The average
// is kept as float so it survives the count division without truncation.
type TrendUint struct {
	ItemId   int64   `json:"item_id" gorm:"primaryKey"`
	Clock    int64   `json:"clock" gorm:"primaryKey"`
	Num      int     `json:"num"`
	ValueMin uint64  `json:"value_min"`
	ValueAvg float64 `json:"value_avg"`
	ValueMax uint64  `json:"value_max"`
	ItemKey  string  `json:"item_key"`
	HostName string  `json:"host_name"`
}

func (TrendUint) TableName() string {
	return "trend_uint"
}

func TrendFloatInsert(ctx *ctx.Context, t *TrendFloat) error {
	return DB(ctx).Create(t).Error
}

func TrendUintInsert(ctx *ctx.Context, t *TrendUint) error {
	return DB(ctx).Create(t).Error
}
