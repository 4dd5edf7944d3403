package models

import (
	"github.com/vigilab/vigil/pkg/ctx"
)

const (
	HostStatusMonitored    = 0
	HostStatusNotMonitored = 1
)

type Host struct {
	Id       int64  `json:"id" gorm:"primaryKey"`
	Name     string `json:"name"`
	Status   int    `json:"status"`
	ProxyId  int64  `json:"proxy_id"`
	UpdateAt int64  `json:"update_at"`
}

func (Host) TableName() string {
	return "host"
}

func HostGetsAll(ctx *ctx.Context) ([]*Host, error) {
	var lst []*Host
	err := DB(ctx).Find(&lst).Error
	return lst, err
}

func HostStatistics(ctx *ctx.Context) (*Statistics, error) {
	return StatisticsGet(ctx, &Host{})
}

type HostMacro struct {
	Id       int64  `json:"id" gorm:"primaryKey"`
	HostId   int64  `json:"host_id"`
	Macro    string `json:"macro"`
	Value    string `json:"value"`
	UpdateAt int64  `json:"update_at"`
}

func (HostMacro) TableName() string {
	return "host_macro"
}

func HostMacroGetsAll(ctx *ctx.Context) ([]*HostMacro, error) {
	var lst []*HostMacro
	err := DB(ctx).Find(&lst).Error
	return lst, err
}

func HostMacroStatistics(ctx *ctx.Context) (*Statistics, error) {
	return StatisticsGet(ctx, &HostMacro{})
}
