package ctx

import (
	"context"

	"gorm.io/gorm"
)

// Context carries the database handle and the process context into models
// and caches, so none of them keeps global state of its own.
type Context struct {
	DB  *gorm.DB
	Ctx context.Context
}

func NewContext(ctx context.Context, db *gorm.DB) *Context {
	return &Context{
		Ctx: ctx,
		DB:  db,
	}
}

func (c *Context) SetDB(db *gorm.DB) {
	c.DB = db
}

func (c *Context) GetDB() *gorm.DB {
	return c.DB
}
