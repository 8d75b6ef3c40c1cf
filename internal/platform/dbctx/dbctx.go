package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with the write handle active for it,
// which is the open transaction whenever there is one.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// DB returns Tx bound to Ctx, or nil when no handle is attached.
func (c Context) DB() *gorm.DB {
	if c.Tx == nil {
		return nil
	}
	if c.Ctx == nil {
		return c.Tx
	}
	return c.Tx.WithContext(c.Ctx)
}
