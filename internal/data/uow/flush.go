package uow

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/txcore/internal/data/dberr"
	"github.com/yungbote/txcore/internal/data/tracking"
)

// flush writes entries in staging order. Associations are never cascaded:
// every entity is staged on its own.
func flush(ctx context.Context, tx *gorm.DB, cs *tracking.ChangeSet) (int, error) {
	n := 0
	for _, e := range cs.Entries() {
		q := tx.WithContext(ctx).Omit(clause.Associations)
		switch e.State {
		case tracking.Added:
			if err := q.Create(e.Entity).Error; err != nil {
				return n, dberr.Map("uow.save.insert", err)
			}
		case tracking.Modified:
			res := q.Model(e.Entity).Select("*").Updates(e.Entity)
			if res.Error != nil {
				return n, dberr.Map("uow.save.update", res.Error)
			}
			if res.RowsAffected == 0 {
				return n, conflictf("uow.save.update", "%T %v no longer exists", e.Entity, e.ID())
			}
		case tracking.Deleted:
			res := q.Delete(e.Entity)
			if res.Error != nil {
				return n, dberr.Map("uow.save.delete", res.Error)
			}
			if res.RowsAffected == 0 {
				return n, conflictf("uow.save.delete", "%T %v no longer exists", e.Entity, e.ID())
			}
		default:
			continue
		}
		n++
	}
	return n, nil
}
