package repos

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Predicate narrows a query. Predicates compose through And and apply as gorm scopes.
type Predicate func(*gorm.DB) *gorm.DB

// Where is a predicate over a gorm condition.
func Where(query any, args ...any) Predicate {
	return func(db *gorm.DB) *gorm.DB { return db.Where(query, args...) }
}

// ByID matches the model's primary key, whatever its column is named.
func ByID(id any) Predicate {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(clause.Eq{Column: clause.PrimaryColumn, Value: id})
	}
}

// All matches every row.
func All() Predicate {
	return func(db *gorm.DB) *gorm.DB { return db }
}

// NotDeleted excludes soft-deleted rows.
func NotDeleted() Predicate {
	return Where("is_deleted = ?", false)
}

func And(ps ...Predicate) Predicate {
	return func(db *gorm.DB) *gorm.DB {
		for _, p := range ps {
			if p != nil {
				db = p(db)
			}
		}
		return db
	}
}

type Order struct {
	Column    string
	Ascending bool
}

func Asc(column string) Order  { return Order{Column: column, Ascending: true} }
func Desc(column string) Order { return Order{Column: column} }
