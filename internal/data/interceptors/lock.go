package interceptors

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockMode is the typed lock annotation carried on a query.
type LockMode int

const (
	LockNone LockMode = iota
	// LockUpdateNoWait takes an exclusive row lock or fails at once.
	LockUpdateNoWait
)

const (
	// LockMarker tags raw SQL for locking. Only commands whose text starts
	// with it (exact, case-sensitive) get the lock clause appended.
	LockMarker = "-- ForUpdate"

	LockClausePluginName = "txcore:lock_clause"

	lockSettingKey   = "txcore:lock_mode"
	lockClauseSuffix = " FOR UPDATE NOWAIT"
)

// Tag annotates the query so the write handle renders it as a locking read.
func Tag(db *gorm.DB, mode LockMode) *gorm.DB {
	return db.Set(lockSettingKey, mode)
}

// TagOf returns the lock annotation on db.
func TagOf(db *gorm.DB) LockMode {
	if db == nil {
		return LockNone
	}
	if v, ok := db.Get(lockSettingKey); ok {
		if m, ok := v.(LockMode); ok {
			return m
		}
	}
	return LockNone
}

// MarkRaw prefixes raw SQL with LockMarker.
func MarkRaw(sql string) string {
	return LockMarker + "\n" + sql
}

// LockClause is the gorm plugin that turns lock annotations into the store's
// lock clause right before a query or row command is sent. It is installed on
// the write handle only.
type LockClause struct{}

func (LockClause) Name() string { return LockClausePluginName }

func (LockClause) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register(LockClausePluginName, applyLock); err != nil {
		return err
	}
	return db.Callback().Row().Before("gorm:row").Register(LockClausePluginName+"_row", applyLock)
}

// Installed reports whether the plugin is registered on db.
func Installed(db *gorm.DB) bool {
	if db == nil || db.Config == nil {
		return false
	}
	_, ok := db.Config.Plugins[LockClausePluginName]
	return ok
}

func applyLock(db *gorm.DB) {
	if db.Error != nil || !supportsRowLocks(db) {
		return
	}
	stmt := db.Statement
	tagged := TagOf(db) == LockUpdateNoWait
	if stmt.SQL.Len() > 0 {
		// raw command text
		if tagged || strings.HasPrefix(stmt.SQL.String(), LockMarker) {
			stmt.SQL.WriteString(lockClauseSuffix)
		}
		return
	}
	if tagged {
		stmt.AddClause(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsNoWait})
	}
}

func supportsRowLocks(db *gorm.DB) bool {
	if db.Dialector == nil {
		return false
	}
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		return true
	default:
		return false
	}
}
