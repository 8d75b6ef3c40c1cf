// Package repos provides the generic repository used against a unit of work.
package repos

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/yungbote/txcore/internal/data/dberr"
	"github.com/yungbote/txcore/internal/data/interceptors"
	"github.com/yungbote/txcore/internal/data/tracking"
	"github.com/yungbote/txcore/internal/domain"
)

// Session is what a repository needs from a unit of work.
type Session interface {
	Reader(ctx context.Context) *gorm.DB
	Writer(ctx context.Context) *gorm.DB
	Tracker() *tracking.Tracker
}

var schemaCache sync.Map

// Repository serves one entity type. T must be a pointer to a gorm model.
type Repository[T domain.Entity[K], K comparable] struct {
	schema *schema.Schema
	elem   reflect.Type
	name   string
}

func NewRepository[T domain.Entity[K], K comparable]() (*Repository[T, K], error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil || typ.Kind() != reflect.Pointer || typ.Elem().Kind() != reflect.Struct {
		return nil, domain.NewError(domain.CodeValidation, "repo.new", fmt.Sprintf("%v is not a pointer to a struct", typ), nil)
	}
	s, err := schema.Parse(reflect.New(typ.Elem()).Interface(), &schemaCache, schema.NamingStrategy{})
	if err != nil {
		return nil, domain.Wrap(domain.CodeValidation, "repo.new", err)
	}
	return &Repository[T, K]{schema: s, elem: typ.Elem(), name: s.Table}, nil
}

// MustRepository panics on a model gorm cannot parse.
func MustRepository[T domain.Entity[K], K comparable]() *Repository[T, K] {
	r, err := NewRepository[T, K]()
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Repository[T, K]) Table() string { return r.name }

// Include validates an eager-load path (dotted for nested relations).
func (r *Repository[T, K]) Include(path string) (Include, error) {
	return validateInclude(r.schema, path)
}

// MustInclude panics on an unknown relation.
func (r *Repository[T, K]) MustInclude(path string) Include {
	inc, err := r.Include(path)
	if err != nil {
		panic(err)
	}
	return inc
}

// Add stages e for insert. Nothing reaches the store until the unit of work saves.
func (r *Repository[T, K]) Add(s Session, e T) error {
	return s.Tracker().Add(e, tracking.IdentityOf[K](e))
}

func (r *Repository[T, K]) AddRange(s Session, es ...T) error {
	for _, e := range es {
		if err := r.Add(s, e); err != nil {
			return err
		}
	}
	return nil
}

// Update stages e as fully modified: every column is written on save.
func (r *Repository[T, K]) Update(s Session, e T) error {
	return s.Tracker().Update(e, tracking.IdentityOf[K](e))
}

// Delete stages e for removal. The save pipeline decides between a soft and
// a physical delete.
func (r *Repository[T, K]) Delete(s Session, e T) error {
	return s.Tracker().Remove(e, tracking.IdentityOf[K](e))
}

func (r *Repository[T, K]) DeleteRange(s Session, es ...T) error {
	for _, e := range es {
		if err := r.Delete(s, e); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the first match. forUpdate reads through the write handle,
// seeing this unit's uncommitted writes, without taking a lock.
func (r *Repository[T, K]) Get(ctx context.Context, s Session, pred Predicate, forUpdate bool, includes ...Include) (T, bool, error) {
	q := r.apply(r.source(ctx, s, forUpdate), pred, includes)
	return r.first(s, q.Limit(1), forUpdate, r.op("get"))
}

func (r *Repository[T, K]) GetByID(ctx context.Context, s Session, id K, forUpdate bool, includes ...Include) (T, bool, error) {
	return r.Get(ctx, s, ByID(id), forUpdate, includes...)
}

// GetForUpdate reads through the write handle with an exclusive non-blocking
// row lock. order is applied before the lock so concurrent callers lock rows
// in the same sequence. A row locked elsewhere fails with CodeLockContention.
func (r *Repository[T, K]) GetForUpdate(ctx context.Context, s Session, pred Predicate, order ...Order) (T, bool, error) {
	var zero T
	q := r.apply(s.Writer(ctx), pred, nil)
	q, err := r.orderBy(q, order)
	if err != nil {
		return zero, false, err
	}
	q = interceptors.Tag(q.Limit(1), interceptors.LockUpdateNoWait)
	return r.first(s, q, true, r.op("get_for_update"))
}

// GetMany returns every match in store order unless the predicate orders it.
func (r *Repository[T, K]) GetMany(ctx context.Context, s Session, pred Predicate, forUpdate bool, includes ...Include) ([]T, error) {
	q := r.apply(r.source(ctx, s, forUpdate), pred, includes)
	var rows []T
	if err := q.Find(&rows).Error; err != nil {
		return nil, dberr.Map(r.op("get_many"), err)
	}
	if forUpdate {
		for i := range rows {
			rows[i] = r.resolve(s, rows[i])
		}
	}
	return rows, nil
}

// Exists always asks the write handle so it sees this unit's writes.
func (r *Repository[T, K]) Exists(ctx context.Context, s Session, pred Predicate) (bool, error) {
	var n int64
	q := r.apply(s.Writer(ctx).Model(r.newModel()), pred, nil)
	if err := q.Count(&n).Error; err != nil {
		return false, dberr.Map(r.op("exists"), err)
	}
	return n > 0, nil
}

// Count runs on the read handle.
func (r *Repository[T, K]) Count(ctx context.Context, s Session, pred Predicate) (int64, error) {
	var n int64
	q := r.apply(s.Reader(ctx).Model(r.newModel()), pred, nil)
	if err := q.Count(&n).Error; err != nil {
		return 0, dberr.Map(r.op("count"), err)
	}
	return n, nil
}

// ExecuteDelete removes matching rows in one statement. It skips the save
// pipeline entirely: no soft delete, no audit, no domain events, and tracked
// instances are left as they are.
func (r *Repository[T, K]) ExecuteDelete(ctx context.Context, s Session, pred Predicate) (int64, error) {
	q := s.Writer(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	q = r.apply(q, pred, nil)
	res := q.Delete(r.newModel())
	if res.Error != nil {
		return 0, dberr.Map(r.op("execute_delete"), res.Error)
	}
	return res.RowsAffected, nil
}

// Page reads one page through the read handle.
func (r *Repository[T, K]) Page(ctx context.Context, s Session, pred Predicate, page, size int, order ...Order) (PagedResult[T], error) {
	page, size = normalizePage(page, size)
	out := PagedResult[T]{Page: page, PageSize: size}

	total, err := r.Count(ctx, s, pred)
	if err != nil {
		return out, err
	}
	out.TotalCount = total
	out.TotalPages = totalPages(total, size)
	if total == 0 {
		out.Items = []T{}
		return out, nil
	}

	q, err := r.orderBy(r.apply(s.Reader(ctx), pred, nil), order)
	if err != nil {
		return out, err
	}
	var rows []T
	if err := q.Offset((page - 1) * size).Limit(size).Find(&rows).Error; err != nil {
		return out, dberr.Map(r.op("page"), err)
	}
	if rows == nil {
		rows = []T{}
	}
	out.Items = rows
	return out, nil
}

func (r *Repository[T, K]) source(ctx context.Context, s Session, write bool) *gorm.DB {
	if write {
		return s.Writer(ctx)
	}
	return s.Reader(ctx)
}

func (r *Repository[T, K]) apply(q *gorm.DB, pred Predicate, includes []Include) *gorm.DB {
	if pred != nil {
		q = q.Scopes(pred)
	}
	for _, inc := range includes {
		if inc.path != "" {
			q = q.Preload(inc.path)
		}
	}
	return q
}

func (r *Repository[T, K]) orderBy(q *gorm.DB, order []Order) (*gorm.DB, error) {
	if len(order) == 0 {
		return q, nil
	}
	cols := make([]clause.OrderByColumn, 0, len(order))
	for _, o := range order {
		f := r.schema.LookUpField(strings.TrimSpace(o.Column))
		if f == nil || f.DBName == "" {
			return nil, domain.NewError(domain.CodeValidation, r.op("order"),
				fmt.Sprintf("%s has no column %q", r.name, o.Column), nil)
		}
		cols = append(cols, clause.OrderByColumn{
			Column: clause.Column{Table: clause.CurrentTable, Name: f.DBName},
			Desc:   !o.Ascending,
		})
	}
	return q.Order(clause.OrderBy{Columns: cols}), nil
}

func (r *Repository[T, K]) first(s Session, q *gorm.DB, track bool, op string) (T, bool, error) {
	var zero T
	var rows []T
	if err := q.Find(&rows).Error; err != nil {
		return zero, false, dberr.Map(op, err)
	}
	if len(rows) == 0 {
		return zero, false, nil
	}
	if track {
		return r.resolve(s, rows[0]), true, nil
	}
	return rows[0], true, nil
}

// resolve swaps a freshly read row for the instance already tracked under the
// same key, or starts tracking it.
func (r *Repository[T, K]) resolve(s Session, e T) T {
	got := s.Tracker().Resolve(e, tracking.IdentityOf[K](e))
	if t, ok := got.(T); ok {
		return t
	}
	return e
}

func (r *Repository[T, K]) newModel() T {
	return reflect.New(r.elem).Interface().(T)
}

func (r *Repository[T, K]) op(name string) string { return r.name + "." + name }
