package query

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

type operator string

const (
	opEq  operator = "="
	opGte operator = ">="
	opIn  operator = "IN"
)

type predicate struct {
	column string
	op     operator
	args   []any
}

// SortField is one ORDER BY term. Field is resolved through the ProjectionMap.
type SortField struct {
	Field      string
	Descending bool
}

// Builder accumulates AND-ed predicates over one projection and renders
// them as Postgres statements with $n placeholders. Predicates whose value
// is nil are dropped, so optional filters can be passed straight through.
type Builder struct {
	projection *ProjectionMap
	predicates []predicate
	sort       []SortField
}

// NewBuilder creates a Builder ordered by sort.
func NewBuilder(projection *ProjectionMap, sort ...SortField) *Builder {
	return &Builder{projection: projection, sort: sort}
}

// WhereEquals adds field = value.
func (b *Builder) WhereEquals(field string, value any) *Builder {
	return b.where(field, opEq, value)
}

// WhereAtLeast adds field >= value.
func (b *Builder) WhereAtLeast(field string, value any) *Builder {
	return b.where(field, opGte, value)
}

// WhereIn adds field IN (values...). An empty list adds nothing.
func (b *Builder) WhereIn(field string, values []any) *Builder {
	if len(values) == 0 {
		return b
	}
	b.predicates = append(b.predicates, predicate{
		column: b.projection.Column(field),
		op:     opIn,
		args:   values,
	})
	return b
}

// Build renders a SELECT of every matching row in sort order.
func (b *Builder) Build() (string, []any) {
	where, args := b.renderWhere()
	return b.selectList() + where + b.renderOrder(), args
}

// BuildCount renders a COUNT(*) over the matching rows.
func (b *Builder) BuildCount() (string, []any) {
	where, args := b.renderWhere()
	return "SELECT COUNT(*) FROM " + b.projection.From() + where, args
}

// BuildPage renders one 1-based page of Build.
func (b *Builder) BuildPage(page, pageSize int) (string, []any) {
	sql, args := b.Build()
	return fmt.Sprintf("%s LIMIT %d OFFSET %d", sql, pageSize, (page-1)*pageSize), args
}

// BuildSingle renders a lookup by idField, ignoring other predicates.
func (b *Builder) BuildSingle(idField string, id any) (string, []any) {
	return b.selectList() + " WHERE " + b.projection.Column(idField) + " = $1", []any{id}
}

// BuildSingleOrNull renders the first matching row, without ordering.
func (b *Builder) BuildSingleOrNull() (string, []any) {
	where, args := b.renderWhere()
	return b.selectList() + where + " LIMIT 1", args
}

func (b *Builder) where(field string, op operator, value any) *Builder {
	if isNil(value) {
		return b
	}
	b.predicates = append(b.predicates, predicate{
		column: b.projection.Column(field),
		op:     op,
		args:   []any{value},
	})
	return b
}

func (b *Builder) selectList() string {
	return "SELECT " + b.projection.Columns() + " FROM " + b.projection.From()
}

func (b *Builder) renderWhere() (string, []any) {
	if len(b.predicates) == 0 {
		return "", nil
	}

	var (
		clauses []string
		args    []any
	)
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	for _, p := range b.predicates {
		if p.op == opIn {
			params := make([]string, len(p.args))
			for i, v := range p.args {
				params[i] = next(v)
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", p.column, strings.Join(params, ", ")))
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s %s %s", p.column, p.op, next(p.args[0])))
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (b *Builder) renderOrder() string {
	if len(b.sort) == 0 {
		return ""
	}

	terms := make([]string, len(b.sort))
	for i, f := range b.sort {
		dir := "ASC"
		if f.Descending {
			dir = "DESC"
		}
		terms[i] = b.projection.Column(f.Field) + " " + dir
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	switch v := reflect.ValueOf(value); v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}
