package memos

import (
	"strings"

	"gorm.io/gorm"
)

// Predicate is one parameterized filter condition. Column names come from code; values are
// always bound as query arguments.
type Predicate interface {
	build() (string, []interface{})
}

// Equals matches column = value.
type Equals struct {
	Column string
	Value  interface{}
}

func (p Equals) build() (string, []interface{}) {
	return p.Column + " = ?", []interface{}{p.Value}
}

// Like matches column LIKE pattern.
type Like struct {
	Column  string
	Pattern string
}

func (p Like) build() (string, []interface{}) {
	return p.Column + " LIKE ?", []interface{}{p.Pattern}
}

// Compare matches column against value with one of =, <>, <, <=, >, >=.
type Compare struct {
	Column   string
	Operator string
	Value    interface{}
}

func (p Compare) build() (string, []interface{}) {
	switch p.Operator {
	case "=", "<>", "<", "<=", ">", ">=":
		return p.Column + " " + p.Operator + " ?", []interface{}{p.Value}
	default:
		panic("memos: unsupported comparison operator " + p.Operator)
	}
}

// Between matches low <= column <= high.
type Between struct {
	Column string
	Low    interface{}
	High   interface{}
}

func (p Between) build() (string, []interface{}) {
	return p.Column + " BETWEEN ? AND ?", []interface{}{p.Low, p.High}
}

// In matches column against a list of values.
type In struct {
	Column string
	Values []string
}

func (p In) build() (string, []interface{}) {
	return p.Column + " IN ?", []interface{}{p.Values}
}

// AllOf groups predicates with AND.
type AllOf []Predicate

func (p AllOf) build() (string, []interface{}) {
	return group(p, " AND ")
}

// AnyOf groups predicates with OR.
type AnyOf []Predicate

func (p AnyOf) build() (string, []interface{}) {
	return group(p, " OR ")
}

func group(predicates []Predicate, separator string) (string, []interface{}) {
	parts := make([]string, 0, len(predicates))
	var args []interface{}
	for _, predicate := range predicates {
		sql, predicateArgs := predicate.build()
		parts = append(parts, sql)
		args = append(args, predicateArgs...)
	}
	return "(" + strings.Join(parts, separator) + ")", args
}

// RawJoin is a parameterized join clause.
type RawJoin struct {
	Clause string
	Args   []interface{}
}

// Filter is a compiled set of joins and predicates. The same Filter feeds both the count
// and the page query of a listing.
type Filter struct {
	joins      []RawJoin
	predicates []Predicate
}

// Join appends a join clause.
func (f *Filter) Join(join RawJoin) {
	f.joins = append(f.joins, join)
}

// Where appends a predicate.
func (f *Filter) Where(predicate Predicate) {
	f.predicates = append(f.predicates, predicate)
}

// SQL renders the conjunction of all predicates.
func (f Filter) SQL() (string, []interface{}) {
	if len(f.predicates) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(f.predicates))
	var args []interface{}
	for _, predicate := range f.predicates {
		sql, predicateArgs := predicate.build()
		parts = append(parts, sql)
		args = append(args, predicateArgs...)
	}
	return strings.Join(parts, " AND "), args
}

// Apply adds the joins and predicates to db.
func (f Filter) Apply(db *gorm.DB) *gorm.DB {
	for _, join := range f.joins {
		db = db.Joins(join.Clause, join.Args...)
	}
	for _, predicate := range f.predicates {
		sql, args := predicate.build()
		db = db.Where(sql, args...)
	}
	return db
}
