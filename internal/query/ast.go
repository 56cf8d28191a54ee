// Package query parses the engine's OData-subset filter, order-by and
// select grammar into a small tagged AST, then executes it against the
// document store. Grounded on the teacher's pkg/types tagged-union
// config shapes for the AST idiom, and designed per SPEC_FULL §9's
// "filter/sort AST" design note so the parser and the store adapter
// stay independently testable.
package query

// Expr is any node in a parsed filter expression.
type Expr interface{ isExpr() }

// Comparison is a primitive field-operator-literal comparison:
// eq, ne, gt, ge, lt, le.
type Comparison struct {
	Field string
	Op    string
	Value Literal
}

func (Comparison) isExpr() {}

// Logical combines two expressions with "and" or "or".
type Logical struct {
	Op          string
	Left, Right Expr
}

func (Logical) isExpr() {}

// Not negates an expression.
type Not struct {
	Inner Expr
}

func (Not) isExpr() {}

// TextMatch is one of contains/startswith/endswith, all of which
// compile to a case-insensitive regex over an escaped literal at
// execution time (anchored at the start for startswith, at the end for
// endswith, unanchored for contains).
type TextMatch struct {
	Kind  string
	Field string
	Value string
}

func (TextMatch) isExpr() {}

// LiteralKind tags the typed constant grammar §4.8 allows.
type LiteralKind string

const (
	LiteralString         LiteralKind = "string"
	LiteralBool           LiteralKind = "bool"
	LiteralInt            LiteralKind = "int"
	LiteralLong           LiteralKind = "long"
	LiteralDouble         LiteralKind = "double"
	LiteralDecimal        LiteralKind = "decimal"
	LiteralFloat          LiteralKind = "float"
	LiteralDateTime       LiteralKind = "datetime"
	LiteralDateTimeOffset LiteralKind = "datetimeoffset"
)

// Literal is one typed constant operand.
type Literal struct {
	Kind  LiteralKind
	Value interface{}
}

// SortClause is one comma-separated order-by clause.
type SortClause struct {
	Field     string
	Ascending bool
}
