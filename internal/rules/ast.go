package rules

// Node is a parsed predicate expression node.
type Node interface {
	node()
}

// LogicalExpr is an "and" / "or" combination of two boolean expressions.
// The parser binds "and" tighter than "or"; any other precedence must be
// made explicit with parentheses.
type LogicalExpr struct {
	Op    string // "and" or "or"
	Left  Node
	Right Node
}

// CompareExpr compares an attribute against a string literal or null.
// When IsNull is true, Value is unused and the comparison is an explicit
// null check (the only comparison that can be true for an absent attribute).
type CompareExpr struct {
	Attr   string
	Op     string // "==" or "!="
	Value  string
	IsNull bool
}

// CallExpr is a string test: startsWith, endsWith, or contains.
type CallExpr struct {
	Fn   string
	Attr string
	Arg  string
}

func (*LogicalExpr) node() {}
func (*CompareExpr) node() {}
func (*CallExpr) node()    {}
