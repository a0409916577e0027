package rules

import "strings"

// AttrLookup resolves an attribute name to its value. The second return
// reports presence: an absent attribute is null.
type AttrLookup func(name string) (string, bool)

// Eval evaluates a compiled predicate against an attribute view. It is pure
// and cannot fail: unknown attributes are null, and any comparison against
// null other than an explicit null check is false.
func Eval(node Node, attrs AttrLookup) bool {
	switch n := node.(type) {
	case *LogicalExpr:
		if n.Op == "and" {
			return Eval(n.Left, attrs) && Eval(n.Right, attrs)
		}
		return Eval(n.Left, attrs) || Eval(n.Right, attrs)

	case *CompareExpr:
		val, ok := attrs(n.Attr)
		if n.IsNull {
			if n.Op == "==" {
				return !ok
			}
			return ok
		}
		if !ok {
			return false
		}
		if n.Op == "==" {
			return val == n.Value
		}
		return val != n.Value

	case *CallExpr:
		val, ok := attrs(n.Attr)
		if !ok {
			return false
		}
		switch n.Fn {
		case "startsWith":
			return strings.HasPrefix(val, n.Arg)
		case "endsWith":
			return strings.HasSuffix(val, n.Arg)
		case "contains":
			return strings.Contains(val, n.Arg)
		}
	}
	return false
}
