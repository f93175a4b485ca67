package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// columnMap resolves filter identifiers to scenario_results columns.
var columnMap = map[string]string{
	"id":          "id",
	"feature":     "feature",
	"name":        "name",
	"scenario":    "name",
	"status":      "status",
	"error":       "error",
	"started_at":  "started_at",
	"finished_at": "finished_at",
	"duration":    "(date_diff('millisecond', started_at, finished_at) / 1000.0)",
}

// Expression is the abstract syntax tree for any expression.
type Expression interface {
	String() string
	Sql() string
}

// binaryExpression is an expression like "a = b" or "a and b".
type binaryExpression struct {
	Left  Expression
	Op    Token
	Right Expression
}

func (e *binaryExpression) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left.String(), e.Op.String(), e.Right.String())
}

func (e *binaryExpression) Sql() string {
	switch e.Op {
	case like:
		return fmt.Sprintf("regexp_matches(%s, %s)", e.Left.Sql(), e.Right.Sql())
	case notLike:
		return fmt.Sprintf("NOT regexp_matches(%s, %s)", e.Left.Sql(), e.Right.Sql())
	default:
		return fmt.Sprintf("(%s %s %s)", e.Left.Sql(), e.Op.Sql(), e.Right.Sql())
	}
}

// stringExpression is a literal string like "foo".
type stringExpression struct {
	Value string
}

func (e *stringExpression) String() string {
	return strconv.Quote(e.Value)
}

func (e *stringExpression) Sql() string {
	return fmt.Sprintf("'%s'", strings.ReplaceAll(e.Value, "'", "''"))
}

// listExpression is the right side of "in".
type listExpression struct {
	Values []string
}

func (e *listExpression) String() string {
	quoted := make([]string, 0, len(e.Values))
	for _, v := range e.Values {
		quoted = append(quoted, strconv.Quote(v))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func (e *listExpression) Sql() string {
	items := make([]string, 0, len(e.Values))
	for _, v := range e.Values {
		items = append(items, (&stringExpression{Value: v}).Sql())
	}
	return "(" + strings.Join(items, ", ") + ")"
}

// varExpression is a column identifier like "status" or "duration".
type varExpression struct {
	Name string
}

func newVarExpression(pos int, name string) *varExpression {
	if _, ok := columnMap[strings.ToLower(name)]; !ok {
		panic(ParseError{pos, fmt.Sprintf("unknown field %q", name)})
	}
	return &varExpression{Name: name}
}

func (v *varExpression) String() string {
	return v.Name
}

func (v *varExpression) Sql() string {
	return columnMap[strings.ToLower(v.Name)]
}

// booleanExpression is a boolean literal (true or false).
type booleanExpression struct {
	Value bool
}

func (b *booleanExpression) String() string {
	return strconv.FormatBool(b.Value)
}

func (b *booleanExpression) Sql() string {
	if b.Value {
		return "TRUE"
	}
	return "FALSE"
}

// regexExpression is a regex literal like /pattern/.
type regexExpression struct {
	Pattern string
}

func newRegexExpression(pos int, pattern string) *regexExpression {
	if _, err := regexp.Compile(pattern); err != nil {
		panic(ParseError{pos, fmt.Sprintf("invalid regex: %s", err)})
	}
	return &regexExpression{Pattern: pattern}
}

func (r *regexExpression) String() string {
	return fmt.Sprintf("/%s/", r.Pattern)
}

func (r *regexExpression) Sql() string {
	return fmt.Sprintf("'%s'", strings.ReplaceAll(r.Pattern, "'", "''"))
}

// durationExpression is a number of seconds, optionally suffixed with
// ms, s, m or h.
type durationExpression struct {
	Value time.Duration
}

func newDurationExpression(pos int, val string) *durationExpression {
	lower := strings.ToLower(val)
	unit := time.Second
	numStr := lower
	switch {
	case strings.HasSuffix(lower, "ms"):
		unit, numStr = time.Millisecond, strings.TrimSuffix(lower, "ms")
	case strings.HasSuffix(lower, "s"):
		numStr = strings.TrimSuffix(lower, "s")
	case strings.HasSuffix(lower, "m"):
		unit, numStr = time.Minute, strings.TrimSuffix(lower, "m")
	case strings.HasSuffix(lower, "h"):
		unit, numStr = time.Hour, strings.TrimSuffix(lower, "h")
	}

	n, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		panic(ParseError{pos, fmt.Sprintf("invalid duration %q", val)})
	}
	return &durationExpression{Value: time.Duration(n * float64(unit))}
}

func (d *durationExpression) String() string {
	return d.Value.String()
}

// Sql renders the duration in seconds, the unit of the duration column.
func (d *durationExpression) Sql() string {
	return fmt.Sprintf("%.3f", d.Value.Seconds())
}
