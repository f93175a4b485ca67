package filter

type Token int

const (
	illegal Token = iota
	eol
	and
	or
	in
	equal
	notEqual
	greater
	gte
	less
	lte
	like
	notLike
	lbracket
	rbracket
	comma
	identifier
	stringLit
	regexLit
	duration
	boolean
)

var tokenNames = [...]string{
	illegal:    "illegal",
	eol:        "eol",
	and:        "and",
	or:         "or",
	in:         "in",
	equal:      "equal",
	notEqual:   "notEqual",
	greater:    "greater",
	gte:        "gte",
	less:       "less",
	lte:        "lte",
	like:       "like",
	notLike:    "notLike",
	lbracket:   "lbracket",
	rbracket:   "rbracket",
	comma:      "comma",
	identifier: "identifier",
	stringLit:  "stringLit",
	regexLit:   "regexLit",
	duration:   "duration",
	boolean:    "boolean",
}

func (t Token) String() string {
	if int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return ""
}

// Sql is the operator keyword of the token. The regex operators render as
// a call to regexp_matches, so only the negation has a keyword.
func (t Token) Sql() string {
	switch t {
	case and:
		return "AND"
	case or:
		return "OR"
	case in:
		return "IN"
	case equal:
		return "="
	case notEqual:
		return "!="
	case greater:
		return ">"
	case gte:
		return ">="
	case less:
		return "<"
	case lte:
		return "<="
	case notLike:
		return "NOT"
	default:
		return ""
	}
}
