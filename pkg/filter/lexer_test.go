package filter

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// scanAll returns the token kinds of src up to and including eol.
func scanAll(src string) string {
	l := newLexer([]byte(src))
	kinds := []string{}
	for {
		_, tok, _ := l.Scan()
		kinds = append(kinds, tok.String())
		if tok == eol {
			return strings.Join(kinds, " ")
		}
	}
}

var _ = Describe("Lexer", func() {
	DescribeTable("tokenizes",
		func(src, kinds string) {
			Expect(scanAll(src)).To(Equal(kinds))
		},
		// operators
		Entry("=", "=", "equal eol"),
		Entry("!=", "!=", "notEqual eol"),
		Entry("<", "<", "less eol"),
		Entry("<=", "<=", "lte eol"),
		Entry(">", ">", "greater eol"),
		Entry(">=", ">=", "gte eol"),
		Entry("~", "~", "like eol"),
		Entry("!~", "!~", "notLike eol"),
		Entry("= != < <= > >= ~ !~", "= != < <= > >= ~ !~", "equal notEqual less lte greater gte like notLike eol"),

		// logical operators
		Entry("and", "and", "and eol"),
		Entry("or", "or", "or eol"),
		Entry("AND", "AND", "and eol"),
		Entry("Or", "Or", "or eol"),
		Entry("and or and", "and or and", "and or and eol"),
		Entry("in IN", "in IN", "in in eol"),

		// brackets
		Entry("(", "(", "lbracket eol"),
		Entry(")", ")", "rbracket eol"),
		Entry("( )", "( )", "lbracket rbracket eol"),
		Entry("('a', 'b')", "('a', 'b')", "lbracket stringLit comma stringLit rbracket eol"),

		// strings
		Entry("'failed'", "'failed'", "stringLit eol"),
		Entry(`"kafka.feature"`, `"kafka.feature"`, "stringLit eol"),
		Entry("''", "''", "illegal eol"), // empty string not allowed
		Entry("'unclosed", "'unclosed", "illegal eol"),
		Entry("'with = and > inside'", "'with = and > inside'", "stringLit eol"),

		// regex literals
		Entry("/timeout/", "/timeout/", "regexLit eol"),
		Entry("//", "//", "regexLit eol"),
		Entry("/features\\/kafka/", "/features\\/kafka/", "regexLit eol"),
		Entry("/^Kafka.*$/", "/^Kafka.*$/", "regexLit eol"),
		Entry("/unclosed", "/unclosed", "illegal eol"),

		// booleans
		Entry("true", "true", "boolean eol"),
		Entry("FALSE", "FALSE", "boolean eol"),

		// durations
		Entry("30", "30", "duration eol"),
		Entry("1.5", "1.5", "duration eol"),
		Entry("30s", "30s", "duration eol"),
		Entry("500ms", "500ms", "duration eol"),
		Entry("2m", "2m", "duration eol"),
		Entry("1H", "1H", "duration eol"),
		Entry("30x", "30x", "illegal eol"),
		Entry("5min", "5min", "illegal eol"),
		Entry("1.2.3", "1.2.3", "duration illegal duration eol"),

		// identifiers
		Entry("status", "status", "identifier eol"),
		Entry("finished_at", "finished_at", "identifier eol"),
		Entry("feature name", "feature name", "identifier identifier eol"),
		Entry("android", "android", "identifier eol"),
		Entry("origin", "origin", "identifier eol"),

		// whitespace
		Entry("empty input", "", "eol"),
		Entry("blank input", "\t\n ", "eol"),
		Entry("status   =   'failed'", "status   =   'failed'", "identifier equal stringLit eol"),

		// complete expressions
		Entry("status='failed'", "status='failed'", "identifier equal stringLit eol"),
		Entry("duration>=2m", "duration>=2m", "identifier gte duration eol"),
		Entry("status = 'failed' and feature ~ /kafka/", "status = 'failed' and feature ~ /kafka/", "identifier equal stringLit and identifier like regexLit eol"),
		Entry("(duration > 90s or error !~ /timeout/) and name = 'A file is copied'", "(duration > 90s or error !~ /timeout/) and name = 'A file is copied'", "lbracket identifier greater duration or identifier notLike regexLit rbracket and identifier equal stringLit eol"),

		// illegal tokens
		Entry("!", "!", "illegal eol"),
		Entry("@", "@", "illegal eol"),
		Entry("$", "$", "illegal eol"),
		Entry("`", "`", "illegal eol"),
	)

	It("reports token offsets and text", func() {
		l := newLexer([]byte("  duration >= 1.5m"))

		pos, tok, val := l.Scan()
		Expect([]any{pos, tok, val}).To(Equal([]any{2, identifier, "duration"}))
		pos, tok, _ = l.Scan()
		Expect([]any{pos, tok}).To(Equal([]any{11, gte}))
		pos, tok, val = l.Scan()
		Expect([]any{pos, tok, val}).To(Equal([]any{14, duration, "1.5m"}))
		pos, tok, _ = l.Scan()
		Expect([]any{pos, tok}).To(Equal([]any{18, eol}))
	})

	It("unescapes slashes in regex literals", func() {
		_, tok, val := newLexer([]byte(`/a\/b\d/`)).Scan()

		Expect(tok).To(Equal(regexLit))
		Expect(val).To(Equal(`a/b\d`))
	})
})
