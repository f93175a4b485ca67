package filter

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SQL Generation", func() {
	type testCase struct {
		input  string
		output string
	}

	generates := func(tests []testCase) {
		for _, test := range tests {
			test := test
			It("should generate SQL for: "+test.input, func() {
				expr, err := Parse([]byte(test.input))
				Expect(err).ToNot(HaveOccurred())
				Expect(expr.Sql()).To(Equal(test.output))
			})
		}
	}

	Context("Comparison operators", func() {
		generates([]testCase{
			{input: "status = 'failed'", output: `(status = 'failed')`},
			{input: "status != 'passed'", output: `(status != 'passed')`},
			{input: "scenario = 'copy'", output: `(name = 'copy')`},
			{input: "started_at > '2026-01-01'", output: `(started_at > '2026-01-01')`},
			{input: "finished_at <= '2026-01-02'", output: `(finished_at <= '2026-01-02')`},
		})
	})

	Context("Durations in seconds", func() {
		const col = "(date_diff('millisecond', started_at, finished_at) / 1000.0)"

		generates([]testCase{
			{input: "duration > 30", output: "(" + col + " > 30.000)"},
			{input: "duration > 30s", output: "(" + col + " > 30.000)"},
			{input: "duration >= 2m", output: "(" + col + " >= 120.000)"},
			{input: "duration < 250ms", output: "(" + col + " < 0.250)"},
			{input: "duration <= 1h", output: "(" + col + " <= 3600.000)"},
		})
	})

	Context("Regex operators with regexp_matches", func() {
		generates([]testCase{
			{input: "error ~ /timeout/", output: `regexp_matches(error, 'timeout')`},
			{input: "feature !~ /^kubernetes/", output: `NOT regexp_matches(feature, '^kubernetes')`},
			{input: "feature ~ /features\\/c2/", output: `regexp_matches(feature, 'features/c2')`},
			{input: "error ~ /can't/", output: `regexp_matches(error, 'can''t')`},
		})
	})

	Context("String values with escaping", func() {
		generates([]testCase{
			{input: `name = "it's flaky"`, output: `(name = 'it''s flaky')`},
			{input: `error = "a ''b'' c"`, output: `(error = 'a ''''b'''' c')`},
		})
	})

	Context("Lists", func() {
		generates([]testCase{
			{input: "status in ('failed', 'undefined')", output: `(status IN ('failed', 'undefined'))`},
			{input: `scenario in ("it's")`, output: `(name IN ('it''s'))`},
		})
	})

	Context("Boolean values", func() {
		generates([]testCase{
			{input: "status = true", output: `(status = TRUE)`},
			{input: "status != false", output: `(status != FALSE)`},
		})
	})

	Context("Logical operators", func() {
		generates([]testCase{
			{
				input:  "status = 'failed' and feature ~ /kafka/",
				output: `((status = 'failed') AND regexp_matches(feature, 'kafka'))`,
			},
			{
				input:  "status = 'failed' or status = 'undefined' and duration > 1m",
				output: `((status = 'failed') OR ((status = 'undefined') AND ((date_diff('millisecond', started_at, finished_at) / 1000.0) > 60.000)))`,
			},
			{
				input:  "(status = 'failed' or status = 'undefined') and id ~ /^c2-/",
				output: `(((status = 'failed') OR (status = 'undefined')) AND regexp_matches(id, '^c2-'))`,
			},
		})
	})

	Context("Token SQL mapping", func() {
		It("maps operators to SQL", func() {
			Expect(and.Sql()).To(Equal("AND"))
			Expect(or.Sql()).To(Equal("OR"))
			Expect(equal.Sql()).To(Equal("="))
			Expect(notEqual.Sql()).To(Equal("!="))
			Expect(gte.Sql()).To(Equal(">="))
			Expect(lte.Sql()).To(Equal("<="))
			Expect(notLike.Sql()).To(Equal("NOT"))
			Expect(in.Sql()).To(Equal("IN"))
			Expect(identifier.Sql()).To(BeEmpty())
		})
	})
})
