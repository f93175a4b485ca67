package filter

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Parser", func() {
	Context("Valid expressions", func() {
		type testCase struct {
			input  string
			output string
		}

		tests := []testCase{
			// ===== SIMPLE EQUALITY =====
			{input: "status = 'failed'", output: `(status equal "failed")`},
			{input: "status != 'passed'", output: `(status notEqual "passed")`},
			{input: `feature = "kafka.feature"`, output: `(feature equal "kafka.feature")`},
			{input: "scenario = 'A file is copied'", output: `(scenario equal "A file is copied")`},

			// ===== CASE-INSENSITIVE FIELDS =====
			{input: "Status = 'failed'", output: `(Status equal "failed")`},
			{input: "FEATURE ~ /c2/", output: "(FEATURE like /c2/)"},

			// ===== REGEX OPERATORS =====
			{input: "error ~ /timeout/", output: "(error like /timeout/)"},
			{input: "name !~ /^Smoke/", output: "(name notLike /^Smoke/)"},
			{input: "feature ~ /features\\/kafka/", output: "(feature like /features/kafka/)"},

			// ===== DURATIONS =====
			{input: "duration > 30", output: "(duration greater 30s)"},
			{input: "duration > 1.5", output: "(duration greater 1.5s)"},
			{input: "duration >= 2m", output: "(duration gte 2m0s)"},
			{input: "duration < 500ms", output: "(duration less 500ms)"},
			{input: "duration <= 1h", output: "(duration lte 1h0m0s)"},
			{input: "duration > 90s", output: "(duration greater 1m30s)"},

			// ===== LISTS =====
			{input: "status in ('failed')", output: `(status in ["failed"])`},
			{input: "status IN ('failed', 'undefined')", output: `(status in ["failed", "undefined"])`},
			{input: "feature in ('c2.feature','kafka.feature') and duration > 1m", output: `((feature in ["c2.feature", "kafka.feature"]) and (duration greater 1m0s))`},

			// ===== TIMESTAMPS =====
			{input: "started_at > '2026-01-01'", output: `(started_at greater "2026-01-01")`},

			// ===== AND / OR =====
			{input: "status = 'failed' and feature ~ /kafka/", output: `((status equal "failed") and (feature like /kafka/))`},
			{input: "status = 'failed' OR status = 'undefined'", output: `((status equal "failed") or (status equal "undefined"))`},
			{input: "id = 'a-1' or id = 'b-1' and status = 'failed'", output: `((id equal "a-1") or ((id equal "b-1") and (status equal "failed")))`},
			{input: "id = 'a-1' and id = 'b-1' or status = 'failed'", output: `(((id equal "a-1") and (id equal "b-1")) or (status equal "failed"))`},

			// ===== PARENTHESES =====
			{input: "((status = 'failed'))", output: `(status equal "failed")`},
			{input: "(status = 'failed' or status = 'undefined') and duration > 1m", output: `(((status equal "failed") or (status equal "undefined")) and (duration greater 1m0s))`},
			{input: "feature ~ /c2/ and (error ~ /timeout/ or duration > 2m)", output: `((feature like /c2/) and ((error like /timeout/) or (duration greater 2m0s)))`},

			// ===== WHITESPACE =====
			{input: "\tstatus='failed'\t", output: `(status equal "failed")`},
		}

		for _, test := range tests {
			test := test
			It("should parse: "+test.input, func() {
				expr, err := Parse([]byte(test.input))
				Expect(err).ToNot(HaveOccurred())
				Expect(expr.String()).To(Equal(test.output))
			})
		}
	})

	Context("Invalid expressions", func() {
		inputs := []string{
			"status 'failed'",
			"status =",
			"(status = 'failed'",
			"= = =",
			"",
			"   ",
			"status = = 'failed'",
			"= 'failed'",
			"memory > 8",
			"vm.name = 'x'",
			"error ~ /(/",
			"duration > 5min",
			"status = 'failed' and",
			"status in ()",
			"status in ('failed',)",
			"status in 'failed'",
			"status in (30s)",
			"duration > 1.2.3",
		}

		for _, input := range inputs {
			input := input
			It("should return ParseError for: "+input, func() {
				_, err := Parse([]byte(input))
				Expect(err).To(HaveOccurred())
				var pe ParseError
				Expect(errors.As(err, &pe)).To(BeTrue())
			})
		}
	})

	It("reports the position of an unknown field", func() {
		_, err := Parse([]byte("status = 'failed' and cpu > 4"))

		var pe ParseError
		Expect(errors.As(err, &pe)).To(BeTrue())
		Expect(pe.Position).To(Equal(22))
		Expect(pe.Message).To(ContainSubstring(`unknown field "cpu"`))
	})
})
