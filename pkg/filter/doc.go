// Package filter parses the expressions `flowharness report --filter`
// accepts and renders them as a WHERE clause over the scenario results
// of the run journal.
//
//	status = 'failed' and feature ~ /kafka/
//	duration > 2m or (error ~ /timeout/ and name !~ /^Smoke/)
//	status in ('failed', 'undefined')
package filter

// Grammar
//
// --- PARSER RULES ---
//
// expression  : term ( "or" term )* ;
// term        : factor ( "and" factor )* ;
//
// factor      : comparison
//             | "(" expression ")" ;
//
// comparison  : IDENTIFIER ( "=" | "!=" | "<" | "<=" | ">" | ">=" ) value
//             | IDENTIFIER ( "~" | "!~" ) REGEX_LITERAL
//             | IDENTIFIER "in" "(" STRING ( "," STRING )* ")" ;
//
// value       : STRING | DURATION | BOOLEAN ;
//
// --- LEXER RULES ---
//
// IDENTIFIER    : [a-zA-Z_]+ ;
//
// // AWK-style regex: /pattern/
// REGEX_LITERAL : '/' ( '\\/' | . )*? '/' ;
//
// STRING        : "'" (.*?) "'" | "\"" (.*?) "\"" ;
// BOOLEAN       : "true" | "false" ;
//
// // Number of seconds with an optional unit suffix
// DURATION      : [0-9]+(\.[0-9]+)? ( 'ms' | 's' | 'm' | 'h' )? ;
//
// Identifiers are the columns of scenario_results plus the derived
// duration, in seconds:
//
//	id, feature, name, status, error, started_at, finished_at, duration
