// Package filter assembles filter expressions for scoped retrieval. The
// expressions use the grammar understood by the vector store layer.
package filter

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// ByFileIDs builds an expression matching any of the given document IDs.
// Zero IDs yield the empty expression; one ID yields a bare equality; more
// yield a parenthesized disjunction. IDs are sorted so the expression is
// deterministic.
func ByFileIDs(ids []string) string {
	switch len(ids) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("file_id == %q", ids[0])
	}

	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = fmt.Sprintf("file_id == %q", id)
	}
	return "(" + strings.Join(parts, " or ") + ")"
}

// And conjoins two expressions, tolerating either being empty. An operand
// with a top-level disjunction is parenthesized first: `and` binds tighter
// than `or` in the grammar, so a bare disjunct would escape the
// conjunction's scope.
func And(a, b string) string {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return group(a) + " and " + group(b)
	}
}

func group(expr string) string {
	if hasTopLevelOr(expr) {
		return "(" + expr + ")"
	}
	return expr
}

// hasTopLevelOr reports whether expr contains an `or` keyword outside any
// parentheses, brackets or string literal.
func hasTopLevelOr(expr string) bool {
	depth := 0
	inString := false
	runes := []rune(expr)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case inString:
			if r == '\\' {
				i++
			} else if r == '"' {
				inString = false
			}
		case r == '"':
			inString = true
		case r == '(' || r == '[':
			depth++
		case r == ')' || r == ']':
			depth--
		case depth == 0 && (r == 'o' || r == 'O'):
			if i+1 < len(runes) && (runes[i+1] == 'r' || runes[i+1] == 'R') {
				before := i == 0 || isWordBoundary(runes[i-1])
				after := i+2 >= len(runes) || isWordBoundary(runes[i+2])
				if before && after {
					return true
				}
			}
		}
	}
	return false
}

func isWordBoundary(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}

// In builds a membership test over integer values.
func In(field string, values []int) string {
	if len(values) == 0 {
		return ""
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return fmt.Sprintf("%s in [%s]", field, strings.Join(parts, ", "))
}

// InStrings builds a membership test over string values.
func InStrings(field string, values []string) string {
	if len(values) == 0 {
		return ""
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%q", v)
	}
	return fmt.Sprintf("%s in [%s]", field, strings.Join(parts, ", "))
}
