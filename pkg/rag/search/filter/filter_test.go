package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByFileIDs(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		want string
	}{
		{"empty", nil, ""},
		{"single", []string{"abc"}, `file_id == "abc"`},
		{"pair", []string{"b", "a"}, `(file_id == "a" or file_id == "b")`},
		{
			"three",
			[]string{"c", "a", "b"},
			`(file_id == "a" or file_id == "b" or file_id == "c")`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ByFileIDs(tt.ids))
		})
	}
}

func TestByFileIDsDoesNotMutateInput(t *testing.T) {
	ids := []string{"z", "a"}
	ByFileIDs(ids)
	assert.Equal(t, []string{"z", "a"}, ids)
}

func TestAnd(t *testing.T) {
	assert.Equal(t, "", And("", ""))
	assert.Equal(t, `a == "1"`, And(`a == "1"`, ""))
	assert.Equal(t, `b == "2"`, And("", `b == "2"`))
	assert.Equal(t, `a == "1" and b == "2"`, And(`a == "1"`, `b == "2"`))
	assert.Equal(t, `a == "1"`, And("  a == \"1\"  ", "  "))
}

func TestAndGroupsDisjunctions(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want string
	}{
		{
			"disjunctive right operand",
			`file_id == "doc_001"`,
			`type_file == "pdf" or pages in [1]`,
			`file_id == "doc_001" and (type_file == "pdf" or pages in [1])`,
		},
		{
			"disjunctive left operand",
			`a == "1" or b == "2"`,
			`c == "3"`,
			`(a == "1" or b == "2") and c == "3"`,
		},
		{
			"already parenthesized stays as is",
			`(a == "1" or b == "2")`,
			`c == "3"`,
			`(a == "1" or b == "2") and c == "3"`,
		},
		{
			"or inside a string literal",
			`a == "x or y"`,
			`b == "2"`,
			`a == "x or y" and b == "2"`,
		},
		{
			"or as identifier fragment",
			`order == "asc"`,
			`b == "2"`,
			`order == "asc" and b == "2"`,
		},
		{
			"uppercase or",
			`a == "1" OR b == "2"`,
			`c == "3"`,
			`(a == "1" OR b == "2") and c == "3"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, And(tt.a, tt.b))
		})
	}
}

func TestIn(t *testing.T) {
	assert.Equal(t, "", In("pages", nil))
	assert.Equal(t, "pages in [3]", In("pages", []int{3}))
	assert.Equal(t, "pages in [1, 2, 5]", In("pages", []int{1, 2, 5}))
}

func TestInStrings(t *testing.T) {
	assert.Equal(t, "", InStrings("chapters", nil))
	assert.Equal(t, `chapters in ["I", "II"]`, InStrings("chapters", []string{"I", "II"}))
}
