package store

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/ragpipe/ragpipe/pkg/domain"
)

// The filter grammar accepted by Search:
//
//	expr  := conj ('or' conj)*
//	conj  := atom ('and' atom)*
//	atom  := field op literal
//	       | field 'in' '[' literal (',' literal)* ']'
//	       | '(' expr ')'
//	op    := '==' | '!=' | '>' | '>=' | '<' | '<='
//
// Strings are double-quoted. The parser translates expressions into qdrant
// payload conditions; a syntax violation is fatal.

// fieldKeys maps grammar-level field names onto the payload keys that carry
// a filterable representation. The wire format keeps pages and chapters as
// comma-joined strings, so list filters run against the typed companion
// fields written at record preparation.
var fieldKeys = map[string]string{
	"pages":     "page_numbers",
	"chapters":  "chapter_labels",
	"num_image": "image_number",
	"type_file": "file_type",
}

func payloadKey(field string) string {
	if mapped, ok := fieldKeys[field]; ok {
		return mapped
	}
	return field
}

// ParseFilter compiles a filter expression into a qdrant filter. An empty
// expression yields nil.
func ParseFilter(expr string) (*pb.Filter, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	filter, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, fmt.Errorf("%w: unexpected %q", domain.ErrFilterSyntax, p.peek().text)
	}
	return filter, nil
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokOp      // == != > >= < <=
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++
		case r == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++
		case r == '[':
			tokens = append(tokens, token{tokLBracket, "["})
			i++
		case r == ']':
			tokens = append(tokens, token{tokRBracket, "]"})
			i++
		case r == ',':
			tokens = append(tokens, token{tokComma, ","})
			i++
		case r == '"':
			j := i + 1
			var sb strings.Builder
			for j < len(runes) && runes[j] != '"' {
				if runes[j] == '\\' && j+1 < len(runes) {
					j++
				}
				sb.WriteRune(runes[j])
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("%w: unterminated string", domain.ErrFilterSyntax)
			}
			tokens = append(tokens, token{tokString, sb.String()})
			i = j + 1
		case r == '=' || r == '!' || r == '>' || r == '<':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{tokOp, string(runes[i : i+2])})
				i += 2
			} else if r == '>' || r == '<' {
				tokens = append(tokens, token{tokOp, string(r)})
				i++
			} else {
				return nil, fmt.Errorf("%w: stray %q", domain.ErrFilterSyntax, string(r))
			}
		case r == '-' || unicode.IsDigit(r):
			j := i + 1
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			tokens = append(tokens, token{tokNumber, string(runes[i:j])})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i + 1
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			tokens = append(tokens, token{tokIdent, string(runes[i:j])})
			i = j
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", domain.ErrFilterSyntax, string(r))
		}
	}
	return tokens, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) done() bool { return p.pos >= len(p.tokens) }

func (p *parser) peek() token {
	if p.done() {
		return token{}
	}
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) keyword(word string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.text, word) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseExpr() (*pb.Filter, error) {
	first, err := p.parseConj()
	if err != nil {
		return nil, err
	}
	if !p.keyword("or") {
		return first, nil
	}

	conds := []*pb.Condition{filterCondition(first)}
	for {
		conj, err := p.parseConj()
		if err != nil {
			return nil, err
		}
		conds = append(conds, filterCondition(conj))
		if !p.keyword("or") {
			break
		}
	}
	return &pb.Filter{Should: conds}, nil
}

func (p *parser) parseConj() (*pb.Filter, error) {
	cond, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	conds := []*pb.Condition{cond}
	for p.keyword("and") {
		cond, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return &pb.Filter{Must: conds}, nil
}

func (p *parser) parseAtom() (*pb.Condition, error) {
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("%w: missing closing parenthesis", domain.ErrFilterSyntax)
		}
		return filterCondition(inner), nil
	}

	fieldTok := p.next()
	if fieldTok.kind != tokIdent {
		return nil, fmt.Errorf("%w: expected field name, got %q", domain.ErrFilterSyntax, fieldTok.text)
	}
	field := payloadKey(fieldTok.text)

	if p.keyword("in") {
		return p.parseInList(field)
	}

	opTok := p.next()
	if opTok.kind != tokOp {
		return nil, fmt.Errorf("%w: expected operator after %q", domain.ErrFilterSyntax, fieldTok.text)
	}
	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return comparison(field, opTok.text, lit)
}

func (p *parser) parseInList(field string) (*pb.Condition, error) {
	if p.next().kind != tokLBracket {
		return nil, fmt.Errorf("%w: expected '[' after in", domain.ErrFilterSyntax)
	}
	var strs []string
	var ints []int64
	for {
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		switch v := lit.(type) {
		case string:
			strs = append(strs, v)
		case int64:
			ints = append(ints, v)
		default:
			return nil, fmt.Errorf("%w: unsupported literal in list", domain.ErrFilterSyntax)
		}
		t := p.next()
		if t.kind == tokRBracket {
			break
		}
		if t.kind != tokComma {
			return nil, fmt.Errorf("%w: expected ',' or ']' in list", domain.ErrFilterSyntax)
		}
	}
	if len(strs) > 0 && len(ints) > 0 {
		return nil, fmt.Errorf("%w: mixed literal types in list", domain.ErrFilterSyntax)
	}

	var match *pb.Match
	if len(strs) > 0 {
		match = &pb.Match{MatchValue: &pb.Match_Keywords{Keywords: &pb.RepeatedStrings{Strings: strs}}}
	} else {
		match = &pb.Match{MatchValue: &pb.Match_Integers{Integers: &pb.RepeatedIntegers{Integers: ints}}}
	}
	return fieldCondition(field, match, nil), nil
}

func (p *parser) parseLiteral() (interface{}, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return t.text, nil
	case tokNumber:
		if strings.Contains(t.text, ".") {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad number %q", domain.ErrFilterSyntax, t.text)
			}
			return f, nil
		}
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q", domain.ErrFilterSyntax, t.text)
		}
		return n, nil
	case tokIdent:
		if strings.EqualFold(t.text, "true") {
			return true, nil
		}
		if strings.EqualFold(t.text, "false") {
			return false, nil
		}
		return nil, fmt.Errorf("%w: bare identifier %q is not a literal", domain.ErrFilterSyntax, t.text)
	default:
		return nil, fmt.Errorf("%w: expected literal, got %q", domain.ErrFilterSyntax, t.text)
	}
}

func comparison(field, op string, lit interface{}) (*pb.Condition, error) {
	switch op {
	case "==", "!=":
		match, err := equalityMatch(lit)
		if err != nil {
			return nil, err
		}
		eq := fieldCondition(field, match, nil)
		if op == "==" {
			return eq, nil
		}
		return filterCondition(&pb.Filter{MustNot: []*pb.Condition{eq}}), nil
	case ">", ">=", "<", "<=":
		value, ok := numeric(lit)
		if !ok {
			return nil, fmt.Errorf("%w: %s requires a numeric literal", domain.ErrFilterSyntax, op)
		}
		r := &pb.Range{}
		switch op {
		case ">":
			r.Gt = &value
		case ">=":
			r.Gte = &value
		case "<":
			r.Lt = &value
		case "<=":
			r.Lte = &value
		}
		return fieldCondition(field, nil, r), nil
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", domain.ErrFilterSyntax, op)
	}
}

func equalityMatch(lit interface{}) (*pb.Match, error) {
	switch v := lit.(type) {
	case string:
		return &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: v}}, nil
	case int64:
		return &pb.Match{MatchValue: &pb.Match_Integer{Integer: v}}, nil
	case bool:
		return &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: v}}, nil
	default:
		return nil, fmt.Errorf("%w: equality against unsupported literal type", domain.ErrFilterSyntax)
	}
}

func numeric(lit interface{}) (float64, bool) {
	switch v := lit.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func fieldCondition(key string, match *pb.Match, r *pb.Range) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{Key: key, Match: match, Range: r},
		},
	}
}

// filterCondition wraps a sub-filter as a condition, unwrapping the trivial
// single-condition case.
func filterCondition(f *pb.Filter) *pb.Condition {
	if f != nil && len(f.Must) == 1 && len(f.Should) == 0 && len(f.MustNot) == 0 {
		return f.Must[0]
	}
	return &pb.Condition{ConditionOneOf: &pb.Condition_Filter{Filter: f}}
}
