package query

import (
	"strconv"
	"strings"
	"time"

	"github.com/nrms/data-bridge/pkg/apperr"
)

// ParseFilter parses the OData-subset filter grammar: primitive
// comparisons, and/or/not, and the three text-match functions.
// Any construct it does not recognize is a QueryError naming
// "unsupported construct".
func ParseFilter(input string) (Expr, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}

	p := &filterParser{tokens: tokenize(input)}

	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if p.pos != len(p.tokens) {
		return nil, apperr.New(apperr.KindQuery, "query", "ParseFilter", "unsupported construct: trailing input")
	}

	return expr, nil
}

// ParseSort parses a comma-separated "field [asc|desc]" list; missing
// direction defaults to ascending.
func ParseSort(input string) ([]SortClause, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}

	var clauses []SortClause
	for _, part := range strings.Split(input, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 || len(fields) > 2 {
			return nil, apperr.New(apperr.KindQuery, "query", "ParseSort", "invalid order_by clause: "+part)
		}

		ascending := true
		if len(fields) == 2 {
			switch strings.ToLower(fields[1]) {
			case "asc":
				ascending = true
			case "desc":
				ascending = false
			default:
				return nil, apperr.New(apperr.KindQuery, "query", "ParseSort", "invalid sort direction: "+fields[1])
			}
		}

		clauses = append(clauses, SortClause{Field: fields[0], Ascending: ascending})
	}

	return clauses, nil
}

// ParseSelect parses a comma-separated projection field list. Names
// must start with a letter or underscore and contain only letters,
// digits, underscore or dot.
func ParseSelect(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}

	var fields []string
	for _, part := range strings.Split(input, ",") {
		name := strings.TrimSpace(part)
		if !isValidSelectName(name) {
			continue
		}

		fields = append(fields, name)
	}

	return fields, nil
}

func isValidSelectName(name string) bool {
	if name == "" {
		return false
	}

	first := name[0]
	if !(first == '_' || (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z')) {
		return false
	}

	for i := 1; i < len(name); i++ {
		c := name[i]
		if c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			continue
		}

		return false
	}

	return true
}

// --- tokenizer ---

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenString
	tokenNumber
	tokenLParen
	tokenRParen
	tokenComma
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(input string) []token {
	var tokens []token

	i := 0
	for i < len(input) {
		c := input[i]

		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokenLParen, text: "("})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokenRParen, text: ")"})
			i++
		case c == ',':
			tokens = append(tokens, token{kind: tokenComma, text: ","})
			i++
		case c == '\'':
			j := i + 1
			var sb strings.Builder
			for j < len(input) && input[j] != '\'' {
				sb.WriteByte(input[j])
				j++
			}
			tokens = append(tokens, token{kind: tokenString, text: sb.String()})
			i = j + 1
		case (c >= '0' && c <= '9') || c == '-':
			j := i + 1
			for j < len(input) && (isDigit(input[j]) || input[j] == '.') {
				j++
			}
			tokens = append(tokens, token{kind: tokenNumber, text: input[i:j]})
			i = j
		default:
			j := i
			for j < len(input) && isIdentChar(input[j]) {
				j++
			}
			if j == i {
				i++

				continue
			}
			tokens = append(tokens, token{kind: tokenIdent, text: input[i:j]})
			i = j
		}
	}

	return tokens
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentChar(c byte) bool {
	return c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// --- recursive-descent parser ---

type filterParser struct {
	tokens []token
	pos    int
}

func (p *filterParser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}

	return p.tokens[p.pos], true
}

func (p *filterParser) next() (token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}

	return t, ok
}

func (p *filterParser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for {
		t, ok := p.peek()
		if !ok || t.kind != tokenIdent || strings.ToLower(t.text) != "or" {
			break
		}
		p.next()

		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}

		left = Logical{Op: "or", Left: left, Right: right}
	}

	return left, nil
}

func (p *filterParser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		t, ok := p.peek()
		if !ok || t.kind != tokenIdent || strings.ToLower(t.text) != "and" {
			break
		}
		p.next()

		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		left = Logical{Op: "and", Left: left, Right: right}
	}

	return left, nil
}

func (p *filterParser) parseUnary() (Expr, error) {
	if t, ok := p.peek(); ok && t.kind == tokenIdent && strings.ToLower(t.text) == "not" {
		p.next()

		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return Not{Inner: inner}, nil
	}

	return p.parsePrimary()
}

func (p *filterParser) parsePrimary() (Expr, error) {
	t, ok := p.peek()
	if !ok {
		return nil, apperr.New(apperr.KindQuery, "query", "parsePrimary", "unsupported construct: unexpected end of input")
	}

	if t.kind == tokenLParen {
		p.next()

		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		closing, ok := p.next()
		if !ok || closing.kind != tokenRParen {
			return nil, apperr.New(apperr.KindQuery, "query", "parsePrimary", "unsupported construct: missing closing paren")
		}

		return expr, nil
	}

	if t.kind == tokenIdent {
		lower := strings.ToLower(t.text)
		if lower == "contains" || lower == "startswith" || lower == "endswith" {
			return p.parseTextMatch(lower)
		}

		return p.parseComparison()
	}

	return nil, apperr.New(apperr.KindQuery, "query", "parsePrimary", "unsupported construct: "+t.text)
}

func (p *filterParser) parseTextMatch(kind string) (Expr, error) {
	p.next() // function name

	if lp, ok := p.next(); !ok || lp.kind != tokenLParen {
		return nil, apperr.New(apperr.KindQuery, "query", "parseTextMatch", "unsupported construct: expected '(' after "+kind)
	}

	field, ok := p.next()
	if !ok || field.kind != tokenIdent {
		return nil, apperr.New(apperr.KindQuery, "query", "parseTextMatch", "unsupported construct: expected field name")
	}

	if comma, ok := p.next(); !ok || comma.kind != tokenComma {
		return nil, apperr.New(apperr.KindQuery, "query", "parseTextMatch", "unsupported construct: expected ','")
	}

	value, ok := p.next()
	if !ok || value.kind != tokenString {
		return nil, apperr.New(apperr.KindQuery, "query", "parseTextMatch", "unsupported construct: expected string literal")
	}

	if rp, ok := p.next(); !ok || rp.kind != tokenRParen {
		return nil, apperr.New(apperr.KindQuery, "query", "parseTextMatch", "unsupported construct: expected ')'")
	}

	return TextMatch{Kind: kind, Field: field.text, Value: value.text}, nil
}

var comparisonOps = map[string]bool{
	"eq": true, "ne": true, "gt": true, "ge": true, "lt": true, "le": true,
}

func (p *filterParser) parseComparison() (Expr, error) {
	field, _ := p.next()

	opToken, ok := p.next()
	if !ok || opToken.kind != tokenIdent || !comparisonOps[strings.ToLower(opToken.text)] {
		return nil, apperr.New(apperr.KindQuery, "query", "parseComparison", "unsupported construct: expected comparison operator after "+field.text)
	}

	valueToken, ok := p.next()
	if !ok {
		return nil, apperr.New(apperr.KindQuery, "query", "parseComparison", "unsupported construct: missing operand")
	}

	literal, err := toLiteral(valueToken)
	if err != nil {
		return nil, err
	}

	return Comparison{Field: field.text, Op: strings.ToLower(opToken.text), Value: literal}, nil
}

func toLiteral(t token) (Literal, error) {
	switch t.kind {
	case tokenString:
		if parsed, err := time.Parse(time.RFC3339, t.text); err == nil {
			return Literal{Kind: LiteralDateTime, Value: parsed}, nil
		}

		return Literal{Kind: LiteralString, Value: t.text}, nil
	case tokenNumber:
		if strings.Contains(t.text, ".") {
			v, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return Literal{}, apperr.Wrap(apperr.KindQuery, "query", "toLiteral", "invalid numeric literal: "+t.text, err)
			}

			return Literal{Kind: LiteralDouble, Value: v}, nil
		}

		v, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return Literal{}, apperr.Wrap(apperr.KindQuery, "query", "toLiteral", "invalid numeric literal: "+t.text, err)
		}

		return Literal{Kind: LiteralLong, Value: v}, nil
	case tokenIdent:
		lower := strings.ToLower(t.text)
		if lower == "true" || lower == "false" {
			return Literal{Kind: LiteralBool, Value: lower == "true"}, nil
		}

		return Literal{Kind: LiteralString, Value: t.text}, nil
	default:
		return Literal{}, apperr.New(apperr.KindQuery, "query", "toLiteral", "unsupported construct: unexpected operand "+t.text)
	}
}
