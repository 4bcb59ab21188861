package catalog

import (
	"fmt"
	"strings"
	"unicode"
)

// Textual condition expressions are one of the two encodings reference data
// may carry for a package (the other is structured condition-group rows).
// The grammar is strict: malformed or ambiguous expressions are rejected at
// load time instead of being repaired heuristically.
//
//	expr    := orExpr
//	orExpr  := andExpr { "OR" andExpr }
//	andExpr := notExpr { "AND" notExpr }
//	notExpr := "NOT" notExpr | primary
//	primary := "(" expr ")" | clause
//	clause  := LABEL [ ":" operand ]
//
// NOT binds tightest, then AND, then OR; parentheses always override.

// clauseLabels are the short labels used in textual expressions, in
// addition to the canonical kind names accepted by ParsePredicateKind.
var clauseLabels = map[string]PredicateKind{
	"ICD-TABLE": PredDiagnosisInTable,
	"ICD":       PredDiagnosisEquals,
	"ATC-TABLE": PredMedicationInTable,
	"LKN-TABLE": PredServiceInTable,
	"LKN":       PredServiceEquals,
	"AGE":       PredAgeInRange,
	"SEX":       PredSexEquals,
}

// ParseCondition parses a textual condition expression into a tree.
func ParseCondition(expr string) (*ConditionNode, error) {
	toks, err := lexCondition(expr)
	if err != nil {
		return nil, err
	}
	p := &condParser{toks: toks}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, fmt.Errorf("condition %q: unexpected %q at position %d", expr, p.peek().text, p.peek().pos)
	}
	return node, nil
}

type tokenKind int

const (
	tokClause tokenKind = iota
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type condToken struct {
	kind tokenKind
	text string
	pos  int
}

func lexCondition(expr string) ([]condToken, error) {
	var toks []condToken
	runes := []rune(expr)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, condToken{tokLParen, "(", i})
			i++
		case r == ')':
			toks = append(toks, condToken{tokRParen, ")", i})
			i++
		default:
			start := i
			for i < len(runes) && !unicode.IsSpace(runes[i]) && runes[i] != '(' && runes[i] != ')' {
				i++
			}
			word := string(runes[start:i])
			switch strings.ToUpper(word) {
			case "AND":
				toks = append(toks, condToken{tokAnd, word, start})
			case "OR":
				toks = append(toks, condToken{tokOr, word, start})
			case "NOT":
				toks = append(toks, condToken{tokNot, word, start})
			default:
				toks = append(toks, condToken{tokClause, word, start})
			}
		}
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty condition expression")
	}
	return toks, nil
}

type condParser struct {
	toks []condToken
	idx  int
}

func (p *condParser) eof() bool        { return p.idx >= len(p.toks) }
func (p *condParser) peek() condToken  { return p.toks[p.idx] }
func (p *condParser) next() condToken  { t := p.toks[p.idx]; p.idx++; return t }
func (p *condParser) accept(k tokenKind) bool {
	if !p.eof() && p.toks[p.idx].kind == k {
		p.idx++
		return true
	}
	return false
}

func (p *condParser) parseOr() (*ConditionNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []*ConditionNode{left}
	for p.accept(tokOr) {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return Or(children...), nil
}

func (p *condParser) parseAnd() (*ConditionNode, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	children := []*ConditionNode{left}
	for p.accept(tokAnd) {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return And(children...), nil
}

func (p *condParser) parseNot() (*ConditionNode, error) {
	if p.accept(tokNot) {
		child, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not(child), nil
	}
	return p.parsePrimary()
}

func (p *condParser) parsePrimary() (*ConditionNode, error) {
	if p.eof() {
		return nil, fmt.Errorf("unexpected end of condition expression")
	}
	t := p.next()
	switch t.kind {
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.accept(tokRParen) {
			return nil, fmt.Errorf("missing closing parenthesis for group opened at position %d", t.pos)
		}
		return inner, nil
	case tokClause:
		return parseClauseToken(t)
	default:
		return nil, fmt.Errorf("unexpected %q at position %d", t.text, t.pos)
	}
}

func parseClauseToken(t condToken) (*ConditionNode, error) {
	label := t.text
	operand := ""
	if idx := strings.Index(t.text, ":"); idx >= 0 {
		label = t.text[:idx]
		operand = t.text[idx+1:]
	}

	kind, ok := clauseLabels[strings.ToUpper(label)]
	if !ok {
		var err error
		kind, err = ParsePredicateKind(label)
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", t.pos, err)
		}
	}
	if operand == "" {
		return nil, fmt.Errorf("clause %q at position %d: missing operand", t.text, t.pos)
	}
	if kind == PredAgeInRange {
		if _, _, err := ParseAgeRange(operand); err != nil {
			return nil, fmt.Errorf("clause %q at position %d: %w", t.text, t.pos, err)
		}
	}
	return Clause(kind, operand), nil
}
