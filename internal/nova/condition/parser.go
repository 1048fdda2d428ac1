// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package condition

import "github.com/nova-sec/nova/internal/nova/pattern"

// Parse compiles condition text into an AST (spec.md §4.3.1), precedence
// tight to loose: not > and > or, left-associative, parentheses override.
func Parse(src string) (Expr, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, src: src}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, newConditionError(src, p.peek().pos, "unexpected trailing input %q", p.peek().text)
	}
	return expr, nil
}

type parser struct {
	toks []token
	pos  int
	src  string
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(k tokenKind, what string) (token, error) {
	t := p.peek()
	if t.kind != k {
		return token{}, newConditionError(p.src, t.pos, "expected %s, found %q", what, t.text)
	}
	return p.next(), nil
}

func isWord(t token, word string) bool {
	return t.kind == tokIdent && t.text == word
}

func isSectionWord(t token) (pattern.Section, bool) {
	if t.kind != tokIdent {
		return "", false
	}
	switch t.text {
	case string(pattern.SectionKeywords):
		return pattern.SectionKeywords, true
	case string(pattern.SectionFuzzy):
		return pattern.SectionFuzzy, true
	case string(pattern.SectionSemantics):
		return pattern.SectionSemantics, true
	case string(pattern.SectionLLM):
		return pattern.SectionLLM, true
	default:
		return "", false
	}
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for isWord(p.peek(), "or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for isWord(p.peek(), "and") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if isWord(p.peek(), "not") {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Not{X: inner}, nil
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() (Expr, error) {
	t := p.peek()

	switch {
	case isWord(t, "any"):
		p.next()
		ofTok := p.peek()
		if !isWord(ofTok, "of") {
			return nil, newConditionError(p.src, ofTok.pos, "expected 'of' after 'any', found %q", ofTok.text)
		}
		p.next()
		return p.parseQuantifierTarget()

	case t.kind == tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil

	default:
		if section, ok := isSectionWord(t); ok {
			p.next()
			if _, err := p.expect(tokDot, "'.'"); err != nil {
				return nil, err
			}
			return p.parseSectionSuffix(section)
		}
		if t.kind == tokVar {
			p.next()
			return &VarRef{HasSection: false, Name: trimVarSigil(t.text)}, nil
		}
		return nil, newConditionError(p.src, t.pos, "unexpected token %q", t.text)
	}
}

// parseQuantifierTarget parses what follows "any of": either
// "section.*" or "($prefix*)".
func (p *parser) parseQuantifierTarget() (Expr, error) {
	t := p.peek()
	if section, ok := isSectionWord(t); ok {
		p.next()
		if _, err := p.expect(tokDot, "'.'"); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokStar, "'*'"); err != nil {
			return nil, err
		}
		return &SectionWildcard{Section: section}, nil
	}
	if t.kind == tokLParen {
		p.next()
		varTok, err := p.expect(tokVar, "a '$name' variable")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokStar, "'*'"); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return &AnyOfPrefix{Prefix: trimVarSigil(varTok.text)}, nil
	}
	return nil, newConditionError(p.src, t.pos, "expected a section wildcard or '($prefix*)' after 'any of', found %q", t.text)
}

// parseSectionSuffix parses what follows "section.": "*" (a section
// wildcard, legal standalone per spec.md §4.3.2's semantics even without
// a leading "any of"), or "$name" optionally followed by "*".
func (p *parser) parseSectionSuffix(section pattern.Section) (Expr, error) {
	t := p.peek()
	if t.kind == tokStar {
		p.next()
		return &SectionWildcard{Section: section}, nil
	}
	if t.kind == tokVar {
		p.next()
		name := trimVarSigil(t.text)
		if p.peek().kind == tokStar {
			p.next()
			return &VarRef{HasSection: true, Section: section, Name: name, Wildcard: true}, nil
		}
		return &VarRef{HasSection: true, Section: section, Name: name}, nil
	}
	return nil, newConditionError(p.src, t.pos, "expected '*' or '$name' after '%s.'", section)
}
