package lang

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseTuple decodes a python tuple literal of string items, e.g.
// "('a', \"b\")", "('a',)" or "()". Only string items are accepted.
func ParseTuple(s string) ([]string, error) {
	p := tupleParser{src: strings.TrimSpace(s)}
	if !p.consume('(') {
		return nil, fmt.Errorf("tuple literal must start with '(': %q", s)
	}

	items := []string{}
	for {
		p.skipSpace()
		if p.consume(')') {
			break
		}
		item, err := p.str()
		if err != nil {
			return nil, fmt.Errorf("%w in %q", err, s)
		}
		items = append(items, item)

		p.skipSpace()
		if p.consume(',') {
			continue
		}
		if p.consume(')') {
			break
		}
		return nil, fmt.Errorf("expected ',' or ')' at offset %d in %q", p.pos, s)
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("trailing data after tuple in %q", s)
	}
	return items, nil
}

type tupleParser struct {
	src string
	pos int
}

func (p *tupleParser) skipSpace() {
	for p.pos < len(p.src) && strings.IndexByte(" \t\r\n", p.src[p.pos]) >= 0 {
		p.pos++
	}
}

func (p *tupleParser) consume(c byte) bool {
	if p.pos < len(p.src) && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

// str reads one quoted item. Escapes follow strconv.UnquoteChar, which
// covers the python forms used in these files.
func (p *tupleParser) str() (string, error) {
	if p.pos >= len(p.src) {
		return "", fmt.Errorf("unexpected end of tuple")
	}
	quote := p.src[p.pos]
	if quote != '\'' && quote != '"' {
		return "", fmt.Errorf("expected quoted string at offset %d", p.pos)
	}
	p.pos++

	var sb strings.Builder
	rest := p.src[p.pos:]
	for {
		if rest == "" {
			return "", fmt.Errorf("unterminated string")
		}
		if rest[0] == quote {
			p.pos = len(p.src) - len(rest) + 1
			return sb.String(), nil
		}
		r, _, tail, err := strconv.UnquoteChar(rest, quote)
		if err != nil {
			return "", fmt.Errorf("bad escape at offset %d", len(p.src)-len(rest))
		}
		sb.WriteRune(r)
		rest = tail
	}
}
