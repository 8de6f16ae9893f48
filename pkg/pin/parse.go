package pin

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var numberPattern = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)

// Parse reads a pin from its lenient string form.
//
// The grammar is a relaxed JSON object: surrounding braces are optional, keys
// and string values may be bare words or quoted with ' or ", numbers, true,
// false and null are recognized, and values may be nested {..} objects or
// [..] arrays. Whitespace around tokens is ignored.
//
//	role:user,cmd:create       -> {role:"user", cmd:"create"}
//	a:1, b:{c:"x y"}, d:[1,2]  -> {a:1, b:{c:"x y"}, d:[1,2]}
func Parse(s string) (Pin, error) {
	p := &parser{src: s}
	p.skipSpace()
	if p.eof() {
		return Pin{}, nil
	}

	var (
		m   map[string]any
		err error
	)
	if p.peek() == '{' {
		m, err = p.object()
	} else {
		m, err = p.pairs(0)
	}
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected %q", p.peek())
	}
	return Pin(m), nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool  { return p.pos >= len(p.src) }
func (p *parser) peek() byte { return p.src[p.pos] }

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.peek() {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s at offset %d", ErrInvalidPin, fmt.Sprintf(format, args...), p.pos)
}

// pairs reads key:value pairs until end (0 means end of input).
func (p *parser) pairs(end byte) (map[string]any, error) {
	m := make(map[string]any)
	for {
		p.skipSpace()
		if p.eof() || p.peek() == end {
			return m, nil
		}

		key, err := p.key()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.eof() || p.peek() != ':' {
			return nil, p.errorf("missing ':' after key %q", key)
		}
		p.pos++

		val, err := p.value(end)
		if err != nil {
			return nil, err
		}
		m[key] = val

		p.skipSpace()
		if p.eof() || p.peek() == end {
			return m, nil
		}
		if p.peek() != ',' {
			return nil, p.errorf("unexpected %q", p.peek())
		}
		p.pos++
	}
}

func (p *parser) key() (string, error) {
	if c := p.peek(); c == '"' || c == '\'' {
		return p.quoted()
	}
	start := p.pos
	for !p.eof() && !strings.ContainsRune(":,{}[]", rune(p.peek())) {
		p.pos++
	}
	key := strings.TrimSpace(p.src[start:p.pos])
	if key == "" {
		return "", p.errorf("empty key")
	}
	return key, nil
}

func (p *parser) value(end byte) (any, error) {
	p.skipSpace()
	if p.eof() {
		return nil, nil
	}
	switch p.peek() {
	case '{':
		return p.object()
	case '[':
		return p.array()
	case '"', '\'':
		return p.quoted()
	}

	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c == ',' || c == '}' || c == ']' || (end != 0 && c == end) {
			break
		}
		p.pos++
	}
	token := strings.TrimSpace(p.src[start:p.pos])
	if token == "" {
		return nil, nil
	}
	if v, ok := literal(token); ok {
		return v, nil
	}
	return token, nil
}

func (p *parser) object() (map[string]any, error) {
	p.pos++ // {
	m, err := p.pairs('}')
	if err != nil {
		return nil, err
	}
	if p.eof() {
		return nil, p.errorf("unterminated object")
	}
	p.pos++ // }
	return m, nil
}

func (p *parser) array() ([]any, error) {
	p.pos++ // [
	out := []any{}
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf("unterminated array")
		}
		if p.peek() == ']' {
			p.pos++
			return out, nil
		}

		val, err := p.value(']')
		if err != nil {
			return nil, err
		}
		out = append(out, val)

		p.skipSpace()
		if !p.eof() && p.peek() == ',' {
			p.pos++
		}
	}
}

func (p *parser) quoted() (string, error) {
	quote := p.peek()
	start := p.pos
	p.pos++
	for !p.eof() {
		switch p.peek() {
		case '\\':
			p.pos += 2
			continue
		case quote:
			p.pos++
			raw := p.src[start:p.pos]
			if quote == '\'' {
				raw = requote(raw[1 : len(raw)-1])
			}
			s, err := strconv.Unquote(raw)
			if err != nil {
				return "", p.errorf("invalid string %s", raw)
			}
			return s, nil
		}
		p.pos++
	}
	return "", p.errorf("unterminated string")
}

// requote turns the body of a single-quoted string into a double-quoted Go
// literal. Escapes are kept except \' and bare double quotes get escaped.
func requote(body string) string {
	var b strings.Builder
	b.Grow(len(body) + 2)
	b.WriteByte('"')
	for i := 0; i < len(body); i++ {
		switch c := body[i]; {
		case c == '\\' && i+1 < len(body):
			i++
			if body[i] != '\'' {
				b.WriteByte('\\')
			}
			b.WriteByte(body[i])
		case c == '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// literal converts bare tokens that denote numbers, booleans or null.
func literal(token string) (any, bool) {
	switch token {
	case "true":
		return true, true
	case "false":
		return false, true
	case "null":
		return nil, true
	}
	if numberPattern.MatchString(token) {
		if f, err := strconv.ParseFloat(token, 64); err == nil {
			return f, true
		}
	}
	return nil, false
}
