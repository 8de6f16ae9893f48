package pin

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// Pin is a routing key: a set of field/value pairs that addresses an action.
// Field order is irrelevant. Numbers are stored as float64.
type Pin map[string]any

// Input is either a Raw pin string or a Structured mapping.
// A Pin is itself a valid Input.
type Input interface {
	normalize() (Pin, error)
}

// Raw is a pin in its string form, e.g. "role:user,cmd:create".
type Raw string

func (r Raw) normalize() (Pin, error) {
	return Parse(string(r))
}

// Structured is a pin in its mapping form.
type Structured map[string]any

func (s Structured) normalize() (Pin, error) {
	return Pin(cloneMap(s)), nil
}

func (p Pin) normalize() (Pin, error) {
	return p.Clone(), nil
}

// FromAny lifts a dynamically typed value into an Input.
// Strings become Raw, string-keyed maps become Structured; anything else is rejected.
func FromAny(v any) (Input, error) {
	switch t := v.(type) {
	case Input:
		return t, nil
	case string:
		return Raw(t), nil
	case map[string]any:
		return Structured(t), nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrInvalidPin, v)
	}
}

// Normalize converts any Input into a fresh Pin that shares no state with the input.
func Normalize(in Input) (Pin, error) {
	if in == nil {
		return nil, ErrInvalidPin
	}
	return in.normalize()
}

// Merge normalizes both operands and merges b over a.
// Fields present in both take b's value; nested mappings are merged recursively.
// An empty operand acts as identity. The result never aliases a or b.
func Merge(a, b Input) (Pin, error) {
	left, err := Normalize(a)
	if err != nil {
		return nil, err
	}
	right, err := Normalize(b)
	if err != nil {
		return nil, err
	}
	mergeInto(left, right)
	return left, nil
}

// MustMerge is like Merge but panics on error.
func MustMerge(a, b Input) Pin {
	p, err := Merge(a, b)
	if err != nil {
		panic(err)
	}
	return p
}

// Clone returns a deep copy of the pin.
func (p Pin) Clone() Pin {
	return Pin(cloneMap(p))
}

// Matches reports whether every field of the pin is present in msg with an equal value.
// An empty pin matches every message.
func (p Pin) Matches(msg map[string]any) bool {
	for k, want := range p {
		got, ok := msg[k]
		if !ok || !equal(want, got) {
			return false
		}
	}
	return true
}

// String returns the canonical form of the pin: keys sorted, values formatted
// so that Parse(p.String()) yields an equal pin.
func (p Pin) String() string {
	return formatMap(p)
}

func mergeInto(dst, src map[string]any) {
	for k, sv := range src {
		if sm, ok := asMap(sv); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				mergeInto(dm, sm)
				continue
			}
		}
		dst[k] = cloneValue(sv)
	}
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Pin:
		return t, true
	case Structured:
		return t, true
	default:
		return nil, false
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	if m, ok := asMap(v); ok {
		return cloneMap(m)
	}
	if s, ok := v.([]any); ok {
		out := make([]any, len(s))
		for i := range s {
			out[i] = cloneValue(s[i])
		}
		return out
	}
	return v
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ma, ok := asMap(a); ok {
		mb, ok := asMap(b)
		if !ok || len(ma) != len(mb) {
			return false
		}
		return Pin(ma).Matches(mb)
	}
	if sa, ok := a.([]any); ok {
		sb, ok := b.([]any)
		if !ok || len(sa) != len(sb) {
			return false
		}
		for i := range sa {
			if !equal(sa[i], sb[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func formatMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(formatString(k))
		b.WriteByte(':')
		b.WriteString(formatValue(m[k]))
	}
	return b.String()
}

func formatValue(v any) string {
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if m, ok := asMap(v); ok {
		return "{" + formatMap(m) + "}"
	}
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(t)
	case string:
		return formatString(t)
	case []any:
		parts := make([]string, len(t))
		for i := range t {
			parts[i] = formatValue(t[i])
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return strconv.Quote(fmt.Sprint(t))
	}
}

// formatString leaves a string bare when parsing it back yields the same string.
func formatString(s string) string {
	if s == "" || s != strings.TrimSpace(s) || strings.ContainsAny(s, `,:{}[]"'\`) {
		return strconv.Quote(s)
	}
	if _, isLiteral := literal(s); isLiteral {
		return strconv.Quote(s)
	}
	return s
}
