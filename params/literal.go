package params

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// LiteralError reports malformed literal text.
type LiteralError struct {
	Input  string
	Offset int // byte offset of the problem in Input
	Reason string
}

// Error implements the error interface.
func (e *LiteralError) Error() string {
	return fmt.Sprintf("params: %s at offset %d in %q", e.Reason, e.Offset, e.Input)
}

// ParseValue parses the literal form of a single value.
//
// The grammar is:
//
//	value   = "true" | "false" | "null" | int | float | string | list | record
//	int     = ["-"] digits
//	float   = ["-"] digits ("." digits | exponent) | "NaN" | "Infinity" | "-Infinity"
//	string  = Go quoted string
//	list    = "[" [value {"," value}] "]"
//	record  = "{" [key ":" value {"," key ":" value}] "}"
//
// For every value v, ParseValue(v.String()) yields a value with the same
// literal.
func ParseValue(s string) (Value, error) {
	sc := &scanner{src: s}
	v, err := sc.value()
	if err != nil {
		return nil, err
	}
	if !sc.isAtEnd() {
		return nil, sc.errorf("unexpected %q after value", sc.src[sc.pos:])
	}
	return v, nil
}

// ParseSpec parses a comma separated list of key=value pairs, the form
// produced by Spec.String. The empty string is the empty Spec.
func ParseSpec(s string) (Spec, error) {
	sc := &scanner{src: s}
	var b specBuilder
	for !sc.isAtEnd() {
		if b.len() > 0 {
			if !sc.match(',') {
				return Spec{}, sc.errorf("expected ',' between parameters")
			}
		}
		start := sc.pos
		key := sc.key()
		if key == "" {
			return Spec{}, sc.errorf("expected parameter name")
		}
		if !sc.match('=') {
			return Spec{}, sc.errorf("expected '=' after parameter %q", key)
		}
		v, err := sc.value()
		if err != nil {
			return Spec{}, err
		}
		if !b.add(key, v) {
			return Spec{}, &LiteralError{Input: s, Offset: start, Reason: fmt.Sprintf("duplicate parameter %q", key)}
		}
	}
	return b.spec(), nil
}

// scanner is a single-pass reader over literal text.
type scanner struct {
	src string
	pos int
}

func (s *scanner) value() (Value, error) {
	if s.isAtEnd() {
		return nil, s.errorf("expected value")
	}
	switch c := s.peek(); {
	case c == '"':
		return s.str()
	case c == '[':
		return s.list()
	case c == '{':
		return s.record()
	case c == '-' || isDigit(c):
		return s.number()
	case isKeyChar(c):
		return s.word()
	default:
		return nil, s.errorf("unexpected character %q", c)
	}
}

func (s *scanner) str() (Value, error) {
	start := s.pos
	s.pos++ // opening quote
	for !s.isAtEnd() {
		switch s.advance() {
		case '\\':
			if s.isAtEnd() {
				return nil, s.errorf("unterminated string")
			}
			s.pos++
		case '"':
			text, err := strconv.Unquote(s.src[start:s.pos])
			if err != nil {
				return nil, &LiteralError{Input: s.src, Offset: start, Reason: "invalid string: " + err.Error()}
			}
			return String(text), nil
		}
	}
	return nil, &LiteralError{Input: s.src, Offset: start, Reason: "unterminated string"}
}

func (s *scanner) list() (Value, error) {
	s.pos++ // [
	var elems []Value
	for {
		if s.match(']') {
			return &List{elems: elems}, nil
		}
		if len(elems) > 0 && !s.match(',') {
			return nil, s.errorf("expected ',' or ']' in list")
		}
		v, err := s.value()
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
	}
}

func (s *scanner) record() (Value, error) {
	s.pos++ // {
	var b specBuilder
	for {
		if s.match('}') {
			return &Record{spec: b.spec()}, nil
		}
		if b.len() > 0 && !s.match(',') {
			return nil, s.errorf("expected ',' or '}' in record")
		}
		start := s.pos
		key := s.key()
		if key == "" {
			return nil, s.errorf("expected record key")
		}
		if !s.match(':') {
			return nil, s.errorf("expected ':' after record key %q", key)
		}
		v, err := s.value()
		if err != nil {
			return nil, err
		}
		if !b.add(key, v) {
			return nil, &LiteralError{Input: s.src, Offset: start, Reason: fmt.Sprintf("duplicate record key %q", key)}
		}
	}
}

func (s *scanner) number() (Value, error) {
	start := s.pos
	if s.match('-') && strings.HasPrefix(s.src[s.pos:], "Infinity") {
		s.pos += len("Infinity")
		return Float(math.Inf(-1)), nil
	}
	isFloat := false
	for !s.isAtEnd() {
		c := s.peek()
		switch {
		case isDigit(c):
		case c == '.' || c == 'e' || c == 'E':
			isFloat = true
		case (c == '+' || c == '-') && (s.src[s.pos-1] == 'e' || s.src[s.pos-1] == 'E'):
		default:
			goto done
		}
		s.pos++
	}
done:
	text := s.src[start:s.pos]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, &LiteralError{Input: s.src, Offset: start, Reason: fmt.Sprintf("invalid number %q", text)}
		}
		return Float(f), nil
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, &LiteralError{Input: s.src, Offset: start, Reason: fmt.Sprintf("invalid integer %q", text)}
	}
	return Int(i), nil
}

func (s *scanner) word() (Value, error) {
	start := s.pos
	w := s.key()
	switch w {
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	case "null":
		return Null{}, nil
	case "NaN":
		return Float(math.NaN()), nil
	case "Infinity":
		return Float(math.Inf(1)), nil
	}
	return nil, &LiteralError{Input: s.src, Offset: start, Reason: fmt.Sprintf("unknown literal %q", w)}
}

// key consumes a run of key characters and returns it.
func (s *scanner) key() string {
	start := s.pos
	for !s.isAtEnd() && isKeyChar(s.peek()) {
		s.pos++
	}
	return s.src[start:s.pos]
}

func (s *scanner) advance() byte {
	c := s.src[s.pos]
	s.pos++
	return c
}

func (s *scanner) peek() byte { return s.src[s.pos] }

func (s *scanner) match(c byte) bool {
	if s.isAtEnd() || s.src[s.pos] != c {
		return false
	}
	s.pos++
	return true
}

func (s *scanner) isAtEnd() bool { return s.pos >= len(s.src) }

func (s *scanner) errorf(format string, args ...any) *LiteralError {
	return &LiteralError{Input: s.src, Offset: s.pos, Reason: fmt.Sprintf(format, args...)}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isKeyChar(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// ValidKey reports whether s can be used as a parameter or record key.
func ValidKey(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isKeyChar(s[i]) {
			return false
		}
	}
	return true
}
