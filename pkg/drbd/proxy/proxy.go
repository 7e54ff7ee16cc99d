// Package proxy parses the DRBD proxy configuration block:
//
//	proxy {
//		memlimit 100M;
//		plugin {
//			zlib level 9;
//		}
//	}
//
// Some drbdadm versions print this block as plain text instead of XML.
package proxy

import (
	"fmt"
	"strings"
	"unicode"
)

// PluginPrefix is prepended to keys declared inside a plugin block, so they
// cannot collide with top-level proxy options.
const PluginPrefix = "plugin-"

// Enabled is stored for flags declared without a value ("flag;").
const Enabled = "yes"

// ParseError is returned for malformed proxy blocks. It is distinct from "no
// proxy block found", which is not an error.
type ParseError struct {
	Msg string
	Pos int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("proxy config parse error at token %d: %s", e.Pos, e.Msg)
}

// Options are the parsed key/value pairs in declaration order.
type Options struct {
	keys   []string
	values map[string]string
}

func newOptions() *Options {
	return &Options{values: make(map[string]string)}
}

func (o *Options) set(k, v string) {
	if _, ok := o.values[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.values[k] = v
}

// Get returns the value of key k.
func (o *Options) Get(k string) (string, bool) {
	v, ok := o.values[k]
	return v, ok
}

// Keys returns all keys in declaration order.
func (o *Options) Keys() []string { return append([]string(nil), o.keys...) }

func (o *Options) Len() int { return len(o.keys) }

// tokenize splits on whitespace and makes '{', '}' and ';' tokens of their
// own.
func tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case r == '{' || r == '}' || r == ';':
			flush()
			tokens = append(tokens, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

type parser struct {
	tokens []string
	pos    int
	opts   *Options
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &ParseError{Msg: fmt.Sprintf(format, args...), Pos: p.pos}
}

func (p *parser) next() (string, bool) {
	if p.pos >= len(p.tokens) {
		return "", false
	}
	t := p.tokens[p.pos]
	p.pos++
	return t, true
}

func (p *parser) expect(want string) error {
	t, ok := p.next()
	if !ok {
		return p.errorf("expected %q, got end of input", want)
	}
	if t != want {
		return p.errorf("expected %q, got %q", want, t)
	}
	return nil
}

// block parses statements up to and including the closing brace.
func (p *parser) block(prefix string) error {
	for {
		t, ok := p.next()
		if !ok {
			return p.errorf("unbalanced braces: missing '}'")
		}
		switch t {
		case "}":
			return nil
		case "{", ";":
			return p.errorf("unexpected %q", t)
		case "plugin":
			if err := p.expect("{"); err != nil {
				return err
			}
			if err := p.block(PluginPrefix); err != nil {
				return err
			}
		default:
			if err := p.statement(prefix, t); err != nil {
				return err
			}
		}
	}
}

// statement parses "key value* ;" after key was consumed.
func (p *parser) statement(prefix, key string) error {
	var values []string
	for {
		t, ok := p.next()
		if !ok {
			return p.errorf("expected ';' after %q, got end of input", key)
		}
		switch t {
		case ";":
			v := Enabled
			if len(values) > 0 {
				v = strings.Join(values, " ")
			}
			p.opts.set(prefix+key, v)
			return nil
		case "{", "}":
			return p.errorf("expected ';' after %q, got %q", key, t)
		default:
			values = append(values, t)
		}
	}
}

// Parse looks for a proxy block in text. found is false, with a nil error, if
// there is no proxy block at all.
func Parse(text string) (opts *Options, found bool, err error) {
	tokens := tokenize(text)
	start := -1
	for i, t := range tokens {
		if t == "proxy" {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, false, nil
	}

	p := &parser{tokens: tokens, pos: start + 1, opts: newOptions()}
	if err := p.expect("{"); err != nil {
		return nil, true, err
	}
	if err := p.block(""); err != nil {
		return nil, true, err
	}
	return p.opts, true, nil
}
