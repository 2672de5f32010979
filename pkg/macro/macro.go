// Package macro expands "${name}" references in device id templates.
package macro

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/valyala/fasttemplate"
)

const (
	startTag = "${"
	endTag   = "}"
)

var (
	// ErrMalformed is returned for templates that cannot be parsed, e.g. an unterminated
	// "${" or an empty variable name.
	ErrMalformed = errors.New("malformed template")
	// ErrUnboundVariable is returned when a template references a name missing from the
	// bindings.
	ErrUnboundVariable = errors.New("unbound variable")
)

// Template is a parsed template. It is safe for concurrent use.
type Template struct {
	raw  string
	tmpl *fasttemplate.Template
}

// Parse parses s.
func Parse(s string) (*Template, error) {
	if !strings.Contains(s, startTag) {
		return &Template{raw: s}, nil
	}
	tmpl, err := fasttemplate.NewTemplate(s, startTag, endTag)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "%q: %s", s, err)
	}
	t := &Template{raw: s, tmpl: tmpl}
	// Reject empty names up front so Execute only fails on missing bindings.
	if _, err := t.execute(func(name string) (string, error) {
		if strings.TrimSpace(name) == "" {
			return "", errors.Wrapf(ErrMalformed, "%q: empty variable name", s)
		}
		return "", nil
	}); err != nil {
		return nil, err
	}
	return t, nil
}

// String returns the unparsed template.
func (t *Template) String() string { return t.raw }

// Execute substitutes vars into the template.
func (t *Template) Execute(vars map[string]string) (string, error) {
	return t.execute(func(name string) (string, error) {
		v, ok := vars[name]
		if !ok {
			return "", errors.Wrapf(ErrUnboundVariable, "%q in %q", name, t.raw)
		}
		return v, nil
	})
}

func (t *Template) execute(lookup func(name string) (string, error)) (string, error) {
	if t.tmpl == nil {
		return t.raw, nil
	}
	return t.tmpl.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		v, err := lookup(tag)
		if err != nil {
			return 0, err
		}
		return w.Write([]byte(v))
	})
}

// Expand parses s and substitutes vars into it.
func Expand(s string, vars map[string]string) (string, error) {
	t, err := Parse(s)
	if err != nil {
		return "", err
	}
	return t.Execute(vars)
}
