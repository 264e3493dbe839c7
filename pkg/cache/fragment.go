package cache

import (
	"fmt"
	"strings"
)

// Scope controls whether the current URL participates in a fragment's fingerprint.
type Scope int

const (
	// ScopeSite shares one cache entry across every URL (default).
	ScopeSite Scope = iota

	// ScopePage keys the cache entry per normalized request URL.
	ScopePage
)

// Directive option names recognized by ParseDirective.
const (
	ParamScope = "scope"
	ParamFor   = "for"
)

// String returns the directive spelling of the scope.
func (s Scope) String() string {
	switch s {
	case ScopePage:
		return "page"
	default:
		return "site"
	}
}

// ParseScope converts a directive value into a Scope.
// An empty value selects ScopeSite.
func ParseScope(v string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "site":
		return ScopeSite, nil
	case "page":
		return ScopePage, nil
	default:
		return ScopeSite, fmt.Errorf("%w: %q", ErrInvalidScope, v)
	}
}

// Descriptor describes a cached template fragment.
type Descriptor struct {
	// RawContent is the unevaluated markup body of the fragment
	RawContent string

	// Parameters are the opaque directive parameters; they feed the fingerprint
	Parameters map[string]any

	// Scope selects site-wide or per-URL caching
	Scope Scope

	// TTLExpression is a relative duration such as "10 minutes"; empty caches until evicted
	TTLExpression string
}

// ParseDirective builds a Descriptor from the parameters a template author
// passed to the cache directive. "scope" and "for" are consumed; everything
// else is kept as fingerprint input.
func ParseDirective(content string, params map[string]any) (Descriptor, error) {
	d := Descriptor{
		RawContent: content,
		Parameters: make(map[string]any, len(params)),
	}

	for name, value := range params {
		switch name {
		case ParamScope:
			s, err := ParseScope(fmt.Sprint(value))
			if err != nil {
				return Descriptor{}, err
			}
			d.Scope = s
		case ParamFor:
			if value != nil {
				d.TTLExpression = strings.TrimSpace(fmt.Sprint(value))
			}
		default:
			d.Parameters[name] = value
		}
	}

	return d, nil
}
