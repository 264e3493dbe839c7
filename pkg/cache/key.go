package cache

import (
	"crypto/sha256"
	"encoding"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// DefaultNamespace prefixes every fragment fingerprint.
const DefaultNamespace = "fragcache"

// URLResolver returns the absolute URL of the in-flight request.
type URLResolver func() (string, error)

// fingerprintInput is the composite structure that gets hashed.
// URL is only set for page-scoped fragments.
type fingerprintInput struct {
	Content string         `cbor:"content"`
	Params  map[string]any `cbor:"params"`
	URL     string         `cbor:"url,omitempty"`
}

// KeyBuilder derives deterministic fingerprints for fragment descriptors.
// It is safe for concurrent use.
type KeyBuilder struct {
	namespace string
	enc       cbor.EncMode
}

// NewKeyBuilder creates a KeyBuilder for the given namespace.
// An empty namespace selects DefaultNamespace.
func NewKeyBuilder(namespace string) (*KeyBuilder, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	// Core deterministic encoding sorts map keys and picks the shortest
	// number forms, so equal inputs always produce equal bytes.
	// Times keep nanoseconds and their zone offset.
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	enc, err := opts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}

	return &KeyBuilder{
		namespace: namespace,
		enc:       enc,
	}, nil
}

// Namespace returns the prefix applied to every fingerprint.
func (b *KeyBuilder) Namespace() string {
	return b.namespace
}

// Build generates the fingerprint for a descriptor.
// Format: <namespace>:<hex sha256 of canonical CBOR>
//
// Example:
//
//	fragcache:3f1c...e09a
//
// resolveURL is consulted only for page-scoped descriptors.
func (b *KeyBuilder) Build(d Descriptor, resolveURL URLResolver) (string, error) {
	params := d.Parameters
	if params == nil {
		params = map[string]any{}
	}

	in := fingerprintInput{
		Content: d.RawContent,
		Params:  params,
	}

	if d.Scope == ScopePage {
		if resolveURL == nil {
			return "", fmt.Errorf("%w: no resolver for page scope", ErrURLUnavailable)
		}
		raw, err := resolveURL()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrURLUnavailable, err)
		}
		normalized, err := NormalizeURL(raw)
		if err != nil {
			return "", err
		}
		in.URL = normalized
	}

	if err := checkParams(params); err != nil {
		return "", &SerializationError{Err: err}
	}

	data, err := b.enc.Marshal(in)
	if err != nil {
		return "", &SerializationError{Err: err}
	}

	sum := sha256.Sum256(data)
	return b.namespace + ":" + hex.EncodeToString(sum[:]), nil
}

// maxParamDepth bounds how deep parameter values are walked.
const maxParamDepth = 32

var (
	timeType            = reflect.TypeOf(time.Time{})
	cborMarshalerType   = reflect.TypeOf((*cbor.Marshaler)(nil)).Elem()
	binaryMarshalerType = reflect.TypeOf((*encoding.BinaryMarshaler)(nil)).Elem()

	errParamsTooDeep = errors.New("parameter nesting too deep")
)

// checkParams rejects parameter values the encoder would encode lossily,
// such as structs whose state lives in unexported or skipped fields.
// Two values that differ only in dropped state would share a fingerprint.
func checkParams(params map[string]any) error {
	for name, v := range params {
		if err := checkValue(reflect.ValueOf(v), 0); err != nil {
			return fmt.Errorf("param %q: %w", name, err)
		}
	}
	return nil
}

func checkValue(v reflect.Value, depth int) error {
	if depth > maxParamDepth {
		return errParamsTooDeep
	}
	if !v.IsValid() {
		return nil
	}

	t := v.Type()
	if t == timeType || t.Implements(cborMarshalerType) || t.Implements(binaryMarshalerType) {
		return nil
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return checkValue(v.Elem(), depth+1)

	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := checkValue(iter.Key(), depth+1); err != nil {
				return err
			}
			if err := checkValue(iter.Value(), depth+1); err != nil {
				return err
			}
		}

	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := checkValue(v.Index(i), depth+1); err != nil {
				return err
			}
		}

	case reflect.Struct:
		return checkStruct(v, depth)
	}
	return nil
}

func checkStruct(v reflect.Value, depth int) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)

		tag, ok := f.Tag.Lookup("cbor")
		if !ok {
			tag = f.Tag.Get("json")
		}
		if tag == "-" {
			return fmt.Errorf("%s: field %s is skipped by its tag", t, f.Name)
		}

		if !f.IsExported() {
			// Exported fields of an embedded unexported struct are promoted
			if f.Anonymous && f.Type.Kind() == reflect.Struct {
				if err := checkStruct(v.Field(i), depth+1); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("%s: unexported field %s cannot be fingerprinted", t, f.Name)
		}

		if err := checkValue(v.Field(i), depth+1); err != nil {
			return err
		}
	}
	return nil
}

// NormalizeURL canonicalizes an absolute URL so that equivalent spellings
// of the same request produce the same string.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrURLUnavailable, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not an absolute url", ErrURLUnavailable, raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	switch {
	case port != "":
		u.Host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		u.Host = "[" + host + "]"
	default:
		u.Host = host
	}

	p := u.Path
	if p == "" {
		p = "/"
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	u.Path = cleaned
	u.RawPath = ""

	// Encode sorts by key; values keep their request order.
	u.RawQuery = u.Query().Encode()
	u.ForceQuery = false

	return u.String(), nil
}
