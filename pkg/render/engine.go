// Package render hosts html/template pages that cache fragments through the
// fragment cache manager.
//
// Template authors use the cache directive with a registered fragment name,
// the data to render it with, and optional key/value options:
//
//	{{ cache "sidebar" . "scope" "page" "for" "10 minutes" "region" .Region }}
//
// "scope" and "for" configure caching; every other option is part of the
// fingerprint. The fragment's raw source is the fingerprinted content, so data
// passed to the fragment must be reflected in options when it changes output.
package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/Sternrassler/fragcache/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PreviewHeader marks a request as a preview render; fragments bypass the cache.
const PreviewHeader = "X-Fragcache-Preview"

type fragment struct {
	source string
	tmpl   *template.Template
}

// Engine renders pages whose cache directives go through a cache.Manager.
// It is safe for concurrent use once all pages and fragments are registered.
type Engine struct {
	manager   *cache.Manager
	logger    zerolog.Logger
	mu        sync.RWMutex
	pages     *template.Template
	fragments map[string]fragment
}

// New creates an engine backed by manager.
func New(manager *cache.Manager) *Engine {
	return &Engine{
		manager:   manager,
		logger:    log.With().Str("component", "render").Logger(),
		pages:     template.New("").Funcs(template.FuncMap{"cache": placeholder}),
		fragments: make(map[string]fragment),
	}
}

// placeholder lets pages parse; every render binds the real directive.
func placeholder(string, any, ...any) (template.HTML, error) {
	return "", fmt.Errorf("cache directive used outside of Engine.Render")
}

// AddFragment registers a cacheable fragment under name.
func (e *Engine) AddFragment(name, source string) error {
	tmpl, err := template.New(name).Parse(source)
	if err != nil {
		return fmt.Errorf("parse fragment %s: %w", name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.fragments[name] = fragment{source: source, tmpl: tmpl}
	return nil
}

// AddPage registers a page template under name.
func (e *Engine) AddPage(name, source string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.pages.New(name).Parse(source); err != nil {
		return fmt.Errorf("parse page %s: %w", name, err)
	}
	return nil
}

// LoadFS registers pages/*.html and fragments/*.html from fsys, named by
// their base name without extension.
func (e *Engine) LoadFS(fsys fs.FS) error {
	load := func(pattern string, add func(name, source string) error) (int, error) {
		matches, err := fs.Glob(fsys, pattern)
		if err != nil {
			return 0, err
		}
		for _, m := range matches {
			data, err := fs.ReadFile(fsys, m)
			if err != nil {
				return 0, fmt.Errorf("read %s: %w", m, err)
			}
			name := strings.TrimSuffix(path.Base(m), path.Ext(m))
			if err := add(name, string(data)); err != nil {
				return 0, err
			}
		}
		return len(matches), nil
	}

	fragments, err := load("fragments/*.html", e.AddFragment)
	if err != nil {
		return err
	}
	pages, err := load("pages/*.html", e.AddPage)
	if err != nil {
		return err
	}

	e.logger.Info().
		Int("pages", pages).
		Int("fragments", fragments).
		Msg("Templates loaded")
	return nil
}

// HasPage reports whether a page is registered.
func (e *Engine) HasPage(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return name != "" && e.pages.Lookup(name) != nil
}

// Render executes page with data, resolving cache directives against rc.
// Output is only written to w when the whole page rendered successfully.
func (e *Engine) Render(ctx context.Context, w io.Writer, page string, data any, rc cache.RenderContext) error {
	e.mu.RLock()
	t, err := e.pages.Clone()
	e.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("clone templates: %w", err)
	}
	if t.Lookup(page) == nil {
		return fmt.Errorf("page %q not found", page)
	}

	t.Funcs(template.FuncMap{"cache": e.directive(ctx, rc)})

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, page, data); err != nil {
		return err
	}
	_, err = buf.WriteTo(w)
	return err
}

// directive binds the cache template func to one render.
func (e *Engine) directive(ctx context.Context, rc cache.RenderContext) func(string, any, ...any) (template.HTML, error) {
	return func(name string, data any, options ...any) (template.HTML, error) {
		e.mu.RLock()
		frag, ok := e.fragments[name]
		e.mu.RUnlock()
		if !ok {
			return "", fmt.Errorf("fragment %q not found", name)
		}

		params, err := optionsToParams(options)
		if err != nil {
			return "", fmt.Errorf("fragment %q: %w", name, err)
		}

		d, err := cache.ParseDirective(frag.source, params)
		if err != nil {
			return "", fmt.Errorf("fragment %q: %w", name, err)
		}

		out, err := e.manager.RenderCached(ctx, d, rc, func(context.Context) (string, error) {
			var b strings.Builder
			if err := frag.tmpl.Execute(&b, data); err != nil {
				return "", err
			}
			return b.String(), nil
		})
		if err != nil {
			return "", err
		}
		// Fragment output was escaped by its own html/template execution.
		return template.HTML(out), nil
	}
}

func optionsToParams(options []any) (map[string]any, error) {
	if len(options)%2 != 0 {
		return nil, fmt.Errorf("options must be key/value pairs, got %d values", len(options))
	}
	params := make(map[string]any, len(options)/2)
	for i := 0; i < len(options); i += 2 {
		key, ok := options[i].(string)
		if !ok {
			return nil, fmt.Errorf("option key %v is not a string", options[i])
		}
		params[key] = options[i+1]
	}
	return params, nil
}

// ContextFromRequest builds the render context of an HTTP request.
func ContextFromRequest(r *http.Request) cache.RenderContext {
	return cache.RenderContext{
		Method:  r.Method,
		Preview: r.Header.Get(PreviewHeader) != "",
		URL: func() (string, error) {
			return AbsoluteURL(r)
		},
	}
}

// AbsoluteURL reconstructs the absolute URL of an inbound request.
func AbsoluteURL(r *http.Request) (string, error) {
	if r.Host == "" {
		return "", fmt.Errorf("request has no host")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI(), nil
}
