package contract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mark3labs/oasrouter/spec"
	"go.uber.org/zap"
)

// Option configures Synthesize.
type Option func(*options)

type options struct {
	includeTags  []string
	excludeTags  []string
	methods      []string
	pathPatterns []string
	logger       *zap.Logger
}

// WithIncludeTags keeps only operations carrying at least one of tags.
func WithIncludeTags(tags ...string) Option {
	return func(o *options) { o.includeTags = append(o.includeTags, tags...) }
}

// WithExcludeTags drops operations carrying any of tags.
func WithExcludeTags(tags ...string) Option {
	return func(o *options) { o.excludeTags = append(o.excludeTags, tags...) }
}

// WithMethods keeps only the given HTTP methods (case-insensitive).
func WithMethods(methods ...string) Option {
	return func(o *options) { o.methods = append(o.methods, methods...) }
}

// WithPathPatterns keeps only paths matching at least one regular expression.
func WithPathPatterns(patterns ...string) Option {
	return func(o *options) { o.pathPatterns = append(o.pathPatterns, patterns...) }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

type filter struct {
	include map[string]struct{}
	exclude map[string]struct{}
	methods map[spec.HttpMethod]struct{}
	paths   []*regexp.Regexp
}

func newFilter(o options) (*filter, error) {
	f := &filter{
		include: toSet(o.includeTags),
		exclude: toSet(o.excludeTags),
	}
	if len(o.methods) > 0 {
		f.methods = map[spec.HttpMethod]struct{}{}
		for _, m := range o.methods {
			method, err := spec.ParseMethod(m)
			if err != nil {
				return nil, err
			}
			f.methods[method] = struct{}{}
		}
	}
	for _, p := range o.pathPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid path pattern %q: %w", p, err)
		}
		f.paths = append(f.paths, re)
	}
	return f, nil
}

// keep reports whether the operation passes the filter, and why not.
func (f *filter) keep(m spec.HttpMethod, path string, op *spec.Operation) (bool, string) {
	if f.methods != nil {
		if _, ok := f.methods[m]; !ok {
			return false, "method"
		}
	}
	if len(f.paths) > 0 {
		matched := false
		for _, re := range f.paths {
			if re.MatchString(path) {
				matched = true
				break
			}
		}
		if !matched {
			return false, "path"
		}
	}
	if len(f.include) > 0 && !hasAny(op.Tags, f.include) {
		return false, "includeTags"
	}
	if hasAny(op.Tags, f.exclude) {
		return false, "excludeTags"
	}
	return true, ""
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

func hasAny(tags []string, set map[string]struct{}) bool {
	for _, t := range tags {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}
