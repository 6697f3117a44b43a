package spec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go"
	openapi2 "github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	k8syaml "sigs.k8s.io/yaml"
)

// ErrorCode categorizes loader errors for clearer handling and messaging.
type ErrorCode string

const (
	InputError      ErrorCode = "InputError"
	NetworkError    ErrorCode = "NetworkError"
	ParseError      ErrorCode = "ParseError"
	ConversionError ErrorCode = "ConversionError"
)

// SpecError is a structured error with optional location and JSON Pointer.
type SpecError struct {
	Code        ErrorCode
	Message     string
	Location    string // file path or URL
	JSONPointer string // e.g. "#/paths/~1pets/get"
	Cause       error
}

func (e *SpecError) Error() string { return e.Message }
func (e *SpecError) Unwrap() error { return e.Cause }

// Settings configures loader behavior.
type Settings struct {
	// HTTPTimeout bounds each HTTP request.
	HTTPTimeout time.Duration
	// MaxRetries for transient HTTP failures (>=500, 429, or network errors).
	MaxRetries int
	// BackoffBase is the base delay for exponential backoff.
	BackoffBase time.Duration
	// AllowFileRefs permits file:// inputs.
	AllowFileRefs bool
	Logger        *zap.Logger
}

// DefaultSettings returns recommended defaults.
func DefaultSettings() Settings {
	return Settings{
		HTTPTimeout: 10 * time.Second,
		MaxRetries:  3,
		BackoffBase: 200 * time.Millisecond,
		Logger:      zap.NewNop(),
	}
}

// Option mutates Settings.
type Option func(*Settings)

func WithHTTPTimeout(d time.Duration) Option { return func(s *Settings) { s.HTTPTimeout = d } }
func WithMaxRetries(n int) Option            { return func(s *Settings) { s.MaxRetries = n } }
func WithBackoffBase(d time.Duration) Option { return func(s *Settings) { s.BackoffBase = d } }
func WithAllowFileRefs(allow bool) Option    { return func(s *Settings) { s.AllowFileRefs = allow } }
func WithLogger(l *zap.Logger) Option        { return func(s *Settings) { s.Logger = l } }

// Load reads and decodes a document. Swagger v2.0 inputs are converted to v3
// via kin-openapi openapi2conv and adapted with FromOpenAPI3.
//
// input may be a filesystem path or an http/https URL. file:// URLs are blocked
// unless WithAllowFileRefs(true) is given.
func Load(ctx context.Context, input string, opts ...Option) (*Document, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &SpecError{Code: InputError, Message: "spec: input is empty"}
	}
	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.Logger == nil {
		settings.Logger = zap.NewNop()
	}

	raw, location, err := readInput(ctx, input, settings)
	if err != nil {
		return nil, err
	}
	return decode(raw, location, settings.Logger)
}

func readInput(ctx context.Context, input string, settings Settings) ([]byte, string, error) {
	u, uerr := url.Parse(input)
	if uerr == nil && u.Scheme != "" && (u.Host != "" || strings.EqualFold(u.Scheme, "file")) {
		switch scheme := strings.ToLower(u.Scheme); scheme {
		case "file":
			if !settings.AllowFileRefs {
				return nil, input, &SpecError{Code: InputError, Message: "spec: file:// URLs are blocked by default", Location: input}
			}
			return readFile(u.Path)
		case "http", "https":
			raw, err := fetchWithRetry(ctx, input, settings)
			if err != nil {
				return nil, input, &SpecError{Code: NetworkError, Message: fmt.Sprintf("fetch %s: %v", input, err), Location: input, Cause: err}
			}
			return raw, input, nil
		default:
			return nil, input, &SpecError{Code: InputError, Message: fmt.Sprintf("spec: unsupported URL scheme %q (only http/https allowed)", scheme), Location: input}
		}
	}
	return readFile(input)
}

func readFile(path string) ([]byte, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, path, &SpecError{Code: InputError, Message: fmt.Sprintf("resolve path: %v", err), Location: path, Cause: err}
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, abs, &SpecError{Code: InputError, Message: fmt.Sprintf("read file %s: %v", abs, err), Location: abs, Cause: err}
	}
	return raw, abs, nil
}

func decode(raw []byte, location string, log *zap.Logger) (*Document, error) {
	version, err := detectSpecVersion(raw)
	if err != nil {
		return nil, &SpecError{Code: ParseError, Message: err.Error(), Location: location, Cause: err}
	}
	switch version {
	case 3:
		doc, err := Parse(raw)
		if err != nil {
			return nil, &SpecError{Code: ParseError, Message: err.Error(), Location: location, Cause: err}
		}
		return doc, nil
	case 2:
		if fixed, changed, _ := preprocessV2ForCompatibility(raw); changed {
			log.Warn("rewrote swagger 2.0 body parameters before conversion", zap.String("location", location))
			raw = fixed
		}
		v3doc, err := convertV2ToV3(raw)
		if err != nil {
			return nil, &SpecError{Code: ConversionError, Message: fmt.Sprintf("convert v2→v3: %v", err), Location: location, Cause: err}
		}
		doc, err := FromOpenAPI3(v3doc)
		if err != nil {
			return nil, &SpecError{Code: ConversionError, Message: err.Error(), Location: location, Cause: err}
		}
		return doc, nil
	}
	return nil, &SpecError{Code: ParseError, Message: "spec: unknown or unsupported OpenAPI/Swagger version", Location: location}
}

// detectSpecVersion returns 3 for OpenAPI v3, 2 for Swagger v2, else error.
func detectSpecVersion(data []byte) (int, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return 0, fmt.Errorf("parse spec: %w", err)
	}
	if v, ok := root["openapi"]; ok {
		if s, _ := v.(string); strings.HasPrefix(strings.TrimSpace(s), "3.") {
			return 3, nil
		}
	}
	if v, ok := root["swagger"]; ok {
		if s, _ := v.(string); strings.HasPrefix(strings.TrimSpace(s), "2.") {
			return 2, nil
		}
	}
	return 0, errors.New("spec: missing or unknown version (expected 'openapi: 3.x' or 'swagger: 2.0')")
}

func convertV2ToV3(data []byte) (*openapi3.T, error) {
	// kin-openapi types decode through encoding/json, so normalize YAML first.
	js, err := k8syaml.YAMLToJSON(data)
	if err != nil {
		return nil, err
	}
	var v2 openapi2.T
	if err := json.Unmarshal(js, &v2); err != nil {
		return nil, err
	}
	return openapi2conv.ToV3(&v2)
}

type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }

func fetchWithRetry(ctx context.Context, rawURL string, settings Settings) ([]byte, error) {
	client := &http.Client{Timeout: settings.HTTPTimeout}
	backoff := settings.BackoffBase
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	attempts := settings.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var body []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return transientError{err}
			}
			defer resp.Body.Close()
			if resp.StatusCode < 300 {
				body, err = io.ReadAll(resp.Body)
				return err
			}
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return transientError{fmt.Errorf("transient http error %d", resp.StatusCode)}
			}
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var te transientError
			return errors.As(err, &te)
		}),
		retry.OnRetry(func(n uint, err error) {
			settings.Logger.Debug("retrying spec fetch", zap.String("url", rawURL), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}
