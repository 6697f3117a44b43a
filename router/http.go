package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/mark3labs/oasrouter/shape"
)

// ErrAlreadySent is returned by Responder.Send when called more than once.
var ErrAlreadySent = errors.New("router: response already sent")

// defaultMaxBodyBytes bounds request bodies unless WithMaxBodyBytes is given.
const defaultMaxBodyBytes = 10 << 20

// BadRequestError reports request data that does not fit the contract.
type BadRequestError struct {
	Location string
	Name     string
	Err      error
}

func (e *BadRequestError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %v", e.Location, e.Err)
	}
	return fmt.Sprintf("%s parameter %q: %v", e.Location, e.Name, e.Err)
}

func (e *BadRequestError) Unwrap() error { return e.Err }

var errMissing = errors.New("required value is missing")

func decodeRequest(r *http.Request, rt *route, p *plan, params, query, headers, body any) error {
	pathValues := func(name string) []string {
		if v := r.PathValue(rt.wildcards[name]); v != "" {
			return []string{v}
		}
		return nil
	}
	q := r.URL.Query()
	queryValues := func(name string) []string { return q[name] }
	headerValues := func(name string) []string { return r.Header.Values(name) }

	if err := decodeAccessor(p.params, "path", pathValues, params); err != nil {
		return err
	}
	if err := decodeAccessor(p.query, "query", queryValues, query); err != nil {
		return err
	}
	if err := decodeAccessor(p.headers, "header", headerValues, headers); err != nil {
		return err
	}
	return decodeBody(r, p, body)
}

func decodeAccessor(ap *accessorPlan, location string, lookup func(string) []string, dst any) error {
	v := reflect.ValueOf(dst).Elem()
	for _, f := range ap.fields {
		raw := lookup(f.name)
		if len(raw) == 0 {
			if !f.optional {
				return &BadRequestError{Location: location, Name: f.name, Err: errMissing}
			}
			continue
		}
		if err := setParam(v.FieldByIndex(f.index), f.shape, raw, location != "query"); err != nil {
			return &BadRequestError{Location: location, Name: f.name, Err: err}
		}
	}
	return nil
}

// setParam stores raw parameter values. Array values come from repeated
// query keys, or from a comma separated list when split is set.
func setParam(v reflect.Value, s *shape.Shape, raw []string, split bool) error {
	if v.Kind() == reflect.Pointer {
		elem := reflect.New(v.Type().Elem())
		if err := setParam(elem.Elem(), s, raw, split); err != nil {
			return err
		}
		v.Set(elem)
		return nil
	}
	if v.Kind() == reflect.Slice {
		var items []string
		for _, r := range raw {
			if split || len(raw) == 1 {
				items = append(items, strings.Split(r, ",")...)
				continue
			}
			items = append(items, r)
		}
		inner, _ := s.WithoutNull()
		out := reflect.MakeSlice(v.Type(), len(items), len(items))
		for i, item := range items {
			if err := setScalar(out.Index(i), inner.Items, item); err != nil {
				return err
			}
		}
		v.Set(out)
		return nil
	}
	return setScalar(v, s, raw[0])
}

func setScalar(v reflect.Value, s *shape.Shape, raw string) error {
	if v.Kind() == reflect.Pointer {
		elem := reflect.New(v.Type().Elem())
		if err := setScalar(elem.Elem(), s, raw); err != nil {
			return err
		}
		v.Set(elem)
		return nil
	}
	switch k := v.Kind(); {
	case k == reflect.String:
		v.SetString(raw)
	case k == reflect.Interface && reflect.TypeOf(raw).AssignableTo(v.Type()):
		v.Set(reflect.ValueOf(raw))
	case k == reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", raw)
		}
		v.SetBool(b)
	case isFloat(k):
		f, err := strconv.ParseFloat(raw, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid number %q", raw)
		}
		v.SetFloat(f)
	case k >= reflect.Int && k <= reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		v.SetInt(n)
	case k >= reflect.Uint && k <= reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		v.SetUint(n)
	default:
		return fmt.Errorf("cannot decode %s into %s", s, v.Type())
	}
	return nil
}

func decodeBody(r *http.Request, p *plan, dst any) error {
	if p.body == bodyNone {
		return nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return &BadRequestError{Location: "body", Err: err}
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		if p.body == bodyOptional {
			return nil
		}
		return &BadRequestError{Location: "body", Err: errMissing}
	}
	elem := reflect.New(p.bodyElem)
	if err := json.Unmarshal(raw, elem.Interface()); err != nil {
		return &BadRequestError{Location: "body", Err: err}
	}
	v := reflect.ValueOf(dst).Elem()
	if p.body == bodyOptional {
		v.FieldByName("Value").Set(elem.Elem())
		v.FieldByName("Present").SetBool(true)
		return nil
	}
	v.Set(elem.Elem())
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// requestStatus maps a decoding failure to its response status.
func requestStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func writeError(w http.ResponseWriter, status int, err error) {
	_ = writeJSON(w, status, map[string]string{"error": err.Error()})
}
