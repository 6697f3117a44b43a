package router

import (
	"context"
	"net/http"
	"reflect"

	"github.com/mark3labs/oasrouter/contract"
	"go.uber.org/zap"
)

// Request is what a bound handler receives. P, Q and H are accessor structs
// for path, query and header parameters; B is the decoded body.
type Request[P, Q, H, B any] struct {
	Params  P
	Query   Q
	Headers H
	Body    B
	HTTP    *http.Request
}

// Responder emits the response of a bound handler. A status of 0 selects the
// status of the contract's selected response.
type Responder[R any] interface {
	Send(status int, body R) error
}

// HandlerFunc is the typed form of a handler for one operation.
type HandlerFunc[P, Q, H, B, R any] func(ctx context.Context, req *Request[P, Q, H, B], res Responder[R]) error

// Optional is the body type of an operation whose request body may be
// omitted. Present is false when the request carried no body.
type Optional[T any] struct {
	Value   T
	Present bool
}

// Get returns the body and whether it was sent.
func (o Optional[T]) Get() (T, bool) { return o.Value, o.Present }

func (Optional[T]) optionalElem() reflect.Type { return reflect.TypeFor[T]() }

type optionalBody interface{ optionalElem() reflect.Type }

// NoBody is the body or response type of operations that declare none.
type NoBody struct{}

// Empty is the accessor type for a parameter location without parameters.
type Empty struct{}

// Handler is a handler bound with Bind. Its Go types are checked against an
// operation contract when it is registered on a Member.
type Handler interface {
	conform(op *contract.Operation) (*plan, error)
	serve(w http.ResponseWriter, r *http.Request, rt *route, p *plan, log *zap.Logger)
}

// Bind turns a typed handler function into a Handler.
func Bind[P, Q, H, B, R any](fn func(ctx context.Context, req *Request[P, Q, H, B], res Responder[R]) error) Handler {
	return &bound[P, Q, H, B, R]{fn: fn}
}

type bound[P, Q, H, B, R any] struct {
	fn func(context.Context, *Request[P, Q, H, B], Responder[R]) error
}

func (b *bound[P, Q, H, B, R]) conform(op *contract.Operation) (*plan, error) {
	return conformSignature(op, signature{
		params:   reflect.TypeFor[P](),
		query:    reflect.TypeFor[Q](),
		headers:  reflect.TypeFor[H](),
		body:     reflect.TypeFor[B](),
		response: reflect.TypeFor[R](),
	})
}

func (b *bound[P, Q, H, B, R]) serve(w http.ResponseWriter, r *http.Request, rt *route, p *plan, log *zap.Logger) {
	req := &Request[P, Q, H, B]{HTTP: r}
	if err := decodeRequest(r, rt, p, &req.Params, &req.Query, &req.Headers, &req.Body); err != nil {
		writeError(w, requestStatus(err), err)
		return
	}
	res := &responder[R]{w: w, status: rt.op.StatusCode(http.StatusOK), noBody: p.noResponse}
	err := b.fn(r.Context(), req, res)
	res.finish(err, rt, log)
}

type responder[R any] struct {
	w      http.ResponseWriter
	status int
	noBody bool
	sent   bool
}

func (r *responder[R]) Send(status int, body R) error {
	if r.sent {
		return ErrAlreadySent
	}
	r.sent = true
	if status == 0 {
		status = r.status
	}
	if r.noBody {
		r.w.WriteHeader(status)
		return nil
	}
	return writeJSON(r.w, status, body)
}

func (r *responder[R]) finish(err error, rt *route, log *zap.Logger) {
	switch {
	case err != nil && !r.sent:
		log.Error("handler failed", zap.String("operation", rt.op.String()), zap.Error(err))
		writeError(r.w, http.StatusInternalServerError, err)
	case err != nil:
		log.Error("handler failed after responding", zap.String("operation", rt.op.String()), zap.Error(err))
	case !r.sent:
		r.w.WriteHeader(r.status)
	}
}
