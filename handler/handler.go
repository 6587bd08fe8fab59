package handler

import (
	"fmt"
	"net/http"
)

// HandlerFunc handles a request already bound into R.
type HandlerFunc[C Context, R any] func(ctx C, req R) Response

// Response writes itself to the client.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// Bind fills v, a pointer to the request struct, from r.
type Bind func(r *http.Request, v any) error

// ErrorHandler reports binding and rendering failures to the client.
type ErrorHandler[C Context] func(ctx C, err error)

// Decorator wraps a HandlerFunc. The first decorator given to Wrap is the
// outermost.
type Decorator[C Context, R any] func(HandlerFunc[C, R]) HandlerFunc[C, R]

// WrapOption configures Wrap.
type WrapOption[C Context, R any] func(*endpoint[C, R])

type endpoint[C Context, R any] struct {
	handle     HandlerFunc[C, R]
	binders    []Bind
	decorators []Decorator[C, R]
	onError    ErrorHandler[C]
	newContext func(http.ResponseWriter, *http.Request) C
}

// WithBinders appends binders. They run in order against the same struct, so
// each should only touch fields carrying its own tag:
//
//	handler.Wrap(h, handler.WithBinders[handler.Context, cancelRequest](
//		binder.Path(chi.URLParam),
//		binder.Query(),
//	))
func WithBinders[C Context, R any](binders ...Bind) WrapOption[C, R] {
	return func(e *endpoint[C, R]) { e.binders = append(e.binders, binders...) }
}

// WithErrorHandler replaces the default JSON error rendering.
func WithErrorHandler[C Context, R any](h ErrorHandler[C]) WrapOption[C, R] {
	return func(e *endpoint[C, R]) {
		if h != nil {
			e.onError = h
		}
	}
}

// WithContextFactory is required when C is not satisfied by NewContext.
func WithContextFactory[C Context, R any](f func(http.ResponseWriter, *http.Request) C) WrapOption[C, R] {
	return func(e *endpoint[C, R]) {
		if f != nil {
			e.newContext = f
		}
	}
}

// WithDecorators appends decorators, outermost first.
func WithDecorators[C Context, R any](decorators ...Decorator[C, R]) WrapOption[C, R] {
	return func(e *endpoint[C, R]) { e.decorators = append(e.decorators, decorators...) }
}

// Wrap turns a typed handler into an http.HandlerFunc. Each request gets a
// fresh zero R which the binders fill before the decorated handler runs.
// Errors default to JSONError.
//
// Wrap panics when C cannot be built by NewContext and no factory is set, so
// the mistake shows up at route registration rather than on the first request.
func Wrap[C Context, R any](h HandlerFunc[C, R], opts ...WrapOption[C, R]) http.HandlerFunc {
	e := &endpoint[C, R]{handle: h}
	for _, opt := range opts {
		opt(e)
	}

	if e.newContext == nil {
		var zero C
		if _, ok := any(NewContext(nil, &http.Request{})).(C); !ok {
			panic(fmt.Sprintf("handler: %T is not built by NewContext, use WithContextFactory", zero))
		}
		e.newContext = func(w http.ResponseWriter, r *http.Request) C {
			return any(NewContext(w, r)).(C)
		}
	}
	if e.onError == nil {
		e.onError = func(ctx C, err error) {
			_ = JSONError(err).Render(ctx.ResponseWriter(), ctx.Request())
		}
	}
	for i := len(e.decorators) - 1; i >= 0; i-- {
		e.handle = e.decorators[i](e.handle)
	}

	return e.serve
}

func (e *endpoint[C, R]) serve(w http.ResponseWriter, r *http.Request) {
	ctx := e.newContext(w, r)

	var req R
	for _, bind := range e.binders {
		if err := bind(r, &req); err != nil {
			e.onError(ctx, err)
			return
		}
	}

	resp := e.handle(ctx, req)
	if resp == nil {
		e.onError(ctx, ErrNilResponse)
		return
	}
	if err := resp.Render(w, r); err != nil {
		e.onError(ctx, err)
	}
}
