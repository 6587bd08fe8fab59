// Package binder decodes HTTP requests into typed structs for handler.Wrap.
//
// Binders run in order and each one only fills fields carrying its tag:
//
//	type GetRequest struct {
//		ID     uuid.UUID `path:"id"`
//		Expand bool      `query:"expand"`
//	}
//
//	r.Get("/v1/operations/{id}", handler.Wrap(h,
//		handler.WithBinders[handler.Context, GetRequest](binder.Path(chi.URLParam), binder.Query()),
//	))
//
// Path and query values may target strings, integers, floats, booleans,
// named types built on them, pointers, slices and any type implementing
// encoding.TextUnmarshaler (uuid.UUID, time.Time).
package binder
