package binder

import "net/http"

// Query binds URL query parameters to fields tagged `query:"name"`.
// Untagged fields and fields tagged `query:"-"` are skipped.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		values := r.URL.Query()
		return bindFields(v, "query", func(name string) []string { return values[name] }, ErrFailedToParseQuery)
	}
}
