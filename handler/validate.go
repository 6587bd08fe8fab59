package handler

// Validatable is implemented by request types that check themselves.
// Validate should return a ValidationError or an HTTPError so the client
// gets a 4xx response.
type Validatable interface {
	Validate() error
}

// Validate returns a decorator that calls Validate on requests implementing
// Validatable and renders a failure through JSONError instead of calling
// the handler.
func Validate[C Context, R any]() Decorator[C, R] {
	return func(next HandlerFunc[C, R]) HandlerFunc[C, R] {
		return func(ctx C, req R) Response {
			if v, ok := any(&req).(Validatable); ok {
				if err := v.Validate(); err != nil {
					return JSONError(err)
				}
			}
			return next(ctx, req)
		}
	}
}
