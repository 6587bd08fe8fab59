package syncapi

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/fieldsync/handler"
	"github.com/dmitrymomot/fieldsync/pkg/binder"
	"github.com/dmitrymomot/fieldsync/pkg/httpserver"
	"github.com/dmitrymomot/fieldsync/pkg/logger"
	"github.com/dmitrymomot/fieldsync/pkg/requestid"
	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
)

// API serves the sync queue endpoints.
type API struct {
	svc            *syncqueue.Service
	bus            *syncqueue.EventBus
	logger         *slog.Logger
	maxBatch       int
	metrics        http.Handler
	readyTimeout   time.Duration
	readyChecks    []httpserver.Check
	pingInterval   time.Duration
	allowedOrigins []string
	upgrader       websocket.Upgrader
	errorHandler   handler.ErrorHandler[handler.Context]
}

// New creates the API around a queue service.
func New(svc *syncqueue.Service, opts ...Option) (*API, error) {
	if svc == nil {
		return nil, ErrServiceNil
	}

	a := &API{
		svc:          svc,
		logger:       slog.Default(),
		maxBatch:     DefaultMaxBatchSize,
		readyTimeout: 2 * time.Second,
		pingInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.logger = a.logger.With(logger.Component("syncapi"))
	a.errorHandler = handler.NewErrorHandler(a.logger, handler.WithErrorMappers(MapError))
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(a.allowedOrigins) > 0 {
		a.upgrader.CheckOrigin = func(r *http.Request) bool {
			return slices.Contains(a.allowedOrigins, r.Header.Get("Origin"))
		}
	}
	return a, nil
}

// Router returns the complete HTTP handler: API routes, probes and metrics.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = handler.JSONError(handler.ErrNotFound).Render(w, r)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = handler.JSONError(handler.NewHTTPError(http.StatusMethodNotAllowed, "method_not_allowed")).Render(w, r)
	})

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(a.logger, a.readyTimeout, a.readyChecks...))
	if a.metrics != nil {
		r.Handle("/metrics", a.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/operations", wrap(a, a.enqueue, binder.JSON()))
		r.Post("/operations/batch", wrap(a, a.enqueueBatch, binder.JSON()))
		r.Get("/operations/{id}", wrap(a, a.getOperation, binder.Path(chi.URLParam)))
		r.Get("/actors/{actorID}/events", a.streamEvents)

		r.Route("/admin/operations", func(r chi.Router) {
			r.Post("/{id}/cancel", wrap(a, a.cancel, binder.Path(chi.URLParam)))
			r.Post("/{id}/requeue", wrap(a, a.requeue, binder.Path(chi.URLParam)))
			r.Get("/failed", wrap(a, a.listFailed, binder.Query()))
			r.Get("/backlog", wrap(a, a.listBacklog, binder.Query()))
		})
	})

	return r
}

// wrap binds R with binders, validates it and routes errors through the
// API's JSON error handler.
func wrap[R any](a *API, h handler.HandlerFunc[handler.Context, R], binders ...handler.Bind) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinders[handler.Context, R](binders...),
		handler.WithErrorHandler[handler.Context, R](a.errorHandler),
		handler.WithDecorators(handler.Validate[handler.Context, R]()),
	)
}
