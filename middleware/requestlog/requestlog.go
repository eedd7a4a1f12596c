package requestlog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"

	"github.com/felixge/httpsnoop"
)

// NewMiddleware returns an [http.Handler] middleware that logs requests in
// GCP structured format using [slog]. With [slog.JSONHandler] used as the
// handler, logs will be rendered on the GCP console with rich information
// about the HTTP request. Requests ending with a server error are logged at
// error level, client errors such as failed authentication at warn level.
func NewMiddleware(opts ...Option) func(http.Handler) http.Handler {
	var conf config
	for _, o := range opts {
		o.apply(&conf)
	}

	return func(next http.Handler) http.Handler {
		return &handler{
			next:   next,
			logger: conf.logger,
		}
	}
}

type extraAttrsKeyType struct{}

var extraAttrsKey extraAttrsKeyType = struct{}{}

type extraAttrs struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

// AddExtraAttr adds attributes to the log record of the request ctx belongs
// to. Handlers and inner middleware use it to annotate the request log, for
// example with the authenticated user. It is a no-op if ctx was not created
// by a request served through the middleware.
func AddExtraAttr(ctx context.Context, attrs ...slog.Attr) {
	extra, ok := ctx.Value(extraAttrsKey).(*extraAttrs)
	if !ok {
		return
	}
	extra.mu.Lock()
	defer extra.mu.Unlock()
	extra.attrs = append(extra.attrs, attrs...)
}

type handler struct {
	next   http.Handler
	logger *slog.Logger
}

// ServeHTTP implements http.Handler.
func (h *handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var stack []byte
	var servePanic any

	extra := &extraAttrs{}
	req = req.WithContext(context.WithValue(req.Context(), extraAttrsKey, extra))

	served := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				servePanic = err
			}
		}()
		h.next.ServeHTTP(w, req)
	})
	metrics := httpsnoop.CaptureMetrics(served, w, req)

	status := metrics.Code
	if servePanic != nil {
		pooled := stacks.Get().(*[]byte)
		defer stacks.Put(pooled)
		n := runtime.Stack(*pooled, false)
		stack = (*pooled)[:n]
		defer panic(servePanic)

		// A handler may have flushed another status before panicking, but the
		// client will almost always see the response as failed so we log 500.
		status = http.StatusInternalServerError
	}

	logArgs := []any{
		slog.Group("httpRequest", httpRequestAttrs(req, metrics, status)...),
	}
	if stack != nil {
		logArgs = append(logArgs, slog.String("stack_trace", string(stack)))
	}
	extra.mu.Lock()
	for _, a := range extra.attrs {
		logArgs = append(logArgs, a)
	}
	extra.mu.Unlock()

	l := h.logger
	if l == nil {
		l = slog.Default()
	}
	l.Log(req.Context(), levelForStatus(status), "Server Request", logArgs...)
}

// httpRequestAttrs returns the fields of a Cloud Logging HttpRequest.
func httpRequestAttrs(req *http.Request, metrics httpsnoop.Metrics, status int) []any {
	attrs := []any{
		slog.String("requestMethod", req.Method),
		slog.String("requestUrl", req.URL.String()),
		slog.String("protocol", req.Proto),
		slog.String("remoteIp", req.RemoteAddr),
		slog.Int64("responseSize", metrics.Written),
		slog.String("latency", fmt.Sprintf("%.9fs", metrics.Duration.Seconds())),
	}
	if ua := req.Header.Get("User-Agent"); ua != "" {
		attrs = append(attrs, slog.String("userAgent", ua))
	}
	return append(attrs, slog.Int("status", status))
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Cap stack trace recording to 4KB.
var stacks = sync.Pool{New: func() any {
	buf := make([]byte, 4096)
	return &buf
}}

type config struct {
	logger *slog.Logger
}

// Option is a configuration option for NewMiddleware.
type Option interface {
	apply(conf *config)
}

// Logger returns an Option to set the [slog.Logger] used by the middleware.
// If not provided, the default logger is used.
func Logger(l *slog.Logger) Option {
	return &loggerOption{logger: l}
}

type loggerOption struct {
	logger *slog.Logger
}

func (o *loggerOption) apply(conf *config) {
	conf.logger = o.logger
}
