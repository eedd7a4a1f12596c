package gcpslog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2/google"

	"github.com/curioswitch/go-firebasetoken/internal/contextholder"
)

// NewHandler returns a [slog.Handler] writing JSON records to w, formatting
// default fields to follow GCP's format. Every record logged with a context
// gets trace context attributes, so traces and logs are linked together in
// the GCP console, and the uid and tenant of the Firebase user if the context
// was authenticated by the firebaseauth middleware.
func NewHandler(w io.Writer, opts ...Option) slog.Handler {
	var conf config
	for _, o := range opts {
		o.apply(&conf)
	}
	userRA := conf.options.ReplaceAttr
	conf.options.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if groups == nil {
			switch a.Key {
			case slog.LevelKey:
				return slog.Attr{Key: "severity", Value: a.Value}
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: a.Value}
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: a.Value}
			case slog.SourceKey:
				src, ok := a.Value.Any().(*slog.Source)
				if !ok {
					return a
				}
				return slog.Group("logging.googleapis.com/sourceLocation",
					slog.String("file", src.File),
					slog.String("line", strconv.Itoa(src.Line)),
					slog.String("function", src.Function),
				)
			}
		}

		if userRA != nil {
			return userRA(groups, a)
		}

		return a
	}

	projectID := conf.projectID
	if projectID == "" {
		if creds, err := google.FindDefaultCredentials(context.Background()); err == nil {
			projectID = creds.ProjectID
		}
	}
	if projectID == "" {
		projectID = "unknown"
	}

	return gcpHandler{
		delegate:    slog.NewJSONHandler(w, &conf.options),
		tracePrefix: fmt.Sprintf("projects/%s/traces/", projectID),
	}
}

type gcpHandler struct {
	delegate    slog.Handler
	tracePrefix string
}

var _ slog.Handler = gcpHandler{}

// Enabled implements slog.Handler.
func (h gcpHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.delegate.Enabled(ctx, l)
}

// Handle implements slog.Handler.
func (h gcpHandler) Handle(ctx context.Context, r slog.Record) error {
	// We don't check existing attributes since it is extremely unlikely
	// a user would set them manually.
	if sctx := trace.SpanContextFromContext(ctx); sctx.IsValid() {
		r.AddAttrs(
			slog.String("logging.googleapis.com/trace", h.tracePrefix+sctx.TraceID().String()),
			slog.String("logging.googleapis.com/spanId", sctx.SpanID().String()),
			slog.Bool("logging.googleapis.com/trace_sampled", sctx.IsSampled()),
		)
	}

	if holder := contextholder.FromContext(ctx); holder != nil && holder.Token != nil {
		r.AddAttrs(slog.String("firebaseUid", holder.Token.UID))
		if tenant := holder.Token.Firebase.Tenant; tenant != "" {
			r.AddAttrs(slog.String("firebaseTenant", tenant))
		}
	}

	return h.delegate.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h gcpHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return gcpHandler{
		delegate:    h.delegate.WithAttrs(attrs),
		tracePrefix: h.tracePrefix,
	}
}

// WithGroup implements slog.Handler.
func (h gcpHandler) WithGroup(name string) slog.Handler {
	return gcpHandler{
		delegate:    h.delegate.WithGroup(name),
		tracePrefix: h.tracePrefix,
	}
}

type config struct {
	options   slog.HandlerOptions
	projectID string
}

// Option is a configuration option for NewHandler.
type Option interface {
	apply(conf *config)
}

// Level returns an Option to set the minimum log level that will be logged.
// The handler discards records with lower levels. If not provided, the
// handler assumes LevelInfo.
func Level(l slog.Leveler) Option {
	return levelOption{level: l}
}

type levelOption struct {
	level slog.Leveler
}

func (o levelOption) apply(conf *config) {
	conf.options.Level = o.level
}

// AddSource returns an Option to add the source code position of the log
// statement to log records, rendered as a GCP source location.
func AddSource() Option {
	return addSourceOption{}
}

type addSourceOption struct{}

func (o addSourceOption) apply(conf *config) {
	conf.options.AddSource = true
}

// ReplaceAttr returns an Option to replace the value of an attribute.
// It behaves like the similar option in [slog.HandlerOptions], except that
// the function is not provided the built-in attributes.
func ReplaceAttr(f func([]string, slog.Attr) slog.Attr) Option {
	return replaceAttrOption(f)
}

type replaceAttrOption func([]string, slog.Attr) slog.Attr

func (o replaceAttrOption) apply(conf *config) {
	conf.options.ReplaceAttr = o
}

// ProjectID returns an Option to set the GCP project used to build trace
// names. If not provided, the project of the application default credentials
// is used.
func ProjectID(id string) Option {
	return projectIDOption(id)
}

type projectIDOption string

func (o projectIDOption) apply(conf *config) {
	conf.projectID = string(o)
}
