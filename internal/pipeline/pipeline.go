package pipeline

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"static-server/internal/metrics"
)

// Stage is one step of the request pipeline.
type Stage interface {
	Name() string
	Handle(w http.ResponseWriter, r *http.Request, next http.Handler) error
}

// HandleFunc is the function form of Stage.Handle.
type HandleFunc func(w http.ResponseWriter, r *http.Request, next http.Handler) error

type funcStage struct {
	name string
	fn   HandleFunc
}

func (s funcStage) Name() string { return s.name }

func (s funcStage) Handle(w http.ResponseWriter, r *http.Request, next http.Handler) error {
	return s.fn(w, r, next)
}

// StageFunc names fn as a Stage.
func StageFunc(name string, fn HandleFunc) Stage {
	return funcStage{name: name, fn: fn}
}

// FromMiddleware adapts conventional func(http.Handler) http.Handler
// middleware, which cannot report errors, into a Stage. The middleware is
// built once; next is resolved per request.
func FromMiddleware(name string, mw func(http.Handler) http.Handler) Stage {
	wrapped := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextFrom(r).ServeHTTP(w, r)
	}))
	return funcStage{
		name: name,
		fn: func(w http.ResponseWriter, r *http.Request, next http.Handler) error {
			wrapped.ServeHTTP(w, withNext(r, next))
			return nil
		},
	}
}

// ErrorHandler renders a failure raised by a stage. stage is the name of the
// stage that failed.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, stage string, err error)

// PanicError wraps a value recovered from a panicking stage.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Format prints the goroutine stack captured at recovery for %+v.
func (e *PanicError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "%s\n%s", e.Error(), e.Stack)
		return
	}
	fmt.Fprint(s, e.Error())
}

// Pipeline is an ordered list of stages. It implements http.Handler.
type Pipeline struct {
	stages   []Stage
	onError  ErrorHandler
	fallback http.Handler
	entry    http.Handler
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFallback sets the handler reached when the last stage calls next.
// Defaults to http.NotFound.
func WithFallback(h http.Handler) Option {
	return func(p *Pipeline) {
		p.fallback = h
	}
}

// New builds a pipeline running stages in order. onError is the error stage.
func New(onError ErrorHandler, stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages:   stages,
		onError:  onError,
		fallback: http.HandlerFunc(http.NotFound),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.onError == nil {
		p.onError = defaultErrorHandler
	}

	next := p.fallback
	for i := len(stages) - 1; i >= 0; i-- {
		next = p.bind(stages[i], next)
	}
	p.entry = next
	return p
}

// bind returns a handler that runs stage with next as its continuation and
// routes any error or panic to the error stage.
func (p *Pipeline) bind(stage Stage, next http.Handler) http.Handler {
	name := stage.Name()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			// A panic inside a nested stage has already been handled there;
			// reaching here means this stage itself panicked.
			metrics.PipelineErrorsTotal.WithLabelValues(name, "panic").Inc()
			p.onError(w, r, name, &PanicError{Value: rec, Stack: debug.Stack()})
		}()

		if err := stage.Handle(w, r, next); err != nil {
			metrics.PipelineErrorsTotal.WithLabelValues(name, "error").Inc()
			p.onError(w, r, name, err)
		}
	})
}

// ServeHTTP implements http.Handler.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tw := &trackingWriter{ResponseWriter: w}
	p.entry.ServeHTTP(tw, withTracker(r, tw))
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// String renders the stage order, e.g. "logger -> body -> static".
func (p *Pipeline) String() string {
	return strings.Join(p.Stages(), " -> ")
}

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, _ string, _ error) {
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// IsPanic reports whether err came from a recovered panic.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
