package pipeline

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// record appends the stage name before and after next runs.
func record(name string, trace *[]string) Stage {
	return StageFunc(name, func(w http.ResponseWriter, r *http.Request, next http.Handler) error {
		*trace = append(*trace, name+":in")
		next.ServeHTTP(w, r)
		*trace = append(*trace, name+":out")
		return nil
	})
}

func terminal(status int, body string) Stage {
	return StageFunc("terminal", func(w http.ResponseWriter, _ *http.Request, _ http.Handler) error {
		w.WriteHeader(status)
		io.WriteString(w, body)
		return nil
	})
}

func errorRecorder(got *string, gotStage *string) ErrorHandler {
	return func(w http.ResponseWriter, _ *http.Request, stage string, err error) {
		*got = err.Error()
		*gotStage = stage
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "<h1>Error!</h1>")
	}
}

func TestStagesRunInOrder(t *testing.T) {
	var trace []string
	p := New(nil, []Stage{
		record("a", &trace),
		record("b", &trace),
		record("c", &trace),
		terminal(http.StatusOK, "done"),
	})

	w := httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	want := "a:in b:in c:in c:out b:out a:out"
	if got := strings.Join(trace, " "); got != want {
		t.Errorf("trace = %q, want %q", got, want)
	}
	if w.Body.String() != "done" {
		t.Errorf("body = %q, want done", w.Body.String())
	}
}

func TestStagesAndString(t *testing.T) {
	var trace []string
	p := New(nil, []Stage{record("logger", &trace), record("body", &trace), terminal(200, "")})

	names := p.Stages()
	if len(names) != 3 || names[0] != "logger" || names[1] != "body" || names[2] != "terminal" {
		t.Errorf("Stages() = %v", names)
	}
	if p.String() != "logger -> body -> terminal" {
		t.Errorf("String() = %q", p.String())
	}
}

func TestTerminatingStageSkipsRest(t *testing.T) {
	var trace []string
	p := New(nil, []Stage{
		record("a", &trace),
		terminal(http.StatusOK, "early"),
		record("never", &trace),
	})

	w := httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	for _, entry := range trace {
		if strings.HasPrefix(entry, "never") {
			t.Fatalf("stage after terminal stage ran: %v", trace)
		}
	}
	if w.Body.String() != "early" {
		t.Errorf("body = %q, want early", w.Body.String())
	}
}

func TestErrorShortCircuitsToErrorStage(t *testing.T) {
	var trace []string
	var gotErr, gotStage string

	failing := StageFunc("body", func(http.ResponseWriter, *http.Request, http.Handler) error {
		return errors.New("invalid json")
	})

	p := New(errorRecorder(&gotErr, &gotStage), []Stage{
		record("logger", &trace),
		failing,
		record("static", &trace),
	})

	w := httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", http.NoBody))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if w.Body.String() != "<h1>Error!</h1>" {
		t.Errorf("body = %q", w.Body.String())
	}
	if gotErr != "invalid json" || gotStage != "body" {
		t.Errorf("error handler got (%q, %q)", gotErr, gotStage)
	}
	if strings.Join(trace, " ") != "logger:in logger:out" {
		t.Errorf("trace = %v, outer stage should complete and inner stage should not run", trace)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	var gotErr, gotStage string
	p := New(errorRecorder(&gotErr, &gotStage), []Stage{
		StageFunc("boom", func(http.ResponseWriter, *http.Request, http.Handler) error {
			panic("kaboom")
		}),
	})

	w := httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if gotStage != "boom" || !strings.Contains(gotErr, "kaboom") {
		t.Errorf("error handler got (%q, %q)", gotErr, gotStage)
	}

	// The pipeline keeps serving after a panic.
	w2 := httptest.NewRecorder()
	p.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if w2.Code != http.StatusInternalServerError {
		t.Errorf("second request status = %d, want 500", w2.Code)
	}
}

func TestPanicErrorFormat(t *testing.T) {
	err := &PanicError{Value: "kaboom", Stack: []byte("goroutine 1 [running]:")}

	if !IsPanic(fmt.Errorf("wrapped: %w", err)) {
		t.Error("IsPanic should see through wrapping")
	}
	if IsPanic(errors.New("plain")) {
		t.Error("IsPanic should be false for plain errors")
	}
	if got := fmt.Sprintf("%v", err); got != "panic: kaboom" {
		t.Errorf("%%v = %q", got)
	}
	if got := fmt.Sprintf("%+v", err); !strings.Contains(got, "goroutine 1 [running]:") {
		t.Errorf("%%+v should include the stack, got %q", got)
	}
}

func TestAbortHandlerPanicPropagates(t *testing.T) {
	p := New(nil, []Stage{
		StageFunc("abort", func(http.ResponseWriter, *http.Request, http.Handler) error {
			panic(http.ErrAbortHandler)
		}),
	})

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", rec)
		}
	}()
	p.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
}

func TestFallbackAfterLastStage(t *testing.T) {
	var trace []string
	p := New(nil, []Stage{record("only", &trace)})

	w := httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", http.NoBody))
	if w.Code != http.StatusNotFound {
		t.Errorf("default fallback status = %d, want 404", w.Code)
	}

	custom := New(nil, []Stage{record("only", &trace)}, WithFallback(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))
	w = httptest.NewRecorder()
	custom.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", http.NoBody))
	if w.Code != http.StatusTeapot {
		t.Errorf("custom fallback status = %d, want 418", w.Code)
	}
}

func TestFromMiddlewareWrapsWriter(t *testing.T) {
	headerMW := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Stage", "seen")
			next.ServeHTTP(w, r)
		})
	}

	var gotErr, gotStage string
	p := New(errorRecorder(&gotErr, &gotStage), []Stage{
		FromMiddleware("header", headerMW),
		StageFunc("fail", func(http.ResponseWriter, *http.Request, http.Handler) error {
			return errors.New("later failure")
		}),
	})

	w := httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if w.Header().Get("X-Stage") != "seen" {
		t.Error("middleware stage did not run")
	}
	if w.Code != http.StatusInternalServerError || gotStage != "fail" {
		t.Errorf("status = %d, stage = %q", w.Code, gotStage)
	}
}

func TestHeadersSent(t *testing.T) {
	var before, after bool
	p := New(nil, []Stage{
		StageFunc("probe", func(w http.ResponseWriter, r *http.Request, next http.Handler) error {
			before = HeadersSent(r)
			next.ServeHTTP(w, r)
			after = HeadersSent(r)
			return nil
		}),
		terminal(http.StatusOK, "done"),
	})

	p.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if before {
		t.Error("HeadersSent should be false before the response is written")
	}
	if !after {
		t.Error("HeadersSent should be true once a stage wrote the response")
	}
	if HeadersSent(httptest.NewRequest(http.MethodGet, "/", http.NoBody)) {
		t.Error("HeadersSent should be false outside a pipeline")
	}
}
