package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetricsExist(t *testing.T) {
	tests := []struct {
		name   string
		metric interface{}
	}{
		{"HTTPRequestsTotal", HTTPRequestsTotal},
		{"HTTPRequestDuration", HTTPRequestDuration},
		{"HTTPRequestsInFlight", HTTPRequestsInFlight},
		{"PipelineErrorsTotal", PipelineErrorsTotal},
		{"BodyDecodeTotal", BodyDecodeTotal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s metric is nil", tt.name)
			}
		})
	}
}

func TestInitializeMetricsPrepopulatesLabels(t *testing.T) {
	InitializeMetrics()

	if n := testutil.CollectAndCount(MinifyTotal); n != 9 {
		t.Errorf("expected 9 minify series (3 kinds x 3 statuses), got %d", n)
	}
	if n := testutil.CollectAndCount(SessionCookiesTotal); n != 3 {
		t.Errorf("expected 3 session outcome series, got %d", n)
	}
	if n := testutil.CollectAndCount(FilesystemRetryAttempts); n != 2 {
		t.Errorf("expected 2 retry operation series, got %d", n)
	}
}

func TestSetAppInfo(t *testing.T) {
	SetAppInfo("1.2.3", "abc123", "go1.25")

	got := testutil.ToFloat64(AppInfo.WithLabelValues("1.2.3", "abc123", "go1.25"))
	if got != 1 {
		t.Errorf("AppInfo gauge = %v, want 1", got)
	}
}

func TestFilesystemObserver(t *testing.T) {
	obs := NewFilesystemObserver()

	beforeErr := testutil.ToFloat64(FilesystemOperationErrors.WithLabelValues("open"))
	obs.ObserveOperation("open", 0.001, errors.New("boom"))
	obs.ObserveOperation("open", 0.001, nil)
	if got := testutil.ToFloat64(FilesystemOperationErrors.WithLabelValues("open")); got != beforeErr+1 {
		t.Errorf("open errors = %v, want %v", got, beforeErr+1)
	}

	beforeAttempts := testutil.ToFloat64(FilesystemRetryAttempts.WithLabelValues("stat"))
	obs.ObserveRetryAttempt("stat")
	if got := testutil.ToFloat64(FilesystemRetryAttempts.WithLabelValues("stat")); got != beforeAttempts+1 {
		t.Errorf("stat retry attempts = %v, want %v", got, beforeAttempts+1)
	}

	beforeSuccess := testutil.ToFloat64(FilesystemRetrySuccess.WithLabelValues("stat"))
	obs.ObserveRetrySuccess("stat")
	if got := testutil.ToFloat64(FilesystemRetrySuccess.WithLabelValues("stat")); got != beforeSuccess+1 {
		t.Errorf("stat retry success = %v, want %v", got, beforeSuccess+1)
	}

	beforeFailure := testutil.ToFloat64(FilesystemRetryFailures.WithLabelValues("open"))
	obs.ObserveRetryFailure("open")
	if got := testutil.ToFloat64(FilesystemRetryFailures.WithLabelValues("open")); got != beforeFailure+1 {
		t.Errorf("open retry failures = %v, want %v", got, beforeFailure+1)
	}
}
