package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, op := range []string{"open", "stat"} {
		FilesystemOperationDuration.WithLabelValues(op)
		FilesystemOperationErrors.WithLabelValues(op)
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetrySuccess.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
	}

	for _, enc := range []string{"gzip", "deflate"} {
		CompressedResponsesTotal.WithLabelValues(enc)
	}
	for _, reason := range []string{"extension", "content_type", "too_small", "encoded", "no_transform", "not_accepted"} {
		CompressionSkippedTotal.WithLabelValues(reason)
	}

	for _, kind := range []string{"javascript", "css", "json"} {
		MinifyBytesSaved.WithLabelValues(kind)
		for _, status := range []string{"success", "compile_error", "minify_error"} {
			MinifyTotal.WithLabelValues(kind, status)
		}
	}

	for _, format := range []string{"json", "urlencoded"} {
		BodyDecodeTotal.WithLabelValues(format, "success")
		BodyDecodeTotal.WithLabelValues(format, "error")
	}

	for _, outcome := range []string{"none", "valid", "rejected"} {
		SessionCookiesTotal.WithLabelValues(outcome)
	}
}
