// Package pipeline composes an ordered list of request stages into a single
// http.Handler.
//
// Each stage receives the response writer, the request and a handler for the
// remaining stages. A stage either writes a response itself or calls next.
// A stage that returns an error, or panics, short-circuits to the error
// stage, which is handed the same response writer the failing stage got, so
// every stage wrapped around it (compression, access logging) still sees the
// error response:
//
//	p := pipeline.New(handlers.ServerError, []pipeline.Stage{
//	    pipeline.FromMiddleware("logger", middleware.Logger(cfg)),
//	    pipeline.StageFunc("body", middleware.BodyDecoder(bodyCfg)),
//	    ...
//	})
//	http.ListenAndServe(":5000", p)
//
// Failures never escape a request; the process keeps serving.
package pipeline
