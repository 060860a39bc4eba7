// Package statsview is an optional package built only when the statsview
// build constraint is present.
//
// It provides an HTTP server running locally offering runtime statistics,
// backed by "github.com/go-echarts/statsview".
//
// After launch, graphical statistics are viewable at:
//
//	localhost:12700/debug/statsview
//
// And standard Go pprof endpoints at:
//
//	localhost:12700/debug/pprof/
package statsview
