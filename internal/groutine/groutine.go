package groutine

import (
	"context"
	"runtime/debug"
	"runtime/pprof"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// PanicHandler is called with the goroutine name and the recovered value when a
// goroutine started by Go panics. It is a variable so that tests can capture panics.
var PanicHandler = func(name string, recovered any) {
	logrus.WithFields(logrus.Fields{
		"goroutine": name,
		"panic":     recovered,
		"stack":     string(debug.Stack()),
	}).Error("Recovered panic in goroutine")
}

// Go starts a goroutine with a name, optional parent context
// Example usage:
//
//	groutine.Go(ctx, "monitor-scan", func(ctx context.Context) {
//	    // work
//	})
//
// If parentCtx is nil, context.Background() is used. A panic in fn is recovered
// and reported to PanicHandler.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				PanicHandler(name, r)
			}
		}()
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
