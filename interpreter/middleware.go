package interpreter

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pyproxy/atom"
)

// HandlerFunc dispatches one atom request to a result, the unit middleware
// wraps. This mirrors the teacher's middleware.HandlerFunc shape
// (middleware/middleware.go), generalized from *message.RPCMessage to
// atom.Request/atom.Result.
type HandlerFunc func(req atom.Request) atom.Result

// Middleware wraps a HandlerFunc with cross-cutting behavior, onion-model,
// same as the teacher's middleware.Middleware.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so the first in the list is the outermost
// layer — identical composition order to the teacher's middleware.Chain.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// LoggingMiddleware records future id, session id, and duration per atom,
// adapted from the teacher's LoggingMiddleware and matching the field shape
// the Rust original's pythread.rs already logs
// ("finished processing pyproxyatom").
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(req atom.Request) atom.Result {
			start := time.Now()
			res := next(req)
			logger.Info("finished processing pyproxy atom",
				zap.String("session_id", req.SessionID),
				zap.String("future_id", req.FutureID),
				zap.Duration("duration", time.Since(start)),
				zap.Bool("is_error", res.IsError),
			)
			return res
		}
	}
}

// RateLimitMiddleware bounds atoms processed per second using a token
// bucket, adapted from the teacher's RateLimitMiddleware
// (middleware/rate_limit_middleware.go). The limiter is created once in the
// outer closure so the bucket is shared across every atom this worker
// processes, not reset per call.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(req atom.Request) atom.Result {
			if !limiter.Allow() {
				return atom.Result{
					SessionID: req.SessionID,
					FutureID:  req.FutureID,
					IsError:   true,
					Payload:   []byte("rate limit exceeded"),
				}
			}
			return next(req)
		}
	}
}
