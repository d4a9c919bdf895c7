package masterd

import "golang.org/x/time/rate"

// AdmissionController bounds the rate at which new main-stream connections
// are accepted onto the dispatch path, a supplemented feature (SPEC_FULL.md
// Domain Stack) distinct from the worker-side per-atom rate limiting in
// interpreter.RateLimitMiddleware: this one protects the master's own
// accept loop from being overwhelmed before a client ever reaches a worker.
type AdmissionController struct {
	limiter *rate.Limiter
}

// NewAdmissionController builds a controller allowing r connections/sec with
// the given burst. A zero r disables admission control entirely (Allow
// always returns true), matching the worker's own "zero disables" contract
// for RateLimitPerSecond.
func NewAdmissionController(r float64, burst int) *AdmissionController {
	if r <= 0 {
		return &AdmissionController{}
	}
	return &AdmissionController{limiter: rate.NewLimiter(rate.Limit(r), burst)}
}

// Allow reports whether a freshly accepted connection may proceed to
// dispatch, or must be closed immediately as load shedding.
func (a *AdmissionController) Allow() bool {
	if a.limiter == nil {
		return true
	}
	return a.limiter.Allow()
}
