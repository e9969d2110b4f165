package middleware

import (
	"net/http"

	"github.com/apistarter/apistarter/internal/metrics"
)

// InFlightTracker counts requests currently being served.
type InFlightTracker interface {
	RequestStarted() int64
	RequestFinished() int64
}

// InFlight keeps tracker current for the lifetime of each request.
func InFlight(tracker InFlightTracker, recorder *metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if tracker == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder.SetInFlight(tracker.RequestStarted())
			defer func() {
				recorder.SetInFlight(tracker.RequestFinished())
			}()
			next.ServeHTTP(w, r)
		})
	}
}
