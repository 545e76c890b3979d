package logging

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// warnLimiter throttles repeat warnings per category so a misbehaving
// interpreter (e.g. spewing garbage code pointers every sample) cannot
// flood the log at the sampling rate. 10 per second, 100 per minute,
// per category.
var warnLimiter = catrate.NewLimiter(map[time.Duration]int{
	time.Second: 10,
	time.Minute: 100,
})

// WarnRateLimited logs fn's message at most at the rate configured for
// warnLimiter, keyed by category. Categories are typically short fixed
// strings ("resolver: code pointer unresolved") naming the warning site,
// not per-sample values, so the limiter's category set stays bounded.
func WarnRateLimited(category string, fn func(l *Logger)) {
	if _, ok := warnLimiter.Allow(category); !ok {
		return
	}
	fn(Get())
}
