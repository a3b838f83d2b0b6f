package cachez

import (
	"sync/atomic"
	"time"
)

const defaultPersistTTL = 24 * time.Hour

var fallbackTTL atomic.Int64

func init() {
	fallbackTTL.Store(int64(defaultPersistTTL))
}

// Period is the lifetime of a persisted entry expressed in calendar units.
// Fractions are allowed, e.g. Period{Seconds: 0.5}.
type Period struct {
	Seconds float64
	Minutes float64
	Hours   float64
	Days    float64
	Weeks   float64
}

// PeriodOf expresses d as a Period.
func PeriodOf(d time.Duration) Period {
	return Period{Seconds: d.Seconds()}
}

// Duration composes the period. A period that sums to zero falls back to the
// configured default TTL (one day unless Configure changed it).
func (p Period) Duration() time.Duration {
	days := p.Days + 7*p.Weeks
	hours := p.Hours + 24*days
	minutes := p.Minutes + 60*hours
	seconds := p.Seconds + 60*minutes
	if seconds == 0 {
		return time.Duration(fallbackTTL.Load())
	}
	return time.Duration(seconds * float64(time.Second))
}
