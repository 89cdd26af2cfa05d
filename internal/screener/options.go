package screener

import "time"

// GapPolicy controls how missing trading days inside a history are treated.
// MaxCalendarGapDays == 0 tolerates gaps and uses the bars positionally.
// A positive value skips symbols whose history has two consecutive bars
// further apart than that many calendar days.
type GapPolicy struct {
	MaxCalendarGapDays int
}

// Options configures a Screener.
type Options struct {
	EMAPeriod    int
	MinHistory   int
	LookbackDays int           // calendar days of history requested from the provider
	Delay        time.Duration // minimum spacing between provider calls
	Workers      int
	Retries      int // fetch attempts per symbol
	RetryDelay   time.Duration
	Gap          GapPolicy
}

// DefaultOptions returns the reference settings: EMA(50) over at least 50
// bars, one symbol at a time with one second between provider calls.
func DefaultOptions() Options {
	return Options{
		EMAPeriod:    50,
		MinHistory:   50,
		LookbackDays: 120,
		Delay:        time.Second,
		Workers:      1,
		Retries:      2,
		RetryDelay:   2 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.EMAPeriod <= 0 {
		o.EMAPeriod = d.EMAPeriod
	}
	if o.MinHistory <= 0 {
		o.MinHistory = o.EMAPeriod
	}
	if o.LookbackDays <= 0 {
		o.LookbackDays = d.LookbackDays
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Retries <= 0 {
		o.Retries = 1
	}
	return o
}
