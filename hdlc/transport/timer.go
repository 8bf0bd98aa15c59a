package transport

import "time"

// Ticker implements dlc.Timer on top of a single time.Timer, Reset on every
// Start the way the retransmit/keep-alive timer is expected to behave: each
// call rearms the full interval from now, regardless of whether it was
// already running.
//
// A Controller needs a Timer before it exists (New calls Start during
// construction) and a Ticker needs the Controller to call back into, so
// construction is two steps: NewTicker, then Bind once the Controller is
// built.
type Ticker struct {
	interval time.Duration
	timer    *time.Timer
	onFire   func()
}

// NewTicker returns a Ticker that fires once, interval after each Start; it
// does not start automatically and does not rearm itself after firing.
func NewTicker(interval time.Duration) *Ticker {
	t := &Ticker{interval: interval}
	t.timer = time.AfterFunc(interval, t.fire)
	t.timer.Stop()
	return t
}

// Bind sets the function invoked on every tick. A tick that fires before
// Bind has been called is dropped.
func (t *Ticker) Bind(onFire func()) {
	t.onFire = onFire
}

func (t *Ticker) fire() {
	if t.onFire != nil {
		t.onFire()
	}
}

// Start implements dlc.Timer.
func (t *Ticker) Start() {
	t.timer.Reset(t.interval)
}

// Stop implements dlc.Timer.
func (t *Ticker) Stop() {
	t.timer.Stop()
}
