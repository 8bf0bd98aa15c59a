package dlc

// resetWithCause tears the link down and restarts the handshake. It is
// called with the mutex held and releases it before returning, since
// OnReset and OnFrameSent must run without it (letting Send be called back
// from inside a callback without deadlocking).
func (c *Controller) resetWithCause(cause ResetCause) {
	c.log.Warn("link reset", "cause", cause, "dropped", c.queue.Len())
	dropped := c.drainQueueLocked()

	c.resetLocked()
	if cause == CausePeerInitiated {
		c.state = stateRstCompleteWait
		// resetLocked already (re)armed the timer.
	}
	c.stats.Reset++

	cb := c.cb
	c.mu.Unlock()

	if cb.OnReset != nil {
		cb.OnReset(cause)
	}
	if cb.OnFrameSent != nil {
		for _, frame := range dropped {
			if frame != nil {
				cb.OnFrameSent(frame)
			}
		}
	}
}

// drainQueueLocked empties the queue and returns the frame of every entry
// that held one, in FIFO order, for the caller to report once unlocked.
func (c *Controller) drainQueueLocked() [][]byte {
	var dropped [][]byte
	for c.queue.Len() > 0 {
		e := c.queue.PopFront()
		dropped = append(dropped, e.frame)
	}
	c.outstandingCount = 0
	return dropped
}

// OnLinkLost notifies the Controller that the underlying transport failed
// outright (as opposed to a timeout), forcing an immediate reset.
func (c *Controller) OnLinkLost() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.resetWithCause(CauseLinkLost)
}
