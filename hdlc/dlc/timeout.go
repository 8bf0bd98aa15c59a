package dlc

// OnTimeout must be called once per tick of the Timer passed to New. It
// drives the reset handshake, retransmission of the oldest outstanding
// frame, and idle keep-alives.
//
// Retransmission on timeout resends only the head of the queue, on the
// assumption that the timeout is close to the round-trip time: flushing
// every outstanding frame again risks sending more than the link can carry
// at once. Once an acknowledgement arrives, rxAckLocked's retransmitOnAck
// path replays the rest.
func (c *Controller) OnTimeout() {
	c.mu.Lock()

	if c.closed {
		// A tick that raced Close must observe the closed instance and do
		// nothing, not resend a SABM and re-arm the timer it just stopped.
		c.mu.Unlock()
		return
	}

	if c.state == stateRstRequired {
		c.sendSABMLocked()
		c.mu.Unlock()
		return
	}

	if c.state == stateRstCompleteWait {
		c.state = stateRstComplete
		c.timer.Start()
		cb := c.cb
		c.mu.Unlock()
		if cb.OnConnected != nil {
			cb.OnConnected()
		}
		return
	}

	if c.queue.Len() > 0 && c.outstandingCount > 0 {
		head := c.queue.At(0)
		c.retransmitAttempt++
		if c.retransmitAttempt == c.cfg.RetransmitCount {
			cause := CauseTimeoutRetransmit
			if c.keepAliveCounter >= c.cfg.KeepAliveCount {
				cause = CauseTimeoutKeepAlive
			}
			c.resetWithCause(cause) // unlocks internally
			return
		}
		c.txDataFrameLocked(head)
		c.retransmitOnAck = true
	} else {
		c.keepAliveCounter++
		if c.keepAliveCounter == c.cfg.KeepAliveCount {
			c.insertFrameLocked(txEntry{frame: nil, seqNo: -1})
			c.stats.TxKeepAlive++
		}
	}
	c.timer.Start()
	c.mu.Unlock()
}
