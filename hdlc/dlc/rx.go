package dlc

import "github.com/mydefence/mdif/hdlc/codec"

// dispatchResult tells OnRx how the just-processed frame affects the single
// negative acknowledgement budget for the whole OnRx call.
type dispatchResult int

const (
	nackNoChange dispatchResult = iota
	nackSet
	nackClear
)

// OnRx feeds received bytes through the frame decoder and reacts to
// whatever frames complete. It sends at most one NACK per call, regardless
// of how many out-of-order frames the chunk contained.
func (c *Controller) OnRx(buf []byte) {
	needNack := false
	prevKind := codec.KindUnsupported
	hasPrev := false

loop:
	for len(buf) > 0 {
		c.mu.Lock()
		consumed, status, payload, ctrl := c.decoder.Feed(buf)
		c.mu.Unlock()
		switch status {
		case codec.StatusIncomplete:
			break loop
		case codec.StatusChecksum:
			c.mu.Lock()
			c.stats.RxErr++
			c.mu.Unlock()
			buf = buf[consumed:]
			continue
		}

		// A frame closed successfully (status == codec.StatusOK). A
		// repeated SABM is ignored outright: it carries no new
		// information and must not perturb keep-alive accounting.
		if hasPrev && prevKind == codec.KindSABM && ctrl.Kind == codec.KindSABM {
			buf = buf[consumed:]
			continue
		}
		prevKind, hasPrev = ctrl.Kind, true

		switch c.dispatch(ctrl, payload) {
		case nackSet:
			needNack = true
		case nackClear:
			needNack = false
		}
		buf = buf[consumed:]
	}

	if needNack {
		c.mu.Lock()
		if !c.closed {
			c.sendNackLocked()
		}
		c.mu.Unlock()
	}
}

// dispatch applies the effect of one successfully decoded frame and
// reports how it affects the pending-NACK decision. Callbacks are invoked
// with the mutex released.
func (c *Controller) dispatch(ctrl codec.Control, payload []byte) dispatchResult {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return nackNoChange
	}

	c.keepAliveCounter = 0
	if ctrl.Kind == codec.KindData {
		// Reduces the chance both ends send a keep-alive at the same
		// moment; any real traffic is as good as one.
		c.keepAliveCounter = 1
	}

	if c.state < stateRstComplete && ctrl.Kind != codec.KindSABM && ctrl.Kind != codec.KindUA {
		c.mu.Unlock()
		return nackNoChange
	}

	switch ctrl.Kind {
	case codec.KindData:
		inOrder := c.expectedRxSeqNo == ctrl.SendSeqNo
		dropped := c.rxAckLocked(ctrl.RecvSeqNo)

		result := nackSet
		if inOrder {
			c.stats.Rx++
			c.state = stateActive
			c.ackRecvDataLocked(ctrl.SendSeqNo)
			result = nackClear
		} else {
			c.stats.RxOutOfOrder++
		}
		cb := c.cb
		c.mu.Unlock()

		if inOrder && len(payload) > 0 && cb.OnRecv != nil {
			cb.OnRecv(payload)
		}
		fireFrameSent(cb, dropped)
		return result

	case codec.KindUI:
		c.stats.UIRx++
		cb := c.cb
		c.mu.Unlock()
		if cb.OnRecv != nil {
			cb.OnRecv(payload)
		}
		return nackNoChange

	case codec.KindAck:
		c.stats.RxAck++
		dropped := c.rxAckLocked(ctrl.RecvSeqNo)
		cb := c.cb
		c.mu.Unlock()
		fireFrameSent(cb, dropped)
		return nackNoChange

	case codec.KindNack:
		c.stats.RxNack++
		// Retransmission on NACK is left to the timeout path, to keep
		// there being exactly one place that decides to retransmit.
		dropped := c.rxAckLocked(ctrl.RecvSeqNo)
		cb := c.cb
		c.mu.Unlock()
		fireFrameSent(cb, dropped)
		return nackNoChange

	case codec.KindSABM:
		c.sendUALocked()
		if c.state == stateActive {
			c.log.Warn("peer re-sent SABM mid-session, resetting")
			c.resetWithCause(CausePeerInitiated) // unlocks internally
			return nackNoChange
		}
		// A peer SABM also confirms that our own reset handshake is
		// done, so fall through exactly as an UA would.
		fallthrough
	case codec.KindUA:
		if c.state == stateRstRequired {
			c.state = stateRstComplete
			c.log.Info("link connected")
			cb := c.cb
			c.mu.Unlock()
			if cb.OnConnected != nil {
				cb.OnConnected()
			}
		} else {
			c.mu.Unlock()
		}
		return nackNoChange

	default:
		c.mu.Unlock()
		return nackNoChange
	}
}

func fireFrameSent(cb Callbacks, dropped [][]byte) {
	if cb.OnFrameSent == nil {
		return
	}
	for _, frame := range dropped {
		if frame != nil {
			cb.OnFrameSent(frame)
		}
	}
}

// rxAckLocked processes a received N(R), popping every queue entry it
// confirms, refilling the send window, and flushing a deferred ACK once the
// window drains. It returns the frame of every popped entry, in order, for
// the caller to report via Callbacks.OnFrameSent once unlocked.
func (c *Controller) rxAckLocked(ackSeqNo uint8) [][]byte {
	if c.queue.Len() == 0 {
		return nil
	}
	if c.queue.At(0).seqNo == int(ackSeqNo) {
		return nil // outdated: ack for what we already know was acked
	}

	var dropped [][]byte
	for c.queue.Len() > 0 {
		head := c.queue.At(0)
		if head.seqNo == int(ackSeqNo) {
			break
		}
		if head.seqNo == -1 {
			// Believed unreachable: an entry with no sequence number yet
			// can only trail the outstanding prefix, and outstanding
			// entries are always acked (or matched above) before the
			// loop ever reaches one. Kept as a defensive guard mirroring
			// dlc.c's equivalent check in its own ACK-popping loop.
			break
		}
		c.queue.PopFront()
		dropped = append(dropped, head.frame)
		c.outstandingCount--
	}

	// The link just proved itself live, however many times this data
	// was retransmitted.
	c.retransmitAttempt = 0

	if c.retransmitOnAck {
		for i := 0; i < c.outstandingCount; i++ {
			c.txDataFrameLocked(c.queue.At(i))
		}
		c.retransmitOnAck = false
	}

	for c.outstandingCount < c.cfg.Window && c.queue.Len() > c.outstandingCount {
		c.txDataFrameLocked(c.queue.At(c.outstandingCount))
		c.outstandingCount++
	}

	c.timer.Start()
	if c.outstandingCount == 0 && c.ackPending {
		c.sendAckLocked()
	}

	return dropped
}

// ackRecvDataLocked records reception of an in-order DATA frame and decides
// whether to acknowledge it immediately or piggyback the acknowledgement
// on a future outbound frame.
func (c *Controller) ackRecvDataLocked(rxSeqNo uint8) {
	c.expectedRxSeqNo = (rxSeqNo + 1) & 7
	if c.queue.Len() > 0 && c.outstandingCount < c.cfg.Window {
		// There may be no further transmissions if the queue drains,
		// in which case rxAckLocked flushes this once outstanding
		// hits 0. Sending it immediately here too could deadlock a
		// peer whose own window is also full.
		c.ackPending = true
		return
	}
	c.sendAckLocked()
}
