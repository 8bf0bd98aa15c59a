package dlc

// Stats accumulates counters useful for diagnosing link performance. Field
// order and meaning mirror the C implementation's diagnostic struct
// field-for-field so the two can be compared directly.
type Stats struct {
	// Rx is data frames received, not counting retransmissions.
	Rx uint32
	// UIRx is UI frames received.
	UIRx uint32
	// RxOutOfOrder is out-of-sequence (retransmitted) data frames received.
	RxOutOfOrder uint32
	// RxErr is frames that failed to decode (bad FCS or overflow).
	RxErr uint32
	// RxAck is ACK frames received.
	RxAck uint32
	// RxNack is NACK frames received.
	RxNack uint32
	// Tx is data frames transmitted for the first time.
	Tx uint32
	// UITx is UI frames transmitted.
	UITx uint32
	// TxErr is failures reported by the transport's Write.
	TxErr uint32
	// TxRetrans is data frames sent again under the sequence number they
	// already had; first transmissions are counted in Tx instead.
	TxRetrans uint32
	// TxAck is ACK frames transmitted.
	TxAck uint32
	// TxNack is NACK frames transmitted.
	TxNack uint32
	// TxKeepAlive is keep-alive frames transmitted, not counting resends.
	TxKeepAlive uint32
	// Reset is the number of times the link has been reset.
	Reset uint32
}
