package pe

import "github.com/oxplot/usbpd/port"

// MsgCheck is the outcome of one Sender-Response tick, per spec.md §4.3.1.
type MsgCheck uint8

const (
	SendPending MsgCheck = iota
	SendCompleted
	Sent
	Discarded
	DPMDiscarded
)

// senderResponse drives the shared request-then-reply protocol: it is
// called once per tick by any state waiting on a reply (Source capability
// negotiation, a Request/Accept exchange, a VDM round trip). It never
// returns DPMDiscarded; callers handle that value alongside Discarded.
func (pe *Engine) senderResponse() MsgCheck {
	if pe.Port.HasFlag(port.FlagProtocolError) {
		pe.Port.ClearFlag(port.FlagProtocolError)
		return Discarded
	}
	if pe.sendPending {
		return SendPending
	}
	if pe.Port.HasFlag(port.FlagTxComplete) {
		pe.Port.ClearFlag(port.FlagTxComplete)
		pe.startTimer(tSenderResponseTimerFor(pe), tSenderResponse)
		return SendCompleted
	}
	return Sent
}

// tSenderResponseTimerFor picks the timer ID the caller's exchange should
// arm. The Sender-Response pattern is shared by several distinct
// exchanges, each with its own named timer in the original timer enum, so
// the concrete state chooses which one via pe.activeResponseTimer.
func tSenderResponseTimerFor(pe *Engine) pdtimerID {
	return pe.activeResponseTimer
}
