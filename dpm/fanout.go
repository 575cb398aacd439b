package dpm

import (
	"github.com/oxplot/usbpd/altmode"
	"github.com/oxplot/usbpd/collab"
	"github.com/oxplot/usbpd/pdmsg"
	"github.com/oxplot/usbpd/port"
)

// ModeEntryDecision names which alt mode the fan-out wants to try entering
// next for a port, per spec.md §4.5.2's priority order (USB4 > TBT-compat >
// DisplayPort).
type ModeEntryDecision int

const (
	DecisionNone ModeEntryDecision = iota
	DecisionEnterUSB4
	DecisionEnterTBT
	DecisionEnterDP
)

// NextModeEntry decides the next mode-entry step for p. It returns
// DecisionNone unless p is DFP and p.Discovery[pdmsg.SOP].SVIDsReceived is
// true. It does not check PEState, and neither does engine's caller; the
// policy engine acts on the raised request bits only in its Ready states.
func NextModeEntry(p *port.Port, board collab.Board) ModeEntryDecision {
	if p.DataRole != port.RoleDFP {
		return DecisionNone
	}
	if !p.Discovery[pdmsg.SOP].SVIDsReceived {
		return DecisionNone
	}
	if board.IsTBTUSB4Port(p.Index) && altmode.SupportsUSB4(p) {
		return DecisionEnterUSB4
	}
	if altmode.HasSVID(p, pdmsg.SOP, altmode.SVIDIntel) {
		return DecisionEnterTBT
	}
	if altmode.HasSVID(p, pdmsg.SOP, altmode.SVIDDisplayPort) {
		return DecisionEnterDP
	}
	return DecisionNone
}

// Request raises the port.DPMRequest bit the decision corresponds to,
// driving pe's stateVDMSendRequest/stateEnterUSBSend dispatch
// (pe/states_swap.go's dpmRequestPending, pe/states_misc.go). USB4 entry is
// Enter_USB, not a structured VDM, so it maps to DPMRequestSendEnterUSB
// rather than DPMRequestSendEnterMode.
func (d ModeEntryDecision) Request(p *port.Port) {
	switch d {
	case DecisionEnterUSB4:
		p.RequestFromDPM(port.DPMRequestSendEnterUSB)
	case DecisionEnterTBT, DecisionEnterDP:
		p.RequestFromDPM(port.DPMRequestSendEnterMode)
	}
}
