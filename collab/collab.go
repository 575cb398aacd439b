// Package collab defines the two narrow external contracts this engine
// depends on but does not implement: the protocol layer underneath the
// policy engine (PRL) and the board/chipset glue above the connection
// manager and device policy manager (Board). Concrete backends live in
// collab/mock (in-memory, for tests and the CLI demo) and
// collab/periphboard (periph.io-backed, for the GPIO demo).
package collab

import (
	"github.com/oxplot/usbpd/pdmsg"
)

// PRLEvent reports an asynchronous outcome of a PRL send.
type PRLEvent uint8

const (
	PRLEventMessageSent PRLEvent = iota
	PRLEventError
)

// PRLEvents is how a PRL implementation reports completion of a
// previously issued non-blocking send back to its policy engine.
type PRLEvents interface {
	// Notify reports that a previously submitted send on sop either
	// completed (PRLEventMessageSent) or failed after retries
	// (PRLEventError).
	Notify(sop pdmsg.SOPType, ev PRLEvent)
}

// PRL is the downstream contract: a protocol layer that performs
// GoodCRC-acknowledged message framing, chunking of extended messages, and
// hard-reset signaling on behalf of the policy engine. Every send method is
// non-blocking; completion is reported asynchronously through the
// PRLEvents the caller supplied at construction.
type PRL interface {
	// SendCtrlMessage queues a control message (no data objects) for sop.
	SendCtrlMessage(sop pdmsg.SOPType, typ pdmsg.Type) error

	// SendDataMessage queues a data message with the given data objects.
	SendDataMessage(sop pdmsg.SOPType, typ pdmsg.Type, data []uint32) error

	// SendExtDataMessage queues a (possibly chunked) extended message.
	SendExtDataMessage(sop pdmsg.SOPType, typ pdmsg.Type, payload []byte) error

	// Rx returns the next fully reassembled inbound message for sop, if
	// any is pending. GoodCRC messages never surface here.
	Rx(sop pdmsg.SOPType) (pdmsg.Message, bool)

	// ResetSoft performs a Soft Reset message sequence on sop.
	ResetSoft(sop pdmsg.SOPType) error

	// ExecuteHardReset signals a Hard Reset on the wire.
	ExecuteHardReset() error

	// HardResetComplete reports whether a prior ExecuteHardReset has
	// finished its bus signaling.
	HardResetComplete() bool

	// Rev returns the negotiated revision used for sop's framing (affects
	// whether extended messages may be sent unchunked).
	Rev(sop pdmsg.SOPType) pdmsg.Revision

	// SetRev updates the revision used for sop's framing.
	SetRev(sop pdmsg.SOPType, rev pdmsg.Revision)

	// IsRunning reports whether the protocol layer's own state machine is
	// active (false immediately after a hard reset until re-armed).
	IsRunning() bool

	// IsBusy reports whether a send is currently in flight.
	IsBusy() bool
}

// ChipsetState mirrors the values collab.Board reports through
// ChipsetInState, re-exported from pdmsg to keep Board's signature
// self-contained.
type ChipsetState = pdmsg.ChipsetPowerState

// ChargeManager is the optional battery-charging collaborator; a Board
// with no charging support (most demo/test boards) returns nil from
// Board.ChargeManager.
type ChargeManager interface {
	// MaxPowerBudgetMW returns the total power budget, in milliwatts, the
	// charge manager allows DPM to hand out across all ports.
	MaxPowerBudgetMW() int

	// SetCeilingMA sets port's PD current ceiling, in milliamps: the most
	// the charge manager will presently draw from this port's contract.
	// Grounded on charge_manager_set_ceil(port, CEIL_REQUESTOR_PD, ma).
	SetCeilingMA(port int, ma int)
}

// StatusEvent is one of the PD_STATUS_EVENT_* bits the policy engine
// raises through Board.NotifyEvent for the host/EC to relay onward (an
// ACPI notification, EC_HOST_EVENT, or similar board-specific channel).
type StatusEvent uint8

const (
	// StatusEventHardReset reports that a Hard Reset was ordered on this
	// port, either sent or received.
	StatusEventHardReset StatusEvent = 1 << iota
	// StatusEventDisconnected reports that the port's partner detached.
	StatusEventDisconnected
	// StatusEventSOPDiscoveryDone reports that SOP identity/SVID/mode
	// discovery (with the port partner) has concluded, successfully or
	// not.
	StatusEventSOPDiscoveryDone
	// StatusEventSOPPrimeDiscoveryDone reports the same for SOP' (cable
	// plug) discovery.
	StatusEventSOPPrimeDiscoveryDone
)

// Board is the upstream contract: chipset power state, VBUS sensing and
// voltage transition, and the optional battery charge manager.
type Board interface {
	// SetPowerSupplyReady asks the board's source regulator to present
	// VBUS for port, per the negotiated contract.
	SetPowerSupplyReady(port int) error

	// PowerSupplyReset tells the board to stop sourcing VBUS on port.
	PowerSupplyReset(port int) error

	// CheckVbusLevel reports whether port's sensed VBUS is at or above mv.
	CheckVbusLevel(port int, mv int) (bool, error)

	// TransitionVoltage asks the board to begin transitioning port's
	// source voltage to mv; completion is observed via CheckVbusLevel.
	TransitionVoltage(port int, mv int) error

	// ChargeManager returns the battery charge manager collaborator, or
	// nil on boards without charging support.
	ChargeManager() ChargeManager

	// EnableAutoDischargeDisconnect toggles the TCPC's automatic VBUS
	// discharge-on-disconnect feature for port. Grounded on
	// tcpm_enable_auto_discharge_disconnect(port, enable).
	EnableAutoDischargeDisconnect(port int, enable bool) error

	// NotifyEvent reports a StatusEvent occurrence for port. Grounded on
	// pd_notify_event(port, PD_STATUS_EVENT_*).
	NotifyEvent(port int, ev StatusEvent)

	// ChipsetInState reports whether the host chipset is currently in the
	// given power state.
	ChipsetInState(state ChipsetState) bool

	// ChipsetInOrTransitioningToState reports whether the chipset is in,
	// or actively moving toward, the given power state.
	ChipsetInOrTransitioningToState(state ChipsetState) bool

	// IsTBTUSB4Port reports whether port has Thunderbolt/USB4 capable
	// wiring (re-timers, four-lane muxing) so DPM knows whether to offer
	// those alt modes at all.
	IsTBTUSB4Port(port int) bool

	// PressPowerButton asks the board to simulate a physical power-button
	// event: a short press if long is false, a forced long press
	// (shutdown-triggering) otherwise. Driven by dpm's power-button state
	// machine on a partner's USB-PD power-button Alert, spec.md §4.5.3.
	PressPowerButton(long bool) error
}
