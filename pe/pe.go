// Package pe implements the USB-PD policy engine: the message-level state
// machine that negotiates power contracts, drives hard/soft reset, role
// swaps, structured VDM exchanges, Data Reset and EPR entry/exit. It sits
// above package tc (which owns the physical CC/VBUS connection) and talks
// to the protocol layer through collab.PRL.
package pe

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oxplot/usbpd/collab"
	"github.com/oxplot/usbpd/pdmsg"
	"github.com/oxplot/usbpd/pdtimer"
	"github.com/oxplot/usbpd/port"
)

// CapabilityEvaluator evaluates a received set of source PDOs and returns
// the RequestDO to send back, or pdmsg.EmptyRequestDO to reject all of
// them. Implemented by package dpm; adapted here exactly as the teacher's
// CapabilityEvaluator/CapabilityEvaluatorFunc pair.
type CapabilityEvaluator interface {
	EvaluateCapabilities(pdos []pdmsg.PDO) pdmsg.RequestDO
}

// CapabilityEvaluatorFunc adapts an ordinary func to a CapabilityEvaluator.
type CapabilityEvaluatorFunc func([]pdmsg.PDO) pdmsg.RequestDO

func (f CapabilityEvaluatorFunc) EvaluateCapabilities(pdos []pdmsg.PDO) pdmsg.RequestDO {
	return f(pdos)
}

// SourceCapProvider supplies the PDOs a source-role port advertises.
// Implemented by package dpm, which owns the shared-3A allocator deciding
// what a given port may currently offer.
type SourceCapProvider interface {
	SourcePDOs(portIndex int) []pdmsg.PDO
}

// AllocatorHook lets the policy engine report RDO negotiation outcomes to
// the shared 3A allocator (package dpm), the reverse direction of
// SourceCapProvider: implemented by *dpm.Allocator, whose balanceLocked
// arbitration runs synchronously off these calls.
type AllocatorHook interface {
	// RequestSinkMaxPDO marks port as currently granted the negotiated
	// 3A PDO its partner selected.
	RequestSinkMaxPDO(port int)

	// ClearSinkMaxPDO drops that grant once the partner selects anything
	// else.
	ClearSinkMaxPDO(port int)

	// ReportRDO feeds the just-accepted RDO to the allocator's
	// sub-1.5A compliance-quirk downgrade.
	ReportRDO(port int, rdo pdmsg.RequestDO)
}

// Event is a notification the policy engine raises toward its owner
// (typically package dpm, or a test harness) — never a wire message.
// Modeled on the teacher's string-valued Event so log lines read directly
// as the event name.
type Event string

const (
	EventPowerNotReady    Event = "power_not_ready"
	EventPowerReady       Event = "power_ready"
	EventAccepted         Event = "accepted"
	EventHardReset        Event = "hard_reset"
	EventDiscoveryDone    Event = "discovery_done"
	EventSwapCompleted    Event = "swap_completed"
	EventEPREntered       Event = "epr_entered"
	EventEPRExited        Event = "epr_exited"
)

// EventHandler receives policy engine notifications.
type EventHandler interface {
	HandleEvent(Event)
}

// EventHandlerFunc adapts an ordinary func to an EventHandler.
type EventHandlerFunc func(Event)

func (f EventHandlerFunc) HandleEvent(e Event) { f(e) }

// wireEvent is the internal run-loop event set: message arrival, timer
// expiry, and TC-reported connection events all funnel through Process the
// same way the teacher's single typec.Event did.
type wireEvent uint16

const (
	wireEventNone wireEvent = 0
	wireEventRx   wireEvent = 1 << iota
	wireEventTimerTimeout
	wireEventHardResetReceived
	wireEventAttached
	wireEventDetached
)

// Engine runs the policy engine state machine for one port.
type Engine struct {
	Port   *port.Port
	Timers *pdtimer.Set
	PRL    collab.PRL
	Log    *logrus.Entry

	capEvaluator CapabilityEvaluator
	srcCaps      SourceCapProvider
	eventHandler EventHandler
	allocHook    AllocatorHook

	// Board is the board/chipset collaborator used to actually drive VBUS
	// (TransitionVoltage/SetPowerSupplyReady/PowerSupplyReset/
	// CheckVbusLevel), the battery charge manager ceiling, and
	// auto-discharge-disconnect/host-notification side effects of power
	// transitions and resets. Nil is valid (e.g. unit tests exercising
	// only the message-level state machine) and every call site guards
	// for it.
	Board collab.Board

	cur *state

	// msgTpl is reused as a template for every outbound message: role bits
	// and spec-revision are set once per state entry, matching the
	// teacher's msgTpl field.
	msgTpl pdmsg.Message

	rdo              pdmsg.RequestDO
	discoverIdentity discoverIdentityState

	explicitContract bool
	waitingOnSource  bool
	hardResetCounter int
	capsCounter      int
	sendPending      bool
	activeResponseTimer pdtimerID
	hardResetSignaled   bool
	rxVDMHeader         uint32

	v5PDO pdmsg.FixedSupplyPDO
}

// New creates a policy engine for port p.
func New(p *port.Port, prl collab.PRL, timers *pdtimer.Set, log *logrus.Entry) *Engine {
	v5 := pdmsg.NewFixedSupplyPDO()
	v5.SetVoltage(5000)
	return &Engine{Port: p, PRL: prl, Timers: timers, Log: log, v5PDO: v5}
}

// SetCapabilityEvaluator installs the sink-side RDO evaluator.
func (pe *Engine) SetCapabilityEvaluator(ce CapabilityEvaluator) { pe.capEvaluator = ce }

// SetSourceCapProvider installs the source-side PDO provider.
func (pe *Engine) SetSourceCapProvider(p SourceCapProvider) { pe.srcCaps = p }

// SetEventHandler installs the notification sink.
func (pe *Engine) SetEventHandler(h EventHandler) { pe.eventHandler = h }

// SetAllocatorHook installs the shared 3A allocator callback.
func (pe *Engine) SetAllocatorHook(h AllocatorHook) { pe.allocHook = h }

// SetBoard installs the board/chipset collaborator.
func (pe *Engine) SetBoard(b collab.Board) { pe.Board = b }

func (pe *Engine) notify(e Event) {
	if pe.eventHandler != nil {
		pe.eventHandler.HandleEvent(e)
	}
}

// Notify implements collab.PRLEvents: the protocol layer reports whether a
// previously queued send reached GoodCRC or failed. sendPending tracks the
// in-flight state the Sender-Response pattern (sender_response.go) checks
// each tick.
func (pe *Engine) Notify(sop pdmsg.SOPType, ev collab.PRLEvent) {
	switch ev {
	case collab.PRLEventMessageSent:
		pe.Port.SetFlag(port.FlagTxComplete)
	case collab.PRLEventError:
		pe.Port.SetFlag(port.FlagProtocolError)
	}
	pe.sendPending = false
}

// SignalHardReset records that the physical layer (PRL/TCPC) detected a
// Hard Reset ordered-set on the wire; Hard Reset is bus signaling, not a
// header-framed message, so it cannot arrive through PRL.Rx like every
// other inbound event.
func (pe *Engine) SignalHardReset() { pe.hardResetSignaled = true }

// Start moves the engine to its initial state for the port's current
// power role (SinkStartup or SrcStartup).
func (pe *Engine) Start() error {
	if pe.Port.PowerRole == port.RoleSource {
		return pe.goTo(stateSrcStartup)
	}
	return pe.goTo(stateSnkStartup)
}

// Tick reads at most one message from PRL's inbox for this port's SOP and
// drives the state machine. Callers (package engine) invoke Tick in a loop.
func (pe *Engine) Tick() error {
	pe.Timers.ManageExpired()

	we := wireEventNone
	var m pdmsg.Message
	if msg, ok := pe.PRL.Rx(pdmsg.SOP); ok {
		m = msg
		we |= wireEventRx
	}
	if pe.hardResetSignaled {
		pe.hardResetSignaled = false
		we |= wireEventHardResetReceived
		if pe.cur != stateHardReset {
			return pe.goTo(stateHardReset)
		}
	}

	for {
		var next *state
		var err error
		if pe.cur != nil && pe.cur.Process != nil {
			next, err = pe.cur.Process(pe, m, we)
		}
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		if err := pe.goTo(next); err != nil {
			return err
		}
		we, m = wireEventNone, pdmsg.Message{}
	}
}

func (pe *Engine) goTo(next *state) error {
	if pe.cur != nil && pe.cur.Exit != nil {
		if err := pe.cur.Exit(pe); err != nil {
			return err
		}
	}
	pe.cur = next
	pe.Port.PEState = next.Name
	if pe.Log != nil {
		pe.Log.WithField("pe_state", next.Name).Debug("pe: state entered")
	}
	if next.Enter != nil {
		again, err := next.Enter(pe)
		if err != nil {
			return err
		}
		if again != nil {
			return pe.goTo(again)
		}
	}
	return nil
}

func (pe *Engine) startTimer(id pdtimerID, d time.Duration) {
	pe.Timers.EnableAfter(id, d)
}

// sendAwaitingReply queues typ via PRL and arms the Sender-Response
// pattern, remembering which timer ID senderResponse should start once the
// GoodCRC completion arrives.
func (pe *Engine) sendAwaitingReply(responseTimer pdtimerID, send func() error) error {
	pe.activeResponseTimer = responseTimer
	pe.sendPending = true
	return send()
}

// sendCtrl is a convenience for the common case of a bare control message
// awaiting a reply.
func (pe *Engine) sendCtrl(typ pdmsg.Type, responseTimer pdtimerID) error {
	return pe.sendAwaitingReply(responseTimer, func() error {
		return pe.PRL.SendCtrlMessage(pdmsg.SOP, typ)
	})
}

// state is a policy engine state in the teacher's Enter/Process/Exit
// shape, scoped to *Engine and carrying the wire event set alongside the
// message so a single Process implements both the Sender-Response pattern
// and plain reactive states.
type state struct {
	Name    string
	Enter   func(pe *Engine) (next *state, err error)
	Process func(pe *Engine, m pdmsg.Message, e wireEvent) (next *state, err error)
	Exit    func(pe *Engine) error
}

type discoverIdentityState struct {
	attempts    int
	precontract int
}

// pdtimerID is a local alias so this file does not need to import
// package pdtimer just to spell its exported ID type in startTimer's
// signature; state files that arm specific timers import pdtimer directly.
type pdtimerID = pdtimer.ID
