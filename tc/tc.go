// Package tc implements the Type-C connection manager: CC-line
// orientation, attach/detach detection, Try.SRC, and the physical-layer
// half of power-role swaps. It sits beneath the policy engine (package
// pe) and drives the PHY interface that a collab.Board implementation
// ultimately backs.
package tc

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oxplot/usbpd/pdtimer"
	"github.com/oxplot/usbpd/port"
)

// CCPull is the resistance a port currently asserts on its CC lines.
type CCPull uint8

const (
	PullOpen CCPull = iota
	PullRd
	PullRp
)

// CCLevel is a single CC line's classification against the open/Rd/Rp
// thresholds. CCLevelRa (captive cable/VPD) is defined, but no state acts
// on it: audio/VPD detection is not implemented.
type CCLevel uint8

const (
	CCLevelNone CCLevel = iota
	CCLevelRa
	CCLevelRd
	CCLevelRp
)

// CurrentLimit is the Rp current advertisement a source applies.
type CurrentLimit uint8

const (
	CurrentDefault CurrentLimit = iota // USB default, 500mA/900mA
	Current1A5
	Current3A0
)

// PHY is the narrow physical-layer contract the connection manager drives:
// CC sampling and pull selection, VCONN, VBUS enable/disable and presence,
// and USB mux/polarity configuration. A collab.Board-backed implementation
// supplies this for a real port; collab/mock supplies it for tests and the
// demo CLI.
type PHY interface {
	// SetCCPull asserts pull on both CC lines (sources assert Rp at limit,
	// sinks assert Rd, and CC_OPEN disables both for error recovery).
	SetCCPull(pull CCPull, limit CurrentLimit) error

	// ReadCC samples both CC lines.
	ReadCC() (cc1, cc2 CCLevel, err error)

	// SetVconn enables or disables VCONN on the non-active CC line.
	SetVconn(on bool) error

	// SetVbus enables or disables VBUS sourcing.
	SetVbus(on bool) error

	// VbusPresent reports whether VBUS is currently above the sink
	// detection threshold.
	VbusPresent() (bool, error)

	// SetPolarity configures the USB mux for the given CC polarity.
	SetPolarity(pol port.Polarity) error

	// SetMuxDataRole configures the USB mux for the given data role.
	SetMuxDataRole(role port.DataRole) error
}

// Event is the TC-level event set driving Process calls, ordered highest
// to lowest priority like pdmsg's sibling typec.Event in the teacher.
type Event uint16

const EventNone Event = 0

const (
	EventErrorRecoveryRequested Event = 1 << iota
	EventCCChange
	EventVbusPresent
	EventVbusRemoved
	EventTimerExpired
	EventPEProtocolError
	EventFRSSignaled
	EventHardResetComplete
	EventDPMRequest
)

// Pop returns the highest priority pending event and clears it.
func (e *Event) Pop() Event {
	if *e == 0 {
		return EventNone
	}
	for r := Event(1); r != 0; r <<= 1 {
		if *e&r != 0 {
			*e &^= r
			return r
		}
	}
	return EventNone
}

// Durations the original firmware names explicitly (spec.md §4.2).
const (
	tCCDebounce        = 100 * time.Millisecond
	tPDDebounce        = 10 * time.Millisecond
	tDRPTry            = 100 * time.Millisecond
	tTryWaitDebounce   = 10 * time.Millisecond
	tErrorRecovery     = 25 * time.Millisecond
	tFRSVbusDebounce   = 15 * time.Millisecond
	tLowPowerTime      = 500 * time.Millisecond
	tLowPowerExitTime  = 10 * time.Millisecond
)

// DRPPolicy controls whether an unattached port alternates between sink
// and source roles and whether it prefers Try.SRC on attach.
type DRPPolicy struct {
	DRP       bool
	TrySRC    bool
	AllowLPM  bool
}

// Manager runs the Type-C connection state machine for one port.
type Manager struct {
	Port   *port.Port
	Timers *pdtimer.Set
	Flags  Flags
	Phy    PHY
	Policy DRPPolicy
	Log    *logrus.Entry

	cur *state

	lastCC1, lastCC2 CCLevel
	preventLPM       int
}

// New creates a connection manager for port p.
func New(p *port.Port, phy PHY, timers *pdtimer.Set, policy DRPPolicy, log *logrus.Entry) *Manager {
	return &Manager{Port: p, Phy: phy, Timers: timers, Policy: policy, Log: log}
}

// Start moves the state machine to its initial state, ErrorRecovery, to
// recover from an unknown boot-time CC configuration.
func (m *Manager) Start() error {
	return m.goTo(stateErrorRecovery)
}

// Tick runs one iteration: folds expired timers, pulls one event, and
// drives Process/Enter/Exit until the state machine settles. Callers
// (package engine) call Tick in a loop, sleeping in between for
// Timers.NextExpiration() or until an external event arrives.
func (m *Manager) Tick(e Event) error {
	m.Timers.ManageExpired()
	if m.Flags.Has(FlagRequestSuspend) && m.cur != stateDisabled {
		m.Flags.Set(FlagSuspended)
		return m.goTo(stateDisabled)
	}
	if !m.Flags.Has(FlagRequestSuspend) && m.Flags.Has(FlagSuspended) {
		m.Flags.Clear(FlagSuspended)
		return m.goTo(initialUnattached(m))
	}
	if m.Flags.Has(FlagRequestErrorRecovery) && m.cur != stateErrorRecovery {
		return m.goTo(stateErrorRecovery)
	}
	for {
		var next *state
		var err error
		if m.cur.Process != nil {
			next, err = m.cur.Process(m, e)
		}
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		if err := m.goTo(next); err != nil {
			return err
		}
		e = EventNone // only the first Process call this Tick gets the real event
	}
}

func (m *Manager) goTo(next *state) error {
	if m.cur != nil && m.cur.Exit != nil {
		if err := m.cur.Exit(m); err != nil {
			return err
		}
	}
	m.cur = next
	m.Port.TCState = next.Name
	if m.Log != nil {
		m.Log.WithField("tc_state", next.Name).Debug("tc: state entered")
	}
	if next.Enter != nil {
		again, err := next.Enter(m)
		if err != nil {
			return err
		}
		if again != nil {
			return m.goTo(again)
		}
	}
	return nil
}

// PreventLowPowerMode increments the LPM-inhibit reference count; the
// returned func decrements it. While the count is > 0 the state machine
// will not drop into LOW_POWER_MODE even if both CC lines are idle, per
// spec.md §4.2 ("LPM entry is inhibited while any task holds a per-port
// 'prevent' reference count > 0").
func (m *Manager) PreventLowPowerMode() (release func()) {
	m.preventLPM++
	return func() { m.preventLPM-- }
}

func (m *Manager) lpmAllowed() bool {
	return m.Policy.AllowLPM && m.preventLPM <= 0
}

// state is a connection-manager state, matching the teacher's
// Enter/Process/Exit pattern but scoped to *Manager instead of a single
// policy-engine struct.
type state struct {
	Name    string
	Enter   func(m *Manager) (next *state, err error)
	Process func(m *Manager, e Event) (next *state, err error)
	Exit    func(m *Manager) error
}
