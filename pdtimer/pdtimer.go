// Package pdtimer tracks the deadline-based timers a USB-PD port runs
// concurrently: the policy engine, the Type-C connection state machine, the
// protocol layer and the device policy manager all arm and query timers
// through this one service rather than each keeping its own time.Timer.
//
// A timer is always in one of three states: disabled (never armed, or
// explicitly cleared), active (armed with a deadline in the future or
// past), or expired (was active, its deadline has passed, and
// ManageExpired has marked it). An expired timer stays expired until
// Disable or Enable; ManageExpired only moves active timers to expired.
// Enable always moves a timer to active regardless of its previous state.
package pdtimer

import "time"

// ID names one of the timers a port runs. Values are grouped into
// contiguous ranges (see Range) mirroring the four subsystems that own
// timers: the device policy manager, the policy engine, the protocol layer
// and the Type-C connection manager.
type ID int

const (
	// Device policy manager timers.
	DPMButtonLongPress ID = iota
	DPMButtonShortPress

	// Policy engine timers.
	PEBISTContMode
	PEChunkingNotSupported
	PEDataResetFail
	PEDiscoverIdentity
	PENoResponse
	PEPRSwapWait
	PEPSHardReset
	PEPSSource
	PEPSTransition
	PESenderResponse
	PESinkEPREnter
	PESinkEPRKeepAlive
	PESinkRequest
	PESourceCap
	PESrcTransition
	PESwapSourceStart
	PETimeout
	PEVconnDischarge
	PEVconnOn
	PEVconnReapplied
	PEVDMResponse
	PEWaitAndAddJitter

	// Protocol layer timers.
	PRChunkSenderResponse
	PRChunkSenderRequest
	PRHardResetComplete
	PRSinkTx
	PRTCPCTxTimeout

	// Type-C connection manager timers.
	TCCCDebounce
	TCLowPowerExitTime
	TCLowPowerTime
	TCNextRoleSwap
	TCPDDebounce
	TCTimeout
	TCTryWaitDebounce
	TCVBUSDebounce

	numTimers
)

// Range groups IDs by owning subsystem, for bulk disable on state entry
// (e.g. a fresh Attached.SNK entry disables the whole TC range before
// arming the ones it needs).
type Range int

const (
	DPMRange Range = iota
	PERange
	PRRange
	TCRange
)

var rangeBounds = map[Range][2]ID{
	DPMRange: {DPMButtonLongPress, DPMButtonShortPress},
	PERange:  {PEBISTContMode, PEWaitAndAddJitter},
	PRRange:  {PRChunkSenderResponse, PRTCPCTxTimeout},
	TCRange:  {TCCCDebounce, TCVBUSDebounce},
}

type state uint8

const (
	stateDisabled state = iota
	stateActive
	stateExpired
)

// Set holds the timer state for a single port. The zero value is a valid
// Set with every timer disabled.
type Set struct {
	entries [numTimers]entry
}

type entry struct {
	state    state
	deadline time.Time
}

// New returns a Set with every timer disabled.
func New() *Set {
	return &Set{}
}

// Enable arms timer at the given absolute deadline, moving it to active
// regardless of its previous state.
func (s *Set) Enable(timer ID, deadline time.Time) {
	s.entries[timer] = entry{state: stateActive, deadline: deadline}
}

// EnableAfter is a convenience for Enable(timer, time.Now().Add(d)).
func (s *Set) EnableAfter(timer ID, d time.Duration) {
	s.Enable(timer, time.Now().Add(d))
}

// Disable clears timer, moving it to disabled from any state.
func (s *Set) Disable(timer ID) {
	s.entries[timer] = entry{state: stateDisabled}
}

// DisableRange disables every timer owned by the given subsystem range.
func (s *Set) DisableRange(r Range) {
	bounds := rangeBounds[r]
	for id := bounds[0]; id <= bounds[1]; id++ {
		s.Disable(id)
	}
}

// IsDisabled reports whether timer is currently disabled.
func (s *Set) IsDisabled(timer ID) bool {
	return s.entries[timer].state == stateDisabled
}

// IsExpired reports whether timer is active with a deadline that has
// passed, or was already folded to expired by ManageExpired. A disabled
// timer is never expired.
func (s *Set) IsExpired(timer ID) bool {
	e := &s.entries[timer]
	switch e.state {
	case stateExpired:
		return true
	case stateActive:
		return !e.deadline.After(time.Now())
	default:
		return false
	}
}

// ManageExpired folds every active-but-passed-deadline timer into the
// expired state. Callers poll IsExpired after this to detect new
// expirations without re-triggering NextExpiration on timers already
// handled; an expired timer stays expired (and IsExpired keeps reporting
// it) until the owning state machine explicitly Disables it on exit.
func (s *Set) ManageExpired() {
	now := time.Now()
	for i := range s.entries {
		e := &s.entries[i]
		if e.state == stateActive && !e.deadline.After(now) {
			e.state = stateExpired
		}
	}
}

// NextExpiration returns the duration until the soonest active timer whose
// deadline is still in the future, and true if one exists. Expired,
// disabled, and active-but-already-past-deadline timers are ignored — the
// latter are ManageExpired/IsExpired's responsibility, not this one's, so
// a timer that fired but hasn't been managed yet can never shadow a later
// timer that's genuinely still pending.
func (s *Set) NextExpiration() (time.Duration, bool) {
	now := time.Now()
	var soonest time.Time
	found := false
	for i := range s.entries {
		e := &s.entries[i]
		if e.state != stateActive || !e.deadline.After(now) {
			continue
		}
		if !found || e.deadline.Before(soonest) {
			soonest = e.deadline
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return soonest.Sub(now), true
}
