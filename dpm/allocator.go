package dpm

import (
	"math/bits"
	"sync"

	"github.com/oxplot/usbpd/pdmsg"
)

// requestClass names a category of 3 A requester, priority-ordered exactly
// as balance_source_ports in usb_pd_dpm.c services them: PD-sink first,
// then FRS, then non-PD sink.
type requestClass int

const (
	classSinkMaxPDO requestClass = iota
	classSourceFRS
	classNonPDSink
	numRequestClasses
)

// Allocator enforces spec.md §4.5.1's shared 3 A budget across ports: the
// claimed-port bitmask and three requester bitmasks (one per requestClass),
// all behind a single mutex — max_current_claimed_lock in the original.
type Allocator struct {
	mu sync.Mutex

	budget  int // CONFIG_USB_PD_3A_PORTS
	claimed uint32
	want    [numRequestClasses]uint32

	bistSharedMode bool

	// debounce, when non-nil, is invoked by Balance whenever it downgrades
	// a port and must re-run after a delay; package engine wires this to
	// its own timer/goroutine scheduling. A nil debounce (the zero value)
	// means Balance always resolves in one pass, as in tests.
	debounce func(class requestClass)
}

// NewAllocator returns an allocator granting 3 A to at most budget ports
// simultaneously.
func NewAllocator(budget int) *Allocator {
	return &Allocator{budget: budget}
}

// SetDebounce installs the callback Balance uses to schedule a retry after
// downgrading a lower-priority port, per spec.md §4.5.1's PD_T_SINK_ADJ /
// 20ms debounce windows (the concrete durations are package engine's
// responsibility to apply, not the allocator's).
func (a *Allocator) SetDebounce(f func(class requestClass)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.debounce = f
}

// RequestSinkMaxPDO marks port as wanting 3 A because it negotiated a
// sink-side PDO requiring it, and rebalances.
func (a *Allocator) RequestSinkMaxPDO(port int) { a.setWant(classSinkMaxPDO, port, true) }

// ClearSinkMaxPDO drops port's sink-max-PDO request — e.g. spec.md §4.5.1's
// "RDO op-current <= 150mA" compliance-quirk downgrade — and rebalances.
func (a *Allocator) ClearSinkMaxPDO(port int) { a.setWant(classSinkMaxPDO, port, false) }

// RequestSourceFRS marks port as wanting 3 A for a Fast Role Swap sink
// detection, and rebalances.
func (a *Allocator) RequestSourceFRS(port int) { a.setWant(classSourceFRS, port, true) }

// ClearSourceFRS drops port's FRS 3 A request and rebalances.
func (a *Allocator) ClearSourceFRS(port int) { a.setWant(classSourceFRS, port, false) }

// RequestNonPDSink marks port as wanting 3 A as a non-PD (BC1.2 or
// Type-C-only) sink, and rebalances.
func (a *Allocator) RequestNonPDSink(port int) { a.setWant(classNonPDSink, port, true) }

// ClearNonPDSink drops port's non-PD 3 A request and rebalances.
func (a *Allocator) ClearNonPDSink(port int) { a.setWant(classNonPDSink, port, false) }

func (a *Allocator) setWant(class requestClass, port int, v bool) {
	a.mu.Lock()
	if v {
		a.want[class] |= 1 << uint(port)
	} else {
		a.want[class] &^= 1 << uint(port)
	}
	a.mu.Unlock()
	a.Balance()
}

// SetBISTSharedMode overrides all arbitration: true grants 3 A to every
// port that is in any requester set, regardless of the budget ("BIST Shared
// Mode"); a port with no pending request is not granted. false drops every
// claim made under the override and restores normal balancing within the
// budget (the exit side of BIST Shared Mode — "error recovery bankruptcy"
// for every port — is package engine's responsibility, since it requires
// driving each port's TC state machine, not just the budget).
func (a *Allocator) SetBISTSharedMode(v bool) {
	a.mu.Lock()
	if a.bistSharedMode && !v {
		a.claimed = 0
	}
	a.bistSharedMode = v
	a.mu.Unlock()
	a.Balance()
}

// Claimed reports whether port currently holds a 3 A grant.
func (a *Allocator) Claimed(port int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.claimed&(1<<uint(port)) != 0
}

// ClaimedCount returns popcount(max_current_claimed), exported for the
// invariant check in Balance's tests.
func (a *Allocator) ClaimedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return bits.OnesCount32(a.claimed)
}

// Balance re-runs the shared-current arbitration; safe to call redundantly
// (e.g. from a debounce timer firing after a prior downgrade).
func (a *Allocator) Balance() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balanceLocked()
}

func (a *Allocator) balanceLocked() {
	// Step 1: drop any claim whose port is no longer in any requester set.
	anyWant := a.want[classSinkMaxPDO] | a.want[classSourceFRS] | a.want[classNonPDSink]
	a.claimed &= anyWant

	if a.bistSharedMode {
		a.claimed = anyWant // every requesting port gets 3A under BIST override
		return
	}

	// Priority 1: PD-sink requesters.
	for p := lowestNewPort(a.want[classSinkMaxPDO], a.claimed); p >= 0; p = lowestNewPort(a.want[classSinkMaxPDO], a.claimed) {
		if bits.OnesCount32(a.claimed) < a.budget {
			a.claimed |= 1 << uint(p)
			continue
		}
		if !a.downgradeOneOf(classNonPDSink) && !a.downgradeOneOf(classSourceFRS) {
			break // budget full of PD-sink ports already; nothing lower to evict
		}
		if a.scheduleDebounce(classSinkMaxPDO) {
			return
		}
	}

	// Priority 2: FRS requesters.
	for p := lowestNewPort(a.want[classSourceFRS], a.claimed); p >= 0; p = lowestNewPort(a.want[classSourceFRS], a.claimed) {
		if bits.OnesCount32(a.claimed) < a.budget {
			a.claimed |= 1 << uint(p)
			continue
		}
		if !a.downgradeOneOf(classNonPDSink) {
			break
		}
		if a.scheduleDebounce(classSourceFRS) {
			return
		}
	}

	// Priority 3: non-PD requesters.
	for p := lowestNewPort(a.want[classNonPDSink], a.claimed); p >= 0; p = lowestNewPort(a.want[classNonPDSink], a.claimed) {
		if bits.OnesCount32(a.claimed) >= a.budget {
			break
		}
		a.claimed |= 1 << uint(p)
	}
}

// downgradeOneOf evicts the lowest-indexed claimed port that is a member of
// class, reporting whether one was found.
func (a *Allocator) downgradeOneOf(class requestClass) bool {
	candidates := a.want[class] & a.claimed
	if candidates == 0 {
		return false
	}
	p := bits.TrailingZeros32(candidates)
	a.claimed &^= 1 << uint(p)
	return true
}

// scheduleDebounce hands class to the debounce callback, reporting whether
// one is installed; without one Balance keeps granting in the same pass.
func (a *Allocator) scheduleDebounce(class requestClass) bool {
	if a.debounce == nil {
		return false
	}
	a.debounce(class)
	return true
}

// lowestNewPort returns the lowest port index set in want but not already
// in claimed, or -1 if none.
func lowestNewPort(want, claimed uint32) int {
	n := want &^ claimed
	if n == 0 {
		return -1
	}
	return bits.TrailingZeros32(n)
}

// ReportRDO feeds balance_source_ports's compliance quirk: an RDO whose
// operating current is <= 150mA in 10mA units (i.e. <= 1.5A) means the
// sink doesn't actually need the 3A it would otherwise have claimed.
func (a *Allocator) ReportRDO(port int, rdo pdmsg.RequestDO) {
	if rdo.FixedOperatingCurrent() <= 1500 {
		a.ClearSinkMaxPDO(port)
	}
}

// SourcePDOs returns the PDO set port should advertise as a source: 3 A if
// it currently holds a claim, else a conservative 5V/1.5A default. This is
// the pe.SourceCapProvider hook the policy engine calls from
// stateSrcSendCapabilities.
func (a *Allocator) SourcePDOs(port int) []pdmsg.PDO {
	pdo := pdmsg.NewFixedSupplyPDO()
	pdo.SetVoltage(5000)
	if a.Claimed(port) {
		pdo.SetMaxCurrent(3000)
	} else {
		pdo.SetMaxCurrent(1500)
	}
	return []pdmsg.PDO{pdmsg.PDO(pdo)}
}
