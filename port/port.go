// Package port holds the per-port data model shared by the Type-C
// connection manager, policy engine and device policy manager: roles,
// polarity, negotiated contract, discovered identity/SVIDs/modes, and the
// PE flag set. None of the state machines own this data privately; they
// all read and mutate a shared *Port so that, e.g., the DPM can inspect
// src_caps the PE just received without a round trip.
package port

import "github.com/oxplot/usbpd/pdmsg"

// PowerRole mirrors pdmsg.PowerRole but is kept distinct since a port's
// power role outlives any single message and is read far more often than
// it changes.
type PowerRole = pdmsg.PowerRole

// Re-export the two power roles under port-local names for readability at
// call sites that never otherwise touch pdmsg.
const (
	RoleSource = pdmsg.PowerRoleSource
	RoleSink   = pdmsg.PowerRoleSink
)

// DataRole mirrors pdmsg.DataRole.
type DataRole = pdmsg.DataRole

const (
	RoleDFP = pdmsg.DataRoleDFP
	RoleUFP = pdmsg.DataRoleUFP
)

// Polarity is the physical CC pin a port has oriented to, plus whether the
// partner identifies as a Debug and Test System (DTS).
type Polarity uint8

const (
	CC1 Polarity = iota
	CC2
	CC1DTS
	CC2DTS
)

// CCState is the logical attachment classification derived from the CC
// pull-up/pull-down resistance seen on the line.
type CCState uint8

const (
	CCStateNone CCState = iota
	CCStateUFPAttached
	CCStateDFPAttached
	CCStateUFPDebugAcc
	CCStateDFPDebugAcc
	CCStateUFPAudioAcc
	CCStateUnset
)

// Flag is the abridged PE flag set of spec.md §3.4: only the flags whose
// value is observable outside the policy engine's own state-transition
// logic.
type Flag uint32

const (
	FlagTxComplete Flag = 1 << iota
	FlagMsgReceived
	FlagMsgDiscarded
	FlagProtocolError
	FlagExplicitContract
	FlagModalOperation
	FlagPRSwapInProgress
	FlagFastRoleSwapSignaled
	FlagFastRoleSwapPath
	FlagFirstMsg
	FlagVDMRequestTimeout
	FlagInEPR
	FlagSnkWaitCapTimeout
)

// clrOnDisconnectExclusions lists the flags a physical detach must NOT
// clear, per spec.md §3.1. A suspend request and an already-engaged LPM
// transition are board/TC-level decisions that must survive a bus
// detach/reattach blip.
const clrOnDisconnectExclusions = 0 // the PE flags above all clear on detach;
// the two exclusions named in spec.md (suspend request, LPM-engaged) live
// in tc.Flags, not here, so there is nothing in this bitset to preserve.

// DPMRequest is a bitflag DPM sets to ask the policy engine to act;
// spec.md §4.5's "small set of DPM-requests (enqueued bitflags)".
type DPMRequest uint32

const (
	DPMRequestGetSourceCap DPMRequest = 1 << iota
	DPMRequestGetSinkCap
	DPMRequestSendDiscoverIdentity
	DPMRequestSendDiscoverSVIDs
	DPMRequestSendDiscoverModes
	DPMRequestSendEnterMode
	DPMRequestSendExitMode
	DPMRequestSendAttention
	DPMRequestPRSwap
	DPMRequestDRSwap
	DPMRequestVCONNSwap
	DPMRequestSoftResetSend
	DPMRequestHardResetSend
	DPMRequestBISTTXMode
	DPMRequestNewPowerLevel
	DPMRequestSourceCapChange
	DPMRequestSendEnterUSB
	DPMRequestSendDataReset
	DPMRequestEPREnter
	DPMRequestEPRExit
	DPMRequestEPRKeepAlive
	DPMRequestGetStatus
)

// Contract describes the currently negotiated power contract. It is only
// meaningful when Explicit is true.
type Contract struct {
	Explicit bool
	PDOIndex int
	MV       int // negotiated voltage, millivolts
	MA       int // negotiated current, milliamps
}

// Caps holds a received capability message's PDOs. Count == -1 encodes
// "retrieval failed" (a GetSourceCap/GetSinkCap round trip that never
// completed), distinct from Count == 0 ("received, port advertises
// nothing"), per spec.md §3.1.
type Caps struct {
	PDO   [pdmsg.MaxDataObjects]pdmsg.PDO
	Count int
}

// Valid reports whether a capability retrieval actually completed.
func (c Caps) Valid() bool { return c.Count >= 0 }

// Discovery is the mutable per-SOP-type identity/SVID/mode discovery
// record built up over a Discover Identity / Discover SVIDs / Discover
// Modes exchange.
type Discovery struct {
	IdentityReceived bool
	Identity         [pdmsg.MaxDataObjects]uint32
	IdentityCount    int

	SVIDsReceived bool
	SVIDs         []uint16

	// Modes maps a discovered SVID to its raw mode VDOs.
	Modes map[uint16][]uint32
}

func newDiscovery() Discovery {
	return Discovery{Modes: make(map[uint16][]uint32)}
}

// Revision is the negotiated USB-PD spec revision, tracked independently
// per SOP type since a cable (SOP') may negotiate a different revision
// than the port partner (SOP). pdmsg.Revision's 2-bit wire field cannot
// distinguish 3.0 from 3.1, so this is a superset tracked out-of-band from
// whichever side effect (EPR support, Status's extra byte) reveals it.
type Revision uint8

const (
	Rev20 Revision = iota
	Rev30
	Rev31
)

// RevisionFromWire maps a wire-level pdmsg.Revision to the corresponding port
// Revision, defaulting the ambiguous 3.0/3.1 wire code to Rev30.
func RevisionFromWire(r pdmsg.Revision) Revision {
	switch r {
	case pdmsg.Revision20:
		return Rev20
	case pdmsg.Revision30:
		return Rev30
	default:
		return Rev20
	}
}

// Port is the complete per-port state shared across TC, PE, alt-mode and
// DPM. The owning engine goroutine for a port is the only concurrent
// writer; DPM's cross-port goroutine only reads Caps/Contract/Discovery
// under the port's own attention mutex (see the engine package).
type Port struct {
	Index int

	PowerRole PowerRole
	DataRole  DataRole
	Polarity  Polarity
	CCState   CCState

	// PEState and TCState name the current node of each state graph for
	// diagnostics and tests; the state machines themselves hold the actual
	// function pointers privately.
	PEState string
	TCState string

	Revision [pdmsg.SOPDebugDoublePrime + 1]Revision

	Flags      Flag
	DPMRequest DPMRequest

	Contract Contract
	SrcCaps  Caps
	SnkCaps  Caps

	// PartnerStatus holds the most recent Status Data Block reported by
	// the partner in response to a Get_Status request (DPMRequestGetStatus),
	// spec.md §6.2.
	PartnerStatus     pdmsg.StatusDataBlock
	HavePartnerStatus bool

	Discovery [pdmsg.SOPDebugDoublePrime + 1]Discovery

	nextTxID [pdmsg.SOPDebugDoublePrime + 1]uint8
	lastRxID [pdmsg.SOPDebugDoublePrime + 1]uint8
}

// New returns a fresh Port for the given index with every field at its
// power-on default.
func New(index int) *Port {
	p := &Port{Index: index}
	p.resetForDetach()
	return p
}

// SetFlag sets f in the port's flag set.
func (p *Port) SetFlag(f Flag) { p.Flags |= f }

// ClearFlag clears f from the port's flag set.
func (p *Port) ClearFlag(f Flag) { p.Flags &^= f }

// HasFlag reports whether f is set.
func (p *Port) HasFlag(f Flag) bool { return p.Flags&f != 0 }

// RequestFromDPM sets r in the port's pending DPM request set; the policy
// engine consumes and clears individual bits as it services them.
func (p *Port) RequestFromDPM(r DPMRequest) { p.DPMRequest |= r }

// ConsumeRequest reports whether r is pending and, if so, clears it.
func (p *Port) ConsumeRequest(r DPMRequest) bool {
	if p.DPMRequest&r == 0 {
		return false
	}
	p.DPMRequest &^= r
	return true
}

// NextTxID returns the next outbound message ID for sop and advances the
// 3-bit rolling counter.
func (p *Port) NextTxID(sop pdmsg.SOPType) uint8 {
	id := p.nextTxID[sop]
	p.nextTxID[sop] = (id + 1) & 0x7
	return id
}

// LastRxID returns the last message ID accepted on sop, for GoodCRC
// duplicate-message detection.
func (p *Port) LastRxID(sop pdmsg.SOPType) uint8 { return p.lastRxID[sop] }

// SetLastRxID records the last accepted inbound message ID on sop.
func (p *Port) SetLastRxID(sop pdmsg.SOPType, id uint8) { p.lastRxID[sop] = id }

// Detach resets the port to its post-detach state per spec.md §3.1: the
// contract, discovery and flags are invalidated, but the exclusions named
// in CLR_ON_DISCONNECT_EXCLUSIONS (tracked by package tc, not here) are
// left to the caller to re-apply if it is preserving them elsewhere.
func (p *Port) Detach() {
	p.resetForDetach()
}

func (p *Port) resetForDetach() {
	p.Flags = 0
	p.DPMRequest = 0
	p.Contract = Contract{}
	p.SrcCaps = Caps{Count: -1}
	p.SnkCaps = Caps{Count: -1}
	for i := range p.Discovery {
		p.Discovery[i] = newDiscovery()
	}
	for i := range p.nextTxID {
		p.nextTxID[i] = 0
		p.lastRxID[i] = 8 // impossible 3-bit ID: "no message received yet"
	}
}
