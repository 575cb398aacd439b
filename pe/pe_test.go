package pe_test

import (
	"testing"
	"time"

	"github.com/oxplot/usbpd/collab"
	"github.com/oxplot/usbpd/collab/mock"
	"github.com/oxplot/usbpd/pdmsg"
	"github.com/oxplot/usbpd/pdtimer"
	"github.com/oxplot/usbpd/pe"
	"github.com/oxplot/usbpd/port"
)

// fixedOffer always accepts the sole 5V/0.9A default PDO source-side
// advertises, picking object position 1 unconditionally.
type fixedOffer struct{}

func (fixedOffer) EvaluateCapabilities(pdos []pdmsg.PDO) pdmsg.RequestDO {
	if len(pdos) == 0 {
		return pdmsg.EmptyRequestDO
	}
	var rdo pdmsg.RequestDO
	rdo.SetSelectedObjectPosition(1)
	rdo.SetFixedOperatingCurrent(900)
	rdo.SetFixedMaxOperatingCurrent(900)
	return rdo
}

func newPair(t *testing.T) (srcPE *pe.Engine, snkPE *pe.Engine) {
	t.Helper()
	srcPort := port.New(0)
	srcPort.PowerRole = port.RoleSource
	snkPort := port.New(1)
	snkPort.PowerRole = port.RoleSink

	srcPE = pe.New(srcPort, nil, pdtimer.New(), nil)
	snkPE = pe.New(snkPort, nil, pdtimer.New(), nil)

	srcPRL := mock.NewPRL(srcPE)
	snkPRL := mock.NewPRL(snkPE)
	mock.ConnectPRL(srcPRL, snkPRL)
	srcPE.PRL = srcPRL
	snkPE.PRL = snkPRL

	snkPE.SetCapabilityEvaluator(fixedOffer{})
	return srcPE, snkPE
}

// runUntilReady ticks both engines in lockstep until each reaches its
// role's Ready state (or the iteration budget is exhausted), since the
// mock PRL resolves every send synchronously and has no real network
// latency to wait out.
func runUntilReady(t *testing.T, srcPE, snkPE *pe.Engine, srcPort, snkPort *port.Port) {
	t.Helper()
	for i := 0; i < 20; i++ {
		// The mock PRL resolves sends synchronously but stateSrcTransitionSupply
		// and stateSnkTransitionSink wait out real supply-transition timers, so
		// give those deadlines a chance to pass each round.
		time.Sleep(40 * time.Millisecond)
		if err := srcPE.Tick(); err != nil {
			t.Fatalf("src Tick() error = %v", err)
		}
		if err := snkPE.Tick(); err != nil {
			t.Fatalf("snk Tick() error = %v", err)
		}
		if srcPort.PEState == "src-ready" && snkPort.PEState == "snk-ready" {
			return
		}
	}
	t.Fatalf("negotiation did not converge: src=%q snk=%q", srcPort.PEState, snkPort.PEState)
}

func TestSinkSourceNegotiationReachesExplicitContract(t *testing.T) {
	srcPE, snkPE := newPair(t)
	srcPort := srcPE.Port
	snkPort := snkPE.Port

	if err := srcPE.Start(); err != nil {
		t.Fatalf("src Start() error = %v", err)
	}
	if err := snkPE.Start(); err != nil {
		t.Fatalf("snk Start() error = %v", err)
	}

	runUntilReady(t, srcPE, snkPE, srcPort, snkPort)

	if !srcPort.HasFlag(port.FlagExplicitContract) {
		t.Fatal("source port missing explicit contract flag")
	}
	if !snkPort.HasFlag(port.FlagExplicitContract) {
		t.Fatal("sink port missing explicit contract flag")
	}
	if snkPort.Contract.MA != 900 {
		t.Fatalf("sink Contract.MA = %d, want 900", snkPort.Contract.MA)
	}
	if snkPort.SrcCaps.Count != 1 {
		t.Fatalf("sink SrcCaps.Count = %d, want 1", snkPort.SrcCaps.Count)
	}
}

// failingPRL reports every send as a protocol error, exercising
// senderResponse's Discarded path without needing a live peer.
type failingPRL struct {
	events collab.PRLEvents
}

func (p *failingPRL) SendCtrlMessage(sop pdmsg.SOPType, typ pdmsg.Type) error {
	p.events.Notify(sop, collab.PRLEventError)
	return nil
}
func (p *failingPRL) SendDataMessage(sop pdmsg.SOPType, typ pdmsg.Type, data []uint32) error {
	p.events.Notify(sop, collab.PRLEventError)
	return nil
}
func (p *failingPRL) SendExtDataMessage(sop pdmsg.SOPType, typ pdmsg.Type, payload []byte) error {
	p.events.Notify(sop, collab.PRLEventError)
	return nil
}
func (p *failingPRL) Rx(sop pdmsg.SOPType) (pdmsg.Message, bool) { return pdmsg.Message{}, false }
func (p *failingPRL) ResetSoft(sop pdmsg.SOPType) error          { return nil }
func (p *failingPRL) ExecuteHardReset() error                    { return nil }
func (p *failingPRL) HardResetComplete() bool                    { return true }
func (p *failingPRL) Rev(sop pdmsg.SOPType) pdmsg.Revision       { return 0 }
func (p *failingPRL) SetRev(sop pdmsg.SOPType, rev pdmsg.Revision) {}
func (p *failingPRL) IsRunning() bool                            { return true }
func (p *failingPRL) IsBusy() bool                                { return false }

// TestSourceCapabilitiesRetryExhaustsIntoHardReset exercises the
// nCapsCount retransmit cap from spec.md §4.3.2: a PRL that reports every
// send as discarded eventually drives the engine to Hard Reset rather than
// retrying forever.
func TestSourceCapabilitiesRetryExhaustsIntoHardReset(t *testing.T) {
	srcPort := port.New(0)
	srcPort.PowerRole = port.RoleSource
	srcPE := pe.New(srcPort, nil, pdtimer.New(), nil)
	fp := &failingPRL{events: srcPE}
	srcPE.PRL = fp

	if err := srcPE.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := srcPE.Tick(); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if srcPort.PEState != "hard-reset" {
		t.Fatalf("PEState = %q, want hard-reset after exhausting retries", srcPort.PEState)
	}
	if srcPort.HasFlag(port.FlagExplicitContract) {
		t.Fatal("explicit contract should not be set after a discarded send")
	}
}

func TestSignalHardResetDrivesHardResetState(t *testing.T) {
	snkPort := port.New(0)
	snkPort.PowerRole = port.RoleSink
	snkPE := pe.New(snkPort, nil, pdtimer.New(), nil)
	fp := &failingPRL{events: snkPE}
	snkPE.PRL = fp

	if err := snkPE.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	snkPE.SignalHardReset()
	if err := snkPE.Tick(); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if snkPort.PEState != "hard-reset" && snkPort.PEState != "snk-discovery" && snkPort.PEState != "snk-startup" {
		t.Fatalf("PEState = %q after SignalHardReset, want hard-reset or an early restart state", snkPort.PEState)
	}
}

// TestNegotiationDrivesBoardAndChargeManager exercises Finding 1: a
// successful negotiation must actually transition VBUS and set the
// charge manager ceiling through the installed collab.Board, not just
// update in-memory Contract bookkeeping.
func TestNegotiationDrivesBoardAndChargeManager(t *testing.T) {
	srcPE, snkPE := newPair(t)
	srcPort := srcPE.Port
	snkPort := snkPE.Port

	board := mock.NewBoard()
	srcPE.SetBoard(board)
	snkPE.SetBoard(board)

	if err := srcPE.Start(); err != nil {
		t.Fatalf("src Start() error = %v", err)
	}
	if err := snkPE.Start(); err != nil {
		t.Fatalf("snk Start() error = %v", err)
	}

	runUntilReady(t, srcPE, snkPE, srcPort, snkPort)

	if ok, _ := board.CheckVbusLevel(srcPort.Index, 5000); !ok {
		t.Fatalf("source port %d: VBUS was never transitioned to 5000mV", srcPort.Index)
	}
	cm, ok := board.ChargeManager().(*mock.ChargeManager)
	if !ok {
		t.Fatal("board.ChargeManager() did not return the installed mock ChargeManager")
	}
	if got := cm.CeilingMA(snkPort.Index); got != 900 {
		t.Fatalf("sink port %d: ChargeManager ceiling = %d, want 900 (the negotiated current)", snkPort.Index, got)
	}
}

// TestHardResetTransitionToDefaultSinkSequencesBoard exercises Finding 2:
// a sink's TransitionToDefault must drive VBUS-off/VBUS-on sequencing
// through the Board (auto-discharge-disconnect enabled while VBUS is
// away, the charge manager ceiling cleared, auto-discharge-disconnect
// re-disabled once VBUS returns) rather than just resetting local state
// and restarting.
func TestHardResetTransitionToDefaultSinkSequencesBoard(t *testing.T) {
	snkPort := port.New(0)
	snkPort.PowerRole = port.RoleSink
	snkPE := pe.New(snkPort, nil, pdtimer.New(), nil)
	fp := &failingPRL{events: snkPE}
	snkPE.PRL = fp

	board := mock.NewBoard()
	cm, _ := board.ChargeManager().(*mock.ChargeManager)
	cm.SetCeilingMA(0, 1500) // simulate a ceiling left over from a prior contract
	snkPE.SetBoard(board)

	if err := snkPE.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	snkPE.SignalHardReset()
	if err := snkPE.Tick(); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if snkPort.PEState != "hard-reset" {
		t.Fatalf("PEState = %q, want hard-reset", snkPort.PEState)
	}
	if evs := board.Events(0); len(evs) == 0 || evs[0] != collab.StatusEventHardReset {
		t.Fatalf("board.Events(0) = %v, want a leading StatusEventHardReset", evs)
	}

	time.Sleep(40 * time.Millisecond) // past tPSHardReset
	if err := snkPE.Tick(); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if snkPort.PEState != "transition-to-default-snk-vbus-on" {
		t.Fatalf("PEState = %q, want transition-to-default-snk-vbus-on (VBUS never dropped below vSafe0V so the off-wait should resolve immediately)", snkPort.PEState)
	}
	if !board.AutoDischargeDisconnect(0) {
		t.Fatal("AutoDischargeDisconnect(0) = false while waiting for VBUS to return")
	}

	// Simulate the source bringing VBUS back up.
	if err := board.TransitionVoltage(0, 5000); err != nil {
		t.Fatalf("TransitionVoltage() error = %v", err)
	}
	if err := snkPE.Tick(); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if snkPort.PEState == "transition-to-default-snk-vbus-on" {
		t.Fatalf("PEState still transition-to-default-snk-vbus-on after VBUS returned")
	}
	if board.AutoDischargeDisconnect(0) {
		t.Fatal("AutoDischargeDisconnect(0) = true after VBUS confirmed back")
	}
	if got := cm.CeilingMA(0); got != 0 {
		t.Fatalf("ChargeManager ceiling = %d after TransitionToDefault, want 0 (no active contract)", got)
	}
}

// allocatorSpy records the calls pe makes into an AllocatorHook without
// running the real allocation arbitration, isolating Finding 4's wiring
// from dpm.Allocator's own (separately tested) balancing logic.
type allocatorSpy struct {
	reportedPort int
	reportedRDO  pdmsg.RequestDO
	sinkMaxPDO   *bool // nil until Request/ClearSinkMaxPDO is called; true/false records which
}

func (s *allocatorSpy) RequestSinkMaxPDO(port int) {
	v := true
	s.sinkMaxPDO = &v
}

func (s *allocatorSpy) ClearSinkMaxPDO(port int) {
	v := false
	s.sinkMaxPDO = &v
}

func (s *allocatorSpy) ReportRDO(port int, rdo pdmsg.RequestDO) {
	s.reportedPort = port
	s.reportedRDO = rdo
}

// TestSourceNegotiationWiresAllocator exercises Finding 4: accepting a
// sink's Request must report the RDO to the shared 3A allocator, not
// leave it reachable only from dpm's own unit tests.
func TestSourceNegotiationWiresAllocator(t *testing.T) {
	srcPE, snkPE := newPair(t)
	srcPort := srcPE.Port
	snkPort := snkPE.Port

	spy := &allocatorSpy{}
	srcPE.SetAllocatorHook(spy)

	if err := srcPE.Start(); err != nil {
		t.Fatalf("src Start() error = %v", err)
	}
	if err := snkPE.Start(); err != nil {
		t.Fatalf("snk Start() error = %v", err)
	}

	runUntilReady(t, srcPE, snkPE, srcPort, snkPort)

	if spy.reportedRDO == pdmsg.EmptyRequestDO {
		t.Fatal("ReportRDO was never called on the allocator hook")
	}
	if got := spy.reportedRDO.FixedOperatingCurrent(); got != 900 {
		t.Fatalf("ReportRDO rdo.FixedOperatingCurrent() = %d, want 900", got)
	}
	if spy.reportedPort != srcPort.Index {
		t.Fatalf("ReportRDO port = %d, want the source port's own index %d", spy.reportedPort, srcPort.Index)
	}
	if spy.sinkMaxPDO == nil {
		t.Fatal("neither RequestSinkMaxPDO nor ClearSinkMaxPDO was called")
	}
	if *spy.sinkMaxPDO {
		t.Fatal("sinkMaxPDO = true for a 900mA request, want ClearSinkMaxPDO (below the 3A claim threshold)")
	}
}
