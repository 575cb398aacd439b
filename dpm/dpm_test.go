package dpm

import (
	"testing"
	"time"

	"github.com/oxplot/usbpd/collab"
	"github.com/oxplot/usbpd/collab/mock"
	"github.com/oxplot/usbpd/pdmsg"
	"github.com/oxplot/usbpd/port"
)

func TestAllocatorNeverExceedsBudget(t *testing.T) {
	a := NewAllocator(3)
	for p := 0; p < 5; p++ {
		a.RequestSinkMaxPDO(p)
	}
	if n := a.ClaimedCount(); n > 3 {
		t.Fatalf("ClaimedCount() = %d, want <= 3", n)
	}
}

func TestAllocatorPrioritizesSinkMaxPDOOverNonPDSink(t *testing.T) {
	a := NewAllocator(1)
	a.RequestNonPDSink(0)
	if !a.Claimed(0) {
		t.Fatal("expected port 0 to be granted when budget is free")
	}
	a.RequestSinkMaxPDO(1)
	if a.Claimed(0) {
		t.Fatal("expected port 0 to be downgraded in favor of a PD-sink requester")
	}
	if !a.Claimed(1) {
		t.Fatal("expected port 1 (PD-sink) to hold the claim")
	}
}

func TestAllocatorFRSBeatsNonPDSinkButNotSinkMaxPDO(t *testing.T) {
	a := NewAllocator(1)
	a.RequestNonPDSink(0)
	a.RequestSourceFRS(1)
	if a.Claimed(0) {
		t.Fatal("expected non-PD sink to be downgraded for FRS requester")
	}
	if !a.Claimed(1) {
		t.Fatal("expected FRS requester to hold the claim")
	}
	a.RequestSinkMaxPDO(2)
	if a.Claimed(1) {
		t.Fatal("expected FRS holder to be downgraded for a sink-max-PDO requester")
	}
	if !a.Claimed(2) {
		t.Fatal("expected sink-max-PDO requester to hold the claim")
	}
}

func TestAllocatorDebounceFiresOnDownAndUnresolvedDemand(t *testing.T) {
	a := NewAllocator(1)
	var fired []requestClass
	a.SetDebounce(func(c requestClass) { fired = append(fired, c) })

	a.RequestNonPDSink(0)
	a.RequestSinkMaxPDO(1) // the PD-sink request downgrades port 0; port 1 waits for the debounce
	if len(fired) == 0 {
		t.Fatal("expected a debounce callback after downgrading a lower-priority port")
	}
}

func TestAllocatorClearingDropsClaim(t *testing.T) {
	a := NewAllocator(2)
	a.RequestSinkMaxPDO(0)
	if !a.Claimed(0) {
		t.Fatal("expected claim")
	}
	a.ClearSinkMaxPDO(0)
	if a.Claimed(0) {
		t.Fatal("expected claim to be dropped after ClearSinkMaxPDO")
	}
}

func TestAllocatorBISTSharedModeGrantsEveryRequester(t *testing.T) {
	a := NewAllocator(1)
	a.RequestNonPDSink(0)
	a.RequestNonPDSink(1)
	a.SetBISTSharedMode(true)
	if !a.Claimed(0) || !a.Claimed(1) {
		t.Fatal("expected every requesting port to be granted under BIST shared mode")
	}
	a.SetBISTSharedMode(false)
	if a.ClaimedCount() > 1 {
		t.Fatalf("ClaimedCount() = %d after leaving BIST shared mode, want <= 1", a.ClaimedCount())
	}
}

func TestAllocatorReportRDOClearsLowCurrentRequest(t *testing.T) {
	a := NewAllocator(1)
	a.RequestSinkMaxPDO(0)
	if !a.Claimed(0) {
		t.Fatal("expected claim")
	}
	rdo := pdmsg.EmptyRequestDO
	rdo.SetFixedOperatingCurrent(900)
	a.ReportRDO(0, rdo)
	if a.Claimed(0) {
		t.Fatal("expected low-current RDO to clear the sink-max-PDO request")
	}
}

func TestAllocatorSourcePDOsReflectsClaim(t *testing.T) {
	a := NewAllocator(1)
	pdos := a.SourcePDOs(0)
	if len(pdos) != 1 {
		t.Fatalf("SourcePDOs() len = %d, want 1", len(pdos))
	}
	unclaimed := pdmsg.FixedSupplyPDO(pdos[0])
	if unclaimed.MaxCurrent() != 1500 {
		t.Fatalf("unclaimed MaxCurrent() = %d, want 1500", unclaimed.MaxCurrent())
	}
	a.RequestSinkMaxPDO(0)
	claimed := pdmsg.FixedSupplyPDO(a.SourcePDOs(0)[0])
	if claimed.MaxCurrent() != 3000 {
		t.Fatalf("claimed MaxCurrent() = %d, want 3000", claimed.MaxCurrent())
	}
}

func TestNextModeEntryRequiresDFPAndSVIDDiscovery(t *testing.T) {
	p := port.New(0)
	board := mock.NewBoard()
	p.DataRole = port.RoleUFP
	if d := NextModeEntry(p, board); d != DecisionNone {
		t.Fatalf("NextModeEntry() on UFP = %v, want DecisionNone", d)
	}
	p.DataRole = port.RoleDFP
	if d := NextModeEntry(p, board); d != DecisionNone {
		t.Fatalf("NextModeEntry() before SVID discovery = %v, want DecisionNone", d)
	}
}

func TestNextModeEntryPrefersDisplayPortWithoutIntelSVID(t *testing.T) {
	p := port.New(0)
	board := mock.NewBoard()
	p.DataRole = port.RoleDFP
	p.Discovery[pdmsg.SOP].SVIDsReceived = true
	p.Discovery[pdmsg.SOP].SVIDs = []uint16{0xff01}
	if d := NextModeEntry(p, board); d != DecisionEnterDP {
		t.Fatalf("NextModeEntry() = %v, want DecisionEnterDP", d)
	}
}

func TestNextModeEntryPrefersTBTOverDPWhenIntelSVIDPresent(t *testing.T) {
	p := port.New(0)
	board := mock.NewBoard()
	p.DataRole = port.RoleDFP
	p.Discovery[pdmsg.SOP].SVIDsReceived = true
	p.Discovery[pdmsg.SOP].SVIDs = []uint16{0xff01, 0x8087}
	if d := NextModeEntry(p, board); d != DecisionEnterTBT {
		t.Fatalf("NextModeEntry() = %v, want DecisionEnterTBT", d)
	}
}

func TestButtonHandlerShortPressReportsOnRelease(t *testing.T) {
	b := mock.NewBoard()
	h := NewButtonHandler(b)
	start := time.Unix(0, 0)
	h.now = func() time.Time { return start }
	if err := h.HandleAlert(pdmsg.AlertDataObject(pdmsg.ADOExtendedAlertEvent | uint32(pdmsg.ExtendedAlertPowerButtonPress))); err != nil {
		t.Fatal(err)
	}
	h.now = func() time.Time { return start.Add(200 * time.Millisecond) }
	if err := h.HandleAlert(pdmsg.AlertDataObject(pdmsg.ADOExtendedAlertEvent | uint32(pdmsg.ExtendedAlertPowerButtonRelease))); err != nil {
		t.Fatal(err)
	}
	presses := b.PowerButtonPresses()
	if len(presses) != 1 || presses[0] != false {
		t.Fatalf("PowerButtonPresses() = %v, want [false]", presses)
	}
}

func TestButtonHandlerLongHoldReportsLongOnRelease(t *testing.T) {
	b := mock.NewBoard()
	h := NewButtonHandler(b)
	start := time.Unix(0, 0)
	h.now = func() time.Time { return start }
	h.HandleAlert(pdmsg.AlertDataObject(pdmsg.ADOExtendedAlertEvent | uint32(pdmsg.ExtendedAlertPowerButtonPress)))
	h.now = func() time.Time { return start.Add(6 * time.Second) }
	h.HandleAlert(pdmsg.AlertDataObject(pdmsg.ADOExtendedAlertEvent | uint32(pdmsg.ExtendedAlertPowerButtonRelease)))
	presses := b.PowerButtonPresses()
	if len(presses) != 1 || presses[0] != true {
		t.Fatalf("PowerButtonPresses() = %v, want [true]", presses)
	}
}

func TestButtonHandlerPollReportsLongPressWithoutRelease(t *testing.T) {
	b := mock.NewBoard()
	h := NewButtonHandler(b)
	start := time.Unix(0, 0)
	h.now = func() time.Time { return start }
	h.HandleAlert(pdmsg.AlertDataObject(pdmsg.ADOExtendedAlertEvent | uint32(pdmsg.ExtendedAlertPowerButtonPress)))
	h.now = func() time.Time { return start.Add(6 * time.Second) }
	if err := h.Poll(); err != nil {
		t.Fatal(err)
	}
	presses := b.PowerButtonPresses()
	if len(presses) != 1 || presses[0] != true {
		t.Fatalf("PowerButtonPresses() after Poll = %v, want [true]", presses)
	}
	// A subsequent Release for the same press must not double-report.
	if err := h.HandleAlert(pdmsg.AlertDataObject(pdmsg.ADOExtendedAlertEvent | uint32(pdmsg.ExtendedAlertPowerButtonRelease))); err != nil {
		t.Fatal(err)
	}
	if len(b.PowerButtonPresses()) != 1 {
		t.Fatalf("PowerButtonPresses() = %v, want still just 1 entry after Release", b.PowerButtonPresses())
	}
}

func TestButtonHandlerIgnoresReleaseWithoutPress(t *testing.T) {
	b := mock.NewBoard()
	h := NewButtonHandler(b)
	if err := h.HandleAlert(pdmsg.AlertDataObject(pdmsg.ADOExtendedAlertEvent | uint32(pdmsg.ExtendedAlertPowerButtonRelease))); err != nil {
		t.Fatal(err)
	}
	if len(b.PowerButtonPresses()) != 0 {
		t.Fatalf("PowerButtonPresses() = %v, want none", b.PowerButtonPresses())
	}
}

func TestWakeIfNeededPressesShortWhenNotInS0(t *testing.T) {
	b := mock.NewBoard()
	b.SetChipsetState(collab.ChipsetState(pdmsg.ChipsetPowerStateS3))
	if err := WakeIfNeeded(b); err != nil {
		t.Fatal(err)
	}
	presses := b.PowerButtonPresses()
	if len(presses) != 1 || presses[0] != false {
		t.Fatalf("PowerButtonPresses() = %v, want [false]", presses)
	}
}

func TestWakeIfNeededNoopInS0(t *testing.T) {
	b := mock.NewBoard()
	if err := WakeIfNeeded(b); err != nil {
		t.Fatal(err)
	}
	if len(b.PowerButtonPresses()) != 0 {
		t.Fatalf("PowerButtonPresses() = %v, want none", b.PowerButtonPresses())
	}
}
