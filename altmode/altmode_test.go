package altmode_test

import (
	"testing"

	"github.com/oxplot/usbpd/altmode"
	"github.com/oxplot/usbpd/pdmsg"
	"github.com/oxplot/usbpd/port"
)

func TestDPModeEntersOnDiscoveredSVIDAndMode(t *testing.T) {
	p := port.New(0)
	p.Discovery[pdmsg.SOP].SVIDsReceived = true
	p.Discovery[pdmsg.SOP].SVIDs = []uint16{altmode.SVIDDisplayPort}
	p.Discovery[pdmsg.SOP].Modes[altmode.SVIDDisplayPort] = []uint32{0x1}

	m := altmode.NewDPMode()
	status, sop, vdm, ok := m.SetupNextVDM(p)
	if !ok || status != altmode.StatusSuccess || sop != pdmsg.SOP {
		t.Fatalf("SetupNextVDM = (%v, %v, %v, %v)", status, sop, vdm, ok)
	}
	if pdmsg.VDMHeader(vdm[0]).Command() != pdmsg.CommandEnterMode {
		t.Fatalf("expected Enter Mode command, got %v", pdmsg.VDMHeader(vdm[0]).Command())
	}

	m.VDMAcked(p, pdmsg.SOP, []uint32{vdm[0]})
	if !p.HasFlag(port.FlagModalOperation) {
		t.Fatal("expected FlagModalOperation set after Enter Mode ACK")
	}
	if m.IsActive(p) {
		t.Fatal("should not be active until Status/Configure complete")
	}

	status, _, vdm, ok = m.SetupNextVDM(p)
	if !ok || pdmsg.VDMHeader(vdm[0]).Command() != pdmsg.CommandDPStatusUpdate {
		t.Fatalf("expected DP_Status_Update, got status=%v vdm=%v", status, vdm)
	}
	m.VDMAcked(p, pdmsg.SOP, []uint32{vdm[0], 0b0100})

	_, _, vdm, ok = m.SetupNextVDM(p)
	if !ok || pdmsg.VDMHeader(vdm[0]).Command() != pdmsg.CommandDPConfigure {
		t.Fatalf("expected DP_Configure, got %v", vdm)
	}
	m.VDMAcked(p, pdmsg.SOP, []uint32{vdm[0]})

	if !m.IsActive(p) {
		t.Fatal("expected DP mode active after Configure ACK")
	}
}

func TestDPModeUnsupportedWithoutDiscoveredSVID(t *testing.T) {
	p := port.New(0)
	m := altmode.NewDPMode()
	status, _, _, ok := m.SetupNextVDM(p)
	if ok || status != altmode.StatusUnsupported {
		t.Fatalf("status = %v, ok = %v, want Unsupported/false", status, ok)
	}
}

func TestDPModeNakExitsModalOperation(t *testing.T) {
	p := port.New(0)
	p.SetFlag(port.FlagModalOperation)
	p.Discovery[pdmsg.SOP].SVIDsReceived = true
	p.Discovery[pdmsg.SOP].SVIDs = []uint16{altmode.SVIDDisplayPort}
	p.Discovery[pdmsg.SOP].Modes[altmode.SVIDDisplayPort] = []uint32{0x1}

	m := altmode.NewDPMode()
	m.SetupNextVDM(p)
	m.VDMNaked(p, pdmsg.SOP, pdmsg.CommandEnterMode)
	if p.HasFlag(port.FlagModalOperation) {
		t.Fatal("NAK should clear FlagModalOperation")
	}
}

func TestUSB4ModeUnsupportedWithoutUSB4DRD(t *testing.T) {
	p := port.New(0)
	m := altmode.NewUSB4Mode()
	if _, _, _, ok := m.SetupNextVDM(p); ok {
		t.Fatal("expected no VDM without a USB4-capable partner")
	}
}

func TestUSB4ModeEntersSOPDirectlyWithoutCable(t *testing.T) {
	p := port.New(0)
	p.Discovery[pdmsg.SOP].IdentityReceived = true
	p.Discovery[pdmsg.SOP].IdentityCount = 1
	var idvdo pdmsg.USB4VDO = 1 << 13
	p.Discovery[pdmsg.SOP].Identity[0] = uint32(idvdo)

	m := altmode.NewUSB4Mode()
	status, sop, _, ok := m.SetupNextVDM(p)
	if !ok || status != altmode.StatusSuccess || sop != pdmsg.SOP {
		t.Fatalf("SetupNextVDM = (%v, %v, _, %v)", status, sop, ok)
	}
}

func TestTBTModeExitQueuedTransitionsToInactive(t *testing.T) {
	p := port.New(0)
	p.Discovery[pdmsg.SOP].SVIDsReceived = true
	p.Discovery[pdmsg.SOP].SVIDs = []uint16{altmode.SVIDIntel}

	m := altmode.NewTBTMode()
	_, _, vdm, ok := m.SetupNextVDM(p)
	if !ok {
		t.Fatal("expected an Enter Mode VDM")
	}
	m.VDMAcked(p, pdmsg.SOP, vdm)
	if !m.IsActive(p) {
		t.Fatal("expected TBT mode active after Enter Mode ACK")
	}

	m.ExitModeRequest(p)
	_, _, vdm, ok = m.SetupNextVDM(p)
	if !ok || pdmsg.VDMHeader(vdm[0]).Command() != pdmsg.CommandExitMode {
		t.Fatalf("expected Exit Mode VDM, got %v", vdm)
	}
	if m.IsActive(p) {
		t.Fatal("expected TBT mode inactive after Exit Mode sent")
	}
}
