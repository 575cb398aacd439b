package altmode

import (
	"sync"

	"github.com/oxplot/usbpd/pdmsg"
	"github.com/oxplot/usbpd/port"
)

// usb4FSMState is the Enter_USB sequencing machine of spec.md §4.4:
// START -> ENTER_SOP_PRIME -> ENTER_SOP -> ACTIVE/INACTIVE. ENTER_SOP_PRIME
// sends Enter_USB to SOP' only when a cable identity was received; the
// ENTER_SOP_PRIME_PRIME state sends nothing and passes straight to
// ENTER_SOP, so SOP'' is never targeted.
type usb4FSMState int

const (
	usb4Start usb4FSMState = iota
	usb4EnterSOPPrime
	usb4EnterSOPDoublePrime
	usb4EnterSOP
	usb4Active
	usb4Inactive
	usb4Exit
)

type usb4PortState struct {
	fsm        usb4FSMState
	exitQueued bool
}

// USB4Mode drives Enter_USB (not a structured VDM — it's its own message
// type, pdmsg.TypeEnterUSB) to SOP' (when a cable identity was received)
// and then SOP before declaring the port Active; SOP'' is not sent to. It is consulted by the device policy manager ahead of
// TBTMode/DPMode per spec.md §4.5.2's fan-out order.
type USB4Mode struct {
	mu    sync.Mutex
	state map[int]*usb4PortState
}

func NewUSB4Mode() *USB4Mode {
	return &USB4Mode{state: make(map[int]*usb4PortState)}
}

// SVID reports the Intel SVID since USB4 cable-capability discovery rides
// on the same Discover Identity/SVIDs exchange as Thunderbolt-compat.
func (m *USB4Mode) SVID() uint16 { return SVIDIntel }

func (m *USB4Mode) portState(p *port.Port) *usb4PortState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.state[p.Index]
	if !ok {
		s = &usb4PortState{fsm: usb4Start}
		m.state[p.Index] = s
	}
	return s
}

// SupportsUSB4 reports whether the partner's Discover Identity response
// advertised USB4 DRD capability, per spec.md §8 scenario S6.
func SupportsUSB4(p *port.Port) bool {
	d := p.Discovery[pdmsg.SOP]
	if !d.IdentityReceived || d.IdentityCount == 0 {
		return false
	}
	return pdmsg.USB4VDO(d.Identity[0]).SupportsUSB4DRD()
}

func (m *USB4Mode) SetupNextVDM(p *port.Port) (Status, pdmsg.SOPType, []uint32, bool) {
	s := m.portState(p)
	if s.fsm == usb4Active && s.exitQueued {
		s.fsm = usb4Exit
	}

	switch s.fsm {
	case usb4Start:
		if !SupportsUSB4(p) {
			return StatusUnsupported, pdmsg.SOP, nil, false
		}
		if CableRequiresTBTCableMode(p) {
			// The cable needs a Thunderbolt-compat Enter Mode first; let
			// DPM's fan-out run TBTMode before USB4 retries.
			return StatusMuxWait, pdmsg.SOP, nil, false
		}
		s.fsm = usb4EnterSOPPrime
		fallthrough
	case usb4EnterSOPPrime:
		if !cablePresent(p) {
			s.fsm = usb4EnterSOP
			return m.SetupNextVDM(p)
		}
		return StatusSuccess, pdmsg.SOPPrime, enterUSBWords(), true
	case usb4EnterSOPDoublePrime:
		s.fsm = usb4EnterSOP
		return m.SetupNextVDM(p)
	case usb4EnterSOP:
		return StatusSuccess, pdmsg.SOP, enterUSBWords(), true
	case usb4Exit:
		s.fsm = usb4Inactive
		s.exitQueued = false
		p.ClearFlag(port.FlagModalOperation)
		// USB4 has no Exit_Mode message of its own; a Data Reset (driven by
		// the policy engine, pe/states_datareset.go) is what actually tears
		// the mode down on the wire.
		return StatusSuccess, pdmsg.SOP, nil, false
	}
	return StatusSuccess, pdmsg.SOP, nil, false
}

func enterUSBWords() []uint32 {
	var do pdmsg.EnterUSBDataObject
	do.SetMode(pdmsg.USBModeUSB4)
	return []uint32{uint32(do)}
}

func cablePresent(p *port.Port) bool {
	return p.Discovery[pdmsg.SOPPrime].IdentityReceived
}

// VDMAcked is driven from the Enter_USB acceptance path rather than a
// Structured VDM ACK (pe.stateEnterUSBSend has no reply to wait for), so the
// device policy manager calls this directly once it observes the relevant
// Enter_USB exchange completed for sop.
func (m *USB4Mode) VDMAcked(p *port.Port, sop pdmsg.SOPType, vdos []uint32) {
	s := m.portState(p)
	switch s.fsm {
	case usb4EnterSOPPrime:
		s.fsm = usb4EnterSOPDoublePrime
	case usb4EnterSOP:
		p.SetFlag(port.FlagModalOperation)
		s.fsm = usb4Active
	}
}

func (m *USB4Mode) VDMNaked(p *port.Port, sop pdmsg.SOPType, cmd pdmsg.Command) {
	s := m.portState(p)
	s.fsm = usb4Inactive
	s.exitQueued = false
	p.ClearFlag(port.FlagModalOperation)
}

func (m *USB4Mode) IsActive(p *port.Port) bool { return m.portState(p).fsm == usb4Active }

func (m *USB4Mode) ExitModeRequest(p *port.Port) {
	s := m.portState(p)
	if s.fsm == usb4Active {
		s.exitQueued = true
	}
}
