package altmode

import (
	"sync"

	"github.com/oxplot/usbpd/pdmsg"
	"github.com/oxplot/usbpd/port"
)

// Thunderbolt-compat Enter Mode VDO bit layout, USB Type-C spec §F.2.7 — only
// the bits this responder needs to set are named.
const (
	tbtEnterModeCableSpeedBit = 1 << 0 // cable speed, 3 bits from bit 0
	tbtEnterModeActiveCable   = 1 << 26
)

type tbtPhase int

const (
	tbtPhaseEnterMode tbtPhase = iota
	tbtPhaseActive
	tbtPhaseExit
	tbtPhaseInactive
)

type tbtPortState struct {
	phase      tbtPhase
	exitQueued bool
}

// TBTMode implements the Thunderbolt-compatibility alt mode responder,
// entered under the Intel SVID when the partner does not support native
// USB4 but the cable and port both support TBT-compatible signaling; see
// spec.md §4.4's fallback branch for pre-VDO-1.3 active cables.
type TBTMode struct {
	mu    sync.Mutex
	state map[int]*tbtPortState
}

func NewTBTMode() *TBTMode {
	return &TBTMode{state: make(map[int]*tbtPortState)}
}

func (m *TBTMode) SVID() uint16 { return SVIDIntel }

func (m *TBTMode) portState(p *port.Port) *tbtPortState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.state[p.Index]
	if !ok {
		s = &tbtPortState{phase: tbtPhaseEnterMode}
		m.state[p.Index] = s
	}
	return s
}

func (m *TBTMode) SetupNextVDM(p *port.Port) (Status, pdmsg.SOPType, []uint32, bool) {
	s := m.portState(p)
	if s.phase == tbtPhaseActive && s.exitQueued {
		s.phase = tbtPhaseExit
	}

	switch s.phase {
	case tbtPhaseEnterMode:
		if !hasSVID(p, pdmsg.SOP, SVIDIntel) {
			return StatusUnsupported, pdmsg.SOP, nil, false
		}
		vdo := uint32(0)
		if CableRequiresTBTCableMode(p) {
			vdo |= tbtEnterModeActiveCable
		}
		return StatusSuccess, pdmsg.SOP,
			[]uint32{vdmHeader(SVIDIntel, pdmsg.CommandEnterMode, pdmsg.CommandTypeREQ, 1), vdo}, true
	case tbtPhaseExit:
		s.phase = tbtPhaseInactive
		s.exitQueued = false
		return StatusSuccess, pdmsg.SOP,
			[]uint32{vdmHeader(SVIDIntel, pdmsg.CommandExitMode, pdmsg.CommandTypeREQ, 1)}, true
	}
	return StatusSuccess, pdmsg.SOP, nil, false
}

func (m *TBTMode) VDMAcked(p *port.Port, sop pdmsg.SOPType, vdos []uint32) {
	s := m.portState(p)
	if len(vdos) == 0 {
		return
	}
	switch pdmsg.VDMHeader(vdos[0]).Command() {
	case pdmsg.CommandEnterMode:
		p.SetFlag(port.FlagModalOperation)
		s.phase = tbtPhaseActive
	case pdmsg.CommandExitMode:
		p.ClearFlag(port.FlagModalOperation)
		s.phase = tbtPhaseInactive
	}
}

func (m *TBTMode) VDMNaked(p *port.Port, sop pdmsg.SOPType, cmd pdmsg.Command) {
	s := m.portState(p)
	p.ClearFlag(port.FlagModalOperation)
	s.phase = tbtPhaseInactive
	s.exitQueued = false
}

func (m *TBTMode) IsActive(p *port.Port) bool { return m.portState(p).phase == tbtPhaseActive }

func (m *TBTMode) ExitModeRequest(p *port.Port) {
	s := m.portState(p)
	if s.phase == tbtPhaseActive {
		s.exitQueued = true
	}
}

// CableRequiresTBTCableMode implements spec.md §4.4's cable-capability
// branch: passive cables never need a cable-side mode entry, and their
// speed is not checked here. For active cables with VDO version >=
// 1.3, the cable's explicit USB4 support bit is authoritative. Older active
// cables fall back to requiring modal support, Intel-SVID presence and the
// rounded Gen3/Gen4 speed bit — i.e. they always need a cable-side
// Thunderbolt-compat Enter Mode before the port can use USB4.
//
// pe's Discover Identity exchange (pe/states_vdm.go) only targets SOP today,
// so Discovery[SOPPrime] is never populated and this always sees "no cable
// identity" — reporting false (no cable-mode requirement) until cable-plug
// (SOP') discovery is added to the policy engine.
func CableRequiresTBTCableMode(p *port.Port) bool {
	d := p.Discovery[pdmsg.SOPPrime]
	if !d.IdentityReceived || d.IdentityCount < 3 {
		return false
	}
	cable := pdmsg.CableVDO(d.Identity[2])
	if cable.PlugType() == pdmsg.CablePlugPassive {
		return false
	}

	idHeader := pdmsg.IDHeaderVDO(d.Identity[0])
	if cable.VDOVersion() >= 3 { // VDO version encoding for "1.3" and above
		return !cable.USB40CableSupport()
	}
	return idHeader.ModalOperationSupported() && hasSVID(p, pdmsg.SOPPrime, SVIDIntel) &&
		cable.USBHighestSpeed() >= 2
}
