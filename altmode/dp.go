package altmode

import (
	"sync"

	"github.com/oxplot/usbpd/pdmsg"
	"github.com/oxplot/usbpd/port"
)

// DP mode-specific structured VDM commands, USB Type-C Cable and Connector
// Specification Release 2.0 Table 5-1; pdmsg only defines the two generic
// ones (DPStatusUpdate/DPConfigure) since they're shared with other SVIDs'
// object-position-4 layout.
const (
	dpCommandStatusUpdate = pdmsg.CommandDPStatusUpdate
	dpCommandConfigure    = pdmsg.CommandDPConfigure
)

type dpPhase int

const (
	dpPhaseDiscoverModes dpPhase = iota
	dpPhaseEnterMode
	dpPhaseStatusUpdate
	dpPhaseConfigure
	dpPhaseActive
	dpPhaseExit
	dpPhaseInactive
)

type dpPortState struct {
	phase      dpPhase
	objPos     uint8
	pinAssign  uint32
	exitQueued bool
}

// DPMode implements the DisplayPort alt mode responder (DFP side): enter the
// mode the partner advertised under SVIDDisplayPort, exchange one
// DP_Status_Update / DP_Configure round trip, configuring the lowest-numbered
// pin assignment bit set in the partner's Status Update reply (no
// intersection with a local set of pin assignments is computed), then stay
// Active until told to exit.
type DPMode struct {
	mu    sync.Mutex
	state map[int]*dpPortState
}

// NewDPMode returns a DisplayPort mode responder with no ports yet entered.
func NewDPMode() *DPMode {
	return &DPMode{state: make(map[int]*dpPortState)}
}

func (m *DPMode) SVID() uint16 { return SVIDDisplayPort }

func (m *DPMode) portState(p *port.Port) *dpPortState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.state[p.Index]
	if !ok {
		s = &dpPortState{phase: dpPhaseDiscoverModes}
		m.state[p.Index] = s
	}
	return s
}

func (m *DPMode) SetupNextVDM(p *port.Port) (Status, pdmsg.SOPType, []uint32, bool) {
	s := m.portState(p)

	if s.phase == dpPhaseActive && s.exitQueued {
		s.phase = dpPhaseExit
	}

	switch s.phase {
	case dpPhaseDiscoverModes:
		if !hasSVID(p, pdmsg.SOP, SVIDDisplayPort) {
			return StatusUnsupported, pdmsg.SOP, nil, false
		}
		modes := modesForSVID(p, pdmsg.SOP, SVIDDisplayPort)
		if len(modes) == 0 {
			return StatusUnsupported, pdmsg.SOP, nil, false
		}
		s.objPos = 1
		s.phase = dpPhaseEnterMode
		return StatusSuccess, pdmsg.SOP,
			[]uint32{vdmHeader(SVIDDisplayPort, pdmsg.CommandEnterMode, pdmsg.CommandTypeREQ, s.objPos)}, true

	case dpPhaseStatusUpdate:
		return StatusSuccess, pdmsg.SOP,
			[]uint32{vdmHeader(SVIDDisplayPort, dpCommandStatusUpdate, pdmsg.CommandTypeREQ, s.objPos), 1}, true

	case dpPhaseConfigure:
		return StatusSuccess, pdmsg.SOP,
			[]uint32{vdmHeader(SVIDDisplayPort, dpCommandConfigure, pdmsg.CommandTypeREQ, s.objPos), s.pinAssign}, true

	case dpPhaseExit:
		s.phase = dpPhaseInactive
		s.exitQueued = false
		return StatusSuccess, pdmsg.SOP,
			[]uint32{vdmHeader(SVIDDisplayPort, pdmsg.CommandExitMode, pdmsg.CommandTypeREQ, s.objPos)}, true
	}
	return StatusSuccess, pdmsg.SOP, nil, false
}

func (m *DPMode) VDMAcked(p *port.Port, sop pdmsg.SOPType, vdos []uint32) {
	s := m.portState(p)
	if len(vdos) == 0 {
		return
	}
	cmd := pdmsg.VDMHeader(vdos[0]).Command()
	switch cmd {
	case pdmsg.CommandEnterMode:
		p.SetFlag(port.FlagModalOperation)
		s.phase = dpPhaseStatusUpdate
	case dpCommandStatusUpdate:
		s.pinAssign = dpPreferredPinAssignment(vdos)
		s.phase = dpPhaseConfigure
	case dpCommandConfigure:
		s.phase = dpPhaseActive
	case pdmsg.CommandExitMode:
		p.ClearFlag(port.FlagModalOperation)
		s.phase = dpPhaseInactive
	}
}

func (m *DPMode) VDMNaked(p *port.Port, sop pdmsg.SOPType, cmd pdmsg.Command) {
	s := m.portState(p)
	p.ClearFlag(port.FlagModalOperation)
	s.phase = dpPhaseInactive
	s.exitQueued = false
}

func (m *DPMode) IsActive(p *port.Port) bool {
	return m.portState(p).phase == dpPhaseActive
}

func (m *DPMode) ExitModeRequest(p *port.Port) {
	s := m.portState(p)
	if s.phase == dpPhaseActive {
		s.exitQueued = true
	}
}

// dpPreferredPinAssignment picks the lowest-numbered pin assignment bit set
// in a DP_Status_Update ACK's status VDO, a simplification of the full
// UFP_D/DFP_D capability negotiation in usb_pd_alt_mode_ufp.c.
func dpPreferredPinAssignment(vdos []uint32) uint32 {
	if len(vdos) < 2 {
		return 0
	}
	for bit := uint32(0); bit < 8; bit++ {
		if vdos[1]&(1<<bit) != 0 {
			return 1 << bit
		}
	}
	return 0
}
