package pe

import (
	"github.com/oxplot/usbpd/collab"
	"github.com/oxplot/usbpd/pdmsg"
	"github.com/oxplot/usbpd/pdtimer"
	"github.com/oxplot/usbpd/port"
)

var (
	stateVDMSendRequest  *state
	stateVDMEvaluate     *state
	stateDiscoverIdentity *state
)

// vdmResult classifies the outcome of one VDM round trip, spec.md §4.3.6.
type vdmResult uint8

const (
	vdmWaiting vdmResult = iota
	vdmNoAction
	vdmACK
	vdmNAK
)

func init() {
	// stateVDMSendRequest issues the VDM named by pe.Port's pending DPM
	// request (Discover Identity/SVIDs/Modes, Enter/Exit Mode, Attention)
	// and classifies the reply with the same Sender-Response pattern used
	// for every other exchange.
	stateVDMSendRequest = &state{
		Name: "vdm-send-request",
		Enter: func(pe *Engine) (*state, error) {
			cmd, vid, pos := pe.pendingVDMRequest()
			h := pdmsg.VDMHeader(0)
			h.SetStructured(true)
			h.SetVID(vid)
			h.SetCommandType(pdmsg.CommandTypeREQ)
			h.SetCommand(cmd)
			h.SetObjectPosition(pos)
			return nil, pe.sendAwaitingReply(pdtimer.PEVDMResponse, func() error {
				return pe.PRL.SendDataMessage(pdmsg.SOP, pdmsg.TypeVendorDefined, []uint32{uint32(h)})
			})
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			switch classifyVDMResult(pe, m, e) {
			case vdmWaiting:
				return nil, nil
			case vdmACK:
				pe.Timers.Disable(pdtimer.PEVDMResponse)
				pe.handleVDMAck(m)
				return stateDiscoverIdentityNextOrDone(pe), nil
			case vdmNAK:
				pe.Timers.Disable(pdtimer.PEVDMResponse)
				return stateDiscoverIdentityNextOrDone(pe), nil
			case vdmNoAction:
				pe.Timers.Disable(pdtimer.PEVDMResponse)
				return stateDiscoverIdentityNextOrDone(pe), nil
			}
			return nil, nil
		},
	}

	// stateVDMEvaluate answers every inbound structured VDM REQ with a NAK
	// that echoes the request's header; no hook can make it ACK.
	stateVDMEvaluate = &state{
		Name: "vdm-evaluate",
		Enter: func(pe *Engine) (*state, error) {
			h := pdmsg.VDMHeader(pe.rxVDMHeader)
			h.SetCommandType(pdmsg.CommandTypeNAK)
			if err := pe.PRL.SendDataMessage(pdmsg.SOP, pdmsg.TypeVendorDefined, []uint32{uint32(h)}); err != nil {
				return nil, err
			}
			return stateSnkReadyOrSrcReady(pe), nil
		},
	}

	// stateDiscoverIdentity drives the Discover Identity retry/downgrade
	// ladder from spec.md §4.3.6: nDiscoverIdentityPrecontractLimit attempts
	// before an explicit contract, nDiscoverIdentityPD30Limit once on PD
	// 3.0+, nDiscoverIdentityCount total, before giving up and moving on
	// without a cable identity (not a protocol error). Attempts follow one
	// another with no delay between them.
	stateDiscoverIdentity = &state{
		Name: "discover-identity",
		Enter: func(pe *Engine) (*state, error) {
			limit := nDiscoverIdentityCount
			if !pe.explicitContract {
				limit = nDiscoverIdentityPrecontractLimit
			} else if pe.Port.Revision[pdmsg.SOP] >= port.Rev30 {
				limit = nDiscoverIdentityPD30Limit
			}
			if pe.discoverIdentity.attempts >= limit {
				pe.discoverIdentity.attempts = 0
				pe.notify(EventDiscoveryDone)
				if pe.Board != nil {
					pe.Board.NotifyEvent(pe.Port.Index, collab.StatusEventSOPDiscoveryDone)
				}
				return stateSnkReadyOrSrcReady(pe), nil
			}
			pe.discoverIdentity.attempts++
			return stateVDMSendRequest, nil
		},
	}
}

// pendingVDMRequest resolves the structured VDM command the currently
// pending DPM request names, defaulting to Discover Identity when called
// from stateDiscoverIdentity directly.
func (pe *Engine) pendingVDMRequest() (cmd pdmsg.Command, vid uint16, pos uint8) {
	const svdmVID = 0xff00 // PD SID, used for Discover Identity/SVIDs/Modes
	switch {
	case pe.Port.ConsumeRequest(port.DPMRequestSendDiscoverSVIDs):
		return pdmsg.CommandDiscoverSVIDs, svdmVID, 0
	case pe.Port.ConsumeRequest(port.DPMRequestSendDiscoverModes):
		return pdmsg.CommandDiscoverModes, svdmVID, 0
	case pe.Port.ConsumeRequest(port.DPMRequestSendEnterMode):
		return pdmsg.CommandEnterMode, svdmVID, 1
	case pe.Port.ConsumeRequest(port.DPMRequestSendExitMode):
		return pdmsg.CommandExitMode, svdmVID, 1
	case pe.Port.ConsumeRequest(port.DPMRequestSendAttention):
		return pdmsg.CommandAttention, svdmVID, 0
	default:
		return pdmsg.CommandDiscoverIdentity, svdmVID, 0
	}
}

// classifyVDMResult folds the Sender-Response outcome and the structured
// VDM command-type field of an ACK/NAK/BUSY reply into one vdmResult,
// per spec.md §4.3.6's VDM_RESULT table.
func classifyVDMResult(pe *Engine, m pdmsg.Message, e wireEvent) vdmResult {
	switch pe.senderResponse() {
	case SendPending:
		return vdmWaiting
	case Discarded, DPMDiscarded:
		return vdmNAK
	}
	if e&wireEventRx == 0 {
		if pe.Timers.IsExpired(pdtimer.PEVDMResponse) {
			return vdmNAK
		}
		return vdmWaiting
	}
	if m.Type() != pdmsg.TypeVendorDefined || !m.IsData() {
		return vdmNoAction
	}
	h := pdmsg.VDMHeader(m.Data[0])
	pe.rxVDMHeader = uint32(h)
	switch h.CommandType() {
	case pdmsg.CommandTypeACK:
		return vdmACK
	case pdmsg.CommandTypeBUSY:
		return vdmWaiting
	default:
		return vdmNAK
	}
}

// handleVDMAck records the result of a successful Discover Identity/SVIDs/
// Modes ACK into Port.Discovery, per spec.md §4.4.
func (pe *Engine) handleVDMAck(m pdmsg.Message) {
	h := pdmsg.VDMHeader(m.Data[0])
	switch h.Command() {
	case pdmsg.CommandDiscoverIdentity:
		n := int(m.DataObjectCount()) - 1 // VDOs after the VDM header
		if n < 0 {
			n = 0
		}
		d := &pe.Port.Discovery[pdmsg.SOP]
		d.IdentityReceived = true
		d.IdentityCount = n
		for i := 0; i < n && i < len(d.Identity); i++ {
			d.Identity[i] = m.Data[i+1]
		}
	case pdmsg.CommandDiscoverSVIDs:
		n := int(m.DataObjectCount()) - 1
		if n > 0 {
			d := &pe.Port.Discovery[pdmsg.SOP]
			d.SVIDsReceived = true
			for i := 0; i < n; i++ {
				vdo := m.Data[i+1]
				if svid := uint16(vdo >> 16); svid != 0 {
					d.SVIDs = append(d.SVIDs, svid)
				}
				if svid := uint16(vdo); svid != 0 {
					d.SVIDs = append(d.SVIDs, svid)
				}
			}
		}
	case pdmsg.CommandDiscoverModes:
		n := int(m.DataObjectCount()) - 1
		if n > 0 {
			modes := make([]uint32, n)
			for i := 0; i < n; i++ {
				modes[i] = m.Data[i+1]
			}
			if pe.Port.Discovery[pdmsg.SOP].Modes == nil {
				pe.Port.Discovery[pdmsg.SOP].Modes = map[uint16][]uint32{}
			}
			pe.Port.Discovery[pdmsg.SOP].Modes[h.VID()] = modes
		}
	case pdmsg.CommandEnterMode:
		pe.Port.SetFlag(port.FlagModalOperation)
	case pdmsg.CommandExitMode:
		pe.Port.ClearFlag(port.FlagModalOperation)
	}
}

// stateDiscoverIdentityNextOrDone picks the state after a VDM round trip:
// stateVDMSendRequest if another DPM request is pending, else
// stateDiscoverIdentity, which starts the next attempt at once (no delay is
// armed) or returns to Ready once the retry ladder above is exhausted.
func stateDiscoverIdentityNextOrDone(pe *Engine) *state {
	if pe.Port.DPMRequest != 0 {
		return stateVDMSendRequest
	}
	return stateDiscoverIdentity
}
