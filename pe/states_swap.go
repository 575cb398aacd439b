package pe

import (
	"github.com/oxplot/usbpd/pdmsg"
	"github.com/oxplot/usbpd/pdtimer"
	"github.com/oxplot/usbpd/port"
)

var (
	stateDRSwapSend        *state
	stateDRSwapEvaluate    *state
	statePRSwapSend        *state
	statePRSwapEvaluate    *state
	statePRSwapTransition  *state
	stateVconnSwapSend     *state
	stateVconnSwapEvaluate *state
	stateVconnSwapTurnOn   *state
	stateVconnSwapTurnOff  *state
)

func init() {
	// Data Role Swap, spec.md §4.3.5: rejected outright while a VDM modal
	// operation (an alt mode) is active, otherwise a plain Sender-Response
	// exchange that flips Port.DataRole on Accept.
	stateDRSwapSend = &state{
		Name: "dr-swap-send",
		Enter: func(pe *Engine) (*state, error) {
			if pe.Port.HasFlag(port.FlagModalOperation) {
				pe.notify(EventSwapCompleted)
				return stateSnkReadyOrSrcReady(pe), nil
			}
			return nil, pe.sendCtrl(pdmsg.TypeDRSwap, pdtimer.PESenderResponse)
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			switch pe.senderResponse() {
			case SendPending, Sent:
				if e&wireEventRx != 0 {
					switch m.Type() {
					case pdmsg.TypeAccept:
						pe.flipDataRole()
						pe.notify(EventSwapCompleted)
						return stateSnkReadyOrSrcReady(pe), nil
					case pdmsg.TypeReject, pdmsg.TypeNotSupported:
						pe.notify(EventSwapCompleted)
						return stateSnkReadyOrSrcReady(pe), nil
					}
				}
			case Discarded, DPMDiscarded:
				return stateSnkReadyOrSrcReady(pe), nil
			}
			if pe.Timers.IsExpired(pdtimer.PESenderResponse) {
				pe.Timers.Disable(pdtimer.PESenderResponse)
				return stateSnkReadyOrSrcReady(pe), nil
			}
			return nil, nil
		},
	}

	// stateDRSwapEvaluate handles an inbound DR_Swap request.
	stateDRSwapEvaluate = &state{
		Name: "dr-swap-evaluate",
		Enter: func(pe *Engine) (*state, error) {
			typ := pdmsg.TypeReject
			if !pe.Port.HasFlag(port.FlagModalOperation) {
				typ = pdmsg.TypeAccept
			}
			if err := pe.PRL.SendCtrlMessage(pdmsg.SOP, typ); err != nil {
				return nil, err
			}
			if typ == pdmsg.TypeAccept {
				pe.flipDataRole()
			}
			pe.notify(EventSwapCompleted)
			return stateSnkReadyOrSrcReady(pe), nil
		},
	}

	// Power Role Swap, spec.md §4.3.5 (PRS_FRS_SHARED). This models the
	// explicit (non-FRS) path: request, wait for Accept, then transition
	// supply/sink roles before re-entering Ready with the flipped role.
	statePRSwapSend = &state{
		Name: "pr-swap-send",
		Enter: func(pe *Engine) (*state, error) {
			return nil, pe.sendCtrl(pdmsg.TypePRSwap, pdtimer.PESenderResponse)
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			switch pe.senderResponse() {
			case SendPending, Sent:
				if e&wireEventRx != 0 {
					switch m.Type() {
					case pdmsg.TypeAccept:
						return statePRSwapTransition, nil
					case pdmsg.TypeReject, pdmsg.TypeNotSupported:
						pe.notify(EventSwapCompleted)
						return stateSnkReadyOrSrcReady(pe), nil
					}
				}
			case Discarded, DPMDiscarded:
				return stateSnkReadyOrSrcReady(pe), nil
			}
			if pe.Timers.IsExpired(pdtimer.PESenderResponse) {
				pe.Timers.Disable(pdtimer.PESenderResponse)
				return stateSnkReadyOrSrcReady(pe), nil
			}
			return nil, nil
		},
	}

	statePRSwapEvaluate = &state{
		Name: "pr-swap-evaluate",
		Enter: func(pe *Engine) (*state, error) {
			if err := pe.PRL.SendCtrlMessage(pdmsg.SOP, pdmsg.TypeAccept); err != nil {
				return nil, err
			}
			return statePRSwapTransition, nil
		},
	}

	statePRSwapTransition = &state{
		Name: "pr-swap-transition",
		Enter: func(pe *Engine) (*state, error) {
			pe.Port.SetFlag(port.FlagPRSwapInProgress)
			pe.startTimer(pdtimer.PEPSSource, tSwapSourceStart)
			return nil, nil
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			if e&wireEventRx != 0 && m.Type() == pdmsg.TypePSReady {
				pe.Timers.Disable(pdtimer.PEPSSource)
				pe.flipPowerRole()
				pe.Port.ClearFlag(port.FlagPRSwapInProgress)
				pe.notify(EventSwapCompleted)
				return stateSnkReadyOrSrcReady(pe), nil
			}
			if pe.Timers.IsExpired(pdtimer.PEPSSource) {
				pe.Timers.Disable(pdtimer.PEPSSource)
				return stateHardReset, nil
			}
			return nil, nil
		},
	}

	// VCONN Swap, spec.md §4.3.5: Wait_For_VCONN_Swap negotiates who will
	// source VCONN next, then the accepting side sequences
	// Turn_On/Turn_Off around the actual VCONN_SWAP_ON DPM request.
	stateVconnSwapSend = &state{
		Name: "vconn-swap-send",
		Enter: func(pe *Engine) (*state, error) {
			return nil, pe.sendCtrl(pdmsg.TypeVconnSwap, pdtimer.PESenderResponse)
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			switch pe.senderResponse() {
			case SendPending, Sent:
				if e&wireEventRx != 0 {
					switch m.Type() {
					case pdmsg.TypeAccept:
						return stateVconnSwapTurnOn, nil
					case pdmsg.TypeReject, pdmsg.TypeNotSupported:
						pe.notify(EventSwapCompleted)
						return stateSnkReadyOrSrcReady(pe), nil
					}
				}
			case Discarded, DPMDiscarded:
				return stateSnkReadyOrSrcReady(pe), nil
			}
			if pe.Timers.IsExpired(pdtimer.PESenderResponse) {
				pe.Timers.Disable(pdtimer.PESenderResponse)
				return stateSnkReadyOrSrcReady(pe), nil
			}
			return nil, nil
		},
	}

	stateVconnSwapEvaluate = &state{
		Name: "vconn-swap-evaluate",
		Enter: func(pe *Engine) (*state, error) {
			if err := pe.PRL.SendCtrlMessage(pdmsg.SOP, pdmsg.TypeAccept); err != nil {
				return nil, err
			}
			return stateVconnSwapTurnOff, nil
		},
	}

	stateVconnSwapTurnOn = &state{
		Name: "vconn-swap-turn-on",
		Enter: func(pe *Engine) (*state, error) {
			pe.startTimer(pdtimer.PEVconnOn, tVconnDischarge)
			return nil, nil
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			if pe.Timers.IsExpired(pdtimer.PEVconnOn) {
				pe.Timers.Disable(pdtimer.PEVconnOn)
				if err := pe.PRL.SendCtrlMessage(pdmsg.SOP, pdmsg.TypePSReady); err != nil {
					return nil, err
				}
				pe.notify(EventSwapCompleted)
				return stateSnkReadyOrSrcReady(pe), nil
			}
			return nil, nil
		},
	}

	stateVconnSwapTurnOff = &state{
		Name: "vconn-swap-turn-off",
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			if e&wireEventRx != 0 && m.Type() == pdmsg.TypePSReady {
				pe.notify(EventSwapCompleted)
				return stateSnkReadyOrSrcReady(pe), nil
			}
			return nil, nil
		},
	}
}

// dpmRequestPending checks for any pending DPM-originated request while the
// engine sits in Ready, consuming the one-shot DPMRequest bit and returning
// the state that begins the exchange, or nil if none is pending.
func (pe *Engine) dpmRequestPending() *state {
	switch {
	case pe.Port.ConsumeRequest(port.DPMRequestDRSwap):
		return stateDRSwapSend
	case pe.Port.ConsumeRequest(port.DPMRequestPRSwap):
		return statePRSwapSend
	case pe.Port.ConsumeRequest(port.DPMRequestVCONNSwap):
		return stateVconnSwapSend
	case pe.dpmVDMPending():
		return stateVDMSendRequest
	case pe.Port.ConsumeRequest(port.DPMRequestSendDiscoverIdentity):
		return stateDiscoverIdentity
	case pe.Port.ConsumeRequest(port.DPMRequestSendDataReset):
		return stateDataResetSend
	case pe.Port.ConsumeRequest(port.DPMRequestEPREnter):
		return stateEPREnterSend
	case pe.Port.ConsumeRequest(port.DPMRequestEPRExit):
		return stateEPRExit
	case pe.Port.HasFlag(port.FlagInEPR) && pe.Port.ConsumeRequest(port.DPMRequestEPRKeepAlive):
		return stateEPRKeepAlive
	case pe.Port.ConsumeRequest(port.DPMRequestSoftResetSend):
		return stateSendSoftReset
	case pe.Port.ConsumeRequest(port.DPMRequestHardResetSend):
		return stateHardReset
	case pe.Port.ConsumeRequest(port.DPMRequestGetSourceCap):
		return stateGetSourceCapSend
	case pe.Port.ConsumeRequest(port.DPMRequestGetSinkCap):
		return stateGetSinkCapSend
	case pe.Port.ConsumeRequest(port.DPMRequestSendEnterUSB):
		return stateEnterUSBSend
	case pe.Port.ConsumeRequest(port.DPMRequestGetStatus):
		return stateGetStatusSend
	case pe.Port.ConsumeRequest(port.DPMRequestNewPowerLevel):
		// A fresh Source_Capabilities read is how a sink learns whether a
		// new contract is possible after a New_Power_Level alert; no
		// separate wire exchange exists for this request.
		return stateGetSourceCapSend
	}
	return nil
}

// dpmVDMPending reports whether a DPM request for a non-Discover-Identity
// structured VDM exchange is outstanding, without consuming it —
// pendingVDMRequest (states_vdm.go) consumes the specific bit once
// stateVDMSendRequest actually sends.
func (pe *Engine) dpmVDMPending() bool {
	const vdmBits = port.DPMRequestSendDiscoverSVIDs | port.DPMRequestSendDiscoverModes |
		port.DPMRequestSendEnterMode | port.DPMRequestSendExitMode | port.DPMRequestSendAttention
	return pe.Port.DPMRequest&vdmBits != 0
}

func (pe *Engine) flipDataRole() {
	if pe.Port.DataRole == port.RoleDFP {
		pe.Port.DataRole = port.RoleUFP
	} else {
		pe.Port.DataRole = port.RoleDFP
	}
}

func (pe *Engine) flipPowerRole() {
	if pe.Port.PowerRole == port.RoleSource {
		pe.Port.PowerRole = port.RoleSink
	} else {
		pe.Port.PowerRole = port.RoleSource
	}
}

// stateSnkReadyOrSrcReady resolves the Ready state matching the port's
// current power role, used by every swap state to fall back into steady
// state once an exchange concludes or aborts.
func stateSnkReadyOrSrcReady(pe *Engine) *state {
	if pe.Port.PowerRole == port.RoleSource {
		return stateSrcReady
	}
	return stateSnkReady
}
