package pe

import (
	"github.com/oxplot/usbpd/pdmsg"
	"github.com/oxplot/usbpd/pdtimer"
	"github.com/oxplot/usbpd/port"
)

var (
	stateSrcStartup             *state
	stateSrcSendCapabilities    *state
	stateSrcNegotiateCapability *state
	stateSrcCapabilityResponse *state
	stateSrcTransitionSupply    *state
	stateSrcReady               *state
	stateSrcDisabled            *state
)

func init() {
	stateSrcStartup = &state{
		Name: "src-startup",
		Enter: func(pe *Engine) (*state, error) {
			pe.explicitContract = false
			pe.capsCounter = 0
			pe.Port.ClearFlag(port.FlagExplicitContract)
			pe.notify(EventPowerNotReady)
			return stateSrcSendCapabilities, nil
		},
	}

	stateSrcSendCapabilities = &state{
		Name: "src-send-capabilities",
		Enter: func(pe *Engine) (*state, error) {
			pdos := pe.currentSourcePDOs()
			words := make([]uint32, len(pdos))
			for i, p := range pdos {
				words[i] = uint32(p)
			}
			return nil, pe.sendAwaitingReply(pdtimer.PESenderResponse, func() error {
				return pe.PRL.SendDataMessage(pdmsg.SOP, pdmsg.TypeSourceCap, words)
			})
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			switch pe.senderResponse() {
			case SendPending:
				return nil, nil
			case SendCompleted, Sent:
				if e&wireEventRx != 0 && m.Type() == pdmsg.TypeRequest && m.IsData() {
					pe.Timers.Disable(pdtimer.PESenderResponse)
					pe.rdo = pdmsg.RequestDO(m.Data[0])
					return stateSrcNegotiateCapability, nil
				}
			case Discarded, DPMDiscarded:
				return stateSrcSendCapabilitiesRetry(pe)
			}
			if pe.Timers.IsExpired(pdtimer.PESenderResponse) {
				pe.Timers.Disable(pdtimer.PESenderResponse)
				return stateSrcSendCapabilitiesRetry(pe)
			}
			return nil, nil
		},
	}

	stateSrcNegotiateCapability = &state{
		Name: "src-negotiate-cap",
		Enter: func(pe *Engine) (*state, error) {
			if pe.requestSatisfiable(pe.rdo) {
				pe.reportRDOToAllocator()
				return stateSrcTransitionSupply, nil
			}
			return stateSrcCapabilityResponse, nil
		},
	}

	stateSrcCapabilityResponse = &state{
		Name: "src-capability-response",
		Enter: func(pe *Engine) (*state, error) {
			typ := pdmsg.TypeReject
			if pe.waitingOnSource {
				typ = pdmsg.TypeWait
			}
			if err := pe.PRL.SendCtrlMessage(pdmsg.SOP, typ); err != nil {
				return nil, err
			}
			if pe.explicitContract {
				return stateSrcReady, nil
			}
			return stateSrcSendCapabilitiesRetryState(pe), nil
		},
	}

	stateSrcTransitionSupply = &state{
		Name: "src-transition-supply",
		Enter: func(pe *Engine) (*state, error) {
			if err := pe.PRL.SendCtrlMessage(pdmsg.SOP, pdmsg.TypeAccept); err != nil {
				return nil, err
			}
			pe.startTimer(pdtimer.PESrcTransition, tSrcTransition)
			return nil, nil
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			if pe.Timers.IsExpired(pdtimer.PESrcTransition) {
				pe.Timers.Disable(pdtimer.PESrcTransition)
				if pe.Board != nil {
					if err := pe.Board.TransitionVoltage(pe.Port.Index, pe.selectedSourceVoltageMV()); err != nil {
						return nil, err
					}
					if err := pe.Board.SetPowerSupplyReady(pe.Port.Index); err != nil {
						return nil, err
					}
				}
				if err := pe.PRL.SendCtrlMessage(pdmsg.SOP, pdmsg.TypePSReady); err != nil {
					return nil, err
				}
				return stateSrcReady, nil
			}
			return nil, nil
		},
	}

	stateSrcReady = &state{
		Name: "src-ready",
		Enter: func(pe *Engine) (*state, error) {
			pe.explicitContract = true
			pe.capsCounter = 0
			pe.Port.SetFlag(port.FlagExplicitContract)
			pe.Port.Contract = port.Contract{
				Explicit: true,
				PDOIndex: int(pe.rdo.SelectedObjectPosition()),
				MA:       int(pe.rdo.FixedOperatingCurrent()),
			}
			pe.notify(EventPowerReady)
			pe.notify(EventAccepted)
			return nil, nil
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			if next := pe.dpmRequestPending(); next != nil {
				return next, nil
			}
			if e&wireEventRx == 0 {
				return nil, nil
			}
			switch m.Type() {
			case pdmsg.TypeGetSourceCap:
				return stateSrcSendCapabilities, nil
			case pdmsg.TypeRequest:
				if m.IsData() {
					pe.rdo = pdmsg.RequestDO(m.Data[0])
					return stateSrcNegotiateCapability, nil
				}
			case pdmsg.TypeDRSwap:
				return stateDRSwapEvaluate, nil
			case pdmsg.TypePRSwap:
				return statePRSwapEvaluate, nil
			case pdmsg.TypeVconnSwap:
				return stateVconnSwapEvaluate, nil
			case pdmsg.TypeVendorDefined:
				if m.IsData() && m.DataObjectCount() > 0 {
					pe.rxVDMHeader = m.Data[0]
					if pdmsg.VDMHeader(m.Data[0]).CommandType() == pdmsg.CommandTypeREQ {
						return stateVDMEvaluate, nil
					}
				}
			case pdmsg.TypeDataReset:
				return stateDataResetEvaluate, nil
			case pdmsg.TypeEPRRequest:
				return stateEPREnterEvaluate, nil
			case pdmsg.TypeSoftReset:
				return stateSoftReset, nil
			}
			return nil, nil
		},
	}

	stateSrcDisabled = &state{
		Name: "src-disabled",
		Enter: func(pe *Engine) (*state, error) {
			pe.notify(EventPowerNotReady)
			return nil, nil
		},
	}
}

// stateSrcSendCapabilitiesRetry implements the nCapsCount retransmit cap and
// the nHardResetCount give-up escalation from spec.md §4.3.2: after
// nCapsCount failed Source_Capabilities attempts without an explicit
// contract, issue a Hard Reset; once nHardResetCount Hard Resets have also
// failed to establish a contract, give up into SRC_Disabled.
func stateSrcSendCapabilitiesRetry(pe *Engine) (*state, error) {
	if pe.explicitContract {
		return stateSrcReady, nil
	}
	pe.capsCounter++
	if pe.capsCounter <= nCapsCount {
		return stateSrcSendCapabilities, nil
	}
	pe.capsCounter = 0
	if pe.hardResetCounter >= nHardResetCount {
		return stateSrcDisabled, nil
	}
	return stateHardReset, nil
}

// stateSrcSendCapabilitiesRetryState is a convenience for Capability
// Response's Reject/Wait path, which must observe the same retry/give-up
// policy as a failed send.
func stateSrcSendCapabilitiesRetryState(pe *Engine) *state {
	next, _ := stateSrcSendCapabilitiesRetry(pe)
	return next
}

// currentSourcePDOs asks the installed SourceCapProvider (package dpm) for
// this port's currently advertised PDOs, falling back to a bare 5V/0.9A
// default so the engine remains usable without a DPM wired in (e.g. tests).
func (pe *Engine) currentSourcePDOs() []pdmsg.PDO {
	if pe.srcCaps != nil {
		if pdos := pe.srcCaps.SourcePDOs(pe.Port.Index); len(pdos) > 0 {
			return pdos
		}
	}
	return []pdmsg.PDO{pdmsg.PDO(pe.v5PDO)}
}

// requestSatisfiable reports whether rdo selects an object position this
// engine's current advertisement can still serve. Without a DPM installed,
// any non-empty request naming the sole default PDO is accepted.
func (pe *Engine) requestSatisfiable(rdo pdmsg.RequestDO) bool {
	if rdo == pdmsg.EmptyRequestDO {
		return false
	}
	pos := int(rdo.SelectedObjectPosition())
	pdos := pe.currentSourcePDOs()
	return pos >= 1 && pos <= len(pdos)
}

// selectedSourceVoltageMV returns the millivolt value of the PDO pe.rdo
// selected among this engine's currently advertised source PDOs, falling
// back to 5V if the selection is somehow out of range (requestSatisfiable
// should already have ruled that out by the time this is called).
func (pe *Engine) selectedSourceVoltageMV() int {
	pos := int(pe.rdo.SelectedObjectPosition())
	pdos := pe.currentSourcePDOs()
	if pos < 1 || pos > len(pdos) {
		return 5000
	}
	var caps port.Caps
	caps.Count = len(pdos)
	copy(caps.PDO[:], pdos)
	return pdoVoltage(caps, pos)
}

// reportRDOToAllocator feeds a just-accepted sink Request to the shared
// 3A allocator hook, if one is installed: selecting the 3A PDO claims the
// allocator's budget slot for this port, matching SourcePDOs' claimed-
// based 3A/1.5A offer; anything else releases it. Always also reports the
// RDO itself for the allocator's sub-1.5A compliance-quirk downgrade.
func (pe *Engine) reportRDOToAllocator() {
	if pe.allocHook == nil {
		return
	}
	pe.allocHook.ReportRDO(pe.Port.Index, pe.rdo)
	if pe.rdo.FixedOperatingCurrent() >= 3000 {
		pe.allocHook.RequestSinkMaxPDO(pe.Port.Index)
	} else {
		pe.allocHook.ClearSinkMaxPDO(pe.Port.Index)
	}
}
