package pe

import (
	"github.com/oxplot/usbpd/collab"
	"github.com/oxplot/usbpd/pdmsg"
	"github.com/oxplot/usbpd/pdtimer"
	"github.com/oxplot/usbpd/port"
)

var (
	stateSnkStartup              *state
	stateSnkDiscovery            *state
	stateSnkWaitForCapabilities  *state
	stateSnkEvaluateCapability   *state
	stateSnkSelectCapability     *state
	stateSnkTransitionSink       *state
	stateSnkReady                *state
)

func init() {
	stateSnkStartup = &state{
		Name: "snk-startup",
		Enter: func(pe *Engine) (*state, error) {
			pe.explicitContract = false
			pe.Port.ClearFlag(port.FlagExplicitContract)
			pe.Port.SrcCaps = port.Caps{Count: -1}
			pe.notify(EventPowerNotReady)
			return stateSnkDiscovery, nil
		},
	}

	// stateSnkDiscovery is entered already attached: package engine only
	// calls Start once the Type-C connection manager has reported an
	// attached sink, so there is nothing left to wait for here beyond
	// arming the Source_Capabilities timeout.
	stateSnkDiscovery = &state{
		Name: "snk-discovery",
		Enter: func(pe *Engine) (*state, error) {
			return stateSnkWaitForCapabilities, nil
		},
	}

	stateSnkWaitForCapabilities = &state{
		Name: "snk-wait-for-cap",
		Enter: func(pe *Engine) (*state, error) {
			pe.startTimer(pdtimer.PESourceCap, tSinkWaitCap)
			return nil, nil
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			if e&wireEventRx != 0 && m.Type() == pdmsg.TypeSourceCap && m.IsData() {
				pe.Timers.Disable(pdtimer.PESourceCap)
				n := int(m.DataObjectCount())
				pe.Port.SrcCaps.Count = n
				for i := 0; i < n; i++ {
					pe.Port.SrcCaps.PDO[i] = pdmsg.PDO(m.Data[i])
				}
				return stateSnkEvaluateCapability, nil
			}
			if pe.Timers.IsExpired(pdtimer.PESourceCap) {
				pe.Timers.Disable(pdtimer.PESourceCap)
				pe.Port.SetFlag(port.FlagSnkWaitCapTimeout)
				return stateHardReset, nil
			}
			return nil, nil
		},
	}

	stateSnkEvaluateCapability = &state{
		Name: "snk-evaluate-cap",
		Enter: func(pe *Engine) (*state, error) {
			if pe.capEvaluator == nil {
				return stateSnkSelectCapability, nil
			}
			pe.rdo = pe.capEvaluator.EvaluateCapabilities(pe.Port.SrcCaps.PDO[:pe.Port.SrcCaps.Count])
			return stateSnkSelectCapability, nil
		},
	}

	stateSnkSelectCapability = &state{
		Name: "snk-select-cap",
		Enter: func(pe *Engine) (*state, error) {
			if pe.rdo == pdmsg.EmptyRequestDO {
				pe.notify(EventPowerNotReady)
				return nil, nil
			}
			return nil, pe.sendAwaitingReply(pdtimer.PESenderResponse, func() error {
				return pe.PRL.SendDataMessage(pdmsg.SOP, pdmsg.TypeRequest, []uint32{uint32(pe.rdo)})
			})
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			switch pe.senderResponse() {
			case SendPending, Sent:
				if e&wireEventRx != 0 {
					switch m.Type() {
					case pdmsg.TypeAccept:
						return stateSnkTransitionSink, nil
					case pdmsg.TypeReject, pdmsg.TypeWait:
						pe.waitingOnSource = m.Type() == pdmsg.TypeWait
						pe.notify(EventPowerNotReady)
						return stateSnkReady, nil
					}
				}
			case Discarded, DPMDiscarded:
				return stateSnkReady, nil
			}
			if pe.Timers.IsExpired(pdtimer.PESenderResponse) {
				pe.Timers.Disable(pdtimer.PESenderResponse)
				return stateHardReset, nil
			}
			return nil, nil
		},
	}

	stateSnkTransitionSink = &state{
		Name: "snk-transition-sink",
		Enter: func(pe *Engine) (*state, error) {
			// Drop to the pSnkStdby interim ceiling while the supply
			// transitions, per spec.md §4.3.3; the full negotiated
			// ceiling is restored once PS_RDY confirms the new contract.
			if cm := pe.chargeManager(); cm != nil {
				cm.SetCeilingMA(pe.Port.Index, pSnkStdbyMA)
			}
			pe.startTimer(pdtimer.PEPSTransition, tPSTransition)
			return nil, nil
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			if e&wireEventRx != 0 && m.Type() == pdmsg.TypePSReady {
				pe.Timers.Disable(pdtimer.PEPSTransition)
				// Only now, with PS_RDY confirming the supply is actually
				// at the new level, transition the sink's own input
				// current limit and restore the full negotiated ceiling;
				// a timeout/Hard Reset below must leave both untouched.
				if pe.Board != nil {
					if err := pe.Board.TransitionVoltage(pe.Port.Index, pe.selectedSinkVoltageMV()); err != nil {
						return nil, err
					}
				}
				if cm := pe.chargeManager(); cm != nil {
					cm.SetCeilingMA(pe.Port.Index, int(pe.rdo.FixedOperatingCurrent()))
				}
				return stateSnkReady, nil
			}
			if pe.Timers.IsExpired(pdtimer.PEPSTransition) {
				pe.Timers.Disable(pdtimer.PEPSTransition)
				return stateHardReset, nil
			}
			return nil, nil
		},
	}

	stateSnkReady = &state{
		Name: "snk-ready",
		Enter: func(pe *Engine) (*state, error) {
			pe.explicitContract = true
			pe.Port.SetFlag(port.FlagExplicitContract)
			pe.Port.Contract = port.Contract{
				Explicit: true,
				PDOIndex: int(pe.rdo.SelectedObjectPosition()),
				MV:       pdoVoltage(pe.Port.SrcCaps, int(pe.rdo.SelectedObjectPosition())),
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
			case pdmsg.TypeSourceCap:
				pe.Port.DPMRequest |= port.DPMRequestSourceCapChange
				return stateSnkEvaluateCapability, nil
			case pdmsg.TypeGetSinkCap:
				if err := pe.PRL.SendCtrlMessage(pdmsg.SOP, pdmsg.TypeNotSupported); err != nil {
					return nil, err
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
			case pdmsg.TypeSoftReset:
				return stateSoftReset, nil
			}
			return nil, nil
		},
	}
}

// pSnkStdbyMA is pSnkStdby (2.5W) expressed as a milliamp ceiling at the
// nominal 5V vSafe5V rail, the interim budget spec.md §4.3.3 requires
// while a sink's supply is mid-transition and the new contract's current
// isn't actually flowing yet.
const pSnkStdbyMA = 500

// chargeManager returns the installed Board's charge manager, or nil if
// no Board is installed or the Board has no charging support.
func (pe *Engine) chargeManager() collab.ChargeManager {
	if pe.Board == nil {
		return nil
	}
	return pe.Board.ChargeManager()
}

// selectedSinkVoltageMV returns the millivolt value of the PDO pe.rdo
// selected among the partner's most recently received source caps.
func (pe *Engine) selectedSinkVoltageMV() int {
	return pdoVoltage(pe.Port.SrcCaps, int(pe.rdo.SelectedObjectPosition()))
}

// pdoVoltage returns the millivolt value of caps.PDO[i] for the subset of
// PDO types whose selection this engine currently supports (fixed and
// PPS); other types report 0.
func pdoVoltage(caps port.Caps, i int) int {
	if i <= 0 || i > caps.Count {
		return 0
	}
	pdo := caps.PDO[i-1]
	switch pdo.Type() {
	case pdmsg.PDOTypeFixedSupply:
		return int(pdmsg.FixedSupplyPDO(pdo).Voltage())
	case pdmsg.PDOTypePPS:
		return int(pdmsg.PPSPDO(pdo).MaxVoltage())
	default:
		return 0
	}
}
