package pe

import (
	"github.com/oxplot/usbpd/pdmsg"
	"github.com/oxplot/usbpd/pdtimer"
	"github.com/oxplot/usbpd/port"
)

// eprModeAction is the one-byte action field of an EPR_Mode message,
// USB-PD r3.1 §6.4.10.
type eprModeAction uint32

const (
	eprModeEnter          eprModeAction = 1
	eprModeEnterAck       eprModeAction = 2
	eprModeEnterSucceeded eprModeAction = 3
	eprModeEnterFailed    eprModeAction = 4
	eprModeExit           eprModeAction = 5
)

var (
	stateEPREnterSend      *state
	stateEPREnterWaitAck   *state
	stateEPREnterEvaluate  *state
	stateEPRKeepAlive      *state
	stateEPRExit           *state
)

func init() {
	// EPR entry, spec.md §4.3.8: a 4-step exchange (EPR_Mode Enter, Enter
	// Acknowledged, a source PS transition, Enter Succeeded/Failed)
	// requested by a sink that is itself EPR Mode Capable against a source
	// whose vSafe5V PDO advertises the EPR Mode Capable bit.
	stateEPREnterSend = &state{
		Name: "epr-enter-send",
		Enter: func(pe *Engine) (*state, error) {
			return nil, pe.sendAwaitingReply(pdtimer.PESinkEPREnter, func() error {
				return pe.PRL.SendDataMessage(pdmsg.SOP, pdmsg.TypeEPRRequest, []uint32{uint32(eprModeEnter)})
			})
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			switch pe.senderResponse() {
			case SendPending, Sent:
				if e&wireEventRx != 0 && m.Type() == pdmsg.TypeEPRMode && m.IsData() {
					switch eprModeAction(m.Data[0]) {
					case eprModeEnterAck:
						return stateEPREnterWaitAck, nil
					case eprModeEnterFailed:
						pe.notify(EventEPRExited)
						return stateSnkReadyOrSrcReady(pe), nil
					}
				}
			case Discarded, DPMDiscarded:
				return stateSnkReadyOrSrcReady(pe), nil
			}
			if pe.Timers.IsExpired(pdtimer.PESinkEPREnter) {
				pe.Timers.Disable(pdtimer.PESinkEPREnter)
				return stateSnkReadyOrSrcReady(pe), nil
			}
			return nil, nil
		},
	}

	stateEPREnterWaitAck = &state{
		Name: "epr-enter-wait-source-cap",
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
				pe.Port.SetFlag(port.FlagInEPR)
				pe.notify(EventEPREntered)
				return stateSnkEvaluateCapability, nil
			}
			if pe.Timers.IsExpired(pdtimer.PESourceCap) {
				pe.Timers.Disable(pdtimer.PESourceCap)
				return stateSnkReadyOrSrcReady(pe), nil
			}
			return nil, nil
		},
	}

	// stateEPREnterEvaluate is the source-side reaction to an inbound
	// EPR_Mode Enter request: Acknowledge then advertise EPR source
	// capabilities, mirroring stateSrcSendCapabilities' send/retry shape.
	stateEPREnterEvaluate = &state{
		Name: "epr-enter-evaluate",
		Enter: func(pe *Engine) (*state, error) {
			if err := pe.PRL.SendDataMessage(pdmsg.SOP, pdmsg.TypeEPRMode, []uint32{uint32(eprModeEnterAck)}); err != nil {
				return nil, err
			}
			pe.Port.SetFlag(port.FlagInEPR)
			pe.notify(EventEPREntered)
			return stateSrcSendCapabilities, nil
		},
	}

	// stateEPRKeepAlive is entered from Ready when DPMRequestEPRKeepAlive is
	// pending while FlagInEPR is set, to hold the EPR contract open per
	// spec.md §4.3.8. Nothing in this tree raises that request on a timer;
	// package engine does not arm it.
	stateEPRKeepAlive = &state{
		Name: "epr-keep-alive",
		Enter: func(pe *Engine) (*state, error) {
			return nil, pe.sendAwaitingReply(pdtimer.PESinkEPRKeepAlive, func() error {
				return pe.PRL.SendExtDataMessage(pdmsg.SOP, pdmsg.TypeEPRMode, []byte{byte(pdmsg.ExtendedControlEPRKeepAlive)})
			})
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			switch pe.senderResponse() {
			case SendPending:
				return nil, nil
			case Discarded, DPMDiscarded:
				return stateHardReset, nil
			}
			return stateSnkReadyOrSrcReady(pe), nil
		},
	}

	stateEPRExit = &state{
		Name: "epr-exit",
		Enter: func(pe *Engine) (*state, error) {
			if err := pe.PRL.SendDataMessage(pdmsg.SOP, pdmsg.TypeEPRMode, []uint32{uint32(eprModeExit)}); err != nil {
				return nil, err
			}
			pe.Port.ClearFlag(port.FlagInEPR)
			pe.notify(EventEPRExited)
			if pe.Port.PowerRole == port.RoleSource {
				return stateSrcStartup, nil
			}
			return stateSnkStartup, nil
		},
	}
}
