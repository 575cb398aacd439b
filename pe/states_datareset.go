package pe

import (
	"github.com/oxplot/usbpd/pdmsg"
	"github.com/oxplot/usbpd/pdtimer"
	"github.com/oxplot/usbpd/port"
)

var (
	stateDataResetSend     *state
	stateDataResetEvaluate *state
	stateDataResetComplete *state
)

func init() {
	// Data Reset, spec.md §4.3.7 (UDR_/DDR_ mirror chain collapsed into one
	// symmetric exchange, since both ends run the identical Accept/Complete
	// handshake and neither side's role changes its framing).
	stateDataResetSend = &state{
		Name: "data-reset-send",
		Enter: func(pe *Engine) (*state, error) {
			return nil, pe.sendCtrl(pdmsg.TypeDataReset, pdtimer.PESenderResponse)
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			switch pe.senderResponse() {
			case SendPending, Sent:
				if e&wireEventRx != 0 {
					switch m.Type() {
					case pdmsg.TypeAccept:
						pe.startTimer(pdtimer.PEDataResetFail, tDataResetFail)
						return stateDataResetComplete, nil
					case pdmsg.TypeReject, pdmsg.TypeNotSupported:
						return stateSnkReadyOrSrcReady(pe), nil
					}
				}
			case Discarded, DPMDiscarded:
				return stateHardReset, nil
			}
			if pe.Timers.IsExpired(pdtimer.PESenderResponse) {
				pe.Timers.Disable(pdtimer.PESenderResponse)
				return stateHardReset, nil
			}
			return nil, nil
		},
	}

	stateDataResetEvaluate = &state{
		Name: "data-reset-evaluate",
		Enter: func(pe *Engine) (*state, error) {
			if err := pe.PRL.SendCtrlMessage(pdmsg.SOP, pdmsg.TypeAccept); err != nil {
				return nil, err
			}
			pe.startTimer(pdtimer.PEDataResetFail, tDataResetFail)
			return stateDataResetComplete, nil
		},
	}

	stateDataResetComplete = &state{
		Name: "data-reset-complete",
		Enter: func(pe *Engine) (*state, error) {
			pe.Port.ClearFlag(port.FlagModalOperation)
			return nil, nil
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			if e&wireEventRx != 0 && m.Type() == pdmsg.TypeDataResetComplete {
				pe.Timers.Disable(pdtimer.PEDataResetFail)
				return stateSnkReadyOrSrcReady(pe), nil
			}
			if pe.Timers.IsExpired(pdtimer.PEDataResetFail) {
				pe.Timers.Disable(pdtimer.PEDataResetFail)
				return stateHardReset, nil
			}
			return nil, nil
		},
	}
}
