package pe

import (
	"github.com/oxplot/usbpd/collab"
	"github.com/oxplot/usbpd/pdmsg"
	"github.com/oxplot/usbpd/pdtimer"
	"github.com/oxplot/usbpd/port"
)

var (
	stateHardReset                  *state
	stateTransitionToDefault        *state
	stateTransitionToDefaultSrc     *state
	stateTransitionToDefaultSnkOff  *state
	stateTransitionToDefaultSnkOn   *state
	stateSoftReset                  *state
	stateSendSoftReset              *state
)

func init() {
	stateHardReset = &state{
		Name: "hard-reset",
		Enter: func(pe *Engine) (*state, error) {
			pe.hardResetCounter++
			pe.notify(EventHardReset)
			if pe.Board != nil {
				pe.Board.NotifyEvent(pe.Port.Index, collab.StatusEventHardReset)
			}
			if err := pe.PRL.ExecuteHardReset(); err != nil {
				return nil, err
			}
			pe.startTimer(pdtimer.PEPSHardReset, tPSHardReset)
			pe.startTimer(pdtimer.PENoResponse, tNoResponse)
			return nil, nil
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			if pe.Timers.IsExpired(pdtimer.PEPSHardReset) && pe.PRL.HardResetComplete() {
				pe.Timers.Disable(pdtimer.PEPSHardReset)
				pe.Timers.Disable(pdtimer.PENoResponse)
				return stateTransitionToDefault, nil
			}
			if pe.Timers.IsExpired(pdtimer.PENoResponse) {
				pe.Timers.Disable(pdtimer.PENoResponse)
				return stateTransitionToDefault, nil
			}
			return nil, nil
		},
	}

	stateTransitionToDefault = &state{
		Name: "transition-to-default",
		Enter: func(pe *Engine) (*state, error) {
			// Exits every alt-mode, resets discovery and the explicit
			// contract, per spec.md §4.3.4; the role-appropriate VBUS
			// sequencing below runs before restarting at the
			// role-appropriate startup state.
			pe.Port.Detach()
			pe.explicitContract = false
			pe.waitingOnSource = false
			if pe.allocHook != nil {
				pe.allocHook.ClearSinkMaxPDO(pe.Port.Index)
			}
			if pe.Board != nil {
				pe.Board.NotifyEvent(pe.Port.Index, collab.StatusEventDisconnected)
			}
			if pe.Port.PowerRole == port.RoleSource {
				return stateTransitionToDefaultSrc, nil
			}
			return stateTransitionToDefaultSnkOff, nil
		},
	}

	// stateTransitionToDefaultSrc drops VBUS, waits out the source
	// recovery window, then re-enables the default 5V supply before
	// restarting source startup, per spec.md §4.3.4.
	stateTransitionToDefaultSrc = &state{
		Name: "transition-to-default-src",
		Enter: func(pe *Engine) (*state, error) {
			if pe.Board != nil {
				if err := pe.Board.PowerSupplyReset(pe.Port.Index); err != nil {
					return nil, err
				}
			}
			pe.startTimer(pdtimer.PEPSTransition, tSrcRecoverTurnOn)
			return nil, nil
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			if pe.Timers.IsExpired(pdtimer.PEPSTransition) {
				pe.Timers.Disable(pdtimer.PEPSTransition)
				if pe.Board != nil {
					if err := pe.Board.SetPowerSupplyReady(pe.Port.Index); err != nil {
						return nil, err
					}
				}
				return stateSrcStartup, nil
			}
			return nil, nil
		},
	}

	// stateTransitionToDefaultSnkOff waits for VBUS to actually disappear
	// (vSafe0V) before the sink proceeds, bounded by tSafe0V in case the
	// source never drops it.
	stateTransitionToDefaultSnkOff = &state{
		Name: "transition-to-default-snk-vbus-off",
		Enter: func(pe *Engine) (*state, error) {
			if pe.Board != nil {
				if err := pe.Board.EnableAutoDischargeDisconnect(pe.Port.Index, true); err != nil {
					return nil, err
				}
			}
			pe.startTimer(pdtimer.PEPSTransition, tSafe0V)
			return nil, nil
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			if pe.Board != nil {
				if present, err := pe.Board.CheckVbusLevel(pe.Port.Index, vSafe0VMV); err == nil && !present {
					pe.Timers.Disable(pdtimer.PEPSTransition)
					return stateTransitionToDefaultSnkOn, nil
				}
			}
			if pe.Timers.IsExpired(pdtimer.PEPSTransition) {
				pe.Timers.Disable(pdtimer.PEPSTransition)
				return stateTransitionToDefaultSnkOn, nil
			}
			return nil, nil
		},
	}

	// stateTransitionToDefaultSnkOn waits for VBUS to return (vSafe5V)
	// before restoring the charger ceiling/auto-discharge-disconnect and
	// restarting sink startup, bounded by tSrcRecoverTurnOn.
	stateTransitionToDefaultSnkOn = &state{
		Name: "transition-to-default-snk-vbus-on",
		Enter: func(pe *Engine) (*state, error) {
			pe.startTimer(pdtimer.PEPSTransition, tSrcRecoverTurnOn)
			return nil, nil
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			vbusBack := false
			if pe.Board != nil {
				if present, err := pe.Board.CheckVbusLevel(pe.Port.Index, vSafe5VMV); err == nil && present {
					vbusBack = true
				}
			}
			if !vbusBack && !pe.Timers.IsExpired(pdtimer.PEPSTransition) {
				return nil, nil
			}
			pe.Timers.Disable(pdtimer.PEPSTransition)
			if pe.Board != nil {
				if err := pe.Board.EnableAutoDischargeDisconnect(pe.Port.Index, false); err != nil {
					return nil, err
				}
				if cm := pe.chargeManager(); cm != nil {
					cm.SetCeilingMA(pe.Port.Index, 0)
				}
			}
			return stateSnkStartup, nil
		},
	}

	stateSendSoftReset = &state{
		Name: "send-soft-reset",
		Enter: func(pe *Engine) (*state, error) {
			return nil, pe.sendCtrl(pdmsg.TypeSoftReset, pdtimer.PESenderResponse)
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			switch pe.senderResponse() {
			case SendPending, Sent:
				if e&wireEventRx != 0 && m.Type() == pdmsg.TypeAccept {
					if pe.Port.PowerRole == port.RoleSource {
						return stateSrcStartup, nil
					}
					return stateSnkStartup, nil
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

	// stateSoftReset handles an inbound Soft Reset: Accept it and restart
	// from the role-appropriate startup state, per spec.md §4.3.4.
	stateSoftReset = &state{
		Name: "soft-reset",
		Enter: func(pe *Engine) (*state, error) {
			if err := pe.PRL.SendCtrlMessage(pdmsg.SOP, pdmsg.TypeAccept); err != nil {
				return nil, err
			}
			if pe.Port.PowerRole == port.RoleSource {
				return stateSrcStartup, nil
			}
			return stateSnkStartup, nil
		},
	}
}
