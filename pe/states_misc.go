package pe

import (
	"github.com/oxplot/usbpd/pdmsg"
	"github.com/oxplot/usbpd/pdtimer"
	"github.com/oxplot/usbpd/port"
)

var (
	stateGetSourceCapSend *state
	stateGetSinkCapSend  *state
	stateEnterUSBSend    *state
	stateGetStatusSend   *state
)

func init() {
	// stateGetSourceCapSend lets either role poll the partner's current
	// source capabilities outside of a fresh connection, spec.md §4.3.2.
	stateGetSourceCapSend = &state{
		Name: "get-source-cap-send",
		Enter: func(pe *Engine) (*state, error) {
			return nil, pe.sendCtrl(pdmsg.TypeGetSourceCap, pdtimer.PESenderResponse)
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			switch pe.senderResponse() {
			case SendPending, Sent:
				if e&wireEventRx != 0 && m.Type() == pdmsg.TypeSourceCap && m.IsData() {
					pe.Timers.Disable(pdtimer.PESenderResponse)
					n := int(m.DataObjectCount())
					pe.Port.SrcCaps.Count = n
					for i := 0; i < n; i++ {
						pe.Port.SrcCaps.PDO[i] = pdmsg.PDO(m.Data[i])
					}
					return stateSnkReadyOrSrcReady(pe), nil
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

	stateGetSinkCapSend = &state{
		Name: "get-sink-cap-send",
		Enter: func(pe *Engine) (*state, error) {
			return nil, pe.sendCtrl(pdmsg.TypeGetSinkCap, pdtimer.PESenderResponse)
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			switch pe.senderResponse() {
			case SendPending, Sent:
				if e&wireEventRx != 0 && m.Type() == pdmsg.TypeSinkCap && m.IsData() {
					pe.Timers.Disable(pdtimer.PESenderResponse)
					n := int(m.DataObjectCount())
					pe.Port.SnkCaps.Count = n
					for i := 0; i < n; i++ {
						pe.Port.SnkCaps.PDO[i] = pdmsg.PDO(m.Data[i])
					}
					return stateSnkReadyOrSrcReady(pe), nil
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

	// stateEnterUSBSend requests the partner enter a USB4/USB3 data mode;
	// Enter_USB has no Accept/Reject reply in the spec, so this returns to
	// Ready immediately once the message is queued.
	stateEnterUSBSend = &state{
		Name: "enter-usb-send",
		Enter: func(pe *Engine) (*state, error) {
			eudo := pdmsg.EnterUSBDataObject(0)
			eudo.SetMode(pdmsg.USBModeUSB4)
			if err := pe.PRL.SendDataMessage(pdmsg.SOP, pdmsg.TypeEnterUSB, []uint32{uint32(eudo)}); err != nil {
				return nil, err
			}
			pe.Port.SetFlag(port.FlagModalOperation)
			return stateSnkReadyOrSrcReady(pe), nil
		},
	}

	// stateGetStatusSend services DPMRequestGetStatus: DPM wants a fresh
	// read of the partner's Status Data Block (thermal/power/battery
	// flags) outside of the unsolicited ADO path, spec.md §6.2.
	stateGetStatusSend = &state{
		Name: "get-status-send",
		Enter: func(pe *Engine) (*state, error) {
			return nil, pe.sendCtrl(pdmsg.TypeGetStatus, pdtimer.PESenderResponse)
		},
		Process: func(pe *Engine, m pdmsg.Message, e wireEvent) (*state, error) {
			switch pe.senderResponse() {
			case SendPending, Sent:
				if e&wireEventRx != 0 && m.Type() == pdmsg.TypeExtStatus && m.IsExtended() {
					pe.Timers.Disable(pdtimer.PESenderResponse)
					pe.Port.PartnerStatus = pdmsg.DecodeStatusDataBlock(m.ExtPayload[:m.ExtLen])
					pe.Port.HavePartnerStatus = true
					return stateSnkReadyOrSrcReady(pe), nil
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
}
