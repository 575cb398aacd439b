// Package altmode implements the per-SVID alternate-mode responders of
// spec.md §4.4: DisplayPort, Thunderbolt-compat and USB4. Each mode exposes
// the same small protocol the device policy manager drives every run tick
// (setup_next_vdm / vdm_acked / vdm_naked / is_active / exit_mode_request),
// mirrored here from tbt_setup_next_vdm and friends in
// usb_tbt_alt_mode.h/usb_mode.c.
package altmode

import (
	"github.com/oxplot/usbpd/pdmsg"
	"github.com/oxplot/usbpd/port"
)

// Status is the outcome of a Mode's SetupNextVDM call, equivalent to the
// original's enum dpm_msg_setup_status.
type Status int

const (
	StatusSuccess Status = iota
	StatusError
	StatusUnsupported
	// StatusMuxWait is returned when the USB mux has not yet confirmed a
	// pending state change; the caller must retry on the next DPM cycle
	// rather than treat this as a failure.
	StatusMuxWait
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusUnsupported:
		return "unsupported"
	case StatusMuxWait:
		return "mux_wait"
	default:
		return "unknown"
	}
}

// SVIDs of the alternate modes this package implements.
const (
	SVIDDisplayPort = 0xff01
	SVIDIntel       = 0x8087 // Thunderbolt / USB4 cable-mode VDOs
)

// Mode is the uniform interface every alt-mode responder implements, one
// instance per SVID, shared across every port it is wired to (per-port
// progress is tracked internally, keyed by port.Index).
type Mode interface {
	// SVID is the Standard/Vendor ID this mode answers for.
	SVID() uint16

	// SetupNextVDM builds the next outbound VDM this mode wants to send for
	// p, if any. ok is false when the mode has nothing to send right now
	// (not the same as StatusError — the caller simply moves on).
	SetupNextVDM(p *port.Port) (status Status, sop pdmsg.SOPType, vdm []uint32, ok bool)

	// VDMAcked reports a Structured VDM ACK received in response to a VDM
	// this mode previously sent via SetupNextVDM.
	VDMAcked(p *port.Port, sop pdmsg.SOPType, vdos []uint32)

	// VDMNaked reports a NAK, BUSY, Not_Supported or response-timeout for a
	// request this mode previously sent.
	VDMNaked(p *port.Port, sop pdmsg.SOPType, cmd pdmsg.Command)

	// IsActive reports whether the mode is currently entered (not merely
	// discovered) on p.
	IsActive(p *port.Port) bool

	// ExitModeRequest asks the mode to leave, if active, on its next
	// SetupNextVDM call.
	ExitModeRequest(p *port.Port)
}

// vdmHeader builds a Structured VDM header addressed to svid, matching the
// encoding pdmsg/vdm.go already provides bit-for-bit; altmode only chooses
// which fields to set.
func vdmHeader(svid uint16, cmd pdmsg.Command, ct pdmsg.CommandType, objPos uint8) uint32 {
	var h pdmsg.VDMHeader
	h.SetVID(svid)
	h.SetStructured(true)
	h.SetVersion(pdmsg.SVDMVersion20)
	h.SetObjectPosition(objPos)
	h.SetCommandType(ct)
	h.SetCommand(cmd)
	return uint32(h)
}

// modesForSVID returns the raw mode VDOs p's partner advertised for svid on
// sop, or nil if Discover Modes hasn't completed (or found none) for it.
func modesForSVID(p *port.Port, sop pdmsg.SOPType, svid uint16) []uint32 {
	return p.Discovery[sop].Modes[svid]
}

// HasSVID reports whether p's partner advertised svid during Discover SVIDs
// on sop; exported for package dpm's mode-entry fan-out priority decision.
func HasSVID(p *port.Port, sop pdmsg.SOPType, svid uint16) bool {
	return hasSVID(p, sop, svid)
}

// hasSVID reports whether p's partner advertised svid during Discover SVIDs
// on sop.
func hasSVID(p *port.Port, sop pdmsg.SOPType, svid uint16) bool {
	if !p.Discovery[sop].SVIDsReceived {
		return false
	}
	for _, v := range p.Discovery[sop].SVIDs {
		if v == svid {
			return true
		}
	}
	return false
}
