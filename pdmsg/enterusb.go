package pdmsg

// EnterUSBDataObject encodes the Enter_USB Data Object of USB-PD r3.1
// Table 6-47, used by a DFP to request the partner/cable enter a USB4 or
// USB3/2-only data connection.
type EnterUSBDataObject uint32

// USBMode is the Enter_USB mode field.
type USBMode uint8

const (
	USBModeUSB2        USBMode = 0
	USBModeUSB3        USBMode = 1
	USBModeUSB4        USBMode = 2
)

// Mode returns the 3-bit USB Mode field.
func (o EnterUSBDataObject) Mode() USBMode {
	return USBMode((o >> 28) & 0b111)
}

// SetMode sets the USB Mode field.
func (o *EnterUSBDataObject) SetMode(m USBMode) {
	*o = (*o &^ (0b111 << 28)) | EnterUSBDataObject(m&0b111)<<28
}

// CableSpeed returns the Cable Speed field.
func (o EnterUSBDataObject) CableSpeed() uint8 {
	return uint8((o >> 18) & 0b111)
}

// SetCableSpeed sets the Cable Speed field.
func (o *EnterUSBDataObject) SetCableSpeed(s uint8) {
	*o = (*o &^ (0b111 << 18)) | EnterUSBDataObject(s&0b111)<<18
}

// CableType describes the cable type field of an Enter_USB DO.
type CableType uint8

const (
	CableTypePassive CableType = 0
	CableTypeActiveReDriver CableType = 1
	CableTypeActiveReTimer  CableType = 2
	CableTypeOptical        CableType = 3
)

// CableType returns the 2-bit cable type field.
func (o EnterUSBDataObject) CableType() CableType {
	return CableType((o >> 16) & 0b11)
}

// SetCableType sets the cable type field.
func (o *EnterUSBDataObject) SetCableType(t CableType) {
	*o = (*o &^ (0b11 << 16)) | EnterUSBDataObject(t&0b11)<<16
}

// CableCurrent returns the 2-bit cable current field.
func (o EnterUSBDataObject) CableCurrent() uint8 {
	return uint8((o >> 14) & 0b11)
}

// SetCableCurrent sets the cable current field.
func (o *EnterUSBDataObject) SetCableCurrent(c uint8) {
	*o = (*o &^ (0b11 << 14)) | EnterUSBDataObject(c&0b11)<<14
}

// bit accessors for the single-bit capability flags of Table 6-47.
const (
	enterUSBPCIeSupported  = 1 << 13
	enterUSBDPSupported    = 1 << 12
	enterUSBTBTSupported   = 1 << 11
	enterUSBHostPresent    = 1 << 10
	enterUSB3DRDCap        = 1 << 9
	enterUSB4DRDCap        = 1 << 8
)

// PCIeSupported returns the PCIe Supported bit.
func (o EnterUSBDataObject) PCIeSupported() bool { return uint32(o)&enterUSBPCIeSupported != 0 }

// SetPCIeSupported sets the PCIe Supported bit.
func (o *EnterUSBDataObject) SetPCIeSupported(v bool) { o.setBit(enterUSBPCIeSupported, v) }

// DPSupported returns the DP Supported bit.
func (o EnterUSBDataObject) DPSupported() bool { return uint32(o)&enterUSBDPSupported != 0 }

// SetDPSupported sets the DP Supported bit.
func (o *EnterUSBDataObject) SetDPSupported(v bool) { o.setBit(enterUSBDPSupported, v) }

// TBTSupported returns the TBT Supported bit.
func (o EnterUSBDataObject) TBTSupported() bool { return uint32(o)&enterUSBTBTSupported != 0 }

// SetTBTSupported sets the TBT Supported bit.
func (o *EnterUSBDataObject) SetTBTSupported(v bool) { o.setBit(enterUSBTBTSupported, v) }

// HostPresent returns the Host Present bit.
func (o EnterUSBDataObject) HostPresent() bool { return uint32(o)&enterUSBHostPresent != 0 }

// SetHostPresent sets the Host Present bit.
func (o *EnterUSBDataObject) SetHostPresent(v bool) { o.setBit(enterUSBHostPresent, v) }

// USB3DRDCapable returns the USB3 DRD capable bit.
func (o EnterUSBDataObject) USB3DRDCapable() bool { return uint32(o)&enterUSB3DRDCap != 0 }

// SetUSB3DRDCapable sets the USB3 DRD capable bit.
func (o *EnterUSBDataObject) SetUSB3DRDCapable(v bool) { o.setBit(enterUSB3DRDCap, v) }

// USB4DRDCapable returns the USB4 DRD capable bit.
func (o EnterUSBDataObject) USB4DRDCapable() bool { return uint32(o)&enterUSB4DRDCap != 0 }

// SetUSB4DRDCapable sets the USB4 DRD capable bit.
func (o *EnterUSBDataObject) SetUSB4DRDCapable(v bool) { o.setBit(enterUSB4DRDCap, v) }

func (o *EnterUSBDataObject) setBit(bit uint32, v bool) {
	if v {
		*o |= EnterUSBDataObject(bit)
	} else {
		*o &^= EnterUSBDataObject(bit)
	}
}
