package pdmsg

// PDO is a generic Power Data Object. Based on its type, it should be
// converted to a specific PDO type to allow extracting various fields.
type PDO uint32

// Type returns the type of the power data object.
func (o PDO) Type() PDOType {
	h := (o >> 30) & 0b11
	if h == 0b11 {
		return PDOType((((o >> 28) & 0b11) << 3) | 0b100 | h)
	}
	return PDOType(h)
}

// PDOType represents the type of a power data object.
type PDOType uint8

// Power data object types.
const (
	PDOTypeFixedSupply    PDOType = 0b00
	PDOTypeBattery        PDOType = 0b01
	PDOTypeVariableSupply PDOType = 0b10
	PDOTypePPS            PDOType = 0b00111 // augmented power data object, APDO type 0 (PPS)
	PDOTypeEPRAVS         PDOType = 0b01111 // augmented power data object, APDO type 1 (EPR AVS)
)

// FixedSupplyPDO represents a Fixed Supply Power Data Object.
type FixedSupplyPDO uint32

// NewFixedSupplyPDO returns a new blank FixedSupplyPDO.
func NewFixedSupplyPDO() FixedSupplyPDO {
	return FixedSupplyPDO(0)
}

// Voltage returns voltage in millivolts.
func (o FixedSupplyPDO) Voltage() uint16 {
	return uint16(((o >> 10) & (1<<10 - 1)) * 50)
}

// SetVoltage will round the given voltage to the nearest 50mV.
func (o *FixedSupplyPDO) SetVoltage(v uint16) {
	*o = (*o & ^((FixedSupplyPDO(1)<<10 - 1) << 10)) | ((FixedSupplyPDO(v)/50)&(1<<10-1))<<10
}

// MaxCurrent returns maximum current in milliamps.
func (o FixedSupplyPDO) MaxCurrent() uint16 {
	return uint16((o & (1<<10 - 1)) * 10)
}

// SetMaxCurrent will round the given current to the nearest 10mA.
func (o *FixedSupplyPDO) SetMaxCurrent(v uint16) {
	*o = (*o & ^(FixedSupplyPDO(1)<<10 - 1)) | (FixedSupplyPDO(v)/10)&(1<<10-1)
}

// UnconstrainedPower returns true if the source's Unconstrained Power bit is
// set (the source is not relying on another port/battery to run).
func (o FixedSupplyPDO) UnconstrainedPower() bool {
	return o&(1<<27) != 0
}

// SetUnconstrainedPower sets the Unconstrained Power bit.
func (o *FixedSupplyPDO) SetUnconstrainedPower(v bool) {
	if v {
		*o |= 1 << 27
	} else {
		*o &^= 1 << 27
	}
}

// DualRoleData returns the Dual-Role Data bit (source can act as DFP or UFP).
func (o FixedSupplyPDO) DualRoleData() bool {
	return o&(1<<26) != 0
}

// EPRModeCapable returns true if the fixed 5V PDO's EPR Mode Capable bit is
// set, per spec.md §4.3.8 (only meaningful on the 5V PDO).
func (o FixedSupplyPDO) EPRModeCapable() bool {
	return o&(1<<23) != 0
}

// SetEPRModeCapable sets the EPR Mode Capable bit.
func (o *FixedSupplyPDO) SetEPRModeCapable(v bool) {
	if v {
		*o |= 1 << 23
	} else {
		*o &^= 1 << 23
	}
}

// PPSPDO represents a Programmable Power Supply augmented Power Data Object.
type PPSPDO uint32

// NewPPSPDO returns a new blank programmable power supply power data object.
func NewPPSPDO() PPSPDO {
	return PPSPDO(0b11) << 30
}

// MinVoltage returns minimum voltage in millivolts.
func (o PPSPDO) MinVoltage() uint16 {
	return ((uint16(o) >> 8) & (uint16(1)<<8 - 1)) * 100
}

// SetMinVoltage sets the minimum voltage in millivolts, rounded to the
// nearest 100mV.
func (o *PPSPDO) SetMinVoltage(v uint16) {
	*o = (*o & ^((PPSPDO(1)<<8 - 1) << 8)) | PPSPDO((v/100)&(1<<8-1))<<8
}

// MaxVoltage returns maximum voltage in millivolts.
func (o PPSPDO) MaxVoltage() uint16 {
	return (uint16(o>>17) & (uint16(1)<<8 - 1)) * 100
}

// SetMaxVoltage sets the maximum voltage in millivolts, rounded to the
// nearest 100mV.
func (o *PPSPDO) SetMaxVoltage(v uint16) {
	*o = (*o & ^((PPSPDO(1)<<8 - 1) << 17)) | PPSPDO((v/100)&(1<<8-1))<<17
}

// MaxCurrent returns maximum current in milliamps.
func (o PPSPDO) MaxCurrent() uint16 {
	return (uint16(o) & (uint16(1)<<7 - 1)) * 50
}

// SetMaxCurrent sets the maximum current in milliamps, rounded to the
// nearest 50mA.
func (o *PPSPDO) SetMaxCurrent(c uint16) {
	*o = (*o & ^(PPSPDO(1)<<8 - 1)) | PPSPDO((c/50)&(1<<7-1))
}

// IsPowerLimited returns true if the PPS Power Limited bit is set, meaning
// the source may not be able to supply MaxCurrent at all voltages in range.
func (o PPSPDO) IsPowerLimited() bool {
	return o&(1<<16) != 0
}

// SetPowerLimited sets the PPS Power Limited bit.
func (o *PPSPDO) SetPowerLimited(v bool) {
	if v {
		*o |= 1 << 16
	} else {
		*o &^= 1 << 16
	}
}

// RequestDO represents a Request Data Object.
type RequestDO uint32

// EmptyRequestDO is returned by device policy managers to indicate that they
// do not accept any of the power profiles supported by the power source.
const EmptyRequestDO RequestDO = 0

// SelectedObjectPosition returns the position number of the PDO in the
// source capability message, starting at 1.
func (o RequestDO) SelectedObjectPosition() uint8 {
	return uint8(o >> 28)
}

// SetSelectedObjectPosition sets the position number of the PDO in the
// source capability message, starting at 1.
func (o *RequestDO) SetSelectedObjectPosition(p uint8) {
	*o = (*o & ^(RequestDO(0b1111) << 28)) | RequestDO(p)<<28
}

// CapabilityMismatch returns true if the capability mismatch flag of the RDO
// is set.
func (o RequestDO) CapabilityMismatch() bool {
	return o&(1<<26) != 0
}

// SetCapabilityMismatch sets the capability mismatch flag of the RDO.
func (o *RequestDO) SetCapabilityMismatch(m bool) {
	var b RequestDO
	if m {
		b = 1 << 26
	}
	*o = (*o & ^(RequestDO(1) << 26)) | b
}

// EPRModeCapable returns the EPR Mode Capable bit of the RDO, per spec.md
// §4.3.8's precondition that "the last RDO also carried that bit".
func (o RequestDO) EPRModeCapable() bool {
	return o&(1<<23) != 0
}

// SetEPRModeCapable sets the EPR Mode Capable bit of the RDO.
func (o *RequestDO) SetEPRModeCapable(v bool) {
	if v {
		*o |= 1 << 23
	} else {
		*o &^= 1 << 23
	}
}

// FixedOperatingCurrent returns current in milliamps for fixed request
// objects.
func (o RequestDO) FixedOperatingCurrent() uint16 {
	return uint16(((o >> 10) & (1<<10 - 1)) * 10)
}

// SetFixedOperatingCurrent sets current in milliamps, rounded to the nearest
// 10mA, for fixed request objects.
func (o *RequestDO) SetFixedOperatingCurrent(c uint16) {
	*o = (*o & ^((RequestDO(1)<<10 - 1) << 10)) | ((RequestDO(c)/10)&(1<<10-1))<<10
}

// FixedMaxOperatingCurrent returns current in milliamps for fixed request
// objects without GiveBack support.
func (o RequestDO) FixedMaxOperatingCurrent() uint16 {
	return uint16((o & (1<<10 - 1)) * 10)
}

// SetFixedMaxOperatingCurrent sets current in milliamps, rounded to the
// nearest 10mA, for fixed request objects without GiveBack support.
func (o *RequestDO) SetFixedMaxOperatingCurrent(c uint16) {
	*o = (*o & ^(RequestDO(1)<<10 - 1)) | ((RequestDO(c) / 10) & (1<<10 - 1))
}

// PPSOutputVoltage returns voltage in millivolts for PPS data objects.
func (o RequestDO) PPSOutputVoltage() uint16 {
	return uint16(((o >> 9) & (1<<12 - 1)) * 20)
}

// SetPPSOutputVoltage sets voltage in millivolts, rounded to the nearest
// 20mV, for PPS data objects.
func (o *RequestDO) SetPPSOutputVoltage(v uint16) {
	*o = (*o & ^((RequestDO(1)<<12 - 1) << 9)) | ((RequestDO(v)/20)&(1<<12-1))<<9
}

// PPSOutputCurrent returns current in milliamps for PPS data objects.
func (o RequestDO) PPSOutputCurrent() uint16 {
	return uint16((o & (1<<7 - 1)) * 50)
}

// SetPPSOutputCurrent sets current in milliamps, rounded to the nearest
// 50mA, for PPS data objects.
func (o *RequestDO) SetPPSOutputCurrent(v uint16) {
	*o = (*o & ^(RequestDO(1)<<7 - 1)) | (RequestDO(v)/50)&(1<<7-1)
}
