package pdmsg

// AlertDataObject is the single data object of an Alert message, USB-PD
// r3.1 §6.5.2.
type AlertDataObject uint32

// Alert type bits, a subset relevant to spec.md §6.2/§4.5.3. The type
// field occupies bits 31-25, clear of the low-byte event type read by
// ExtendedAlertEventType.
const (
	ADOBatteryStatusChange      = 1 << 25
	ADOOCP                      = 1 << 26
	ADOOTP                      = 1 << 27
	ADOOperatingConditionChange = 1 << 28
	ADOSourceInputChange        = 1 << 29
	ADOOVP                      = 1 << 30
	ADOExtendedAlertEvent       = 1 << 31
	ADOPowerStateChange         = 1 << 8
)

// HasType returns true if the given alert type bit is set.
func (o AlertDataObject) HasType(bit uint32) bool {
	return uint32(o)&bit != 0
}

// FixedBatteries returns the fixed-battery bitmap (bits 23-20).
func (o AlertDataObject) FixedBatteries() uint8 {
	return uint8((o >> 20) & 0xf)
}

// HotSwappableBatteries returns the hot-swappable-battery bitmap (bits
// 19-16).
func (o AlertDataObject) HotSwappableBatteries() uint8 {
	return uint8((o >> 16) & 0xf)
}

// ExtendedAlertEventType is the sub-code of an Extended Alert Event,
// carried in the low byte of the ADO when ADOExtendedAlertEvent is set.
type ExtendedAlertEventType uint8

// Power button / USB-PD extended alert sub-codes, spec.md §4.5.3/§6.2.
const (
	ExtendedAlertPowerButtonPress   ExtendedAlertEventType = 1
	ExtendedAlertPowerButtonRelease ExtendedAlertEventType = 2
)

// ExtendedAlertEventType returns the low byte of the ADO, valid only when
// HasType(ADOExtendedAlertEvent) is true.
func (o AlertDataObject) ExtendedAlertEventType() ExtendedAlertEventType {
	return ExtendedAlertEventType(o & 0xff)
}

// NewPowerStateChangeADO builds an Alert ADO with ADOPowerStateChange set,
// per spec.md §6.2 ("emit ADOs with ADO_POWER_STATE_CHANGE on every
// transition between S0, S3, S5/G3"). The chipset state itself is carried
// out-of-band in the Status Data Block's PowerStateChange byte; the ADO
// only signals that a Get_Status is warranted.
func NewPowerStateChangeADO() AlertDataObject {
	return AlertDataObject(ADOPowerStateChange)
}
