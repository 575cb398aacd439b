package pdmsg

// StatusDataBlock is the Status extended data message payload, spec.md
// §6.1. It is 6 bytes in r3.0 and 7 bytes in r3.1 (adding
// PowerStateChange).
type StatusDataBlock struct {
	InternalTemp         uint8
	PresentInput         uint8
	PresentBatteryInput  uint8
	EventFlags           uint8
	TemperatureStatus    uint8
	PowerStatus          uint8
	PowerStateChange     uint8 // carried only in the 7-byte (r3.1) block; zero otherwise
}

// SDBLenR30 and SDBLenR20 are the wire lengths of a status data block with
// and without the trailing PowerStateChange byte.
const (
	SDBLenR30 = 7
	SDBLenR20 = 6
)

// Encode writes the status data block to b, returning the number of bytes
// written. If r31 is false the trailing PowerStateChange byte is omitted.
func (s StatusDataBlock) Encode(b []byte, r31 bool) int {
	b[0] = s.InternalTemp
	b[1] = s.PresentInput
	b[2] = s.PresentBatteryInput
	b[3] = s.EventFlags
	b[4] = s.TemperatureStatus
	b[5] = s.PowerStatus
	if r31 {
		b[6] = s.PowerStateChange
		return SDBLenR30
	}
	return SDBLenR20
}

// DecodeStatusDataBlock parses a status data block from b. b may be either
// 6 or 7 bytes long.
func DecodeStatusDataBlock(b []byte) StatusDataBlock {
	s := StatusDataBlock{
		InternalTemp:        b[0],
		PresentInput:        b[1],
		PresentBatteryInput: b[2],
		EventFlags:          b[3],
		TemperatureStatus:   b[4],
		PowerStatus:         b[5],
	}
	if len(b) >= SDBLenR30 {
		s.PowerStateChange = b[6]
	}
	return s
}

// Present Input bits, USB-PD r3.1 §6.5.5.2.
const (
	PresentInputExternalPower    = 1 << 1
	PresentInputInternalPower    = 1 << 2
	PresentInputUsingPDSource    = 1 << 3
	PresentInputUsingNonPDSource = 1 << 4
)

// ChipsetPowerState mirrors the chipset states reported via
// PowerStateChange on a PD r3.1 source, per spec.md §6.2 (S0/S3/S5/G3).
type ChipsetPowerState uint8

const (
	ChipsetPowerStateS0 ChipsetPowerState = iota
	ChipsetPowerStateS3
	ChipsetPowerStateS5OrG3
)
