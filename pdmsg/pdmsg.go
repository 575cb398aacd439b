// Package pdmsg defines types to encode and decode USB-C Power Delivery
// messages: control, data, structured VDM, Enter_USB, extended (chunked)
// messages, Status/Alert/Battery data objects, across all SOP classes.
package pdmsg

const (
	// MaxDataObjects is the maximum number of data objects that can be stored in
	// a non-extended message, as set by the standard.
	MaxDataObjects = 7

	// MaxMessageBytes is the maximum number of bytes in a non-extended message,
	// including the 2-byte header.
	MaxMessageBytes = 2 + 4*MaxDataObjects

	// MaxExtendedMsgLen is PD_MAX_EXTENDED_MSG_LEN: the largest payload an
	// extended message may carry once fully reassembled.
	MaxExtendedMsgLen = 260

	// MaxExtendedMsgChunkLen is the payload size of a single extended message
	// chunk (26 bytes of data per PD r3 chunking rules).
	MaxExtendedMsgChunkLen = 26
)

// SOPType identifies the PD packet class a message is sent/received on.
type SOPType uint8

// SOP classes, per spec.md §3.3/§6.1.
const (
	SOP SOPType = iota
	SOPPrime
	SOPDoublePrime
	SOPDebugPrime
	SOPDebugDoublePrime
)

func (s SOPType) String() string {
	switch s {
	case SOP:
		return "SOP"
	case SOPPrime:
		return "SOP'"
	case SOPDoublePrime:
		return "SOP''"
	case SOPDebugPrime:
		return "SOP_DBG'"
	case SOPDebugDoublePrime:
		return "SOP_DBG''"
	default:
		return "SOP(invalid)"
	}
}

// IsCablePlug returns true if the SOP class addresses a cable plug rather
// than the port partner.
func (s SOPType) IsCablePlug() bool {
	return s == SOPPrime || s == SOPDoublePrime || s == SOPDebugPrime || s == SOPDebugDoublePrime
}

// Message represents a power delivery message: a 16-bit header, up to
// MaxDataObjects 32-bit data objects, and — for extended messages — a
// reassembled byte payload.
//
// Size of Data is fixed to the maximum allowable non-extended message size,
// to avoid heap allocation on receipt of ordinary messages.
type Message struct {
	Header uint16
	Data   [MaxDataObjects]uint32

	// ExtHeader and ExtPayload are only meaningful if IsExtended() is true.
	// ExtPayload holds the fully reassembled extended message body; chunk
	// reassembly itself is the responsibility of the PRL collaborator
	// (spec.md §6.3) and is not duplicated here.
	ExtHeader  ExtendedHeader
	ExtPayload [MaxExtendedMsgLen]byte
	ExtLen     uint16
}

// ToBytes serializes a non-extended message to a byte slice and returns the
// number of bytes written. Extended messages must be chunked by the caller
// using ExtHeader before transmission; ToBytes does not chunk.
func (m Message) ToBytes(b []byte) uint8 {
	b[0] = byte(m.Header & 0xff)
	b[1] = byte((m.Header >> 8) & 0xff)
	c := m.DataObjectCount()
	for i, d := range m.Data[:c] {
		b[2+i*4] = byte(d & 0xff)
		b[3+i*4] = byte((d >> 8) & 0xff)
		b[4+i*4] = byte((d >> 16) & 0xff)
		b[5+i*4] = byte((d >> 24) & 0xff)
	}
	return 2 + c*4
}

// IsExtended returns true if the message has its extended flag set.
func (m Message) IsExtended() bool {
	return m.Header&(1<<15) != 0
}

// SetExtended sets the extended flag in the message.
func (m *Message) SetExtended(e bool) {
	var b uint16
	if e {
		b = 1 << 15
	}
	m.Header = (m.Header & ^(uint16(1) << 15)) | b
}

// ID returns the message ID.
func (m Message) ID() uint8 {
	return uint8((m.Header >> 9) & 0b111)
}

// SetID sets the message ID.
func (m *Message) SetID(id uint8) {
	m.Header = (m.Header & ^(uint16(0b111) << 9)) | (uint16(id) << 9)
}

// DataObjectCount returns the number of data objects in the message.
func (m Message) DataObjectCount() uint8 {
	return uint8((m.Header >> 12) & 0b111)
}

// SetDataObjectCount sets the number of data objects in the message.
func (m *Message) SetDataObjectCount(n uint8) {
	m.Header = (m.Header & ^(uint16(0b111) << 12)) | (uint16(n) << 12)
}

// IsData returns true if the message is a data message, otherwise it's a
// control message.
func (m Message) IsData() bool {
	return m.DataObjectCount() > 0 && !m.IsExtended()
}

// Type returns the message type. As data and control messages share the
// same value range for some types, the caller must check IsData/IsExtended
// in addition to Type to determine the correct interpretation.
func (m Message) Type() Type {
	return Type(m.Header & 0b11111)
}

// SetType sets the message type.
func (m *Message) SetType(t Type) {
	m.Header = (m.Header & ^uint16(0b11111)) | uint16(t)
}

// Type represents the PD message type. For control messages, the value is
// equivalent to that of the PD spec. Actual message type requires
// determining if the message is control, data, or extended using IsData()
// and IsExtended().
type Type uint8

// Control message types.
const (
	TypeGoodCRC         Type = 0b00001
	TypeAccept          Type = 0b00011
	TypeReject          Type = 0b00100
	TypePing            Type = 0b00101
	TypePSReady         Type = 0b00110
	TypeGetSourceCap    Type = 0b00111
	TypeGetSinkCap      Type = 0b01000
	TypeDRSwap          Type = 0b01001
	TypePRSwap          Type = 0b01010
	TypeVconnSwap       Type = 0b01011
	TypeWait            Type = 0b01100
	TypeSoftReset       Type = 0b01101
	TypeDataReset       Type = 0b01110
	TypeDataResetComplete Type = 0b01111
	TypeNotSupported    Type = 0b10000
	TypeGetSourceCapExt Type = 0b10001
	TypeGetStatus       Type = 0b10010
	TypeFRSwap          Type = 0b10011
	TypeGetPPSStatus    Type = 0b10100
	TypeGetCountryCodes Type = 0b10101
	TypeGetSinkCapExt   Type = 0b10110
	TypeGetSourceInfo   Type = 0b10111
	TypeGetRevision     Type = 0b11000
)

// Data message types.
const (
	TypeSourceCap         Type = 0b00001
	TypeRequest           Type = 0b00010
	TypeBIST              Type = 0b00011
	TypeSinkCap           Type = 0b00100
	TypeBatteryStatusData Type = 0b00101
	TypeAlert             Type = 0b00110
	TypeGetCountryInfo    Type = 0b00111
	TypeEnterUSB          Type = 0b01000
	TypeEPRRequest        Type = 0b01001
	TypeEPRMode           Type = 0b01010
	TypeSourceInfo        Type = 0b01011
	TypeRevisionMsg       Type = 0b01100
	TypeVendorDefined     Type = 0b01111
)

// Extended message types (carried in the extended header's message type
// field, not the base header's Type field — exposed here for convenience
// of callers that parse the extended header themselves).
const (
	TypeExtSourceCapExt           Type = 0b00001
	TypeExtStatus                 Type = 0b00010
	TypeExtGetBatteryCap          Type = 0b00011
	TypeExtGetBatteryStatus       Type = 0b00100
	TypeExtBatteryCapabilities    Type = 0b00101
	TypeExtGetManufacturerInfo    Type = 0b00110
	TypeExtManufacturerInfo       Type = 0b00111
	TypeExtSecurityRequest        Type = 0b01000
	TypeExtSecurityResponse       Type = 0b01001
	TypeExtFirmwareUpdateRequest  Type = 0b01010
	TypeExtFirmwareUpdateResponse Type = 0b01011
	TypeExtPPSStatus              Type = 0b01100
	TypeExtCountryInfo            Type = 0b01101
	TypeExtCountryCodes           Type = 0b01110
	TypeExtSinkCapExt             Type = 0b01111
	TypeExtExtendedControl        Type = 0b10000
	TypeExtEPRSourceCap           Type = 0b10001
	TypeExtEPRSinkCap             Type = 0b10010
)

// ExtendedControlType is the single data byte of an Extended_Control
// message (used for EPR_KeepAlive/_Ack among others).
type ExtendedControlType uint8

const (
	ExtendedControlEPRKeepAlive    ExtendedControlType = 0
	ExtendedControlEPRKeepAliveAck ExtendedControlType = 1
)

// Revision returns the power delivery revision number of the message.
func (m Message) Revision() Revision {
	return Revision((m.Header >> 6) & 0b11)
}

// SetRevision sets the power delivery revision number of the message.
func (m *Message) SetRevision(r Revision) {
	m.Header = (m.Header & ^(uint16(0b11) << 6)) | uint16(r<<6)
}

// Revision represents the power delivery revision number of a message.
type Revision uint8

// Power delivery revision numbers.
const (
	Revision10 Revision = 0b00
	Revision20 Revision = 0b01
	Revision30 Revision = 0b10
)

// PowerRole returns the power role of the sender of the message.
func (m Message) PowerRole() PowerRole {
	return PowerRole((m.Header >> 8) & 1)
}

// SetPowerRole sets the power role of the sender of the message.
func (m *Message) SetPowerRole(r PowerRole) {
	m.Header = (m.Header & ^(uint16(1) << 8)) | (uint16(r) << 8)
}

// PowerRole represents the power role of the sender of a message.
type PowerRole uint8

// Power roles of the sender of a message.
const (
	PowerRoleSink   PowerRole = 0
	PowerRoleSource PowerRole = 1
)

func (r PowerRole) String() string {
	if r == PowerRoleSource {
		return "source"
	}
	return "sink"
}

// DataRole returns the data role of the sender of the message.
func (m Message) DataRole() DataRole {
	return DataRole((m.Header >> 5) & 1)
}

// SetDataRole sets the data role of the sender of the message.
func (m *Message) SetDataRole(r DataRole) {
	m.Header = (m.Header & ^(uint16(1) << 5)) | uint16(r<<5)
}

// DataRole represents the data role of the sender of a message.
type DataRole uint8

// Data roles of the sender of a message.
const (
	DataRoleUFP DataRole = 0
	DataRoleDFP DataRole = 1
)

func (r DataRole) String() string {
	if r == DataRoleDFP {
		return "DFP"
	}
	return "UFP"
}

// ExtendedHeader is the 16-bit extended-message header described in
// spec.md §3.3.
type ExtendedHeader struct {
	Chunked      bool
	ChunkNumber  uint8 // 4 bits
	RequestChunk bool
	DataSize     uint16 // 9 bits
}

// Encode packs the extended header fields into a uint16.
func (h ExtendedHeader) Encode() uint16 {
	var v uint16
	if h.Chunked {
		v |= 1 << 15
	}
	v |= uint16(h.ChunkNumber&0xf) << 11
	if h.RequestChunk {
		v |= 1 << 10
	}
	v |= h.DataSize & 0x1ff
	return v
}

// DecodeExtendedHeader unpacks a uint16 into its extended header fields.
func DecodeExtendedHeader(v uint16) ExtendedHeader {
	return ExtendedHeader{
		Chunked:      v&(1<<15) != 0,
		ChunkNumber:  uint8((v >> 11) & 0xf),
		RequestChunk: v&(1<<10) != 0,
		DataSize:     v & 0x1ff,
	}
}
