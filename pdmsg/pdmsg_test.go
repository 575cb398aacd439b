package pdmsg

import "testing"

func TestMessageHeaderRoundTrip(t *testing.T) {
	var m Message
	m.SetType(TypeRequest)
	m.SetDataObjectCount(1)
	m.SetID(5)
	m.SetPowerRole(PowerRoleSink)
	m.SetDataRole(DataRoleUFP)
	m.SetRevision(Revision30)

	if got := m.Type(); got != TypeRequest {
		t.Fatalf("Type() = %v, want %v", got, TypeRequest)
	}
	if got := m.DataObjectCount(); got != 1 {
		t.Fatalf("DataObjectCount() = %d, want 1", got)
	}
	if !m.IsData() {
		t.Fatal("IsData() = false, want true")
	}
	if got := m.ID(); got != 5 {
		t.Fatalf("ID() = %d, want 5", got)
	}
	if got := m.PowerRole(); got != PowerRoleSink {
		t.Fatalf("PowerRole() = %v, want %v", got, PowerRoleSink)
	}
	if got := m.Revision(); got != Revision30 {
		t.Fatalf("Revision() = %v, want %v", got, Revision30)
	}
}

func TestMessageExtendedFlagExcludesIsData(t *testing.T) {
	var m Message
	m.SetExtended(true)
	m.SetDataObjectCount(3)
	if m.IsData() {
		t.Fatal("IsData() = true for an extended message, want false")
	}
	if !m.IsExtended() {
		t.Fatal("IsExtended() = false, want true")
	}
}

func TestToBytes(t *testing.T) {
	var m Message
	m.SetType(TypeSourceCap)
	m.SetDataObjectCount(2)
	m.Data[0] = 0x11223344
	m.Data[1] = 0xaabbccdd

	var buf [MaxMessageBytes]byte
	n := m.ToBytes(buf[:])
	if n != 2+2*4 {
		t.Fatalf("ToBytes() returned %d bytes, want %d", n, 2+2*4)
	}
	if buf[2] != 0x44 || buf[3] != 0x33 || buf[4] != 0x22 || buf[5] != 0x11 {
		t.Fatalf("first data object mis-serialized: %x", buf[2:6])
	}
}

func TestExtendedHeaderRoundTrip(t *testing.T) {
	h := ExtendedHeader{Chunked: true, ChunkNumber: 3, RequestChunk: true, DataSize: 200}
	v := h.Encode()
	got := DecodeExtendedHeader(v)
	if got != h {
		t.Fatalf("DecodeExtendedHeader(Encode(h)) = %+v, want %+v", got, h)
	}
}

func TestFixedSupplyPDO(t *testing.T) {
	p := NewFixedSupplyPDO()
	p.SetVoltage(5000)
	p.SetMaxCurrent(3000)
	p.SetUnconstrainedPower(true)

	if v := p.Voltage(); v != 5000 {
		t.Fatalf("Voltage() = %d, want 5000", v)
	}
	if c := p.MaxCurrent(); c != 3000 {
		t.Fatalf("MaxCurrent() = %d, want 3000", c)
	}
	if !p.UnconstrainedPower() {
		t.Fatal("UnconstrainedPower() = false, want true")
	}
	if PDO(p).Type() != PDOTypeFixedSupply {
		t.Fatalf("Type() = %v, want fixed supply", PDO(p).Type())
	}
}

func TestPPSPDORoundTrip(t *testing.T) {
	p := NewPPSPDO()
	p.SetMinVoltage(3300)
	p.SetMaxVoltage(11000)
	p.SetMaxCurrent(3000)
	p.SetPowerLimited(true)

	if PDO(p).Type() != PDOTypePPS {
		t.Fatalf("Type() = %v, want PPS", PDO(p).Type())
	}
	if v := p.MinVoltage(); v != 3300 {
		t.Fatalf("MinVoltage() = %d, want 3300", v)
	}
	if v := p.MaxVoltage(); v != 11000 {
		t.Fatalf("MaxVoltage() = %d, want 11000", v)
	}
	if c := p.MaxCurrent(); c != 3000 {
		t.Fatalf("MaxCurrent() = %d, want 3000", c)
	}
	if !p.IsPowerLimited() {
		t.Fatal("IsPowerLimited() = false, want true")
	}
}

func TestRequestDORoundTrip(t *testing.T) {
	var r RequestDO
	r.SetSelectedObjectPosition(2)
	r.SetFixedOperatingCurrent(1500)
	r.SetFixedMaxOperatingCurrent(3000)
	r.SetCapabilityMismatch(true)

	if p := r.SelectedObjectPosition(); p != 2 {
		t.Fatalf("SelectedObjectPosition() = %d, want 2", p)
	}
	if c := r.FixedOperatingCurrent(); c != 1500 {
		t.Fatalf("FixedOperatingCurrent() = %d, want 1500", c)
	}
	if c := r.FixedMaxOperatingCurrent(); c != 3000 {
		t.Fatalf("FixedMaxOperatingCurrent() = %d, want 3000", c)
	}
	if !r.CapabilityMismatch() {
		t.Fatal("CapabilityMismatch() = false, want true")
	}
}

func TestVDMHeaderRoundTrip(t *testing.T) {
	var h VDMHeader
	h.SetVID(0x05ac)
	h.SetStructured(true)
	h.SetVersion(SVDMVersion20)
	h.SetObjectPosition(1)
	h.SetCommandType(CommandTypeACK)
	h.SetCommand(CommandDiscoverIdentity)

	if h.VID() != 0x05ac {
		t.Fatalf("VID() = %x, want 0x05ac", h.VID())
	}
	if !h.IsStructured() {
		t.Fatal("IsStructured() = false, want true")
	}
	if h.Version() != SVDMVersion20 {
		t.Fatalf("Version() = %v, want 2.0", h.Version())
	}
	if h.ObjectPosition() != 1 {
		t.Fatalf("ObjectPosition() = %d, want 1", h.ObjectPosition())
	}
	if h.CommandType() != CommandTypeACK {
		t.Fatalf("CommandType() = %v, want ACK", h.CommandType())
	}
	if h.Command() != CommandDiscoverIdentity {
		t.Fatalf("Command() = %v, want DiscoverIdentity", h.Command())
	}
}

func TestEnterUSBDataObjectRoundTrip(t *testing.T) {
	var o EnterUSBDataObject
	o.SetMode(USBModeUSB4)
	o.SetCableType(CableTypeActiveReTimer)
	o.SetUSB4DRDCapable(true)
	o.SetHostPresent(true)

	if o.Mode() != USBModeUSB4 {
		t.Fatalf("Mode() = %v, want USB4", o.Mode())
	}
	if o.CableType() != CableTypeActiveReTimer {
		t.Fatalf("CableType() = %v, want ActiveReTimer", o.CableType())
	}
	if !o.USB4DRDCapable() {
		t.Fatal("USB4DRDCapable() = false, want true")
	}
	if !o.HostPresent() {
		t.Fatal("HostPresent() = false, want true")
	}
}

func TestStatusDataBlockEncodeDecode(t *testing.T) {
	s := StatusDataBlock{
		InternalTemp:     40,
		PresentInput:     PresentInputUsingPDSource,
		PowerStatus:      1,
		PowerStateChange: byte(ChipsetPowerStateS0),
	}
	var buf [SDBLenR30]byte
	n := s.Encode(buf[:], true)
	if n != SDBLenR30 {
		t.Fatalf("Encode() = %d, want %d", n, SDBLenR30)
	}
	got := DecodeStatusDataBlock(buf[:])
	if got != s {
		t.Fatalf("DecodeStatusDataBlock(Encode(s)) = %+v, want %+v", got, s)
	}

	var buf20 [SDBLenR20]byte
	n = s.Encode(buf20[:], false)
	if n != SDBLenR20 {
		t.Fatalf("Encode(r20) = %d, want %d", n, SDBLenR20)
	}
}

func TestAlertDataObjectPowerButton(t *testing.T) {
	ado := AlertDataObject(ADOExtendedAlertEvent) | AlertDataObject(ExtendedAlertPowerButtonPress)
	if !ado.HasType(ADOExtendedAlertEvent) {
		t.Fatal("HasType(ADOExtendedAlertEvent) = false, want true")
	}
	if ado.ExtendedAlertEventType() != ExtendedAlertPowerButtonPress {
		t.Fatalf("ExtendedAlertEventType() = %v, want press", ado.ExtendedAlertEventType())
	}
}

func TestBatteryCapabilitiesEncodeDecode(t *testing.T) {
	b := BatteryCapabilities{VID: 0x1234, PID: 0x5678, DesignCapacity: 500, FullCapacity: 480, BatteryType: BatteryInfoHotSwappable}
	var buf [9]byte
	b.Encode(buf[:])
	got := DecodeBatteryCapabilities(buf[:])
	if got != b {
		t.Fatalf("DecodeBatteryCapabilities(Encode(b)) = %+v, want %+v", got, b)
	}
}

func TestBatteryStatusDO(t *testing.T) {
	var bs BatteryStatusDO
	bs.SetPresentCapacity(250)
	bs |= BatteryStatusCharging | BatteryStatusPresent
	if bs.PresentCapacity() != 250 {
		t.Fatalf("PresentCapacity() = %d, want 250", bs.PresentCapacity())
	}
	if bs.ChargingStatus() != BatteryStatusCharging {
		t.Fatalf("ChargingStatus() = %x, want charging", bs.ChargingStatus())
	}
}
