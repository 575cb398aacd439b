// Package mock provides in-memory PHY, PRL and Board implementations used
// by package-level tests and by cmd/usbpdsim's run command. It stands in for the byte-level chunking engine and TCPC hardware
// spec.md assumes pre-existing behind the collab contracts.
package mock

import (
	"sync"

	"github.com/oxplot/usbpd/collab"
	"github.com/oxplot/usbpd/pdmsg"
	"github.com/oxplot/usbpd/port"
	"github.com/oxplot/usbpd/tc"
)

// PHY is a software-only tc.PHY: CC lines, VBUS and VCONN are plain
// booleans flipped directly by a paired PHY via Connect, with no timing
// simulation beyond what package tc itself debounces.
type PHY struct {
	mu sync.Mutex

	pull  tc.CCPull
	limit tc.CurrentLimit

	peer *PHY

	vconnOn bool
	vbusOn  bool
	polarity port.Polarity
	dataRole port.DataRole
}

// NewPHY returns an unconnected mock PHY.
func NewPHY() *PHY {
	return &PHY{pull: tc.PullOpen}
}

// Connect wires two mock PHYs together so each one's asserted CC pull and
// VBUS state are visible to the other's ReadCC/VbusPresent, simulating a
// captive USB-C cable between two ports under test.
func Connect(a, b *PHY) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

func (p *PHY) SetCCPull(pull tc.CCPull, limit tc.CurrentLimit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pull, p.limit = pull, limit
	return nil
}

func (p *PHY) ReadCC() (cc1, cc2 tc.CCLevel, err error) {
	p.mu.Lock()
	peer := p.peer
	p.mu.Unlock()
	if peer == nil {
		return tc.CCLevelNone, tc.CCLevelNone, nil
	}
	peer.mu.Lock()
	peerPull := peer.pull
	peer.mu.Unlock()

	lvl := tc.CCLevelNone
	switch peerPull {
	case tc.PullRd:
		lvl = tc.CCLevelRd
	case tc.PullRp:
		lvl = tc.CCLevelRp
	}
	// CC1 always carries the peer's pull in this simplified two-wire
	// model; CC2 stays idle so polarity detection is deterministic in
	// tests.
	return lvl, tc.CCLevelNone, nil
}

func (p *PHY) SetVconn(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vconnOn = on
	return nil
}

func (p *PHY) SetVbus(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vbusOn = on
	return nil
}

func (p *PHY) VbusPresent() (bool, error) {
	p.mu.Lock()
	peer := p.peer
	p.mu.Unlock()
	if peer == nil {
		return false, nil
	}
	peer.mu.Lock()
	defer peer.mu.Unlock()
	return peer.vbusOn, nil
}

func (p *PHY) SetPolarity(pol port.Polarity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polarity = pol
	return nil
}

func (p *PHY) SetMuxDataRole(role port.DataRole) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dataRole = role
	return nil
}

// PRL is an in-memory protocol layer: SendX appends directly to the
// paired PRL's inbound queue for that SOP class and reports
// PRLEventMessageSent synchronously from within the same send call. There
// is no real GoodCRC/retry/chunking; it exists to exercise the policy
// engine's calls through the collab.PRL contract, not to model the wire.
type PRL struct {
	mu     sync.Mutex
	events collab.PRLEvents
	peer   *PRL
	rev    [pdmsg.SOPDebugDoublePrime + 1]pdmsg.Revision
	inbox  map[pdmsg.SOPType][]pdmsg.Message
	busy   bool
	hrDone bool
}

// NewPRL returns a PRL that reports completions to ev.
func NewPRL(ev collab.PRLEvents) *PRL {
	return &PRL{events: ev, inbox: make(map[pdmsg.SOPType][]pdmsg.Message), hrDone: true}
}

// ConnectPRL wires two mock PRLs together so sends on one surface as Rx on
// the other.
func ConnectPRL(a, b *PRL) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

func (p *PRL) deliver(sop pdmsg.SOPType, m pdmsg.Message) {
	p.mu.Lock()
	peer := p.peer
	p.mu.Unlock()
	if peer == nil {
		return
	}
	peer.mu.Lock()
	peer.inbox[sop] = append(peer.inbox[sop], m)
	peer.mu.Unlock()
}

func (p *PRL) complete() {
	if p.events != nil {
		p.events.Notify(pdmsg.SOP, collab.PRLEventMessageSent)
	}
}

func (p *PRL) SendCtrlMessage(sop pdmsg.SOPType, typ pdmsg.Type) error {
	var m pdmsg.Message
	m.SetType(typ)
	p.deliver(sop, m)
	p.complete()
	return nil
}

func (p *PRL) SendDataMessage(sop pdmsg.SOPType, typ pdmsg.Type, data []uint32) error {
	var m pdmsg.Message
	m.SetType(typ)
	m.SetDataObjectCount(uint8(len(data)))
	copy(m.Data[:], data)
	p.deliver(sop, m)
	p.complete()
	return nil
}

func (p *PRL) SendExtDataMessage(sop pdmsg.SOPType, typ pdmsg.Type, payload []byte) error {
	var m pdmsg.Message
	m.SetType(typ)
	m.SetExtended(true)
	m.ExtLen = uint16(len(payload))
	copy(m.ExtPayload[:], payload)
	p.deliver(sop, m)
	p.complete()
	return nil
}

func (p *PRL) Rx(sop pdmsg.SOPType) (pdmsg.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.inbox[sop]
	if len(q) == 0 {
		return pdmsg.Message{}, false
	}
	m := q[0]
	p.inbox[sop] = q[1:]
	return m, true
}

func (p *PRL) ResetSoft(sop pdmsg.SOPType) error {
	var m pdmsg.Message
	m.SetType(pdmsg.TypeAccept)
	p.deliver(sop, m)
	return nil
}

func (p *PRL) ExecuteHardReset() error {
	p.mu.Lock()
	p.hrDone = false
	p.mu.Unlock()
	p.mu.Lock()
	p.hrDone = true
	p.mu.Unlock()
	return nil
}

func (p *PRL) HardResetComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hrDone
}

func (p *PRL) Rev(sop pdmsg.SOPType) pdmsg.Revision {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rev[sop]
}

func (p *PRL) SetRev(sop pdmsg.SOPType, rev pdmsg.Revision) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rev[sop] = rev
}

func (p *PRL) IsRunning() bool { return true }

func (p *PRL) IsBusy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// ChargeManager is an in-memory collab.ChargeManager: the per-port ceiling
// a test or demo set is just recorded for later assertion, with no actual
// battery-charging hardware behind it.
type ChargeManager struct {
	mu       sync.Mutex
	budgetMW int
	ceilMA   map[int]int
}

// NewChargeManager returns a ChargeManager advertising budgetMW as its
// total shared power budget.
func NewChargeManager(budgetMW int) *ChargeManager {
	return &ChargeManager{budgetMW: budgetMW, ceilMA: make(map[int]int)}
}

func (c *ChargeManager) MaxPowerBudgetMW() int { return c.budgetMW }

func (c *ChargeManager) SetCeilingMA(port int, ma int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ceilMA[port] = ma
}

// CeilingMA returns the last ceiling SetCeilingMA recorded for port, for
// test assertions.
func (c *ChargeManager) CeilingMA(port int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ceilMA[port]
}

// Board is an in-memory collab.Board for tests: VBUS levels are tracked
// per port as plain millivolt values instead of being sensed over I2C.
type Board struct {
	mu                 sync.Mutex
	vbusMV             map[int]int
	chipset            collab.ChipsetState
	tbtUSB4            map[int]bool
	powerButtonPresses []bool
	cm                 *ChargeManager
	autoDischarge      map[int]bool
	events             map[int][]collab.StatusEvent
}

// NewBoard returns a Board with every port starting at 0mV and the
// chipset in S0, and a ChargeManager with a 0mW budget installed (enough
// to exercise ceiling-tracking without advertising real capacity).
func NewBoard() *Board {
	return &Board{
		vbusMV:        make(map[int]int),
		tbtUSB4:       make(map[int]bool),
		cm:            NewChargeManager(0),
		autoDischarge: make(map[int]bool),
		events:        make(map[int][]collab.StatusEvent),
	}
}

// SetChargeManager replaces the installed charge manager collaborator,
// or clears it if cm is nil (simulating a board without charging
// support).
func (b *Board) SetChargeManager(cm *ChargeManager) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cm = cm
}

// SetTBTUSB4 marks port as Thunderbolt/USB4-capable for IsTBTUSB4Port.
func (b *Board) SetTBTUSB4(port int, v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tbtUSB4[port] = v
}

// SetChipsetState is a test hook simulating a host power-state change.
func (b *Board) SetChipsetState(s collab.ChipsetState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chipset = s
}

func (b *Board) SetPowerSupplyReady(port int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.vbusMV[port] == 0 {
		b.vbusMV[port] = 5000
	}
	return nil
}

func (b *Board) PowerSupplyReset(port int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vbusMV[port] = 0
	return nil
}

func (b *Board) CheckVbusLevel(port int, mv int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.vbusMV[port] >= mv, nil
}

func (b *Board) TransitionVoltage(port int, mv int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vbusMV[port] = mv
	return nil
}

func (b *Board) ChargeManager() collab.ChargeManager {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cm == nil {
		return nil
	}
	return b.cm
}

func (b *Board) EnableAutoDischargeDisconnect(port int, enable bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.autoDischarge[port] = enable
	return nil
}

// AutoDischargeDisconnect reports the last value EnableAutoDischargeDisconnect
// recorded for port, for test assertions.
func (b *Board) AutoDischargeDisconnect(port int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.autoDischarge[port]
}

func (b *Board) NotifyEvent(port int, ev collab.StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[port] = append(b.events[port], ev)
}

// Events returns every StatusEvent NotifyEvent recorded for port, in
// order, for test assertions.
func (b *Board) Events(port int) []collab.StatusEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]collab.StatusEvent(nil), b.events[port]...)
}

func (b *Board) ChipsetInState(s collab.ChipsetState) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chipset == s
}

func (b *Board) ChipsetInOrTransitioningToState(s collab.ChipsetState) bool {
	return b.ChipsetInState(s)
}

func (b *Board) IsTBTUSB4Port(port int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tbtUSB4[port]
}

// PowerButtonPresses records every simulated press for test assertions,
// long reporting whether it was a forced long press.
func (b *Board) PowerButtonPresses() []bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bool(nil), b.powerButtonPresses...)
}

func (b *Board) PressPowerButton(long bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.powerButtonPresses = append(b.powerButtonPresses, long)
	return nil
}
