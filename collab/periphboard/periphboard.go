// Package periphboard is a periph.io-backed collab.Board (cmd/usbpdsim
// does not use it): chipset power state and VBUS
// presence are read over GPIO rather than faked in memory, following the
// host.Init/gpioreg wiring the upstream project uses for its own
// I2C-backed demo.
package periphboard

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/oxplot/usbpd/collab"
)

// PinConfig names the GPIO pins this board reads per port. VbusPresent is
// an input that reads high when the named port senses VBUS above the
// sink-detect threshold; ChipsetS0 reads high while the host chipset is
// in S0 and low otherwise (S3/S5/G3 are not distinguished by this simple
// demo wiring).
type PinConfig struct {
	VbusPresent string
	ChipsetS0   string
}

// Board reads chipset/VBUS state from the pins named in cfg for each
// port index supplied to New.
type Board struct {
	mu          sync.Mutex
	vbus        map[int]gpio.PinIn
	s0          gpio.PinIn
	powerButton gpio.PinOut
}

// SetPowerButtonPin wires an output pin this board toggles on
// PressPowerButton; without one, power-button presses are silently
// dropped (a demo board with no power-button header wired up).
func (b *Board) SetPowerButtonPin(name string) error {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return fmt.Errorf("periphboard: unknown power button pin %q", name)
	}
	out, ok := pin.(gpio.PinOut)
	if !ok {
		return fmt.Errorf("periphboard: pin %q is not an output", name)
	}
	b.mu.Lock()
	b.powerButton = out
	b.mu.Unlock()
	return nil
}

// New initializes the periph.io host and opens the named GPIO pins. cfg
// maps a port index to its VBUS-sense pin; s0Pin is shared across all
// ports on a single-chipset board.
func New(cfg map[int]string, s0Pin string) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periphboard: host init: %w", err)
	}
	b := &Board{vbus: make(map[int]gpio.PinIn)}
	for port, name := range cfg {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, fmt.Errorf("periphboard: unknown vbus pin %q for port %d", name, port)
		}
		if err := pin.In(gpio.PullDown, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("periphboard: configure vbus pin %q: %w", name, err)
		}
		b.vbus[port] = pin
	}
	s0 := gpioreg.ByName(s0Pin)
	if s0 == nil {
		return nil, fmt.Errorf("periphboard: unknown chipset S0 pin %q", s0Pin)
	}
	if err := s0.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("periphboard: configure chipset S0 pin: %w", err)
	}
	b.s0 = s0
	return b, nil
}

func (b *Board) SetPowerSupplyReady(port int) error { return nil }
func (b *Board) PowerSupplyReset(port int) error    { return nil }

func (b *Board) CheckVbusLevel(port int, mv int) (bool, error) {
	b.mu.Lock()
	pin, ok := b.vbus[port]
	b.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("periphboard: no vbus pin configured for port %d", port)
	}
	// This demo wiring only distinguishes "VBUS present" from "absent";
	// any requested threshold above 0mV maps to the single digital read.
	return pin.Read() == gpio.High, nil
}

func (b *Board) TransitionVoltage(port int, mv int) error { return nil }

func (b *Board) ChargeManager() collab.ChargeManager { return nil }

// EnableAutoDischargeDisconnect is a no-op: this demo wiring has no GPIO
// driving the TCPC's auto-discharge-on-disconnect feature.
func (b *Board) EnableAutoDischargeDisconnect(port int, enable bool) error { return nil }

// NotifyEvent is a no-op: this demo wiring has no host event channel to
// relay PD_STATUS_EVENT_* bits onto.
func (b *Board) NotifyEvent(port int, ev collab.StatusEvent) {}

func (b *Board) ChipsetInState(s collab.ChipsetState) bool {
	inS0 := b.s0.Read() == gpio.High
	if s == collab.ChipsetState(0) { // ChipsetPowerStateS0
		return inS0
	}
	return !inS0
}

func (b *Board) ChipsetInOrTransitioningToState(s collab.ChipsetState) bool {
	return b.ChipsetInState(s)
}

func (b *Board) IsTBTUSB4Port(port int) bool { return false }

// PressPowerButton pulses the configured power-button output pin; this demo
// wiring does not distinguish pulse duration in software, since the actual
// short/long timing is expected to be produced by the physical button
// driver circuit, not bit-banged here.
func (b *Board) PressPowerButton(long bool) error {
	b.mu.Lock()
	pin := b.powerButton
	b.mu.Unlock()
	if pin == nil {
		return nil
	}
	if err := pin.Out(gpio.High); err != nil {
		return err
	}
	return pin.Out(gpio.Low)
}
