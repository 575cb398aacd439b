// Package config loads a board's port layout and policy knobs from an ini
// file: one [port.N] section per connector plus a shared [board] section
// for the cross-port settings (the 3A budget and the chipset S0 pin).
package config

import (
	"fmt"

	"gopkg.in/ini.v1"

	"github.com/oxplot/usbpd/tc"
)

// PortConfig is one [port.N] section.
type PortConfig struct {
	Index int `ini:"-"`

	// DRP enables Dual-Role Power: the port alternates between source and
	// sink while unattached instead of committing to one role.
	DRP bool `ini:"drp"`

	// TrySRC makes an unattached DRP port try the source role first on
	// every attach cycle before falling back to sink.
	TrySRC bool `ini:"try_src"`

	// AllowLowPowerMode permits the connection manager to enter
	// LOW_POWER_MODE while idle (spec.md §4.2).
	AllowLowPowerMode bool `ini:"allow_low_power_mode"`

	// TBTUSB4 marks this port as having Thunderbolt/USB4-capable board
	// wiring (re-timers, four-lane muxing), gating dpm's mode-entry
	// fan-out per spec.md §4.5.2.
	TBTUSB4 bool `ini:"tbt_usb4"`

	// VbusPin/PowerButtonPin name the periph.io GPIO pins
	// this port reads/drives when run with the periphboard backend; unset
	// for the in-memory mock backend.
	VbusPin       string `ini:"vbus_pin"`
	PowerButtonPin string `ini:"power_button_pin"`
}

// DRPPolicy converts this section into the tc.DRPPolicy the connection
// manager expects.
func (c PortConfig) DRPPolicy() tc.DRPPolicy {
	return tc.DRPPolicy{DRP: c.DRP, TrySRC: c.TrySRC, AllowLPM: c.AllowLowPowerMode}
}

// BoardConfig is the [board] section: settings shared across every port.
type BoardConfig struct {
	// SharedCurrentPorts is the number of ports that may simultaneously
	// hold a 3A source grant, spec.md §4.5.1's CONFIG_USB_PD_3A_PORTS.
	SharedCurrentPorts int `ini:"shared_current_ports"`

	// ChipsetS0Pin is the periph.io GPIO pin read to determine whether the
	// host chipset is in S0, shared across all ports on a single-chipset
	// board.
	ChipsetS0Pin string `ini:"chipset_s0_pin"`
}

// Config is a fully parsed board configuration: one BoardConfig plus a
// PortConfig per [port.N] section found, in the order the sections appear
// in the file.
type Config struct {
	Board BoardConfig
	Ports []PortConfig
}

// Load reads and validates a board configuration from path.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	return fromFile(f)
}

func fromFile(f *ini.File) (*Config, error) {
	cfg := &Config{}
	if s := f.Section("board"); s != nil {
		if err := s.MapTo(&cfg.Board); err != nil {
			return nil, fmt.Errorf("config: [board]: %w", err)
		}
	}
	if cfg.Board.SharedCurrentPorts <= 0 {
		cfg.Board.SharedCurrentPorts = 1
	}

	for _, s := range f.Sections() {
		idx, ok := portSectionIndex(s.Name())
		if !ok {
			continue
		}
		var pc PortConfig
		if err := s.MapTo(&pc); err != nil {
			return nil, fmt.Errorf("config: [%s]: %w", s.Name(), err)
		}
		pc.Index = idx
		cfg.Ports = append(cfg.Ports, pc)
	}
	if len(cfg.Ports) == 0 {
		return nil, fmt.Errorf("config: no [port.N] sections found")
	}
	return cfg, nil
}

// portSectionIndex parses a "port.N" section name into its port index.
func portSectionIndex(name string) (int, bool) {
	var idx int
	if n, err := fmt.Sscanf(name, "port.%d", &idx); err != nil || n != 1 {
		return 0, false
	}
	return idx, true
}
