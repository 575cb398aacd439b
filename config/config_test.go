package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxplot/usbpd/config"
)

const sampleINI = `
[board]
shared_current_ports = 2
chipset_s0_pin = GPIO17

[port.0]
drp = true
try_src = true
tbt_usb4 = true
vbus_pin = GPIO5

[port.1]
drp = false
vbus_pin = GPIO6
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "board.ini")
	require.NoError(t, os.WriteFile(path, []byte(sampleINI), 0o644))
	return path
}

func TestLoadParsesBoardAndPorts(t *testing.T) {
	cfg, err := config.Load(writeSample(t))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Board.SharedCurrentPorts)
	require.Len(t, cfg.Ports, 2)

	var port0 *config.PortConfig
	for i := range cfg.Ports {
		if cfg.Ports[i].Index == 0 {
			port0 = &cfg.Ports[i]
		}
	}
	require.NotNil(t, port0, "port.0 section not found")
	assert.True(t, port0.DRP)
	assert.True(t, port0.TrySRC)
	assert.True(t, port0.TBTUSB4)
	assert.Equal(t, "GPIO5", port0.VbusPin)
}

func TestLoadDefaultsSharedCurrentPortsToOne(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "board.ini")
	require.NoError(t, os.WriteFile(path, []byte("[port.0]\ndrp = false\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Board.SharedCurrentPorts)
}

func TestLoadRejectsMissingPortSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "board.ini")
	require.NoError(t, os.WriteFile(path, []byte("[board]\nshared_current_ports = 1\n"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}
