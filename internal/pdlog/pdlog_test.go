package pdlog_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/oxplot/usbpd/internal/pdlog"
)

func TestNewSetsLevelFromVerbose(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, pdlog.New(false).GetLevel())
	assert.Equal(t, logrus.DebugLevel, pdlog.New(true).GetLevel())
}

func TestPortTagsPortAndLayerFields(t *testing.T) {
	entry := pdlog.Port(pdlog.New(false), 3, "tc")
	assert.Equal(t, 3, entry.Data["port"])
	assert.Equal(t, "tc", entry.Data["layer"])
}

func TestComponentTagsComponentField(t *testing.T) {
	entry := pdlog.Component(pdlog.New(false), "engine")
	assert.Equal(t, "engine", entry.Data["component"])
}
