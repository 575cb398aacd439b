// Package pdlog is the structured logging setup shared by every package in
// this tree: one configured *logrus.Logger per process, handed out to
// tc/pe/engine as per-component *logrus.Entry values carrying a
// "port"/"layer" field, the same Logger-field-plus-level-flag shape used
// throughout the pack's zededa-eve pillar commands.
package pdlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a *logrus.Logger configured for this process: plain-text
// output to stderr with full timestamps, at DebugLevel when verbose is set
// and InfoLevel otherwise.
func New(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

// Port returns the per-port, per-layer entry a component constructor
// (tc.New, pe.New, engine.NewPort) expects: every log line out of port idx's
// state machines carries "port" and "layer" fields so a multi-port run's
// output can be filtered per connector.
func Port(log *logrus.Logger, idx int, layer string) *logrus.Entry {
	return log.WithField("port", idx).WithField("layer", layer)
}

// Component returns an entry tagged with a single "component" field, for
// process-wide collaborators that aren't scoped to one port (the engine's
// cross-port DPM goroutine, the CLI's top-level setup).
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}
