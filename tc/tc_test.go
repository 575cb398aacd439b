package tc_test

import (
	"testing"
	"time"

	"github.com/oxplot/usbpd/collab/mock"
	"github.com/oxplot/usbpd/pdtimer"
	"github.com/oxplot/usbpd/port"
	"github.com/oxplot/usbpd/tc"
)

func newManager(p *port.Port, phy tc.PHY, policy tc.DRPPolicy) *tc.Manager {
	return tc.New(p, phy, pdtimer.New(), policy, nil)
}

func TestStartEntersErrorRecoveryThenUnattached(t *testing.T) {
	p := port.New(0)
	phy := mock.NewPHY()
	m := newManager(p, phy, tc.DRPPolicy{})

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if p.TCState != "error-recovery" {
		t.Fatalf("TCState = %q, want error-recovery", p.TCState)
	}

	// Let the recovery timer pass and tick once to move out of recovery.
	time.Sleep(30 * time.Millisecond)
	if err := m.Tick(tc.EventTimerExpired); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if p.TCState != "unattached-snk" && p.TCState != "unattached-src" {
		t.Fatalf("TCState = %q, want an unattached state after recovery timeout", p.TCState)
	}
}

// stubPHY gives tests direct control over what a port's connection
// manager observes, independent of mock.PHY's peer-wiring model.
type stubPHY struct {
	cc1, cc2 tc.CCLevel
	vbus     bool
	pull     tc.CCPull
}

func (s *stubPHY) SetCCPull(pull tc.CCPull, limit tc.CurrentLimit) error {
	s.pull = pull
	return nil
}
func (s *stubPHY) ReadCC() (tc.CCLevel, tc.CCLevel, error) { return s.cc1, s.cc2, nil }
func (s *stubPHY) SetVconn(on bool) error                  { return nil }
func (s *stubPHY) SetVbus(on bool) error                   { s.vbus = on; return nil }
func (s *stubPHY) VbusPresent() (bool, error)               { return s.vbus, nil }
func (s *stubPHY) SetPolarity(pol port.Polarity) error      { return nil }
func (s *stubPHY) SetMuxDataRole(role port.DataRole) error  { return nil }

func TestAttachSequenceSinkSide(t *testing.T) {
	p := port.New(0)
	phy := &stubPHY{vbus: true}
	m := newManager(p, phy, tc.DRPPolicy{})

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := m.Tick(tc.EventTimerExpired); err != nil {
		t.Fatal(err)
	}
	if p.TCState != "unattached-snk" {
		t.Fatalf("TCState = %q, want unattached-snk", p.TCState)
	}

	phy.cc1 = tc.CCLevelRp
	if err := m.Tick(tc.EventCCChange); err != nil {
		t.Fatal(err)
	}
	if p.TCState != "attach-wait-snk" {
		t.Fatalf("TCState = %q, want attach-wait-snk", p.TCState)
	}

	time.Sleep(120 * time.Millisecond)
	if err := m.Tick(tc.EventTimerExpired); err != nil {
		t.Fatal(err)
	}
	if p.TCState != "attached-snk" {
		t.Fatalf("TCState = %q, want attached-snk", p.TCState)
	}
	if p.PowerRole != port.RoleSink {
		t.Fatalf("PowerRole = %v, want sink", p.PowerRole)
	}
}

func TestPreventLowPowerModeReleaseIsIdempotentSafe(t *testing.T) {
	p := port.New(0)
	phy := mock.NewPHY()
	m := newManager(p, phy, tc.DRPPolicy{AllowLPM: true})

	release1 := m.PreventLowPowerMode()
	release2 := m.PreventLowPowerMode()
	release1()
	release2()
	// Two acquisitions followed by two releases must not panic or leave
	// the manager in a state that blocks further ticking.
	if err := m.Start(); err != nil {
		t.Fatalf("Start() after release = %v", err)
	}
}
