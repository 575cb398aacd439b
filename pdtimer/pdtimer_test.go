package pdtimer

import (
	"testing"
	"time"
)

func TestNewSetAllDisabled(t *testing.T) {
	s := New()
	for id := ID(0); id < numTimers; id++ {
		if !s.IsDisabled(id) {
			t.Fatalf("timer %d: IsDisabled() = false on a fresh Set", id)
		}
		if s.IsExpired(id) {
			t.Fatalf("timer %d: IsExpired() = true on a fresh Set", id)
		}
	}
}

func TestEnableThenExpire(t *testing.T) {
	s := New()
	s.EnableAfter(PESenderResponse, -time.Millisecond)

	if s.IsDisabled(PESenderResponse) {
		t.Fatal("IsDisabled() = true right after Enable")
	}
	if !s.IsExpired(PESenderResponse) {
		t.Fatal("IsExpired() = false for a deadline already in the past")
	}
}

// Invariant: a timer reported expired is never also reported disabled.
func TestExpiredImpliesNotDisabled(t *testing.T) {
	s := New()
	s.EnableAfter(TCCCDebounce, -time.Second)
	s.ManageExpired()

	if !s.IsExpired(TCCCDebounce) {
		t.Fatal("IsExpired() = false after ManageExpired folded a passed deadline")
	}
	if s.IsDisabled(TCCCDebounce) {
		t.Fatal("IsDisabled() = true for a timer ManageExpired just folded to expired")
	}
}

func TestManageExpiredIsIdempotentUntilDisabled(t *testing.T) {
	s := New()
	s.EnableAfter(PENoResponse, -time.Second)
	s.ManageExpired()
	s.ManageExpired()

	if !s.IsExpired(PENoResponse) {
		t.Fatal("expired timer should remain expired across repeated ManageExpired calls")
	}
	s.Disable(PENoResponse)
	if s.IsExpired(PENoResponse) {
		t.Fatal("Disable should clear the expired state")
	}
}

func TestDisableRangeOnlyAffectsOwnRange(t *testing.T) {
	s := New()
	s.EnableAfter(TCCCDebounce, time.Minute)
	s.EnableAfter(PESenderResponse, time.Minute)

	s.DisableRange(TCRange)

	if !s.IsDisabled(TCCCDebounce) {
		t.Fatal("TCCCDebounce should be disabled after DisableRange(TCRange)")
	}
	if s.IsDisabled(PESenderResponse) {
		t.Fatal("DisableRange(TCRange) should not touch PE range timers")
	}
}

func TestNextExpirationPicksSoonest(t *testing.T) {
	s := New()
	s.EnableAfter(PESourceCap, 200*time.Millisecond)
	s.EnableAfter(PESenderResponse, 50*time.Millisecond)
	s.EnableAfter(TCCCDebounce, time.Hour)

	d, ok := s.NextExpiration()
	if !ok {
		t.Fatal("NextExpiration() ok = false, want true")
	}
	if d <= 0 || d > 60*time.Millisecond {
		t.Fatalf("NextExpiration() = %v, want close to 50ms", d)
	}
}

func TestNextExpirationNoneActive(t *testing.T) {
	s := New()
	if _, ok := s.NextExpiration(); ok {
		t.Fatal("NextExpiration() ok = true with no active timers")
	}
	s.EnableAfter(PETimeout, time.Minute)
	s.Disable(PETimeout)
	if _, ok := s.NextExpiration(); ok {
		t.Fatal("NextExpiration() ok = true after the only active timer was disabled")
	}
}

// Invariant: NextExpiration only competes over deadlines still in the
// future. An active timer whose deadline has already passed (but hasn't
// been folded to expired by ManageExpired yet) must not shadow a later
// timer that is genuinely still the soonest pending one.
func TestNextExpirationIgnoresUnmanagedExpiredTimer(t *testing.T) {
	s := New()
	s.EnableAfter(PENoResponse, -time.Second)
	s.EnableAfter(PESenderResponse, 50*time.Millisecond)

	d, ok := s.NextExpiration()
	if !ok {
		t.Fatal("NextExpiration() ok = false, want true")
	}
	if d <= 0 || d > 60*time.Millisecond {
		t.Fatalf("NextExpiration() = %v, want close to 50ms (PESenderResponse), not the unmanaged expired PENoResponse", d)
	}
}

func TestEnableOverridesExpired(t *testing.T) {
	s := New()
	s.EnableAfter(PEVDMResponse, -time.Second)
	s.ManageExpired()
	if !s.IsExpired(PEVDMResponse) {
		t.Fatal("setup: timer should be expired before re-Enable")
	}
	s.EnableAfter(PEVDMResponse, time.Minute)
	if s.IsExpired(PEVDMResponse) {
		t.Fatal("Enable should clear a prior expired state")
	}
	if s.IsDisabled(PEVDMResponse) {
		t.Fatal("Enable should move the timer to active, not disabled")
	}
}
