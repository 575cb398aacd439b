package dpm

import (
	"sync"
	"time"

	"github.com/oxplot/usbpd/collab"
	"github.com/oxplot/usbpd/pdmsg"
)

// buttonState is the power-button debouncer of spec.md §4.5.3, a 2-state
// machine driven purely by ExtendedAlertPowerButtonPress/Release events
// carried in a partner's Alert ADO.
type buttonState int

const (
	buttonIdle buttonState = iota
	buttonPressed
)

// Button press-duration thresholds. A press held shorter than
// longPressThreshold when Release arrives is a short press (wake); held
// longer, it's treated as a forced long press (shutdown) even though the
// Release arrived, matching the original's power_button_release path that
// still reports "long" once the hold time has crossed the line.
const longPressThreshold = 5 * time.Second

// ButtonHandler tracks one port's power-button press state and drives
// board.PressPowerButton on release, or immediately once a press has been
// held past longPressThreshold without waiting for Release.
type ButtonHandler struct {
	mu        sync.Mutex
	board     collab.Board
	state     buttonState
	pressedAt time.Time
	now       func() time.Time // overridable for tests
	reported  bool
}

// NewButtonHandler returns a handler that calls board.PressPowerButton in
// response to the partner's Alert power-button events.
func NewButtonHandler(board collab.Board) *ButtonHandler {
	return &ButtonHandler{board: board, now: time.Now}
}

// HandleAlert inspects an incoming Alert ADO, updating the button state and
// invoking board.PressPowerButton as needed. Only ADOExtendedAlertEvent
// ADOs carrying a power-button press/release sub-type are meaningful here;
// all other alerts are ignored by this handler (the Status/Get_Status
// follow-up they trigger is the rest of dpm's Alert handling, not this
// file's concern).
func (b *ButtonHandler) HandleAlert(ado pdmsg.AlertDataObject) error {
	if !ado.HasType(pdmsg.ADOExtendedAlertEvent) {
		return nil
	}
	switch ado.ExtendedAlertEventType() {
	case pdmsg.ExtendedAlertPowerButtonPress:
		return b.press()
	case pdmsg.ExtendedAlertPowerButtonRelease:
		return b.release()
	}
	return nil
}

func (b *ButtonHandler) press() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	// A press arriving while already pressed is the invalid
	// press-then-press combination the original firmware resets on; treat
	// it as a fresh press rather than compounding hold time.
	b.state = buttonPressed
	b.pressedAt = b.now()
	b.reported = false
	return nil
}

func (b *ButtonHandler) release() error {
	b.mu.Lock()
	if b.state != buttonPressed {
		// Release with no matching press: the invalid combination: ignore.
		b.mu.Unlock()
		return nil
	}
	held := b.now().Sub(b.pressedAt)
	b.state = buttonIdle
	already := b.reported
	b.mu.Unlock()
	if already {
		return nil
	}
	return b.board.PressPowerButton(held >= longPressThreshold)
}

// Poll checks whether a still-held press has crossed longPressThreshold and
// reports it immediately rather than waiting for Release, mirroring
// hardware power buttons that trigger a forced shutdown without needing the
// user to let go first. Callers run this periodically (e.g. once per DPM
// cycle) while a press may be outstanding.
func (b *ButtonHandler) Poll() error {
	b.mu.Lock()
	if b.state != buttonPressed || b.reported {
		b.mu.Unlock()
		return nil
	}
	if b.now().Sub(b.pressedAt) < longPressThreshold {
		b.mu.Unlock()
		return nil
	}
	b.reported = true
	b.mu.Unlock()
	return b.board.PressPowerButton(true)
}

// WakeIfNeeded asks the board for a short press if the chipset is not in S0,
// implementing §4.5.3's "any USB-PD Attach while suspended/off wakes the
// system" behavior independent of any Alert. Callers invoke this once, on
// first connection to a PD partner.
func WakeIfNeeded(board collab.Board) error {
	if board.ChipsetInState(collab.ChipsetState(pdmsg.ChipsetPowerStateS0)) {
		return nil
	}
	return board.PressPowerButton(false)
}
