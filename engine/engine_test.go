package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/oxplot/usbpd/collab/mock"
	"github.com/oxplot/usbpd/dpm"
	"github.com/oxplot/usbpd/engine"
	"github.com/oxplot/usbpd/tc"
)

func newConnectedPorts(t *testing.T) (*engine.Port, *engine.Port, *mock.PHY, *mock.PHY) {
	t.Helper()
	srcPhy, snkPhy := mock.NewPHY(), mock.NewPHY()
	mock.Connect(srcPhy, snkPhy)
	board := mock.NewBoard()

	alloc := dpm.NewAllocator(1)
	src := engine.NewPort(0, srcPhy, nil, tc.DRPPolicy{}, nil, alloc, alloc, board, nil)
	snk := engine.NewPort(1, snkPhy, nil, tc.DRPPolicy{}, nil, nil, alloc, board, nil)

	srcPRL := mock.NewPRL(src.PE)
	snkPRL := mock.NewPRL(snk.PE)
	mock.ConnectPRL(srcPRL, snkPRL)
	src.PE.PRL = srcPRL
	snk.PE.PRL = snkPRL

	return src, snk, srcPhy, snkPhy
}

func TestPortStartEntersErrorRecovery(t *testing.T) {
	src, _, srcPhy, _ := newConnectedPorts(t)
	if err := src.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if src.Port.TCState != "error-recovery" {
		t.Fatalf("TCState = %q, want error-recovery", src.Port.TCState)
	}
	_ = srcPhy
}

func TestEngineRunStopsOnContextCancel(t *testing.T) {
	src, snk, srcPhy, snkPhy := newConnectedPorts(t)
	board := mock.NewBoard()
	e := engine.New([]*engine.Port{src, snk}, dpm.NewAllocator(1), board, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx, map[int]tc.PHY{0: srcPhy, 1: snkPhy})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}
