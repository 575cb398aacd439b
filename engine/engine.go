// Package engine wires one tc.Manager + pe.Engine pair per port to a
// collab.PRL/Board backend and runs each port's state machines on its own
// goroutine, plus one cross-port goroutine for the device policy manager
// (package dpm), per spec.md §5's concurrency model: per-port isolation,
// a single shared allocator/fan-out crossing port boundaries under its own
// lock.
package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/oxplot/usbpd/collab"
	"github.com/oxplot/usbpd/dpm"
	"github.com/oxplot/usbpd/pdtimer"
	"github.com/oxplot/usbpd/pe"
	"github.com/oxplot/usbpd/port"
	"github.com/oxplot/usbpd/tc"
)

// pollInterval bounds how long a port's goroutine ever sleeps even with no
// timer pending, so an externally-driven PHY/PRL change (another
// goroutine flipping a mock PHY's pull, or real hardware) is noticed
// promptly without needing its own wake channel.
const pollInterval = 2 * time.Millisecond

// Port bundles everything one connector needs to run: the shared port
// state, its Type-C connection manager and policy engine, and the timer
// set both state machines arm timers on (a single Set per port, per
// pdtimer's shared ID space across TC/PE/PR/DPM ranges).
type Port struct {
	Port   *port.Port
	TC     *tc.Manager
	PE     *pe.Engine
	Timers *pdtimer.Set

	lastCC1, lastCC2 tc.CCLevel
	lastVbus         bool
	buttons          *dpm.ButtonHandler
}

// NewPort builds a Port for index idx, wiring phy/prl/policy as its
// Type-C and policy-engine collaborators. cap/src install the sink/source
// capability hooks (typically a dpm.Policy and *dpm.Allocator); either may
// be nil for a port that only ever plays the other role. alloc, if
// non-nil, is wired as the policy engine's shared 3A allocator hook
// (pe.AllocatorHook) regardless of the role cap/src already wired it
// under, since *dpm.Allocator implements both. board is wired as the
// policy engine's collab.Board so VBUS/ceiling/reset side effects actually
// reach the board/chipset.
func NewPort(idx int, phy tc.PHY, prl collab.PRL, drp tc.DRPPolicy, cap pe.CapabilityEvaluator, src pe.SourceCapProvider, alloc *dpm.Allocator, board collab.Board, log *logrus.Entry) *Port {
	p := port.New(idx)
	timers := pdtimer.New()

	tcLog := log
	peLog := log
	if log != nil {
		tcLog = log.WithField("port", idx).WithField("layer", "tc")
		peLog = log.WithField("port", idx).WithField("layer", "pe")
	}

	tcMgr := tc.New(p, phy, timers, drp, tcLog)
	peEng := pe.New(p, prl, timers, peLog)
	peEng.SetCapabilityEvaluator(cap)
	peEng.SetSourceCapProvider(src)
	if alloc != nil {
		peEng.SetAllocatorHook(alloc)
	}
	peEng.SetBoard(board)

	return &Port{
		Port:    p,
		TC:      tcMgr,
		PE:      peEng,
		Timers:  timers,
		buttons: dpm.NewButtonHandler(board),
	}
}

// Start moves both state machines to their initial states.
func (p *Port) Start() error {
	if err := p.TC.Start(); err != nil {
		return err
	}
	return p.PE.Start()
}

// tick samples the PHY-observable state once (through tc's own ReadCC/
// VbusPresent calls, triggered by passing the right wake event) and runs
// one iteration of both state machines.
func (p *Port) tick(phy tc.PHY) error {
	ev := tc.EventTimerExpired
	if cc1, cc2, err := phy.ReadCC(); err == nil && (cc1 != p.lastCC1 || cc2 != p.lastCC2) {
		p.lastCC1, p.lastCC2 = cc1, cc2
		ev = tc.EventCCChange
	} else if vb, err := phy.VbusPresent(); err == nil && vb != p.lastVbus {
		p.lastVbus = vb
		if vb {
			ev = tc.EventVbusPresent
		} else {
			ev = tc.EventVbusRemoved
		}
	}
	if p.Port.DPMRequest != 0 {
		ev = tc.EventDPMRequest
	}
	if err := p.TC.Tick(ev); err != nil {
		return err
	}
	if err := p.PE.Tick(); err != nil {
		return err
	}
	return p.buttons.Poll()
}

// nextSleep bounds the goroutine's idle time to the soonest armed timer,
// capped by pollInterval so externally driven events are still noticed
// promptly.
func (p *Port) nextSleep() time.Duration {
	if d, ok := p.Timers.NextExpiration(); ok && d > 0 && d < pollInterval {
		return d
	}
	return pollInterval
}

// Engine owns every port this process drives plus the cross-port device
// policy manager state (the shared-3A allocator and mode-entry fan-out).
type Engine struct {
	Ports     []*Port
	Allocator *dpm.Allocator
	Board     collab.Board
	Log       *logrus.Entry

	// dpmInterval is how often the cross-port DPM goroutine re-evaluates
	// mode-entry fan-out for every port; left generous since alt-mode
	// negotiation is not latency sensitive the way CC/VBUS sensing is.
	dpmInterval time.Duration
}

// New returns an Engine over ports, sharing alloc and board across all of
// them.
func New(ports []*Port, alloc *dpm.Allocator, board collab.Board, log *logrus.Entry) *Engine {
	return &Engine{Ports: ports, Allocator: alloc, Board: board, Log: log, dpmInterval: 20 * time.Millisecond}
}

// Run starts every port's goroutine plus the DPM goroutine and blocks
// until ctx is canceled or one of them returns an error.
func (e *Engine) Run(ctx context.Context, phys map[int]tc.PHY) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, p := range e.Ports {
		p := p
		phy := phys[p.Port.Index]
		if err := p.Start(); err != nil {
			return err
		}
		g.Go(func() error {
			return e.runPort(ctx, p, phy)
		})
	}

	g.Go(func() error {
		return e.runDPM(ctx)
	})

	return g.Wait()
}

func (e *Engine) runPort(ctx context.Context, p *Port, phy tc.PHY) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := p.tick(phy); err != nil {
			if e.Log != nil {
				e.Log.WithField("port", p.Port.Index).WithError(err).Error("engine: port tick failed")
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.nextSleep()):
		}
	}
}

// runDPM periodically re-evaluates the mode-entry fan-out for every DFP
// port, requesting the next entry step the priority order in
// dpm.NextModeEntry allows. The shared allocator rebalances itself
// synchronously from RequestX/ClearX, so no polling is needed for it here.
func (e *Engine) runDPM(ctx context.Context) error {
	ticker := time.NewTicker(e.dpmInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, p := range e.Ports {
				if d := dpm.NextModeEntry(p.Port, e.Board); d != dpm.DecisionNone {
					d.Request(p.Port)
				}
			}
		}
	}
}
