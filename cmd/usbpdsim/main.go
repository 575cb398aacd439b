// Command usbpdsim runs a small in-memory USB-PD simulation: a source port
// and a sink port connected through the mock collaborators, driven by the
// engine package for a fixed duration; state transitions are logged at
// debug level, shown with --verbose.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/oxplot/usbpd/collab/mock"
	"github.com/oxplot/usbpd/config"
	"github.com/oxplot/usbpd/dpm"
	"github.com/oxplot/usbpd/engine"
	"github.com/oxplot/usbpd/internal/pdlog"
	"github.com/oxplot/usbpd/tc"
)

var (
	configPath string
	duration   time.Duration
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:   "usbpdsim",
		Short: "USB-PD policy engine simulator",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a board .ini config (read only by list-ports; run always uses the built-in 2-port source/sink demo)")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug-level logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the simulation for --duration and print each port's final state",
		RunE:  runSimulation,
	}
	runCmd.Flags().DurationVar(&duration, "duration", 2*time.Second, "how long to run the simulation before reporting final state")

	listPortsCmd := &cobra.Command{
		Use:   "list-ports",
		Short: "print the port sections found in --config",
		RunE:  listPorts,
	}

	root.AddCommand(runCmd, listPortsCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *logrus.Logger {
	return pdlog.New(verbose)
}

func listPorts(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return fmt.Errorf("usbpdsim: --config is required for list-ports")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	for _, p := range cfg.Ports {
		fmt.Fprintf(cmd.OutOrStdout(), "port.%d: drp=%v try_src=%v tbt_usb4=%v vbus_pin=%q\n",
			p.Index, p.DRP, p.TrySRC, p.TBTUSB4, p.VbusPin)
	}
	return nil
}

// buildDemo wires a source port and a sink port to each other through the
// mock collaborators, mirroring the teacher's examples/go/simplepower demo
// but with both ends simulated instead of one real FUSB302.
func buildDemo(log *logrus.Logger) (*engine.Engine, map[int]tc.PHY) {
	board := mock.NewBoard()

	srcPhy, snkPhy := mock.NewPHY(), mock.NewPHY()
	mock.Connect(srcPhy, snkPhy)

	alloc := dpm.NewAllocator(1)
	policy := &dpm.CVPolicy{MinVoltage: 5000, MaxVoltage: 20000, Current: 2000}
	sinkEval := dpm.NewLogger(os.Stdout, "\n", policy)

	srcEntry := pdlog.Port(log, 0, "port")
	snkEntry := pdlog.Port(log, 1, "port")

	srcPort := engine.NewPort(0, srcPhy, nil, tc.DRPPolicy{}, nil, alloc, alloc, board, srcEntry)
	snkPort := engine.NewPort(1, snkPhy, nil, tc.DRPPolicy{}, sinkEval, nil, alloc, board, snkEntry)

	srcPRL := mock.NewPRL(srcPort.PE)
	snkPRL := mock.NewPRL(snkPort.PE)
	mock.ConnectPRL(srcPRL, snkPRL)
	srcPort.PE.PRL = srcPRL
	snkPort.PE.PRL = snkPRL

	ports := []*engine.Port{srcPort, snkPort}
	e := engine.New(ports, alloc, board, pdlog.Component(log, "engine"))
	return e, map[int]tc.PHY{0: srcPhy, 1: snkPhy}
}

func runSimulation(cmd *cobra.Command, args []string) error {
	log := newLogger()
	e, phys := buildDemo(log)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	if err := e.Run(ctx, phys); err != nil {
		return err
	}

	for _, p := range e.Ports {
		fmt.Fprintf(cmd.OutOrStdout(), "port %d: tc=%s pe=%s\n", p.Port.Index, p.Port.TCState, p.Port.PEState)
	}
	return nil
}
