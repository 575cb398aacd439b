// Package dpm implements the device policy manager, C5 of spec.md §4.5:
// the shared 3 A current allocator across ports, the per-port alt-mode
// entry fan-out, and Alert/power-button handling. It is the only
// cross-port mutable state in the engine; everything else is owned by a
// single port's own goroutine.
package dpm

import (
	"errors"
	"fmt"
	"io"

	"github.com/oxplot/usbpd/pdmsg"
)

// Policy is a sink-side capability policy: Validate rejects unusable
// parameters up front, EvaluateCapabilities (the pe.CapabilityEvaluator
// method pe.Engine calls directly) turns a source's advertised PDOs into
// the RequestDO to send back.
type Policy interface {
	Validate() error
	EvaluateCapabilities(pdos []pdmsg.PDO) pdmsg.RequestDO
}

// CCPolicy is a constant-current sink policy: the source is expected to
// hold a current within [MinCurrent, MaxCurrent] and may vary voltage
// within [MinVoltage, MaxVoltage] to do so. Only usable against
// Programmable Power Supply (PPS) profiles.
type CCPolicy struct {
	MinVoltage uint16
	MaxVoltage uint16
	MinCurrent uint16
	MaxCurrent uint16

	// PreferLowerVoltage selects the lowest satisfying voltage instead of
	// the highest.
	PreferLowerVoltage bool
}

var (
	errCCBadCurrent          = errors.New("dpm: current must be >= 1000mA & <= 5000mA")
	errBadVoltage            = errors.New("dpm: voltage must be >= 3300mV & <= 21000mV")
	errCVBadCurrent          = errors.New("dpm: current must be >= 0mA & <= 5000mA")
	errMaxCurrentLessThanMin = errors.New("dpm: max current must be >= min current")
	errMaxVoltageLessThanMin = errors.New("dpm: max voltage must be >= min voltage")
)

func (c CCPolicy) Validate() error {
	if c.MinCurrent < 1000 || c.MaxCurrent < 1000 || c.MinCurrent > 5000 || c.MaxCurrent > 5000 {
		return errCCBadCurrent
	}
	if c.MinVoltage < 3300 || c.MaxVoltage < 3300 || c.MinVoltage > 21000 || c.MaxVoltage > 21000 {
		return errBadVoltage
	}
	if c.MinCurrent > c.MaxCurrent {
		return errMaxCurrentLessThanMin
	}
	if c.MinVoltage > c.MaxVoltage {
		return errMaxVoltageLessThanMin
	}
	return nil
}

func (c CCPolicy) EvaluateCapabilities(pdos []pdmsg.PDO) pdmsg.RequestDO {
	var bestVoltage uint16
	if c.PreferLowerVoltage {
		bestVoltage = ^uint16(0)
	}
	rdo := pdmsg.EmptyRequestDO
	for i, p := range pdos {
		if p.Type() != pdmsg.PDOTypePPS {
			continue
		}
		pps := pdmsg.PPSPDO(p)
		minV, maxV := c.MinVoltage, c.MaxVoltage
		if minV < pps.MinVoltage() {
			minV = pps.MinVoltage()
		}
		if maxV > pps.MaxVoltage() {
			maxV = pps.MaxVoltage()
		}
		if minV > maxV || pps.MaxCurrent() < c.MinCurrent {
			continue
		}
		cur := pps.MaxCurrent()
		if cur > c.MaxCurrent {
			cur = c.MaxCurrent
		}
		if c.PreferLowerVoltage && minV < bestVoltage {
			rdo.SetSelectedObjectPosition(uint8(i) + 1)
			rdo.SetPPSOutputVoltage(minV)
			rdo.SetPPSOutputCurrent(cur)
			bestVoltage = minV
		} else if !c.PreferLowerVoltage && maxV > bestVoltage {
			rdo.SetSelectedObjectPosition(uint8(i) + 1)
			rdo.SetPPSOutputVoltage(maxV)
			rdo.SetPPSOutputCurrent(cur)
			bestVoltage = maxV
		}
	}
	return rdo
}

// CVPolicy is a constant-voltage sink policy: the source must hold the
// negotiated voltage and supply at least Current at it, preferring fixed
// PDOs over PPS unless PreferPPS is set.
type CVPolicy struct {
	MinVoltage         uint16
	MaxVoltage         uint16
	Current            uint16
	PreferLowerVoltage bool
	PreferPPS          bool
}

const cvCurrentMargin = 150 // mA

func (c CVPolicy) Validate() error {
	if c.Current > 5000 {
		return errCVBadCurrent
	}
	if c.MinVoltage < 3300 || c.MaxVoltage < 3300 || c.MinVoltage > 21000 || c.MaxVoltage > 21000 {
		return errBadVoltage
	}
	if c.MinVoltage > c.MaxVoltage {
		return errMaxVoltageLessThanMin
	}
	return nil
}

func (c *CVPolicy) EvaluateCapabilities(pdos []pdmsg.PDO) pdmsg.RequestDO {
	ppsMaxCurrent := c.Current + cvCurrentMargin

	var bestFixedVoltage, bestPPSVoltage uint16
	if c.PreferLowerVoltage {
		bestFixedVoltage = ^uint16(0)
		bestPPSVoltage = ^uint16(0)
	}
	bestFixedRDO := pdmsg.EmptyRequestDO
	bestPPSRDO := pdmsg.EmptyRequestDO
	for i, p := range pdos {
		switch p.Type() {
		case pdmsg.PDOTypeFixedSupply:
			fs := pdmsg.FixedSupplyPDO(p)
			v := fs.Voltage()
			if v < c.MinVoltage || v > c.MaxVoltage || fs.MaxCurrent() < c.Current {
				continue
			}
			if (c.PreferLowerVoltage && v < bestFixedVoltage) || (!c.PreferLowerVoltage && v > bestFixedVoltage) {
				bestFixedRDO.SetSelectedObjectPosition(uint8(i) + 1)
				bestFixedRDO.SetFixedMaxOperatingCurrent(c.Current)
				bestFixedRDO.SetFixedOperatingCurrent(c.Current)
				bestFixedVoltage = v
			}
		case pdmsg.PDOTypePPS:
			pps := pdmsg.PPSPDO(p)
			minV, maxV := c.MinVoltage, c.MaxVoltage
			if minV < pps.MinVoltage() {
				minV = pps.MinVoltage()
			}
			if maxV > pps.MaxVoltage() {
				maxV = pps.MaxVoltage()
			}
			if minV > maxV || ppsMaxCurrent > pps.MaxCurrent() {
				continue
			}
			if c.PreferLowerVoltage && minV < bestPPSVoltage {
				bestPPSRDO.SetSelectedObjectPosition(uint8(i) + 1)
				bestPPSRDO.SetPPSOutputVoltage(minV)
				bestPPSRDO.SetPPSOutputCurrent(c.Current)
				bestPPSVoltage = minV
			} else if !c.PreferLowerVoltage && maxV > bestPPSVoltage {
				bestPPSRDO.SetSelectedObjectPosition(uint8(i) + 1)
				bestPPSRDO.SetPPSOutputVoltage(maxV)
				bestPPSRDO.SetPPSOutputCurrent(c.Current)
				bestPPSVoltage = maxV
			}
		}
	}
	if bestFixedRDO == pdmsg.EmptyRequestDO {
		return bestPPSRDO
	}
	if bestPPSRDO == pdmsg.EmptyRequestDO {
		return bestFixedRDO
	}
	if c.PreferPPS {
		return bestPPSRDO
	}
	return bestFixedRDO
}

// CPPolicy is a constant-power sink policy: a special case of CVPolicy
// where the accepted current at each candidate voltage is derived from
// Power rather than given directly.
type CPPolicy struct {
	MinVoltage         uint16
	MaxVoltage         uint16
	Power              uint16
	PreferLowerVoltage bool
	PreferPPS          bool
}

var errBadPower = errors.New("dpm: power must be > 0")

func (c CPPolicy) Validate() error {
	if c.Power == 0 {
		return errBadPower
	}
	if c.MinVoltage < 3300 || c.MaxVoltage < 3300 || c.MinVoltage > 21000 || c.MaxVoltage > 21000 {
		return errBadVoltage
	}
	if c.MinVoltage > c.MaxVoltage {
		return errMaxVoltageLessThanMin
	}
	return nil
}

func (c *CPPolicy) EvaluateCapabilities(pdos []pdmsg.PDO) pdmsg.RequestDO {
	var bestFixedVoltage, bestPPSVoltage uint16
	if c.PreferLowerVoltage {
		bestFixedVoltage = ^uint16(0)
		bestPPSVoltage = ^uint16(0)
	}
	bestFixedRDO := pdmsg.EmptyRequestDO
	bestPPSRDO := pdmsg.EmptyRequestDO
	for i, p := range pdos {
		switch p.Type() {
		case pdmsg.PDOTypeFixedSupply:
			fs := pdmsg.FixedSupplyPDO(p)
			v := fs.Voltage()
			if v < c.MinVoltage || v > c.MaxVoltage {
				continue
			}
			maxCur := c.Power / v
			if fs.MaxCurrent() < maxCur {
				continue
			}
			if (c.PreferLowerVoltage && v < bestFixedVoltage) || (!c.PreferLowerVoltage && v > bestFixedVoltage) {
				bestFixedRDO.SetSelectedObjectPosition(uint8(i) + 1)
				bestFixedRDO.SetFixedMaxOperatingCurrent(maxCur)
				bestFixedRDO.SetFixedOperatingCurrent(maxCur)
				bestFixedVoltage = v
			}
		case pdmsg.PDOTypePPS:
			pps := pdmsg.PPSPDO(p)
			minV, maxV := c.MinVoltage, c.MaxVoltage
			if minV < pps.MinVoltage() {
				minV = pps.MinVoltage()
			}
			if maxV > pps.MaxVoltage() {
				maxV = pps.MaxVoltage()
			}
			if minV > maxV {
				continue
			}
			maxC := c.Power/maxV + cvCurrentMargin
			minPV := c.Power / (pps.MaxCurrent() - cvCurrentMargin)
			if minPV < minV {
				minPV = minV
			}
			if c.PreferLowerVoltage && minPV < bestPPSVoltage && minPV <= maxV {
				bestPPSRDO.SetSelectedObjectPosition(uint8(i) + 1)
				bestPPSRDO.SetPPSOutputVoltage(minPV)
				bestPPSRDO.SetPPSOutputCurrent(c.Power / minPV)
				bestPPSVoltage = minPV
			} else if !c.PreferLowerVoltage && maxV > bestPPSVoltage && maxC <= pps.MaxCurrent() {
				bestPPSRDO.SetSelectedObjectPosition(uint8(i) + 1)
				bestPPSRDO.SetPPSOutputVoltage(maxV)
				bestPPSRDO.SetPPSOutputCurrent(maxC)
				bestPPSVoltage = maxV
			}
		}
	}
	if bestFixedRDO == pdmsg.EmptyRequestDO {
		return bestPPSRDO
	}
	if bestPPSRDO == pdmsg.EmptyRequestDO {
		return bestFixedRDO
	}
	if c.PreferPPS {
		return bestPPSRDO
	}
	return bestFixedRDO
}

// Logger wraps a base Policy and writes a human-readable description of
// every evaluated capability list to w, passing through to base (or
// EmptyRequestDO if base is nil) unchanged.
type Logger struct {
	w    io.Writer
	sep  string
	base Policy
}

// NewLogger returns a Logger writing to w, separating lines with sep
// ("\n" is the common choice), wrapping base.
func NewLogger(w io.Writer, sep string, base Policy) *Logger {
	return &Logger{w: w, sep: sep, base: base}
}

func (l *Logger) Validate() error {
	if l.base != nil {
		return l.base.Validate()
	}
	return nil
}

func (l *Logger) EvaluateCapabilities(pdos []pdmsg.PDO) pdmsg.RequestDO {
	fmt.Fprintf(l.w, "received %d profiles:%s", len(pdos), l.sep)
	for i, p := range pdos {
		fmt.Fprintf(l.w, "  %d) ", i+1)
		switch p.Type() {
		case pdmsg.PDOTypeFixedSupply:
			fs := pdmsg.FixedSupplyPDO(p)
			fmt.Fprintf(l.w, "fixed %.1fV @ max %.1fA", float32(fs.Voltage())/1000, float32(fs.MaxCurrent())/1000)
		case pdmsg.PDOTypeVariableSupply:
			fmt.Fprint(l.w, "variable (not supported)")
		case pdmsg.PDOTypePPS:
			pps := pdmsg.PPSPDO(p)
			limited := ""
			if pps.IsPowerLimited() {
				limited = " (power limited)"
			}
			fmt.Fprintf(l.w, "programmable %.1f-%.1fV @ max %.1fA%s",
				float32(pps.MinVoltage())/1000, float32(pps.MaxVoltage())/1000, float32(pps.MaxCurrent())/1000, limited)
		case pdmsg.PDOTypeBattery:
			fmt.Fprint(l.w, "battery (not supported)")
		case pdmsg.PDOTypeEPRAVS:
			fmt.Fprint(l.w, "EPR AVS (not supported)")
		default:
			fmt.Fprint(l.w, "invalid")
		}
		fmt.Fprint(l.w, l.sep)
	}
	if l.base != nil {
		return l.base.EvaluateCapabilities(pdos)
	}
	return pdmsg.EmptyRequestDO
}
