package tc

import (
	"github.com/oxplot/usbpd/pdtimer"
	"github.com/oxplot/usbpd/port"
)

// The state names follow spec.md §4.2 and the original usb_tc_drp_acc_trysrc_sm.c
// state table, grouped by CC-pull super-state: CC_OPEN (Disabled,
// ErrorRecovery), CC_RD (UnattachedSNK, AttachWaitSNK, TryWaitSNK), CC_RP
// (UnattachedSRC, AttachWaitSRC, TrySRC), and the unsupered states
// (AttachedSNK, AttachedSRC, DRPAutoToggle, LowPowerMode, CTUnattachedSNK,
// CTAttachedSNK).
var (
	stateDisabled        *state
	stateErrorRecovery   *state
	stateUnattachedSNK   *state
	stateAttachWaitSNK   *state
	stateTryWaitSNK      *state
	stateUnattachedSRC   *state
	stateAttachWaitSRC   *state
	stateTrySRC          *state
	stateAttachedSNK     *state
	stateAttachedSRC     *state
	stateDRPAutoToggle   *state
	stateLowPowerMode    *state
	stateCTUnattachedSNK *state
	stateCTAttachedSNK   *state
)

func init() {
	// Initialized here, not at package-var-decl time, to allow states to
	// reference each other without forward-declaration ordering problems.

	stateDisabled = &state{
		Name: "disabled",
		Enter: func(m *Manager) (*state, error) {
			return nil, m.Phy.SetCCPull(PullOpen, CurrentDefault)
		},
	}

	stateErrorRecovery = &state{
		Name: "error-recovery",
		Enter: func(m *Manager) (*state, error) {
			m.Port.Detach()
			m.Flags.ClearOnDisconnect()
			m.Flags.Clear(FlagRequestErrorRecovery)
			if err := m.Phy.SetCCPull(PullOpen, CurrentDefault); err != nil {
				return nil, err
			}
			m.Timers.EnableAfter(pdtimer.TCTimeout, tErrorRecovery)
			return nil, nil
		},
		Process: func(m *Manager, e Event) (*state, error) {
			if e == EventTimerExpired && m.Timers.IsExpired(pdtimer.TCTimeout) {
				m.Timers.Disable(pdtimer.TCTimeout)
				return initialUnattached(m), nil
			}
			return nil, nil
		},
	}

	stateUnattachedSNK = &state{
		Name: "unattached-snk",
		Enter: func(m *Manager) (*state, error) {
			m.lastCC1, m.lastCC2 = CCLevelNone, CCLevelNone
			return nil, m.Phy.SetCCPull(PullRd, CurrentDefault)
		},
		Process: func(m *Manager, e Event) (*state, error) {
			if e != EventCCChange {
				return nil, nil
			}
			cc1, cc2, err := m.Phy.ReadCC()
			if err != nil {
				return nil, err
			}
			if cc1 == CCLevelRp || cc2 == CCLevelRp {
				return stateAttachWaitSNK, nil
			}
			if m.Policy.DRP {
				return stateUnattachedSRC, nil
			}
			return nil, nil
		},
	}

	stateAttachWaitSNK = &state{
		Name: "attach-wait-snk",
		Enter: func(m *Manager) (*state, error) {
			m.Timers.DisableRange(pdtimer.TCRange)
			return nil, nil
		},
		Process: func(m *Manager, e Event) (*state, error) {
			cc1, cc2, err := m.Phy.ReadCC()
			if err != nil {
				return nil, err
			}
			if cc1 != m.lastCC1 || cc2 != m.lastCC2 {
				m.lastCC1, m.lastCC2 = cc1, cc2
				m.Timers.EnableAfter(pdtimer.TCCCDebounce, tCCDebounce)
				m.Timers.EnableAfter(pdtimer.TCPDDebounce, tPDDebounce)
			}
			present, err := m.Phy.VbusPresent()
			if err != nil {
				return nil, err
			}
			if m.Timers.IsExpired(pdtimer.TCCCDebounce) && present && (cc1 == CCLevelRp || cc2 == CCLevelRp) {
				m.Timers.Disable(pdtimer.TCCCDebounce)
				if m.Policy.TrySRC && cc1 != CCLevelRd && cc2 != CCLevelRd {
					return stateTrySRC, nil
				}
				return stateAttachedSNK, nil
			}
			if m.Timers.IsExpired(pdtimer.TCPDDebounce) && cc1 == CCLevelNone && cc2 == CCLevelNone {
				m.Timers.Disable(pdtimer.TCPDDebounce)
				if m.Policy.DRP {
					return stateUnattachedSRC, nil
				}
				return stateUnattachedSNK, nil
			}
			return nil, nil
		},
	}

	stateTrySRC = &state{
		Name: "try-src",
		Enter: func(m *Manager) (*state, error) {
			m.Timers.EnableAfter(pdtimer.TCTimeout, tDRPTry)
			return nil, m.Phy.SetCCPull(PullRp, Current1A5)
		},
		Process: func(m *Manager, e Event) (*state, error) {
			cc1, cc2, err := m.Phy.ReadCC()
			if err != nil {
				return nil, err
			}
			if cc1 == CCLevelRd || cc2 == CCLevelRd {
				return stateAttachedSRC, nil
			}
			if m.Timers.IsExpired(pdtimer.TCTimeout) {
				m.Timers.Disable(pdtimer.TCTimeout)
				return stateTryWaitSNK, nil
			}
			return nil, nil
		},
	}

	stateTryWaitSNK = &state{
		Name: "try-wait-snk",
		Enter: func(m *Manager) (*state, error) {
			return nil, m.Phy.SetCCPull(PullRd, CurrentDefault)
		},
		Process: func(m *Manager, e Event) (*state, error) {
			cc1, cc2, err := m.Phy.ReadCC()
			if err != nil {
				return nil, err
			}
			if cc1 == CCLevelRp || cc2 == CCLevelRp {
				m.Timers.EnableAfter(pdtimer.TCTryWaitDebounce, tTryWaitDebounce)
			}
			if m.Timers.IsExpired(pdtimer.TCTryWaitDebounce) {
				m.Timers.Disable(pdtimer.TCTryWaitDebounce)
				return stateAttachedSNK, nil
			}
			return nil, nil
		},
	}

	stateUnattachedSRC = &state{
		Name: "unattached-src",
		Enter: func(m *Manager) (*state, error) {
			m.lastCC1, m.lastCC2 = CCLevelNone, CCLevelNone
			return nil, m.Phy.SetCCPull(PullRp, CurrentDefault)
		},
		Process: func(m *Manager, e Event) (*state, error) {
			if e != EventCCChange {
				return nil, nil
			}
			cc1, cc2, err := m.Phy.ReadCC()
			if err != nil {
				return nil, err
			}
			if cc1 == CCLevelRd || cc2 == CCLevelRd {
				return stateAttachWaitSRC, nil
			}
			return stateUnattachedSNK, nil
		},
	}

	stateAttachWaitSRC = &state{
		Name: "attach-wait-src",
		Enter: func(m *Manager) (*state, error) {
			m.Timers.DisableRange(pdtimer.TCRange)
			return nil, nil
		},
		Process: func(m *Manager, e Event) (*state, error) {
			cc1, cc2, err := m.Phy.ReadCC()
			if err != nil {
				return nil, err
			}
			if cc1 != m.lastCC1 || cc2 != m.lastCC2 {
				m.lastCC1, m.lastCC2 = cc1, cc2
				m.Timers.EnableAfter(pdtimer.TCCCDebounce, tCCDebounce)
			}
			if m.Timers.IsExpired(pdtimer.TCCCDebounce) {
				m.Timers.Disable(pdtimer.TCCCDebounce)
				if cc1 == CCLevelRd || cc2 == CCLevelRd {
					return stateAttachedSRC, nil
				}
				return stateUnattachedSNK, nil
			}
			return nil, nil
		},
	}

	stateAttachedSRC = &state{
		Name: "attached-src",
		Enter: func(m *Manager) (*state, error) {
			// Attached.SRC entry contract, spec.md §4.2.
			cc1, cc2, err := m.Phy.ReadCC()
			if err != nil {
				return nil, err
			}
			pol := port.CC1
			if cc2 == CCLevelRd {
				pol = port.CC2
			}
			m.Port.Polarity = pol
			if err := m.Phy.SetPolarity(pol); err != nil {
				return nil, err
			}
			if !m.Flags.Has(FlagTSDTSPartner) {
				if err := m.Phy.SetVconn(true); err != nil {
					return nil, err
				}
				m.Flags.Set(FlagVconnOn)
			}
			if err := m.Phy.SetVbus(true); err != nil {
				m.Flags.Clear(FlagVconnOn)
				_ = m.Phy.SetVconn(false)
				return nil, err
			}
			m.Port.PowerRole = port.RoleSource
			m.Port.CCState = port.CCStateDFPAttached
			return nil, nil
		},
		Process: func(m *Manager, e Event) (*state, error) {
			if e == EventVbusRemoved {
				return stateUnattachedSRC, nil
			}
			if e == EventPEProtocolError && !m.Port.HasFlag(port.FlagExplicitContract) {
				return stateErrorRecovery, nil
			}
			return nil, nil
		},
		Exit: func(m *Manager) error {
			if m.Flags.Has(FlagVconnOn) {
				m.Flags.Clear(FlagVconnOn)
				return m.Phy.SetVconn(false)
			}
			return nil
		},
	}

	stateAttachedSNK = &state{
		Name: "attached-snk",
		Enter: func(m *Manager) (*state, error) {
			// Attached.SNK entry contract, spec.md §4.2.
			cc1, cc2, err := m.Phy.ReadCC()
			if err != nil {
				return nil, err
			}
			pol := port.CC1
			if cc2 == CCLevelRp {
				pol = port.CC2
			}
			m.Port.Polarity = pol
			if err := m.Phy.SetPolarity(pol); err != nil {
				return nil, err
			}
			m.Port.DataRole = port.RoleUFP
			if err := m.Phy.SetMuxDataRole(port.RoleUFP); err != nil {
				return nil, err
			}
			if err := m.Phy.SetCCPull(PullRd, CurrentDefault); err != nil {
				return nil, err
			}
			m.Port.PowerRole = port.RoleSink
			m.Port.CCState = port.CCStateUFPAttached
			return nil, nil
		},
		Process: func(m *Manager, e Event) (*state, error) {
			if e != EventVbusRemoved {
				return nil, nil
			}
			frsEnabled := m.Port.HasFlag(port.FlagFastRoleSwapSignaled) || m.Port.HasFlag(port.FlagFastRoleSwapPath)
			if frsEnabled {
				m.Timers.EnableAfter(pdtimer.TCTimeout, tFRSVbusDebounce)
				return nil, nil
			}
			return stateUnattachedSNK, nil
		},
	}

	stateDRPAutoToggle = &state{
		Name: "drp-auto-toggle",
		Enter: func(m *Manager) (*state, error) {
			return nil, m.Phy.SetCCPull(PullOpen, CurrentDefault)
		},
		Process: func(m *Manager, e Event) (*state, error) {
			if e != EventCCChange {
				if m.lpmAllowed() {
					if m.Timers.IsDisabled(pdtimer.TCLowPowerTime) {
						m.Timers.EnableAfter(pdtimer.TCLowPowerTime, tLowPowerTime)
					} else if m.Timers.IsExpired(pdtimer.TCLowPowerTime) {
						m.Timers.Disable(pdtimer.TCLowPowerTime)
						return stateLowPowerMode, nil
					}
				} else {
					m.Timers.Disable(pdtimer.TCLowPowerTime)
				}
				return nil, nil
			}
			cc1, cc2, err := m.Phy.ReadCC()
			if err != nil {
				return nil, err
			}
			if cc1 == CCLevelRp || cc2 == CCLevelRp {
				return stateAttachWaitSNK, nil
			}
			if cc1 == CCLevelRd || cc2 == CCLevelRd {
				return stateAttachWaitSRC, nil
			}
			return nil, nil
		},
	}

	stateLowPowerMode = &state{
		Name: "low-power-mode",
		Enter: func(m *Manager) (*state, error) {
			m.Flags.Set(FlagLPMEngaged)
			return nil, nil
		},
		Process: func(m *Manager, e Event) (*state, error) {
			if m.Flags.Has(FlagCheckConnection) || !m.lpmAllowed() {
				if m.Timers.IsDisabled(pdtimer.TCLowPowerExitTime) {
					m.Timers.EnableAfter(pdtimer.TCLowPowerExitTime, tLowPowerExitTime)
				}
				return nil, nil
			}
			m.Timers.Disable(pdtimer.TCLowPowerExitTime)
			if m.Timers.IsExpired(pdtimer.TCLowPowerExitTime) {
				m.Timers.Disable(pdtimer.TCLowPowerExitTime)
				m.Flags.Clear(FlagLPMEngaged)
				m.Flags.Clear(FlagCheckConnection)
				return initialUnattached(m), nil
			}
			return nil, nil
		},
		Exit: func(m *Manager) error {
			m.Flags.Clear(FlagLPMEngaged)
			return nil
		},
	}

	stateCTUnattachedSNK = &state{
		Name: "ct-unattached-snk",
		Enter: func(m *Manager) (*state, error) {
			return nil, m.Phy.SetCCPull(PullRd, CurrentDefault)
		},
		Process: func(m *Manager, e Event) (*state, error) {
			present, err := m.Phy.VbusPresent()
			if err != nil {
				return nil, err
			}
			if present {
				return stateCTAttachedSNK, nil
			}
			return nil, nil
		},
	}

	stateCTAttachedSNK = &state{
		Name: "ct-attached-snk",
		Process: func(m *Manager, e Event) (*state, error) {
			if e == EventVbusRemoved {
				return stateCTUnattachedSNK, nil
			}
			return nil, nil
		},
	}
}

// initialUnattached picks UnattachedSNK or UnattachedSRC coming out of
// ErrorRecovery or LowPowerMode based on DRP policy, defaulting to sink
// (the safer power-negative choice) when DRP is disabled.
func initialUnattached(m *Manager) *state {
	if m.Policy.DRP && m.Policy.TrySRC {
		return stateUnattachedSRC
	}
	return stateUnattachedSNK
}
