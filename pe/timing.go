package pe

import "time"

// Timing budgets named in spec.md §4.3, reproduced from the normative USB-PD
// timing table rather than re-derived.
const (
	tSenderResponse  = 30 * time.Millisecond
	tSinkWaitCap     = 465 * time.Millisecond
	tPSTransition    = 500 * time.Millisecond
	tSrcTransition   = 35 * time.Millisecond
	tSwapSourceStart = 20 * time.Millisecond
	tPSHardReset     = 25 * time.Millisecond
	tNoResponse      = 5500 * time.Millisecond
	tVDMSenderRsp    = 30 * time.Millisecond
	tVDMBusy         = 50 * time.Millisecond
	tDiscoverIDNoContract = 200 * time.Millisecond
	tVconnDischarge  = 200 * time.Millisecond
	tDataResetFail   = 225 * time.Millisecond
	tSinkEPRKeepAlive = 25 * time.Second
	tSinkRequest     = 100 * time.Millisecond

	// tSafe0V bounds how long TransitionToDefault waits for VBUS to drop
	// to vSafe0V after a reset before giving up and proceeding anyway.
	tSafe0V = 650 * time.Millisecond

	// tSrcRecoverTurnOn bounds the source-recovery-plus-turn-on wait
	// between VBUS reaching vSafe0V and the supply being safe to
	// re-enable (PD_T_SRC_RECOVER_MAX + PD_T_SRC_TURN_ON).
	tSrcRecoverTurnOn = 1275 * time.Millisecond
)

// VBUS millivolt thresholds used by TransitionToDefault's Board.CheckVbusLevel
// polling.
const (
	vSafe0VMV  = 800  // at/below this, VBUS is considered gone
	vSafe5VMV  = 4000 // at/above this, VBUS is considered returned
)

// Retry/downgrade counters named in spec.md §4.3.2/§4.3.6.
const (
	nCapsCount                       = 25
	nHardResetCount                  = 2
	nDiscoverIdentityPrecontractLimit = 2
	nDiscoverIdentityPD30Limit        = 4
	nDiscoverIdentityCount            = 6
)
