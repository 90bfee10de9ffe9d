package config

import "fmt"

// ValidateConfig aggregates the sanity checks a budget-params config must
// pass before a Manager can be built from it, one error per concern in the
// same style as the teacher's governance/slashing/mempool checks.
func ValidateConfig(g Global) error {
	b := g.Budget
	if b.CycleLengthBlocks <= 0 {
		return fmt.Errorf("budget: cycle_length_blocks must be positive")
	}
	if b.RequiredConfs <= 0 {
		return fmt.Errorf("budget: required_confs must be positive")
	}
	if b.ProposalFeeUnits <= 0 {
		return fmt.Errorf("budget: proposal_fee_units must be positive")
	}
	if b.FinalizationFeeUnits <= 0 {
		return fmt.Errorf("budget: finalization_fee_units must be positive")
	}
	if b.EstablishmentWindowSecs <= 0 {
		return fmt.Errorf("budget: establishment_window_secs must be positive")
	}
	if b.MinUpdateIntervalSecs < 0 {
		return fmt.Errorf("budget: min_update_interval_secs must not be negative")
	}
	if b.AskThrottleWindowSecs <= 0 {
		return fmt.Errorf("budget: ask_throttle_window_secs must be positive")
	}
	if b.MonthlyBlocks <= 0 {
		return fmt.Errorf("budget: monthly_blocks must be positive")
	}
	switch b.Mode {
	case "suggest", "auto", "none":
	default:
		return fmt.Errorf("budget: mode must be one of suggest, auto, none, got %q", b.Mode)
	}
	return nil
}
