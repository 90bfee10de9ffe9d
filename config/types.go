package config

// BudgetParams mirrors budget.Params as a TOML-decodable shape; durations
// are expressed in seconds since the TOML encoder has no native
// time.Duration support.
type BudgetParams struct {
	CycleLengthBlocks       int64  `toml:"CycleLengthBlocks"`
	RequiredConfs           int64  `toml:"RequiredConfs"`
	ProposalFeeUnits        int64  `toml:"ProposalFeeUnits"`
	FinalizationFeeUnits    int64  `toml:"FinalizationFeeUnits"`
	EstablishmentWindowSecs int64  `toml:"EstablishmentWindowSecs"`
	MinUpdateIntervalSecs   int64  `toml:"MinUpdateIntervalSecs"`
	MinProtocolVersion      uint32 `toml:"MinProtocolVersion"`
	Mode                    string `toml:"Mode"`
	AskThrottleWindowSecs   int64  `toml:"AskThrottleWindowSecs"`
	MonthlyBlocks           int64  `toml:"MonthlyBlocks"`
}

// Global bundles the runtime configuration values enforced by ValidateConfig.
type Global struct {
	Budget BudgetParams
}
