package events

// StrategyEvent describes a selection attempt and its fallback.
type StrategyEvent struct {
	FaultID  string `json:"fault_id"`
	Strategy string `json:"strategy"`
	// Action is one of "predictor_attempt", "predictor_failure" or
	// "rule_fallback".
	Action string `json:"action"`
	Err    error  `json:"-"`
	Reason string `json:"reason,omitempty"`
}

func (StrategyEvent) Kind() Kind         { return KindStrategy }
func (e StrategyEvent) EntityID() string { return e.FaultID }
