package parameter

// RuleEngine owns the effect of a rule.  Parameters only keep the rule ID
// and call back into the engine when a trigger value is reached.
type RuleEngine interface {
	Apply(ruleID int)
	Describe(ruleID int) RuleInfo
}

// Condition is one trigger key/value pair
type Condition struct {
	Key   string
	Value string
}

// RuleInfo describes a rule effect for diagnostics
type RuleInfo struct {
	Param  string
	Extras []Condition
	Value  string
}
