package rules

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/jake-scott/hon-client/internal/pkg/logging"
	"github.com/jake-scott/hon-client/internal/pkg/parameter"
)

// MaxDepth bounds chains of rule effects triggering further rules
const MaxDepth = 32

var ErrRuleNotSupported = errors.New("rule not supported")

// ParameterLookup resolves sibling parameters of the owning command
type ParameterLookup interface {
	Parameter(key string) (parameter.Parameter, bool)
}

// Rule applies ParamData to ParamKey when TriggerKey reaches TriggerValue
// and every extra condition holds
type Rule struct {
	TriggerKey   string
	TriggerValue string
	ParamKey     string
	ParamData    map[string]interface{}
	Extras       []parameter.Condition
}

// RuleSet holds the parsed rules of one rule declaration in a command
type RuleSet struct {
	params  ParameterLookup
	options map[string]string
	rules   map[string][]*Rule
	table   []*Rule
	depth   int
	patched bool
}

// Parse builds a rule set from a "rule" category leaf.  The rule tree is
// { affected key: { trigger key: { trigger value(s): effect } } }
func Parse(params ParameterLookup, options map[string]string, leaf map[string]interface{}) (*RuleSet, error) {
	tree, ok := leaf["fixedValue"].(map[string]interface{})
	if !ok {
		tree, ok = leaf["enumValues"].(map[string]interface{})
	}
	if !ok {
		return nil, ErrRuleNotSupported
	}

	r := &RuleSet{
		params:  params,
		options: options,
		rules:   map[string][]*Rule{},
	}

	for _, paramKey := range sortedKeys(tree) {
		triggers, ok := tree[paramKey].(map[string]interface{})
		if !ok {
			logging.Logger(nil).Debugf("ignoring rule for %s without trigger conditions", paramKey)
			continue
		}

		affected := r.alias(paramKey)
		for _, triggerKey := range sortedKeys(triggers) {
			r.parseConditions(affected, triggerKey, triggers[triggerKey], nil)
		}
	}

	return r, nil
}

// Rules returns the parsed rules by trigger key
func (r *RuleSet) Rules() map[string][]Rule {
	out := make(map[string][]Rule, len(r.rules))
	for k, rules := range r.rules {
		for _, rule := range rules {
			out[k] = append(out[k], *rule)
		}
	}
	return out
}

func (r *RuleSet) alias(key string) string {
	if alias, ok := r.options[key]; ok && alias != "" {
		return alias
	}
	return key
}

func (r *RuleSet) parseConditions(paramKey, triggerKey string, triggerData interface{}, extras []parameter.Condition) {
	triggerKey = r.alias(strings.ReplaceAll(triggerKey, "@", ""))

	data, ok := triggerData.(map[string]interface{})
	if !ok {
		logging.Logger(nil).Debugf("ignoring malformed rule condition %s for %s", triggerKey, paramKey)
		return
	}

	for _, multiValue := range sortedKeys(data) {
		effect := data[multiValue]

		for _, triggerValue := range strings.Split(multiValue, "|") {
			nested, isMap := effect.(map[string]interface{})
			switch {
			case isMap && nested["typology"] != nil:
				r.createRule(paramKey, triggerKey, triggerValue, nested, extras)
			case isMap:
				conditions := withCondition(extras, triggerKey, triggerValue)
				for _, extraKey := range sortedKeys(nested) {
					r.parseConditions(paramKey, extraKey, nested[extraKey], conditions)
				}
			default:
				fixed := map[string]interface{}{"typology": parameter.TypologyFixed, "fixedValue": effect}
				r.createRule(paramKey, triggerKey, triggerValue, fixed, extras)
			}
		}
	}
}

func (r *RuleSet) createRule(paramKey, triggerKey, triggerValue string, data map[string]interface{}, extras []parameter.Condition) {
	// a self reference declares no effect
	if parameter.ToString(data["fixedValue"]) == "@"+paramKey {
		return
	}

	r.rules[triggerKey] = append(r.rules[triggerKey], &Rule{
		TriggerKey:   triggerKey,
		TriggerValue: triggerValue,
		ParamKey:     paramKey,
		ParamData:    data,
		Extras:       copyConditions(extras),
	})
}

// duplicateForExtras registers every multi-condition rule under each of its
// extra trigger keys too, so it fires whichever condition changes last
func (r *RuleSet) duplicateForExtras() {
	added := map[string][]*Rule{}

	for _, key := range sortedRuleKeys(r.rules) {
		for _, rule := range r.rules[key] {
			for i, extra := range rule.Extras {
				var conditions []parameter.Condition
				conditions = append(conditions, rule.Extras[:i]...)
				conditions = append(conditions, rule.Extras[i+1:]...)
				conditions = withCondition(conditions, rule.TriggerKey, rule.TriggerValue)

				added[extra.Key] = append(added[extra.Key], &Rule{
					TriggerKey:   extra.Key,
					TriggerValue: extra.Value,
					ParamKey:     rule.ParamKey,
					ParamData:    rule.ParamData,
					Extras:       conditions,
				})
			}
		}
	}

	for _, key := range sortedRuleKeys(added) {
		r.rules[key] = append(r.rules[key], added[key]...)
	}
}

// Patch wires the rules as triggers on the command parameters.  All
// parameters of the command must exist before it is called.
func (r *RuleSet) Patch() {
	if r.patched {
		return
	}
	r.patched = true

	r.duplicateForExtras()

	for _, key := range sortedRuleKeys(r.rules) {
		p, ok := r.params.Parameter(key)
		if !ok {
			continue
		}

		for _, rule := range r.rules[key] {
			id := len(r.table)
			r.table = append(r.table, rule)
			p.AddTrigger(rule.TriggerValue, id, r)
		}
	}
}

// Apply runs the effect of a triggered rule.  Failures are logged, never
// returned: a rule that cannot apply leaves the command unchanged.
func (r *RuleSet) Apply(ruleID int) {
	if ruleID < 0 || ruleID >= len(r.table) {
		return
	}
	rule := r.table[ruleID]

	if r.depth >= MaxDepth {
		logging.Logger(nil).Warnf("rule %s=%s -> %s dropped, propagation deeper than %d", rule.TriggerKey, rule.TriggerValue, rule.ParamKey, MaxDepth)
		return
	}
	r.depth++
	defer func() { r.depth-- }()

	if !r.extrasMatch(rule) {
		return
	}

	target, ok := r.params.Parameter(rule.ParamKey)
	if !ok {
		return
	}

	var err error
	if fixed := parameter.ToString(rule.ParamData["fixedValue"]); fixed != "" {
		err = applyFixed(target, fixed)
	} else if parameter.ToString(rule.ParamData["typology"]) == parameter.TypologyEnum {
		err = applyEnum(target, rule)
	}

	if err != nil {
		logging.Logger(nil).WithError(err).Debugf("rule %s=%s could not update %s", rule.TriggerKey, rule.TriggerValue, rule.ParamKey)
	}
}

// Describe implements parameter.RuleEngine
func (r *RuleSet) Describe(ruleID int) parameter.RuleInfo {
	if ruleID < 0 || ruleID >= len(r.table) {
		return parameter.RuleInfo{}
	}
	rule := r.table[ruleID]

	value := parameter.ToString(rule.ParamData["fixedValue"])
	if value == "" {
		value = parameter.ToString(rule.ParamData["defaultValue"])
	}

	return parameter.RuleInfo{
		Param:  rule.ParamKey,
		Extras: copyConditions(rule.Extras),
		Value:  value,
	}
}

func (r *RuleSet) extrasMatch(rule *Rule) bool {
	for _, extra := range rule.Extras {
		p, ok := r.params.Parameter(extra.Key)
		if !ok || !parameter.Matches(p, extra.Value) {
			return false
		}
	}
	return true
}

func applyFixed(target parameter.Parameter, value string) error {
	switch p := target.(type) {
	case *parameter.Enum:
		values := p.Values()
		if len(values) != 1 || values[0] != parameter.Clean(value) {
			p.SetValues([]string{value})
		}
		return p.SetValue(value)
	case *parameter.Range:
		f, err := parameter.StrToFloat(value)
		if err != nil {
			return errors.Wrapf(err, "fixed value for range %s", p.Key())
		}
		if f < p.Min() {
			p.SetMin(f)
		} else if f > p.Max() {
			p.SetMax(f)
		}
		return p.SetFloat(f)
	case *parameter.Fixed, *parameter.Program:
		return p.SetValue(value)
	}

	return target.SetValue(value)
}

func applyEnum(target parameter.Parameter, rule *Rule) error {
	p, ok := target.(*parameter.Enum)
	if !ok {
		return nil
	}

	switch values := rule.ParamData["enumValues"].(type) {
	case string:
		if values != "" {
			p.SetValues(strings.Split(values, "|"))
		}
	case []interface{}:
		list := make([]string, 0, len(values))
		for _, v := range values {
			list = append(list, parameter.ToString(v))
		}
		p.SetValues(list)
	}

	if def := parameter.ToString(rule.ParamData["defaultValue"]); def != "" {
		return p.SetValue(def)
	}
	return nil
}

func withCondition(conditions []parameter.Condition, key, value string) []parameter.Condition {
	out := make([]parameter.Condition, 0, len(conditions)+1)
	for _, c := range conditions {
		if c.Key != key {
			out = append(out, c)
		}
	}
	return append(out, parameter.Condition{Key: key, Value: value})
}

func copyConditions(conditions []parameter.Condition) []parameter.Condition {
	if conditions == nil {
		return nil
	}
	return append([]parameter.Condition(nil), conditions...)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRuleKeys(m map[string][]*Rule) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
