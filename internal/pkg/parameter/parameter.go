package parameter

import (
	"sort"
	"strings"
)

/*
 *  Typed, validated command parameters as described by the hOn command
 *  definitions.  The typology string of a definition selects the variant.
 */

// Parameter groups used on the wire
const (
	GroupParameters = "parameters"
	GroupAncillary  = "ancillaryParameters"
	GroupCustom     = "custom"
)

// Typologies understood by New
const (
	TypologyFixed = "fixed"
	TypologyRange = "range"
	TypologyEnum  = "enum"
)

// Parameter is implemented by *Fixed, *Range, *Enum and *Program
type Parameter interface {
	Key() string
	Category() string
	Typology() string
	Mandatory() bool
	Group() string

	// Value is the normalized current value, never empty for a read
	Value() string
	// InternValue is the value as it is sent to the appliance
	InternValue() string
	SetValue(value string) error
	Values() []string

	AddTrigger(value string, ruleID int, engine RuleEngine)
	Triggers() map[string]interface{}
	Reset()
}

// New builds a parameter from a raw definition.  The second return value
// is false when the typology is not a parameter typology.
func New(key string, attrs map[string]interface{}, group string) (Parameter, bool) {
	switch ToString(attrs["typology"]) {
	case TypologyRange:
		return NewRange(key, attrs, group), true
	case TypologyEnum:
		return NewEnum(key, attrs, group), true
	case TypologyFixed:
		return NewFixed(key, attrs, group), true
	}

	return nil, false
}

// Clean normalizes an enum value for comparison
func Clean(value string) string {
	value = strings.Trim(value, "[]")
	value = strings.ReplaceAll(value, "|", "_")
	return strings.ToLower(value)
}

// Matches reports whether the parameter currently holds value
func Matches(p Parameter, value string) bool {
	return valuesEqual(p.Value(), value) || valuesEqual(p.InternValue(), value)
}

// Keys returns the sorted keys of a parameter map
func Keys(params map[string]Parameter) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func valuesEqual(a, b string) bool {
	if strings.EqualFold(a, b) || Clean(a) == Clean(b) {
		return true
	}

	fa, errA := StrToFloat(a)
	fb, errB := StrToFloat(b)
	return errA == nil && errB == nil && fa == fb
}

type trigger struct {
	value  string
	ruleID int
	engine RuleEngine
}

type base struct {
	key       string
	attrs     map[string]interface{}
	category  string
	typology  string
	mandatory bool
	group     string
	triggers  []trigger
}

func newBase(key string, attrs map[string]interface{}, group string) base {
	if attrs == nil {
		attrs = map[string]interface{}{}
	}

	b := base{key: key, attrs: attrs, group: group}
	b.setAttributes()
	return b
}

func (b *base) setAttributes() {
	b.category = ToString(b.attrs["category"])
	b.typology = ToString(b.attrs["typology"])
	b.mandatory = toBool(b.attrs["mandatory"])
}

func (b *base) Key() string      { return b.key }
func (b *base) Category() string { return b.category }
func (b *base) Typology() string { return b.typology }
func (b *base) Mandatory() bool  { return b.mandatory }
func (b *base) Group() string    { return b.group }

// register records the trigger and fires it right away when the parameter
// already holds the trigger value
func (b *base) register(current string, value string, ruleID int, engine RuleEngine) {
	b.triggers = append(b.triggers, trigger{value: value, ruleID: ruleID, engine: engine})
	if valuesEqual(current, value) {
		engine.Apply(ruleID)
	}
}

// fire runs every trigger registered for value, in registration order
func (b *base) fire(value string) {
	if len(b.triggers) == 0 {
		return
	}

	pending := make([]trigger, len(b.triggers))
	copy(pending, b.triggers)
	for _, t := range pending {
		if valuesEqual(value, t.value) {
			t.engine.Apply(t.ruleID)
		}
	}
}

// Triggers is a diagnostic view of the registered rule effects:
// trigger value -> [extra key -> extra value ->] affected parameter -> effect value
func (b *base) Triggers() map[string]interface{} {
	result := map[string]interface{}{}

	for _, t := range b.triggers {
		info := t.engine.Describe(t.ruleID)

		node, _ := result[t.value].(map[string]interface{})
		if node == nil {
			node = map[string]interface{}{}
			result[t.value] = node
		}

		for _, extra := range info.Extras {
			byKey, _ := node[extra.Key].(map[string]interface{})
			if byKey == nil {
				byKey = map[string]interface{}{}
				node[extra.Key] = byKey
			}
			byValue, _ := byKey[extra.Value].(map[string]interface{})
			if byValue == nil {
				byValue = map[string]interface{}{}
				byKey[extra.Value] = byValue
			}
			node = byValue
		}

		node[info.Param] = info.Value
	}

	return result
}
