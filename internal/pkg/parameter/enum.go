package parameter

import (
	"fmt"

	"github.com/go-openapi/validate"
)

type Enum struct {
	base
	def    string
	value  string
	values []string
}

func NewEnum(key string, attrs map[string]interface{}, group string) *Enum {
	p := &Enum{base: newBase(key, attrs, group)}
	p.setAttributes()
	return p
}

func (p *Enum) setAttributes() {
	p.base.setAttributes()
	p.def = ToString(p.attrs["defaultValue"])
	p.value = p.def
	if p.value == "" {
		p.value = "0"
	}
	p.values = toStringSlice(p.attrs["enumValues"])

	if p.def != "" && !contains(p.Values(), Clean(p.def)) {
		p.values = append(p.values, p.def)
	}
}

func (p *Enum) Default() string {
	return p.def
}

// Values returns the normalized allowed values
func (p *Enum) Values() []string {
	out := make([]string, 0, len(p.values))
	for _, v := range p.values {
		out = append(out, Clean(v))
	}
	return out
}

// SetValues replaces the allowed values, in their raw form
func (p *Enum) SetValues(values []string) {
	p.values = append([]string(nil), values...)
}

func (p *Enum) Value() string {
	return Clean(p.value)
}

func (p *Enum) InternValue() string {
	return p.value
}

func (p *Enum) SetValue(value string) error {
	cleaned := Clean(value)
	if verr := validate.Enum(p.key, "", cleaned, p.Values()); verr != nil {
		return newInvalidValue(p.key, value, fmt.Sprintf("%v", p.values), verr)
	}

	for _, raw := range p.values {
		if Clean(raw) == cleaned {
			p.value = raw
			break
		}
	}

	p.fire(value)
	return nil
}

func (p *Enum) AddTrigger(value string, ruleID int, engine RuleEngine) {
	p.register(p.value, value, ruleID, engine)
}

func (p *Enum) Reset() {
	p.setAttributes()
}

func contains(list []string, s string) bool {
	for _, i := range list {
		if i == s {
			return true
		}
	}
	return false
}
