package parameter

// Fixed holds a single value.  Despite the name the value can be
// overwritten: rule effects rely on it.
type Fixed struct {
	base
	value string
}

func NewFixed(key string, attrs map[string]interface{}, group string) *Fixed {
	p := &Fixed{base: newBase(key, attrs, group)}
	p.setAttributes()
	return p
}

func (p *Fixed) setAttributes() {
	p.base.setAttributes()
	p.value = ToString(p.attrs["fixedValue"])
}

func (p *Fixed) Value() string {
	if p.value == "" {
		return "0"
	}
	return p.value
}

func (p *Fixed) InternValue() string {
	return p.Value()
}

func (p *Fixed) SetValue(value string) error {
	p.value = value
	p.fire(value)
	return nil
}

func (p *Fixed) Values() []string {
	return []string{p.Value()}
}

func (p *Fixed) AddTrigger(value string, ruleID int, engine RuleEngine) {
	p.register(p.value, value, ruleID, engine)
}

func (p *Fixed) Reset() {
	p.setAttributes()
}
