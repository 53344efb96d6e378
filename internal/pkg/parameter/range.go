package parameter

import (
	"fmt"
	"math"

	oaerrors "github.com/go-openapi/errors"
	"github.com/go-openapi/validate"
)

// maxRangeValues caps the enumeration returned by Range.Values
const maxRangeValues = 10000

type Range struct {
	base
	min   float64
	max   float64
	step  float64
	def   float64
	value float64
}

func NewRange(key string, attrs map[string]interface{}, group string) *Range {
	p := &Range{base: newBase(key, attrs, group)}
	p.setAttributes()
	return p
}

func (p *Range) setAttributes() {
	p.base.setAttributes()
	p.min = toFloat(p.attrs["minimumValue"], 0)
	p.max = toFloat(p.attrs["maximumValue"], 0)
	p.step = toFloat(p.attrs["incrementValue"], 0)
	p.def = toFloat(p.attrs["defaultValue"], p.min)
	p.value = p.def
}

func (p *Range) Min() float64     { return p.min }
func (p *Range) Max() float64     { return p.max }
func (p *Range) Default() float64 { return p.def }
func (p *Range) Float() float64   { return p.value }

func (p *Range) SetMin(v float64)  { p.min = v }
func (p *Range) SetMax(v float64)  { p.max = v }
func (p *Range) SetStep(v float64) { p.step = v }

// Step defaults to 1 when the definition has none
func (p *Range) Step() float64 {
	if p.step == 0 {
		return 1
	}
	return p.step
}

func (p *Range) Value() string {
	return FormatNumber(p.value)
}

func (p *Range) InternValue() string {
	return p.Value()
}

func (p *Range) allowed() string {
	return fmt.Sprintf("min %s max %s step %s", FormatNumber(p.min), FormatNumber(p.max), FormatNumber(p.Step()))
}

func (p *Range) SetValue(value string) error {
	f, err := StrToFloat(value)
	if err != nil {
		return newInvalidValue(p.key, value, p.allowed(), oaerrors.InvalidType(p.key, "", "number", value))
	}

	return p.SetFloat(f)
}

// SetFloat assigns v when it lies within [min, max] on a step boundary.
// The step check is done on values scaled by 100 to absorb float error.
func (p *Range) SetFloat(v float64) error {
	if verr := validate.Minimum(p.key, "", v, p.min, false); verr != nil {
		return newInvalidValue(p.key, FormatNumber(v), p.allowed(), verr)
	}
	if verr := validate.Maximum(p.key, "", v, p.max, false); verr != nil {
		return newInvalidValue(p.key, FormatNumber(v), p.allowed(), verr)
	}

	scaled := math.Round((v - p.min) * 100)
	scaledStep := math.Round(p.Step() * 100)
	if scaledStep != 0 && math.Mod(scaled, scaledStep) != 0 {
		return newInvalidValue(p.key, FormatNumber(v), p.allowed(), oaerrors.NotMultipleOf(p.key, "", p.Step(), v))
	}

	p.value = v
	p.fire(p.Value())
	return nil
}

func (p *Range) Values() []string {
	var result []string
	step := p.Step()
	for i := 0; i < maxRangeValues; i++ {
		v := p.min + float64(i)*step
		if v > p.max {
			break
		}
		result = append(result, FormatNumber(v))
	}
	return result
}

func (p *Range) AddTrigger(value string, ruleID int, engine RuleEngine) {
	p.register(p.Value(), value, ruleID, engine)
}

func (p *Range) Reset() {
	p.setAttributes()
}
