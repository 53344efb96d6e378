package parameter

import (
	"sort"
	"strconv"
	"strings"

	"github.com/go-openapi/validate"
)

// category namespaces hidden from program selection
var programFilter = []string{"iot_recipe", "iot_guided"}

// CategorySource is the command side of a Program parameter
type CategorySource interface {
	CategoryNames() []string
	SelectCategory(name string) bool
	CategoryParameter(category, key string) (Parameter, bool)
}

// Program selects the active category of its command
type Program struct {
	base
	value  string
	source CategorySource
}

func NewProgram(key string, categoryName string, source CategorySource, group string) *Program {
	p := &Program{base: newBase(key, nil, group), source: source}
	p.typology = TypologyEnum
	p.value = CleanCategoryName(categoryName)
	return p
}

// CleanCategoryName turns PROGRAMS.TYPE.NAME into name
func CleanCategoryName(category string) string {
	if strings.Contains(category, "PROGRAM") {
		parts := strings.Split(category, ".")
		return strings.ToLower(parts[len(parts)-1])
	}
	return category
}

func (p *Program) Value() string {
	return p.value
}

func (p *Program) InternValue() string {
	return p.value
}

// SetDisplayValue changes the shown value without switching category
func (p *Program) SetDisplayValue(value string) {
	p.value = value
}

// SetValue switches the owning command to the named category
func (p *Program) SetValue(value string) error {
	values := p.Values()
	if verr := validate.Enum(p.key, "", value, values); verr != nil {
		return newInvalidValue(p.key, value, strings.Join(values, ", "), verr)
	}

	p.source.SelectCategory(value)
	p.fire(value)
	return nil
}

func (p *Program) Values() []string {
	var values []string
	for _, name := range p.source.CategoryNames() {
		if filtered(name) {
			continue
		}
		values = append(values, name)
	}
	sort.Strings(values)
	return values
}

// IDs maps program codes to category names, skipping favourites and
// internal namespaces
func (p *Program) IDs() map[int]string {
	ids := map[int]string{}
	for _, name := range p.source.CategoryNames() {
		if strings.Contains(name, "iot_") {
			continue
		}
		code, ok := p.source.CategoryParameter(name, "prCode")
		if !ok {
			continue
		}
		if fav, ok := p.source.CategoryParameter(name, "favourite"); ok && fav.Value() == "1" {
			continue
		}
		id, err := strconv.Atoi(code.Value())
		if err != nil {
			continue
		}
		ids[id] = name
	}
	return ids
}

func (p *Program) AddTrigger(value string, ruleID int, engine RuleEngine) {
	p.register(p.value, value, ruleID, engine)
}

func (p *Program) Reset() {}

func filtered(name string) bool {
	for _, f := range programFilter {
		if strings.Contains(name, f) {
			return true
		}
	}
	return false
}
