package appliance

import (
	"strconv"
	"strings"
	"sync"

	"github.com/jake-scott/hon-client/internal/pkg/parameter"
)

/*
 *  Per appliance type adjustments of telemetry and settings
 */

// Extension adapts the generic model to the quirks of an appliance type
type Extension interface {
	// AdjustAttributes derives extra telemetry once attributes are loaded
	AdjustAttributes(a *Appliance, attrs *Attributes)
	// AdjustSettings filters the flattened settings of the appliance
	AdjustSettings(settings map[string]parameter.Parameter) map[string]parameter.Parameter
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Extension{}
)

// Register installs the extension factory for an appliance type name
func Register(typeName string, factory func() Extension) {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry[strings.ToUpper(typeName)] = factory
}

// ExtensionFor returns the registered extension for typeName, or the
// base behaviour
func ExtensionFor(typeName string) Extension {
	registryMu.RLock()
	factory, ok := registry[strings.ToUpper(typeName)]
	registryMu.RUnlock()

	if !ok {
		return Base{}
	}
	return factory()
}

func init() {
	Register("WM", func() Extension { return WashingMachine{} })
	Register("WD", func() Extension { return WasherDryer{} })
	Register("TD", func() Extension { return TumbleDryer{} })
	Register("DW", func() Extension { return DishWasher{} })
	Register("OV", func() Extension { return Oven{} })
	Register("REF", func() Extension { return Fridge{} })
	Register("WH", func() Extension { return WaterHeater{} })
}

// Base names the running program from its prCode
type Base struct{}

func (Base) AdjustAttributes(a *Appliance, attrs *Attributes) {
	name := "No Program"

	code, err := strconv.Atoi(attrs.Value("prCode"))
	if err == nil && code != 0 {
		if p, ok := a.settings(false)["startProgram.program"].(*parameter.Program); ok {
			if program, ok := p.IDs()[code]; ok {
				name = program
			}
		}
	}

	attrs.Extra["programName"] = name
}

func (Base) AdjustSettings(settings map[string]parameter.Parameter) map[string]parameter.Parameter {
	return settings
}

func disconnected(attrs *Attributes) bool {
	event, _ := attrs.Extra["lastConnEvent"].(map[string]interface{})
	return parameter.ToString(event["category"]) == "DISCONNECTED"
}

// truthy mirrors how the cloud signals presence: absent, empty or zero
// values are false
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case map[string]interface{}:
		return len(t) > 0
	case []interface{}:
		return len(t) > 0
	case string:
		return t != ""
	case bool:
		return t
	}
	s := parameter.ToString(v)
	return s != "" && s != "0"
}

type WashingMachine struct{ Base }

func (w WashingMachine) AdjustAttributes(a *Appliance, attrs *Attributes) {
	w.Base.AdjustAttributes(a, attrs)
	if disconnected(attrs) {
		attrs.Set("machMode", "0")
	}
	attrs.Extra["active"] = truthy(attrs.Extra["activity"])
	attrs.Extra["pause"] = attrs.Value("machMode") == "3"
}

type WasherDryer struct{ WashingMachine }

type TumbleDryer struct{ WashingMachine }

// AdjustSettings hides the dry level when the program fixes it to 11
func (TumbleDryer) AdjustSettings(settings map[string]parameter.Parameter) map[string]parameter.Parameter {
	if p, ok := settings["startProgram.dryLevel"].(*parameter.Fixed); ok && p.Value() == "11" {
		delete(settings, "startProgram.dryLevel")
	}
	return settings
}

type DishWasher struct{ Base }

func (d DishWasher) AdjustAttributes(a *Appliance, attrs *Attributes) {
	d.Base.AdjustAttributes(a, attrs)
	if disconnected(attrs) {
		attrs.Set("machMode", "0")
	}
	attrs.Extra["active"] = truthy(attrs.Extra["activity"])
}

type Oven struct{ Base }

func (o Oven) AdjustAttributes(a *Appliance, attrs *Attributes) {
	o.Base.AdjustAttributes(a, attrs)
	if disconnected(attrs) {
		for _, key := range []string{"temp", "onOffStatus", "remoteCtrValid", "remainingTimeMM"} {
			attrs.Set(key, "0")
		}
	}
	attrs.Extra["active"] = attrs.Value("onOffStatus") == "1"
}

type Fridge struct{ Base }

func (f Fridge) AdjustAttributes(a *Appliance, attrs *Attributes) {
	f.Base.AdjustAttributes(a, attrs)

	switch {
	case attrs.Value("holidayMode") == "1":
		attrs.Extra["modeZ1"] = "holiday"
	case attrs.Value("intelligenceMode") == "1":
		attrs.Extra["modeZ1"] = "auto_set"
	case attrs.Value("quickModeZ1") == "1":
		attrs.Extra["modeZ1"] = "super_cool"
	default:
		attrs.Extra["modeZ1"] = "no_mode"
	}

	switch {
	case attrs.Value("quickModeZ2") == "1":
		attrs.Extra["modeZ2"] = "super_freeze"
	case attrs.Value("intelligenceMode") == "1":
		attrs.Extra["modeZ2"] = "auto_set"
	default:
		attrs.Extra["modeZ2"] = "no_mode"
	}
}

type WaterHeater struct{ Base }

func (w WaterHeater) AdjustAttributes(a *Appliance, attrs *Attributes) {
	w.Base.AdjustAttributes(a, attrs)
	attrs.Extra["active"] = attrs.Value("onOffStatus") == "1"
}
