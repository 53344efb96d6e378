package rules

import (
	"reflect"
	"testing"

	"github.com/pkg/errors"

	"github.com/jake-scott/hon-client/internal/pkg/parameter"
)

type paramMap map[string]parameter.Parameter

func (m paramMap) Parameter(key string) (parameter.Parameter, bool) {
	p, ok := m[key]
	return p, ok
}

func testParams() paramMap {
	return paramMap{
		"mode": parameter.NewEnum("mode", map[string]interface{}{
			"enumValues":   []interface{}{"eco", "normal", "turbo"},
			"defaultValue": "normal",
		}, parameter.GroupParameters),
		"temp": parameter.NewRange("temp", map[string]interface{}{
			"minimumValue":   "0",
			"maximumValue":   "100",
			"incrementValue": "10",
			"defaultValue":   "20",
		}, parameter.GroupParameters),
		"spin": parameter.NewEnum("spin", map[string]interface{}{
			"enumValues":   []interface{}{"400", "800", "1200"},
			"defaultValue": "800",
		}, parameter.GroupParameters),
		"door": parameter.NewFixed("door", map[string]interface{}{"fixedValue": "0"}, parameter.GroupParameters),
	}
}

func mustParse(t *testing.T, params paramMap, options map[string]string, tree map[string]interface{}) *RuleSet {
	t.Helper()
	r, err := Parse(params, options, map[string]interface{}{"typology": "fixed", "fixedValue": tree})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r.Patch()
	return r
}

func TestRuleFiresOnTrigger(t *testing.T) {
	params := testParams()
	mustParse(t, params, nil, map[string]interface{}{
		"temp": map[string]interface{}{
			"@mode": map[string]interface{}{
				"eco": map[string]interface{}{"typology": "fixed", "fixedValue": "40"},
			},
		},
	})

	if params["temp"].Value() != "20" {
		t.Fatalf("rule fired before its trigger matched")
	}
	if err := params["mode"].SetValue("eco"); err != nil {
		t.Fatal(err)
	}
	if params["temp"].Value() != "40" {
		t.Errorf("expected temp 40, got %s", params["temp"].Value())
	}
}

func TestPipeSeparatedTriggerValues(t *testing.T) {
	params := testParams()
	r := mustParse(t, params, nil, map[string]interface{}{
		"temp": map[string]interface{}{
			"mode": map[string]interface{}{"eco|turbo": "30"},
		},
	})

	if got := len(r.Rules()["mode"]); got != 2 {
		t.Fatalf("expected 2 rules on mode, got %d", got)
	}
	_ = params["mode"].SetValue("turbo")
	if params["temp"].Value() != "30" {
		t.Errorf("expected temp 30, got %s", params["temp"].Value())
	}
}

func TestRuleWithExtrasFiresWhicheverConditionChangesLast(t *testing.T) {
	tree := map[string]interface{}{
		"temp": map[string]interface{}{
			"mode": map[string]interface{}{
				"eco": map[string]interface{}{
					"door": map[string]interface{}{"1": "60"},
				},
			},
		},
	}

	params := testParams()
	mustParse(t, params, nil, tree)
	_ = params["mode"].SetValue("eco")
	if params["temp"].Value() != "20" {
		t.Fatalf("rule fired without its extra condition")
	}
	_ = params["door"].SetValue("1")
	if params["temp"].Value() != "60" {
		t.Errorf("expected 60 after door changed last, got %s", params["temp"].Value())
	}

	params = testParams()
	mustParse(t, params, nil, tree)
	_ = params["door"].SetValue("1")
	if params["temp"].Value() != "20" {
		t.Fatalf("rule fired without its trigger")
	}
	_ = params["mode"].SetValue("eco")
	if params["temp"].Value() != "60" {
		t.Errorf("expected 60 after mode changed last, got %s", params["temp"].Value())
	}
}

func TestFixedEffectNarrowsEnum(t *testing.T) {
	params := testParams()
	mustParse(t, params, nil, map[string]interface{}{
		"spin": map[string]interface{}{"mode": map[string]interface{}{"eco": "400"}},
	})

	_ = params["mode"].SetValue("eco")
	if got := params["spin"].Values(); !reflect.DeepEqual(got, []string{"400"}) {
		t.Errorf("expected spin narrowed to [400], got %v", got)
	}
	if params["spin"].Value() != "400" {
		t.Errorf("expected 400, got %s", params["spin"].Value())
	}
}

func TestFixedEffectWidensRange(t *testing.T) {
	params := testParams()
	mustParse(t, params, nil, map[string]interface{}{
		"temp": map[string]interface{}{"mode": map[string]interface{}{"turbo": "150"}},
	})

	_ = params["mode"].SetValue("turbo")
	temp := params["temp"].(*parameter.Range)
	if temp.Max() != 150 || temp.Value() != "150" {
		t.Errorf("expected range widened to 150, got max %v value %s", temp.Max(), temp.Value())
	}
}

func TestEnumEffect(t *testing.T) {
	params := testParams()
	mustParse(t, params, nil, map[string]interface{}{
		"spin": map[string]interface{}{
			"mode": map[string]interface{}{
				"turbo": map[string]interface{}{"typology": "enum", "enumValues": "1200|1400", "defaultValue": "1400"},
			},
		},
	})

	_ = params["mode"].SetValue("turbo")
	if got := params["spin"].Values(); !reflect.DeepEqual(got, []string{"1200", "1400"}) {
		t.Errorf("unexpected spin values %v", got)
	}
	if params["spin"].Value() != "1400" {
		t.Errorf("expected 1400, got %s", params["spin"].Value())
	}
}

func TestAliasesResolved(t *testing.T) {
	params := testParams()
	mustParse(t, params, map[string]string{"washMode": "mode", "waterTemp": "temp"}, map[string]interface{}{
		"waterTemp": map[string]interface{}{"@washMode": map[string]interface{}{"eco": "50"}},
	})

	_ = params["mode"].SetValue("eco")
	if params["temp"].Value() != "50" {
		t.Errorf("expected aliased rule to set temp 50, got %s", params["temp"].Value())
	}
}

func TestSelfReferenceIgnored(t *testing.T) {
	r, err := Parse(testParams(), nil, map[string]interface{}{
		"fixedValue": map[string]interface{}{
			"temp": map[string]interface{}{"mode": map[string]interface{}{"eco": "@temp"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Rules()) != 0 {
		t.Errorf("expected no rules, got %v", r.Rules())
	}
}

func TestRuleNotSupported(t *testing.T) {
	_, err := Parse(testParams(), nil, map[string]interface{}{"typology": "fixed"})
	if !errors.Is(err, ErrRuleNotSupported) {
		t.Errorf("expected ErrRuleNotSupported, got %v", err)
	}
}

func TestCyclicRulesTerminate(t *testing.T) {
	params := paramMap{
		"a": parameter.NewFixed("a", map[string]interface{}{"fixedValue": "0"}, parameter.GroupParameters),
		"b": parameter.NewFixed("b", map[string]interface{}{"fixedValue": "0"}, parameter.GroupParameters),
	}
	mustParse(t, params, nil, map[string]interface{}{
		"a": map[string]interface{}{"b": map[string]interface{}{"1": "1"}},
		"b": map[string]interface{}{"a": map[string]interface{}{"1": "1"}},
	})

	_ = params["a"].SetValue("1")
	if params["a"].Value() != "1" || params["b"].Value() != "1" {
		t.Errorf("expected both 1, got a=%s b=%s", params["a"].Value(), params["b"].Value())
	}
}

func TestTriggersDescribeRules(t *testing.T) {
	params := testParams()
	mustParse(t, params, nil, map[string]interface{}{
		"temp": map[string]interface{}{"mode": map[string]interface{}{"eco": "40"}},
	})

	want := map[string]interface{}{"eco": map[string]interface{}{"temp": "40"}}
	if got := params["mode"].Triggers(); !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected triggers %v", got)
	}
}
