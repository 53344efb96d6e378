package command

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/jake-scott/hon-client/internal/pkg/honapi"
	"github.com/jake-scott/hon-client/internal/pkg/parameter"
)

type fakeAPI struct {
	commands   func() map[string]interface{}
	favourites []map[string]interface{}
	history    []map[string]interface{}
	fetchErr   error
	rejectSend bool
	sendErr    error
	sent       []honapi.CommandRequest
}

func (f *fakeAPI) WithTimeout(d time.Duration) honapi.API { return f }

func (f *fakeAPI) LoadAppliances(ctx context.Context) ([]honapi.ApplianceInfo, error) {
	return nil, nil
}

func (f *fakeAPI) LoadCommands(ctx context.Context, info honapi.ApplianceInfo) (map[string]interface{}, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.commands(), nil
}

func (f *fakeAPI) LoadFavourites(ctx context.Context, info honapi.ApplianceInfo) ([]map[string]interface{}, error) {
	return f.favourites, nil
}

func (f *fakeAPI) LoadCommandHistory(ctx context.Context, info honapi.ApplianceInfo) ([]map[string]interface{}, error) {
	return f.history, nil
}

func (f *fakeAPI) LoadAttributes(ctx context.Context, info honapi.ApplianceInfo) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

func (f *fakeAPI) LoadStatistics(ctx context.Context, info honapi.ApplianceInfo) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

func (f *fakeAPI) SendCommand(ctx context.Context, info honapi.ApplianceInfo, req honapi.CommandRequest) (bool, error) {
	f.sent = append(f.sent, req)
	if f.sendErr != nil {
		return false, f.sendErr
	}
	return !f.rejectSend, nil
}

type fakeOwner struct {
	api    honapi.API
	zone   int
	synced []string
}

func (o *fakeOwner) Info() honapi.ApplianceInfo {
	return honapi.ApplianceInfo{"macAddress": "aa-bb-cc-dd-ee-ff", "applianceTypeName": "WM", "applianceModelId": "1"}
}

func (o *fakeOwner) API() honapi.API                 { return o.api }
func (o *fakeOwner) Zone() int                       { return o.zone }
func (o *fakeOwner) Options() map[string]interface{} { return nil }
func (o *fakeOwner) SyncCommandToParams(name string) { o.synced = append(o.synced, name) }

func fixed(v string) map[string]interface{} {
	return map[string]interface{}{"typology": "fixed", "fixedValue": v}
}

func washerCommands() map[string]interface{} {
	return map[string]interface{}{
		"applianceModel": map[string]interface{}{
			"options": map[string]interface{}{"washTemp": "temp"},
		},
		"appVersion": "2.0",
		"settings": map[string]interface{}{
			"description":  "settings",
			"protocolType": "helianthus",
			"parameters": map[string]interface{}{
				"onOff": fixed("1"),
				"zoneMap": map[string]interface{}{
					"typology": "enum", "enumValues": []interface{}{"1", "2"}, "defaultValue": "1",
				},
			},
		},
		"startProgram": map[string]interface{}{
			"PROGRAMS.WM.COTTON": map[string]interface{}{
				"description":  "cotton",
				"protocolType": "helianthus",
				"parameters": map[string]interface{}{
					"temp": map[string]interface{}{
						"typology": "range", "minimumValue": "20", "maximumValue": "90",
						"incrementValue": "10", "defaultValue": "40", "mandatory": 1,
					},
					"spinSpeed": map[string]interface{}{
						"typology": "enum", "enumValues": []interface{}{"400", "800", "1200"}, "defaultValue": "800",
					},
					"prCode":   fixed("1"),
					"dryLevel": fixed("0"),
				},
				"ancillaryParameters": map[string]interface{}{
					"programRules": map[string]interface{}{
						"category": "rule",
						"typology": "fixed",
						"fixedValue": map[string]interface{}{
							"spinSpeed": map[string]interface{}{
								"@washTemp": map[string]interface{}{"90": "1200"},
							},
						},
					},
					"remoteActionable": fixed("1"),
				},
			},
			"PROGRAMS.WM.MIX": map[string]interface{}{
				"description":  "mix",
				"protocolType": "helianthus",
				"parameters": map[string]interface{}{
					"temp": map[string]interface{}{
						"typology": "range", "minimumValue": "20", "maximumValue": "60",
						"incrementValue": "20", "defaultValue": "40", "mandatory": 1,
					},
					"spinSpeed": fixed("800"),
					"prCode":    fixed("2"),
					"steam":     fixed("0"),
				},
			},
		},
	}
}

func load(t *testing.T, api *fakeAPI, owner *fakeOwner) *Loader {
	t.Helper()
	if api.commands == nil {
		api.commands = washerCommands
	}
	owner.api = api

	l := NewLoader(owner)
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return l
}

func mustGet(t *testing.T, set *Set, name string) *Command {
	t.Helper()
	c, ok := set.Get(name)
	if !ok {
		t.Fatalf("no command %s", name)
	}
	return c
}

func mustParam(t *testing.T, c *Command, key string) parameter.Parameter {
	t.Helper()
	p, ok := c.Parameter(key)
	if !ok {
		t.Fatalf("command %s/%s has no %s", c.Name(), c.Category(), key)
	}
	return p
}

func TestLoadBuildsCommands(t *testing.T) {
	l := load(t, &fakeAPI{}, &fakeOwner{})
	set := l.Commands()

	if got := set.Names(); !reflect.DeepEqual(got, []string{"settings", "startProgram"}) {
		t.Fatalf("unexpected commands %v", got)
	}
	if got := set.Categories("startProgram"); !reflect.DeepEqual(got, []string{"cotton", "mix"}) {
		t.Errorf("unexpected categories %v", got)
	}
	if got := mustGet(t, set, "startProgram").Category(); got != "PROGRAMS.WM.COTTON" {
		t.Errorf("expected cotton active, got %s", got)
	}
	if l.AdditionalData()["appVersion"] != "2.0" {
		t.Errorf("expected appVersion in additional data, got %v", l.AdditionalData())
	}
	if l.Options()["washTemp"] != "temp" {
		t.Errorf("expected options from appliance model, got %v", l.Options())
	}

	cotton := mustGet(t, set, "startProgram")
	if _, ok := cotton.Parameter("programRules"); ok {
		t.Errorf("rule leaves must not become parameters")
	}
	if len(cotton.Rules()) != 1 {
		t.Errorf("expected one rule set, got %d", len(cotton.Rules()))
	}
	if mustParam(t, cotton, "program").Value() != "cotton" {
		t.Errorf("unexpected program value %s", mustParam(t, cotton, "program").Value())
	}
}

func TestSetParametersPreferred(t *testing.T) {
	api := &fakeAPI{commands: func() map[string]interface{} {
		return map[string]interface{}{
			"appliance": map[string]interface{}{
				"a":             map[string]interface{}{"description": "a", "protocolType": "p"},
				"setParameters": map[string]interface{}{"description": "s", "protocolType": "p"},
			},
		}
	}}
	l := load(t, api, &fakeOwner{})

	if got := mustGet(t, l.Commands(), "appliance").Category(); got != "setParameters" {
		t.Errorf("expected setParameters active, got %s", got)
	}
	if _, ok := mustGet(t, l.Commands(), "appliance").Parameter("category"); !ok {
		t.Errorf("expected a category selector on non-program categories")
	}
}

func TestNestedCategoryContainer(t *testing.T) {
	api := &fakeAPI{commands: func() map[string]interface{} {
		return map[string]interface{}{
			"startProgram": map[string]interface{}{
				"GROUP": map[string]interface{}{
					"PROGRAMS.WM.COTTON": map[string]interface{}{
						"description": "cotton", "protocolType": "helianthus",
						"parameters": map[string]interface{}{"prCode": fixed("1")},
					},
					"PROGRAMS.WM.ECO": map[string]interface{}{
						"description": "eco", "protocolType": "helianthus",
						"parameters": map[string]interface{}{"prCode": fixed("9")},
					},
				},
				"OTHER": map[string]interface{}{
					"appliance": map[string]interface{}{"description": "a", "protocolType": "p"},
					"setParameters": map[string]interface{}{
						"description": "s", "protocolType": "p",
						"parameters": map[string]interface{}{"onOff": fixed("1")},
					},
				},
			},
		}
	}}
	set := load(t, api, &fakeOwner{}).Commands()

	if got := set.Categories("startProgram"); !reflect.DeepEqual(got, []string{"GROUP", "OTHER"}) {
		t.Fatalf("categories = %v", got)
	}

	group, ok := set.Lookup(Key{Name: "startProgram", Category: "GROUP"})
	if !ok {
		t.Fatal("nested container not registered")
	}
	if got := mustParam(t, group, "prCode").Value(); got != "1" {
		t.Errorf("expected first inner variant, prCode = %s", got)
	}

	other, ok := set.Lookup(Key{Name: "startProgram", Category: "OTHER"})
	if !ok {
		t.Fatal("second nested container not registered")
	}
	if _, ok := other.Parameter("onOff"); !ok {
		t.Errorf("expected the inner setParameters variant, got %v", other.ParameterValues())
	}
}

func TestProgramSwitchReindexesCommand(t *testing.T) {
	set := load(t, &fakeAPI{}, &fakeOwner{}).Commands()
	cotton := mustGet(t, set, "startProgram")

	if err := mustParam(t, cotton, "program").SetValue("mix"); err != nil {
		t.Fatal(err)
	}
	if got := mustGet(t, set, "startProgram").Category(); got != "PROGRAMS.WM.MIX" {
		t.Fatalf("expected mix active, got %s", got)
	}

	mix := mustGet(t, set, "startProgram")
	if err := mustParam(t, mix, "program").SetValue("wool"); !parameter.IsInvalidValue(err) {
		t.Errorf("expected InvalidValue, got %v", err)
	}
	mix.SetCategory("wool")
	if got := mustGet(t, set, "startProgram"); got != mix {
		t.Errorf("unknown category changed the active command")
	}
}

func TestRuleUsesOptionAlias(t *testing.T) {
	set := load(t, &fakeAPI{}, &fakeOwner{}).Commands()
	cotton := mustGet(t, set, "startProgram")

	if err := mustParam(t, cotton, "temp").SetValue("90"); err != nil {
		t.Fatal(err)
	}
	spin := mustParam(t, cotton, "spinSpeed")
	if !reflect.DeepEqual(spin.Values(), []string{"1200"}) || spin.Value() != "1200" {
		t.Errorf("expected spin narrowed to 1200, got %v / %s", spin.Values(), spin.Value())
	}
}

func TestSettingKeysUnion(t *testing.T) {
	cotton := mustGet(t, load(t, &fakeAPI{}, &fakeOwner{}).Commands(), "startProgram")

	want := []string{"dryLevel", "prCode", "program", "remoteActionable", "spinSpeed", "steam", "temp"}
	if got := cotton.SettingKeys(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestAvailableSettingsPrefersMoreOptions(t *testing.T) {
	set := load(t, &fakeAPI{}, &fakeOwner{}).Commands()
	mix, _ := set.Lookup(Key{Name: "startProgram", Category: "mix"})

	available := mix.AvailableSettings()
	if _, ok := available["spinSpeed"].(*parameter.Enum); !ok {
		t.Errorf("expected enum spinSpeed to beat fixed, got %T", available["spinSpeed"])
	}
	temp, ok := available["temp"].(*parameter.Range)
	if !ok || temp.Max() != 90 {
		t.Errorf("expected the wider cotton temp range")
	}
}

func TestZoneMapDefault(t *testing.T) {
	settings := mustGet(t, load(t, &fakeAPI{}, &fakeOwner{zone: 2}).Commands(), "settings")
	if got := mustParam(t, settings, "zoneMap").Value(); got != "2" {
		t.Errorf("expected zone 2, got %s", got)
	}
}

func washerHistory() []map[string]interface{} {
	return []map[string]interface{}{
		{"command": map[string]interface{}{
			"commandName": "startProgram",
			"parameters": map[string]interface{}{
				"program":   "PROGRAMS.WM.MIX",
				"temp":      "60",
				"spinSpeed": "800",
				"steam":     "1",
			},
		}},
		{"command": map[string]interface{}{
			"commandName": "startProgram",
			"parameters":  map[string]interface{}{"program": "PROGRAMS.WM.COTTON", "temp": "20"},
		}},
	}
}

func TestHistoryReplay(t *testing.T) {
	api := &fakeAPI{history: washerHistory()}
	set := load(t, api, &fakeOwner{}).Commands()

	cmd := mustGet(t, set, "startProgram")
	if cmd.Category() != "PROGRAMS.WM.MIX" {
		t.Fatalf("expected the most recent program, got %s", cmd.Category())
	}
	if mustParam(t, cmd, "temp").Value() != "60" || mustParam(t, cmd, "steam").Value() != "1" {
		t.Errorf("history values not applied: %v", cmd.ParameterValues())
	}

	params := api.history[0]["command"].(map[string]interface{})["parameters"].(map[string]interface{})
	if _, ok := params["program"]; !ok {
		t.Errorf("replay modified the fetched history")
	}
}

func TestHistoryReplaySkipsInvalidValues(t *testing.T) {
	api := &fakeAPI{history: []map[string]interface{}{
		{"command": map[string]interface{}{
			"commandName": "startProgram",
			"parameters":  map[string]interface{}{"temp": "65", "spinSpeed": "400"},
		}},
	}}
	cotton := mustGet(t, load(t, api, &fakeOwner{}).Commands(), "startProgram")

	if mustParam(t, cotton, "temp").Value() != "40" {
		t.Errorf("invalid temp should be skipped")
	}
	if mustParam(t, cotton, "spinSpeed").Value() != "400" {
		t.Errorf("valid keys must still be applied")
	}
}

func TestHistoryReplayIsRepeatable(t *testing.T) {
	api := &fakeAPI{history: washerHistory()}

	first := mustGet(t, load(t, api, &fakeOwner{}).Commands(), "startProgram").ParameterValues()
	second := mustGet(t, load(t, api, &fakeOwner{}).Commands(), "startProgram").ParameterValues()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("replays differ: %v vs %v", first, second)
	}
}

func TestFavouritesAreIndependentCategories(t *testing.T) {
	api := &fakeAPI{favourites: []map[string]interface{}{{
		"favouriteName": "quick",
		"command": map[string]interface{}{
			"commandName": "startProgram",
			"programName": "PROGRAMS.WM.COTTON",
			"parameters":  map[string]interface{}{"temp": "60", "spinSpeed": "1200"},
		},
	}}}
	set := load(t, api, &fakeOwner{}).Commands()

	fav, ok := set.Lookup(Key{Name: "startProgram", Category: "quick"})
	if !ok {
		t.Fatalf("favourite not registered, categories %v", set.Categories("startProgram"))
	}
	if mustParam(t, fav, "temp").Value() != "60" || mustParam(t, fav, "favourite").Value() != "1" {
		t.Errorf("favourite values not applied: %v", fav.ParameterValues())
	}
	if mustParam(t, fav, "program").Value() != "quick" {
		t.Errorf("expected program display value quick, got %s", mustParam(t, fav, "program").Value())
	}

	cotton, _ := set.Lookup(Key{Name: "startProgram", Category: "cotton"})
	if mustParam(t, cotton, "temp").Value() != "40" {
		t.Errorf("favourite shares parameters with its base program")
	}

	prog := mustParam(t, cotton, "program").(*parameter.Program)
	if got := prog.Values(); !reflect.DeepEqual(got, []string{"cotton", "mix", "quick"}) {
		t.Errorf("unexpected program values %v", got)
	}
	if got := prog.IDs(); !reflect.DeepEqual(got, map[int]string{1: "cotton", 2: "mix"}) {
		t.Errorf("unexpected program ids %v", got)
	}
}

func TestSendGroups(t *testing.T) {
	api := &fakeAPI{}
	owner := &fakeOwner{}
	cotton := mustGet(t, load(t, api, owner).Commands(), "startProgram")
	_ = mustParam(t, cotton, "temp").SetValue("60")

	ok, err := cotton.Send(context.Background(), false)
	if err != nil || !ok {
		t.Fatalf("send: %v %v", ok, err)
	}

	req := api.sent[0]
	want := map[string]string{"temp": "60", "spinSpeed": "800", "prCode": "1", "dryLevel": "0"}
	if !reflect.DeepEqual(req.Parameters, want) {
		t.Errorf("expected %v, got %v", want, req.Parameters)
	}
	if !reflect.DeepEqual(req.AncillaryParameters, map[string]string{"remoteActionable": "1"}) {
		t.Errorf("unexpected ancillary %v", req.AncillaryParameters)
	}
	if !reflect.DeepEqual(owner.synced, []string{"startProgram"}) {
		t.Errorf("expected telemetry sync before send, got %v", owner.synced)
	}

	_, _ = cotton.Send(context.Background(), true)
	if got := api.sent[1].Parameters; !reflect.DeepEqual(got, map[string]string{"temp": "60"}) {
		t.Errorf("expected mandatory only, got %v", got)
	}

	_, _ = cotton.SendSpecific(context.Background(), []string{"spinSpeed"})
	if got := api.sent[2].Parameters; !reflect.DeepEqual(got, map[string]string{"temp": "60", "spinSpeed": "800"}) {
		t.Errorf("expected named plus mandatory, got %v", got)
	}
}

func TestSendErrors(t *testing.T) {
	api := &fakeAPI{rejectSend: true}
	owner := &fakeOwner{}
	cotton := mustGet(t, load(t, api, owner).Commands(), "startProgram")

	_, err := cotton.Send(context.Background(), false)
	var apiErr *honapi.ApiError
	if !errors.As(err, &apiErr) {
		t.Errorf("expected ApiError, got %v", err)
	}

	api.sendErr = &honapi.ApiError{Command: "startProgram", ResultCode: "7"}
	_, err = cotton.Send(context.Background(), false)
	if !errors.As(err, &apiErr) || apiErr.ResultCode != "7" {
		t.Errorf("expected the transport result code, got %v", err)
	}

	req := cotton.Request(true)
	if _, err := cotton.Dispatch(context.Background(), req); !errors.As(err, &apiErr) {
		t.Errorf("dispatch: expected ApiError, got %v", err)
	}
	if got := api.sent[len(api.sent)-1].Parameters; !reflect.DeepEqual(got, map[string]string{"temp": "40"}) {
		t.Errorf("dispatched %v", got)
	}

	owner.api = nil
	if _, err := cotton.Send(context.Background(), false); !errors.Is(err, honapi.ErrNoAuthentication) {
		t.Errorf("expected ErrNoAuthentication, got %v", err)
	}
}

func TestSendRoundTripsThroughHistory(t *testing.T) {
	api := &fakeAPI{}
	set := load(t, api, &fakeOwner{}).Commands()

	cotton := mustGet(t, set, "startProgram")
	_ = mustParam(t, cotton, "program").SetValue("mix")
	mix := mustGet(t, set, "startProgram")
	_ = mustParam(t, mix, "temp").SetValue("60")
	_ = mustParam(t, mix, "steam").SetValue("1")
	if _, err := mix.Send(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	sent := map[string]interface{}{"program": mix.Category()}
	for k, v := range api.sent[0].Parameters {
		sent[k] = v
	}
	replay := &fakeAPI{history: []map[string]interface{}{
		{"command": map[string]interface{}{"commandName": "startProgram", "parameters": sent}},
	}}
	again := mustGet(t, load(t, replay, &fakeOwner{}).Commands(), "startProgram")

	if got := again.ParameterGroups()[parameter.GroupParameters]; !reflect.DeepEqual(got, api.sent[0].Parameters) {
		t.Errorf("round trip mismatch: sent %v, rebuilt %v", api.sent[0].Parameters, got)
	}
}

func TestLoadFailurePublishesNothing(t *testing.T) {
	owner := &fakeOwner{}
	owner.api = &fakeAPI{fetchErr: errors.New("boom"), commands: washerCommands}

	l := NewLoader(owner)
	if err := l.Load(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	if l.Commands().Len() != 0 {
		t.Errorf("commands published after a failed load")
	}
}
