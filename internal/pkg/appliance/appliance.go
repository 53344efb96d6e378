package appliance

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jake-scott/hon-client/internal/pkg/command"
	"github.com/jake-scott/hon-client/internal/pkg/honapi"
	"github.com/jake-scott/hon-client/internal/pkg/logging"
	"github.com/jake-scott/hon-client/internal/pkg/parameter"
)

// MinimalUpdateInterval throttles Update
const MinimalUpdateInterval = 5 * time.Second

const defaultMac = "xx-xx-xx-xx-xx-xx"

var placeholderNick = regexp.MustCompile(`^[xX1\s-]+$`)

var (
	// ErrUnknownSetting is returned for a setting name no command offers
	ErrUnknownSetting = errors.New("unknown setting")
	// ErrInactiveSetting is returned for a setting only another category
	// of its command offers
	ErrInactiveSetting = errors.New("setting not offered by the active category")
	ErrUnknownCommand  = errors.New("unknown command")
)

// Attributes is the live telemetry of an appliance
type Attributes struct {
	Parameters map[string]*Attribute
	// Extra holds the other top level context entries and derived values
	Extra map[string]interface{}

	clock func() time.Time
}

func newAttributes(clock func() time.Time) Attributes {
	return Attributes{
		Parameters: map[string]*Attribute{},
		Extra:      map[string]interface{}{},
		clock:      clock,
	}
}

// Value returns the named telemetry value, empty when unknown
func (a *Attributes) Value(key string) string {
	if attr, ok := a.Parameters[key]; ok {
		return attr.Value()
	}
	return ""
}

// Set overwrites a telemetry value, creating it when missing
func (a *Attributes) Set(key, value string) {
	if attr, ok := a.Parameters[key]; ok {
		attr.value = value
		return
	}
	a.Parameters[key] = NewAttribute(map[string]interface{}{"parNewVal": value}, a.clock)
}

// update applies a {parNewVal, lastUpdate} payload to key
func (a *Attributes) update(key string, data map[string]interface{}) bool {
	if attr, ok := a.Parameters[key]; ok {
		return attr.Update(data, false)
	}
	a.Parameters[key] = NewAttribute(data, a.clock)
	return true
}

// Appliance is one appliance of the account, or one zone of it
type Appliance struct {
	mu sync.Mutex

	info  honapi.ApplianceInfo
	api   honapi.API
	zone  int
	clock func() time.Time

	commands       *command.Set
	applianceModel map[string]interface{}
	additionalData map[string]interface{}
	statistics     map[string]interface{}
	attributes     Attributes
	lastUpdate     time.Time
	connected      bool

	extension Extension
}

// New builds an appliance from its info payload.  zone is 0 for
// appliances without zones.
func New(api honapi.API, info honapi.ApplianceInfo, zone int) *Appliance {
	info = normalizeInfo(info)

	a := &Appliance{
		info:           info,
		api:            api,
		zone:           zone,
		clock:          time.Now,
		commands:       command.NewSet(),
		applianceModel: map[string]interface{}{},
		additionalData: map[string]interface{}{},
		statistics:     map[string]interface{}{},
		connected:      true,
	}
	a.attributes = newAttributes(a.now)
	a.extension = ExtensionFor(info.Type())

	return a
}

// WithClock replaces the time source, for tests
func (a *Appliance) WithClock(clock func() time.Time) *Appliance {
	a.clock = clock
	return a
}

func (a *Appliance) now() time.Time {
	return a.clock()
}

// normalizeInfo copies info, flattening the attributes list into a map
func normalizeInfo(info honapi.ApplianceInfo) honapi.ApplianceInfo {
	out := honapi.ApplianceInfo{}
	for k, v := range info {
		out[k] = v
	}

	if list, ok := out["attributes"].([]interface{}); ok {
		attrs := map[string]interface{}{}
		for _, item := range list {
			if m, ok := item.(map[string]interface{}); ok {
				attrs[parameter.ToString(m["parName"])] = m["parValue"]
			}
		}
		out["attributes"] = attrs
	}
	return out
}

func (a *Appliance) log(ctx context.Context) *logrus.Entry {
	return logging.Appliance(ctx, a.MacAddress())
}

func (a *Appliance) Info() honapi.ApplianceInfo { return a.info }
func (a *Appliance) Zone() int                  { return a.zone }

// API returns nil when the appliance has no session
func (a *Appliance) API() honapi.API { return a.api }

func (a *Appliance) MacAddress() string { return a.info.MacAddress() }
func (a *Appliance) Type() string       { return a.info.Type() }
func (a *Appliance) ModelID() string    { return a.info.ModelID() }
func (a *Appliance) Code() string       { return a.info.Code() }

func (a *Appliance) checkNameZone(key string, frontend bool) string {
	value := a.info.Get(key)
	if value == "" || a.zone == 0 {
		return value
	}
	if frontend {
		return value + " Z" + strconv.Itoa(a.zone)
	}
	return value + "_z" + strconv.Itoa(a.zone)
}

func (a *Appliance) ModelName() string {
	return a.checkNameZone("modelName", true)
}

func (a *Appliance) Brand() string {
	brand := a.checkNameZone("brand", true)
	if brand == "" {
		return brand
	}
	return strings.ToUpper(brand[:1]) + brand[1:]
}

// NickName falls back to the model name when the nick name is missing or
// a placeholder
func (a *Appliance) NickName() string {
	nick := a.checkNameZone("nickName", true)
	if nick == "" || placeholderNick.MatchString(nick) {
		return a.ModelName()
	}
	return nick
}

// UniqueID is the zone qualified mac address, with the placeholder mac
// of simulated appliances replaced by type and model
func (a *Appliance) UniqueID() string {
	id := a.checkNameZone("macAddress", false)
	return strings.ReplaceAll(id, defaultMac, strings.ToLower(a.Type()+"_"+a.ModelID()))
}

// Options returns the appliance model option map
func (a *Appliance) Options() map[string]interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()

	options, _ := a.applianceModel["options"].(map[string]interface{})
	out := make(map[string]interface{}, len(options))
	for k, v := range options {
		out[k] = v
	}
	return out
}

func (a *Appliance) Statistics() map[string]interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statistics
}

func (a *Appliance) AdditionalData() map[string]interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.additionalData
}

func (a *Appliance) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// SetConnected records a connection state change from the push channel
func (a *Appliance) SetConnected(connected bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = connected
}

// Attribute returns the current telemetry value of key
func (a *Appliance) Attribute(key string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	attr, ok := a.attributes.Parameters[key]
	if !ok {
		return "", false
	}
	return attr.Value(), true
}

// AttributeValues returns a snapshot of the telemetry values
func (a *Appliance) AttributeValues() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]string, len(a.attributes.Parameters))
	for k, attr := range a.attributes.Parameters {
		out[k] = attr.Value()
	}
	return out
}

// Extra returns a derived or top level telemetry entry
func (a *Appliance) Extra(key string) (interface{}, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	v, ok := a.attributes.Extra[key]
	return v, ok
}

// LoadCommands fetches and parses the commands, then applies the current
// telemetry to the settings command
func (a *Appliance) LoadCommands(ctx context.Context) error {
	if a.API() == nil {
		return honapi.ErrNoAuthentication
	}

	loader := command.NewLoader(a)
	if err := loader.Load(ctx); err != nil {
		return errors.Wrapf(err, "loading commands of %s", a.MacAddress())
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.commands = loader.Commands()
	a.additionalData = loader.AdditionalData()
	a.applianceModel = loader.ApplianceData()
	a.syncParamsToCommand("settings")
	return nil
}

func (a *Appliance) LoadAttributes(ctx context.Context) error {
	api := a.API()
	if api == nil {
		return honapi.ErrNoAuthentication
	}

	data, err := api.LoadAttributes(ctx, a.info)
	if err != nil {
		return errors.Wrapf(err, "loading attributes of %s", a.MacAddress())
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	shadow, _ := data["shadow"].(map[string]interface{})
	params, _ := shadow["parameters"].(map[string]interface{})
	for name, values := range params {
		if v, ok := values.(map[string]interface{}); ok {
			a.attributes.update(name, v)
		}
	}

	for k, v := range data {
		if k != "shadow" {
			a.attributes.Extra[k] = v
		}
	}

	a.extension.AdjustAttributes(a, &a.attributes)
	return nil
}

func (a *Appliance) LoadStatistics(ctx context.Context) error {
	api := a.API()
	if api == nil {
		return honapi.ErrNoAuthentication
	}

	statistics, err := api.LoadStatistics(ctx, a.info)
	if err != nil {
		return errors.Wrapf(err, "loading statistics of %s", a.MacAddress())
	}

	a.mu.Lock()
	a.statistics = statistics
	a.mu.Unlock()
	return nil
}

// Update reloads the telemetry unless it was refreshed within
// MinimalUpdateInterval.  It reports whether a reload happened.
func (a *Appliance) Update(ctx context.Context, force bool) (bool, error) {
	now := a.now()

	a.mu.Lock()
	due := force || a.lastUpdate.IsZero() || a.lastUpdate.Before(now.Add(-MinimalUpdateInterval))
	if due {
		a.lastUpdate = now
	}
	a.mu.Unlock()

	if !due {
		return false, nil
	}

	if err := a.LoadAttributes(ctx); err != nil {
		return true, err
	}
	a.SyncParamsToCommand("settings")
	return true, nil
}

// ApplyStatus applies pushed telemetry, then refreshes the settings
// command from it
func (a *Appliance) ApplyStatus(updates []map[string]interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, u := range updates {
		name := parameter.ToString(u["parName"])
		if name == "" {
			continue
		}
		if !a.attributes.update(name, u) {
			a.log(nil).Debugf("ignoring %s update, locked by a recent command", name)
		}
	}

	a.syncParamsToCommand("settings")
}

// CommandNames lists the loaded commands.  Commands stay behind the
// appliance lock.
func (a *Appliance) CommandNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.commands.Names()
}

// CommandParameters returns command -> parameter -> value
func (a *Appliance) CommandParameters() map[string]map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := map[string]map[string]string{}
	for name, c := range a.commands.Commands() {
		out[name] = c.ParameterValues()
	}
	return out
}

// Setting is a copy of one setting taken under the appliance lock
type Setting struct {
	Value     string   `json:"value"`
	Typology  string   `json:"typology"`
	Mandatory bool     `json:"mandatory,omitempty"`
	Values    []string `json:"values,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Step      *float64 `json:"step,omitempty"`
	// Inactive marks keys only other categories of the command offer
	Inactive bool `json:"inactive,omitempty"`
}

func newSetting(p parameter.Parameter) Setting {
	s := Setting{Value: p.Value(), Typology: p.Typology(), Mandatory: p.Mandatory()}

	switch t := p.(type) {
	case *parameter.Range:
		min, max, step := t.Min(), t.Max(), t.Step()
		s.Min, s.Max, s.Step = &min, &max, &step
	case *parameter.Enum, *parameter.Program:
		s.Values = p.Values()
	}
	return s
}

// settings flattens the active variants as command.key.  With placeholders,
// keys the active variant lacks map to a default fixed parameter.
func (a *Appliance) settings(placeholders bool) map[string]parameter.Parameter {
	result := map[string]parameter.Parameter{}
	for name, c := range a.commands.Commands() {
		settings := c.Settings()
		for _, key := range c.SettingKeys() {
			if p, ok := settings[key]; ok {
				result[name+"."+key] = p
			} else if placeholders {
				result[name+"."+key] = parameter.NewFixed(key, map[string]interface{}{"typology": parameter.TypologyFixed}, "")
			}
		}
	}
	return a.extension.AdjustSettings(result)
}

// Settings snapshots every command.key of the active commands
func (a *Appliance) Settings() map[string]Setting {
	a.mu.Lock()
	defer a.mu.Unlock()

	active := a.settings(false)
	out := map[string]Setting{}
	for name, p := range a.settings(true) {
		s := newSetting(p)
		if _, ok := active[name]; !ok {
			s.Inactive = true
		}
		out[name] = s
	}
	return out
}

// AvailableSettings lists every command.key over all categories
func (a *Appliance) AvailableSettings() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var result []string
	for name, c := range a.commands.Commands() {
		for _, key := range c.SettingKeys() {
			result = append(result, name+"."+key)
		}
	}
	sort.Strings(result)
	return result
}

// SetSetting assigns value to the setting named command.key
func (a *Appliance) SetSetting(name string, value string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.settings(false)[name]
	if ok {
		return p.SetValue(value)
	}
	if _, ok := a.settings(true)[name]; ok {
		return errors.Wrap(ErrInactiveSetting, name)
	}
	return errors.Wrap(ErrUnknownSetting, name)
}

// Send posts the active variant of the named command.  The payload is
// captured under the appliance lock, the call itself runs without it.
func (a *Appliance) Send(ctx context.Context, name string, onlyMandatory bool) (bool, error) {
	return a.send(ctx, name, func(c *command.Command) honapi.CommandRequest {
		return c.Request(onlyMandatory)
	})
}

// SendSpecific posts the named parameters plus the mandatory ones
func (a *Appliance) SendSpecific(ctx context.Context, name string, parameters []string) (bool, error) {
	return a.send(ctx, name, func(c *command.Command) honapi.CommandRequest {
		return c.SpecificRequest(parameters)
	})
}

func (a *Appliance) send(ctx context.Context, name string, build func(*command.Command) honapi.CommandRequest) (bool, error) {
	a.mu.Lock()
	c, ok := a.commands.Get(name)
	var req honapi.CommandRequest
	if ok {
		req = build(c)
	}
	a.mu.Unlock()

	if !ok {
		return false, errors.Wrap(ErrUnknownCommand, name)
	}
	return c.Dispatch(ctx, req)
}

// SyncParamsToCommand copies telemetry onto the settings of the named
// command.  Values that do not validate are skipped.
func (a *Appliance) SyncParamsToCommand(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.syncParamsToCommand(name)
}

func (a *Appliance) syncParamsToCommand(name string) {
	c, ok := a.commands.Get(name)
	if !ok {
		return
	}

	settings := c.Settings()
	for _, key := range c.SettingKeys() {
		attr, ok := a.attributes.Parameters[key]
		if !ok || attr.Value() == "" {
			continue
		}
		setting, ok := settings[key]
		if !ok {
			continue
		}

		var err error
		switch p := setting.(type) {
		case *parameter.Range:
			f, isNumber := attr.Float()
			if !isNumber {
				err = errors.Errorf("%q is not a number", attr.Value())
				break
			}
			err = p.SetFloat(f)
		default:
			err = setting.SetValue(attr.Value())
		}

		if err != nil {
			a.log(nil).WithError(err).Infof("can't set %s", key)
		}
	}
}

// SyncCommandToParams pushes the values of the named command into the
// matching telemetry, shielding them from stale updates
func (a *Appliance) SyncCommandToParams(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.commands.Get(name)
	if !ok {
		return
	}

	for key, attr := range a.attributes.Parameters {
		if p, ok := c.Parameter(key); ok {
			attr.SetValue(p.InternValue(), true)
		}
	}
}

// SyncCommand copies the parameters of command main onto the other
// commands, or onto targets only when given.  With onlyMandatory, or when
// keys are given, just the mandatory parameters of main are copied; keys
// further limits the copy to those keys.
func (a *Appliance) SyncCommand(main string, targets []string, onlyMandatory bool, keys ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	base, ok := a.commands.Get(main)
	if !ok {
		return
	}

	restricted := onlyMandatory || len(keys) > 0
	for name, c := range a.commands.Commands() {
		if name == main || (len(targets) > 0 && !contains(targets, name)) {
			continue
		}

		for key, target := range c.Parameters() {
			source, ok := base.Parameter(key)
			if !ok {
				continue
			}
			if restricted && (!source.Mandatory() || (len(keys) > 0 && !contains(keys, key))) {
				continue
			}
			if err := syncParameter(source, target); err != nil {
				a.log(nil).WithError(err).Debugf("can't sync %s.%s from %s", name, key, main)
			}
		}
	}
}

func syncParameter(main, target parameter.Parameter) error {
	switch t := target.(type) {
	case *parameter.Range:
		if m, ok := main.(*parameter.Range); ok {
			t.SetMax(m.Max())
			t.SetMin(m.Min())
			t.SetStep(m.Step())
		} else {
			f, err := parameter.StrToFloat(main.Value())
			if err != nil {
				return err
			}
			t.SetMax(f)
			t.SetMin(f)
			t.SetStep(1)
		}
	case *parameter.Enum:
		t.SetValues(main.Values())
	}

	return target.SetValue(main.Value())
}

func contains(list []string, s string) bool {
	for _, i := range list {
		if i == s {
			return true
		}
	}
	return false
}
