package command

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jake-scott/hon-client/internal/pkg/honapi"
	"github.com/jake-scott/hon-client/internal/pkg/logging"
	"github.com/jake-scott/hon-client/internal/pkg/parameter"
	"github.com/jake-scott/hon-client/internal/pkg/rules"
)

// Owner is the appliance side of a command
type Owner interface {
	Info() honapi.ApplianceInfo
	// API returns nil when there is no session
	API() honapi.API
	Zone() int
	Options() map[string]interface{}
	SyncCommandToParams(name string)
}

// Command is one named operation of an appliance, or one category of it
type Command struct {
	name         string
	categoryName string
	description  string
	protocolType string

	owner Owner
	set   *Set
	raw   map[string]interface{}

	parameters map[string]parameter.Parameter
	data       map[string]interface{}
	rules      []*rules.RuleSet
}

// New builds a command from its definition.  categoryName is the raw
// category key for categorized commands, which must be registered in set
// under their cleaned category name.
func New(name string, definition map[string]interface{}, owner Owner, set *Set, categoryName string) *Command {
	c := &Command{
		name:         name,
		categoryName: categoryName,
		owner:        owner,
		set:          set,
		raw:          deepCopy(definition),
		parameters:   map[string]parameter.Parameter{},
		data:         map[string]interface{}{},
	}

	attrs := deepCopy(definition)
	c.description = parameter.ToString(attrs["description"])
	c.protocolType = parameter.ToString(attrs["protocolType"])
	delete(attrs, "description")
	delete(attrs, "protocolType")

	c.loadParameters(attrs)
	return c
}

func (c *Command) log(ctx context.Context) *logrus.Entry {
	var mac string
	if c.owner != nil {
		mac = c.owner.Info().MacAddress()
	}
	return logging.Appliance(ctx, mac).WithField("command", c.name)
}

func (c *Command) loadParameters(attrs map[string]interface{}) {
	for _, group := range sortedKeys(attrs) {
		items, ok := attrs[group].(map[string]interface{})
		if !ok {
			c.data[group] = attrs[group]
			continue
		}

		for _, key := range sortedKeys(items) {
			leaf, ok := items[key].(map[string]interface{})
			if !ok {
				c.data[key] = items[key]
				continue
			}
			c.createParameter(key, leaf, group)
		}
	}

	if c.categoryName != "" {
		key := "category"
		if strings.Contains(c.categoryName, "PROGRAM") {
			key = "program"
		}
		c.parameters[key] = parameter.NewProgram(key, c.categoryName, c, parameter.GroupCustom)
	}

	for _, rs := range c.rules {
		rs.Patch()
	}
}

func (c *Command) createParameter(key string, leaf map[string]interface{}, group string) {
	if key == "zoneMap" && c.owner != nil && c.owner.Zone() > 0 {
		leaf["defaultValue"] = strconv.Itoa(c.owner.Zone())
	}

	if parameter.ToString(leaf["category"]) == "rule" {
		rs, err := rules.Parse(c, c.aliases(), leaf)
		if err != nil {
			c.log(nil).WithError(err).Warnf("skipping rule %s", key)
			return
		}
		c.rules = append(c.rules, rs)
		return
	}

	p, ok := parameter.New(key, leaf, group)
	if !ok {
		c.data[key] = leaf
		return
	}
	c.parameters[key] = p
}

func (c *Command) aliases() map[string]string {
	if c.owner == nil {
		return nil
	}

	options := c.owner.Options()
	aliases := make(map[string]string, len(options))
	for k, v := range options {
		aliases[k] = parameter.ToString(v)
	}
	return aliases
}

func (c *Command) Name() string         { return c.name }
func (c *Command) Description() string  { return c.description }
func (c *Command) ProtocolType() string { return c.protocolType }

// Data holds the definition entries that are not parameters
func (c *Command) Data() map[string]interface{} { return c.data }

// Category returns the raw category name, empty for uncategorized commands
func (c *Command) Category() string { return c.categoryName }

func (c *Command) categorized() bool {
	return c.categoryName != "" && c.set != nil
}

func (c *Command) Parameters() map[string]parameter.Parameter { return c.parameters }

// Settings are the parameters of this variant, fixed ones included
func (c *Command) Settings() map[string]parameter.Parameter { return c.parameters }

// Parameter implements rules.ParameterLookup
func (c *Command) Parameter(key string) (parameter.Parameter, bool) {
	p, ok := c.parameters[key]
	return p, ok
}

// AddParameter adds or replaces a parameter after construction
func (c *Command) AddParameter(p parameter.Parameter) {
	c.parameters[p.Key()] = p
}

// Rules returns the rule sets parsed from the definition
func (c *Command) Rules() []*rules.RuleSet { return c.rules }

// Categories maps category names to the variants of this command.  An
// uncategorized command is its own single category "_".
func (c *Command) Categories() map[string]*Command {
	if !c.categorized() {
		return map[string]*Command{"_": c}
	}

	out := map[string]*Command{}
	for _, name := range c.set.Categories(c.name) {
		if cmd, ok := c.set.Lookup(Key{Name: c.name, Category: name}); ok {
			out[name] = cmd
		}
	}
	return out
}

func (c *Command) orderedCategories() []*Command {
	if !c.categorized() {
		return []*Command{c}
	}

	var out []*Command
	for _, name := range c.set.Categories(c.name) {
		if cmd, ok := c.set.Lookup(Key{Name: c.name, Category: name}); ok {
			out = append(out, cmd)
		}
	}
	return out
}

// SetCategory makes the named category the active variant of this
// command.  Unknown names are ignored.
func (c *Command) SetCategory(category string) {
	if !c.categorized() {
		return
	}
	if !c.set.Activate(c.name, category) {
		c.log(nil).Debugf("ignoring unknown category %q", category)
	}
}

// CategoryNames implements parameter.CategorySource
func (c *Command) CategoryNames() []string {
	if !c.categorized() {
		return nil
	}
	return c.set.Categories(c.name)
}

// SelectCategory implements parameter.CategorySource
func (c *Command) SelectCategory(name string) bool {
	return c.categorized() && c.set.Activate(c.name, name)
}

// CategoryParameter implements parameter.CategorySource
func (c *Command) CategoryParameter(category, key string) (parameter.Parameter, bool) {
	if !c.categorized() {
		return nil, false
	}

	cmd, ok := c.set.Lookup(Key{Name: c.name, Category: category})
	if !ok {
		return nil, false
	}
	return cmd.Parameter(key)
}

// SettingKeys is the sorted union of parameter keys over all categories
func (c *Command) SettingKeys() []string {
	keys := map[string]struct{}{}
	for _, cmd := range c.orderedCategories() {
		for k := range cmd.parameters {
			keys[k] = struct{}{}
		}
	}

	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// moreOptions picks the parameter offering the caller more choice, the
// first one on a tie
func moreOptions(first, second parameter.Parameter) parameter.Parameter {
	_, firstFixed := first.(*parameter.Fixed)
	_, secondFixed := second.(*parameter.Fixed)
	if firstFixed && !secondFixed {
		return second
	}
	if len(second.Values()) > len(first.Values()) {
		return second
	}
	return first
}

// AvailableSettings merges the parameters of all categories by key,
// keeping the variant with the broadest set of allowed values
func (c *Command) AvailableSettings() map[string]parameter.Parameter {
	result := map[string]parameter.Parameter{}
	for _, cmd := range c.orderedCategories() {
		for _, key := range parameter.Keys(cmd.parameters) {
			p := cmd.parameters[key]
			if existing, ok := result[key]; ok {
				result[key] = moreOptions(existing, p)
			} else {
				result[key] = p
			}
		}
	}
	return result
}

// ParameterGroups returns group -> key -> wire value
func (c *Command) ParameterGroups() map[string]map[string]string {
	return c.groups(func(parameter.Parameter) bool { return true })
}

// MandatoryParameterGroups is ParameterGroups restricted to mandatory
// parameters
func (c *Command) MandatoryParameterGroups() map[string]map[string]string {
	return c.groups(parameter.Parameter.Mandatory)
}

func (c *Command) groups(include func(parameter.Parameter) bool) map[string]map[string]string {
	result := map[string]map[string]string{}
	for key, p := range c.parameters {
		if !include(p) {
			continue
		}
		group, ok := result[p.Group()]
		if !ok {
			group = map[string]string{}
			result[p.Group()] = group
		}
		group[key] = p.InternValue()
	}
	return result
}

// ParameterValues returns key -> current value
func (c *Command) ParameterValues() map[string]string {
	result := make(map[string]string, len(c.parameters))
	for key, p := range c.parameters {
		result[key] = p.Value()
	}
	return result
}

// Send posts the command with all its parameters, or only the mandatory
// ones
func (c *Command) Send(ctx context.Context, onlyMandatory bool) (bool, error) {
	return c.Dispatch(ctx, c.Request(onlyMandatory))
}

// SendSpecific posts the named parameters plus the mandatory ones
func (c *Command) SendSpecific(ctx context.Context, names []string) (bool, error) {
	return c.Dispatch(ctx, c.SpecificRequest(names))
}

// Request captures the payload Send would post.  It only reads parameter
// values, so an owner can build it under its own lock and dispatch later.
func (c *Command) Request(onlyMandatory bool) honapi.CommandRequest {
	groups := c.ParameterGroups()
	params := groups[parameter.GroupParameters]
	if onlyMandatory {
		params = c.MandatoryParameterGroups()[parameter.GroupParameters]
	}

	return c.request(params, groups[parameter.GroupAncillary])
}

// SpecificRequest is Request for SendSpecific
func (c *Command) SpecificRequest(names []string) honapi.CommandRequest {
	wanted := map[string]bool{}
	for _, n := range names {
		wanted[n] = true
	}

	params := map[string]string{}
	for key, p := range c.parameters {
		if p.Group() == parameter.GroupParameters && (p.Mandatory() || wanted[key]) {
			params[key] = p.InternValue()
		}
	}

	return c.request(params, c.ParameterGroups()[parameter.GroupAncillary])
}

func (c *Command) request(params map[string]string, ancillary map[string]string) honapi.CommandRequest {
	if params == nil {
		params = map[string]string{}
	}
	if ancillary == nil {
		ancillary = map[string]string{}
	}
	delete(ancillary, "programRules")

	req := honapi.CommandRequest{
		CommandName:         c.name,
		Parameters:          params,
		AncillaryParameters: ancillary,
	}
	if c.owner != nil {
		req.ApplianceOptions = c.owner.Options()
	}
	return req
}

// Dispatch mirrors the command into the owner telemetry and posts req.
// A rejected command is an *honapi.ApiError.
func (c *Command) Dispatch(ctx context.Context, req honapi.CommandRequest) (bool, error) {
	if c.owner == nil || c.owner.API() == nil {
		c.log(ctx).Error("no authentication")
		return false, honapi.ErrNoAuthentication
	}

	c.owner.SyncCommandToParams(c.name)

	ok, err := c.owner.API().SendCommand(ctx, c.owner.Info(), req)
	if err != nil {
		var apiErr *honapi.ApiError
		switch {
		case errors.Is(err, honapi.ErrNoAuthentication):
			c.log(ctx).Error("no authentication")
			return false, err
		case errors.As(err, &apiErr):
			return false, err
		}
		return false, errors.Wrapf(err, "sending %s", c.name)
	}
	if !ok {
		return false, &honapi.ApiError{Command: c.name}
	}

	return true, nil
}

// Clone rebuilds an independent copy of this variant from its definition
func (c *Command) Clone() *Command {
	return New(c.name, c.raw, c.owner, c.set, c.categoryName)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func deepCopy(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}

	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopy(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = deepCopyValue(item)
		}
		return out
	}
	return v
}
