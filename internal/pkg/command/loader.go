package command

import (
	"context"

	"github.com/korovkin/limiter"
	"github.com/pkg/errors"

	"github.com/jake-scott/hon-client/internal/pkg/honapi"
	"github.com/jake-scott/hon-client/internal/pkg/logging"
	"github.com/jake-scott/hon-client/internal/pkg/parameter"
)

// preferred public category of a categorized command
const defaultCategory = "setParameters"

// Loader fetches and parses the commands of one appliance
type Loader struct {
	owner Owner

	rawCommands map[string]interface{}
	favourites  []map[string]interface{}
	history     []map[string]interface{}

	set            *Set
	applianceData  map[string]interface{}
	additionalData map[string]interface{}
}

func NewLoader(owner Owner) *Loader {
	return &Loader{
		owner:          owner,
		set:            NewSet(),
		applianceData:  map[string]interface{}{},
		additionalData: map[string]interface{}{},
	}
}

// Commands returns the parsed commands, empty until Load succeeds
func (l *Loader) Commands() *Set { return l.set }

// ApplianceData is the applianceModel section of the command payload
func (l *Loader) ApplianceData() map[string]interface{} { return l.applianceData }

// AdditionalData holds top level payload entries that are not commands
func (l *Loader) AdditionalData() map[string]interface{} { return l.additionalData }

// Options is the option alias map of the appliance model
func (l *Loader) Options() map[string]interface{} {
	options, _ := l.applianceData["options"].(map[string]interface{})
	out := make(map[string]interface{}, len(options))
	for k, v := range options {
		out[k] = v
	}
	return out
}

// modelOwner answers Options from the appliance model being loaded
type modelOwner struct {
	Owner
	options map[string]interface{}
}

func (o *modelOwner) Options() map[string]interface{} {
	return o.options
}

// Load fetches commands, favourites and history concurrently, then builds
// the command set, adds favourites and replays the last command states.
// Nothing is published when a fetch fails.
func (l *Loader) Load(ctx context.Context) error {
	api := l.owner.API()
	if api == nil {
		return honapi.ErrNoAuthentication
	}

	if err := l.fetch(ctx, api); err != nil {
		return err
	}

	model, _ := l.rawCommands["applianceModel"].(map[string]interface{})
	delete(l.rawCommands, "applianceModel")

	set := NewSet()
	additional := map[string]interface{}{}
	l.applianceData = map[string]interface{}{}
	if model != nil {
		l.applianceData = model
	}
	owner := &modelOwner{Owner: l.owner, options: l.Options()}

	l.parseCommands(set, owner, additional)
	l.addFavourites(set)
	l.recoverLastCommandStates(set)

	l.set = set
	l.additionalData = additional
	return nil
}

func (l *Loader) fetch(ctx context.Context, api honapi.API) error {
	info := l.owner.Info()
	var errs [3]error

	limit := limiter.NewConcurrencyLimiter(3)
	limit.ExecuteWithTicket(func(int) {
		l.rawCommands, errs[0] = api.LoadCommands(ctx, info)
	})
	limit.ExecuteWithTicket(func(int) {
		l.favourites, errs[1] = api.LoadFavourites(ctx, info)
	})
	limit.ExecuteWithTicket(func(int) {
		l.history, errs[2] = api.LoadCommandHistory(ctx, info)
	})
	limit.Wait()

	for _, err := range errs {
		if err != nil {
			return errors.Wrap(err, "fetching command data")
		}
	}

	if l.rawCommands == nil {
		l.rawCommands = map[string]interface{}{}
	}
	return nil
}

func isCommand(data map[string]interface{}) bool {
	return data["description"] != nil && data["protocolType"] != nil
}

func (l *Loader) parseCommands(set *Set, owner Owner, additional map[string]interface{}) {
	for _, name := range sortedKeys(l.rawCommands) {
		data, ok := l.rawCommands[name].(map[string]interface{})
		if !ok {
			additional[name] = l.rawCommands[name]
			continue
		}

		if isCommand(data) {
			set.Add("", New(name, data, owner, set, ""))
			continue
		}

		l.parseCategories(set, owner, name, data, additional)
	}
}

func (l *Loader) parseCategories(set *Set, owner Owner, name string, data map[string]interface{}, additional map[string]interface{}) {
	var categories []string

	for _, category := range sortedKeys(data) {
		value, ok := data[category].(map[string]interface{})
		if !ok {
			additional[name] = data[category]
			continue
		}
		if !isCommand(value) {
			if value, ok = l.nestedCommand(name, value, additional); !ok {
				logging.Appliance(nil, l.owner.Info().MacAddress()).Debugf("ignoring %s.%s, not a command", name, category)
				continue
			}
		}

		clean := parameter.CleanCategoryName(category)
		set.Add(clean, New(name, value, owner, set, category))
		categories = append(categories, clean)
	}

	if len(categories) == 0 {
		return
	}

	if !set.Activate(name, defaultCategory) {
		set.Activate(name, categories[0])
	}
}

// nestedCommand resolves a category container found inside a category to
// the definition of its preferred variant, setParameters or else the first
// one.  The other variants of the container are not registered.
func (l *Loader) nestedCommand(name string, data map[string]interface{}, additional map[string]interface{}) (map[string]interface{}, bool) {
	var first map[string]interface{}

	for _, category := range sortedKeys(data) {
		value, ok := data[category].(map[string]interface{})
		if !ok {
			additional[name] = data[category]
			continue
		}
		if !isCommand(value) {
			if value, ok = l.nestedCommand(name, value, additional); !ok {
				continue
			}
		}

		if parameter.CleanCategoryName(category) == defaultCategory {
			return value, true
		}
		if first == nil {
			first = value
		}
	}

	return first, first != nil
}

// addFavourites registers every favourite as an extra category, an
// independent copy of its program with the favourite values applied
func (l *Loader) addFavourites(set *Set) {
	log := logging.Appliance(nil, l.owner.Info().MacAddress())

	for _, favourite := range l.favourites {
		name := parameter.ToString(favourite["favouriteName"])
		command, _ := favourite["command"].(map[string]interface{})
		commandName := parameter.ToString(command["commandName"])
		program := parameter.CleanCategoryName(parameter.ToString(command["programName"]))

		base, ok := set.Lookup(Key{Name: commandName, Category: program})
		if !ok || name == "" {
			log.Debugf("favourite %q: no %s program %q", name, commandName, program)
			continue
		}

		fav := base.Clone()
		for _, group := range sortedKeys(command) {
			values, ok := command[group].(map[string]interface{})
			if !ok {
				continue
			}
			for _, key := range sortedKeys(values) {
				p, ok := fav.Parameter(key)
				if !ok {
					continue
				}
				if err := p.SetValue(parameter.ToString(values[key])); err != nil {
					log.WithError(err).Debugf("favourite %q: skipping %s", name, key)
				}
			}
		}

		fav.AddParameter(parameter.NewFixed("favourite", map[string]interface{}{"fixedValue": "1"}, parameter.GroupCustom))
		if p, ok := fav.Parameter("program"); ok {
			if prog, ok := p.(*parameter.Program); ok {
				prog.SetDisplayValue(name)
			}
		}

		set.Add(name, fav)
	}
}

// lastCommand returns the most recent history entry for name.  History
// is ordered most recent first.
func (l *Loader) lastCommand(name string) map[string]interface{} {
	for _, entry := range l.history {
		command, _ := entry["command"].(map[string]interface{})
		if parameter.ToString(command["commandName"]) == name {
			return command
		}
	}
	return nil
}

// setLastCategory switches to the category recorded in params, removing
// the selector from params
func setLastCategory(set *Set, cmd *Command, params map[string]interface{}) *Command {
	if !cmd.categorized() {
		return cmd
	}

	if program, ok := params["program"]; ok && program != nil {
		delete(params, "program")
		cmd.SetCategory(parameter.CleanCategoryName(parameter.ToString(program)))
	} else if category, ok := params["category"]; ok && category != nil {
		delete(params, "category")
		cmd.SetCategory(parameter.ToString(category))
	} else {
		return cmd
	}

	if active, ok := set.Get(cmd.Name()); ok {
		return active
	}
	return cmd
}

func (l *Loader) recoverLastCommandStates(set *Set) {
	log := logging.Appliance(nil, l.owner.Info().MacAddress())

	for _, name := range set.Names() {
		last := l.lastCommand(name)
		if last == nil {
			continue
		}

		recorded, _ := last["parameters"].(map[string]interface{})
		params := make(map[string]interface{}, len(recorded))
		for k, v := range recorded {
			params[k] = v
		}

		cmd, _ := set.Get(name)
		cmd = setLastCategory(set, cmd, params)

		for _, key := range cmd.SettingKeys() {
			value, ok := params[key]
			if !ok || value == nil {
				continue
			}
			p, ok := cmd.Parameter(key)
			if !ok {
				continue
			}
			if err := p.SetValue(parameter.ToString(value)); err != nil {
				log.WithError(err).Debugf("history %s: skipping %s", name, key)
			}
		}
	}
}
