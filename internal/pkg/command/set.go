package command

import (
	"sort"
	"sync"
)

// Key addresses one command variant.  Uncategorized commands have an
// empty Category.
type Key struct {
	Name     string
	Category string
}

// Set owns every command variant of an appliance and tracks which
// category of each command is active
type Set struct {
	mu         sync.RWMutex
	commands   map[Key]*Command
	categories map[string][]string
	active     map[string]Key
}

func NewSet() *Set {
	return &Set{
		commands:   map[Key]*Command{},
		categories: map[string][]string{},
		active:     map[string]Key{},
	}
}

// Add registers c under its name and category.  Replacing an existing
// variant keeps its position in the category order.  The first variant
// added for a name becomes active.
func (s *Set) Add(category string, c *Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key{Name: c.Name(), Category: category}
	if _, ok := s.commands[key]; !ok {
		s.categories[key.Name] = append(s.categories[key.Name], category)
	}
	s.commands[key] = c

	if _, ok := s.active[key.Name]; !ok {
		s.active[key.Name] = key
	}
}

// Activate makes category the active variant of name.  It reports false,
// changing nothing, when no such variant exists.
func (s *Set) Activate(name, category string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key{Name: name, Category: category}
	if _, ok := s.commands[key]; !ok {
		return false
	}

	s.active[name] = key
	return true
}

// Get returns the active variant of name
func (s *Set) Get(name string) (*Command, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.active[name]
	if !ok {
		return nil, false
	}
	return s.commands[key], true
}

func (s *Set) Lookup(key Key) (*Command, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.commands[key]
	return c, ok
}

// Active returns the key of the active variant of name
func (s *Set) Active(name string) (Key, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.active[name]
	return key, ok
}

// Names returns the sorted command names
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.active))
	for name := range s.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Categories returns the categories of name in the order they were added
func (s *Set) Categories(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.categories[name]...)
}

// Commands returns the active variant of every command
func (s *Set) Commands() map[string]*Command {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*Command, len(s.active))
	for name, key := range s.active {
		out[name] = s.commands[key]
	}
	return out
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.active)
}
