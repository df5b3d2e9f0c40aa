package server

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

var (
	// ErrModuleLoaded is returned when loading a module twice
	ErrModuleLoaded = errors.New("module already loaded")
	// ErrModuleNotLoaded is returned for operations on an unknown module
	ErrModuleNotLoaded = errors.New("module not loaded")
)

// Module is a feature extension. Init registers the module's extension
// items, hooks and modes, always owned by Name(), and must build fresh
// items on every call so the module can be reloaded.
type Module interface {
	Name() string
	Description() string
	Init(s *Server) error
}

// Unloader is implemented by modules that hold state outside the server's
// registries
type Unloader interface {
	Unload(s *Server)
}

// AccountProvider answers whether a user is logged in to an account
type AccountProvider interface {
	IsRegistered(u *User) bool
	AccountName(u *User) string
}

// SetAccountProvider installs or, with nil, removes the account provider
func (s *Server) SetAccountProvider(p AccountProvider) {
	s.accounts = p
}

// Accounts returns the account provider, or nil when none is loaded
func (s *Server) Accounts() AccountProvider {
	return s.accounts
}

// LoadModule initialises m. A failed Init is rolled back.
func (s *Server) LoadModule(m Module) error {
	name := m.Name()
	if _, exists := s.modules[name]; exists {
		return fmt.Errorf("%w: %s", ErrModuleLoaded, name)
	}

	if err := m.Init(s); err != nil {
		s.releaseModule(m)
		return fmt.Errorf("failed to load module %s: %w", name, err)
	}
	s.modules[name] = m

	log.Info().Str("module", name).Msg("module loaded")
	return nil
}

// UnloadModule removes every hook, item and mode the module registered.
// Extension values of local users are saved to the store first when one
// is configured.
func (s *Server) UnloadModule(name string) error {
	m, ok := s.modules[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotLoaded, name)
	}

	if err := s.saveModuleState(name); err != nil {
		log.Warn().Err(err).Str("module", name).Msg("failed to save module state")
	}

	// Values must not outlive the items that own them
	for _, item := range s.extensions.Items(name) {
		for _, u := range s.users {
			item.Unset(u)
		}
	}
	s.releaseModule(m)
	delete(s.modules, name)

	log.Info().Str("module", name).Msg("module unloaded")
	return nil
}

// ReloadModule unloads and loads the module again, carrying its extension
// state over through the store
func (s *Server) ReloadModule(name string) error {
	m, ok := s.modules[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModuleNotLoaded, name)
	}
	if err := s.UnloadModule(name); err != nil {
		return err
	}
	if err := s.LoadModule(m); err != nil {
		return err
	}
	if err := s.restoreModuleState(); err != nil {
		log.Warn().Err(err).Str("module", name).Msg("failed to restore module state")
	}
	return nil
}

// Module returns the loaded module called name
func (s *Server) Module(name string) (Module, bool) {
	m, ok := s.modules[name]
	return m, ok
}

// ModuleNames returns the loaded module names in order
func (s *Server) ModuleNames() []string {
	names := make([]string, 0, len(s.modules))
	for name := range s.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) releaseModule(m Module) {
	if u, ok := m.(Unloader); ok {
		u.Unload(s)
	}
	s.Events.RemoveOwner(m.Name())
	s.extensions.UnregisterOwner(m.Name())
	s.unregisterChannelModes(m.Name())
}

func (s *Server) saveModuleState(owner string) error {
	if s.store == nil {
		return nil
	}
	ctx := context.Background()
	for _, u := range s.users {
		if !u.IsLocal() {
			continue
		}
		if err := s.store.Save(ctx, u.uuid, s.extensions.Snapshot(u, owner)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) restoreModuleState() error {
	if s.store == nil {
		return nil
	}
	ctx := context.Background()
	entities, err := s.store.Entities(ctx)
	if err != nil {
		return err
	}
	for _, id := range entities {
		values, err := s.store.Load(ctx, id)
		if err != nil {
			return err
		}
		u := s.users[id]
		if u == nil {
			// The user left while the module was away
			if err := s.store.Delete(ctx, id); err != nil {
				return err
			}
			continue
		}
		applied := make([]string, 0, len(values))
		for name, value := range values {
			if _, ok := s.extensions.Lookup(name); !ok {
				continue
			}
			s.ApplyExtension(u, name, value)
			applied = append(applied, name)
		}
		if len(applied) == 0 {
			continue
		}
		if err := s.store.Delete(ctx, id, applied...); err != nil {
			return err
		}
	}
	return nil
}
