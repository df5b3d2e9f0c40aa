// Package account tracks the services account each user is logged in to.
// Services set it over the link with METADATA <uuid> accountname.
package account

import (
	"github.com/Kufat/inspircd/extension"
	"github.com/Kufat/inspircd/hooks"
	"github.com/Kufat/inspircd/irc"
	"github.com/Kufat/inspircd/irc/server"
	"github.com/Kufat/inspircd/logger"
)

const (
	// Name is the module name
	Name = "account"
	// ItemName is the extension item holding the account name
	ItemName = "accountname"
)

// Module is the account module. It is the server's AccountProvider while
// loaded.
type Module struct {
	srv  *server.Server
	item *accountItem
}

// accountItem tells local users when their account changes through the
// link or the admin API
type accountItem struct {
	*extension.SimpleItem[string]
}

func (a *accountItem) Unserialize(e extension.Extensible, text string) error {
	u, _ := e.(*server.User)
	_, was := a.Get(e)
	err := a.SimpleItem.Unserialize(e, text)
	if u == nil || !u.IsLocal() {
		return err
	}
	if acct, ok := a.Get(e); ok {
		notifyLogin(u, acct)
	} else if was {
		notifyLogout(u)
	}
	return err
}

func notifyLogin(u *server.User, account string) {
	u.WriteNumeric(irc.RPL_LOGGEDIN, u.Hostmask(), account, "You are now logged in as "+account)
}

func notifyLogout(u *server.User) {
	u.WriteNumeric(irc.RPL_LOGGEDOUT, u.Hostmask(), "You are now logged out")
}

// New creates the module
func New() *Module {
	return &Module{}
}

// Name returns the module name
func (m *Module) Name() string { return Name }

// Description returns what the module does
func (m *Module) Description() string {
	return "Provides account name tracking for services logins."
}

// Init registers the accountname item and installs the account provider
func (m *Module) Init(s *server.Server) error {
	m.srv = s
	m.item = &accountItem{SimpleItem: extension.NewStringItem(ItemName)}
	if err := s.Extensions().Register(Name, m.item); err != nil {
		return err
	}

	s.Events.WhoisLine.Register(Name, func(ev *server.WhoisLineEvent) hooks.Result {
		if ev.Numeric != irc.RPL_WHOISSERVER {
			return hooks.Passthru
		}
		if acct, ok := m.item.Get(ev.Target); ok {
			ev.SendNumeric(irc.RPL_WHOISACCOUNT, acct, "is logged in as")
		}
		return hooks.Passthru
	})

	s.SetAccountProvider(m)
	return nil
}

// Unload removes the account provider
func (m *Module) Unload(s *server.Server) {
	s.SetAccountProvider(nil)
}

// IsRegistered reports whether u is logged in
func (m *Module) IsRegistered(u *server.User) bool {
	_, ok := m.item.Get(u)
	return ok
}

// AccountName returns the account u is logged in to, or ""
func (m *Module) AccountName(u *server.User) string {
	acct, _ := m.item.Get(u)
	return acct
}

// Login logs u in to account and tells the user and the linked servers.
// It must run on the event loop.
func (m *Module) Login(u *server.User, account string) {
	m.item.Set(u, account)
	notifyLogin(u, account)
	m.srv.SyncExtension(u, ItemName)

	log := logger.Module(Name)
	log.Info().Str("uuid", u.UUID()).Str("account", account).Msg("user logged in")
}

// Logout logs u out. It must run on the event loop.
func (m *Module) Logout(u *server.User) {
	if !m.IsRegistered(u) {
		return
	}
	m.item.Unset(u)
	notifyLogout(u)
	m.srv.SyncExtension(u, ItemName)
}
