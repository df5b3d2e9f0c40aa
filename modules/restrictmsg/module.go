// Package restrictmsg stops users without an account from starting private
// conversations. An unregistered user may still reply to anyone who
// messaged them first.
package restrictmsg

import (
	"github.com/Kufat/inspircd/hooks"
	"github.com/Kufat/inspircd/irc"
	"github.com/Kufat/inspircd/irc/server"
	"github.com/Kufat/inspircd/logger"
)

// Name is the module name
const Name = "restrictmsg"

// RejectText is sent with ERR_CANTSENDTOUSER when a message is refused
const RejectText = "Unregistered users may not initiate PMs on this network. Please register your nick with NickServ."

// Module is the restrictmsg module
type Module struct {
	list   *AllowListExt
	engine *Engine
}

// New creates the module
func New() *Module {
	return &Module{}
}

// Name returns the module name
func (m *Module) Name() string { return Name }

// Description returns what the module does
func (m *Module) Description() string {
	return "Limits ability of users without accounts to start PM conversations."
}

// Init registers the msgallow item and the message hooks
func (m *Module) Init(s *server.Server) error {
	m.list = NewAllowListExt()
	if err := s.Extensions().Register(Name, m.list); err != nil {
		return err
	}
	m.engine = NewEngine(m.list, accountOracle{s})

	s.Events.PreMessage.Register(Name, func(ev *server.MessageEvent) hooks.Result {
		return m.check(ev.Source, ev.Target)
	})
	s.Events.PreTagMessage.Register(Name, func(ev *server.TagMessageEvent) hooks.Result {
		return m.check(ev.Source, ev.Target)
	})
	return nil
}

// AllowList returns the msgallow item
func (m *Module) AllowList() *AllowListExt { return m.list }

func (m *Module) check(source *server.User, target server.MessageTarget) hooks.Result {
	if target.Type != server.TargetUser {
		return hooks.Passthru
	}

	d := m.engine.Decide(source, target.User)
	if !d.Allowed {
		source.WriteNumeric(irc.ERR_CANTSENDTOUSER, target.User.Nick(), RejectText)
		log := logger.Module(Name)
		log.Debug().
			Str("sender", source.UUID()).
			Str("recipient", target.User.UUID()).
			Msg("blocked message from unregistered user")
		return hooks.Deny
	}
	return hooks.Passthru
}

// accountOracle looks the account provider up on every call so loading or
// unloading the account module takes effect immediately
type accountOracle struct {
	s *server.Server
}

func (o accountOracle) Available() bool {
	return o.s.Accounts() != nil
}

func (o accountOracle) IsRegistered(p Party) bool {
	accounts := o.s.Accounts()
	u, ok := p.(*server.User)
	return accounts != nil && ok && accounts.IsRegistered(u)
}
