// Package antibear catches a common trojan that answers a CTCP TIME probe
// with a fixed timestamp.
package antibear

import (
	"strings"
	"time"

	"github.com/Kufat/inspircd/hooks"
	"github.com/Kufat/inspircd/irc"
	"github.com/Kufat/inspircd/irc/server"
	"github.com/Kufat/inspircd/logger"
)

const (
	// Name is the module name
	Name = "antibear"

	// BearReply is the CTCP TIME answer the bot always sends
	BearReply = "\x01TIME Mon May 01 18:54:20 2006\x01"

	// BanReason is the Z-line reason for a caught bot
	BanReason = "Unless you're stuck in a time warp, you appear to be a bear bot!"

	// BanDuration is how long a caught bot stays Z-lined
	BanDuration = 24 * time.Hour
)

// Module is the antibear module
type Module struct {
	srv *server.Server
}

// New creates the module
func New() *Module {
	return &Module{}
}

// Name returns the module name
func (m *Module) Name() string { return Name }

// Description returns what the module does
func (m *Module) Description() string {
	return "Sends a numeric on connect which cripples a common type of trojan/spambot"
}

// Init registers the connect probe and the NOTICE filter
func (m *Module) Init(s *server.Server) error {
	m.srv = s
	s.Events.UserRegister.Register(Name, m.onUserRegister)
	s.Events.PreCommand.Register(Name, m.onPreCommand)
	return nil
}

func (m *Module) onUserRegister(u *server.User) hooks.Result {
	u.WriteNumeric(irc.RPL_SPAMCMDFWD, "This server has anti-spambot mechanisms enabled.")
	u.WriteNumeric(irc.RPL_SPAMBOTWARNING, "Malicious bots, spammers, and other automated systems of dubious origin are NOT welcome here.")
	u.SendFrom(m.srv.Name(), "PRIVMSG", u.Nick(), irc.CTCP("TIME", ""))
	return hooks.Passthru
}

func (m *Module) onPreCommand(ev *server.CommandEvent) hooks.Result {
	msg := ev.Message
	if msg.Command != "NOTICE" || len(msg.Params) < 2 {
		return hooks.Passthru
	}
	u := ev.User

	if msg.Params[1] == BearReply {
		if !m.srv.AddZLine(BanDuration, m.srv.Name(), BanReason, u.IP()) {
			return hooks.Passthru
		}
		log := logger.Module(Name)
		log.Warn().
			Str("nick", u.Nick()).
			Str("ip", u.IP()).
			Msg("caught bear bot")
		m.srv.ApplyZLines()
		return hooks.Deny
	}

	// Unregistered clients have no business noticing a server
	if !u.IsFullyRegistered() && strings.Contains(msg.Params[0], ".") {
		return hooks.Deny
	}
	return hooks.Passthru
}
