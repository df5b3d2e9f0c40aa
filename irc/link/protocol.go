package link

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/Kufat/inspircd/extension"
	"github.com/Kufat/inspircd/irc"
	"github.com/Kufat/inspircd/irc/server"
	"github.com/rs/zerolog/log"
)

type linkHandler func(l *Link, msg *irc.Message)

var linkCommands map[string]linkHandler

func init() {
	linkCommands = map[string]linkHandler{
		"UID":      handleUID,
		"METADATA": handleMetadata,
		"ENDBURST": handleEndBurst,
		"QUIT":     handleQuit,
		"NICK":     handleNick,
		"OPER":     handleOper,
		"PRIVMSG":  handleMessage,
		"NOTICE":   handleMessage,
		irc.TAGMSG: handleMessage,
		"PING":     handlePing,
		"PONG":     func(*Link, *irc.Message) {},
	}
}

// handle runs one line from the peer on the event loop
func (l *Link) handle(msg *irc.Message) {
	switch msg.Command {
	case "ERROR":
		log.Warn().Str("peer", l.peerName()).Str("reason", msg.Last()).Msg("peer closed link")
		l.closeConn()
		return
	case "SERVER":
		l.handleServer(msg)
		return
	}

	if l.remote == nil {
		l.abort("Not authenticated")
		return
	}
	handler, ok := linkCommands[msg.Command]
	if !ok {
		log.Debug().Str("peer", l.remote.Name).Str("command", msg.Command).Msg("ignoring unknown link command")
		return
	}
	handler(l, msg)
}

// sendCredentials sends our SERVER line for the link block in use
func (l *Link) sendCredentials() {
	me := l.srv.Me()
	l.send(irc.NewMessage("", "SERVER", me.Name, me.SID, l.outgoing.Password, me.Description))
}

// handleServer checks the peer's SERVER line against our link blocks and
// registers the peer
func (l *Link) handleServer(msg *irc.Message) {
	if l.remote != nil {
		l.abort("Already authenticated")
		return
	}
	if len(msg.Params) < 3 {
		l.abort("Invalid SERVER line")
		return
	}
	name, sid, password := msg.Params[0], msg.Params[1], msg.Params[2]
	description := msg.Param(3)

	block, ok := l.srv.Config().FindLink(name)
	if !ok || subtle.ConstantTimeCompare([]byte(block.Password), []byte(password)) != 1 {
		l.abort("Invalid credentials")
		return
	}
	if l.outgoing != nil && !strings.EqualFold(l.outgoing.Name, name) {
		l.abort("Unexpected server name " + name)
		return
	}

	if l.outgoing == nil {
		l.outgoing = &block
		l.sendCredentials()
	}

	si, err := l.srv.AddServer(name, sid, description, l)
	if err != nil {
		l.abort(err.Error())
		return
	}
	l.remote = si
	l.remoteBursting = true
	l.burst()
}

// burst introduces every local user and their extension values
func (l *Link) burst() {
	for _, u := range l.srv.LocalUsers() {
		if !u.IsFullyRegistered() {
			continue
		}
		l.IntroduceUser(u)
		for _, item := range l.srv.Extensions().Items("") {
			if value, ok := item.Serialize(u); ok {
				l.Metadata(u, item.Name(), value)
			}
		}
	}
	l.sendFrom("ENDBURST")
}

// remoteUser resolves a UUID to a user homed on this link's peer
func (l *Link) remoteUser(id string) *server.User {
	u := l.srv.UserByUUID(id)
	if !isOurs(l.remote, u) {
		return nil
	}
	return u
}

func handleUID(l *Link, msg *irc.Message) {
	if len(msg.Params) < 7 {
		log.Warn().Str("peer", l.remote.Name).Msg("short UID line")
		return
	}
	p := msg.Params
	_, err := l.srv.AddRemoteUser(l.remote, p[0], p[1], p[2], p[3], p[4], p[6], p[5] == "1")
	if err != nil {
		log.Warn().Err(err).Str("peer", l.remote.Name).Str("uuid", p[0]).Msg("failed to introduce remote user")
	}
}

// handleMetadata applies an extension value for a remote user. Unknown
// items and malformed values are logged and the link stays up.
func handleMetadata(l *Link, msg *irc.Message) {
	if len(msg.Params) < 2 {
		return
	}
	id, name, value := msg.Params[0], msg.Params[1], msg.Param(2)
	u := l.remoteUser(id)
	if u == nil {
		log.Debug().Str("peer", l.remote.Name).Str("uuid", id).Msg("METADATA for unknown user")
		return
	}

	err := l.srv.ApplyExtension(u, name, value)
	switch {
	case err == nil:
	case errors.Is(err, extension.ErrUnknownItem):
		log.Debug().Str("peer", l.remote.Name).Str("item", name).Msg("ignoring METADATA for unknown item")
	default:
		log.Warn().Err(err).Str("peer", l.remote.Name).Str("uuid", id).Str("item", name).Msg("bad METADATA from peer")
	}
}

func handleEndBurst(l *Link, msg *irc.Message) {
	if !l.remoteBursting {
		return
	}
	l.remoteBursting = false
	log.Info().Str("peer", l.remote.Name).Msg("burst complete")
}

func handleQuit(l *Link, msg *irc.Message) {
	if u := l.remoteUser(msg.Prefix); u != nil {
		l.srv.QuitUser(u, msg.Param(0))
	}
}

func handleNick(l *Link, msg *irc.Message) {
	u := l.remoteUser(msg.Prefix)
	if u == nil || len(msg.Params) < 1 {
		return
	}
	if err := l.srv.ChangeRemoteNick(u, msg.Params[0]); err != nil {
		log.Warn().Err(err).Str("peer", l.remote.Name).Str("uuid", u.UUID()).Msg("remote nick change refused")
	}
}

func handleOper(l *Link, msg *irc.Message) {
	if u := l.remoteUser(msg.Prefix); u != nil {
		l.srv.SetRemoteOper(u, msg.Param(0))
	}
}

func handleMessage(l *Link, msg *irc.Message) {
	source := l.remoteUser(msg.Prefix)
	if source == nil || len(msg.Params) < 1 {
		return
	}
	l.srv.RouteMessage(source, msg.Params[0], msg.Command, msg.Param(1), msg.Tags)
}

func handlePing(l *Link, msg *irc.Message) {
	l.sendFrom("PONG", msg.Params...)
}
