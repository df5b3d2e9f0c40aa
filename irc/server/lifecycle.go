package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/Kufat/inspircd/hooks"
	"github.com/Kufat/inspircd/irc"
	"github.com/Kufat/inspircd/metrics"
	"github.com/rs/zerolog/log"
)

const serverVersion = "inspircd-go-1.0"

// completeRegistration runs once NICK and USER are both in and CAP
// negotiation is over
func (s *Server) completeRegistration(u *User) {
	if u.reg != RegNick|RegUser || u.capNeg || u.quitting {
		return
	}
	if s.config.Server.Password != "" && !u.passOK {
		u.WriteNumeric(irc.ERR_PASSWDMISMATCH, "Password incorrect")
		s.markDead(u, "Bad password")
		return
	}

	u.reg = RegAll
	s.sendWelcome(u)

	if s.Events.UserRegister.Run(u) == hooks.Deny {
		s.markDead(u, "Registration refused")
		return
	}

	for _, si := range s.servers {
		si.peer.IntroduceUser(u)
	}
	log.Info().Str("uuid", u.uuid).Str("nick", u.nick).Str("ip", u.ip).Msg("client registered")
}

// sendWelcome sends the welcome messages to the client
func (s *Server) sendWelcome(u *User) {
	network := s.config.Server.Network

	u.WriteNumeric(irc.RPL_WELCOME, fmt.Sprintf("Welcome to the %s IRC Network %s", network, u.Hostmask()))
	u.WriteNumeric(irc.RPL_YOURHOST, fmt.Sprintf("Your host is %s, running version %s", s.Name(), serverVersion))
	u.WriteNumeric(irc.RPL_CREATED, fmt.Sprintf("This server was created %s", s.startTime.Format(time.RFC1123)))
	u.WriteNumeric(irc.RPL_MYINFO, s.Name(), serverVersion, "o", s.channelModeLetters())
}

// QuitUser removes a user from the network. Local users are disconnected
// and peers are told; every extension value attached to the user is
// dropped.
func (s *Server) QuitUser(u *User, reason string) {
	if u.quitting {
		return
	}
	u.quitting = true

	if u.IsFullyRegistered() {
		line := irc.NewMessage(u.Hostmask(), "QUIT", reason)
		for n := range s.neighbors(u) {
			n.Send(line)
		}
		s.Events.UserQuit.Run(&QuitEvent{User: u, Reason: reason})
	}

	for c := range u.channels {
		c.removeUser(u)
		if c.MemberCount() == 0 {
			delete(s.channels, strings.ToLower(c.name))
		}
	}

	if s.nicks[foldNick(u.nick)] == u {
		delete(s.nicks, foldNick(u.nick))
	}
	delete(s.users, u.uuid)
	s.extensions.Destroy(u)

	if u.IsLocal() {
		metrics.Users.WithLabelValues("local").Dec()
		if u.IsFullyRegistered() {
			for _, si := range s.servers {
				si.peer.UserQuit(u, reason)
			}
		}
		u.conn.write(irc.NewMessage("", "ERROR", fmt.Sprintf("Closing link: (%s@%s) [%s]", u.ident, u.host, reason)).String())
		u.conn.close()
		log.Debug().Str("uuid", u.uuid).Str("nick", u.nick).Str("reason", reason).Msg("client quit")
	} else {
		metrics.Users.WithLabelValues("remote").Dec()
	}
}

// neighbors returns the local users sharing a channel with u, as adjusted
// by the BuildNeighborList hooks. u itself is never included.
func (s *Server) neighbors(u *User) map[*User]bool {
	ev := &NeighborEvent{
		Source:     u,
		Include:    make(map[*Channel]bool, len(u.channels)),
		Exceptions: make(map[*User]bool),
	}
	for c := range u.channels {
		ev.Include[c] = true
	}
	s.Events.BuildNeighborList.Run(ev)

	out := make(map[*User]bool)
	for c, ok := range ev.Include {
		if !ok {
			continue
		}
		for m := range c.members {
			if m.IsLocal() {
				out[m] = true
			}
		}
	}
	for m, include := range ev.Exceptions {
		if include && m.IsLocal() {
			out[m] = true
		} else {
			delete(out, m)
		}
	}
	delete(out, u)
	return out
}

// changeNick renames u and tells the neighbours, u itself and the peers
func (s *Server) changeNick(u *User, nick string) {
	old := u.Hostmask()
	if s.nicks[foldNick(u.nick)] == u {
		delete(s.nicks, foldNick(u.nick))
	}
	u.nick = nick
	s.nicks[foldNick(nick)] = u

	line := irc.NewMessage(old, "NICK", nick)
	u.Send(line)
	for n := range s.neighbors(u) {
		n.Send(line)
	}

	if u.IsLocal() {
		for _, si := range s.servers {
			si.peer.UserNick(u)
		}
	}
}

// joinChannel adds u to the named channel, creating it with u as op
func (s *Server) joinChannel(u *User, name string) {
	key := strings.ToLower(name)
	ch := s.channels[key]
	rank := 0
	if ch == nil {
		ch = newChannel(name)
		s.channels[key] = ch
		rank = OpRank
	}
	if ch.GetUser(u) != nil {
		return
	}

	memb := ch.addUser(u, rank)
	ev := &ChannelEvent{Member: memb, Except: make(map[*User]bool)}
	s.Events.UserJoin.Run(ev)
	delete(ev.Except, u)
	ch.Write(irc.NewMessage(u.Hostmask(), "JOIN", ch.name), ev.Except)

	if ch.topic != "" {
		u.WriteNumeric(irc.RPL_TOPIC, ch.name, ch.topic)
	} else {
		u.WriteNumeric(irc.RPL_NOTOPIC, ch.name, "No topic is set")
	}
	s.sendNames(u, ch)
}

// partChannel removes u from ch with a PART line
func (s *Server) partChannel(u *User, ch *Channel, reason string) {
	memb := ch.GetUser(u)
	if memb == nil {
		return
	}
	ev := &ChannelEvent{Member: memb, Reason: reason, Except: make(map[*User]bool)}
	s.Events.UserPart.Run(ev)
	delete(ev.Except, u)

	params := []string{ch.name}
	if ev.Reason != "" {
		params = append(params, ev.Reason)
	}
	ch.Write(irc.NewMessage(u.Hostmask(), "PART", params...), ev.Except)
	s.removeMember(u, ch)
}

// kickUser removes target from ch on behalf of source
func (s *Server) kickUser(source *User, ch *Channel, target *User, reason string) {
	memb := ch.GetUser(target)
	if memb == nil {
		return
	}
	ev := &ChannelEvent{Member: memb, Source: source, Reason: reason, Except: make(map[*User]bool)}
	s.Events.UserKick.Run(ev)
	delete(ev.Except, target)
	delete(ev.Except, source)

	ch.Write(irc.NewMessage(source.Hostmask(), "KICK", ch.name, target.Nick(), ev.Reason), ev.Except)
	s.removeMember(target, ch)
}

func (s *Server) removeMember(u *User, ch *Channel) {
	ch.removeUser(u)
	if ch.MemberCount() == 0 {
		delete(s.channels, strings.ToLower(ch.name))
	}
}

// sendNames sends the NAMES reply for ch to u
func (s *Server) sendNames(u *User, ch *Channel) {
	names := make([]string, 0, ch.MemberCount())
	for _, m := range ch.Members() {
		ev := &NamesItemEvent{Issuer: u, Member: m, Prefixes: m.Prefix(), Nick: m.User.Nick()}
		if s.Events.NamesListItem.Run(ev) == hooks.Deny || ev.Nick == "" {
			continue
		}
		names = append(names, ev.Prefixes+ev.Nick)
	}

	symbol := "="
	if ch.IsModeSet('s') {
		symbol = "@"
	}
	// Keep each 353 line well under the 512 byte limit
	for len(names) > 0 {
		n := 0
		size := 0
		for n < len(names) && size+len(names[n])+1 < 400 {
			size += len(names[n]) + 1
			n++
		}
		if n == 0 {
			n = 1
		}
		u.WriteNumeric(irc.RPL_NAMREPLY, symbol, ch.name, strings.Join(names[:n], " "))
		names = names[n:]
	}
	u.WriteNumeric(irc.RPL_ENDOFNAMES, ch.name, "End of /NAMES list.")
}
