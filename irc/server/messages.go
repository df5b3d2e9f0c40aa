package server

import (
	"strings"

	"github.com/Kufat/inspircd/hooks"
	"github.com/Kufat/inspircd/irc"
)

// maxTargets bounds the comma separated targets of one message
const maxTargets = 20

// resolveTarget turns a PRIVMSG/NOTICE/TAGMSG target into a MessageTarget.
// It replies with the matching error numeric unless quiet is set.
func (s *Server) resolveTarget(u *User, name string, quiet bool) (MessageTarget, bool) {
	fail := func(numeric string, params ...string) (MessageTarget, bool) {
		if !quiet {
			u.WriteNumeric(numeric, params...)
		}
		return MessageTarget{}, false
	}

	switch {
	case strings.HasPrefix(name, "$"):
		if !u.IsOper() {
			return fail(irc.ERR_NOSUCHNICK, name, "No such nick/channel")
		}
		return MessageTarget{Type: TargetServer, Name: name}, true

	case irc.IsChannel(name):
		ch := s.GetChannel(name)
		if ch == nil {
			return fail(irc.ERR_NOSUCHNICK, name, "No such nick/channel")
		}
		memb := ch.GetUser(u)
		if memb == nil && ch.IsModeSet('n') {
			return fail(irc.ERR_CANNOTSENDTOCHAN, ch.name, "Cannot send to channel (no external messages)")
		}
		if ch.IsModeSet('m') && ch.GetPrefixValue(u) < VoiceRank {
			return fail(irc.ERR_CANNOTSENDTOCHAN, ch.name, "Cannot send to channel (+m)")
		}
		return MessageTarget{Type: TargetChannel, Channel: ch, Name: ch.name}, true

	default:
		target := s.UserByNick(name)
		if target == nil || !target.IsFullyRegistered() {
			return fail(irc.ERR_NOSUCHNICK, name, "No such nick/channel")
		}
		return MessageTarget{Type: TargetUser, User: target, Name: target.nick}, true
	}
}

// sendMessage runs the PreMessage hooks and delivers a PRIVMSG or NOTICE.
// It returns false when a hook denied the message.
func (s *Server) sendMessage(source *User, target MessageTarget, command, text string, tags map[string]string) bool {
	ev := &MessageEvent{
		Source:  source,
		Target:  target,
		Command: command,
		Text:    text,
		Tags:    tags,
	}
	if s.Events.PreMessage.Run(ev) == hooks.Deny {
		return false
	}

	msg := &irc.Message{
		Tags:    ev.Tags,
		Prefix:  source.Hostmask(),
		Command: command,
		Params:  []string{target.Name, ev.Text},
	}
	s.deliver(source, target, msg, func(t *User) {
		t.server.peer.Message(source, t, command, ev.Text, ev.Tags)
	})

	s.Events.PostMessage.Run(ev)
	return true
}

// sendTagMessage runs the PreTagMessage hooks and delivers a TAGMSG
func (s *Server) sendTagMessage(source *User, target MessageTarget, tags map[string]string) bool {
	ev := &TagMessageEvent{
		Source: source,
		Target: target,
		Tags:   tags,
	}
	if s.Events.PreTagMessage.Run(ev) == hooks.Deny {
		return false
	}

	msg := &irc.Message{
		Tags:    ev.Tags,
		Prefix:  source.Hostmask(),
		Command: irc.TAGMSG,
		Params:  []string{target.Name},
	}
	s.deliver(source, target, msg, func(t *User) {
		t.server.peer.Message(source, t, irc.TAGMSG, "", ev.Tags)
	})
	return true
}

func (s *Server) deliver(source *User, target MessageTarget, msg *irc.Message, relay func(*User)) {
	tagOnly := msg.Command == irc.TAGMSG

	switch target.Type {
	case TargetUser:
		t := target.User
		if !t.IsLocal() {
			relay(t)
			return
		}
		if tagOnly && !t.HasCap(capMessageTags) {
			return
		}
		t.Send(msg)

	case TargetChannel:
		except := map[*User]bool{source: true}
		if tagOnly {
			for _, m := range target.Channel.Members() {
				if !m.User.HasCap(capMessageTags) {
					except[m.User] = true
				}
			}
		}
		target.Channel.Write(msg, except)

	case TargetServer:
		if !irc.MatchMask(strings.TrimPrefix(target.Name, "$"), s.Name()) {
			return
		}
		for _, u := range s.LocalUsers() {
			if tagOnly && !u.HasCap(capMessageTags) {
				continue
			}
			u.Send(msg)
		}
	}
}
