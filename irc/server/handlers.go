package server

import (
	"strings"
	"time"

	"github.com/Kufat/inspircd/hooks"
	"github.com/Kufat/inspircd/irc"
	"github.com/rs/zerolog/log"
)

type commandHandler func(s *Server, u *User, msg *irc.Message)

// commands maps command names to their handlers
var commands map[string]commandHandler

// preRegistration lists the commands allowed before NICK and USER complete
var preRegistration = map[string]bool{
	"PASS": true,
	"NICK": true,
	"USER": true,
	"CAP":  true,
	"PING": true,
	"PONG": true,
	"QUIT": true,
}

func init() {
	commands = map[string]commandHandler{
		"PASS":     handlePass,
		"NICK":     handleNick,
		"USER":     handleUser,
		"CAP":      handleCap,
		"PING":     handlePing,
		"PONG":     handlePong,
		"QUIT":     handleQuit,
		"JOIN":     handleJoin,
		"PART":     handlePart,
		"KICK":     handleKick,
		"NAMES":    handleNames,
		"TOPIC":    handleTopic,
		"MODE":     handleMode,
		"PRIVMSG":  handlePrivmsg,
		"NOTICE":   handleNotice,
		irc.TAGMSG: handleTagmsg,
		"WHOIS":    handleWhois,
		"OPER":     handleOper,
	}
}

// dispatchCommand runs the PreCommand hooks and then the command's handler
func (s *Server) dispatchCommand(u *User, msg *irc.Message) {
	u.lastPong = time.Now()

	if s.Events.PreCommand.Run(&CommandEvent{User: u, Message: msg}) == hooks.Deny {
		return
	}

	handler, ok := commands[msg.Command]
	if !ok {
		if u.IsFullyRegistered() {
			u.WriteNumeric(irc.ERR_UNKNOWNCOMMAND, msg.Command, "Unknown command")
		}
		return
	}
	if !u.IsFullyRegistered() && !preRegistration[msg.Command] {
		u.WriteNumeric(irc.ERR_NOTREGISTERED, "You have not registered")
		return
	}
	if msg.Command != "PING" && msg.Command != "PONG" {
		u.lastActive = time.Now()
	}
	handler(s, u, msg)
}

func needMoreParams(u *User, msg *irc.Message, n int) bool {
	if len(msg.Params) < n {
		u.WriteNumeric(irc.ERR_NEEDMOREPARAMS, msg.Command, "Not enough parameters")
		return true
	}
	return false
}

// handlePass handles the PASS command
func handlePass(s *Server, u *User, msg *irc.Message) {
	if needMoreParams(u, msg, 1) {
		return
	}
	if u.IsFullyRegistered() {
		u.WriteNumeric(irc.ERR_ALREADYREGISTRED, "You may not reregister")
		return
	}
	u.passOK = msg.Params[0] == s.config.Server.Password
}

// handleNick handles the NICK command
func handleNick(s *Server, u *User, msg *irc.Message) {
	if len(msg.Params) < 1 || msg.Params[0] == "" {
		u.WriteNumeric(irc.ERR_NONICKNAMEGIVEN, "No nickname given")
		return
	}
	nick := msg.Params[0]
	if !irc.IsValidNick(nick) {
		u.WriteNumeric(irc.ERR_ERRONEUSNICKNAME, nick, "Erroneous nickname")
		return
	}
	if other := s.nicks[foldNick(nick)]; other != nil && other != u {
		u.WriteNumeric(irc.ERR_NICKNAMEINUSE, nick, "Nickname is already in use")
		return
	}
	if nick == u.nick {
		return
	}

	if u.IsFullyRegistered() {
		s.changeNick(u, nick)
		return
	}

	if u.nick != "" && s.nicks[foldNick(u.nick)] == u {
		delete(s.nicks, foldNick(u.nick))
	}
	u.nick = nick
	s.nicks[foldNick(nick)] = u
	u.reg |= RegNick
	s.completeRegistration(u)
}

// handleUser handles the USER command
func handleUser(s *Server, u *User, msg *irc.Message) {
	if needMoreParams(u, msg, 4) {
		return
	}
	if u.reg&RegUser != 0 {
		u.WriteNumeric(irc.ERR_ALREADYREGISTRED, "You may not reregister")
		return
	}
	u.ident = msg.Params[0]
	if len(u.ident) > 10 {
		u.ident = u.ident[:10]
	}
	u.realname = msg.Params[3]
	u.reg |= RegUser
	s.completeRegistration(u)
}

// handlePing handles the PING command
func handlePing(s *Server, u *User, msg *irc.Message) {
	if needMoreParams(u, msg, 1) {
		return
	}
	u.SendFrom(s.Name(), "PONG", s.Name(), msg.Params[0])
}

// handlePong handles the PONG command
func handlePong(s *Server, u *User, msg *irc.Message) {}

// handleQuit handles the QUIT command
func handleQuit(s *Server, u *User, msg *irc.Message) {
	reason := "Client exited"
	if len(msg.Params) > 0 && msg.Params[0] != "" {
		reason = "Quit: " + msg.Params[0]
	}
	s.markDead(u, reason)
}

// handleJoin handles the JOIN command
func handleJoin(s *Server, u *User, msg *irc.Message) {
	if needMoreParams(u, msg, 1) {
		return
	}
	if msg.Params[0] == "0" {
		for _, m := range u.Channels() {
			s.partChannel(u, m.Channel, "")
		}
		return
	}
	for _, name := range strings.Split(msg.Params[0], ",") {
		if !irc.IsChannel(name) {
			u.WriteNumeric(irc.ERR_NOSUCHCHANNEL, name, "No such channel")
			continue
		}
		s.joinChannel(u, name)
	}
}

// handlePart handles the PART command
func handlePart(s *Server, u *User, msg *irc.Message) {
	if needMoreParams(u, msg, 1) {
		return
	}
	reason := msg.Param(1)
	for _, name := range strings.Split(msg.Params[0], ",") {
		ch := s.GetChannel(name)
		if ch == nil {
			u.WriteNumeric(irc.ERR_NOSUCHCHANNEL, name, "No such channel")
			continue
		}
		if ch.GetUser(u) == nil {
			u.WriteNumeric(irc.ERR_NOTONCHANNEL, ch.name, "You're not on that channel")
			continue
		}
		s.partChannel(u, ch, reason)
	}
}

// handleKick handles the KICK command
func handleKick(s *Server, u *User, msg *irc.Message) {
	if needMoreParams(u, msg, 2) {
		return
	}
	ch := s.GetChannel(msg.Params[0])
	if ch == nil {
		u.WriteNumeric(irc.ERR_NOSUCHCHANNEL, msg.Params[0], "No such channel")
		return
	}
	rank := ch.GetPrefixValue(u)
	if ch.GetUser(u) == nil {
		u.WriteNumeric(irc.ERR_NOTONCHANNEL, ch.name, "You're not on that channel")
		return
	}

	reason := msg.Param(2)
	if reason == "" {
		reason = u.Nick()
	}
	for _, nick := range strings.Split(msg.Params[1], ",") {
		target := s.UserByNick(nick)
		if target == nil {
			u.WriteNumeric(irc.ERR_NOSUCHNICK, nick, "No such nick/channel")
			continue
		}
		memb := ch.GetUser(target)
		if memb == nil {
			u.WriteNumeric(irc.ERR_USERNOTINCHANNEL, target.Nick(), ch.name, "They aren't on that channel")
			continue
		}
		if rank < HalfopRank || (target != u && memb.Rank > rank) {
			u.WriteNumeric(irc.ERR_CHANOPRIVSNEEDED, ch.name, "You must be a channel operator")
			continue
		}
		s.kickUser(u, ch, target, reason)
	}
}

// handleNames handles the NAMES command
func handleNames(s *Server, u *User, msg *irc.Message) {
	if len(msg.Params) < 1 {
		u.WriteNumeric(irc.RPL_ENDOFNAMES, "*", "End of /NAMES list.")
		return
	}
	for _, name := range strings.Split(msg.Params[0], ",") {
		ch := s.GetChannel(name)
		if ch == nil || (ch.IsModeSet('s') && ch.GetUser(u) == nil && !u.IsOper()) {
			u.WriteNumeric(irc.RPL_ENDOFNAMES, name, "End of /NAMES list.")
			continue
		}
		s.sendNames(u, ch)
	}
}

// handleTopic handles the TOPIC command
func handleTopic(s *Server, u *User, msg *irc.Message) {
	if needMoreParams(u, msg, 1) {
		return
	}
	ch := s.GetChannel(msg.Params[0])
	if ch == nil {
		u.WriteNumeric(irc.ERR_NOSUCHCHANNEL, msg.Params[0], "No such channel")
		return
	}
	if len(msg.Params) < 2 {
		if ch.topic == "" {
			u.WriteNumeric(irc.RPL_NOTOPIC, ch.name, "No topic is set")
		} else {
			u.WriteNumeric(irc.RPL_TOPIC, ch.name, ch.topic)
		}
		return
	}
	if ch.GetUser(u) == nil {
		u.WriteNumeric(irc.ERR_NOTONCHANNEL, ch.name, "You're not on that channel")
		return
	}
	if ch.IsModeSet('t') && ch.GetPrefixValue(u) < HalfopRank {
		u.WriteNumeric(irc.ERR_CHANOPRIVSNEEDED, ch.name, "You must be a channel operator")
		return
	}
	ch.topic = msg.Params[1]
	ch.topicSetBy = u.Hostmask()
	ch.topicSetAt = time.Now()
	ch.Write(irc.NewMessage(u.Hostmask(), "TOPIC", ch.name, ch.topic), nil)
}

// handleMode handles the MODE command. Only channel flag and prefix modes
// can be changed; user modes can only be queried.
func handleMode(s *Server, u *User, msg *irc.Message) {
	if needMoreParams(u, msg, 1) {
		return
	}
	target := msg.Params[0]

	if !irc.IsChannel(target) {
		if !strings.EqualFold(target, u.nick) {
			u.WriteNumeric(irc.ERR_USERSDONTMATCH, "Can't change mode for other users")
			return
		}
		modes := "+"
		if u.IsOper() {
			modes += "o"
		}
		u.WriteNumeric(irc.RPL_UMODEIS, modes)
		return
	}

	ch := s.GetChannel(target)
	if ch == nil {
		u.WriteNumeric(irc.ERR_NOSUCHCHANNEL, target, "No such channel")
		return
	}
	if len(msg.Params) < 2 {
		u.WriteNumeric(irc.RPL_CHANNELMODEIS, ch.name, ch.ModeString())
		return
	}
	s.changeChannelModes(u, ch, msg.Params[1], msg.Params[2:])
}

// changeChannelModes applies a mode string and announces what changed
func (s *Server) changeChannelModes(u *User, ch *Channel, modestr string, args []string) {
	rank := ch.GetPrefixValue(u)
	adding := true
	var applied strings.Builder
	var appliedArgs []string
	lastDir := byte(0)

	record := func(letter rune, arg string) {
		dir := byte('-')
		if adding {
			dir = '+'
		}
		if dir != lastDir {
			applied.WriteByte(dir)
			lastDir = dir
		}
		applied.WriteRune(letter)
		if arg != "" {
			appliedArgs = append(appliedArgs, arg)
		}
	}

	for _, letter := range modestr {
		switch letter {
		case '+':
			adding = true
			continue
		case '-':
			adding = false
			continue
		}

		if grant, ok := prefixModes[letter]; ok {
			if len(args) == 0 {
				continue
			}
			nick := args[0]
			args = args[1:]
			if rank < HalfopRank || rank < grant {
				u.WriteNumeric(irc.ERR_CHANOPRIVSNEEDED, ch.name, "You must be a channel operator")
				continue
			}
			target := s.UserByNick(nick)
			if target == nil {
				u.WriteNumeric(irc.ERR_NOSUCHNICK, nick, "No such nick/channel")
				continue
			}
			memb := ch.GetUser(target)
			if memb == nil {
				u.WriteNumeric(irc.ERR_USERNOTINCHANNEL, target.Nick(), ch.name, "They aren't on that channel")
				continue
			}
			switch {
			case adding && memb.Rank < grant:
				memb.Rank = grant
			case !adding && memb.Rank == grant:
				memb.Rank = 0
			default:
				continue
			}
			record(letter, target.Nick())
			continue
		}

		mode, ok := s.chanModes[letter]
		if !ok {
			u.WriteNumeric(irc.ERR_UNKNOWNMODE, string(letter), "is unknown mode char to me")
			continue
		}
		if rank < mode.Rank {
			u.WriteNumeric(irc.ERR_CHANOPRIVSNEEDED, ch.name, "You must have channel privileges to change mode "+string(letter))
			continue
		}
		if ch.IsModeSet(letter) == adding {
			continue
		}
		ch.SetMode(letter, adding)
		record(letter, "")
	}

	if applied.Len() == 0 {
		return
	}
	params := append([]string{ch.name, applied.String()}, appliedArgs...)
	ch.Write(irc.NewMessage(u.Hostmask(), "MODE", params...), nil)
}

// handlePrivmsg handles the PRIVMSG command
func handlePrivmsg(s *Server, u *User, msg *irc.Message) {
	s.handleMessage(u, msg, false)
}

// handleNotice handles the NOTICE command. Errors are never replied to.
func handleNotice(s *Server, u *User, msg *irc.Message) {
	s.handleMessage(u, msg, true)
}

func (s *Server) handleMessage(u *User, msg *irc.Message, quiet bool) {
	if len(msg.Params) < 1 {
		if !quiet {
			u.WriteNumeric(irc.ERR_NORECIPIENT, "No recipient given ("+msg.Command+")")
		}
		return
	}
	if len(msg.Params) < 2 || msg.Params[1] == "" {
		if !quiet {
			u.WriteNumeric(irc.ERR_NOTEXTTOSEND, "No text to send")
		}
		return
	}

	for _, name := range splitTargets(msg.Params[0]) {
		target, ok := s.resolveTarget(u, name, quiet)
		if !ok {
			continue
		}
		s.sendMessage(u, target, msg.Command, msg.Params[1], clientTags(msg.Tags))
	}
}

// handleTagmsg handles the TAGMSG command
func handleTagmsg(s *Server, u *User, msg *irc.Message) {
	if needMoreParams(u, msg, 1) {
		return
	}
	tags := clientTags(msg.Tags)
	for _, name := range splitTargets(msg.Params[0]) {
		target, ok := s.resolveTarget(u, name, true)
		if !ok {
			continue
		}
		s.sendTagMessage(u, target, tags)
	}
}

func splitTargets(list string) []string {
	targets := strings.Split(list, ",")
	if len(targets) > maxTargets {
		targets = targets[:maxTargets]
	}
	return targets
}

// clientTags keeps only client-only (+prefixed) tags
func clientTags(tags map[string]string) map[string]string {
	var out map[string]string
	for k, v := range tags {
		if !strings.HasPrefix(k, "+") {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[k] = v
	}
	return out
}

// handleWhois handles the WHOIS command
func handleWhois(s *Server, u *User, msg *irc.Message) {
	if len(msg.Params) < 1 {
		u.WriteNumeric(irc.ERR_NONICKNAMEGIVEN, "No nickname given")
		return
	}
	nick := msg.Params[len(msg.Params)-1]
	target := s.UserByNick(nick)
	if target == nil {
		u.WriteNumeric(irc.ERR_NOSUCHNICK, nick, "No such nick/channel")
		u.WriteNumeric(irc.RPL_ENDOFWHOIS, nick, "End of /WHOIS list.")
		return
	}

	s.whoisLine(u, target, irc.RPL_WHOISUSER, target.Nick(), target.ident, target.host, "*", target.realname)
	if chans := s.whoisChannels(u, target); chans != "" {
		s.whoisLine(u, target, irc.RPL_WHOISCHANNELS, target.Nick(), chans)
	}
	s.whoisLine(u, target, irc.RPL_WHOISSERVER, target.Nick(), target.server.Name, target.server.Description)
	if target.IsOper() {
		s.whoisLine(u, target, irc.RPL_WHOISOPERATOR, target.Nick(), "is an IRC operator")
	}
	u.WriteNumeric(irc.RPL_ENDOFWHOIS, target.Nick(), "End of /WHOIS list.")
}

// whoisLine sends one WHOIS numeric through the WhoisLine hooks, followed
// by any lines the hooks queued
func (s *Server) whoisLine(source, target *User, numeric string, params ...string) {
	ev := &WhoisLineEvent{Source: source, Target: target, Numeric: numeric, Params: params}
	if s.Events.WhoisLine.Run(ev) != hooks.Deny {
		source.WriteNumeric(ev.Numeric, ev.Params...)
	}
	for _, line := range ev.extra {
		source.WriteNumeric(line[0], line[1:]...)
	}
}

func (s *Server) whoisChannels(source, target *User) string {
	var names []string
	for _, m := range target.Channels() {
		if m.Channel.IsModeSet('s') && m.Channel.GetUser(source) == nil && !source.IsOper() {
			continue
		}
		names = append(names, m.Prefix()+m.Channel.name)
	}
	return strings.Join(names, " ")
}

// handleOper handles the OPER command
func handleOper(s *Server, u *User, msg *irc.Message) {
	if needMoreParams(u, msg, 2) {
		return
	}
	op := s.GetOperator(msg.Params[0])
	if op == nil || !op.MatchesHost(u.Hostmask()) {
		u.WriteNumeric(irc.ERR_NOOPERHOST, "Invalid oper credentials")
		log.Warn().Str("nick", u.nick).Str("opername", msg.Params[0]).Msg("failed oper attempt")
		return
	}
	if !op.CheckPassword(msg.Params[1]) {
		u.WriteNumeric(irc.ERR_PASSWDMISMATCH, "Password incorrect")
		log.Warn().Str("nick", u.nick).Str("opername", msg.Params[0]).Msg("failed oper attempt")
		return
	}
	s.SetOper(u, op)
	log.Info().Str("nick", u.nick).Str("opername", op.Username).Msg("user opered")
}
