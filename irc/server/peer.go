package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Kufat/inspircd/irc"
	"github.com/Kufat/inspircd/metrics"
	"github.com/rs/zerolog/log"
)

var (
	// ErrServerExists is returned when a peer name is already linked
	ErrServerExists = errors.New("server already linked")
	// ErrNickCollision is returned when a remote user's nick is taken
	ErrNickCollision = errors.New("nickname collision")
	// ErrUUIDCollision is returned when a remote user's UUID is taken
	ErrUUIDCollision = errors.New("uuid collision")
)

// Peer is a linked server as seen by the event loop. Implementations turn
// the calls into wire lines and must not block.
type Peer interface {
	IntroduceUser(u *User)
	UserQuit(u *User, reason string)
	UserNick(u *User)
	UserOper(u *User, opername string)
	Metadata(u *User, name, value string)
	Message(source, target *User, command, text string, tags map[string]string)
	Close(reason string)
}

// AddServer registers a linked peer. It must run on the event loop.
func (s *Server) AddServer(name, sid, description string, peer Peer) (*ServerInfo, error) {
	key := strings.ToLower(name)
	if _, exists := s.servers[key]; exists || strings.EqualFold(name, s.Name()) {
		return nil, fmt.Errorf("%w: %s", ErrServerExists, name)
	}
	si := &ServerInfo{
		Name:        name,
		SID:         sid,
		Description: description,
		ulined:      s.config.IsULine(name),
		peer:        peer,
	}
	s.servers[key] = si
	log.Info().Str("peer", name).Bool("uline", si.ulined).Msg("server linked")
	return si, nil
}

// RemoveServer drops a peer and every user homed on it
func (s *Server) RemoveServer(si *ServerInfo, reason string) {
	if s.servers[strings.ToLower(si.Name)] != si {
		return
	}
	delete(s.servers, strings.ToLower(si.Name))

	quit := fmt.Sprintf("%s %s", s.Name(), si.Name)
	for _, u := range s.Users() {
		if u.server == si {
			s.QuitUser(u, quit)
		}
	}
	log.Info().Str("peer", si.Name).Str("reason", reason).Msg("server unlinked")
}

// Servers returns the linked peers
func (s *Server) Servers() []*ServerInfo {
	list := make([]*ServerInfo, 0, len(s.servers))
	for _, si := range s.servers {
		list = append(list, si)
	}
	return list
}

// AddRemoteUser introduces a user homed on a linked server. Users are not
// passed on to other peers.
func (s *Server) AddRemoteUser(si *ServerInfo, id, nick, ident, host, ip, realname string, oper bool) (*User, error) {
	if _, exists := s.users[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrUUIDCollision, id)
	}
	if _, exists := s.nicks[foldNick(nick)]; exists {
		return nil, fmt.Errorf("%w: %s", ErrNickCollision, nick)
	}

	now := time.Now()
	u := &User{
		uuid:       id,
		nick:       nick,
		ident:      ident,
		host:       host,
		ip:         ip,
		realname:   realname,
		srv:        s,
		server:     si,
		reg:        RegAll,
		caps:       make(map[string]bool),
		channels:   make(map[*Channel]*Membership),
		signon:     now,
		lastActive: now,
	}
	if oper {
		u.operName = si.Name
	}
	s.users[id] = u
	s.nicks[foldNick(nick)] = u
	metrics.Users.WithLabelValues("remote").Inc()
	return u, nil
}

// ChangeRemoteNick applies a NICK change received from a peer
func (s *Server) ChangeRemoteNick(u *User, nick string) error {
	if other, exists := s.nicks[foldNick(nick)]; exists && other != u {
		return fmt.Errorf("%w: %s", ErrNickCollision, nick)
	}
	s.changeNick(u, nick)
	return nil
}

// SetRemoteOper marks a remote user as opered
func (s *Server) SetRemoteOper(u *User, opername string) {
	if u.IsLocal() {
		return
	}
	u.operName = opername
}

// RouteMessage delivers a PRIVMSG, NOTICE or TAGMSG relayed by a peer to
// a local user. Messages only travel one hop.
func (s *Server) RouteMessage(source *User, targetUUID, command, text string, tags map[string]string) {
	target := s.users[targetUUID]
	if target == nil || !target.IsLocal() {
		log.Debug().Str("target", targetUUID).Str("command", command).Msg("dropping relayed message for unknown target")
		return
	}
	mt := MessageTarget{Type: TargetUser, User: target, Name: target.nick}
	if command == irc.TAGMSG {
		s.sendTagMessage(source, mt, tags)
		return
	}
	s.sendMessage(source, mt, command, text, tags)
}
