// Package auditorium adds channel mode +u. In an auditorium channel members
// cannot see each other join, part or appear in the names list.
package auditorium

import (
	"github.com/Kufat/inspircd/hooks"
	"github.com/Kufat/inspircd/irc/server"
)

const (
	// Name is the module name
	Name = "auditorium"
	// Mode is the channel mode letter
	Mode = 'u'
	// AuspexPriv lets opers see hidden members
	AuspexPriv = "channels/auspex"
)

// Module is the auditorium module
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
	return "Allows for auditorium channels (+u) where nobody can see others joining and parting or the nick list"
}

// Init registers +u and the visibility hooks
func (m *Module) Init(s *server.Server) error {
	m.srv = s
	err := s.RegisterChannelMode(server.ChannelMode{
		Letter: Mode,
		Name:   "auditorium",
		Owner:  Name,
		Rank:   server.OpRank,
	})
	if err != nil {
		return err
	}

	s.Events.NamesListItem.Register(Name, m.onNamesListItem)
	s.Events.UserJoin.Register(Name, m.buildExcept)
	s.Events.UserPart.Register(Name, m.buildExcept)
	s.Events.UserKick.Register(Name, m.buildExcept)
	s.Events.BuildNeighborList.Register(Name, m.onBuildNeighborList)
	return nil
}

// IsVisible reports whether everyone on the channel can see memb
func (m *Module) IsVisible(memb *server.Membership) bool {
	if !memb.Channel.IsModeSet(Mode) {
		return true
	}
	return m.srv.Config().Modules.Auditorium.OpVisible && memb.Rank >= server.OpRank
}

// CanSee reports whether issuer can see memb
func (m *Module) CanSee(issuer *server.User, memb *server.Membership) bool {
	opts := m.srv.Config().Modules.Auditorium
	if opts.OperCanSee && issuer.HasPrivPermission(AuspexPriv) {
		return true
	}
	if issuer == memb.User {
		return true
	}
	return opts.OpCanSee && memb.Channel.GetPrefixValue(issuer) >= server.OpRank
}

func (m *Module) onNamesListItem(ev *server.NamesItemEvent) hooks.Result {
	// Already hidden by someone else
	if ev.Nick == "" {
		return hooks.Passthru
	}
	if m.IsVisible(ev.Member) || m.CanSee(ev.Issuer, ev.Member) {
		return hooks.Passthru
	}
	ev.Nick = ""
	return hooks.Passthru
}

func (m *Module) buildExcept(ev *server.ChannelEvent) hooks.Result {
	if m.IsVisible(ev.Member) {
		return hooks.Passthru
	}
	for _, other := range ev.Member.Channel.Members() {
		if other.User.IsLocal() && !m.CanSee(other.User, ev.Member) {
			ev.Except[other.User] = true
		}
	}
	return hooks.Passthru
}

func (m *Module) onBuildNeighborList(ev *server.NeighborEvent) hooks.Result {
	for c := range ev.Include {
		memb := c.GetUser(ev.Source)
		if memb == nil || m.IsVisible(memb) {
			continue
		}
		delete(ev.Include, c)

		// Members who can see the source still hear about it
		for _, other := range c.Members() {
			if other.User.IsLocal() && m.CanSee(other.User, memb) {
				ev.Exceptions[other.User] = true
			}
		}
	}
	return hooks.Passthru
}
