package server

import (
	"sort"
	"strings"
	"time"

	"github.com/Kufat/inspircd/irc"
)

// Membership ranks, on the same scale modules compare against
const (
	VoiceRank  = 10000
	HalfopRank = 20000
	OpRank     = 30000
)

// ChannelMode describes a flag (parameterless) channel mode
type ChannelMode struct {
	Letter rune
	Name   string
	Owner  string // module that registered it, "" for built-ins
	// Rank needed to change the mode
	Rank int
}

// Membership links a user to a channel
type Membership struct {
	User    *User
	Channel *Channel
	Rank    int
	Joined  time.Time
}

// Prefix returns the NAMES/WHOIS prefix for the membership's rank
func (m *Membership) Prefix() string {
	switch {
	case m.Rank >= OpRank:
		return "@"
	case m.Rank >= HalfopRank:
		return "%"
	case m.Rank >= VoiceRank:
		return "+"
	}
	return ""
}

// Channel represents an IRC channel. Channels are local to this server.
type Channel struct {
	name       string
	created    time.Time
	topic      string
	topicSetBy string
	topicSetAt time.Time
	modes      map[rune]bool
	members    map[*User]*Membership
}

func newChannel(name string) *Channel {
	return &Channel{
		name:    name,
		created: time.Now(),
		modes:   map[rune]bool{'n': true, 't': true},
		members: make(map[*User]*Membership),
	}
}

// Name returns the channel name
func (c *Channel) Name() string { return c.name }

// Topic returns the channel topic
func (c *Channel) Topic() string { return c.topic }

// IsModeSet reports whether a flag mode is set
func (c *Channel) IsModeSet(letter rune) bool { return c.modes[letter] }

// SetMode sets or clears a flag mode
func (c *Channel) SetMode(letter rune, on bool) {
	if on {
		c.modes[letter] = true
	} else {
		delete(c.modes, letter)
	}
}

// ModeString returns "+" followed by the set flag modes in order
func (c *Channel) ModeString() string {
	letters := make([]string, 0, len(c.modes))
	for m := range c.modes {
		letters = append(letters, string(m))
	}
	sort.Strings(letters)
	return "+" + strings.Join(letters, "")
}

// GetUser returns the membership of u, or nil
func (c *Channel) GetUser(u *User) *Membership { return c.members[u] }

// GetPrefixValue returns u's rank on the channel, 0 when not a member
func (c *Channel) GetPrefixValue(u *User) int {
	if m := c.members[u]; m != nil {
		return m.Rank
	}
	return 0
}

// Members returns the memberships sorted by nickname
func (c *Channel) Members() []*Membership {
	list := make([]*Membership, 0, len(c.members))
	for _, m := range c.members {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool {
		return foldNick(list[i].User.nick) < foldNick(list[j].User.nick)
	})
	return list
}

// MemberCount returns the number of members
func (c *Channel) MemberCount() int { return len(c.members) }

// Write sends msg to every local member not in except
func (c *Channel) Write(msg *irc.Message, except map[*User]bool) {
	for _, m := range c.Members() {
		if except[m.User] {
			continue
		}
		m.User.Send(msg)
	}
}

func (c *Channel) addUser(u *User, rank int) *Membership {
	m := &Membership{User: u, Channel: c, Rank: rank, Joined: time.Now()}
	c.members[u] = m
	u.channels[c] = m
	return m
}

func (c *Channel) removeUser(u *User) {
	delete(c.members, u)
	delete(u.channels, c)
}

func builtinChannelModes() map[rune]*ChannelMode {
	return map[rune]*ChannelMode{
		'm': {Letter: 'm', Name: "moderated", Rank: HalfopRank},
		'n': {Letter: 'n', Name: "noextmsg", Rank: HalfopRank},
		's': {Letter: 's', Name: "secret", Rank: HalfopRank},
		't': {Letter: 't', Name: "topiclock", Rank: HalfopRank},
	}
}

// prefixModes maps prefix mode letters to the rank they grant
var prefixModes = map[rune]int{
	'o': OpRank,
	'h': HalfopRank,
	'v': VoiceRank,
}

// GetChannel gets a channel by name
func (s *Server) GetChannel(name string) *Channel {
	return s.channels[strings.ToLower(name)]
}

// Channels returns every channel sorted by name
func (s *Server) Channels() []*Channel {
	list := make([]*Channel, 0, len(s.channels))
	for _, c := range s.channels {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].name < list[j].name })
	return list
}

// RegisterChannelMode adds a module provided flag mode
func (s *Server) RegisterChannelMode(mode ChannelMode) error {
	if _, exists := s.chanModes[mode.Letter]; exists {
		return &ModeConflictError{Letter: mode.Letter}
	}
	if _, exists := prefixModes[mode.Letter]; exists {
		return &ModeConflictError{Letter: mode.Letter}
	}
	m := mode
	s.chanModes[mode.Letter] = &m
	return nil
}

// ModeConflictError is returned when a mode letter is already taken
type ModeConflictError struct {
	Letter rune
}

func (e *ModeConflictError) Error() string {
	return "channel mode " + string(e.Letter) + " is already registered"
}

// unregisterChannelModes drops owner's modes and clears them from every channel
func (s *Server) unregisterChannelModes(owner string) {
	for letter, m := range s.chanModes {
		if m.Owner != owner {
			continue
		}
		delete(s.chanModes, letter)
		for _, c := range s.channels {
			c.SetMode(letter, false)
		}
	}
}

// channelModeLetters returns the flag mode letters for RPL_MYINFO
func (s *Server) channelModeLetters() string {
	letters := make([]string, 0, len(s.chanModes)+len(prefixModes))
	for l := range s.chanModes {
		letters = append(letters, string(l))
	}
	for l := range prefixModes {
		letters = append(letters, string(l))
	}
	sort.Strings(letters)
	return strings.Join(letters, "")
}
