package server

import (
	"github.com/Kufat/inspircd/hooks"
	"github.com/Kufat/inspircd/irc"
)

// TargetType says what a message is addressed to
type TargetType int

const (
	TargetUser TargetType = iota
	TargetChannel
	TargetServer
)

// MessageTarget is the resolved destination of a PRIVMSG, NOTICE or TAGMSG
type MessageTarget struct {
	Type    TargetType
	User    *User
	Channel *Channel
	// Server mask for TargetServer, the raw target otherwise
	Name string
}

// MessageEvent is handed to PreMessage and PostMessage hooks
type MessageEvent struct {
	Source  *User
	Target  MessageTarget
	Command string // PRIVMSG or NOTICE
	Text    string
	Tags    map[string]string
}

// TagMessageEvent is handed to PreTagMessage hooks
type TagMessageEvent struct {
	Source *User
	Target MessageTarget
	Tags   map[string]string
}

// CommandEvent is handed to PreCommand hooks before a command is validated.
// Denying it drops the command.
type CommandEvent struct {
	User    *User
	Message *irc.Message
}

// WhoisLineEvent is handed to WhoisLine hooks for every line of a WHOIS
// reply. Denying it suppresses the line.
type WhoisLineEvent struct {
	Source  *User
	Target  *User
	Numeric string
	Params  []string

	extra [][]string
}

// SendLine queues an extra numeric to follow the current WHOIS line
func (e *WhoisLineEvent) SendLine(numeric string, text string) {
	e.extra = append(e.extra, []string{numeric, e.Target.Nick(), text})
}

// SendNumeric queues an extra numeric with arbitrary parameters after the
// target's nick
func (e *WhoisLineEvent) SendNumeric(numeric string, params ...string) {
	line := append([]string{numeric, e.Target.Nick()}, params...)
	e.extra = append(e.extra, line)
}

// NamesItemEvent is handed to NamesListItem hooks for every member listed
// in a NAMES reply. Clearing Nick hides the member.
type NamesItemEvent struct {
	Issuer   *User
	Member   *Membership
	Prefixes string
	Nick     string
}

// ChannelEvent is handed to UserJoin, UserPart and UserKick hooks. Users
// added to Except do not see the line.
type ChannelEvent struct {
	Member *Membership
	Source *User // kicker, nil for JOIN and PART
	Reason string
	Except map[*User]bool
}

// NeighborEvent is handed to BuildNeighborList hooks when a user's QUIT or
// NICK is fanned out. Hooks may drop channels from Include; Exceptions
// forces a user in (true) or out (false).
type NeighborEvent struct {
	Source     *User
	Include    map[*Channel]bool
	Exceptions map[*User]bool
}

// QuitEvent is handed to UserQuit hooks
type QuitEvent struct {
	User   *User
	Reason string
}

// Events holds the hook registries modules attach to
type Events struct {
	PreCommand        *hooks.Registry[*CommandEvent]
	UserRegister      *hooks.Registry[*User]
	PreMessage        *hooks.Registry[*MessageEvent]
	PreTagMessage     *hooks.Registry[*TagMessageEvent]
	PostMessage       *hooks.Registry[*MessageEvent]
	WhoisLine         *hooks.Registry[*WhoisLineEvent]
	NamesListItem     *hooks.Registry[*NamesItemEvent]
	UserJoin          *hooks.Registry[*ChannelEvent]
	UserPart          *hooks.Registry[*ChannelEvent]
	UserKick          *hooks.Registry[*ChannelEvent]
	BuildNeighborList *hooks.Registry[*NeighborEvent]
	UserQuit          *hooks.Registry[*QuitEvent]
}

// NewEvents creates an empty set of registries
func NewEvents() *Events {
	return &Events{
		PreCommand:        hooks.NewRegistry[*CommandEvent](),
		UserRegister:      hooks.NewRegistry[*User](),
		PreMessage:        hooks.NewRegistry[*MessageEvent](),
		PreTagMessage:     hooks.NewRegistry[*TagMessageEvent](),
		PostMessage:       hooks.NewRegistry[*MessageEvent](),
		WhoisLine:         hooks.NewRegistry[*WhoisLineEvent](),
		NamesListItem:     hooks.NewRegistry[*NamesItemEvent](),
		UserJoin:          hooks.NewRegistry[*ChannelEvent](),
		UserPart:          hooks.NewRegistry[*ChannelEvent](),
		UserKick:          hooks.NewRegistry[*ChannelEvent](),
		BuildNeighborList: hooks.NewRegistry[*NeighborEvent](),
		UserQuit:          hooks.NewRegistry[*QuitEvent](),
	}
}

// RemoveOwner drops every hook registered by owner and returns the count
func (e *Events) RemoveOwner(owner string) int {
	return e.PreCommand.RemoveOwner(owner) +
		e.UserRegister.RemoveOwner(owner) +
		e.PreMessage.RemoveOwner(owner) +
		e.PreTagMessage.RemoveOwner(owner) +
		e.PostMessage.RemoveOwner(owner) +
		e.WhoisLine.RemoveOwner(owner) +
		e.NamesListItem.RemoveOwner(owner) +
		e.UserJoin.RemoveOwner(owner) +
		e.UserPart.RemoveOwner(owner) +
		e.UserKick.RemoveOwner(owner) +
		e.BuildNeighborList.RemoveOwner(owner) +
		e.UserQuit.RemoveOwner(owner)
}
