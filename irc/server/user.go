package server

import (
	"sort"
	"strings"
	"time"

	"github.com/Kufat/inspircd/irc"
)

// RegState tracks how far a local connection is through registration
type RegState uint8

const (
	RegNick RegState = 1 << iota
	RegUser
	// set once the welcome burst went out
	RegWelcomed

	RegNone RegState = 0
	RegAll           = RegNick | RegUser | RegWelcomed
)

// ServerInfo describes a server a user can be homed on
type ServerInfo struct {
	Name        string
	SID         string
	Description string

	ulined bool
	peer   Peer
}

// IsULine reports whether the server is trusted as a relay (services, bridges)
func (si *ServerInfo) IsULine() bool {
	return si.ulined
}

// IsLocal reports whether this is the server we are running
func (si *ServerInfo) IsLocal() bool {
	return si.peer == nil
}

// User is a client on the network, either connected here or introduced by a peer
type User struct {
	uuid     string
	nick     string
	ident    string
	host     string
	ip       string
	realname string

	srv      *Server
	server   *ServerInfo
	conn     *conn
	oper     *Operator
	operName string // set for remote opers

	reg        RegState
	passOK     bool
	capNeg     bool
	caps       map[string]bool
	channels   map[*Channel]*Membership
	signon     time.Time
	lastActive time.Time
	lastPong   time.Time
	quitting   bool
}

// UUID returns the network-unique identifier of the user
func (u *User) UUID() string { return u.uuid }

// Nick returns the current nickname, or "*" before one is set
func (u *User) Nick() string {
	if u.nick == "" {
		return "*"
	}
	return u.nick
}

// Ident returns the username part of the hostmask
func (u *User) Ident() string { return u.ident }

// Host returns the displayed hostname
func (u *User) Host() string { return u.host }

// IP returns the address the user connected from
func (u *User) IP() string { return u.ip }

// Realname returns the GECOS field
func (u *User) Realname() string { return u.realname }

// Hostmask returns nick!ident@host
func (u *User) Hostmask() string {
	return irc.FormatHostmask(u.Nick(), u.ident, u.host)
}

// Server returns the user's home server
func (u *User) Server() *ServerInfo { return u.server }

// IsLocal reports whether the user is connected to this server
func (u *User) IsLocal() bool { return u.conn != nil }

// IsULined reports whether the user's home server is a trusted relay
func (u *User) IsULined() bool { return u.server != nil && u.server.IsULine() }

// IsOper reports whether the user holds operator status
func (u *User) IsOper() bool { return u.oper != nil || u.operName != "" }

// HasPrivPermission reports whether the user's operator block grants priv.
// Remote opers are trusted with every privilege their server granted them.
func (u *User) HasPrivPermission(priv string) bool {
	if u.oper != nil {
		return u.oper.HasPrivilege(priv)
	}
	return u.operName != ""
}

// IsFullyRegistered reports whether the user completed registration
func (u *User) IsFullyRegistered() bool { return u.reg == RegAll }

// RegState returns the registration progress
func (u *User) RegState() RegState { return u.reg }

// HasCap reports whether the client negotiated the capability
func (u *User) HasCap(name string) bool { return u.caps[name] }

// Signon returns when the user connected or was introduced
func (u *User) Signon() time.Time { return u.signon }

// Channels returns the user's memberships sorted by channel name
func (u *User) Channels() []*Membership {
	list := make([]*Membership, 0, len(u.channels))
	for _, m := range u.channels {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Channel.name < list[j].Channel.name })
	return list
}

// Send writes msg to a local user. Lines for remote users are dropped;
// they only reach a peer through the explicit relay paths.
func (u *User) Send(msg *irc.Message) {
	if u.conn == nil {
		return
	}
	if !u.conn.write(u.withTags(msg).String()) {
		u.srv.markDead(u, "SendQ exceeded")
	}
}

// withTags trims msg's tags down to what the client negotiated
func (u *User) withTags(msg *irc.Message) *irc.Message {
	allTags := u.HasCap(capMessageTags)
	withTime := u.HasCap(capServerTime)
	if !withTime && (allTags || len(msg.Tags) == 0) {
		return msg
	}

	tags := make(map[string]string)
	if allTags {
		for k, v := range msg.Tags {
			tags[k] = v
		}
	}
	if _, ok := tags["time"]; withTime && !ok {
		tags["time"] = time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	}
	out := *msg
	out.Tags = nil
	if len(tags) > 0 {
		out.Tags = tags
	}
	return &out
}

// SendFrom sends a command to the user with the given prefix
func (u *User) SendFrom(prefix, command string, params ...string) {
	u.Send(irc.NewMessage(prefix, command, params...))
}

// WriteNumeric sends a numeric reply from this server to the user
func (u *User) WriteNumeric(numeric string, params ...string) {
	all := make([]string, 0, len(params)+1)
	all = append(all, u.Nick())
	all = append(all, params...)
	u.Send(irc.NewMessage(u.srv.Name(), numeric, all...))
}

// WriteNotice sends a server NOTICE to the user
func (u *User) WriteNotice(text string) {
	u.SendFrom(u.srv.Name(), "NOTICE", u.Nick(), text)
}

func foldNick(nick string) string {
	return strings.ToLower(nick)
}
