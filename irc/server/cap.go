package server

import (
	"sort"
	"strings"

	"github.com/Kufat/inspircd/irc"
)

const (
	capMessageTags = "message-tags"
	capServerTime  = "server-time"
)

// supportedCaps are the capabilities a client may request
var supportedCaps = map[string]bool{
	capMessageTags: true,
	capServerTime:  true,
}

func capList(caps map[string]bool) string {
	names := make([]string, 0, len(caps))
	for name, on := range caps {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, " ")
}

// handleCap handles capability negotiation (CAP LS, REQ, LIST, END)
func handleCap(s *Server, u *User, msg *irc.Message) {
	if len(msg.Params) < 1 {
		u.WriteNumeric(irc.ERR_NEEDMOREPARAMS, "CAP", "Not enough parameters")
		return
	}

	reply := func(sub string, params ...string) {
		u.SendFrom(s.Name(), "CAP", append([]string{u.Nick(), sub}, params...)...)
	}

	switch sub := strings.ToUpper(msg.Params[0]); sub {
	case "LS":
		if !u.IsFullyRegistered() {
			u.capNeg = true
		}
		reply("LS", capList(supportedCaps))

	case "LIST":
		reply("LIST", capList(u.caps))

	case "REQ":
		requested := strings.Fields(msg.Last())
		if len(msg.Params) < 2 || len(requested) == 0 {
			reply("NAK", "")
			return
		}
		if !u.IsFullyRegistered() {
			u.capNeg = true
		}
		// All or nothing
		for _, name := range requested {
			if !supportedCaps[strings.TrimPrefix(name, "-")] {
				reply("NAK", msg.Last())
				return
			}
		}
		for _, name := range requested {
			if strings.HasPrefix(name, "-") {
				delete(u.caps, name[1:])
			} else {
				u.caps[name] = true
			}
		}
		reply("ACK", msg.Last())

	case "END":
		if u.capNeg {
			u.capNeg = false
			s.completeRegistration(u)
		}

	default:
		u.WriteNumeric(irc.ERR_INVALIDCAPCMD, sub, "Invalid CAP command")
	}
}
