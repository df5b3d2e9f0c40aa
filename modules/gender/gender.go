// Package gender shows the pronouns and gender users set for themselves in
// WHOIS
package gender

import (
	"fmt"
	"strings"

	"github.com/Kufat/inspircd/extension"
	"github.com/Kufat/inspircd/hooks"
	"github.com/Kufat/inspircd/irc"
	"github.com/Kufat/inspircd/irc/server"
)

// Name is the module name
const Name = "gender"

// whoisLine is one extension item and how it reads in WHOIS
type whoisLine struct {
	item   *extension.SimpleItem[string]
	text   string
	quoted bool
}

func (l whoisLine) render(u *server.User) (string, bool) {
	v, ok := l.item.Get(u)
	if !ok {
		return "", false
	}
	if l.quoted {
		return fmt.Sprintf("%s '%s'", l.text, v), true
	}
	return l.text + " " + v, true
}

// Module is the gender module
type Module struct {
	srv   *server.Server
	lines []whoisLine
}

// New creates the module
func New() *Module {
	return &Module{}
}

// Name returns the module name
func (m *Module) Name() string { return Name }

// Description returns what the module does
func (m *Module) Description() string {
	return "Provides gender and pronouns in WHOIS."
}

// Init registers the pronoun and gender items and the WHOIS hook
func (m *Module) Init(s *server.Server) error {
	m.srv = s
	m.lines = []whoisLine{
		{item: extension.NewStringItem("pronoun"), text: "uses the pronouns", quoted: true},
		{item: extension.NewStringItem("pronounAccepted"), text: "accepts the pronouns", quoted: true},
		{item: extension.NewStringItem("pronounNotAccepted"), text: "does NOT accept the pronouns", quoted: true},
		{item: extension.NewStringItem("gender"), text: "identifies as"},
	}
	for _, l := range m.lines {
		if err := s.Extensions().Register(Name, l.item); err != nil {
			return err
		}
	}

	s.Events.WhoisLine.Register(Name, m.onWhoisLine)
	return nil
}

// Info returns the WHOIS texts for u in display order
func (m *Module) Info(u *server.User) []string {
	var info []string
	for _, l := range m.lines {
		if text, ok := l.render(u); ok {
			info = append(info, text)
		}
	}
	return info
}

func (m *Module) onWhoisLine(ev *server.WhoisLineEvent) hooks.Result {
	if ev.Numeric != irc.RPL_WHOISSERVER {
		return hooks.Passthru
	}
	info := m.Info(ev.Target)
	if len(info) == 0 {
		return hooks.Passthru
	}

	if m.srv.Config().Modules.Gender.OneLine {
		ev.SendLine(irc.RPL_WHOISSPECIAL, JoinOneLine(info))
		return hooks.Passthru
	}
	for _, text := range info {
		ev.SendLine(irc.RPL_WHOISSPECIAL, text)
	}
	return hooks.Passthru
}

// JoinOneLine joins texts as "a; b; and c."
func JoinOneLine(texts []string) string {
	var b strings.Builder
	for i, text := range texts {
		if i > 0 && i == len(texts)-1 {
			b.WriteString("and ")
		}
		b.WriteString(text)
		if i < len(texts)-1 {
			b.WriteString("; ")
		}
	}
	b.WriteString(".")
	return b.String()
}
