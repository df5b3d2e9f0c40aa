package irc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lrstanley/girc"
)

// Message represents an IRC message
type Message struct {
	Tags    map[string]string
	Prefix  string
	Command string
	Params  []string
}

// ParseMessage parses an IRC line. It returns nil for lines that carry no command.
func ParseMessage(line string) *Message {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil
	}

	e := girc.ParseEvent(line)
	if e == nil || e.Command == "" {
		return nil
	}

	msg := &Message{
		Command: strings.ToUpper(e.Command),
		Params:  e.Params,
	}
	if msg.Params == nil {
		msg.Params = make([]string, 0)
	}
	if e.Source != nil {
		msg.Prefix = e.Source.String()
	}
	if len(e.Tags) > 0 {
		msg.Tags = make(map[string]string, len(e.Tags))
		for k, v := range e.Tags {
			msg.Tags[k] = v
		}
	}
	return msg
}

// String returns the wire form of the message without the trailing CRLF
func (m *Message) String() string {
	var builder strings.Builder

	if len(m.Tags) > 0 {
		builder.WriteString("@")
		first := true
		for _, k := range sortedKeys(m.Tags) {
			if !first {
				builder.WriteString(";")
			}
			first = false
			builder.WriteString(k)
			if v := m.Tags[k]; v != "" {
				builder.WriteString("=")
				builder.WriteString(escapeTag(v))
			}
		}
		builder.WriteString(" ")
	}

	if m.Prefix != "" {
		builder.WriteString(":")
		builder.WriteString(m.Prefix)
		builder.WriteString(" ")
	}

	builder.WriteString(m.Command)

	for i, param := range m.Params {
		builder.WriteString(" ")

		// The last parameter needs a colon when it is empty, has spaces or starts with one
		if i == len(m.Params)-1 && (param == "" || strings.Contains(param, " ") || strings.HasPrefix(param, ":")) {
			builder.WriteString(":")
		}
		builder.WriteString(param)
	}

	return builder.String()
}

// Param returns the i-th parameter or "" when there are fewer
func (m *Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// Last returns the final parameter or "" when there are none
func (m *Message) Last() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// NewMessage builds a message with the given prefix, command and parameters
func NewMessage(prefix, command string, params ...string) *Message {
	return &Message{
		Prefix:  prefix,
		Command: command,
		Params:  params,
	}
}

// ParseHostmask parses a hostmask (nick!user@host)
func ParseHostmask(hostmask string) (nick, user, host string) {
	src := girc.ParseSource(hostmask)
	if src == nil {
		return hostmask, "", ""
	}
	return src.Name, src.Ident, src.Host
}

// FormatHostmask formats a hostmask
func FormatHostmask(nick, user, host string) string {
	return fmt.Sprintf("%s!%s@%s", nick, user, host)
}

// IsChannel reports whether target names a channel
func IsChannel(target string) bool {
	return girc.IsValidChannel(target)
}

// IsValidNick reports whether nick is acceptable as a nickname
func IsValidNick(nick string) bool {
	return girc.IsValidNick(nick)
}

// CTCP wraps cmd and text as a CTCP payload
func CTCP(cmd, text string) string {
	return girc.EncodeCTCPRaw(cmd, text)
}

var tagEscaper = strings.NewReplacer(`\`, `\\`, ";", `\:`, " ", `\s`, "\r", `\r`, "\n", `\n`)

func escapeTag(v string) string {
	return tagEscaper.Replace(v)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
