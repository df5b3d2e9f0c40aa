package irc_test

import (
	"testing"

	"github.com/Kufat/inspircd/irc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMessageParsing tests message parsing
func TestMessageParsing(t *testing.T) {
	// Parse a simple message
	msg := irc.ParseMessage("PING :server1")
	require.NotNil(t, msg, "Should parse the message")
	assert.Equal(t, "PING", msg.Command, "Should parse the command")
	assert.Equal(t, []string{"server1"}, msg.Params, "Should parse the parameters")

	// Parse a message with a prefix
	msg = irc.ParseMessage(":nick!user@host PRIVMSG #channel :Hello, world!")
	require.NotNil(t, msg, "Should parse the message")
	assert.Equal(t, "nick!user@host", msg.Prefix, "Should parse the prefix")
	assert.Equal(t, "PRIVMSG", msg.Command, "Should parse the command")
	assert.Equal(t, []string{"#channel", "Hello, world!"}, msg.Params)
	assert.Equal(t, "Hello, world!", msg.Last())

	// Parse a message with multiple parameters
	msg = irc.ParseMessage("MODE #channel +o-v user1 user2")
	require.NotNil(t, msg, "Should parse the message")
	assert.Equal(t, 4, len(msg.Params), "Should parse the parameters")
	assert.Equal(t, "+o-v", msg.Param(1))
	assert.Equal(t, "", msg.Param(7), "Out of range parameters are empty")

	// Lower case commands are normalised
	msg = irc.ParseMessage("privmsg bob :hi\r\n")
	require.NotNil(t, msg)
	assert.Equal(t, "PRIVMSG", msg.Command)

	// Tags
	msg = irc.ParseMessage("@+typing=active;time=2024 :a!b@c TAGMSG bob")
	require.NotNil(t, msg)
	assert.Equal(t, "TAGMSG", msg.Command)
	assert.Equal(t, "active", msg.Tags["+typing"])
	assert.Equal(t, []string{"bob"}, msg.Params)

	// Blank lines carry nothing
	assert.Nil(t, irc.ParseMessage(""))
	assert.Nil(t, irc.ParseMessage("   \r\n"))
}

func TestMessageString(t *testing.T) {
	tests := []struct {
		name string
		msg  *irc.Message
		want string
	}{
		{
			name: "no params",
			msg:  irc.NewMessage("", "PING"),
			want: "PING",
		},
		{
			name: "trailing with spaces",
			msg:  irc.NewMessage("srv", "NOTICE", "bob", "hello there"),
			want: ":srv NOTICE bob :hello there",
		},
		{
			name: "single word trailing",
			msg:  irc.NewMessage("srv", "PRIVMSG", "bob", "hi"),
			want: ":srv PRIVMSG bob hi",
		},
		{
			name: "empty trailing",
			msg:  irc.NewMessage("", "METADATA", "001AAAAAA", "msgallow", ""),
			want: "METADATA 001AAAAAA msgallow :",
		},
		{
			name: "colon trailing",
			msg:  irc.NewMessage("", "PRIVMSG", "bob", ":)"),
			want: "PRIVMSG bob ::)",
		},
		{
			name: "tags sorted and escaped",
			msg: &irc.Message{
				Tags:    map[string]string{"b": "x y", "a": ""},
				Prefix:  "n!u@h",
				Command: "TAGMSG",
				Params:  []string{"bob"},
			},
			want: `@a;b=x\sy :n!u@h TAGMSG bob`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.String())
		})
	}
}

func TestMessageRoundTrip(t *testing.T) {
	line := ":001AAAAAA PRIVMSG 001AAAAAB :hello world"
	msg := irc.ParseMessage(line)
	require.NotNil(t, msg)
	assert.Equal(t, line, msg.String())
}

func TestHostmask(t *testing.T) {
	nick, user, host := irc.ParseHostmask("alice!al@example.com")
	assert.Equal(t, "alice", nick)
	assert.Equal(t, "al", user)
	assert.Equal(t, "example.com", host)

	assert.Equal(t, "alice!al@example.com", irc.FormatHostmask("alice", "al", "example.com"))
}

func TestNamesAndCTCP(t *testing.T) {
	assert.True(t, irc.IsChannel("#lobby"))
	assert.False(t, irc.IsChannel("bob"))
	assert.True(t, irc.IsValidNick("alice"))
	assert.False(t, irc.IsValidNick("1alice"))
	assert.False(t, irc.IsValidNick(""))

	assert.Equal(t, "\x01TIME\x01", irc.CTCP("TIME", ""))
	assert.Equal(t, "\x01PING 123\x01", irc.CTCP("PING", "123"))
}
