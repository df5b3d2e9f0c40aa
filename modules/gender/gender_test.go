package gender_test

import (
	"testing"

	"github.com/Kufat/inspircd/irc/ircdtest"
	"github.com/Kufat/inspircd/irc/server"
	"github.com/Kufat/inspircd/modules/gender"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinOneLine(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{[]string{"a"}, "a."},
		{[]string{"a", "b"}, "a; and b."},
		{[]string{"a", "b", "c"}, "a; b; and c."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, gender.JoinOneLine(tt.in))
	}
}

func start(t *testing.T, oneLine bool) *server.Server {
	cfg := ircdtest.Config()
	cfg.Modules.Gender.Enabled = true
	cfg.Modules.Gender.OneLine = oneLine
	srv := ircdtest.Start(t, cfg)
	ircdtest.Do(t, srv, func() {
		require.NoError(t, srv.LoadModule(gender.New()))
	})
	return srv
}

func setInfo(t *testing.T, srv *server.Server, nick string, values map[string]string) {
	ircdtest.Do(t, srv, func() {
		u := srv.UserByNick(nick)
		require.NotNil(t, u)
		for name, value := range values {
			require.NoError(t, srv.ApplyExtension(u, name, value))
		}
	})
}

func TestWhoisLines(t *testing.T) {
	srv := start(t, false)
	alice := ircdtest.Connect(t, srv, "alice")
	ircdtest.Connect(t, srv, "bob")

	setInfo(t, srv, "bob", map[string]string{
		"pronoun":            "they/them",
		"pronounNotAccepted": "it/its",
		"gender":             "nonbinary",
	})

	alice.Send("WHOIS bob")
	lines, err := alice.ReadUntil(" 318 ")
	require.NoError(t, err)
	require.Len(t, lines, 6)
	assert.Contains(t, lines[0], " 311 ")
	assert.Contains(t, lines[1], " 312 ")
	assert.Contains(t, lines[2], " 320 alice bob :uses the pronouns 'they/them'")
	assert.Contains(t, lines[3], " 320 alice bob :does NOT accept the pronouns 'it/its'")
	assert.Contains(t, lines[4], " 320 alice bob :identifies as nonbinary")
}

func TestWhoisOneLine(t *testing.T) {
	srv := start(t, true)
	alice := ircdtest.Connect(t, srv, "alice")
	ircdtest.Connect(t, srv, "bob")

	setInfo(t, srv, "bob", map[string]string{
		"pronoun":         "she/her",
		"pronounAccepted": "they/them",
	})

	alice.Send("WHOIS bob")
	lines, err := alice.ReadUntil(" 318 ")
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.Contains(t, lines[2], " 320 alice bob :uses the pronouns 'she/her'; and accepts the pronouns 'they/them'.")
}

func TestWhoisWithoutInfo(t *testing.T) {
	srv := start(t, false)
	alice := ircdtest.Connect(t, srv, "alice")
	ircdtest.Connect(t, srv, "bob")

	alice.Send("WHOIS bob")
	lines, err := alice.ReadUntil(" 318 ")
	require.NoError(t, err)
	for _, line := range lines {
		assert.NotContains(t, line, " 320 ")
	}
}

func TestItemsOwnedByModule(t *testing.T) {
	srv := ircdtest.Start(t, ircdtest.Config())
	ircdtest.Do(t, srv, func() {
		require.NoError(t, srv.LoadModule(gender.New()))
		assert.Len(t, srv.Extensions().Items(gender.Name), 4)
		require.NoError(t, srv.UnloadModule(gender.Name))
		assert.Empty(t, srv.Extensions().Items(gender.Name))
	})
}
