package auditorium_test

import (
	"strings"
	"testing"

	"github.com/Kufat/inspircd/irc/config"
	"github.com/Kufat/inspircd/irc/ircdtest"
	"github.com/Kufat/inspircd/irc/server"
	"github.com/Kufat/inspircd/modules/auditorium"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T, tweak func(cfg *config.Config)) *server.Server {
	cfg := ircdtest.Config()
	cfg.Modules.Auditorium.Enabled = true
	cfg.Modules.Auditorium.OperCanSee = true
	if tweak != nil {
		tweak(cfg)
	}
	srv := ircdtest.Start(t, cfg)
	ircdtest.Do(t, srv, func() {
		require.NoError(t, srv.LoadModule(auditorium.New()))
	})
	return srv
}

// auditoriumChannel creates #aud with op as its operator and +u set
func auditoriumChannel(t *testing.T, op *ircdtest.Client) {
	op.Send("JOIN #aud")
	op.Expect(" 366 ")
	op.Send("MODE #aud +u")
	op.Expect("MODE #aud +u")
}

func join(t *testing.T, c *ircdtest.Client, channel string) []string {
	c.Send("JOIN %s", channel)
	lines, err := c.ReadUntil(" 366 ")
	require.NoError(t, err)
	return lines
}

func namesLine(lines []string) string {
	for _, l := range lines {
		if strings.Contains(l, " 353 ") {
			return l
		}
	}
	return ""
}

func TestNamesHidesMembers(t *testing.T) {
	srv := start(t, nil)
	alice := ircdtest.Connect(t, srv, "alice")
	bob := ircdtest.Connect(t, srv, "bob")
	carol := ircdtest.Connect(t, srv, "carol")

	auditoriumChannel(t, alice)
	join(t, bob, "#aud")

	lines := join(t, carol, "#aud")
	assert.Contains(t, namesLine(lines), " 353 carol = #aud carol")

	alice.Send("NAMES #aud")
	line := alice.Expect(" 353 ")
	assert.Contains(t, line, " 353 alice = #aud @alice")
	assert.NotContains(t, line, "bob")
}

func TestJoinPartHidden(t *testing.T) {
	srv := start(t, nil)
	alice := ircdtest.Connect(t, srv, "alice")
	bob := ircdtest.Connect(t, srv, "bob")
	carol := ircdtest.Connect(t, srv, "carol")

	auditoriumChannel(t, alice)
	join(t, bob, "#aud")
	join(t, carol, "#aud")

	bob.Send("PART #aud")
	bob.Expect("PART #aud")

	carol.ExpectNothing("bob")
	alice.ExpectNothing("bob")
}

func TestOpCanSee(t *testing.T) {
	srv := start(t, func(cfg *config.Config) {
		cfg.Modules.Auditorium.OpCanSee = true
	})
	alice := ircdtest.Connect(t, srv, "alice")
	bob := ircdtest.Connect(t, srv, "bob")

	auditoriumChannel(t, alice)
	join(t, bob, "#aud")
	alice.Expect(":bob!bob@127.0.0.1 JOIN #aud")

	alice.Send("NAMES #aud")
	alice.Expect(" 353 alice = #aud :@alice bob")
}

func TestOpVisible(t *testing.T) {
	srv := start(t, func(cfg *config.Config) {
		cfg.Modules.Auditorium.OpVisible = true
	})
	alice := ircdtest.Connect(t, srv, "alice")
	bob := ircdtest.Connect(t, srv, "bob")
	carol := ircdtest.Connect(t, srv, "carol")

	auditoriumChannel(t, alice)
	join(t, bob, "#aud")
	lines := join(t, carol, "#aud")
	assert.Contains(t, namesLine(lines), " 353 carol = #aud :@alice carol")
}

func TestAuspexOperCanSee(t *testing.T) {
	srv := start(t, nil)
	alice := ircdtest.Connect(t, srv, "alice")
	bob := ircdtest.Connect(t, srv, "bob")
	oper := ircdtest.Connect(t, srv, "oper")

	ircdtest.Do(t, srv, func() {
		srv.SetOper(srv.UserByNick("oper"), &server.Operator{
			Username:   "oper",
			Privileges: []string{auditorium.AuspexPriv},
		})
	})

	auditoriumChannel(t, alice)
	join(t, oper, "#aud")
	join(t, bob, "#aud")
	oper.Expect(":bob!bob@127.0.0.1 JOIN #aud")
}

func TestQuitAndNickHidden(t *testing.T) {
	srv := start(t, func(cfg *config.Config) {
		cfg.Modules.Auditorium.OpCanSee = true
	})
	alice := ircdtest.Connect(t, srv, "alice")
	bob := ircdtest.Connect(t, srv, "bob")
	carol := ircdtest.Connect(t, srv, "carol")

	auditoriumChannel(t, alice)
	join(t, bob, "#aud")
	join(t, carol, "#aud")

	bob.Send("NICK robert")
	bob.Expect("NICK robert")
	alice.Expect(":bob!bob@127.0.0.1 NICK robert")
	carol.ExpectNothing("NICK robert")

	bob.Send("QUIT :leaving now")
	alice.Expect(":robert!bob@127.0.0.1 QUIT :Quit: leaving now")
	carol.ExpectNothing("QUIT")
}

func TestModeRequiresOp(t *testing.T) {
	srv := start(t, nil)
	alice := ircdtest.Connect(t, srv, "alice")
	bob := ircdtest.Connect(t, srv, "bob")

	alice.Send("JOIN #aud")
	alice.Expect(" 366 ")
	join(t, bob, "#aud")

	bob.Send("MODE #aud +u")
	bob.Expect(" 482 bob #aud ")

	alice.Send("MODE #aud +u")
	alice.Expect("MODE #aud +u")
	alice.Send("MODE #aud +u")
	alice.ExpectNothing("MODE #aud +u")

	ircdtest.Do(t, srv, func() {
		require.NoError(t, srv.UnloadModule(auditorium.Name))
		assert.False(t, srv.GetChannel("#aud").IsModeSet(auditorium.Mode))
	})
}
