package antibear_test

import (
	"testing"

	"github.com/Kufat/inspircd/irc/ircdtest"
	"github.com/Kufat/inspircd/irc/server"
	"github.com/Kufat/inspircd/modules/antibear"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T) *server.Server {
	srv := ircdtest.Start(t, ircdtest.Config())
	ircdtest.Do(t, srv, func() {
		require.NoError(t, srv.LoadModule(antibear.New()))
	})
	return srv
}

func TestProbeOnConnect(t *testing.T) {
	srv := start(t)
	c := ircdtest.Dial(t, srv)
	c.Send("NICK bob")
	c.Send("USER bob 0 * :Bob Bear")

	lines, err := c.ReadUntil("PRIVMSG bob")
	require.NoError(t, err)
	n := len(lines)
	require.GreaterOrEqual(t, n, 3)
	assert.Contains(t, lines[n-3], " 439 bob :This server has anti-spambot mechanisms enabled.")
	assert.Contains(t, lines[n-2], " 931 bob :Malicious bots")
	assert.Equal(t, ":test.irc.local PRIVMSG bob \x01TIME\x01", lines[n-1])
}

func TestBearIsZLined(t *testing.T) {
	srv := start(t)
	bear := ircdtest.Connect(t, srv, "bear")
	bear.Expect("\x01TIME\x01")

	bear.Send("NOTICE test.irc.local :%s", antibear.BearReply)
	line := bear.Expect("ERROR")
	assert.Contains(t, line, "Z-lined: "+antibear.BanReason)

	ircdtest.Do(t, srv, func() {
		zlines := srv.ZLines()
		require.Len(t, zlines, 1)
		assert.Equal(t, "127.0.0.1", zlines[0].Mask)
		assert.Equal(t, antibear.BanDuration, zlines[0].Duration)
		assert.Equal(t, "test.irc.local", zlines[0].Source)
		assert.Nil(t, srv.UserByNick("bear"))
	})
}

func TestHonestTimeReply(t *testing.T) {
	srv := start(t)
	alice := ircdtest.Connect(t, srv, "alice")
	bob := ircdtest.Connect(t, srv, "bob")

	alice.Send("NOTICE bob :\x01TIME Sat Oct 17 12:00:00 2026\x01")
	bob.Expect("NOTICE bob :\x01TIME Sat Oct 17 12:00:00 2026\x01")

	ircdtest.Do(t, srv, func() {
		assert.Empty(t, srv.ZLines())
	})
}

func TestUnregisteredServerNoticeDropped(t *testing.T) {
	srv := start(t)
	c := ircdtest.Dial(t, srv)

	c.Send("NOTICE test.irc.local :hello there")
	c.ExpectNothing(" 451 ")

	c.Send("NOTICE someone :hello there")
	c.Expect(" 451 ")
}

func TestUnload(t *testing.T) {
	srv := start(t)
	ircdtest.Do(t, srv, func() {
		require.NoError(t, srv.UnloadModule(antibear.Name))
	})

	c := ircdtest.Connect(t, srv, "bob")
	c.ExpectNothing("\x01TIME\x01")
}
