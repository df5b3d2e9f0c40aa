package account_test

import (
	"testing"

	"github.com/Kufat/inspircd/irc/ircdtest"
	"github.com/Kufat/inspircd/irc/server"
	"github.com/Kufat/inspircd/modules/account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T) (*server.Server, *account.Module) {
	srv := ircdtest.Start(t, ircdtest.Config())
	m := account.New()
	ircdtest.Do(t, srv, func() {
		require.NoError(t, srv.LoadModule(m))
	})
	return srv, m
}

func TestLoginLogout(t *testing.T) {
	srv, m := start(t)
	alice := ircdtest.Connect(t, srv, "alice")

	ircdtest.Do(t, srv, func() {
		u := srv.UserByNick("alice")
		assert.False(t, m.IsRegistered(u))
		m.Login(u, "alice_acct")
		assert.True(t, m.IsRegistered(u))
		assert.Equal(t, "alice_acct", m.AccountName(u))
		assert.Same(t, m, srv.Accounts())
	})
	alice.Expect(" 900 alice alice!alice@127.0.0.1 alice_acct :You are now logged in as alice_acct")

	ircdtest.Do(t, srv, func() {
		u := srv.UserByNick("alice")
		m.Logout(u)
		assert.False(t, m.IsRegistered(u))
		assert.Empty(t, m.AccountName(u))
	})
	alice.Expect(" 901 alice alice!alice@127.0.0.1 :You are now logged out")
}

func TestWhoisAccount(t *testing.T) {
	srv, m := start(t)
	alice := ircdtest.Connect(t, srv, "alice")
	ircdtest.Connect(t, srv, "bob")

	alice.Send("WHOIS bob")
	lines, err := alice.ReadUntil(" 318 ")
	require.NoError(t, err)
	for _, line := range lines {
		assert.NotContains(t, line, " 330 ")
	}

	ircdtest.Do(t, srv, func() {
		m.Login(srv.UserByNick("bob"), "bobby")
	})
	alice.Send("WHOIS bob")
	lines, err = alice.ReadUntil(" 318 ")
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], " 312 ")
	assert.Contains(t, lines[2], " 330 alice bob bobby :is logged in as")
}

func TestMetadataNotifies(t *testing.T) {
	srv, _ := start(t)
	alice := ircdtest.Connect(t, srv, "alice")

	ircdtest.Do(t, srv, func() {
		require.NoError(t, srv.ApplyExtension(srv.UserByNick("alice"), account.ItemName, "services_acct"))
	})
	alice.Expect(" 900 alice ")

	ircdtest.Do(t, srv, func() {
		require.NoError(t, srv.ApplyExtension(srv.UserByNick("alice"), account.ItemName, ""))
	})
	alice.Expect(" 901 alice ")
}

func TestUnloadRemovesProvider(t *testing.T) {
	srv, m := start(t)
	ircdtest.Connect(t, srv, "alice")

	ircdtest.Do(t, srv, func() {
		m.Login(srv.UserByNick("alice"), "alice")
		require.NoError(t, srv.UnloadModule(account.Name))
		assert.Nil(t, srv.Accounts())
		_, ok := srv.Extensions().Lookup(account.ItemName)
		assert.False(t, ok)

		require.NoError(t, srv.LoadModule(m))
		assert.False(t, m.IsRegistered(srv.UserByNick("alice")))
	})
}
