// Package ircdtest runs an in-process server and line based clients for
// tests.
package ircdtest

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Kufat/inspircd/irc/config"
	"github.com/Kufat/inspircd/irc/server"
	"github.com/stretchr/testify/require"
)

// Timeout bounds every read a Client does
var Timeout = 3 * time.Second

// Config returns a configuration listening on a random loopback port with
// every module switched off
func Config() *config.Config {
	cfg := config.Default()
	cfg.Server.Name = "test.irc.local"
	cfg.Server.Network = "TestNet"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Modules.Account.Enabled = false
	cfg.Modules.RestrictMsg.Enabled = false
	return cfg
}

// Start runs a server for cfg and stops it when the test ends
func Start(t testing.TB, cfg *config.Config, opts ...server.Option) *server.Server {
	t.Helper()
	srv := server.NewServer(cfg, opts...)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(srv.Stop)
	return srv
}

// Do runs fn on the server's event loop
func Do(t testing.TB, srv *server.Server, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()
	require.NoError(t, srv.Do(ctx, fn))
}

// Client is a raw IRC client
type Client struct {
	Conn   net.Conn
	Reader *bufio.Reader
	Nick   string

	t    testing.TB
	sync atomic.Int64
}

// Dial connects a new client to srv
func Dial(t testing.TB, srv *server.Server) *Client {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err, "Should connect to the server")

	c := &Client{Conn: conn, Reader: bufio.NewReader(conn), t: t}
	t.Cleanup(func() { c.Close() })
	return c
}

// Connect dials srv and registers as nick
func Connect(t testing.TB, srv *server.Server, nick string) *Client {
	t.Helper()
	c := Dial(t, srv)
	c.Register(nick)
	return c
}

// Send writes one line to the server
func (c *Client) Send(format string, args ...interface{}) {
	c.t.Helper()
	_, err := fmt.Fprintf(c.Conn, format+"\r\n", args...)
	require.NoError(c.t, err)
}

// Register sends NICK and USER and waits for the end of the welcome burst
func (c *Client) Register(nick string) {
	c.t.Helper()
	c.Nick = nick
	c.Send("NICK %s", nick)
	c.Send("USER %s 0 * :Test User %s", strings.ToLower(nick), nick)
	c.Expect(" 004 " + nick + " ")
}

// Expect reads until a line containing expected arrives and returns it
func (c *Client) Expect(expected string) string {
	c.t.Helper()
	lines, err := c.ReadUntil(expected)
	require.NoError(c.t, err, "waiting for %q, got %q", expected, lines)
	return lines[len(lines)-1]
}

// ExpectMultiple reads until every expected string has been seen
func (c *Client) ExpectMultiple(expected ...string) {
	c.t.Helper()
	c.Conn.SetReadDeadline(time.Now().Add(Timeout))
	defer c.Conn.SetReadDeadline(time.Time{})

	remaining := make(map[string]bool)
	for _, exp := range expected {
		remaining[exp] = true
	}
	for len(remaining) > 0 {
		line, err := c.Reader.ReadString('\n')
		require.NoError(c.t, err, "still waiting for %v", remaining)
		line = strings.TrimSpace(line)
		for exp := range remaining {
			if strings.Contains(line, exp) {
				delete(remaining, exp)
			}
		}
	}
}

// ReadUntil reads lines until one contains pattern
func (c *Client) ReadUntil(pattern string) ([]string, error) {
	c.Conn.SetReadDeadline(time.Now().Add(Timeout))
	defer c.Conn.SetReadDeadline(time.Time{})

	lines := []string{}
	for {
		line, err := c.Reader.ReadString('\n')
		if err != nil {
			return lines, err
		}
		line = strings.TrimSpace(line)
		lines = append(lines, line)
		if strings.Contains(line, pattern) {
			return lines, nil
		}
	}
}

// Sync round-trips a PING and returns every line received before the
// PONG. Everything the server queued for this client before handling the
// PING is in the result.
func (c *Client) Sync() []string {
	c.t.Helper()
	token := fmt.Sprintf("sync-%d", c.sync.Add(1))
	c.Send("PING :%s", token)
	lines, err := c.ReadUntil("PONG")
	for err == nil && !strings.HasSuffix(lines[len(lines)-1], token) {
		var more []string
		more, err = c.ReadUntil("PONG")
		lines = append(lines, more...)
	}
	require.NoError(c.t, err, "waiting for PONG %s", token)
	return lines[:len(lines)-1]
}

// ExpectNothing syncs and fails if any line received meanwhile contains
// pattern
func (c *Client) ExpectNothing(pattern string) {
	c.t.Helper()
	for _, line := range c.Sync() {
		require.NotContains(c.t, line, pattern)
	}
}

// Close closes the connection
func (c *Client) Close() error {
	return c.Conn.Close()
}
