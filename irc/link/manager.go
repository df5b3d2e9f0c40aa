// Package link connects servers into a network with a line based protocol.
// A link introduces the users of each side, relays their nick, oper and
// quit changes, extension metadata and private messages. Messages travel
// one hop; channels are not shared.
package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Kufat/inspircd/irc/config"
	"github.com/Kufat/inspircd/irc/server"
	"github.com/rs/zerolog/log"
)

// ErrUnknownLink is returned when connecting to a server with no link block
var ErrUnknownLink = errors.New("no link block for server")

var (
	// DialTimeout bounds outgoing connection attempts
	DialTimeout = 10 * time.Second
	// ReconnectDelay is the first wait before an autoconnect retry
	ReconnectDelay = 5 * time.Second
	// MaxReconnectDelay caps the wait between autoconnect retries
	MaxReconnectDelay = 5 * time.Minute
)

// Manager accepts and makes links for a server
type Manager struct {
	srv      *server.Server
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc

	mu    sync.Mutex
	links map[*Link]bool
	wg    sync.WaitGroup
}

// NewManager creates a link manager for srv
func NewManager(srv *server.Server) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		srv:    srv,
		ctx:    ctx,
		cancel: cancel,
		links:  make(map[*Link]bool),
	}
}

// Listen accepts incoming links on bindAddr
func (m *Manager) Listen(bindAddr string) error {
	lis, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", bindAddr, err)
	}
	m.listener = lis

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			conn, err := lis.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					log.Error().Err(err).Msg("failed to accept link")
				}
				return
			}
			m.Serve(conn, nil)
		}
	}()

	log.Info().Str("addr", lis.Addr().String()).Msg("listening for server links")
	return nil
}

// Addr returns the link listener address, or nil before Listen
func (m *Manager) Addr() net.Addr {
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

// Connect dials the server named in a link block and starts the handshake
func (m *Manager) Connect(ctx context.Context, name string) (*Link, error) {
	var block config.Link
	var found bool
	err := m.srv.Do(ctx, func() {
		block, found = m.srv.Config().FindLink(name)
	})
	if err != nil {
		return nil, err
	}
	if !found || block.Address == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLink, name)
	}

	dialer := net.Dialer{Timeout: DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", block.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", block.Name, err)
	}
	log.Info().Str("peer", block.Name).Str("addr", block.Address).Msg("connected to peer server")
	return m.Serve(conn, &block), nil
}

// ConnectToPeers keeps a link up to every link block marked autoconnect,
// retrying with backoff until ctx is cancelled or the manager is closed
func (m *Manager) ConnectToPeers(ctx context.Context) {
	var names []string
	err := m.srv.Do(ctx, func() {
		for _, l := range m.srv.Config().Links {
			if l.AutoConnect && l.Address != "" {
				names = append(names, l.Name)
			}
		}
	})
	if err != nil {
		return
	}
	for _, name := range names {
		name := name
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.autoconnect(ctx, name)
		}()
	}
}

func (m *Manager) autoconnect(ctx context.Context, name string) {
	b := newBackoff()
	for {
		l, err := m.Connect(ctx, name)
		if errors.Is(err, ErrUnknownLink) {
			log.Warn().Err(err).Str("peer", name).Msg("giving up autoconnect")
			return
		}
		if err != nil {
			log.Warn().Err(err).Str("peer", name).Msg("failed to connect to peer")
		} else {
			select {
			case <-l.Done():
				b.reset()
			case <-ctx.Done():
				return
			case <-m.ctx.Done():
				return
			}
		}

		select {
		case <-time.After(b.next()):
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		}
	}
}

// Serve runs the link protocol over conn. Outgoing links pass the link
// block they dialled and send their credentials first; incoming links pass
// nil and wait for the peer's.
func (m *Manager) Serve(conn net.Conn, outgoing *config.Link) *Link {
	l := newLink(m.srv, conn, outgoing)

	m.mu.Lock()
	m.links[l] = true
	m.mu.Unlock()

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		l.writer()
	}()
	go func() {
		defer m.wg.Done()
		l.reader()
		m.mu.Lock()
		delete(m.links, l)
		m.mu.Unlock()
	}()

	if outgoing != nil {
		m.srv.Post(l.sendCredentials)
	}
	return l
}

// Close stops accepting links and drops every open one
func (m *Manager) Close() error {
	m.cancel()

	var err error
	if m.listener != nil {
		err = m.listener.Close()
	}

	m.mu.Lock()
	for l := range m.links {
		l.closeConn()
	}
	m.mu.Unlock()

	m.wg.Wait()
	return err
}
