package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/Kufat/inspircd/extension"
	"github.com/Kufat/inspircd/extension/persist"
	"github.com/Kufat/inspircd/irc"
	"github.com/Kufat/inspircd/irc/config"
	"github.com/Kufat/inspircd/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrServerClosed is returned once the event loop has stopped
var ErrServerClosed = errors.New("server closed")

// Server represents the IRC server. All state below the lifecycle fields is
// owned by the event loop goroutine; other goroutines reach it through Post
// and Do.
type Server struct {
	config    *config.Config
	me        *ServerInfo
	startTime time.Time

	// Registries modules attach their hooks to
	Events *Events

	extensions *extension.Manager
	store      *persist.Store

	users     map[string]*User // by UUID
	nicks     map[string]*User // by folded nick
	channels  map[string]*Channel
	servers   map[string]*ServerInfo
	operators map[string]*Operator
	modules   map[string]Module
	chanModes map[rune]*ChannelMode
	zlines    []*XLine
	accounts  AccountProvider
	dead      []deadUser

	// Timing and buffering, adjustable before Start
	PingInterval time.Duration
	PingTimeout  time.Duration
	SendQ        int

	events   chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  bool
	listener net.Listener
}

type deadUser struct {
	user   *User
	reason string
}

// Option configures a Server
type Option func(*Server)

// WithStore keeps extension state in store across module reloads
func WithStore(store *persist.Store) Option {
	return func(s *Server) { s.store = store }
}

// NewServer creates a new IRC server
func NewServer(cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		config:    cfg,
		startTime: time.Now(),
		me: &ServerInfo{
			Name:        cfg.Server.Name,
			SID:         cfg.Server.SID,
			Description: cfg.Server.Description,
		},
		Events:       NewEvents(),
		extensions:   extension.NewManager(),
		users:        make(map[string]*User),
		nicks:        make(map[string]*User),
		channels:     make(map[string]*Channel),
		servers:      make(map[string]*ServerInfo),
		modules:      make(map[string]Module),
		chanModes:    builtinChannelModes(),
		PingInterval: 30 * time.Second,
		PingTimeout:  2 * time.Minute,
		SendQ:        1024,
		events:       make(chan func(), 1024),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	s.me.ulined = cfg.IsULine(cfg.Server.Name)
	s.loadOperators()

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens for clients and runs the event loop until ctx is cancelled
// or Stop is called
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.GetListenAddress())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.GetListenAddress(), err)
	}
	s.listener = listener
	s.Run()

	go s.acceptConnections()
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.quit:
		}
	}()

	log.Info().Str("addr", listener.Addr().String()).Str("server", s.Name()).Msg("listening for clients")
	return nil
}

// Run starts the event loop without a listener. Connections can be handed
// over with ServeConn.
func (s *Server) Run() {
	if s.started {
		return
	}
	s.started = true
	go s.loop()
}

// Stop disconnects everyone and stops the event loop
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.listener != nil {
			s.listener.Close()
		}
	})
	if s.started {
		<-s.done
	}
}

// Addr returns the client listener address, or nil before Start
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Post queues fn to run on the event loop. It returns false once the server
// has stopped.
func (s *Server) Post(fn func()) bool {
	select {
	case <-s.quit:
		return false
	default:
	}
	select {
	case s.events <- fn:
		return true
	case <-s.quit:
		return false
	}
}

// Do runs fn on the event loop and waits for it to finish
func (s *Server) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !s.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrServerClosed
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrServerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case fn := <-s.events:
			s.dispatch(fn)
		case <-ticker.C:
			s.dispatch(s.checkPings)
		case <-s.quit:
			s.dispatch(s.shutdown)
			return
		}
	}
}

func (s *Server) dispatch(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("recovered from panic in event loop")
		}
	}()
	fn()
	s.reapDead()
}

// acceptConnections accepts and handles new connections
func (s *Server) acceptConnections() {
	for {
		c, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			log.Warn().Err(err).Msg("failed to accept connection")
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		s.ServeConn(c)
	}
}

func (s *Server) acceptUser(c net.Conn) {
	ip := c.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}

	if zl := s.matchZLine(ip); zl != nil {
		log.Info().Str("ip", ip).Str("reason", zl.Reason).Msg("rejected Z-lined connection")
		cn := newConn(c, 4)
		go cn.writer()
		cn.write(irc.NewMessage("", "ERROR", fmt.Sprintf("Closing link: (%s) [Z-lined: %s]", ip, zl.Reason)).String())
		cn.close()
		return
	}

	now := time.Now()
	u := &User{
		uuid:       uuid.NewString(),
		ident:      "unknown",
		host:       ip,
		ip:         ip,
		srv:        s,
		server:     s.me,
		conn:       newConn(c, s.SendQ),
		caps:       make(map[string]bool),
		channels:   make(map[*Channel]*Membership),
		signon:     now,
		lastActive: now,
		lastPong:   now,
	}
	s.users[u.uuid] = u
	metrics.Users.WithLabelValues("local").Inc()

	go u.conn.writer()
	go s.reader(u)

	u.SendFrom(s.Name(), "NOTICE", "*", "*** Looking up your hostname...")
	log.Debug().Str("uuid", u.uuid).Str("ip", ip).Msg("client connected")
}

// handleLine parses one line from a local user and runs it
func (s *Server) handleLine(u *User, line string) {
	if u.quitting {
		return
	}
	msg := irc.ParseMessage(line)
	if msg == nil {
		return
	}
	s.dispatchCommand(u, msg)
}

// markDead schedules a user for disconnection once the current event is done
func (s *Server) markDead(u *User, reason string) {
	s.dead = append(s.dead, deadUser{user: u, reason: reason})
}

func (s *Server) reapDead() {
	for len(s.dead) > 0 {
		d := s.dead[0]
		s.dead = s.dead[1:]
		s.QuitUser(d.user, d.reason)
	}
}

// checkPings pings idle local users and drops the ones that stopped answering
func (s *Server) checkPings() {
	now := time.Now()
	for _, u := range s.localUsers() {
		if now.Sub(u.lastPong) > s.PingTimeout {
			s.markDead(u, fmt.Sprintf("Ping timeout: %d seconds", int(s.PingTimeout.Seconds())))
			continue
		}
		u.SendFrom("", "PING", s.Name())
	}
}

func (s *Server) shutdown() {
	for _, u := range s.localUsers() {
		s.QuitUser(u, "Server shutting down")
	}
	for _, si := range s.servers {
		si.peer.Close("Server shutting down")
	}
	log.Info().Str("server", s.Name()).Msg("server stopped")
}

// Name returns our server name
func (s *Server) Name() string { return s.me.Name }

// Me describes this server
func (s *Server) Me() *ServerInfo { return s.me }

// Config returns the server configuration
func (s *Server) Config() *config.Config { return s.config }

// Extensions returns the extension item manager
func (s *Server) Extensions() *extension.Manager { return s.extensions }

// Uptime returns the server uptime
func (s *Server) Uptime() time.Duration { return time.Since(s.startTime) }

// UserByUUID looks a user up by UUID
func (s *Server) UserByUUID(id string) *User { return s.users[id] }

// UserByNick looks a registered user up by nickname
func (s *Server) UserByNick(nick string) *User { return s.nicks[foldNick(nick)] }

// Users returns every known user sorted by nickname
func (s *Server) Users() []*User {
	list := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		list = append(list, u)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].nick != list[j].nick {
			return foldNick(list[i].nick) < foldNick(list[j].nick)
		}
		return list[i].uuid < list[j].uuid
	})
	return list
}

// LocalUsers returns the fully registered users connected to this server
func (s *Server) LocalUsers() []*User {
	list := make([]*User, 0)
	for _, u := range s.Users() {
		if u.IsLocal() && u.IsFullyRegistered() {
			list = append(list, u)
		}
	}
	return list
}

// localUsers includes connections still registering
func (s *Server) localUsers() []*User {
	list := make([]*User, 0)
	for _, u := range s.users {
		if u.IsLocal() {
			list = append(list, u)
		}
	}
	return list
}

// Rehash reloads the configuration and the operator blocks
func (s *Server) Rehash(newSource string) error {
	if err := s.config.Reload(newSource); err != nil {
		return err
	}
	s.loadOperators()
	for _, si := range s.servers {
		si.ulined = s.config.IsULine(si.Name)
	}
	log.Info().Str("source", s.config.Source).Msg("configuration reloaded")
	return nil
}

// ApplyExtension decodes value into the item called name for u. Malformed
// values are logged and counted; the item is left unset.
func (s *Server) ApplyExtension(u *User, name, value string) error {
	err := s.extensions.Apply(u, name, value)
	if errors.Is(err, extension.ErrMalformed) {
		metrics.ExtensionDecodeFailures.WithLabelValues(name).Inc()
		log.Debug().
			Str("uuid", u.uuid).
			Str("item", name).
			Str("value", value).
			Err(err).
			Msg("malformed extension value received")
	}
	return err
}

// SyncExtension sends the current value of the item called name for u to
// every linked server
func (s *Server) SyncExtension(u *User, name string) {
	item, ok := s.extensions.Lookup(name)
	if !ok {
		return
	}
	value, _ := item.Serialize(u)
	for _, si := range s.servers {
		si.peer.Metadata(u, name, value)
	}
}
