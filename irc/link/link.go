package link

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/Kufat/inspircd/irc"
	"github.com/Kufat/inspircd/irc/config"
	"github.com/Kufat/inspircd/irc/server"
	"github.com/rs/zerolog/log"
)

// SendQ is the number of lines a link buffers before it is dropped
var SendQ = 4096

const maxLineLength = 8191 + 512

// Link is one server-to-server connection. Protocol state is only touched
// on the server's event loop; the reader and writer goroutines only move
// lines.
type Link struct {
	srv      *server.Server
	conn     net.Conn
	outgoing *config.Link

	// Event loop state
	remote         *server.ServerInfo
	remoteBursting bool

	sendq  chan string
	closed chan struct{}
	once   sync.Once
}

var _ server.Peer = (*Link)(nil)

func newLink(srv *server.Server, conn net.Conn, outgoing *config.Link) *Link {
	return &Link{
		srv:      srv,
		conn:     conn,
		outgoing: outgoing,
		sendq:    make(chan string, SendQ),
		closed:   make(chan struct{}),
	}
}

// Remote returns the linked server once the handshake is done
func (l *Link) Remote() *server.ServerInfo {
	return l.remote
}

// Done is closed once the link is down
func (l *Link) Done() <-chan struct{} {
	return l.closed
}

func (l *Link) peerName() string {
	if l.remote != nil {
		return l.remote.Name
	}
	if l.outgoing != nil {
		return l.outgoing.Name
	}
	return l.conn.RemoteAddr().String()
}

// send queues msg. A link that cannot keep up is dropped.
func (l *Link) send(msg *irc.Message) {
	select {
	case <-l.closed:
		return
	default:
	}
	select {
	case l.sendq <- msg.String():
	default:
		log.Warn().Str("peer", l.peerName()).Msg("link sendq exceeded")
		l.closeConn()
	}
}

// sendFrom queues a command with our SID as the source
func (l *Link) sendFrom(command string, params ...string) {
	l.send(irc.NewMessage(l.srv.Me().SID, command, params...))
}

func (l *Link) closeConn() {
	l.once.Do(func() {
		close(l.closed)
		l.conn.Close()
	})
}

func (l *Link) writer() {
	w := bufio.NewWriter(l.conn)
	for {
		select {
		case line := <-l.sendq:
			l.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if _, err := w.WriteString(line + "\r\n"); err != nil {
				l.closeConn()
				return
			}
			if len(l.sendq) == 0 {
				if err := w.Flush(); err != nil {
					l.closeConn()
					return
				}
			}
		case <-l.closed:
			return
		}
	}
}

// reader posts every line to the event loop and unlinks when the
// connection ends
func (l *Link) reader() {
	scanner := bufio.NewScanner(l.conn)
	scanner.Buffer(make([]byte, 0, 1024), maxLineLength)

	for scanner.Scan() {
		msg := irc.ParseMessage(scanner.Text())
		if msg == nil {
			continue
		}
		if !l.srv.Post(func() { l.handle(msg) }) {
			break
		}
	}
	l.closeConn()

	l.srv.Post(func() {
		if l.remote != nil {
			l.srv.RemoveServer(l.remote, "Connection closed")
		}
	})
}

// abort sends ERROR and drops the link
func (l *Link) abort(reason string) {
	log.Warn().Str("peer", l.peerName()).Str("reason", reason).Msg("dropping link")
	l.send(irc.NewMessage("", "ERROR", reason))
	go func() {
		// Give the writer a moment to flush the ERROR
		select {
		case <-time.After(100 * time.Millisecond):
		case <-l.closed:
		}
		l.closeConn()
	}()
}

// IntroduceUser sends UID for a local user
func (l *Link) IntroduceUser(u *server.User) {
	opered := "0"
	if u.IsOper() {
		opered = "1"
	}
	l.sendFrom("UID", u.UUID(), u.Nick(), u.Ident(), u.Host(), u.IP(), opered, u.Realname())
}

// UserQuit relays a local user's QUIT
func (l *Link) UserQuit(u *server.User, reason string) {
	l.send(irc.NewMessage(u.UUID(), "QUIT", reason))
}

// UserNick relays a local user's nick change
func (l *Link) UserNick(u *server.User) {
	l.send(irc.NewMessage(u.UUID(), "NICK", u.Nick()))
}

// UserOper relays a local user becoming an operator
func (l *Link) UserOper(u *server.User, opername string) {
	l.send(irc.NewMessage(u.UUID(), "OPER", opername))
}

// Metadata sends an extension value for a local user. An empty value
// unsets it on the other side.
func (l *Link) Metadata(u *server.User, name, value string) {
	if !u.IsLocal() {
		return
	}
	l.sendFrom("METADATA", u.UUID(), name, value)
}

// Message relays a PRIVMSG, NOTICE or TAGMSG to a user homed on the peer
func (l *Link) Message(source, target *server.User, command, text string, tags map[string]string) {
	params := []string{target.UUID()}
	if command != irc.TAGMSG {
		params = append(params, text)
	}
	msg := irc.NewMessage(source.UUID(), command, params...)
	if len(tags) > 0 {
		msg.Tags = tags
	}
	l.send(msg)
}

// Close sends ERROR and drops the link
func (l *Link) Close(reason string) {
	l.abort(reason)
}

func isOurs(si *server.ServerInfo, u *server.User) bool {
	return u != nil && u.Server() == si
}
