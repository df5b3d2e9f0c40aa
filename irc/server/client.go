package server

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// maxLineLength covers 8191 bytes of tags plus a 512 byte message
const maxLineLength = 8191 + 512

// conn is the transport of a local user. Reads happen on their own
// goroutine and are posted to the event loop; writes are queued so the
// loop never blocks on a slow client.
type conn struct {
	net.Conn
	sendq  chan string
	closed chan struct{}
	once   sync.Once
}

func newConn(c net.Conn, sendq int) *conn {
	return &conn{
		Conn:   c,
		sendq:  make(chan string, sendq),
		closed: make(chan struct{}),
	}
}

// write queues a line. It returns false when the queue is full.
func (c *conn) write(line string) bool {
	select {
	case <-c.closed:
		return true
	default:
	}
	select {
	case c.sendq <- line:
		return true
	default:
		return false
	}
}

// close flushes what is already queued and then closes the socket
func (c *conn) close() {
	c.once.Do(func() { close(c.closed) })
}

func (c *conn) writer() {
	w := bufio.NewWriter(c.Conn)
	defer c.Conn.Close()

	send := func(line string) bool {
		c.Conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
		if _, err := w.WriteString(line + "\r\n"); err != nil {
			return false
		}
		// Flush once the queue is drained
		if len(c.sendq) == 0 {
			if err := w.Flush(); err != nil {
				return false
			}
		}
		return true
	}

	for {
		select {
		case line := <-c.sendq:
			if !send(line) {
				return
			}
		case <-c.closed:
			for {
				select {
				case line := <-c.sendq:
					if !send(line) {
						return
					}
				default:
					w.Flush()
					return
				}
			}
		}
	}
}

// reader feeds lines from a local user to the event loop until the
// connection fails, then posts the user's quit
func (s *Server) reader(u *User) {
	scanner := bufio.NewScanner(u.conn.Conn)
	scanner.Buffer(make([]byte, 0, 1024), maxLineLength)

	for scanner.Scan() {
		line := scanner.Text()
		if !s.Post(func() { s.handleLine(u, line) }) {
			return
		}
	}

	reason := "Connection closed"
	if err := scanner.Err(); err != nil {
		reason = "Read error"
		log.Debug().Err(err).Str("uuid", u.uuid).Msg("client read failed")
	}
	s.Post(func() { s.QuitUser(u, reason) })
}

// ServeConn adopts an accepted connection as a new local user
func (s *Server) ServeConn(c net.Conn) {
	s.Post(func() { s.acceptUser(c) })
}
