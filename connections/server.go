// Package connections drives the query manager's network surface: a
// loopback listener, a fixed table of connection slots, the per-slot
// frame state machine and the query dispatcher. Everything runs on one
// goroutine; sockets are non-blocking and polled once per tick.
package connections

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/query-manager/config"
	"github.com/query-manager/database"
	"github.com/query-manager/hostcache"
)

// Server bundles the listener, the slot table, the database and both
// caches behind one root value threaded through every handler.
type Server struct {
	config      *config.Config
	db          *database.DB
	hosts       *hostcache.Cache
	listener    int
	connections []Connection

	startTime time.Time
	nowMS     atomic.Int64
}

// NewServer creates an unbound server around its collaborators.
func NewServer(cfg *config.Config) *Server {
	return &Server{
		config:    cfg,
		listener:  -1,
		startTime: time.Now(),
	}
}

// Now returns the server's monotonic clock in milliseconds. It advances
// once per tick so every slot observed within a tick sees the same time.
func (s *Server) Now() int64 {
	return s.nowMS.Load()
}

// UpdateClock advances the monotonic clock. Called once per tick by the
// run loop before any connection work.
func (s *Server) UpdateClock() {
	s.nowMS.Store(time.Since(s.startTime).Milliseconds())
}

// Attach wires the database and host cache. Both consume the server's
// monotonic clock, so they are created after the server value exists.
func (s *Server) Attach(db *database.DB, hosts *hostcache.Cache) {
	s.db = db
	s.hosts = hosts
}

// listenerBind opens the listening socket. Binding to the loopback
// address only accepts local connections, which matters because the
// protocol is not encrypted.
func listenerBind(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, errors.Wrap(err, "failed to create listener socket")
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "failed to set SO_REUSEADDR")
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "failed to set socket flags")
	}

	addr := &unix.SockaddrInet4{Port: port}
	copy(addr.Addr[:], []byte{127, 0, 0, 1})
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, errors.Wrapf(err, "failed to bind socket to port %d", port)
	}

	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return -1, errors.Wrapf(err, "failed to listen on port %d", port)
	}

	return fd, nil
}

// listenerAccept drains one pending connection, returning -1 when the
// accept queue is empty. Peers not on the loopback address are closed
// on the spot.
func (s *Server) listenerAccept() (int, uint32, uint16) {
	for {
		fd, sa, err := unix.Accept(s.listener)
		if err != nil {
			if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
				log.Errorf("Failed to accept connection: %v", err)
			}
			return -1, 0, 0
		}

		inet4, ok := sa.(*unix.SockaddrInet4)
		if !ok {
			unix.Close(fd)
			continue
		}

		// The loopback address cannot be spoofed and the listener is
		// bound to it, so anything else here is a misconfiguration.
		addr := uint32(inet4.Addr[0])<<24 | uint32(inet4.Addr[1])<<16 |
			uint32(inet4.Addr[2])<<8 | uint32(inet4.Addr[3])
		if addr != 0x7F000001 {
			log.Errorf("Rejecting remote connection from %08X", addr)
			unix.Close(fd)
			continue
		}

		if err := unix.SetNonblock(fd, true); err != nil {
			log.Errorf("Failed to set socket flags: %v", err)
			unix.Close(fd)
			continue
		}

		return fd, addr, uint16(inet4.Port)
	}
}

// Init binds the listener and allocates the slot table.
func (s *Server) Init() error {
	log.Infof("Listening port: %d", s.config.Port)
	log.Infof("Max connections: %d", s.config.MaxConnections)
	log.Infof("Max connection idle time: %d ms", s.config.MaxConnectionIdleTime)
	log.Infof("Max connection packet size: %d", s.config.MaxConnectionPacketSize)

	listener, err := listenerBind(s.config.Port)
	if err != nil {
		return err
	}

	s.listener = listener
	s.connections = make([]Connection, s.config.MaxConnections)
	for i := range s.connections {
		s.connections[i].Socket = -1
	}
	return nil
}

// Port returns the port the listener is actually bound to.
func (s *Server) Port() (int, error) {
	sa, err := unix.Getsockname(s.listener)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get listener address")
	}

	inet4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return 0, errors.New("listener is not an IPv4 socket")
	}
	return inet4.Port, nil
}

// Close releases the listener and every slot.
func (s *Server) Close() {
	if s.listener != -1 {
		unix.Close(s.listener)
		s.listener = -1
	}

	for i := range s.connections {
		s.releaseConnection(&s.connections[i])
	}
}

// assignConnection places an accepted socket into the first free slot,
// nil when the table is full.
func (s *Server) assignConnection(fd int, addr uint32, port uint16) *Connection {
	for i := range s.connections {
		if s.connections[i].State != StateFree {
			continue
		}

		c := &s.connections[i]
		c.State = StateReading
		c.Socket = fd
		c.LastActive = s.Now()
		c.RemoteAddress = formatRemoteAddress(addr, port)
		log.Infof("Connection %s assigned to slot %d", c.RemoteAddress, i)
		return c
	}
	return nil
}

// releaseConnection returns a slot to the free state, closing its
// socket and dropping its buffer.
func (s *Server) releaseConnection(c *Connection) {
	if c.State != StateFree {
		log.Infof("Connection %s released", c.RemoteAddress)
		c.close()
		*c = Connection{}
		c.Socket = -1
	}
}

// Process runs one tick: accept pending sockets, poll every live slot,
// advance each slot's input and output state machines and run the
// housekeeping checks.
func (s *Server) Process() {
	for {
		fd, addr, port := s.listenerAccept()
		if fd == -1 {
			break
		}

		if s.assignConnection(fd, addr, port) == nil {
			log.Errorf("Rejecting connection from %08X due to max number of"+
				" connections being reached (%d)", addr, s.config.MaxConnections)
			unix.Close(fd)
		}
	}

	indices := make([]int, 0, len(s.connections))
	fds := make([]unix.PollFd, 0, len(s.connections))
	for i := range s.connections {
		if s.connections[i].State == StateFree || s.connections[i].Socket == -1 {
			continue
		}

		indices = append(indices, i)
		fds = append(fds, unix.PollFd{
			Fd:     int32(s.connections[i].Socket),
			Events: unix.POLLIN | unix.POLLOUT,
		})
	}

	if len(fds) == 0 {
		return
	}

	if _, err := unix.Poll(fds, 0); err != nil {
		if err != unix.EINTR {
			log.Errorf("Failed to poll connections: %v", err)
		}
		return
	}

	for i, pollFd := range fds {
		c := &s.connections[indices[i]]
		events := pollFd.Revents
		s.checkConnectionInput(c, events)
		s.checkConnectionOutput(c, events)
		s.checkConnection(c, events)
	}
}

// Run drives Process at the configured update rate until the shutdown
// channel closes.
func (s *Server) Run(shutdown <-chan struct{}) {
	log.Infof("Running at %d updates per second...", s.config.UpdateRate)
	updateInterval := time.Second / time.Duration(s.config.UpdateRate)
	for {
		select {
		case <-shutdown:
			return
		default:
		}

		updateStart := time.Now()
		s.UpdateClock()
		s.Process()
		if elapsed := time.Since(updateStart); elapsed < updateInterval {
			time.Sleep(updateInterval - elapsed)
		}
	}
}

func formatRemoteAddress(addr uint32, port uint16) string {
	return fmt.Sprintf("%d.%d.%d.%d:%d",
		(addr>>24)&0xFF, (addr>>16)&0xFF, (addr>>8)&0xFF, addr&0xFF, port)
}
