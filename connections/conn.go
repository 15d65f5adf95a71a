package connections

import (
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// ConnectionState tracks where a slot is in its request cycle.
type ConnectionState int

// Slot lifecycle: FREE -> READING on accept, PROCESSING once a complete
// frame arrived, WRITING once the handler produced a response, back to
// READING after the response flushed.
const (
	StateFree ConnectionState = iota
	StateReading
	StateProcessing
	StateWriting
)

// Connection is one slot of the fixed connection table. The buffer is
// allocated lazily on the first read and dropped on release; exactly
// one frame is in flight per slot at any time.
type Connection struct {
	State           ConnectionState
	Socket          int
	LastActive      int64
	RWSize          int
	RWPosition      int
	Buffer          []byte
	Authorized      bool
	ApplicationType int
	WorldID         int
	RemoteAddress   string
}

func (c *Connection) close() {
	if c.Socket != -1 {
		unix.Close(c.Socket)
		c.Socket = -1
	}
}

func (c *Connection) ensureBuffer(size int) {
	if c.Buffer == nil {
		c.Buffer = make([]byte, size)
	}
}

// checkConnectionInput advances the read state machine. The frame
// header is 2 bytes, or 6 when the 16-bit length escapes to the 32-bit
// form; zero or over-limit lengths close the connection. Data received
// while the slot is not READING is a protocol violation.
func (s *Server) checkConnectionInput(c *Connection, events int16) {
	if events&unix.POLLIN == 0 || c.Socket == -1 {
		return
	}

	if c.State != StateReading {
		log.Errorf("Connection %s (State: %d) sending out-of-order data",
			c.RemoteAddress, c.State)
		c.close()
		return
	}

	c.ensureBuffer(s.config.MaxConnectionPacketSize)
	for {
		readSize := c.RWSize
		if readSize == 0 {
			if c.RWPosition < 2 {
				readSize = 2
			} else {
				readSize = 6
			}
		}

		n, err := unix.Read(c.Socket, c.Buffer[c.RWPosition:readSize])
		if err != nil {
			if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
				c.close()
			}
			break
		} else if n == 0 {
			// Graceful close.
			c.close()
			break
		}

		c.RWPosition += n
		if c.RWPosition < readSize {
			continue
		}

		if c.RWSize != 0 {
			c.State = StateProcessing
			c.LastActive = s.Now()
			break
		} else if c.RWPosition == 2 {
			payloadSize := int(littleEndian16(c.Buffer))
			if payloadSize == 0 || payloadSize > s.config.MaxConnectionPacketSize {
				c.close()
				break
			}

			if payloadSize != 0xFFFF {
				c.RWSize = payloadSize
				c.RWPosition = 0
			}
		} else if c.RWPosition == 6 {
			payloadSize := int(littleEndian32(c.Buffer[2:]))
			if payloadSize <= 0 || payloadSize > s.config.MaxConnectionPacketSize {
				c.close()
				break
			}

			c.RWSize = payloadSize
			c.RWPosition = 0
		} else {
			log.Panicf("Invalid input state (State: %d, RWSize: %d, RWPosition: %d)",
				c.State, c.RWSize, c.RWPosition)
		}
	}

	if c.State == StateProcessing {
		s.processQuery(c)
	}
}

// checkConnectionOutput flushes the pending response. Once it is fully
// written the slot returns to READING for its next frame.
func (s *Server) checkConnectionOutput(c *Connection, events int16) {
	if events&unix.POLLOUT == 0 || c.Socket == -1 {
		return
	}

	if c.State != StateWriting {
		return
	}

	for {
		n, err := unix.Write(c.Socket, c.Buffer[c.RWPosition:c.RWSize])
		if err != nil {
			if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
				c.close()
			}
			break
		}

		c.RWPosition += n
		if c.RWPosition >= c.RWSize {
			c.State = StateReading
			c.RWSize = 0
			c.RWPosition = 0
			break
		}
	}
}

// checkConnection handles hangups, idle eviction and the final release
// once the socket is gone.
func (s *Server) checkConnection(c *Connection, events int16) {
	if events&(unix.POLLERR|unix.POLLHUP) != 0 {
		c.close()
	}

	if s.config.MaxConnectionIdleTime > 0 && c.Socket != -1 {
		if s.Now()-c.LastActive >= int64(s.config.MaxConnectionIdleTime) {
			log.Warnf("Dropping connection %s due to inactivity", c.RemoteAddress)
			c.close()
		}
	}

	if c.Socket == -1 {
		s.releaseConnection(c)
	}
}

func littleEndian16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func littleEndian32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
