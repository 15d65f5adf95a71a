package connections

import (
	"bytes"
	"database/sql"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/query-manager/auth"
	"github.com/query-manager/config"
	"github.com/query-manager/database"
	"github.com/query-manager/hostcache"
	"github.com/query-manager/wire"
)

type testEnv struct {
	t      *testing.T
	server *Server
	db     *database.DB
	raw    *sql.DB
	cfg    *config.Config
	addr   string
}

// startTestServer brings up a server on an ephemeral loopback port with
// a fresh database and a background goroutine driving the tick loop.
func startTestServer(t *testing.T, tweak func(cfg *config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Port = 0
	cfg.Password = "secret"
	cfg.DatabaseFile = filepath.Join(t.TempDir(), "test.db")
	if tweak != nil {
		tweak(cfg)
	}

	server := NewServer(cfg)
	server.UpdateClock()

	db, err := database.Open(cfg.DatabaseFile, cfg.MaxCachedStatements, "../sql", server.Now)
	require.NoError(t, err)

	hosts := hostcache.New(cfg.MaxCachedHostNames, cfg.HostNameExpireTime, server.Now)
	server.Attach(db, hosts)
	require.NoError(t, server.Init())

	port, err := server.Port()
	require.NoError(t, err)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			server.UpdateClock()
			server.Process()
			time.Sleep(2 * time.Millisecond)
		}
	}()

	// A second handle onto the same file, used to seed fixtures the way
	// an operator's sqlite shell would.
	raw, err := sql.Open("sqlite3", cfg.DatabaseFile)
	require.NoError(t, err)

	t.Cleanup(func() {
		close(stop)
		<-done
		server.Close()
		raw.Close()
		db.Close()
	})

	return &testEnv{
		t:      t,
		server: server,
		db:     db,
		raw:    raw,
		cfg:    cfg,
		addr:   fmt.Sprintf("127.0.0.1:%d", port),
	}
}

func (env *testEnv) exec(query string, args ...interface{}) sql.Result {
	env.t.Helper()
	res, err := env.raw.Exec(query, args...)
	require.NoError(env.t, err)
	return res
}

func (env *testEnv) seedWorld(name string) int {
	env.t.Helper()
	res := env.exec(
		"INSERT INTO Worlds (Name, Type, RebootTime, Host, Port, MaxPlayers)"+
			" VALUES (?, 0, 5, '127.0.0.1', 7172, 900)", name)
	id, err := res.LastInsertId()
	require.NoError(env.t, err)
	return int(id)
}

func (env *testEnv) seedAccount(accountID int, authBlob []byte) {
	env.t.Helper()
	env.exec("INSERT INTO Accounts (AccountID, Email, Auth) VALUES (?, ?, ?)",
		accountID, fmt.Sprintf("account%d@example.com", accountID), authBlob)
}

func (env *testEnv) seedCharacter(worldID, accountID int, name string) int {
	env.t.Helper()
	res := env.exec("INSERT INTO Characters (WorldID, AccountID, Name) VALUES (?, ?, ?)",
		worldID, accountID, name)
	id, err := res.LastInsertId()
	require.NoError(env.t, err)
	return int(id)
}

func (env *testEnv) dial() net.Conn {
	env.t.Helper()
	conn, err := net.Dial("tcp", env.addr)
	require.NoError(env.t, err)
	env.t.Cleanup(func() { conn.Close() })
	return conn
}

func writeFrame(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	frame := wire.NewWriteBuffer(make([]byte, len(payload)+6))
	frame.Write16(uint16(len(payload)))
	_, err := conn.Write(append(frame.Bytes(), payload...))
	require.NoError(t, err)
}

// readFrame reads one response frame, handling the extended length
// escape.
func readFrame(t *testing.T, conn net.Conn) ([]byte, error) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	header := make([]byte, 2)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, err
	}

	length := int(header[0]) | int(header[1])<<8
	if length == 0xFFFF {
		extended := make([]byte, 4)
		if _, err := io.ReadFull(conn, extended); err != nil {
			return nil, err
		}
		length = int(extended[0]) | int(extended[1])<<8 | int(extended[2])<<16 | int(extended[3])<<24
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func buildPayload(build func(w *wire.WriteBuffer)) []byte {
	w := wire.NewWriteBuffer(make([]byte, 64*1024))
	build(w)
	return w.Bytes()
}

// login authorizes the client connection for the given application
// type, expecting OK.
func (env *testEnv) login(conn net.Conn, applicationType int, worldName string) {
	env.t.Helper()
	writeFrame(env.t, conn, buildPayload(func(w *wire.WriteBuffer) {
		w.Write8(wire.QueryLogin)
		w.Write8(uint8(applicationType))
		w.WriteString(env.cfg.Password)
		if applicationType == wire.AppTypeGame {
			w.WriteString(worldName)
		}
	}))

	payload, err := readFrame(env.t, conn)
	require.NoError(env.t, err)
	require.Equal(env.t, []byte{wire.StatusOk}, payload)
}

func TestUnauthorizedQueryClosesConnection(t *testing.T) {
	env := startTestServer(t, nil)
	conn := env.dial()

	writeFrame(t, conn, []byte{wire.QueryGetHouseOwners})

	// The connection is closed without a response byte.
	_, err := readFrame(t, conn)
	require.Error(t, err)
}

func TestLoginWrongPassword(t *testing.T) {
	env := startTestServer(t, nil)
	conn := env.dial()

	writeFrame(t, conn, buildPayload(func(w *wire.WriteBuffer) {
		w.Write8(wire.QueryLogin)
		w.Write8(wire.AppTypeLogin)
		w.WriteString("not the password")
	}))

	payload, err := readFrame(t, conn)
	require.NoError(t, err)
	require.Equal(t, []byte{wire.StatusFailed}, payload)
}

func TestLoginUnknownWorld(t *testing.T) {
	env := startTestServer(t, nil)
	conn := env.dial()

	writeFrame(t, conn, buildPayload(func(w *wire.WriteBuffer) {
		w.Write8(wire.QueryLogin)
		w.Write8(wire.AppTypeGame)
		w.WriteString(env.cfg.Password)
		w.WriteString("Nowhere")
	}))

	payload, err := readFrame(t, conn)
	require.NoError(t, err)
	require.Equal(t, []byte{wire.StatusFailed}, payload)
}

func TestLoginAndLoadWorldConfig(t *testing.T) {
	env := startTestServer(t, nil)
	env.seedWorld("Alpha")

	conn := env.dial()
	env.login(conn, wire.AppTypeGame, "Alpha")

	writeFrame(t, conn, []byte{wire.QueryLoadWorldConfig})
	payload, err := readFrame(t, conn)
	require.NoError(t, err)

	r := wire.NewReadBuffer(payload)
	require.Equal(t, uint8(wire.StatusOk), r.Read8())
	require.Equal(t, uint8(0), r.Read8())  // type
	require.Equal(t, uint8(5), r.Read8())  // reboot time
	require.Equal(t, uint32(0x7F000001), r.Read32BE(), "IPv4 is big-endian on the wire")
	require.Equal(t, uint16(7172), r.Read16())
	require.Equal(t, uint16(900), r.Read16()) // max players
	require.False(t, r.Overflowed())
}

func TestApplicationTypeGate(t *testing.T) {
	env := startTestServer(t, nil)

	conn := env.dial()
	env.login(conn, wire.AppTypeLogin, "")

	writeFrame(t, conn, []byte{wire.QueryGetHouseOwners})
	payload, err := readFrame(t, conn)
	require.NoError(t, err)
	require.Equal(t, []byte{wire.StatusFailed}, payload)
}

func TestLoginGameIPBanished(t *testing.T) {
	env := startTestServer(t, nil)
	worldID := env.seedWorld("Alpha")

	authBlob := auth.MakeAuth("hunter2", bytes.Repeat([]byte{0x11}, 32))
	env.seedAccount(100, authBlob)
	env.seedCharacter(worldID, 100, "Hero")
	require.NoError(t, env.db.InsertIPBanishment(0, 0x0A000001, 7, "Abuse", "", 3600))

	conn := env.dial()
	env.login(conn, wire.AppTypeGame, "Alpha")

	writeFrame(t, conn, buildPayload(func(w *wire.WriteBuffer) {
		w.Write8(wire.QueryLoginGame)
		w.Write32(100)
		w.WriteString("Hero")
		w.WriteString("hunter2")
		w.Write32BE(0x0A000001)
	}))

	payload, err := readFrame(t, conn)
	require.NoError(t, err)
	require.Equal(t, []byte{wire.StatusError, 12}, payload)

	// The failed attempt is audited even though the reply is an error.
	count, err := env.db.GetAccountFailedLoginAttempts(100, 300)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestLoginGameSuccess(t *testing.T) {
	env := startTestServer(t, nil)
	worldID := env.seedWorld("Alpha")

	authBlob := auth.MakeAuth("hunter2", bytes.Repeat([]byte{0x11}, 32))
	env.seedAccount(100, authBlob)
	characterID := env.seedCharacter(worldID, 100, "Hero")

	conn := env.dial()
	env.login(conn, wire.AppTypeGame, "Alpha")

	writeFrame(t, conn, buildPayload(func(w *wire.WriteBuffer) {
		w.Write8(wire.QueryLoginGame)
		w.Write32(100)
		w.WriteString("Hero")
		w.WriteString("hunter2")
		w.Write32BE(0x7F000001)
	}))

	payload, err := readFrame(t, conn)
	require.NoError(t, err)

	r := wire.NewReadBuffer(payload)
	require.Equal(t, uint8(wire.StatusOk), r.Read8())
	require.Equal(t, uint32(characterID), r.Read32())
	r.Read8()                                // sex
	require.Equal(t, "", r.ReadString())     // guild
	require.Equal(t, "", r.ReadString())     // rank
	require.Equal(t, "", r.ReadString())     // title
	require.Equal(t, uint16(0), r.Read16())  // premium days
	require.False(t, r.ReadFlag())           // premium activated
	require.Equal(t, uint16(0), r.Read16())  // buddies
	require.Equal(t, uint8(0), r.Read8())    // rights
	require.False(t, r.Overflowed())

	// The character now holds an online reference.
	online, err := env.db.GetAccountOnlineCharacters(100)
	require.NoError(t, err)
	require.Equal(t, 1, online)
}

func TestBanishAccountCompound(t *testing.T) {
	env := startTestServer(t, nil)
	worldID := env.seedWorld("Alpha")
	env.seedAccount(100, make([]byte, 64))
	env.seedCharacter(worldID, 100, "Cheater")

	// Six expired banishments on record: the next one escalates to 30
	// days with the final warning set.
	for i := 0; i < 6; i++ {
		env.exec("INSERT INTO Banishments (AccountID, Issued, Until)" +
			" VALUES (100, UNIXEPOCH() - 1000, UNIXEPOCH() - 500)")
	}

	conn := env.dial()
	env.login(conn, wire.AppTypeGame, "Alpha")

	banish := func(days int) []byte {
		writeFrame(t, conn, buildPayload(func(w *wire.WriteBuffer) {
			w.Write8(wire.QueryBanishAccount)
			w.WriteString("Cheater")
			w.Write32BE(0x7F000001)
			w.Write32(7)
			w.WriteString("Cheating")
			w.WriteString("")
			w.WriteFlag(false)
			w.Write16(uint16(days))
		}))
		payload, err := readFrame(t, conn)
		require.NoError(t, err)
		return payload
	}

	payload := banish(7)
	r := wire.NewReadBuffer(payload)
	require.Equal(t, uint8(wire.StatusOk), r.Read8())
	require.NotZero(t, r.Read32()) // banishment id
	require.Equal(t, uint8(30), r.Read8())
	require.True(t, r.ReadFlag(), "final warning now set")

	// Expire the active ban but keep the final-warning history: the
	// next banishment is permanent.
	env.exec("UPDATE Banishments SET Issued = UNIXEPOCH() - 1000," +
		" Until = UNIXEPOCH() - 500 WHERE AccountID = 100")

	payload = banish(7)
	r = wire.NewReadBuffer(payload)
	require.Equal(t, uint8(wire.StatusOk), r.Read8())
	require.NotZero(t, r.Read32())
	require.Equal(t, uint8(0xFF), r.Read8(), "permanent")
	require.False(t, r.ReadFlag())
}

func TestCreatePlayerlistNewRecord(t *testing.T) {
	env := startTestServer(t, nil)
	worldID := env.seedWorld("Alpha")
	env.exec("UPDATE Worlds SET OnlineRecord = 100 WHERE WorldID = ?", worldID)

	conn := env.dial()
	env.login(conn, wire.AppTypeGame, "Alpha")

	writeFrame(t, conn, buildPayload(func(w *wire.WriteBuffer) {
		w.Write8(wire.QueryCreatePlayerlist)
		w.Write16(137)
		for i := 0; i < 137; i++ {
			w.WriteString(fmt.Sprintf("Player %d", i))
			w.Write16(uint16(i + 1))
			w.WriteString("Knight")
		}
	}))

	payload, err := readFrame(t, conn)
	require.NoError(t, err)
	require.Equal(t, []byte{wire.StatusOk, 0x01}, payload, "137 beats the record of 100")

	online, err := env.db.GetOnlineCharacters(worldID)
	require.NoError(t, err)
	require.Len(t, online, 137)
}

func TestIdleEviction(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) {
		cfg.MaxConnectionIdleTime = 300
	})
	env.seedWorld("Alpha")

	conn := env.dial()
	env.login(conn, wire.AppTypeGame, "Alpha")

	// No bytes for longer than the idle threshold: the slot is evicted
	// and the socket closed.
	time.Sleep(700 * time.Millisecond)
	_, err := readFrame(t, conn)
	require.Error(t, err)
}

func TestLoginAccountEndpoints(t *testing.T) {
	env := startTestServer(t, nil)
	worldID := env.seedWorld("Alpha")

	authBlob := auth.MakeAuth("hunter2", bytes.Repeat([]byte{0x22}, 32))
	env.seedAccount(100, authBlob)
	env.seedCharacter(worldID, 100, "Hero")

	conn := env.dial()
	env.login(conn, wire.AppTypeLogin, "")

	writeFrame(t, conn, buildPayload(func(w *wire.WriteBuffer) {
		w.Write8(wire.QueryLoginAccount)
		w.Write32(100)
		w.WriteString("hunter2")
		w.Write32BE(0x7F000001)
	}))

	payload, err := readFrame(t, conn)
	require.NoError(t, err)

	r := wire.NewReadBuffer(payload)
	require.Equal(t, uint8(wire.StatusOk), r.Read8())
	require.Equal(t, uint16(0), r.Read16()) // premium days
	require.Equal(t, uint8(1), r.Read8())   // endpoints
	require.Equal(t, "Hero", r.ReadString())
	require.Equal(t, "Alpha", r.ReadString())
	require.Equal(t, uint32(0x7F000001), r.Read32BE())
	require.Equal(t, uint16(7172), r.Read16())
	require.False(t, r.Overflowed())
}

func TestLoginAccountUnknown(t *testing.T) {
	env := startTestServer(t, nil)

	conn := env.dial()
	env.login(conn, wire.AppTypeLogin, "")

	writeFrame(t, conn, buildPayload(func(w *wire.WriteBuffer) {
		w.Write8(wire.QueryLoginAccount)
		w.Write32(999)
		w.WriteString("whatever")
		w.Write32BE(0x7F000001)
	}))

	payload, err := readFrame(t, conn)
	require.NoError(t, err)
	require.Equal(t, []byte{wire.StatusError, 1}, payload)
}

func TestZeroLengthFrameClosesConnection(t *testing.T) {
	env := startTestServer(t, nil)
	conn := env.dial()

	_, err := conn.Write([]byte{0x00, 0x00})
	require.NoError(t, err)

	_, err = readFrame(t, conn)
	require.Error(t, err)
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) {
		cfg.MaxConnectionPacketSize = 128
	})
	conn := env.dial()

	// Header requests more than the per-frame cap.
	_, err := conn.Write([]byte{0x00, 0x01})
	require.NoError(t, err)

	_, err = readFrame(t, conn)
	require.Error(t, err)
}

func TestResponseOverflowClosesConnection(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) {
		cfg.MaxConnectionPacketSize = 48
	})
	worldID := env.seedWorld("Alpha")
	env.seedAccount(100, make([]byte, 64))

	// Enough house owners that the response cannot fit a 48-byte frame.
	for i := 0; i < 4; i++ {
		ownerID := env.seedCharacter(worldID, 100, fmt.Sprintf("Wealthy Owner %d", i))
		env.exec("INSERT INTO HouseOwners (WorldID, HouseID, OwnerID, PaidUntil) VALUES (?, ?, ?, 0)",
			worldID, i+1, ownerID)
	}

	conn := env.dial()
	env.login(conn, wire.AppTypeGame, "Alpha")

	writeFrame(t, conn, []byte{wire.QueryGetHouseOwners})

	// The handler overflows the write buffer and the slot is closed
	// rather than a truncated reply being sent.
	_, err := readFrame(t, conn)
	require.Error(t, err)
}
