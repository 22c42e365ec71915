package chat

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"linechat/internal/app/store"
	"linechat/internal/app/user"
	"linechat/internal/configs"
	"linechat/internal/pkg/auth"
)

const ioTimeout = 2 * time.Second

func testConfig() *configs.AppConfig {
	return &configs.AppConfig{
		Environment:        "test",
		MaxLineBytes:       8192,
		HistoryCacheSize:   10,
		HistoryReplayLimit: 50,
		AuthIdleTimeout:    time.Minute,
		OTPTTL:             10 * time.Minute,
		OTPMaxAttempts:     5,
		AllowGuests:        true,
	}
}

type sentCode struct {
	flow  string
	email string
	code  string
}

// codeSink captures dispatched codes instead of delivering them.
type codeSink struct {
	codes chan sentCode
}

func (c *codeSink) Dispatch(flow, email, code string) bool {
	c.codes <- sentCode{flow: flow, email: email, code: code}
	return true
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	t     *testing.T
	mgr   *Manager
	store store.Store
	sink  *codeSink
	clock *fakeClock
}

// seededAccounts are created in every badger-backed harness, all with password "pw".
var seededAccounts = []string{"Alice", "Bob", "Carol", "Dave"}

func newHarness(t *testing.T, tweak func(*configs.AppConfig)) *harness {
	t.Helper()

	st, err := store.OpenBadger(store.BadgerOptions{InMemory: true}, auth.Plaintext{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	for _, name := range seededAccounts {
		require.NoError(t, st.CreateAccount(context.Background(), user.Account{
			Username: name,
			Password: "pw",
			Email:    strings.ToLower(name) + "@example.com",
		}))
	}

	return newHarnessWithStore(t, st, tweak)
}

func newHarnessWithStore(t *testing.T, st store.Store, tweak func(*configs.AppConfig)) *harness {
	t.Helper()

	cfg := testConfig()
	if tweak != nil {
		tweak(cfg)
	}

	h := &harness{
		t:     t,
		store: st,
		sink:  &codeSink{codes: make(chan sentCode, 16)},
		clock: &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	h.mgr = NewManager(cfg, st, h.sink, WithClock(h.clock.Now))
	t.Cleanup(func() { h.mgr.Shutdown(ioTimeout) })

	return h
}

func (h *harness) nextCode() sentCode {
	h.t.Helper()

	select {
	case c := <-h.sink.codes:
		return c
	case <-time.After(ioTimeout):
		h.t.Fatal("no code dispatched")
		return sentCode{}
	}
}

// testClient is the far end of a piped session.
type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func (h *harness) connect() *testClient {
	h.t.Helper()

	server, client := net.Pipe()
	h.mgr.Go(NewConnTransport(server, h.mgr.config.MaxLineBytes))
	h.t.Cleanup(func() { _ = client.Close() })

	return &testClient{t: h.t, conn: client, r: bufio.NewReader(client)}
}

func (c *testClient) send(line string) {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(ioTimeout)))
	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(c.t, err)
}

func (c *testClient) next() string {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimSuffix(line, "\n")
}

func (c *testClient) expect(lines ...string) {
	c.t.Helper()

	for _, want := range lines {
		require.Equal(c.t, want, c.next())
	}
}

func (c *testClient) expectClosed() {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
	_, err := c.r.ReadString('\n')
	require.True(c.t, errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe), "got %v", err)
}

// login signs in with the seeded password and consumes the greeting.
func (c *testClient) login(name string) {
	c.t.Helper()

	c.send("[CLIENT] LOGIN " + name + " pw")
	c.expect("[SERVER] LOGIN_SUCCESS " + name)
}
