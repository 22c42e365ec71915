package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"linechat/internal/app/message"
	"linechat/internal/app/user"
	"linechat/internal/configs"
	"linechat/internal/mocks"
)

func TestSession_Login(t *testing.T) {
	t.Run("should join, list users and announce later arrivals", func(t *testing.T) {
		h := newHarness(t, nil)

		alice := h.connect()
		alice.login("Alice")
		alice.expect("[SERVER] USERLIST Alice:1 Bob:0 Carol:0 Dave:0")

		bob := h.connect()
		bob.send("[CLIENT] LOGIN bob pw")
		bob.expect(
			"[SERVER] LOGIN_SUCCESS Bob",
			"[SERVER] USERLIST Alice:1 Bob:1 Carol:0 Dave:0",
		)
		alice.expect(
			"[SERVER] USER_JOINED Bob",
			"[SERVER] USERLIST Alice:1 Bob:1 Carol:0 Dave:0",
		)

		alice.send("hello all")
		bob.expect("[SERVER] MSG Alice hello all")

		bob.send("[CLIENT] QUIT")
		bob.expectClosed()
		alice.expect(
			"[SERVER] USER_LEFT Bob",
			"[SERVER] USERLIST Alice:1 Bob:0 Carol:0 Dave:0",
		)
	})

	t.Run("should allow a retry after a failed login", func(t *testing.T) {
		h := newHarness(t, nil)

		c := h.connect()
		c.send("[CLIENT] LOGIN Alice wrong")
		c.expect("[SERVER] LOGIN_FAIL")

		c.login("Alice")
	})

	t.Run("should reject a second login for an online account", func(t *testing.T) {
		h := newHarness(t, nil)

		first := h.connect()
		first.login("Alice")
		first.expect("[SERVER] USERLIST Alice:1 Bob:0 Carol:0 Dave:0")

		second := h.connect()
		second.send("[CLIENT] LOGIN ALICE pw")
		second.expect("[SERVER] ERROR AlreadyOnline")

		second.send("[CLIENT] CHECK_LOGIN alice pw")
		second.expect("[SERVER] LOGIN_SUCCESS Alice")
	})

	t.Run("should check credentials without joining", func(t *testing.T) {
		h := newHarness(t, nil)

		c := h.connect()
		c.send("[CLIENT] CHECK_LOGIN carol pw")
		c.expect("[SERVER] LOGIN_SUCCESS Carol")
		c.send("[CLIENT] CHECK_LOGIN carol nope")
		c.expect("[SERVER] LOGIN_FAIL")

		c.send("hi")
		c.expect("[SERVER] ERROR NotLoggedIn")
		require.Equal(t, 0, h.mgr.Registry().Len())
	})

	t.Run("should report protocol errors and keep the connection open", func(t *testing.T) {
		h := newHarness(t, nil)

		c := h.connect()
		c.send("[CLIENT] DANCE")
		c.expect("[SERVER] ERROR UnknownCmd")
		c.send("[CLIENT] LOGIN onlyname")
		c.expect("[SERVER] ERROR BadCommand")
		c.send("[CLIENT] USERS")
		c.expect("[SERVER] ERROR NotLoggedIn")

		c.login("Dave")
		c.expect("[SERVER] USERLIST Alice:0 Bob:0 Carol:0 Dave:1")

		c.send("[CLIENT] LOGIN Dave pw")
		c.expect("[SERVER] ERROR AlreadyLoggedIn")
		c.send("[CLIENT] USERS")
		c.expect("[SERVER] USERLIST Alice:0 Bob:0 Carol:0 Dave:1")
	})

	t.Run("should close idle unauthenticated connections", func(t *testing.T) {
		h := newHarness(t, func(cfg *configs.AppConfig) {
			cfg.AuthIdleTimeout = 100 * time.Millisecond
		})

		c := h.connect()
		c.expectClosed()
	})
}

func TestSession_Replay(t *testing.T) {
	t.Run("should replay history before live traffic exactly once", func(t *testing.T) {
		h := newHarness(t, nil)

		alice := h.connect()
		alice.login("Alice")
		alice.expect("[SERVER] USERLIST Alice:1 Bob:0 Carol:0 Dave:0")

		alice.send("one")
		alice.send("two")
		require.Eventually(t, func() bool {
			return len(h.mgr.Broadcaster().History()) == 2
		}, ioTimeout, 10*time.Millisecond)

		bob := h.connect()
		bob.login("Bob")
		bob.expect(
			"[SERVER] MSG Alice one",
			"[SERVER] MSG Alice two",
			"[SERVER] USERLIST Alice:1 Bob:1 Carol:0 Dave:0",
		)

		alice.expect("[SERVER] USER_JOINED Bob", "[SERVER] USERLIST Alice:1 Bob:1 Carol:0 Dave:0")
		alice.send("three")
		bob.expect("[SERVER] MSG Alice three")
	})

	t.Run("should replay private history from the reader's point of view", func(t *testing.T) {
		h := newHarness(t, nil)
		ctx := context.Background()

		require.NoError(t, h.store.AppendMessage(ctx, message.NewPrivate("Carol", "Alice", "hi")))
		require.NoError(t, h.store.AppendMessage(ctx, message.NewPrivate("Alice", "Carol", "hey")))
		require.NoError(t, h.store.AppendMessage(ctx, message.NewPrivate("Bob", "Dave", "not for alice")))

		alice := h.connect()
		alice.login("Alice")
		alice.expect(
			"[SERVER] MSG Carol (Private): hi",
			"[SERVER] MSG Me -> Carol: hey",
			"[SERVER] USERLIST Alice:1 Bob:0 Carol:0 Dave:0",
		)
	})
}

func TestSession_PrivateMessages(t *testing.T) {
	t.Run("should deliver to the target, echo to the sender and store one row", func(t *testing.T) {
		h := newHarness(t, nil)

		alice := h.connect()
		alice.login("Alice")
		alice.expect("[SERVER] USERLIST Alice:1 Bob:0 Carol:0 Dave:0")

		carol := h.connect()
		carol.login("Carol")
		carol.expect("[SERVER] USERLIST Alice:1 Bob:0 Carol:1 Dave:0")
		alice.expect("[SERVER] USER_JOINED Carol", "[SERVER] USERLIST Alice:1 Bob:0 Carol:1 Dave:0")

		carol.send("[CLIENT] PM Alice hi")
		alice.expect("[SERVER] MSG Carol (Private): hi")
		carol.expect("[SERVER] MSG Me -> Alice: hi")

		history, err := h.store.FetchRecentHistory(context.Background(), "Alice", 50)
		require.NoError(t, err)
		require.Len(t, history, 1)
		require.Equal(t, message.KindPrivate, history[0].Kind)
		require.Equal(t, "Carol", history[0].Sender)
		require.Equal(t, "Alice", history[0].Target)
	})

	t.Run("should save messages for offline users without broadcasting", func(t *testing.T) {
		h := newHarness(t, nil)

		alice := h.connect()
		alice.login("Alice")
		alice.expect("[SERVER] USERLIST Alice:1 Bob:0 Carol:0 Dave:0")

		carol := h.connect()
		carol.login("Carol")
		carol.expect("[SERVER] USERLIST Alice:1 Bob:0 Carol:1 Dave:0")
		alice.expect("[SERVER] USER_JOINED Carol", "[SERVER] USERLIST Alice:1 Bob:0 Carol:1 Dave:0")

		carol.send("[CLIENT] PM Dave see you later")
		carol.expect("[SERVER] MSG System Dave is offline. Message saved.")

		history, err := h.store.FetchRecentHistory(context.Background(), "Dave", 50)
		require.NoError(t, err)
		require.Len(t, history, 1)
		require.Equal(t, "see you later", history[0].Body)

		carol.send("ping")
		alice.expect("[SERVER] MSG Carol ping")
	})

	t.Run("should refuse reserved targets and keep them out of replayed history", func(t *testing.T) {
		h := newHarness(t, nil)

		carol := h.connect()
		carol.login("Carol")
		carol.expect("[SERVER] USERLIST Alice:0 Bob:0 Carol:1 Dave:0")

		carol.send("[CLIENT] PM ALL my secret")
		carol.expect("[SERVER] ERROR BadPM")
		carol.send("[CLIENT] PM system hello")
		carol.expect("[SERVER] ERROR BadPM")

		history, err := h.store.FetchRecentHistory(context.Background(), "Carol", 50)
		require.NoError(t, err)
		require.Empty(t, history)

		bob := h.connect()
		bob.login("Bob")
		bob.expect("[SERVER] USERLIST Alice:0 Bob:1 Carol:1 Dave:0")
	})

	t.Run("should reject a PM without a body and store nothing", func(t *testing.T) {
		h := newHarness(t, nil)

		carol := h.connect()
		carol.login("Carol")
		carol.expect("[SERVER] USERLIST Alice:0 Bob:0 Carol:1 Dave:0")

		carol.send("[CLIENT] PM Dave")
		carol.expect("[SERVER] ERROR BadPM")

		history, err := h.store.FetchRecentHistory(context.Background(), "Dave", 50)
		require.NoError(t, err)
		require.Empty(t, history)
	})
}

func TestSession_Registration(t *testing.T) {
	t.Run("should create the account only after the code is verified", func(t *testing.T) {
		h := newHarness(t, nil)
		ctx := context.Background()

		c := h.connect()
		c.send("[CLIENT] REGISTER Erin s3cret erin@example.com")
		c.expect("[SERVER] OTP_REQ")

		sent := h.nextCode()
		require.Equal(t, "register", sent.flow)
		require.Equal(t, "erin@example.com", sent.email)
		require.Equal(t, float64(1), testutil.ToFloat64(h.mgr.metrics.CodesQueued.WithLabelValues("register", "queued")))
		require.Equal(t, 1, testutil.CollectAndCount(h.mgr.metrics.CodesQueued))

		exists, err := h.store.UsernameExists(ctx, "erin")
		require.NoError(t, err)
		require.False(t, exists)

		c.send("[CLIENT] VERIFY_OTP " + wrongCode(sent.code))
		c.expect("[SERVER] ERROR InvalidOTP")
		c.send("[CLIENT] VERIFY_OTP " + sent.code[:5] + "x")
		c.expect("[SERVER] ERROR InvalidOTP")

		c.send("[CLIENT] VERIFY_OTP " + sent.code)
		c.expect("[SERVER] LOGIN_SUCCESS")

		c.send("[CLIENT] VERIFY_OTP " + sent.code)
		c.expect("[SERVER] ERROR NoPendingOTP")

		c.send("[CLIENT] LOGIN erin s3cret")
		c.expect(
			"[SERVER] LOGIN_SUCCESS Erin",
			"[SERVER] USERLIST Alice:0 Bob:0 Carol:0 Dave:0 Erin:1",
		)
	})

	t.Run("should refuse taken and invalid names", func(t *testing.T) {
		h := newHarness(t, nil)

		c := h.connect()
		c.send("[CLIENT] REGISTER alice pw alice2@example.com")
		c.expect("[SERVER] ERROR UserExists")
		c.send("[CLIENT] REGISTER System pw sys@example.com")
		c.expect("[SERVER] ERROR InvalidRegistration")
		c.send("[CLIENT] REGISTER frank pw not-an-email")
		c.expect("[SERVER] ERROR InvalidRegistration")
	})

	t.Run("should discard the flow after too many wrong codes", func(t *testing.T) {
		h := newHarness(t, func(cfg *configs.AppConfig) {
			cfg.OTPMaxAttempts = 3
		})

		c := h.connect()
		c.send("[CLIENT] REGISTER Gail pw gail@example.com")
		c.expect("[SERVER] OTP_REQ")
		sent := h.nextCode()

		bad := wrongCode(sent.code)
		c.send("[CLIENT] VERIFY_OTP " + bad)
		c.expect("[SERVER] ERROR InvalidOTP")
		c.send("[CLIENT] VERIFY_OTP " + bad)
		c.expect("[SERVER] ERROR InvalidOTP")
		c.send("[CLIENT] VERIFY_OTP " + bad)
		c.expect("[SERVER] ERROR OTPAttemptsExceeded")

		c.send("[CLIENT] VERIFY_OTP " + sent.code)
		c.expect("[SERVER] ERROR NoPendingOTP")
	})
}

func TestSession_EmailLogin(t *testing.T) {
	t.Run("should join after the emailed code is verified", func(t *testing.T) {
		h := newHarness(t, nil)

		c := h.connect()
		c.send("[CLIENT] REQ_LOGIN_OTP ALICE@example.com")
		c.expect("[SERVER] OTP_SENT")
		sent := h.nextCode()
		require.Equal(t, "email_login", sent.flow)

		c.send("[CLIENT] VERIFY_LOGIN_OTP bob@example.com " + sent.code)
		c.expect("[SERVER] ERROR NoPendingOTP")

		c.send("[CLIENT] VERIFY_LOGIN_OTP alice@example.com " + sent.code)
		c.expect(
			"[SERVER] LOGIN_SUCCESS Alice",
			"[SERVER] USERLIST Alice:1 Bob:0 Carol:0 Dave:0",
		)
	})

	t.Run("should report unknown emails", func(t *testing.T) {
		h := newHarness(t, nil)

		c := h.connect()
		c.send("[CLIENT] REQ_LOGIN_OTP nobody@example.com")
		c.expect("[SERVER] ERROR EmailNotFound")
	})

	t.Run("should expire codes", func(t *testing.T) {
		h := newHarness(t, nil)

		c := h.connect()
		c.send("[CLIENT] REQ_LOGIN_OTP bob@example.com")
		c.expect("[SERVER] OTP_SENT")
		sent := h.nextCode()

		h.clock.Advance(11 * time.Minute)

		c.send("[CLIENT] VERIFY_LOGIN_OTP bob@example.com " + sent.code)
		c.expect("[SERVER] ERROR OTPExpired")
		c.send("[CLIENT] VERIFY_LOGIN_OTP bob@example.com " + sent.code)
		c.expect("[SERVER] ERROR NoPendingOTP")
	})
}

func TestSession_Guests(t *testing.T) {
	t.Run("should resolve colliding guest names with a suffix", func(t *testing.T) {
		h := newHarness(t, nil)

		first := h.connect()
		first.send("[CLIENT] CONNECT Zed")
		first.expect(
			"[SERVER] CONNECTED Zed",
			"[SERVER] USERLIST Alice:0 Bob:0 Carol:0 Dave:0",
		)

		second := h.connect()
		second.send("[CLIENT] CONNECT Zed")
		second.expect(
			"[SERVER] CONNECTED Zed1",
			"[SERVER] USERLIST Alice:0 Bob:0 Carol:0 Dave:0",
		)
		first.expect("[SERVER] USER_JOINED Zed1", "[SERVER] USERLIST Alice:0 Bob:0 Carol:0 Dave:0")

		second.send("hey")
		first.expect("[SERVER] MSG Zed1 hey")
	})

	t.Run("should skip suffixed names that belong to accounts", func(t *testing.T) {
		h := newHarness(t, nil)
		require.NoError(t, h.store.CreateAccount(context.Background(), user.Account{
			Username: "Zed1",
			Password: "pw",
			Email:    "zed1@example.com",
		}))

		first := h.connect()
		first.send("[CLIENT] CONNECT Zed")
		first.expect("[SERVER] CONNECTED Zed")

		second := h.connect()
		second.send("[CLIENT] CONNECT Zed")
		second.expect("[SERVER] CONNECTED Zed2")

		owner := h.connect()
		owner.login("Zed1")
		owner.expect("[SERVER] USERLIST Alice:0 Bob:0 Carol:0 Dave:0 Zed1:1")
	})

	t.Run("should not register a name a guest is using", func(t *testing.T) {
		h := newHarness(t, nil)

		guest := h.connect()
		guest.send("[CLIENT] CONNECT Yuri")
		guest.expect("[SERVER] CONNECTED Yuri")

		c := h.connect()
		c.send("[CLIENT] REGISTER yuri pw yuri@example.com")
		c.expect("[SERVER] ERROR UserExists")
	})

	t.Run("should refuse account names and disabled guests", func(t *testing.T) {
		h := newHarness(t, nil)
		c := h.connect()
		c.send("[CLIENT] CONNECT alice")
		c.expect("[SERVER] ERROR UserExists")
		c.send("[CLIENT] CONNECT Me")
		c.expect("[SERVER] ERROR InvalidName")

		off := newHarness(t, func(cfg *configs.AppConfig) { cfg.AllowGuests = false })
		g := off.connect()
		g.send("[CLIENT] CONNECT Zed")
		g.expect("[SERVER] ERROR GuestsDisabled")
	})
}

func TestSession_Disconnect(t *testing.T) {
	t.Run("should not announce sessions that never joined", func(t *testing.T) {
		h := newHarness(t, nil)

		alice := h.connect()
		alice.login("Alice")
		alice.expect("[SERVER] USERLIST Alice:1 Bob:0 Carol:0 Dave:0")

		ghost := h.connect()
		require.Eventually(t, func() bool { return h.mgr.SessionCount() == 2 }, ioTimeout, 10*time.Millisecond)
		require.NoError(t, ghost.conn.Close())
		require.Eventually(t, func() bool { return h.mgr.SessionCount() == 1 }, ioTimeout, 10*time.Millisecond)

		bob := h.connect()
		bob.login("Bob")
		alice.expect("[SERVER] USER_JOINED Bob")
	})

	t.Run("should announce joined sessions that drop", func(t *testing.T) {
		h := newHarness(t, nil)

		alice := h.connect()
		alice.login("Alice")
		alice.expect("[SERVER] USERLIST Alice:1 Bob:0 Carol:0 Dave:0")

		bob := h.connect()
		bob.login("Bob")
		alice.expect("[SERVER] USER_JOINED Bob", "[SERVER] USERLIST Alice:1 Bob:1 Carol:0 Dave:0")

		require.NoError(t, bob.conn.Close())
		alice.expect("[SERVER] USER_LEFT Bob", "[SERVER] USERLIST Alice:1 Bob:0 Carol:0 Dave:0")
		require.Eventually(t, func() bool { return h.mgr.Registry().Len() == 1 }, ioTimeout, 10*time.Millisecond)
	})
}

func TestSession_StoreFailure(t *testing.T) {
	t.Run("should report the failure and still broadcast", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		st := mocks.NewMockStore(ctrl)

		st.EXPECT().LookupByCredentials(gomock.Any(), "Alice", "pw").Return(user.Account{Username: "Alice"}, nil)
		st.EXPECT().FetchRecentHistory(gomock.Any(), "Alice", 50).Return(nil, nil)
		st.EXPECT().ListAllUsernames(gomock.Any()).Return([]string{"Alice"}, nil).AnyTimes()
		st.EXPECT().AppendMessage(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

		h := newHarnessWithStore(t, st, nil)

		alice := h.connect()
		alice.login("Alice")
		alice.expect("[SERVER] USERLIST Alice:1")

		alice.send("hello")
		alice.expect("[SERVER] ERROR StoreError")

		require.Eventually(t, func() bool {
			return len(h.mgr.Broadcaster().History()) == 1
		}, ioTimeout, 10*time.Millisecond)
	})
}

// wrongCode returns a six-digit code different from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
