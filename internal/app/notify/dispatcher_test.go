package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"linechat/internal/mocks"
)

func TestDispatcher(t *testing.T) {
	t.Run("should deliver queued codes from the worker", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		notifier := mocks.NewMockNotifier(ctrl)

		delivered := make(chan string, 1)
		notifier.EXPECT().
			SendCode(gomock.Any(), "alice@example.com", "123456").
			DoAndReturn(func(ctx context.Context, email, code string) error {
				delivered <- code
				return nil
			}).
			Times(1)

		d := NewDispatcher(notifier, DispatcherConfig{})
		defer d.Close()

		require.True(t, d.Dispatch("register", "alice@example.com", "123456"))

		select {
		case code := <-delivered:
			require.Equal(t, "123456", code)
		case <-time.After(2 * time.Second):
			t.Fatal("code was not delivered")
		}
	})

	t.Run("should report failures without surfacing them to the caller", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		notifier := mocks.NewMockNotifier(ctrl)
		sendErr := errors.New("relay down")

		notifier.EXPECT().SendCode(gomock.Any(), gomock.Any(), gomock.Any()).Return(sendErr).Times(1)

		results := make(chan error, 1)
		d := NewDispatcher(notifier, DispatcherConfig{
			OnResult: func(flow string, err error) { results <- err },
		})
		defer d.Close()

		require.True(t, d.Dispatch("login", "bob@example.com", "000001"))

		select {
		case err := <-results:
			require.ErrorIs(t, err, sendErr)
		case <-time.After(2 * time.Second):
			t.Fatal("no delivery result")
		}
	})

	t.Run("should drop codes when the queue is full instead of blocking", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		notifier := mocks.NewMockNotifier(ctrl)

		release := make(chan struct{})
		notifier.EXPECT().
			SendCode(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, email, code string) error {
				<-release
				return nil
			}).
			AnyTimes()

		d := NewDispatcher(notifier, DispatcherConfig{QueueSize: 1})

		accepted := 0
		for n := 0; n < 10; n++ {
			if d.Dispatch("register", "carol@example.com", "111111") {
				accepted++
			}
		}
		require.Less(t, accepted, 10)
		require.GreaterOrEqual(t, accepted, 1)

		close(release)
		d.Close()
	})

	t.Run("should refuse codes after close", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		d := NewDispatcher(mocks.NewMockNotifier(ctrl), DispatcherConfig{})
		d.Close()
		d.Close()

		require.False(t, d.Dispatch("register", "dave@example.com", "222222"))
	})
}
