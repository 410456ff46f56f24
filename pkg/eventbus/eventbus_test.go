package eventbus

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type args struct {
	data interface{}
}

func quietLogger(buf *bytes.Buffer, level logrus.Level) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(buf)
	log.SetLevel(level)
	return log
}

func TestPublisher_Subscribe(t *testing.T) {
	publisher := NewEventPublisher(logrus.New())
	called := false
	var data interface{}
	publisher.Subscribe(func(e *args) {
		called = true
		data = e.data
	})
	publisher.Publish(&args{data: "test"})

	require.True(t, called)
	require.Equal(t, "test", data)
}

func TestPublisher_SkipsNonMatching(t *testing.T) {
	type other struct{}
	publisher := NewEventPublisher(logrus.New())
	publisher.Subscribe(func(e *args) {
		t.Error("should not be called")
	})
	publisher.Publish(&other{})
}

func TestMatchSignature(t *testing.T) {
	type a struct{}
	type b struct{}

	require.True(t, MatchSignature(func(e *a) {}, []interface{}{&a{}}))
	require.False(t, MatchSignature(func(e *a) {}, []interface{}{&b{}}))
	require.False(t, MatchSignature(func(e *a) {}, []interface{}{}))
	require.False(t, MatchSignature(func(e *a) {}, []interface{}{&a{}, &a{}}))
	require.True(t, MatchSignature(func(ctx context.Context) {}, []interface{}{context.Background()}))
	require.True(t, MatchSignature(func(e *a) {}, []interface{}{nil}))
}

func TestPublisher_PanicRecovery(t *testing.T) {
	var buf bytes.Buffer
	publisher := NewEventPublisher(quietLogger(&buf, logrus.ErrorLevel))
	publisher.Subscribe(func(e *args) {
		panic("intentional panic for testing")
	})

	require.NotPanics(t, func() { publisher.Publish(&args{data: "test"}) })
	require.True(t, strings.Contains(buf.String(), "intentional panic for testing"))
}

func TestPublisher_PublishE(t *testing.T) {
	t.Run("no subscribers", func(t *testing.T) {
		publisher := NewEventPublisher(logrus.New())
		require.ErrorIs(t, publisher.PublishE(&args{}), ErrNoSubscribers)
	})

	t.Run("collects handler errors", func(t *testing.T) {
		publisher := NewEventPublisher(logrus.New())
		boom := errors.New("boom")
		publisher.Subscribe(func(e *args) error { return boom })
		publisher.Subscribe(func(e *args) error { return nil })
		require.ErrorIs(t, publisher.PublishE(&args{}), boom)
	})

	t.Run("rejects invalid return type", func(t *testing.T) {
		publisher := NewEventPublisher(logrus.New())
		publisher.Subscribe(func(e *args) int { return 1 })
		require.ErrorIs(t, publisher.PublishE(&args{}), ErrInvalidHandlerReturn)
	})
}

func TestPublisher_Unsubscribe(t *testing.T) {
	publisher := NewEventPublisher(logrus.New())
	handler := func(e *args) {}
	publisher.Subscribe(handler)
	require.Equal(t, 1, publisher.SubscribersCount())

	publisher.Unsubscribe(handler)
	require.Equal(t, 0, publisher.SubscribersCount())
}

func TestPublisher_ConcurrentPublish(t *testing.T) {
	publisher := NewEventPublisher(logrus.New())
	var calls atomic.Int64
	publisher.Subscribe(func(e *args) { calls.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			publisher.Publish(&args{})
		}()
	}
	wg.Wait()
	require.EqualValues(t, 16, calls.Load())
}
