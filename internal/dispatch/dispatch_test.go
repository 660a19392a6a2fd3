package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/sylogd/agent/internal/core"
	"github.com/sylogd/agent/internal/metrics"
)

func TestDispatcher_InvokesAllSinksInOrder(t *testing.T) {
	var order []int
	s1 := core.SinkFunc(func(ctx context.Context, e core.SyslogEvent) error {
		order = append(order, 1)
		return nil
	})
	s2 := core.SinkFunc(func(ctx context.Context, e core.SyslogEvent) error {
		order = append(order, 2)
		return nil
	})

	d := New(logrus.New(), metrics.NewCounters("test-dispatch-order"), s1, s2)
	d.Dispatch(context.Background(), core.SyslogEvent{Message: "hi"})

	assert.Equal(t, []int{1, 2}, order)
}

func TestDispatcher_SuppressesSinkFaultAndContinues(t *testing.T) {
	var secondCalled bool
	failing := core.SinkFunc(func(ctx context.Context, e core.SyslogEvent) error {
		return errors.New("boom")
	})
	ok := core.SinkFunc(func(ctx context.Context, e core.SyslogEvent) error {
		secondCalled = true
		return nil
	})

	d := New(logrus.New(), metrics.NewCounters("test-dispatch-fault"), failing, ok)
	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), core.SyslogEvent{})
	})
	assert.True(t, secondCalled)
}

func TestDispatcher_RegisterAppends(t *testing.T) {
	var called bool
	d := New(logrus.New(), metrics.NewCounters("test-dispatch-register"))
	d.Register(core.SinkFunc(func(ctx context.Context, e core.SyslogEvent) error {
		called = true
		return nil
	}))
	d.Dispatch(context.Background(), core.SyslogEvent{})
	assert.True(t, called)
}
