package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dmitrymomot/actkit/core/logger"
	"github.com/stretchr/testify/assert"
)

func TestAttrHelpers(t *testing.T) {
	t.Parallel()

	t.Run("error", func(t *testing.T) {
		t.Parallel()

		err := errors.New("boom")
		a := logger.Error(err)
		assert.Equal(t, "error", a.Key)
		assert.Equal(t, err, a.Value.Any())
		assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
	})

	t.Run("errors skips nil", func(t *testing.T) {
		t.Parallel()

		a := logger.Errors(errors.New("one"), nil, errors.New("three"))
		assert.Equal(t, "errors", a.Key)
		group := a.Value.Group()
		if assert.Len(t, group, 2) {
			assert.Equal(t, "0", group[0].Key)
			assert.Equal(t, "2", group[1].Key)
		}
		assert.True(t, logger.Errors(nil, nil).Equal(slog.Attr{}))
	})

	t.Run("group", func(t *testing.T) {
		t.Parallel()

		a := logger.Group("req", slog.String("id", "1"), slog.Int("n", 2))
		assert.Equal(t, "req", a.Key)
		assert.Len(t, a.Value.Group(), 2)
	})

	t.Run("simple keys", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, "component", logger.Component("bus").Key)
		assert.Equal(t, "event", logger.Event("started").Key)
		assert.Equal(t, "command", logger.Command("ping").Key)
		assert.Equal(t, "action", logger.Action("send").Key)
		assert.Equal(t, "pattern", logger.Pattern("cmd:ping").Key)
		assert.Equal(t, "transport", logger.Transport("redis").Key)
		assert.Equal(t, "duration", logger.Duration(time.Second).Key)
		assert.Equal(t, time.Second, logger.Duration(time.Second).Value.Duration())
	})

	t.Run("empty values are dropped", func(t *testing.T) {
		t.Parallel()

		assert.True(t, logger.CorrelationID("").Equal(slog.Attr{}))
		assert.True(t, logger.Transport("").Equal(slog.Attr{}))
		assert.True(t, logger.Key("k", nil).Equal(slog.Attr{}))
		assert.Equal(t, "abc", logger.CorrelationID("abc").Value.String())
	})

	t.Run("elapsed", func(t *testing.T) {
		t.Parallel()

		a := logger.Elapsed(time.Now().Add(-time.Second))
		assert.Equal(t, "elapsed", a.Key)
		assert.GreaterOrEqual(t, a.Value.Duration(), time.Second)
	})

	t.Run("stack", func(t *testing.T) {
		t.Parallel()

		a := logger.Stack()
		assert.Equal(t, "stack", a.Key)
		assert.Contains(t, a.Value.String(), "TestAttrHelpers")
	})
}
