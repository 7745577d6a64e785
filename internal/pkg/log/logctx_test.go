package log

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Тесты для internal/pkg/log.
//
// Покрытие:
//  - From без логгера в контексте -> slog.Default();
//  - Into/From round-trip;
//  - устойчивость к «мусорным» значениям по ключу;
//  - With добавляет атрибуты, не трогая родительский контекст;
//  - Detach сохраняет логгер и отвязывает отмену.
//
// Тесты меняют slog.Default(), поэтому t.Parallel() не используется.

func newSilent() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFrom_ReturnsDefault_WhenNoLoggerInContext(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })

	def := newSilent()
	slog.SetDefault(def)

	require.Equal(t, def, From(context.Background()))
}

func TestIntoAndFrom_RoundTrip(t *testing.T) {
	l := newSilent()
	ctx := Into(context.Background(), l)

	require.Equal(t, l, From(ctx))
}

func TestFrom_ReturnsDefault_WhenStoredValueIsWrongTypeOrNil(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })

	def := newSilent()
	slog.SetDefault(def)

	ctx := context.WithValue(context.Background(), ctxKey{}, "garbage")
	require.Equal(t, def, From(ctx))

	var nilLogger *slog.Logger
	ctx = Into(context.Background(), nilLogger)
	require.Equal(t, def, From(ctx))
}

func TestWith_DerivesChildLogger(t *testing.T) {
	base := newSilent()
	parent := Into(context.Background(), base)

	child := With(parent, "actor_id", int64(7))

	require.Equal(t, base, From(parent), "родительский контекст не должен меняться")
	require.NotEqual(t, base, From(child))
}

func TestDetach_KeepsLoggerDropsCancel(t *testing.T) {
	l := newSilent()
	ctx, cancel := context.WithTimeout(Into(context.Background(), l), time.Millisecond)
	cancel()

	detached := Detach(ctx)

	require.Equal(t, l, From(detached))
	require.NoError(t, detached.Err())
	_, hasDeadline := detached.Deadline()
	require.False(t, hasDeadline)
}
