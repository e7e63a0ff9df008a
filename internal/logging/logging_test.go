package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithAddsAttributesToContextLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := ContextWithLogger(context.Background(), base)
	ctx = With(ctx, "user_id", "u-1")

	FromContextOr(ctx, nil).Info("hello")
	assert.Contains(t, buf.String(), "user_id=u-1")
}

func TestFromContextOrFallsBack(t *testing.T) {
	t.Parallel()

	fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, fallback, FromContextOr(context.Background(), fallback))
	assert.Same(t, slog.Default(), FromContextOr(context.Background(), nil))
	// With must not invent a logger
	assert.Nil(t, FromContext(With(context.Background(), "k", "v")))
}
