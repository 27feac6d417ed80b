package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestNew_Defaults(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestContextFields(t *testing.T) {
	assert.Empty(t, Fields(context.Background()))

	ctx := ContextWith(context.Background(), "req-1", "", "ship-1")
	fields := Fields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "request_id", fields[0].Key)
	assert.Equal(t, "req-1", fields[0].String)
	assert.Equal(t, "ship", fields[1].Key)
	assert.Equal(t, "ship-1", fields[1].String)

	assert.NotNil(t, WithContext(ctx))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewNop()
	assert.Same(t, l, OrNop(l))
}
