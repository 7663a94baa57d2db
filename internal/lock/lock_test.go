package lock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalExcludesSecondHolder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewLocal()

	release, err := l.Acquire(ctx, "pipeline")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "pipeline")
	require.ErrorIs(t, err, ErrLocked)

	other, err := l.Acquire(ctx, "other")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))

	again, err := l.Acquire(ctx, "pipeline")
	require.NoError(t, err)
	assert.NoError(t, again(ctx))
}
