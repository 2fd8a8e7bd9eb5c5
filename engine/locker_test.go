package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerIsExclusivePerKey(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlock, ok := l.TryLock(ctx, "execution:1", time.Minute)
	require.True(t, ok)

	_, ok = l.TryLock(ctx, "execution:1", time.Minute)
	assert.False(t, ok)

	_, ok2 := l.TryLock(ctx, "execution:2", time.Minute)
	assert.True(t, ok2)

	unlock()
	_, ok = l.TryLock(ctx, "execution:1", time.Minute)
	assert.True(t, ok)
}
