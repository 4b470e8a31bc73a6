package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sejongpeer/studybuddy/internal/config"
	"github.com/sejongpeer/studybuddy/internal/store"
	"github.com/sejongpeer/studybuddy/internal/testutil"
)

func TestNewLocker(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "buddy.db"))
	require.NoError(t, err)
	defer st.Close()
	clk := testutil.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	t.Run("mutex", func(t *testing.T) {
		cfg := config.Default()
		l, err := newLocker(cfg, st, clk)
		require.NoError(t, err)
		assert.Equal(t, "local", lockHolder(l))
	})

	t.Run("lease runs as host and pid", func(t *testing.T) {
		cfg := config.Default()
		cfg.Lock = config.LockLease
		l, err := newLocker(cfg, st, clk)
		require.NoError(t, err)

		host, err := os.Hostname()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("%s:%d", host, os.Getpid()), lockHolder(l))

		release, ok, err := l.Acquire(context.Background(), "matching")
		require.NoError(t, err)
		require.True(t, ok)
		defer release()

		_, ok, err = l.Acquire(context.Background(), "matching")
		require.NoError(t, err)
		assert.False(t, ok, "one process must not run two ticks of the same procedure")
	})

	t.Run("unknown mode", func(t *testing.T) {
		cfg := config.Default()
		cfg.Lock = "flock"
		_, err := newLocker(cfg, st, clk)
		assert.Error(t, err)
	})
}
