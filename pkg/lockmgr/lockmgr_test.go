package lockmgr

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLock_SerializesWriters(t *testing.T) {
	m := New()

	const workers = 20
	counter := 0

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithLock("some/file.md", func() error {
				// Non-atomic increment; only correct when serialized.
				v := counter
				counter = v + 1
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
}

func TestWithLock_ReleasesEntries(t *testing.T) {
	m := New()

	err := m.WithLock("a.md", func() error { return nil })
	require.NoError(t, err)

	assert.Equal(t, 0, m.Len(), "lock entries should be dropped when unreferenced")
}

func TestWithLock_DistinctPathsDoNotBlock(t *testing.T) {
	m := New()

	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = m.WithLock("one.md", func() error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started

	// A different path must not queue behind "one.md".
	done := make(chan struct{})
	go func() {
		_ = m.WithLock("two.md", func() error { return nil })
		close(done)
	}()

	<-done
	close(release)
}

func TestWithLock_SamePathDifferentSpelling(t *testing.T) {
	m := New()

	count := 0
	var wg sync.WaitGroup
	for _, p := range []string{"dir/../file.md", "file.md", "./file.md"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.WithLock(p, func() error {
				v := count
				count = v + 1
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, count)
}
