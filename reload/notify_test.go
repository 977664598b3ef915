package reload

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testNotifyBackendWrite(t *testing.T) {
	var (
		assert = assert.New(t)

		root = t.TempDir()
		path = filepath.Join(root, "watched.go")
	)

	writeFile(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 1)
	go NotifyBackend{}.Watch( //nolint:errcheck
		ctx,
		WatchSet{Roots: []string{root}},
		changed,
	)

	// give the watcher time to register before producing the event
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path)

	assert.Equal(path, awaitChange(t, changed))
}

func testNotifyBackendCreate(t *testing.T) {
	var (
		assert = assert.New(t)

		root = t.TempDir()
		path = filepath.Join(root, "appeared.go")
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 1)
	go NotifyBackend{}.Watch( //nolint:errcheck
		ctx,
		WatchSet{Roots: []string{root}},
		changed,
	)

	time.Sleep(100 * time.Millisecond)
	writeFile(t, path)

	assert.Equal(path, awaitChange(t, changed))
}

func testNotifyBackendExcluded(t *testing.T) {
	var (
		assert = assert.New(t)

		root = t.TempDir()
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 1)
	go NotifyBackend{}.Watch( //nolint:errcheck
		ctx,
		WatchSet{
			Roots:           []string{root},
			ExcludePatterns: []string{"*.log"},
		},
		changed,
	)

	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(root, "server.log"))

	select {
	case path := <-changed:
		assert.Fail("excluded file reported as changed", "path: %s", path)

	case <-time.After(500 * time.Millisecond):
		// nothing observed, as expected
	}
}

func TestNotifyBackend(t *testing.T) {
	t.Run("Write", testNotifyBackendWrite)
	t.Run("Create", testNotifyBackendCreate)
	t.Run("Excluded", testNotifyBackendExcluded)

	t.Run("Name", func(t *testing.T) {
		assert.Equal(t, BackendNotify, NotifyBackend{}.Name())
	})
}

func TestBackendFor(t *testing.T) {
	assert := assert.New(t)

	testCases := []struct {
		name     string
		expected string
	}{
		{"", BackendAuto},
		{BackendAuto, BackendAuto},
		{BackendStat, BackendStat},
		{BackendNotify, BackendNotify},
	}

	for _, testCase := range testCases {
		b, err := BackendFor(testCase.name, 0)
		assert.NoError(err)
		assert.Equal(testCase.expected, b.Name())
	}

	b, err := BackendFor("watchdog", 0)
	assert.Error(err)
	assert.Nil(b)
}
