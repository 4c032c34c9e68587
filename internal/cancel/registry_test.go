package cancel

import (
	"os/exec"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/autoclip/internal/models"
)

func TestRegistry_SignalRegistered(t *testing.T) {
	r := NewRegistry()
	id := models.NewULID()
	h := r.Register(id, "user-1")

	assert.False(t, h.Requested())
	assert.True(t, r.Signal(id))
	assert.True(t, h.Requested())

	select {
	case <-h.Done():
	default:
		t.Fatal("done channel should be closed after signal")
	}
}

func TestRegistry_SignalUnknown(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Signal(models.NewULID()))
}

func TestRegistry_SignalIdempotent(t *testing.T) {
	r := NewRegistry()
	id := models.NewULID()
	h := r.Register(id, "u")

	assert.True(t, r.Signal(id))
	assert.True(t, r.Signal(id))
	assert.NotPanics(t, h.Signal)
	assert.True(t, h.Requested())
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	id := models.NewULID()
	r.Register(id, "u")
	require.Equal(t, 1, r.Len())

	r.Clear(id)
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Signal(id))

	_, ok := r.Get(id)
	assert.False(t, ok)

	assert.NotPanics(t, func() { r.Clear(models.NewULID()) })
}

func TestRegistry_SignalRequester(t *testing.T) {
	r := NewRegistry()
	id := models.NewULID()
	h := r.Register(id, "alice")
	r.Register(models.NewULID(), "bob")

	got, ok := r.SignalRequester("alice")
	require.True(t, ok)
	assert.Equal(t, id, got)
	assert.True(t, h.Requested())

	_, ok = r.SignalRequester("carol")
	assert.False(t, ok)
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	ids := make([]models.ULID, 50)
	for i := range ids {
		ids[i] = models.NewULID()
		r.Register(ids[i], "u")
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Signal(id)
		}()
		go func() {
			defer wg.Done()
			r.Clear(id)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}

func TestHandle_KillTerminatesAttachedProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX sleep binary")
	}

	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())

	h := newHandle(models.NewULID(), "u")
	h.Attach(cmd.Process)
	h.Attach(nil)

	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()

	h.Kill()

	select {
	case err := <-waited:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("process was not killed")
	}

	assert.NotPanics(t, h.Kill)
}
