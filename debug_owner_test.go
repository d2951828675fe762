//go:build tardy_debug

package tardy

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntime_AssertOwnerPanicsOnCrossGoroutineSpawn(t *testing.T) {
	aio := &fakeAIO{}
	rt := newTestRuntime(t, aio)

	_, err := rt.Spawn(noopEntry)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var panicked bool
	go func() {
		defer wg.Done()
		defer func() {
			if recover() != nil {
				panicked = true
			}
		}()
		rt.Spawn(noopEntry)
	}()
	wg.Wait()
	assert.True(t, panicked, "Spawn from a second goroutine must panic once an owner is bound")
}
