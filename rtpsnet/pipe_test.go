package rtpsnet

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/rtps/types"
)

func TestPipeDeliversToRegisteredHandler(t *testing.T) {
	net := NewNetwork()
	a := net.NewPipe(types.Locator{Port: 1})
	b := net.NewPipe(types.Locator{Port: 2})

	var mu sync.Mutex
	var got []byte
	b.SetHandler(func(data []byte) {
		mu.Lock()
		got = data
		mu.Unlock()
	})

	require.NoError(t, a.SendTo(b.Locator(), []byte("payload")))
	mu.Lock()
	require.Equal(t, "payload", string(got))
	mu.Unlock()
}

func TestPipeSendToUnregisteredLocatorIsNoop(t *testing.T) {
	net := NewNetwork()
	a := net.NewPipe(types.Locator{Port: 1})
	require.NoError(t, a.SendTo(types.Locator{Port: 99}, []byte("x")))
}

func TestPipeDropsPerLossPercent(t *testing.T) {
	net := NewNetwork()
	net.LossPercent = 100
	a := net.NewPipe(types.Locator{Port: 1})
	b := net.NewPipe(types.Locator{Port: 2})

	count := 0
	var mu sync.Mutex
	b.SetHandler(func(data []byte) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	for i := 0; i < 10; i++ {
		require.NoError(t, a.SendTo(b.Locator(), []byte("x")))
	}
	mu.Lock()
	require.Equal(t, 0, count)
	mu.Unlock()
}

func TestPipeReorderDelayEventuallyDelivers(t *testing.T) {
	net := NewNetwork()
	net.ReorderDelay = 20 * time.Millisecond
	a := net.NewPipe(types.Locator{Port: 1})
	b := net.NewPipe(types.Locator{Port: 2})

	var mu sync.Mutex
	delivered := false
	b.SetHandler(func(data []byte) {
		mu.Lock()
		delivered = true
		mu.Unlock()
	})

	require.NoError(t, a.SendTo(b.Locator(), []byte("x")))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered
	}, time.Second, 5*time.Millisecond)
}
