package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type counter struct{ N int }

func TestStore_UpdateNotifiesSynchronously(t *testing.T) {
	s := New(counter{})
	var seen []int
	s.Subscribe(func(c counter) { seen = append(seen, c.N) })

	s.Update(func(c *counter) { c.N++ })
	s.Update(func(c *counter) { c.N += 10 })

	require.Equal(t, []int{1, 11}, seen)
	require.Equal(t, 11, s.Get().N)
}

func TestStore_ObserversInSubscriptionOrder(t *testing.T) {
	s := New(counter{})
	var order []string
	s.Subscribe(func(counter) { order = append(order, "a") })
	s.Subscribe(func(counter) { order = append(order, "b") })

	s.Set(counter{N: 1})
	require.Equal(t, []string{"a", "b"}, order)
}

func TestStore_CancelStopsNotifications(t *testing.T) {
	s := New(counter{})
	calls := 0
	cancel := s.Subscribe(func(counter) { calls++ })

	s.Set(counter{N: 1})
	cancel()
	cancel()
	s.Set(counter{N: 2})

	require.Equal(t, 1, calls)
}

func TestStore_ObserverCanRead(t *testing.T) {
	s := New(counter{})
	var got int
	s.Subscribe(func(counter) { got = s.Get().N })

	s.Set(counter{N: 5})
	require.Equal(t, 5, got)
}

func TestStore_ConcurrentUpdatesAreSerialized(t *testing.T) {
	s := New(counter{})
	var last int
	s.Subscribe(func(c counter) {
		// Notifications arrive in mutation order, so values only grow.
		if c.N <= last {
			t.Errorf("out of order notification: %d after %d", c.N, last)
		}
		last = c.N
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(func(c *counter) { c.N++ })
		}()
	}
	wg.Wait()
	require.Equal(t, 50, s.Get().N)
}
