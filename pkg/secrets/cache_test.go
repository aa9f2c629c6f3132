package secrets

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutGet(t *testing.T) {
	c := NewCache[string](time.Minute)
	c.Put("payout", "key-1")

	v, ok := c.Get("payout")
	require.True(t, ok)
	assert.Equal(t, "key-1", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	c := NewCache[int](10 * time.Millisecond)
	c.Put("k", 1)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_Bust(t *testing.T) {
	c := NewCache[int](time.Minute)
	c.Put("k", 1)
	c.Bust("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_Cleaner(t *testing.T) {
	c := NewCache[int](5 * time.Millisecond)
	c.Put("a", 1)
	c.Put("b", 2)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		c.StartCleaner(5*time.Millisecond, stop)
		close(done)
	}()

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	close(stop)
	<-done
}

func TestStaticProvider(t *testing.T) {
	p := StaticProvider{"ledger/payout": {"api_key": "abc"}}

	s, err := p.GetSecret(context.Background(), "ledger/payout")
	require.NoError(t, err)
	assert.Equal(t, "abc", s["api_key"])

	s["api_key"] = "mutated"
	again, _ := p.GetSecret(context.Background(), "ledger/payout")
	assert.Equal(t, "abc", again["api_key"], "callers get a copy")

	_, err = p.GetSecret(context.Background(), "other")
	assert.Error(t, err)
}
