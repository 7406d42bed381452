package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyStableAndSkipsEmpty(t *testing.T) {
	a := Key(map[string]string{"sort": "trending", "category": "justice", "page": "2", "q": ""})
	b := Key(map[string]string{"page": "2", "q": "", "category": "justice", "sort": "trending"})
	assert.Equal(t, a, b)
	assert.Equal(t, "category=justice&page=2&sort=trending", a)
}

func TestNilCacheIsNoOp(t *testing.T) {
	var c *ListingCache
	ctx := context.Background()
	assert.Nil(t, c.Get(ctx, "k"))
	c.Set(ctx, "k", []byte("payload")) // must not panic
}
