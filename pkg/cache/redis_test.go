package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeys(t *testing.T) {
	c := &RedisCache{prefix: "gopredict"}
	assert.Equal(t, "gopredict:snapshot:tradebook", c.wrapKey("snapshot:tradebook"))
	assert.Equal(t, []string{"gopredict:a", "gopredict:b"}, c.wrapKeys("a", "b"))
}

func TestEncode(t *testing.T) {
	b, err := encode("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	b, err = encode(map[string]int{"v": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(b))
}

func TestGenerateKeyWithParams(t *testing.T) {
	assert.Equal(t, "snapshot:dailyPredictions:3", GenerateKeyWithParams("snapshot", "dailyPredictions", 3))
}
