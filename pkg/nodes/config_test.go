package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiredString(t *testing.T) {
	t.Parallel()

	s, err := RequiredString(map[string]any{"url": "https://example.com"}, "url")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", s)

	_, err = RequiredString(map[string]any{"url": ""}, "url")

	var configErr *ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "url", configErr.Field)
}

func TestStringMap(t *testing.T) {
	t.Parallel()

	got, err := StringMap(map[string]any{
		"headers": map[string]any{"X-Count": 3.0, "Accept": "application/json", "X-Flag": true},
	}, "headers")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"X-Count": "3", "Accept": "application/json", "X-Flag": "true"}, got)

	got, err = StringMap(map[string]any{}, "headers")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = StringMap(map[string]any{"headers": "nope"}, "headers")
	require.Error(t, err)

	_, err = StringMap(map[string]any{"headers": map[string]any{"X": []any{1}}}, "headers")
	require.Error(t, err)
}

func TestNumber(t *testing.T) {
	t.Parallel()

	for _, v := range []any{2.5, "2.5"} {
		n, ok := Number(map[string]any{"n": v}, "n")
		require.True(t, ok)
		assert.InDelta(t, 2.5, n, 0.0001)
	}

	n, ok := Number(map[string]any{"n": 4}, "n")
	require.True(t, ok)
	assert.InDelta(t, 4.0, n, 0.0001)

	_, ok = Number(map[string]any{"n": "abc"}, "n")
	assert.False(t, ok)
}
