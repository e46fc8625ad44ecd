//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "bar", got["foo"])
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusNotFound, "transcript not found")

	resp := w.Result()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var got map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "transcript not found", got["error"])
}

func TestSplitChunksConcatenatesBack(t *testing.T) {
	for _, text := range []string{"", "one", "We're open 9-5", "trailing space ", "  double"} {
		chunks := splitChunks(text)
		joined := ""
		for _, c := range chunks {
			assert.NotEmpty(t, c)
			joined += c
		}
		assert.Equal(t, text, joined)
	}
	assert.Equal(t, []string{"We're ", "open ", "9-5"}, splitChunks("We're open 9-5"))
}
