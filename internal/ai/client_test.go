package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "test-model", payload["model"])

		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReviewFeedback_Passed(t *testing.T) {
	srv := completionServer(t, http.StatusOK, `{"passed": true, "reasons": []}`)
	c := NewClient(srv.URL, "test-model", "key")

	v, err := c.ReviewFeedback(context.Background(), "текст", []string{"a", "b"})
	require.NoError(t, err)
	assert.True(t, v.Passed)
}

func TestReviewFeedback_MarkdownWrapped(t *testing.T) {
	srv := completionServer(t, http.StatusOK, "Вот результат:\n```json\n{\"passed\": false, \"reasons\": [\"generic_text\"]}\n```")
	c := NewClient(srv.URL+"/", "test-model", "key")

	v, err := c.ReviewFeedback(context.Background(), "текст", nil)
	require.NoError(t, err)
	assert.False(t, v.Passed)
	assert.Equal(t, []string{"generic_text"}, v.Reasons)
}

func TestReviewFeedback_Unparseable(t *testing.T) {
	srv := completionServer(t, http.StatusOK, "отчёт выглядит хорошо")
	c := NewClient(srv.URL, "test-model", "key")

	_, err := c.ReviewFeedback(context.Background(), "текст", nil)
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestReviewFeedback_MissingVerdict(t *testing.T) {
	srv := completionServer(t, http.StatusOK, `{"reasons": ["x"]}`)
	c := NewClient(srv.URL, "test-model", "key")

	_, err := c.ReviewFeedback(context.Background(), "текст", nil)
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestReviewFeedback_HTTPError(t *testing.T) {
	srv := completionServer(t, http.StatusBadGateway, "")
	c := NewClient(srv.URL, "test-model", "key")

	_, err := c.ReviewFeedback(context.Background(), "текст", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestReviewFeedback_NoBaseURL(t *testing.T) {
	_, err := NewClient("", "", "").ReviewFeedback(context.Background(), "текст", nil)
	assert.Error(t, err)
}
