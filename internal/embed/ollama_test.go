package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

func ollamaServer(t *testing.T, dims int, failFirst int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		case "/api/embed":
			n := calls.Add(1)
			if int(n) <= failFirst {
				http.Error(w, "model loading", http.StatusServiceUnavailable)
				return
			}
			var req ollamaEmbedRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			resp := ollamaEmbedResponse{Model: req.Model}
			for range req.Input {
				vec := make([]float32, dims)
				vec[0] = 3
				vec[1] = 4
				resp.Embeddings = append(resp.Embeddings, vec)
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestOllamaEmbedder_EmbedBatch(t *testing.T) {
	// Given: a server returning 8-dim vectors
	srv, calls := ollamaServer(t, 8, 0)
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Dimensions: 8, BatchSize: 2})
	defer func() { _ = e.Close() }()

	// When: embedding three texts and one blank
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", " ", "b", "c"})

	// Then: blanks skip the server, batches of two are sent, vectors are normalized
	require.NoError(t, err)
	require.Len(t, vecs, 4)
	assert.Equal(t, int64(2), calls.Load())
	assert.Zero(t, vectorMagnitude(vecs[1]))
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.InDelta(t, 0.8, vecs[0][1], 1e-6)
}

func TestOllamaEmbedder_RetriesTransientFailures(t *testing.T) {
	srv, calls := ollamaServer(t, 4, 2)
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Dimensions: 4, RetryDelay: time.Millisecond})

	vec, err := e.Embed(context.Background(), "hello")

	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, int64(3), calls.Load())
}

func TestOllamaEmbedder_DimensionMismatchIsNotRetried(t *testing.T) {
	srv, calls := ollamaServer(t, 16, 0)
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Dimensions: 8, RetryDelay: time.Millisecond})

	_, err := e.Embed(context.Background(), "hello")

	require.Error(t, err)
	assert.ErrorIs(t, err, amerrors.ErrUnsupported)
	assert.Equal(t, int64(1), calls.Load())
}

func TestOllamaEmbedder_Ping(t *testing.T) {
	srv, _ := ollamaServer(t, 4, 0)
	assert.NoError(t, NewOllamaEmbedder(OllamaConfig{Host: srv.URL}).Ping(context.Background()))

	err := NewOllamaEmbedder(OllamaConfig{Host: "http://127.0.0.1:1"}).Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeNetworkUnavailable, amerrors.GetCode(err))
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()

	e, err := NewFromConfig(ctx, Options{Provider: "static", Dimensions: 64})
	require.NoError(t, err)
	assert.Equal(t, 64, e.Dimensions())
	_, ok := e.(*CachedEmbedder)
	assert.True(t, ok)

	srv, _ := ollamaServer(t, 4, 0)
	e, err = NewFromConfig(ctx, Options{Provider: "ollama", OllamaHost: srv.URL, Dimensions: 4, Verify: true})
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", e.ModelName())

	_, err = NewFromConfig(ctx, Options{Provider: "openai"})
	assert.Error(t, err)
}
