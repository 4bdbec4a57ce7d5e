package embed

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTrip func(*http.Request) *http.Response

func (rt roundTrip) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt(req), nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestClientEmbed(t *testing.T) {
	client := &Client{
		BaseURL: "https://api.test/v1/embeddings",
		APIKey:  "secret",
		Model:   "mini",
		HTTPClient: &http.Client{
			Transport: roundTrip(func(req *http.Request) *http.Response {
				assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
				var in embedRequest
				require.NoError(t, json.NewDecoder(req.Body).Decode(&in))
				assert.Equal(t, "mini", in.Model)
				assert.Equal(t, []string{"first", "second"}, in.Input)
				// Out of order on purpose: the index decides placement.
				return jsonResponse(200, `{"data":[
					{"index":1,"embedding":[0,2]},
					{"index":0,"embedding":[3,4]}
				]}`)
			}),
		},
	}

	vecs, err := client.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.InDeltaSlice(t, []float64{0.6, 0.8}, vecs[0], 1e-9)
	assert.InDeltaSlice(t, []float64{0, 1}, vecs[1], 1e-9)
	assert.Equal(t, "mini", client.Name())
}

func TestClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "api error", status: 200, body: `{"error":{"message":"overloaded"}}`, want: "overloaded"},
		{name: "http status", status: 503, body: `upstream down`, want: "http 503"},
		{name: "missing vector", status: 200, body: `{"data":[{"index":0,"embedding":[1]}]}`, want: "no vector for input 1"},
		{name: "bad index", status: 200, body: `{"data":[{"index":5,"embedding":[1]}]}`, want: "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &Client{
				BaseURL: "https://api.test/v1/embeddings",
				Model:   "mini",
				HTTPClient: &http.Client{Transport: roundTrip(func(*http.Request) *http.Response {
					return jsonResponse(tt.status, tt.body)
				})},
			}
			_, err := client.Embed(context.Background(), []string{"a", "b"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := (&Client{}).Embed(context.Background(), []string{"a"})
	assert.Error(t, err, "missing base URL must fail")
}

type countingModel struct {
	mu    sync.Mutex
	calls [][]string
	err   error
	delay time.Duration
}

func (m *countingModel) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), texts...))
	m.mu.Unlock()
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t)), 1}
	}
	return out, nil
}

func (m *countingModel) Name() string { return "counting" }
func (m *countingModel) Close() error { return nil }

func TestCachedOnlyForwardsMisses(t *testing.T) {
	inner := &countingModel{}
	cached, err := NewCached(inner, 16)
	require.NoError(t, err)

	first, err := cached.Embed(context.Background(), []string{"aa", "b", "aa"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"aa", "b"}}, inner.calls, "duplicates are forwarded once")
	assert.Equal(t, first[0], first[2])

	second, err := cached.Embed(context.Background(), []string{"b", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ccc"}, inner.calls[1])
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, 3, cached.Len())

	require.NoError(t, cached.Close())
	assert.Zero(t, cached.Len())
}

func TestCachedPropagatesErrors(t *testing.T) {
	cached, err := NewCached(&countingModel{err: errors.New("down")}, 4)
	require.NoError(t, err)

	_, err = cached.Embed(context.Background(), []string{"x"})
	assert.EqualError(t, err, "down")
	assert.Zero(t, cached.Len())
}

func TestBatched(t *testing.T) {
	inner := &countingModel{}
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}

	vecs, err := Batched(context.Background(), inner, texts, 2, time.Second)
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for i, v := range vecs {
		assert.Equal(t, float64(len(texts[i])), v[0], "row order must follow input")
	}
	assert.Len(t, inner.calls, 3)

	_, err = Batched(context.Background(), nil, texts, 2, time.Second)
	assert.Error(t, err)
}

func TestBatchedTimeout(t *testing.T) {
	slow := &countingModel{delay: time.Second}
	_, err := Batched(context.Background(), slow, []string{"a"}, 0, 10*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHashingDeterministic(t *testing.T) {
	h := NewHashing(64)
	ctx := context.Background()

	a, err := h.Embed(ctx, []string{"Ransomware hits hospitals", "ransomware hits hospitals", "football final tonight"})
	require.NoError(t, err)
	require.Len(t, a, 3)
	assert.Len(t, a[0], 64)

	b, err := h.Embed(ctx, []string{"Ransomware hits hospitals"})
	require.NoError(t, err)
	assert.Equal(t, a[0], b[0])

	assert.InDelta(t, 1.0, Cosine(a[0], a[1]), 1e-9, "case must not matter")
	assert.Greater(t, Cosine(a[0], a[1]), Cosine(a[0], a[2]))
	assert.Equal(t, "hashing-64", h.Name())
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float64{1, 1}, []float64{2, 2}), 1e-12)
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-12)
	assert.Zero(t, Cosine([]float64{0, 0}, []float64{1, 1}))
	assert.Zero(t, Cosine([]float64{1}, []float64{1, 1}))

	assert.InDelta(t, 1.0, MaxCosine([]float64{1, 0}, [][]float64{{0, 1}, {3, 0}}), 1e-12)
	assert.Zero(t, MaxCosine([]float64{1, 0}, nil))
	assert.Less(t, MaxCosine([]float64{1, 0}, [][]float64{{-1, 0}}), 0.0)
}
