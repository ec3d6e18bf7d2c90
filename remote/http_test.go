package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestClient(t *testing.T, h http.HandlerFunc, opts ...ClientOption) *client {
	t.Helper()
	s := httptest.NewServer(h)
	t.Cleanup(s.Close)

	opts = append([]ClientOption{
		WithBaseURL(s.URL),
		WithHttpClient(s.Client()),
		WithSpacing(time.Millisecond),
	}, opts...)
	return New("testtoken", opts...).(*client)
}

func TestRequestHeaders(t *testing.T) {
	c := createTestClient(t, func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer testtoken", r.Header.Get("Authorization"))
		assert.Equal(t, apiVersion, r.Header.Get("Notion-Version"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "/test", r.URL.Path)
		rw.WriteHeader(http.StatusOK)
	})

	r, err := c.request(context.Background(), http.MethodPatch, "/test", map[string]string{"hello": "world"})
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.False(t, r.HasError())
}

func TestRequestPacing(t *testing.T) {
	var mu sync.Mutex
	var seen []time.Time
	c := createTestClient(t, func(rw http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, time.Now())
		mu.Unlock()
		rw.WriteHeader(http.StatusOK)
	}, WithSpacing(time.Millisecond*120))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := c.request(context.Background(), http.MethodGet, "/", nil)
			assert.NoError(t, err)
			r.Body.Close()
		}()
	}
	wg.Wait()

	require.Len(t, seen, 3)
	for i := 1; i < len(seen); i++ {
		gap := seen[i].Sub(seen[i-1])
		assert.GreaterOrEqual(t, gap, time.Millisecond*90, "dispatch gap %d was %s", i, gap)
	}
}

func TestRequestRateLimitRetry(t *testing.T) {
	t.Run("respects the Retry-After header", func(t *testing.T) {
		var calls int
		var bodies []string
		c := createTestClient(t, func(rw http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			bodies = append(bodies, string(b))
			calls++
			if calls == 1 {
				rw.Header().Set("Retry-After", "1")
				rw.WriteHeader(http.StatusTooManyRequests)
				return
			}
			rw.WriteHeader(http.StatusOK)
		})

		start := time.Now()
		r, err := c.request(context.Background(), http.MethodPatch, "/test", map[string]string{"k": "v"})
		require.NoError(t, err)
		defer r.Body.Close()

		assert.Equal(t, http.StatusOK, r.StatusCode)
		assert.Equal(t, 2, calls)
		assert.GreaterOrEqual(t, time.Since(start), time.Second)
		// The re-issued request must be byte identical to the original.
		require.Len(t, bodies, 2)
		assert.Equal(t, bodies[0], bodies[1])
	})

	t.Run("falls back to the configured delay without a header", func(t *testing.T) {
		var calls int
		c := createTestClient(t, func(rw http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				rw.WriteHeader(http.StatusTooManyRequests)
				return
			}
			rw.WriteHeader(http.StatusOK)
		}, WithRetryFallback(time.Millisecond*150))

		start := time.Now()
		r, err := c.request(context.Background(), http.MethodGet, "/", nil)
		require.NoError(t, err)
		r.Body.Close()

		assert.Equal(t, 2, calls)
		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, time.Millisecond*150)
		assert.Less(t, elapsed, time.Second)
	})

	t.Run("gives up when the context is canceled", func(t *testing.T) {
		c := createTestClient(t, func(rw http.ResponseWriter, r *http.Request) {
			rw.Header().Set("Retry-After", "30")
			rw.WriteHeader(http.StatusTooManyRequests)
		})

		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*100)
		defer cancel()

		_, err := c.request(ctx, http.MethodGet, "/", nil)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestRequestHardError(t *testing.T) {
	c := createTestClient(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusBadRequest)
		_, _ = rw.Write([]byte(`{"object":"error","status":400,"code":"validation_error","message":"body failed validation"}`))
	})

	_, err := c.AppendBlockChildren(context.Background(), "parent", []Block{NewParagraph(Text("x"))})
	require.Error(t, err)

	v := AsRequestError(err)
	require.NotNil(t, v)
	assert.Equal(t, http.StatusBadRequest, v.StatusCode())
	assert.Equal(t, "validation_error", v.Code)
	assert.Contains(t, v.Error(), "body failed validation")
}

func TestAppendBlockChildren(t *testing.T) {
	c := createTestClient(t, func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/blocks/parent/children", r.URL.Path)
		_, _ = rw.Write([]byte(`{"object":"list","results":[{"object":"block","id":"created-id","type":"quote"}]}`))
	})

	out, err := c.AppendBlockChildren(context.Background(), "parent", []Block{NewQuote([]RichText{BoldText("t")})})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
}

func TestGetBlockChildren(t *testing.T) {
	c := createTestClient(t, func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "100", r.URL.Query().Get("page_size"))
		_, _ = rw.Write([]byte(`{"object":"list","results":[],"has_more":false}`))
	})

	out, err := c.GetBlockChildren(context.Background(), "parent", 100)
	require.NoError(t, err)
	assert.Empty(t, out.Results)
	assert.False(t, out.HasMore)
}

func TestDeleteBlock(t *testing.T) {
	c := createTestClient(t, func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/blocks/some-block", r.URL.Path)
		rw.WriteHeader(http.StatusOK)
	})

	assert.NoError(t, c.DeleteBlock(context.Background(), "some-block"))
}
