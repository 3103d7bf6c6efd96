package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, serverURL string, pageSize int) *Client {
	t.Helper()
	c := NewClient(Config{
		BaseURL:              serverURL,
		APIKey:               "test-key",
		Timeout:              2 * time.Second,
		PageSize:             pageSize,
		PageConcurrency:      3,
		MaxRetryElapsed:      300 * time.Millisecond,
		InitialRetryInterval: 10 * time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	t.Cleanup(c.Close)
	return c
}

// cardsHandler はtotal枚のカードをページングして返すテスト用ハンドラー。
func cardsHandler(t *testing.T, setID string, total int, hits *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if r.URL.Path != "/cards" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		pageNum, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

		data := []map[string]string{}
		if r.URL.Query().Get("q") == "set.id:"+setID {
			for i := (pageNum-1)*pageSize + 1; i <= pageNum*pageSize && i <= total; i++ {
				data = append(data, map[string]string{
					"id":     fmt.Sprintf("%s-%d", setID, i),
					"name":   fmt.Sprintf("Card %d", i),
					"number": strconv.Itoa(i),
				})
			}
		}
		totalCount := total
		if r.URL.Query().Get("q") != "set.id:"+setID {
			totalCount = 0
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data":       data,
			"page":       pageNum,
			"pageSize":   pageSize,
			"count":      len(data),
			"totalCount": totalCount,
		})
	}
}

func TestClient_ListCards_SinglePage(t *testing.T) {
	srv := httptest.NewServer(cardsHandler(t, "sv3pt5", 3, nil))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 250)
	cards, err := c.ListCards(context.Background(), "sv3pt5")
	require.NoError(t, err)
	require.Len(t, cards, 3)
	assert.Equal(t, "sv3pt5-1", cards[0].ExternalCardID)
	assert.Equal(t, "Card 1", cards[0].Name)
	assert.Equal(t, "1", cards[0].Number)
}

func TestClient_ListCards_ConcatenatesPagesInOrder(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(cardsHandler(t, "sv3pt5", 23, &hits))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 5)
	cards, err := c.ListCards(context.Background(), "sv3pt5")
	require.NoError(t, err)
	require.Len(t, cards, 23)

	for i, card := range cards {
		assert.Equal(t, fmt.Sprintf("sv3pt5-%d", i+1), card.ExternalCardID, "ページ順が保たれるべき")
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(&hits))
}

func TestClient_ListCards_EmptySetIsNotFound(t *testing.T) {
	srv := httptest.NewServer(cardsHandler(t, "sv3pt5", 3, nil))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 250)

	_, err := c.ListCards(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.ListCards(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_ListCards_RetriesTransientErrors(t *testing.T) {
	var calls int32
	ok := cardsHandler(t, "sv3pt5", 2, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			ok(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 250)
	cards, err := c.ListCards(context.Background(), "sv3pt5")
	require.NoError(t, err)
	assert.Len(t, cards, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_ListCards_UnavailableAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 250)
	_, err := c.ListCards(context.Background(), "sv3pt5")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_ListCards_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url, 250)
	_, err := c.ListCards(context.Background(), "sv3pt5")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_ListCards_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 250)
	_, err := c.ListCards(context.Background(), "sv3pt5")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_ListCards_FailedLaterPageFailsWhole(t *testing.T) {
	ok := cardsHandler(t, "sv3pt5", 12, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		ok(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 5)
	cards, err := c.ListCards(context.Background(), "sv3pt5")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Nil(t, cards)
}

func TestClient_ListCards_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 250)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListCards(ctx, "sv3pt5")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestClient_ListSets_FiltersAndOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sets", r.URL.Path)
		assert.Equal(t, "-releaseDate", r.URL.Query().Get("orderBy"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"data": [
				{"id": "base1", "name": "Base", "series": "Base", "total": 102, "releaseDate": "1999/01/09"},
				{"id": "sv3pt5", "name": "151", "series": "Scarlet & Violet", "total": 207, "releaseDate": "2023/09/22"},
				{"id": "base2", "name": "Jungle", "series": "Base", "total": 64, "releaseDate": "1999/06/16"}
			],
			"page": 1, "pageSize": 250, "count": 3, "totalCount": 3
		}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 250)

	t.Run("フィルタなしは発売日の新しい順", func(t *testing.T) {
		sets, err := c.ListSets(context.Background(), "")
		require.NoError(t, err)
		require.Len(t, sets, 3)
		assert.Equal(t, "sv3pt5", sets[0].ExternalID)
		assert.Equal(t, "base2", sets[1].ExternalID)
		assert.Equal(t, "base1", sets[2].ExternalID)
		assert.Equal(t, 207, sets[0].TotalCount)
		assert.Equal(t, "Scarlet & Violet", sets[0].Series)
	})

	t.Run("大文字小文字を区別しない部分一致", func(t *testing.T) {
		sets, err := c.ListSets(context.Background(), "JUNG")
		require.NoError(t, err)
		require.Len(t, sets, 1)
		assert.Equal(t, "base2", sets[0].ExternalID)
	})

	t.Run("一致なしは空スライス", func(t *testing.T) {
		sets, err := c.ListSets(context.Background(), "nothing")
		require.NoError(t, err)
		assert.NotNil(t, sets)
		assert.Empty(t, sets)
	})
}

func TestClient_OmitsAPIKeyWhenUnset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header["X-Api-Key"]
		assert.False(t, present)
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "cardbinder/"))
		io.WriteString(w, `{"data": [], "page": 1, "pageSize": 250, "count": 0, "totalCount": 0}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", MaxRetryElapsed: time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	defer c.Close()

	sets, err := c.ListSets(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, sets)
}
