package akahu

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/budget-sync/internal/domain"
)

func TestWindowStart(t *testing.T) {
	wm := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC), WindowStart(wm))
	assert.Equal(t, domain.Epoch, WindowStart(time.Time{}))
}

func TestFetchSince_Pagination(t *testing.T) {
	tests := []struct {
		name      string
		pages     map[string]string
		wantIDs   []string
		wantCalls int32
	}{
		{
			name: "follows cursor until next is absent",
			pages: map[string]string{
				"":   `{"items":[{"_id":"t1"},{"_id":"t2"}],"cursor":{"next":"c2"}}`,
				"c2": `{"items":[{"_id":"t3"}],"cursor":{}}`,
			},
			wantIDs:   []string{"t1", "t2", "t3"},
			wantCalls: 2,
		},
		{
			name: "stops on empty page even with cursor",
			pages: map[string]string{
				"":   `{"items":[{"_id":"t1"}],"cursor":{"next":"c2"}}`,
				"c2": `{"items":[],"cursor":{"next":"c3"}}`,
			},
			wantIDs:   []string{"t1"},
			wantCalls: 2,
		},
		{
			name: "stops when cursor is missing",
			pages: map[string]string{
				"": `{"items":[{"_id":"t1"}]}`,
			},
			wantIDs:   []string{"t1"},
			wantCalls: 1,
		},
		{
			name: "stops when next is empty",
			pages: map[string]string{
				"": `{"items":[{"_id":"t1"}],"cursor":{"next":""}}`,
			},
			wantIDs:   []string{"t1"},
			wantCalls: 1,
		},
		{
			name: "stops when next is null",
			pages: map[string]string{
				"": `{"items":[{"_id":"t1"}],"cursor":{"next":null}}`,
			},
			wantIDs:   []string{"t1"},
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				assert.Equal(t, "/accounts/acc_1/transactions", r.URL.Path)
				assert.Equal(t, "2025-05-25T00:00:00Z", r.URL.Query().Get("start"))
				assert.Equal(t, "Bearer user", r.Header.Get("Authorization"))
				assert.Equal(t, "app", r.Header.Get("X-Akahu-Id"))
				body, ok := tt.pages[r.URL.Query().Get("cursor")]
				if !ok {
					t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
					w.WriteHeader(http.StatusNotFound)
					return
				}
				fmt.Fprint(w, body)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, map[string]string{"Authorization": "Bearer user", "X-Akahu-Id": "app"}, srv.Client())
			got, err := c.FetchSince(context.Background(), "acc_1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)

			var ids []string
			for _, tx := range got {
				ids = append(ids, tx.ID)
				assert.Equal(t, "acc_1", tx.AccountID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestFetchSince_FeedUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, srv.Client())
	got, err := c.FetchSince(context.Background(), "acc_1", time.Time{})

	assert.Nil(t, got)
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
	assert.ErrorContains(t, err, "429")
}

func TestFetchSince_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, nil, nil)
	_, err := c.FetchSince(context.Background(), "acc_1", time.Time{})
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
}

func TestBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/acc_2", r.URL.Path)
		fmt.Fprint(w, `{"success":true,"item":{"_id":"acc_2","name":"KiwiSaver","balance":{"current":10234.56,"currency":"NZD"}}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, srv.Client())
	bal, err := c.Balance(context.Background(), "acc_2")
	require.NoError(t, err)
	assert.Equal(t, "10234.56", bal.String())
}
