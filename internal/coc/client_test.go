package coc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, 6000, nil)
}

func TestClient_War(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/war", r.URL.Path)
		w.Write([]byte(`{
			"state": "inWar",
			"teamSize": 2,
			"endTime": "20240131T180000.000Z",
			"clan": {"tag": "#CLAN", "members": [
				{"tag": "#A", "name": "alpha", "attackCount": 0},
				{"tag": "#B", "name": "bravo", "attacks": [{"stars": 3}]}
			]}
		}`))
	})

	war, err := c.War(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateInWar, war.State)
	require.Len(t, war.Clan.Members, 2)
	assert.Equal(t, 0, war.Clan.Members[0].AttacksUsed())
	assert.Equal(t, 1, war.Clan.Members[1].AttacksUsed())

	end, ok := war.EndsAt()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 31, 18, 0, 0, 0, time.UTC), end)
}

func TestClient_PlayerEscapesTag(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/player/%232PP", r.URL.EscapedPath())
		w.Write([]byte(`{"tag": "#2PP", "name": "kaito", "townHallLevel": 14}`))
	})

	p, err := c.Player(context.Background(), " 2pp ")
	require.NoError(t, err)
	assert.Equal(t, "kaito", p.Name)
	assert.Equal(t, 14, p.TownHallLevel)
}

func TestClient_PlayerEmptyTag(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.Player(context.Background(), "  # ")
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
}

func TestClient_StatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	_, err := c.Clan(context.Background())
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Equal(t, "/clan", se.Path)
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))
	assert.False(t, errors.Is(err, ErrUnreachable))
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second, 6000, nil)
	_, err := c.War(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreachable))
	assert.Equal(t, 0, StatusCode(err))
}

func TestClient_MalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"state":`))
	})

	_, err := c.War(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnreachable))
	assert.Equal(t, 0, StatusCode(err))
}
