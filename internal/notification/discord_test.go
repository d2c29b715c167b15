package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordSendsEmbeds(t *testing.T) {
	var got []DiscordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var msg DiscordMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		got = append(got, msg)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL+"/ok", srv.URL+"/err")
	assert.True(t, d.Enabled())
	require.NoError(t, d.SendSuccess(context.Background(), "ricemap written"))
	require.NoError(t, d.SendError(context.Background(), "disk full"))

	require.Len(t, got, 2)
	assert.Equal(t, "ricemap written", got[0].Embeds[0].Description)
	assert.Equal(t, colorGreen, got[0].Embeds[0].Color)
	assert.Contains(t, got[1].Embeds[0].Description, "disk full")
	assert.Equal(t, colorRed, got[1].Embeds[0].Color)
}

func TestDiscordSkipsEmptyURL(t *testing.T) {
	d := NewDiscord("", "")
	assert.False(t, d.Enabled())
	assert.NoError(t, d.SendSuccess(context.Background(), "x"))
	assert.NoError(t, d.SendError(context.Background(), "x"))

	var nilDiscord *Discord
	assert.False(t, nilDiscord.Enabled())
	assert.NoError(t, nilDiscord.SendError(context.Background(), "x"))
}

func TestDiscordReportsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscord(srv.URL, "").SendSuccess(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
