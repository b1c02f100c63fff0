package ice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwilioMapsICEServers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Tokens.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "tok", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "600", r.PostForm.Get("Ttl"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"ttl": "600",
			"ice_servers": [
				{"url": "stun:global.stun.twilio.com:3478", "urls": "stun:global.stun.twilio.com:3478"},
				{"url": "turn:global.turn.twilio.com:3478?transport=udp", "urls": "turn:global.turn.twilio.com:3478?transport=udp", "username": "u", "credential": "c"},
				{"url": "turn:legacy.example.com:443"}
			]
		}`))
	}))
	defer srv.Close()

	p, err := NewTwilio(TwilioConfig{AccountSID: "AC123", AuthToken: "tok", BaseURL: srv.URL + "/", TTL: 10 * time.Minute})
	require.NoError(t, err)

	servers, err := p.ICEServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 3)
	require.Equal(t, []string{"stun:global.stun.twilio.com:3478"}, servers[0].URLs)
	require.Nil(t, servers[0].Credential)
	require.Equal(t, "u", servers[1].Username)
	require.Equal(t, "c", servers[1].Credential)
	require.Equal(t, []string{"turn:legacy.example.com:443"}, servers[2].URLs)
}

func TestTwilioUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":20003,"message":"Authenticate"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := NewTwilio(TwilioConfig{AccountSID: "AC123", AuthToken: "bad", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.ICEServers(context.Background())
	require.ErrorIs(t, err, ErrUpstream)
}

func TestTwilioBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	p, err := NewTwilio(TwilioConfig{AccountSID: "AC123", AuthToken: "tok", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = p.ICEServers(context.Background())
	require.ErrorIs(t, err, ErrUpstream)
}

func TestTwilioRequiresCredentials(t *testing.T) {
	_, err := NewTwilio(TwilioConfig{AccountSID: "AC123"})
	require.Error(t, err)
}
