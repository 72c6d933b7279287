package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenInfoServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id_token") != "good" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerify(t *testing.T) {
	srv := tokenInfoServer(t, http.StatusOK,
		`{"sub":"1089","aud":"client-1","email":"ada@example.com","name":"Ada","picture":"https://img/ada.png"}`)
	g := NewGoogle(GoogleConfig{ClientID: "client-1", TokenInfoURL: srv.URL}, srv.Client(), nil)

	id, err := g.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, &Identity{SubjectID: "1089", Email: "ada@example.com", DisplayName: "Ada", AvatarURL: "https://img/ada.png"}, id)
}

func TestVerify_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		status int
		body   string
		client string
	}{
		{name: "empty token", token: "", status: http.StatusOK, body: `{"sub":"1"}`},
		{name: "provider rejects", token: "bad", status: http.StatusOK, body: `{"sub":"1"}`},
		{name: "server error", token: "good", status: http.StatusInternalServerError, body: `{}`},
		{name: "no subject", token: "good", status: http.StatusOK, body: `{"email":"a@b.c"}`},
		{name: "garbage", token: "good", status: http.StatusOK, body: `not json`},
		{name: "wrong audience", token: "good", status: http.StatusOK, body: `{"sub":"1","aud":"other"}`, client: "mine"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := tokenInfoServer(t, tc.status, tc.body)
			g := NewGoogle(GoogleConfig{ClientID: tc.client, TokenInfoURL: srv.URL}, srv.Client(), nil)

			_, err := g.Verify(context.Background(), tc.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerify_NameFallsBackToEmail(t *testing.T) {
	srv := tokenInfoServer(t, http.StatusOK, `{"sub":"7","email":"grace@example.com"}`)
	g := NewGoogle(GoogleConfig{TokenInfoURL: srv.URL}, srv.Client(), nil)

	id, err := g.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", id.DisplayName)
}

func TestLoginURL(t *testing.T) {
	g := NewGoogle(GoogleConfig{
		ClientID:    "client-1",
		RedirectURL: "http://localhost:3000/auth/callback",
	}, nil, nil)

	u, err := url.Parse(g.LoginURL("xyz"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", u.Host)

	q := u.Query()
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "http://localhost:3000/auth/callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "xyz", q.Get("state"))
}
