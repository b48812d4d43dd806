package platforms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
)

func TestRegistry_CoversAllPlatforms(t *testing.T) {
	r := NewRegistry()
	for _, p := range models.AllPlatforms {
		a, err := r.Get(p)
		require.NoError(t, err)
		assert.Equal(t, p, a.Platform())
	}
}

func TestRegistry_UnknownPlatform(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(models.Platform("myspace"))
	require.Error(t, err)

	var upe *UnknownPlatformError
	require.ErrorAs(t, err, &upe)
	assert.Equal(t, models.Platform("myspace"), upe.Platform)
}

func TestInstagramValidate(t *testing.T) {
	a := NewInstagramAdapter()

	assert.NoError(t, a.Validate(PostContent{Body: "a fine caption"}))

	err := a.Validate(PostContent{Body: strings.Repeat("x", 2300)})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "ig text too long")

	// Limit is counted in runes, not bytes
	assert.NoError(t, a.Validate(PostContent{Body: strings.Repeat("ä", 2200)}))

	assert.Error(t, a.Validate(PostContent{Body: "  "}))
	assert.Error(t, a.Validate(PostContent{Body: "fr33 m0n3y here"}))
}

func TestFacebookValidate(t *testing.T) {
	a := NewFacebookPageAdapter()

	assert.NoError(t, a.Validate(PostContent{Body: strings.Repeat("x", 20000)}))

	err := a.Validate(PostContent{Body: strings.Repeat("x", 20001)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "facebook text too long")
}

func TestLinkedInValidate(t *testing.T) {
	a := NewLinkedInAdapter()

	assert.NoError(t, a.Validate(PostContent{Body: strings.Repeat("x", 3000)}))

	err := a.Validate(PostContent{Body: strings.Repeat("x", 3001)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "linkedin text too long")
}

func TestYouTubeValidate(t *testing.T) {
	a := NewYouTubeDraftAdapter()
	valid := PostContent{Title: "My video", Description: "About things", AssetURL: "https://cdn.example.com/v.mp4"}

	assert.NoError(t, a.Validate(valid))

	tests := []struct {
		name    string
		mutate  func(p *PostContent)
		message string
	}{
		{"Missing title", func(p *PostContent) { p.Title = "" }, "title is required"},
		{"Missing description", func(p *PostContent) { p.Description = "" }, "description is required"},
		{"Title too long", func(p *PostContent) { p.Title = strings.Repeat("x", 150) }, "YouTube length exceeded"},
		{"Description too long", func(p *PostContent) { p.Description = strings.Repeat("x", 5001) }, "YouTube length exceeded"},
		{"Missing asset", func(p *PostContent) { p.AssetURL = "" }, "video asset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := a.Validate(p)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func graphErrorBody(code int, message string) string {
	raw, _ := json.Marshal(map[string]interface{}{
		"error": map[string]interface{}{"message": message, "type": "OAuthException", "code": code},
	})
	return string(raw)
}

func TestClassifyGraphError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{"App rate limit", 400, graphErrorBody(4, "Application request limit reached"), true},
		{"User rate limit", 400, graphErrorBody(17, "User request limit reached"), true},
		{"Custom rate limit", 400, graphErrorBody(613, "Calls to this api have exceeded the rate limit"), true},
		{"Invalid token", 401, graphErrorBody(190, "Error validating access token"), false},
		{"Invalid parameter", 400, graphErrorBody(100, "Invalid parameter"), false},
		{"Content blocked", 400, graphErrorBody(368, "The action attempted has been deemed abusive"), false},
		{"Server error without payload", 500, "oops", true},
		{"Rate limited without payload", 429, "", true},
		{"Plain bad request", 400, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyGraphError(models.PlatformInstagram, tt.status, []byte(tt.body))
			var pe *PublishError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.transient, pe.Transient)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestClassifyLinkedInError(t *testing.T) {
	body := `{"message":"Throttled","serviceErrorCode":65601,"status":429}`
	err := classifyLinkedInError(429, []byte(body))
	var pe *PublishError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Transient)
	assert.Equal(t, 65601, pe.Code)
	assert.Equal(t, "Throttled", pe.Message)

	err = classifyLinkedInError(401, []byte(`{"message":"Invalid access token","status":401}`))
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.Transient)
}

func TestInstagramPublish_ContainerFlow(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		calls = append(calls, r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/17841400000/media":
			assert.Equal(t, "hello feed", r.FormValue("caption"))
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "container-1"})
		case "/17841400000/media_publish":
			assert.Equal(t, "container-1", r.FormValue("creation_id"))
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "post-9"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := NewInstagramAdapter()
	a.BaseURL = srv.URL

	id, err := a.Publish(context.Background(), PostContent{Body: "hello feed"},
		Credentials{AccessToken: "tok-123", ExternalAccountID: "17841400000"})
	require.NoError(t, err)
	assert.Equal(t, "post-9", id)
	assert.Equal(t, []string{"/17841400000/media", "/17841400000/media_publish"}, calls)
}

func TestInstagramPublish_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(graphErrorBody(4, "Application request limit reached")))
	}))
	defer srv.Close()

	a := NewInstagramAdapter()
	a.BaseURL = srv.URL

	_, err := a.Publish(context.Background(), PostContent{Body: "hello"},
		Credentials{AccessToken: "tok", ExternalAccountID: "1"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestFacebookPublish_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/page-1/feed", r.URL.Path)
		assert.Equal(t, "page update", r.FormValue("message"))
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "page-1_42"})
	}))
	defer srv.Close()

	a := NewFacebookPageAdapter()
	a.BaseURL = srv.URL

	id, err := a.Publish(context.Background(), PostContent{Body: "page update"},
		Credentials{AccessToken: "tok", ExternalAccountID: "page-1"})
	require.NoError(t, err)
	assert.Equal(t, "page-1_42", id)
}

func TestFacebookPublish_RevokedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(graphErrorBody(190, "Error validating access token")))
	}))
	defer srv.Close()

	a := NewFacebookPageAdapter()
	a.BaseURL = srv.URL

	_, err := a.Publish(context.Background(), PostContent{Body: "hi"},
		Credentials{AccessToken: "tok", ExternalAccountID: "page-1"})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestLinkedInPublish_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ugcPosts", r.URL.Path)
		assert.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "urn:li:person:abc", payload["author"])

		w.Header().Set("X-RestLi-Id", "urn:li:ugcPost:777")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	a := NewLinkedInAdapter()
	a.BaseURL = srv.URL

	id, err := a.Publish(context.Background(), PostContent{Body: "network update"},
		Credentials{AccessToken: "tok", ExternalAccountID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "urn:li:ugcPost:777", id)
}

func TestPublish_Timeout_IsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	a := NewLinkedInAdapter()
	a.BaseURL = srv.URL

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Publish(ctx, PostContent{Body: "never arrives"},
		Credentials{AccessToken: "tok", ExternalAccountID: "abc"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
