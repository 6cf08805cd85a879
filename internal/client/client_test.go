package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/WBHankins93/messaging-app/internal/auth"
	"github.com/WBHankins93/messaging-app/internal/db/dbtest"
	"github.com/WBHankins93/messaging-app/internal/events"
	"github.com/WBHankins93/messaging-app/internal/repository"
	"github.com/WBHankins93/messaging-app/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStubServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/signup", func(c *gin.Context) {
		var req struct {
			Username string `json:"username"`
		}
		_ = c.ShouldBindJSON(&req)
		if req.Username == "taken" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username already registered"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "User created successfully"})
	})
	r.POST("/token", func(c *gin.Context) {
		if c.PostForm("username") != "alice" || c.PostForm("password") != "pw1" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect username or password"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"access_token": "access-1", "refresh_token": "refresh-1", "token_type": "bearer"})
	})
	r.POST("/token/refresh", func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = c.ShouldBindJSON(&req)
		if req.RefreshToken != "refresh-1" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "could not validate credentials"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"access_token": "access-2", "token_type": "bearer"})
	})
	r.GET("/users", func(c *gin.Context) {
		switch c.GetHeader("Authorization") {
		case "Bearer admin":
			c.JSON(http.StatusOK, []string{"admin", "alice"})
		case "":
			c.JSON(http.StatusUnauthorized, gin.H{"error": "could not validate credentials"})
		default:
			c.JSON(http.StatusForbidden, gin.H{"error": "admin privileges required"})
		}
	})
	r.GET("/chat/history", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"room_id":  c.DefaultQuery("room_id", "global"),
			"messages": []gin.H{{"user": "alice", "content": c.DefaultQuery("room_id", "global"), "timestamp": time.Now()}},
		})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Auth(t *testing.T) {
	srv := newStubServer(t)
	c := New(Config{BaseURL: srv.URL + "/"})
	ctx := context.Background()

	require.NoError(t, c.Signup(ctx, "alice", "pw1"))
	err := c.Signup(ctx, "taken", "pw1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 400")

	_, err = c.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, c.Token())

	pair, err := c.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", pair.RefreshToken)
	assert.Equal(t, "access-1", c.Token())

	pair, err = c.Refresh(ctx, "refresh-1")
	require.NoError(t, err)
	assert.Empty(t, pair.RefreshToken)
	assert.Equal(t, "access-2", c.Token())

	_, err = c.Refresh(ctx, "stale")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClient_Users(t *testing.T) {
	srv := newStubServer(t)
	c := New(Config{BaseURL: srv.URL})
	ctx := context.Background()

	_, err := c.Users(ctx)
	assert.ErrorIs(t, err, ErrUnauthorized)

	c.SetToken("alice")
	_, err = c.Users(ctx)
	assert.ErrorIs(t, err, ErrForbidden)

	c.SetToken(" admin ")
	names, err := c.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "alice"}, names)
}

func TestClient_History(t *testing.T) {
	srv := newStubServer(t)
	c := New(Config{BaseURL: srv.URL})

	entries, err := c.History(context.Background(), "general")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "general", entries[0].Content)

	entries, err = c.History(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "global", entries[0].Content)
}

func TestRelayURL(t *testing.T) {
	tests := []struct {
		base string
		room string
		want string
	}{
		{"http://localhost:8080", "general", "ws://localhost:8080/ws/general"},
		{"https://chat.example.com/api", "general", "wss://chat.example.com/api/ws/general"},
		{"http://localhost:8080", "a b", "ws://localhost:8080/ws/a%20b"},
	}
	for _, tt := range tests {
		c := New(Config{BaseURL: tt.base})
		got, err := c.relayURL(tt.room)
		if err != nil {
			t.Fatalf("relayURL(%q) error = %v", tt.room, err)
		}
		if got != tt.want {
			t.Errorf("relayURL(%q) = %q, want %q", tt.room, got, tt.want)
		}
	}
}

type lineWriter chan string

func (w lineWriter) Write(p []byte) (int, error) {
	w <- string(p)
	return len(p), nil
}

func newRelayServer(t *testing.T) (*httptest.Server, auth.TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb := dbtest.New(t)
	users := repository.NewUserRepository(gdb)
	_, err := users.Create(context.Background(), "alice", "x", false)
	require.NoError(t, err)

	tokens, err := auth.NewTokenService("test-secret", "HS256", time.Minute, time.Hour)
	require.NoError(t, err)
	hub := ws.NewHub(repository.NewMessageRepository(gdb))
	h := ws.NewHandler(hub, auth.NewGate(tokens, users), events.Noop(), "dev", time.Second)

	r := gin.New()
	r.GET("/ws/:room_id", h.Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)
	return srv, tokens
}

func TestClient_Chat(t *testing.T) {
	srv, tokens := newRelayServer(t)
	access, err := tokens.IssueAccess("alice")
	require.NoError(t, err)

	c := New(Config{BaseURL: srv.URL})
	c.SetToken(access)

	inR, inW := io.Pipe()
	out := make(lineWriter, 16)
	done := make(chan error, 1)
	go func() { done <- c.Chat(context.Background(), "general", inR, out) }()

	_, err = io.WriteString(inW, "\nhi\n")
	require.NoError(t, err)

	select {
	case line := <-out:
		assert.Equal(t, "alice: hi\n", line)
	case <-time.After(3 * time.Second):
		t.Fatal("no broadcast received")
	}

	require.NoError(t, inW.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Chat did not return after input closed")
	}
}

func TestClient_ChatUnauthorized(t *testing.T) {
	srv, _ := newRelayServer(t)
	c := New(Config{BaseURL: srv.URL})
	c.SetToken("bogus")

	err := c.Chat(context.Background(), "general", io.MultiReader(), io.Discard)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
