package roomchat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/putto11262002/roomchat/core"
)

var baseTimeout = 2 * time.Second

const (
	superAdmin = "Wounsee"
	// moderator is listed in admins.json by every fixture.
	moderator = "mod"
	password  = "secret-password"
)

type appFixture struct {
	ctx      context.Context
	app      *App
	server   *httptest.Server
	config   *Config
	t        *testing.T
	tearDown func()
}

func newTestConfig(dir string) *Config {
	config := &Config{
		Port:     3000,
		Hostname: "localhost",
		Mode:     DevMode,
	}
	config.Log.Level = slog.LevelWarn
	config.Auth.Secret = Base64Encoded("test-secret")
	config.Auth.SessionTTL = time.Hour
	config.Auth.StrictRealtime = true
	config.Auth.SuperAdmin = superAdmin
	config.Storage.ConfigDir = filepath.Join(dir, "config")
	config.Storage.DataDir = filepath.Join(dir, "data")
	config.SQLite.File = filepath.Join(dir, "data", "sessions.db")
	config.Media.Dir = filepath.Join(dir, "images")
	config.Media.MaxUpload = 1 << 20
	config.Media.MaxWidth = 1280
	config.Media.MaxHeight = 720
	config.Media.Quality = 80
	config.Media.MaxPixels = 50_000_000
	config.WS.ReadLimit = 64 << 10
	config.AllowedOrigins = []string{"*"}
	return config
}

// newAppFixture serves a fresh application backed by a temp dir. configure
// may adjust the config before the application is built.
func newAppFixture(t *testing.T, configure ...func(*Config)) *appFixture {
	ctx, cancel := context.WithCancel(context.Background())
	config := newTestConfig(t.TempDir())
	for _, fn := range configure {
		fn(config)
	}

	require.NoError(t, os.MkdirAll(config.Storage.ConfigDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(config.Storage.ConfigDir, "admins.json"),
		[]byte(`["`+moderator+`"]`), 0o644))

	app, err := New(ctx, config)
	require.NoError(t, err)
	app.listen()

	f := &appFixture{
		ctx:    ctx,
		app:    app,
		config: config,
		server: httptest.NewServer(app.Handler()),
		t:      t,
	}
	f.tearDown = func() {
		f.server.Close()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), baseTimeout)
		defer closeCancel()
		if err := app.shutdown(closeCtx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
		cancel()
	}
	return f
}

// seedConfig writes a config document before the application loads it.
func seedConfig(t *testing.T, name, content string) func(*Config) {
	return func(c *Config) {
		require.NoError(t, os.MkdirAll(c.Storage.ConfigDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(c.Storage.ConfigDir, name), []byte(content), 0o644))
	}
}

// withSuperAdmin seeds the super-admin account with a legacy plaintext
// password.
func withSuperAdmin(t *testing.T) func(*Config) {
	return seedConfig(t, "users.json", `{"`+superAdmin+`":{"password":"`+password+`"}}`)
}

// client returns an HTTP client with its own cookie jar that does not
// follow redirects.
func (f *appFixture) client() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(f.t, err)
	return &http.Client{
		Jar:     jar,
		Timeout: baseTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (f *appFixture) postForm(client *http.Client, path string, form url.Values) *http.Response {
	res, err := client.PostForm(f.server.URL+path, form)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { res.Body.Close() })
	return res
}

func (f *appFixture) get(client *http.Client, path string) *http.Response {
	res, err := client.Get(f.server.URL + path)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { res.Body.Close() })
	return res
}

func credentials(username, password string) url.Values {
	return url.Values{"username": {username}, "password": {password}}
}

// signUp registers username and returns a client holding its session.
func (f *appFixture) signUp(username string) *http.Client {
	client := f.client()
	res := f.postForm(client, "/register", credentials(username, password))
	require.Equal(f.t, http.StatusFound, res.StatusCode)
	require.Equal(f.t, "/", res.Header.Get("Location"))
	return client
}

func (f *appFixture) logIn(username string) *http.Client {
	client := f.client()
	res := f.postForm(client, "/login", credentials(username, password))
	require.Equal(f.t, http.StatusFound, res.StatusCode)
	return client
}

// dial opens a realtime connection carrying the session cookie of client.
// A nil client dials without a session.
func (f *appFixture) dial(client *http.Client) (*websocket.Conn, *http.Response, error) {
	header := http.Header{}
	if client != nil {
		u, err := url.Parse(f.server.URL)
		require.NoError(f.t, err)
		for _, c := range client.Jar.Cookies(u) {
			header.Add("Cookie", c.String())
		}
	}
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	conn, res, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		f.t.Cleanup(func() { conn.Close() })
	}
	return conn, res, err
}

type chatClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// join signs username up, connects and authenticates. It returns once the
// connection is bound.
func (f *appFixture) join(username string) *chatClient {
	return f.connect(f.signUp(username), username)
}

func (f *appFixture) connect(client *http.Client, username string) *chatClient {
	conn, _, err := f.dial(client)
	require.NoError(f.t, err)
	c := &chatClient{conn: conn, t: f.t}
	c.send(AuthEvent, map[string]interface{}{"username": username})
	c.history(core.GeneralRoom)
	return c
}

func (c *chatClient) send(t string, fields map[string]interface{}) {
	frame := map[string]interface{}{"type": t}
	for k, v := range fields {
		frame[k] = v
	}
	require.NoError(c.t, c.conn.WriteJSON(frame))
}

// next reads the next frame, which must be of type t, and decodes it into v
// when v is not nil.
func (c *chatClient) next(t string, v interface{}) {
	c.conn.SetReadDeadline(time.Now().Add(baseTimeout))
	var e core.Event
	require.NoError(c.t, c.conn.ReadJSON(&e))
	require.Equal(c.t, t, e.Type, "frame: %s", e.Payload)
	if v != nil {
		require.NoError(c.t, e.Decode(v))
	}
}

func (c *chatClient) say(room, text string) {
	c.send(MessageEvent, map[string]interface{}{"chat": room, "text": text})
}

func (c *chatClient) history(room string) []core.Message {
	c.send(GetHistoryEvent, map[string]interface{}{"chat": room})
	var payload ChatHistoryEventPayload
	c.next(ChatHistoryEvent, &payload)
	return payload.Messages
}

func (c *chatClient) message() core.Message {
	var msg core.Message
	c.next(MessageEvent, &msg)
	return msg
}

func (c *chatClient) expectError(message string) {
	var payload core.ErrorPayload
	c.next(core.ErrorEvent, &payload)
	require.Equal(c.t, message, payload.Message)
}

func (c *chatClient) expectNotification(message string) {
	var payload NotificationEventPayload
	c.next(NotificationEvent, &payload)
	require.Equal(c.t, message, payload.Message)
}

func decodeJSON(t *testing.T, res *http.Response, v interface{}) {
	require.NoError(t, json.NewDecoder(res.Body).Decode(v))
}
