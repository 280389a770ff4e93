package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tubechat/tubechat/internal/ai"
	"github.com/tubechat/tubechat/internal/chat"
	"github.com/tubechat/tubechat/internal/config"
	"github.com/tubechat/tubechat/internal/extract"
	"github.com/tubechat/tubechat/internal/innertube"
	"github.com/tubechat/tubechat/internal/relay"
	"github.com/tubechat/tubechat/internal/store/keystore"
	"github.com/tubechat/tubechat/internal/store/redisstore"
)

type testEnv struct {
	router   *gin.Engine
	keys     *keystore.Store
	sessions *redisstore.Store
	relay    *relay.Relay
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newEnv(t *testing.T, cfg config.Config, apiBaseURL string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	keys := keystore.New(db)
	require.NoError(t, keys.AutoMigrate())

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	sessions := redisstore.New(rdb, time.Hour)

	reg := ai.NewRegistry()
	reg.Register("stub", func(ctx context.Context, model string) (ai.Provider, error) {
		return stubProvider{}, nil
	})
	chatSvc := chat.NewService(keys, sessions, reg, "stub", "")

	client := innertube.NewClient("en", "US")
	if apiBaseURL != "" {
		client.BaseURL = apiBaseURL
	}

	rly := relay.New(2 * time.Second)
	router := NewRouter(cfg, keys, rly, chatSvc, extract.NewOrchestrator(client))
	return &testEnv{router: router, keys: keys, sessions: sessions, relay: rly}
}

type stubProvider struct{}

func (stubProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	return "stub reply", nil
}

func (e *testEnv) do(t *testing.T, method, path, body string, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

const watchHTML = `<html><head>
<meta name="title" content="Greetings Video">
<meta name="description" content="About greetings.">
<script>{"INNERTUBE_API_KEY":"AIzaTest","INNERTUBE_CLIENT_VERSION":"2.2024"}</script>
</head></html>`

func TestTranscriptFlow(t *testing.T) {
	pageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(watchHTML))
	}))
	defer pageSrv.Close()

	var apiURL string
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/youtubei/v1/player":
			fmt.Fprintf(w, `{"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[{"baseUrl":"%s/timedtext","languageCode":"en"}]}}}`, apiURL)
		case "/timedtext":
			_, _ = w.Write([]byte(`<transcript><text>Hello</text><text>world</text></transcript>`))
		}
	}))
	defer apiSrv.Close()
	apiURL = apiSrv.URL

	e := newEnv(t, config.Config{}, apiSrv.URL)

	// no page open yet: the relay synthesizes a connectivity error
	w, env := e.do(t, http.MethodPost, "/transcript", "", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, env.Message, "reload the page")

	// open (inject) the page, then fetch through the relay
	body := fmt.Sprintf(`{"url":%q}`, pageSrv.URL+"/watch?v=dQw4w9WgXcQ")
	w, env = e.do(t, http.MethodPost, "/pages", body, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	w, env = e.do(t, http.MethodPost, "/transcript", "", nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	var data struct {
		VideoID string `json:"video_id"`
		Title   string `json:"title"`
		State   string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "dQw4w9WgXcQ", data.VideoID)
	assert.Equal(t, "Greetings Video", data.Title)
	assert.Equal(t, string(chat.StateReady), data.State)

	sess, err := e.sessions.Load(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "Hello world", sess.Transcript)

	// chat a turn against the loaded transcript
	w, env = e.do(t, http.MethodPost, "/videos/dQw4w9WgXcQ/messages", `{"message":"What is this about?"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	sess, err = e.sessions.Load(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Len(t, sess.History, 2)
	assert.Equal(t, "stub reply", sess.History[1].Text)
}

// A transcript must be recorded under the video of the page that
// answered it, even when a different page becomes active while the
// extraction is still in flight.
func TestTranscriptBoundToAnsweringPage(t *testing.T) {
	pageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(watchHTML))
	}))
	defer pageSrv.Close()

	downloadStarted := make(chan struct{})
	releaseDownload := make(chan struct{})

	var apiURL string
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/youtubei/v1/player":
			var body struct {
				VideoID string `json:"videoId"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			fmt.Fprintf(w, `{"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[{"baseUrl":"%s/timedtext?v=%s","languageCode":"en"}]}}}`, apiURL, body.VideoID)
		case "/timedtext":
			if r.URL.Query().Get("v") == "AAAAAAAAAAA" {
				close(downloadStarted)
				<-releaseDownload
			}
			_, _ = w.Write([]byte(`<transcript><text>first video words</text></transcript>`))
		}
	}))
	defer apiSrv.Close()
	apiURL = apiSrv.URL

	e := newEnv(t, config.Config{}, apiSrv.URL)

	body := fmt.Sprintf(`{"url":%q}`, pageSrv.URL+"/watch?v=AAAAAAAAAAA")
	w, env := e.do(t, http.MethodPost, "/pages", body, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	type result struct {
		w   *httptest.ResponseRecorder
		env envelope
	}
	done := make(chan result, 1)
	go func() {
		w, env := e.do(t, http.MethodPost, "/transcript", "", nil)
		done <- result{w, env}
	}()

	// while the first extraction is fetching captions, a second page
	// takes over as the active page
	<-downloadStarted
	body = fmt.Sprintf(`{"url":%q}`, pageSrv.URL+"/watch?v=BBBBBBBBBBB")
	w, env = e.do(t, http.MethodPost, "/pages", body, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	close(releaseDownload)

	res := <-done
	require.Equal(t, http.StatusOK, res.w.Code, res.env.Message)

	var data struct {
		VideoID string `json:"video_id"`
	}
	require.NoError(t, json.Unmarshal(res.env.Data, &data))
	assert.Equal(t, "AAAAAAAAAAA", data.VideoID)

	sess, err := e.sessions.Load(context.Background(), "AAAAAAAAAAA")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "first video words", sess.Transcript)

	other, err := e.sessions.Load(context.Background(), "BBBBBBBBBBB")
	require.NoError(t, err)
	assert.Nil(t, other)
}

// Closing the answering page between its reply and the save must not
// turn a successful extraction into a connectivity error.
func TestTranscriptSurvivesPageCloseAfterReply(t *testing.T) {
	pageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(watchHTML))
	}))
	defer pageSrv.Close()

	downloadStarted := make(chan struct{})
	releaseDownload := make(chan struct{})

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/youtubei/v1/player":
			fmt.Fprintf(w, `{"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[{"baseUrl":"%s","languageCode":"en"}]}}}`, "http://"+r.Host+"/timedtext")
		case "/timedtext":
			close(downloadStarted)
			<-releaseDownload
			_, _ = w.Write([]byte(`<transcript><text>still here</text></transcript>`))
		}
	}))
	defer apiSrv.Close()

	e := newEnv(t, config.Config{}, apiSrv.URL)

	body := fmt.Sprintf(`{"url":%q}`, pageSrv.URL+"/watch?v=dQw4w9WgXcQ")
	w, env := e.do(t, http.MethodPost, "/pages", body, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	var opened struct {
		PageID string `json:"page_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &opened))

	done := make(chan struct{})
	var resp *httptest.ResponseRecorder
	var respEnv envelope
	go func() {
		defer close(done)
		resp, respEnv = e.do(t, http.MethodPost, "/transcript", "", nil)
	}()

	// detach the page while its reply is still being produced; the
	// in-flight extraction already captured the document
	<-downloadStarted
	e.relay.Detach(opened.PageID)
	close(releaseDownload)

	<-done
	require.Equal(t, http.StatusOK, resp.Code, respEnv.Message)

	sess, err := e.sessions.Load(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "still here", sess.Transcript)
}

func TestTranscriptFailureLeavesSessionUntouched(t *testing.T) {
	pageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(watchHTML))
	}))
	defer pageSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer apiSrv.Close()

	e := newEnv(t, config.Config{}, apiSrv.URL)

	existing := &redisstore.VideoSession{
		VideoID:    "dQw4w9WgXcQ",
		Transcript: "prior transcript",
		History:    []redisstore.ChatMessage{{Sender: redisstore.SenderUser, Text: "earlier"}},
	}
	require.NoError(t, e.sessions.Save(context.Background(), existing))

	body := fmt.Sprintf(`{"url":%q}`, pageSrv.URL+"/watch?v=dQw4w9WgXcQ")
	w, env := e.do(t, http.MethodPost, "/pages", body, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	w, env = e.do(t, http.MethodPost, "/transcript", "", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, env.Message, "403")

	sess, err := e.sessions.Load(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "prior transcript", sess.Transcript)
	assert.Len(t, sess.History, 1)
}

func TestClearSessionEndpoint(t *testing.T) {
	e := newEnv(t, config.Config{}, "")

	require.NoError(t, e.sessions.Save(context.Background(), &redisstore.VideoSession{VideoID: "vid-a", Transcript: "t"}))
	require.NoError(t, e.sessions.Save(context.Background(), &redisstore.VideoSession{VideoID: "vid-b", Transcript: "t"}))

	w, _ := e.do(t, http.MethodDelete, "/videos/vid-a/session", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	gone, err := e.sessions.Load(context.Background(), "vid-a")
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := e.sessions.Load(context.Background(), "vid-b")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestPanelAuth(t *testing.T) {
	e := newEnv(t, config.Config{JWTSecret: "test-secret"}, "")

	// protected route without a token
	w, _ := e.do(t, http.MethodGet, "/credential", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// bootstrap passcode, then log in
	w, env := e.do(t, http.MethodPost, "/passcode", `{"passcode":"hunter2"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	w, _ = e.do(t, http.MethodPost, "/login", `{"passcode":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = e.do(t, http.MethodPost, "/login", `{"passcode":"hunter2"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)

	auth := map[string]string{"Authorization": "Bearer " + data.Token}
	w, env = e.do(t, http.MethodGet, "/credential", "", auth)
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	var cred struct {
		Present bool `json:"present"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &cred))
	assert.False(t, cred.Present)
}
