package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-attendance/internal/config"
	"github.com/celerix-dev/celerix-attendance/internal/engine"
	"github.com/celerix-dev/celerix-attendance/internal/line"
	"github.com/celerix-dev/celerix-attendance/pkg/schema"
)

const (
	testSecret = "channel-secret"
	testToken  = "channel-token"
)

// fakeLINE records replies and serves profiles.
type fakeLINE struct {
	mu      sync.Mutex
	replies []string
	srv     *httptest.Server
}

func newFakeLINE(t *testing.T, profiles map[string]string) *fakeLINE {
	f := &fakeLINE{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/bot/message/reply", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Text string `json:"text"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && len(body.Messages) > 0 {
			f.mu.Lock()
			f.replies = append(f.replies, body.Messages[0].Text)
			f.mu.Unlock()
		}
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/v2/bot/profile/", func(w http.ResponseWriter, r *http.Request) {
		id := filepath.Base(r.URL.Path)
		name, ok := profiles[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Not found"}`))
			return
		}
		fmt.Fprintf(w, `{"userId":%q,"displayName":%q}`, id, name)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeLINE) Replies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.replies...)
}

func testConfig(dir string) config.Config {
	c := config.Default()
	c.DataDir = dir
	c.ChannelSecret = testSecret
	c.ChannelAccessToken = testToken
	return c
}

func newTestServer(t *testing.T, cfg config.Config, bot *fakeLINE, now time.Time) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s, err := New(context.Background(), cfg,
		WithLineOptions(line.WithEndpoint(bot.srv.URL), line.WithHTTPClient(bot.srv.Client())),
		WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.close() })
	return s
}

func deliver(t *testing.T, h http.Handler, userID, text string) []*schema.EventResult {
	t.Helper()
	body := []byte(fmt.Sprintf(`{"destination":"Ubot","events":[{"type":"message","mode":"active","timestamp":1704412800000,"replyToken":"tok","source":{"type":"user","userId":%q},"message":{"type":"text","id":"1","text":%q}}]}`, userID, text))
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var results []*schema.EventResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	return results
}

func TestServer_FileBackend(t *testing.T) {
	dir := t.TempDir()
	bot := newFakeLINE(t, map[string]string{"U1": "Taro"})
	now := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	s := newTestServer(t, testConfig(dir), bot, now)
	assert.Equal(t, ":3000", s.Addr())

	results := deliver(t, s.Handler(), "U1", "出勤")
	require.Len(t, results, 1)
	assert.Equal(t, "clocked_in", results[0].Outcome)
	require.Len(t, bot.Replies(), 1)
	assert.Contains(t, bot.Replies()[0], "2024/1/5 9:00:00")

	// Both documents are on disk before the reply is sent.
	p, err := engine.NewPersistence(dir)
	require.NoError(t, err)
	order, data, err := p.LoadSessions()
	require.NoError(t, err)
	assert.Equal(t, []string{"U1"}, order)
	assert.Len(t, data["U1"], 1)
	names, err := p.LoadNames()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"U1": "Taro"}, names)

	// A restart picks the state back up.
	later := newTestServer(t, testConfig(dir), bot, now.Add(8*time.Hour))
	results = deliver(t, later.Handler(), "U1", "退勤")
	assert.Equal(t, "clocked_out", results[0].Outcome)
	assert.Contains(t, bot.Replies()[1], "8時間0分")

	w := httptest.NewRecorder()
	later.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `attendance_store_flush_seconds_count{result="ok"} 1`)
}

func TestServer_InvalidSignature(t *testing.T) {
	bot := newFakeLINE(t, nil)
	s := newTestServer(t, testConfig(t.TempDir()), bot, time.Now())

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(`{"events":[]}`)))
	req.Header.Set("X-Line-Signature", "bm90IGEgc2lnbmF0dXJl")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	assert.Empty(t, bot.Replies())
}

func TestServer_CorruptState(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, engine.SessionsFile)
	require.NoError(t, os.WriteFile(bad, []byte(`{"U1": [ {`), 0o644))
	bot := newFakeLINE(t, nil)

	_, err := New(context.Background(), testConfig(dir), WithLineOptions(line.WithEndpoint(bot.srv.URL)))
	require.ErrorIs(t, err, engine.ErrCorruptState)
	_, statErr := os.Stat(bad)
	require.NoError(t, statErr, "document must be left in place")

	cfg := testConfig(dir)
	cfg.RecoverCorruptState = true
	s := newTestServer(t, cfg, bot, time.Now())

	_, statErr = os.Stat(bad)
	assert.True(t, os.IsNotExist(statErr))
	moved, err := filepath.Glob(bad + ".corrupt-*")
	require.NoError(t, err)
	assert.Len(t, moved, 1)

	results := deliver(t, s.Handler(), "U1", "出勤")
	assert.Equal(t, "clocked_in", results[0].Outcome)
}

func TestServer_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	bot := newFakeLINE(t, map[string]string{"U1": "Taro"})
	cfg := testConfig("")
	cfg.RedisAddr = mr.Addr()

	s := newTestServer(t, cfg, bot, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	results := deliver(t, s.Handler(), "U1", "出勤")
	assert.Equal(t, "clocked_in", results[0].Outcome)
	results = deliver(t, s.Handler(), "U1", "出勤")
	assert.Equal(t, "already_clocked_in", results[0].Outcome)

	assert.Equal(t, []string{"U1"}, mustList(t, mr, "attendance:users"))
	assert.Equal(t, "Taro", mr.HGet("attendance:names", "U1"))

	require.NoError(t, s.Shutdown(context.Background()))
}

func mustList(t *testing.T, mr *miniredis.Miniredis, key string) []string {
	t.Helper()
	l, err := mr.List(key)
	require.NoError(t, err)
	return l
}

func TestServer_RedisUnavailable(t *testing.T) {
	cfg := testConfig("")
	cfg.RedisAddr = "127.0.0.1:1"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestServer_InvalidConfig(t *testing.T) {
	_, err := New(context.Background(), config.Default())
	assert.ErrorContains(t, err, "LINE_CHANNEL_SECRET")
}
