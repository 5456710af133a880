package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wagate/wagate/internal/api/middleware"
	"github.com/wagate/wagate/internal/domain/session"
	"github.com/wagate/wagate/internal/infrastructure/logging"
)

type sendCall struct {
	to      string
	payload session.Payload
}

type fakeManager struct {
	mu      sync.Mutex
	state   session.State
	ident   *session.Identity
	token   string
	sends   []sendCall
	sendErr error
}

func (m *fakeManager) Status() session.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return session.Snapshot{State: m.state, Identity: m.ident, PairingToken: m.token}
}

func (m *fakeManager) PairingToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *fakeManager) Send(_ context.Context, to string, p session.Payload) (*session.SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, sendCall{to: to, payload: p})
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	return &session.SendResult{MessageID: "MSG-1", Timestamp: time.Now()}, nil
}

func (m *fakeManager) sent() []sendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sendCall, len(m.sends))
	copy(out, m.sends)
	return out
}

func newRouter(m *fakeManager, apiKey, uploadDir string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandlers(m, uploadDir, &logging.Logger{Logger: zap.NewNop()})

	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/qr", h.QR)
	guarded := r.Group("/", middleware.APIKey(apiKey))
	guarded.POST("/send", h.Send)
	guarded.POST("/send-media", h.SendMedia)
	return r
}

func doJSON(r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthStatuses(t *testing.T) {
	cases := []struct {
		state session.State
		want  string
	}{
		{session.StateInit, "disconnected"},
		{session.StateAwaitingScan, "scan_qr"},
		{session.StateConnected, "connected"},
		{session.StateClosed, "disconnected"},
		{session.StateLoggedOut, "disconnected"},
	}
	for _, tc := range cases {
		m := &fakeManager{state: tc.state}
		w := doJSON(newRouter(m, "", ""), http.MethodGet, "/health", "", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, tc.want, resp["status"])
	}
}

func TestHealthIncludesIdentity(t *testing.T) {
	m := &fakeManager{
		state: session.StateConnected,
		ident: &session.Identity{ID: "62811@s.whatsapp.net", DisplayName: "gw"},
	}
	w := doJSON(newRouter(m, "", ""), http.MethodGet, "/health", "", nil)

	var resp struct {
		Status string            `json:"status"`
		User   *session.Identity `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "connected", resp.Status)
	require.NotNil(t, resp.User)
	assert.Equal(t, "62811@s.whatsapp.net", resp.User.ID)
}

func TestQRNotFoundWithoutToken(t *testing.T) {
	m := &fakeManager{state: session.StateInit}
	w := doJSON(newRouter(m, "", ""), http.MethodGet, "/qr", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQRRendersDecodablePNG(t *testing.T) {
	m := &fakeManager{state: session.StateAwaitingScan, token: "ABC123"}
	w := doJSON(newRouter(m, "", ""), http.MethodGet, "/qr", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, qrImageSize, img.Bounds().Dx())
}

func TestQRGoneAfterConnect(t *testing.T) {
	m := &fakeManager{state: session.StateAwaitingScan, token: "ABC123"}
	r := newRouter(m, "", "")

	w := doJSON(r, http.MethodGet, "/qr", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	m.mu.Lock()
	m.state = session.StateConnected
	m.token = ""
	m.ident = &session.Identity{ID: "62811@x"}
	m.mu.Unlock()

	w = doJSON(r, http.MethodGet, "/health", "", nil)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "connected", resp["status"])

	w = doJSON(r, http.MethodGet, "/qr", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendValidation(t *testing.T) {
	m := &fakeManager{state: session.StateConnected}
	r := newRouter(m, "", "")

	for _, body := range []string{
		``,
		`{}`,
		`{"to":"628123456789"}`,
		`{"message":"hi"}`,
		`{"to":"  ","message":"hi"}`,
	} {
		w := doJSON(r, http.MethodPost, "/send", body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
	assert.Empty(t, m.sent(), "validation failures never reach the session")
}

func TestSendNormalizesDestination(t *testing.T) {
	m := &fakeManager{state: session.StateConnected}
	w := doJSON(newRouter(m, "", ""), http.MethodPost, "/send",
		`{"to":"628123456789","message":"hi"}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["ok"])
	assert.NotNil(t, resp["result"])

	sent := m.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "628123456789@s.whatsapp.net", sent[0].to)
	assert.Equal(t, session.TextPayload{Body: "hi"}, sent[0].payload)
}

func TestSendNotReady(t *testing.T) {
	m := &fakeManager{state: session.StateAwaitingScan, sendErr: session.ErrSessionUnavailable}
	w := doJSON(newRouter(m, "", ""), http.MethodPost, "/send",
		`{"to":"628123456789","message":"hi"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSendCapabilityFailure(t *testing.T) {
	m := &fakeManager{state: session.StateConnected, sendErr: &session.SendError{Cause: errors.New("boom")}}
	w := doJSON(newRouter(m, "", ""), http.MethodPost, "/send",
		`{"to":"628123456789","message":"hi"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAPIKeyGuard(t *testing.T) {
	m := &fakeManager{state: session.StateConnected}
	r := newRouter(m, "secret", "")

	w := doJSON(r, http.MethodPost, "/send", `{"to":"628","message":"hi"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/send", `{"to":"628","message":"hi"}`,
		map[string]string{"x-api-key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Empty(t, m.sent(), "unauthorized requests never reach the session")

	w = doJSON(r, http.MethodPost, "/send", `{"to":"628","message":"hi"}`,
		map[string]string{"x-api-key": "secret"})
	assert.Equal(t, http.StatusOK, w.Code)

	// Unguarded routes stay open.
	w = doJSON(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		hdr := make(map[string][]string)
		hdr["Content-Disposition"] = []string{`form-data; name="` + fileField + `"; filename="` + fileName + `"`}
		hdr["Content-Type"] = []string{contentType}
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func doMultipart(r *gin.Engine, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/send-media", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// tinyPNG is a 1x1 PNG so content sniffing classifies it as an image.
func tinyPNG(t *testing.T) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func stagingEmpty(t *testing.T, dir string) bool {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries) == 0
}

func TestSendMediaImage(t *testing.T) {
	dir := t.TempDir()
	m := &fakeManager{state: session.StateConnected}
	r := newRouter(m, "", dir)

	body, ct := multipartBody(t,
		map[string]string{"to": "628123456789", "caption": "sunset"},
		"file", "photo.png", "image/png", tinyPNG(t))
	w := doMultipart(r, body, ct)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	sent := m.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "628123456789@s.whatsapp.net", sent[0].to)
	media, ok := sent[0].payload.(session.MediaPayload)
	require.True(t, ok)
	assert.Equal(t, session.MediaImage, media.Kind)
	assert.Equal(t, "image/png", media.MimeType)
	assert.Equal(t, "sunset", media.Caption)
	assert.NotEmpty(t, media.Data)

	assert.True(t, stagingEmpty(t, dir), "staged file removed after success")
}

func TestSendMediaDocument(t *testing.T) {
	dir := t.TempDir()
	m := &fakeManager{state: session.StateConnected}
	r := newRouter(m, "", dir)

	body, ct := multipartBody(t,
		map[string]string{"to": "628123456789"},
		"file", "report.pdf", "application/pdf", []byte("%PDF-1.4 fake"))
	w := doMultipart(r, body, ct)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	sent := m.sent()
	require.Len(t, sent, 1)
	media, ok := sent[0].payload.(session.MediaPayload)
	require.True(t, ok)
	assert.Equal(t, session.MediaDocument, media.Kind)
	assert.Equal(t, "report.pdf", media.FileName)
	assert.Equal(t, "application/pdf", media.MimeType)

	assert.True(t, stagingEmpty(t, dir))
}

func TestSendMediaValidation(t *testing.T) {
	dir := t.TempDir()
	m := &fakeManager{state: session.StateConnected}
	r := newRouter(m, "", dir)

	// Missing file.
	body, ct := multipartBody(t, map[string]string{"to": "628"}, "", "", "", nil)
	w := doMultipart(r, body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Missing destination.
	body, ct = multipartBody(t, nil, "file", "a.txt", "text/plain", []byte("x"))
	w = doMultipart(r, body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, m.sent())
	assert.True(t, stagingEmpty(t, dir), "nothing staged on validation failure")
}

func TestSendMediaNotReady(t *testing.T) {
	dir := t.TempDir()
	m := &fakeManager{state: session.StateInit}
	r := newRouter(m, "", dir)

	body, ct := multipartBody(t, map[string]string{"to": "628"},
		"file", "a.txt", "text/plain", []byte("x"))
	w := doMultipart(r, body, ct)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Empty(t, m.sent())
	assert.True(t, stagingEmpty(t, dir))
}

func TestSendMediaCleanupOnSendFailure(t *testing.T) {
	dir := t.TempDir()
	m := &fakeManager{state: session.StateConnected, sendErr: &session.SendError{Cause: errors.New("upload rejected")}}
	r := newRouter(m, "", dir)

	body, ct := multipartBody(t, map[string]string{"to": "628"},
		"file", "a.txt", "text/plain", []byte("x"))
	w := doMultipart(r, body, ct)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, stagingEmpty(t, dir), "staged file removed after send failure")
}
