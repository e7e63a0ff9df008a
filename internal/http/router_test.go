package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/hrms/internal/application"
)

type echoInput struct {
	Message string `json:"message"`
}

type echoResult struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type stubSessions map[string]application.Principal

func (s stubSessions) Authenticate(_ context.Context, token string) (application.Principal, error) {
	p, ok := s[token]
	if !ok {
		return application.Principal{}, application.ErrSessionRevoked
	}
	return p, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

var testExpiry = time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.add(Procedure{Name: "demo.echo", Query: true,
		call: withInput(func(_ context.Context, p application.Principal, in echoInput) (echoResult, error) {
			return echoResult{UserID: p.UserID, Message: in.Message}, nil
		})})
	r.add(Procedure{Name: "demo.invalid",
		call: withInputErr(func(context.Context, application.Principal, echoInput) error {
			return &application.ValidationError{FieldErrors: map[string]string{"title": "タイトルは必須です"}}
		})})
	r.add(Procedure{Name: "demo.broken",
		call: withIDErr(func(context.Context, application.Principal, string) error {
			return errors.New("disk on fire")
		})})
	r.add(Procedure{Name: "auth.login", Public: true, Limited: true,
		call: withInput(func(_ context.Context, _ application.Principal, in echoInput) (application.LoginResult, error) {
			if in.Message != "secret" {
				return application.LoginResult{}, application.ErrInvalidCredentials
			}
			expires := testExpiry
			return application.LoginResult{Token: "fresh-token", ExpiresAt: &expires}, nil
		})})
	r.add(Procedure{Name: "auth.logout", call: func(context.Context, application.Principal, json.RawMessage) (any, error) {
		return done(nil)
	}})
	return r
}

type memoryUploads struct {
	mu    sync.Mutex
	files map[string][]byte
	meta  map[string]application.Upload
}

type readSeekNopCloser struct{ *bytes.Reader }

func (readSeekNopCloser) Close() error { return nil }

func (m *memoryUploads) MaxBytes() int64 { return 1 << 10 }

func (m *memoryUploads) Store(_ context.Context, p application.Principal, file application.UploadFile) (application.Upload, error) {
	data, err := io.ReadAll(file.Body)
	if err != nil {
		return application.Upload{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	upload := application.Upload{
		ID:           "upload-1",
		UserID:       p.UserID,
		OriginalName: file.Name,
		ContentType:  file.ContentType,
		Size:         int64(len(data)),
		CreatedAt:    testExpiry,
		URL:          "/uploads/upload-1",
	}
	m.files[upload.ID] = data
	m.meta[upload.ID] = upload
	return upload, nil
}

func (m *memoryUploads) Open(_ context.Context, _ application.Principal, id string) (application.Upload, io.ReadSeekCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	upload, ok := m.meta[id]
	if !ok {
		return application.Upload{}, nil, application.NewRequestError(application.KindNotFound, "upload not found")
	}
	return upload, readSeekNopCloser{bytes.NewReader(m.files[id])}, nil
}

type routerFixture struct {
	handler http.Handler
	uploads *memoryUploads
}

func newRouterFixture(t *testing.T, limiter *LoginLimiter, pinger Pinger) routerFixture {
	t.Helper()
	if limiter == nil {
		limiter = NewLoginLimiter(600, 50)
	}
	uploads := &memoryUploads{files: map[string][]byte{}, meta: map[string]application.Upload{}}
	handler := NewRouter(RouterConfig{
		Registry: newTestRegistry(),
		Sessions: stubSessions{
			"good-token":  {UserID: "user-1", Role: application.RoleEmployee, SessionID: "s1"},
			"admin-token": {UserID: "admin-1", Role: application.RoleAdmin, SessionID: "s2"},
		},
		Uploads: uploads,
		Limiter: limiter,
		Metrics: NewMetrics(),
		Health:  pinger,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return routerFixture{handler: handler, uploads: uploads}
}

func (f routerFixture) do(t *testing.T, method, target, token string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (json.RawMessage, errorBody) {
	t.Helper()
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  errorBody       `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	return envelope.Result, envelope.Error
}

func TestRouter_Procedures(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, nil, nil)

	t.Run("POST calls the procedure as the session principal", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/rpc/demo.echo", "good-token", strings.NewReader(`{"message":"hi"}`))
		require.Equal(t, http.StatusOK, rec.Code)
		result, _ := decodeEnvelope(t, rec)
		assert.JSONEq(t, `{"userId":"user-1","message":"hi"}`, string(result))
	})

	t.Run("GET reads the input query parameter", func(t *testing.T) {
		target := "/rpc/demo.echo?input=" + url.QueryEscape(`{"message":"query"}`)
		rec := f.do(t, http.MethodGet, target, "good-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		result, _ := decodeEnvelope(t, rec)
		assert.JSONEq(t, `{"userId":"user-1","message":"query"}`, string(result))
	})

	t.Run("GET is rejected for mutations", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/rpc/demo.invalid", "good-token", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	})

	t.Run("missing session is unauthorized", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/rpc/demo.echo", "", strings.NewReader(`{}`))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		_, body := decodeEnvelope(t, rec)
		assert.Equal(t, string(application.KindUnauthorized), body.Code)
	})

	t.Run("revoked session is treated as anonymous", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/rpc/demo.echo", "stale-token", strings.NewReader(`{}`))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = f.do(t, http.MethodPost, "/rpc/auth.login", "stale-token", strings.NewReader(`{"message":"secret"}`))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown procedure", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/rpc/demo.missing", "good-token", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		_, body := decodeEnvelope(t, rec)
		assert.Equal(t, string(application.KindNotFound), body.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/rpc/demo.echo", "good-token", strings.NewReader(`{"message":`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("validation errors carry fields", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/rpc/demo.invalid", "good-token", strings.NewReader(`{}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		_, body := decodeEnvelope(t, rec)
		assert.Equal(t, string(application.KindBadRequest), body.Code)
		assert.Equal(t, map[string]string{"title": "タイトルは必須です"}, body.Fields)
	})

	t.Run("internal errors do not leak", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/rpc/demo.broken", "good-token", strings.NewReader(`{"id":"x"}`))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		_, body := decodeEnvelope(t, rec)
		assert.Equal(t, string(application.KindInternal), body.Code)
		assert.NotContains(t, body.Message, "disk on fire")
	})

	t.Run("invalid credentials get the localized message", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/rpc/auth.login", "", strings.NewReader(`{"message":"nope"}`))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		_, body := decodeEnvelope(t, rec)
		assert.Equal(t, "メールアドレスまたはパスワードが正しくありません", body.Message)
	})
}

func TestRouter_SessionCookie(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, nil, nil)

	rec := f.do(t, http.MethodPost, "/rpc/auth.login", "", strings.NewReader(`{"message":"secret"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookieName, cookies[0].Name)
	assert.Equal(t, "fresh-token", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Expires.Equal(testExpiry))

	req := httptest.NewRequest(http.MethodPost, "/rpc/demo.echo", strings.NewReader(`{"message":"cookie"}`))
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "good-token"})
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/rpc/auth.logout", "good-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "", cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestRouter_LoginRateLimit(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, NewLoginLimiter(1, 2), nil)

	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodPost, "/rpc/auth.login", "", strings.NewReader(`{"message":"nope"}`))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/rpc/auth.login", "", strings.NewReader(`{"message":"secret"}`))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// other procedures are not throttled
	rec = f.do(t, http.MethodPost, "/rpc/demo.echo", "good-token", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	healthy := newRouterFixture(t, nil, stubPinger{})
	rec := healthy.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy.do(t, http.MethodPost, "/rpc/demo.echo", "good-token", nil)
	rec = healthy.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `hrms_rpc_calls_total{code="OK",procedure="demo.echo"} 1`)
	assert.Contains(t, rec.Body.String(), `route="/rpc/{procedure}"`)

	down := newRouterFixture(t, nil, stubPinger{err: errors.New("closed")})
	rec = down.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_Uploads(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, nil, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	part, err := mw.CreateFormFile("file", "report.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("quarterly numbers"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	payload := buf.Bytes()

	newUpload := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader(payload))
		req.Header.Set("Content-Type", mw.FormDataContentType())
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := newUpload("")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = newUpload("good-token")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result, _ := decodeEnvelope(t, rec)
	var upload application.Upload
	require.NoError(t, json.Unmarshal(result, &upload))
	assert.Equal(t, "report.txt", upload.OriginalName)
	assert.Equal(t, "user-1", upload.UserID)
	assert.EqualValues(t, len("quarterly numbers"), upload.Size)

	rec = f.do(t, http.MethodGet, upload.URL, "good-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "quarterly numbers", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename=report.txt`)

	rec = f.do(t, http.MethodGet, "/uploads/missing", "good-token", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/upload", "good-token", strings.NewReader("plain"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSocketHandler(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t, nil, nil)
	server := httptest.NewServer(f.handler)
	t.Cleanup(server.Close)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/rpc/ws"

	dial := func(token string) *websocket.Conn {
		t.Helper()
		header := http.Header{}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		require.NoError(t, err)
		resp.Body.Close()
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	roundTrip := func(conn *websocket.Conn, frame string) map[string]json.RawMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
		var resp map[string]json.RawMessage
		require.NoError(t, conn.ReadJSON(&resp))
		return resp
	}

	conn := dial("good-token")
	resp := roundTrip(conn, `{"id":7,"procedure":"demo.echo","input":{"message":"over ws"}}`)
	assert.JSONEq(t, `7`, string(resp["id"]))
	assert.JSONEq(t, `{"userId":"user-1","message":"over ws"}`, string(resp["result"]))
	assert.NotContains(t, resp, "error")

	resp = roundTrip(conn, `{"id":"abc","procedure":"demo.missing"}`)
	assert.JSONEq(t, `"abc"`, string(resp["id"]))
	var body errorBody
	require.NoError(t, json.Unmarshal(resp["error"], &body))
	assert.Equal(t, string(application.KindNotFound), body.Code)

	resp = roundTrip(conn, `not json`)
	assert.JSONEq(t, `null`, string(resp["id"]))
	require.NoError(t, json.Unmarshal(resp["error"], &body))
	assert.Equal(t, string(application.KindBadRequest), body.Code)

	anonymous := dial("")
	resp = roundTrip(anonymous, `{"id":1,"procedure":"demo.echo","input":{}}`)
	require.NoError(t, json.Unmarshal(resp["error"], &body))
	assert.Equal(t, string(application.KindUnauthorized), body.Code)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := newTestRegistry()
	assert.Equal(t, []string{"auth.login", "auth.logout", "demo.broken", "demo.echo", "demo.invalid"}, r.Names())
	assert.Panics(t, func() { r.add(Procedure{Name: "demo.echo"}) })

	_, err := r.Call(context.Background(), "demo.echo", application.Principal{}, nil)
	assert.ErrorIs(t, err, application.ErrUnauthenticated)

	out, err := r.Call(context.Background(), "demo.echo", application.Principal{UserID: "u"}, json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Equal(t, echoResult{UserID: "u"}, out)
}
