package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/backbone/adapters/hasher"
	"github.com/satriahrh/backbone/domain"
	"github.com/satriahrh/backbone/usecase"
)

type fixedCompleter struct {
	reply string
	err   error
}

func (f fixedCompleter) Complete(context.Context, domain.CompletionRequest) (domain.Turn, error) {
	if f.err != nil {
		return domain.Turn{}, f.err
	}
	return domain.NewTurn(domain.AssistantRole, f.reply), nil
}

type fakeTranscriber struct {
	text string
	err  error
	got  []byte
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio []byte) (string, error) {
	f.got = audio
	return f.text, f.err
}

type fakeSynthesizer struct {
	got string
	err error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.got = text
	if f.err != nil {
		return nil, f.err
	}
	return []byte("ID3-mp3"), nil
}

func newTestEcho(h *ChatHandler) *echo.Echo {
	e := echo.New()
	h.Register(e.Group("/api/v1"))
	return e
}

func do(e *echo.Echo, method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthCheck(t *testing.T) {
	session := usecase.NewConversationSession("coach", fixedCompleter{})
	e := newTestEcho(NewChatHandler(session, hasher.New(), nil, nil))

	rec := do(e, http.MethodGet, "/api/v1/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, session.ID(), body["session_id"])
}

func TestGetSession_ETag(t *testing.T) {
	session := usecase.NewConversationSession("coach", fixedCompleter{reply: "Great job!"})
	e := newTestEcho(NewChatHandler(session, hasher.New(), nil, nil))

	rec := do(e, http.MethodGet, "/api/v1/session", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	state := decode[domain.SessionState](t, rec)
	assert.Equal(t, session.ID(), state.ID)
	require.Len(t, state.Transcript, 1)
	assert.Equal(t, domain.SystemRole, state.Transcript[0].Role)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	session.Submit(context.Background(), "I ran 3 miles today")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, etag, rec.Header().Get("ETag"))
}

func TestPostMessage_EndToEnd(t *testing.T) {
	session := usecase.NewConversationSession("coach", fixedCompleter{reply: "Great job!"})
	e := newTestEcho(NewChatHandler(session, hasher.New(), nil, nil))

	rec := do(e, http.MethodPost, "/api/v1/session/messages", echo.MIMEApplicationJSON, `{"text":"I ran 3 miles today"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[SubmitResponse](t, rec)
	assert.True(t, resp.Submitted)
	require.NotNil(t, resp.Exchange)
	assert.Equal(t, "I ran 3 miles today", resp.Exchange.User.Content)
	assert.Equal(t, "Great job!", resp.Exchange.Reply.Content)
	assert.False(t, resp.Exchange.Failed)
	assert.Len(t, resp.State.Transcript, 3)
	assert.False(t, resp.State.Pending)
}

func TestPostMessage_BackendFailureIsNotAnHTTPError(t *testing.T) {
	session := usecase.NewConversationSession("coach", fixedCompleter{err: errors.New("503 from backend")})
	e := newTestEcho(NewChatHandler(session, hasher.New(), nil, nil))

	rec := do(e, http.MethodPost, "/api/v1/session/messages", echo.MIMEApplicationJSON, `{"text":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[SubmitResponse](t, rec)
	require.NotNil(t, resp.Exchange)
	assert.True(t, resp.Exchange.Failed)
	assert.Equal(t, usecase.FallbackReply, resp.Exchange.Reply.Content)
	assert.Equal(t, domain.AssistantRole, resp.Exchange.Reply.Role)
}

func TestPostMessage_BlankIsNoop(t *testing.T) {
	session := usecase.NewConversationSession("coach", fixedCompleter{reply: "unused"})
	e := newTestEcho(NewChatHandler(session, hasher.New(), nil, nil))

	rec := do(e, http.MethodPost, "/api/v1/session/messages", echo.MIMEApplicationJSON, `{"text":"   "}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[SubmitResponse](t, rec)
	assert.False(t, resp.Submitted)
	assert.Nil(t, resp.Exchange)
	assert.Len(t, resp.State.Transcript, 1)
}

func TestDraftThenSubmit(t *testing.T) {
	session := usecase.NewConversationSession("coach", fixedCompleter{reply: "Nice stretch!"})
	e := newTestEcho(NewChatHandler(session, hasher.New(), nil, nil))

	rec := do(e, http.MethodPut, "/api/v1/session/draft", echo.MIMEApplicationJSON, `{"text":"Stretched for 10 minutes"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Stretched for 10 minutes", decode[domain.SessionState](t, rec).Draft)

	rec = do(e, http.MethodPost, "/api/v1/session/messages", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[SubmitResponse](t, rec)
	assert.True(t, resp.Submitted)
	assert.Equal(t, "Stretched for 10 minutes", resp.Exchange.User.Content)
	assert.Empty(t, resp.State.Draft)
}

func TestPutDraft_Invalid(t *testing.T) {
	session := usecase.NewConversationSession("coach", fixedCompleter{})
	e := newTestEcho(NewChatHandler(session, hasher.New(), nil, nil))

	rec := do(e, http.MethodPut, "/api/v1/session/draft", echo.MIMEApplicationJSON, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPut, "/api/v1/session/draft", echo.MIMEApplicationJSON, `{"text":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostAudio(t *testing.T) {
	session := usecase.NewConversationSession("coach", fixedCompleter{reply: "Great job!"})
	transcriber := &fakeTranscriber{text: "I ran 3 miles today"}
	e := newTestEcho(NewChatHandler(session, hasher.New(), transcriber, nil))

	rec := do(e, http.MethodPost, "/api/v1/session/audio", "audio/wav", "RIFF-pcm-data")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RIFF-pcm-data", string(transcriber.got))

	resp := decode[SubmitResponse](t, rec)
	assert.Equal(t, "I ran 3 miles today", resp.Heard)
	assert.True(t, resp.Submitted)
	assert.Len(t, resp.State.Transcript, 3)

	largest := strings.Repeat("x", MaxAudioSize)
	rec = do(e, http.MethodPost, "/api/v1/session/audio", "audio/wav", largest)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, transcriber.got, MaxAudioSize)
}

func TestPostAudio_Errors(t *testing.T) {
	tests := []struct {
		name        string
		transcriber domain.Transcriber
		contentType string
		body        string
		want        int
	}{
		{"voice disabled", nil, "audio/wav", "x", http.StatusNotImplemented},
		{"wrong content type", &fakeTranscriber{}, echo.MIMEApplicationJSON, "{}", http.StatusBadRequest},
		{"empty audio", &fakeTranscriber{}, "audio/wav", "", http.StatusBadRequest},
		{"audio too large", &fakeTranscriber{text: "cut off"}, "audio/wav", strings.Repeat("x", MaxAudioSize+1), http.StatusRequestEntityTooLarge},
		{"transcription fails", &fakeTranscriber{err: errors.New("quota")}, "audio/wav", "x", http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := usecase.NewConversationSession("coach", fixedCompleter{reply: "ok"})
			e := newTestEcho(NewChatHandler(session, hasher.New(), tt.transcriber, nil))

			rec := do(e, http.MethodPost, "/api/v1/session/audio", tt.contentType, tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.Len(t, session.Transcript(), 1)
		})
	}
}

func TestGetTurnSpeech(t *testing.T) {
	session := usecase.NewConversationSession("coach", fixedCompleter{reply: "Great job!"})
	session.Submit(context.Background(), "I ran 3 miles today")
	synthesizer := &fakeSynthesizer{}
	e := newTestEcho(NewChatHandler(session, hasher.New(), nil, synthesizer))

	rec := do(e, http.MethodGet, "/api/v1/session/turns/2/speech", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "ID3-mp3", rec.Body.String())
	assert.Equal(t, "Great job!", synthesizer.got)

	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/api/v1/session/turns/3/speech", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/api/v1/session/turns/-1/speech", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/api/v1/session/turns/last/speech", "", "").Code)
}

func TestGetTurnSpeech_Errors(t *testing.T) {
	session := usecase.NewConversationSession("coach", fixedCompleter{})

	e := newTestEcho(NewChatHandler(session, hasher.New(), nil, nil))
	assert.Equal(t, http.StatusNotImplemented, do(e, http.MethodGet, "/api/v1/session/turns/0/speech", "", "").Code)

	e = newTestEcho(NewChatHandler(session, hasher.New(), nil, &fakeSynthesizer{err: errors.New("quota")}))
	assert.Equal(t, http.StatusBadGateway, do(e, http.MethodGet, "/api/v1/session/turns/0/speech", "", "").Code)
}
