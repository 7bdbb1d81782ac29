package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/satriahrh/backbone/domain"
	"github.com/satriahrh/backbone/utils/log"
	"go.uber.org/zap"
)

const MaxAudioSize = 8 * 1024 * 1024

type ChatHandler struct {
	session     domain.Conversation
	hasher      domain.Hasher
	transcriber domain.Transcriber
	synthesizer domain.Synthesizer
}

type TextRequest struct {
	Text *string `json:"text"`
}

type SubmitResponse struct {
	Submitted bool                `json:"submitted"`
	Exchange  *domain.Exchange    `json:"exchange,omitempty"`
	Heard     string              `json:"heard,omitempty"`
	State     domain.SessionState `json:"state"`
}

// NewChatHandler builds the REST surface. transcriber and synthesizer may be
// nil, in which case the voice endpoints answer 501.
func NewChatHandler(session domain.Conversation, hasher domain.Hasher, transcriber domain.Transcriber, synthesizer domain.Synthesizer) *ChatHandler {
	return &ChatHandler{
		session:     session,
		hasher:      hasher,
		transcriber: transcriber,
		synthesizer: synthesizer,
	}
}

func (h *ChatHandler) Register(api *echo.Group) {
	api.GET("/health", h.HealthCheck)

	session := api.Group("/session")
	session.GET("", h.GetSession)
	session.PUT("/draft", h.PutDraft)
	session.POST("/messages", h.PostMessage)
	session.POST("/audio", h.PostAudio)
	session.GET("/turns/:index/speech", h.GetTurnSpeech)
}

// Health check endpoint
func (h *ChatHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"service":    "backbone-coach",
		"session_id": h.session.ID(),
	})
}

// GetSession returns the current state, tagged with a fingerprint so that
// polling renderers can skip unchanged transcripts.
func (h *ChatHandler) GetSession(c echo.Context) error {
	state := h.session.State()

	body, err := json.Marshal(state)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to encode session")
	}
	etag := h.hasher.Hash(body)

	c.Response().Header().Set("ETag", etag)
	if match := c.Request().Header.Get("If-None-Match"); match != "" && match == etag {
		return c.NoContent(http.StatusNotModified)
	}
	return c.JSONBlob(http.StatusOK, body)
}

func (h *ChatHandler) PutDraft(c echo.Context) error {
	var req TextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.Text == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing text")
	}

	h.session.SetDraft(*req.Text)
	return c.JSON(http.StatusOK, h.session.State())
}

// PostMessage runs one submit cycle with the given text, or with the draft
// when no text is given. Blank input leaves the session untouched.
func (h *ChatHandler) PostMessage(c echo.Context) error {
	var req TextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	ctx := h.requestContext(c)

	var (
		exchange domain.Exchange
		ok       bool
	)
	if req.Text == nil {
		exchange, ok = h.session.SubmitDraft(ctx)
	} else {
		exchange, ok = h.session.Submit(ctx, *req.Text)
	}

	return c.JSON(http.StatusOK, h.submitResponse(exchange, ok, ""))
}

// PostAudio transcribes a LINEAR16 recording and submits it as a user turn.
func (h *ChatHandler) PostAudio(c echo.Context) error {
	if h.transcriber == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "Voice input is disabled")
	}

	contentType := c.Request().Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "audio/") && !strings.HasPrefix(contentType, "application/octet-stream") {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid content type. Expected audio/* or application/octet-stream")
	}

	audio, err := io.ReadAll(io.LimitReader(c.Request().Body, MaxAudioSize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read audio")
	}
	if len(audio) > MaxAudioSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Audio too large")
	}
	if len(audio) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "Empty audio")
	}

	ctx := h.requestContext(c)
	text, err := h.transcriber.Transcribe(ctx, audio)
	if err != nil {
		log.WithCtx(ctx).Error("❌ Transcription failed", zap.Error(err), zap.Int("audio_size", len(audio)))
		return echo.NewHTTPError(http.StatusBadGateway, "Failed to transcribe audio")
	}

	exchange, ok := h.session.Submit(ctx, text)
	return c.JSON(http.StatusOK, h.submitResponse(exchange, ok, text))
}

// GetTurnSpeech speaks the content of one transcript turn as MP3.
func (h *ChatHandler) GetTurnSpeech(c echo.Context) error {
	if h.synthesizer == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "Voice output is disabled")
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid turn index")
	}

	transcript := h.session.State().Transcript
	if index < 0 || index >= len(transcript) {
		return echo.NewHTTPError(http.StatusNotFound, "Turn not found")
	}

	ctx := h.requestContext(c)
	audio, err := h.synthesizer.Synthesize(ctx, transcript[index].Content)
	if err != nil {
		log.WithCtx(ctx).Error("❌ Speech synthesis failed", zap.Error(err), zap.Int("index", index))
		return echo.NewHTTPError(http.StatusBadGateway, "Failed to synthesize speech")
	}

	return c.Blob(http.StatusOK, "audio/mpeg", audio)
}

func (h *ChatHandler) submitResponse(exchange domain.Exchange, ok bool, heard string) SubmitResponse {
	resp := SubmitResponse{
		Submitted: ok,
		Heard:     heard,
		State:     h.session.State(),
	}
	if ok {
		resp.Exchange = &exchange
	}
	return resp
}

// requestContext detaches from client cancellation so a cycle always
// settles, and carries the request ID for logging.
func (h *ChatHandler) requestContext(c echo.Context) context.Context {
	ctx := context.WithoutCancel(c.Request().Context())
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		ctx = context.WithValue(ctx, log.RequestIDKey, id)
	}
	return ctx
}
