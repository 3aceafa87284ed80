package handlers

import (
	"context"
	"net/http"
	"newsdigest-pipeline/internal/models"
	"newsdigest-pipeline/internal/pkg/logger"
	"newsdigest-pipeline/internal/services"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

const (
	socketWriteWait = 10 * time.Second
	socketReadWait  = 30 * time.Second
)

// StreamHandler runs one pipeline per websocket connection. The client sends
// a single PipelineSocketRequest frame and receives StreamEvent frames until
// the terminal one, after which the server closes the socket.
type StreamHandler struct {
	orchestrator      *services.Orchestrator
	logger            *logger.Logger
	validator         *validator.Validate
	upgrader          websocket.Upgrader
	defaultCredential string
}

func NewStreamHandler(orchestrator *services.Orchestrator, allowedOrigins []string, defaultCredential string, logger *logger.Logger) *StreamHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[origin] = true
	}

	return &StreamHandler{
		orchestrator:      orchestrator,
		logger:            logger,
		validator:         validator.New(),
		defaultCredential: defaultCredential,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin] || gin.Mode() == gin.DebugMode
			},
		},
	}
}

type socketWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *socketWriter) write(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	return w.conn.WriteJSON(v)
}

func (h *StreamHandler) Pipeline(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithRequestID(requestID(c)).WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	writer := &socketWriter{conn: conn}

	_ = conn.SetReadDeadline(time.Now().Add(socketReadWait))
	var req models.PipelineSocketRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = writer.write(models.NewErrorEvent(models.NewValidationError("INVALID_FRAME", "Invalid request frame", err.Error())))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		_ = writer.write(models.NewErrorEvent(models.NewValidationError("INVALID_REQUEST", "Invalid pipeline request", err.Error())))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	credential := strings.TrimSpace(req.APIKey)
	if credential == "" {
		credential = requestCredential(c, h.defaultCredential)
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// any frame or close from the client after the request cancels the run
	go func() {
		defer cancel()
		_, _, _ = conn.ReadMessage()
	}()

	emit := func(event models.StreamEvent) {
		if err := writer.write(event); err != nil {
			h.logger.WithRequestID(requestID(c)).WithError(err).Debug("Websocket write failed, cancelling run")
			cancel()
		}
	}

	startTime := time.Now()
	switch req.Action {
	case "enrich":
		h.orchestrator.StreamEnrich(ctx, req.Articles, credential, emit)
	case "summarize":
		h.orchestrator.StreamSummarize(ctx, req.URLs, models.MergeArticleMeta(req.Metadata, req.Articles), credential, emit)
	}

	h.logger.WithRequestID(requestID(c)).WithFields(logger.Fields{
		"action":   req.Action,
		"duration": time.Since(startTime).String(),
	}).Info("Websocket pipeline finished")

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(socketWriteWait))
}
