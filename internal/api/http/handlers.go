// Package http implements the gateway's request/response surface. All
// session access goes through the manager; handlers never touch the
// protocol capability directly.
package http

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/wagate/wagate/internal/domain/session"
	"github.com/wagate/wagate/internal/infrastructure/logging"
	"github.com/wagate/wagate/internal/shared/jid"
)

// qrImageSize is the side length of the rendered pairing PNG in pixels.
const qrImageSize = 256

// Manager is the session surface consumed by the handlers.
type Manager interface {
	Status() session.Snapshot
	PairingToken() string
	Send(ctx context.Context, to string, p session.Payload) (*session.SendResult, error)
}

// Handlers holds the gateway route handlers.
type Handlers struct {
	session   Manager
	uploadDir string
	logger    *logging.Logger
}

// NewHandlers creates the handler set. uploadDir stages media uploads;
// empty falls back to the OS temp dir.
func NewHandlers(manager Manager, uploadDir string, logger *logging.Logger) *Handlers {
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Handlers{
		session:   manager,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// Health reports session state and identity.
func (h *Handlers) Health(c *gin.Context) {
	snap := h.session.Status()

	resp := gin.H{"status": healthStatus(snap.State)}
	if snap.Identity != nil {
		resp["user"] = snap.Identity
	} else {
		resp["user"] = nil
	}
	c.JSON(http.StatusOK, resp)
}

// QR renders the current pairing token as a PNG.
func (h *Handlers) QR(c *gin.Context) {
	token := h.session.PairingToken()
	if token == "" {
		c.JSON(http.StatusNotFound, gin.H{
			"ok":    false,
			"error": "no pairing code available",
		})
		return
	}

	png, err := qrcode.Encode(token, qrcode.Medium, qrImageSize)
	if err != nil {
		h.logger.Error("failed to render pairing code", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"ok":    false,
			"error": "failed to render pairing code",
		})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// Send submits a text message.
func (h *Handlers) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":    false,
			"error": "invalid request body",
		})
		return
	}
	if strings.TrimSpace(req.To) == "" || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":    false,
			"error": "to and message are required",
		})
		return
	}

	res, err := h.session.Send(c.Request.Context(), jid.Normalize(req.To), session.TextPayload{Body: req.Message})
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "result": res})
}

// SendMedia stages a multipart upload and submits it as an image or
// document message. The staged file is removed on every exit path.
func (h *Handlers) SendMedia(c *gin.Context) {
	to := c.PostForm("to")
	caption := c.PostForm("caption")
	file, err := c.FormFile("file")
	if strings.TrimSpace(to) == "" || err != nil || file == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":    false,
			"error": "to and file are required",
		})
		return
	}

	if h.session.Status().State != session.StateConnected {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"ok":    false,
			"error": "session not connected",
		})
		return
	}

	staged := filepath.Join(h.uploadDir, uuid.NewString()+"-"+filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, staged); err != nil {
		h.logger.Error("failed to stage upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"ok":    false,
			"error": "failed to stage upload",
		})
		return
	}
	defer func() {
		if err := os.Remove(staged); err != nil {
			h.logger.Warn("failed to remove staged upload",
				zap.String("path", staged),
				zap.Error(err),
			)
		}
	}()

	data, err := os.ReadFile(staged)
	if err != nil {
		h.logger.Error("failed to read staged upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"ok":    false,
			"error": "failed to read staged upload",
		})
		return
	}

	payload := buildMediaPayload(data, file.Filename, file.Header.Get("Content-Type"), caption)

	res, err := h.session.Send(c.Request.Context(), jid.Normalize(to), payload)
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "result": res})
}

// buildMediaPayload classifies the upload by its declared media type,
// falling back to content sniffing when the declaration is absent or
// generic. Images carry only the optional caption; everything else is a
// document with the original filename and media type.
func buildMediaPayload(data []byte, filename, declared, caption string) session.Payload {
	contentType := declared
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(data).String()
	}

	if strings.HasPrefix(contentType, "image/") {
		return session.MediaPayload{
			Kind:     session.MediaImage,
			Data:     data,
			MimeType: contentType,
			Caption:  caption,
		}
	}
	return session.MediaPayload{
		Kind:     session.MediaDocument,
		Data:     data,
		MimeType: contentType,
		FileName: filename,
		Caption:  caption,
	}
}

func (h *Handlers) sendError(c *gin.Context, err error) {
	if errors.Is(err, session.ErrSessionUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"ok":    false,
			"error": "session not connected",
		})
		return
	}
	h.logger.Error("send failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"ok":    false,
		"error": err.Error(),
	})
}

func healthStatus(s session.State) string {
	switch s {
	case session.StateConnected:
		return "connected"
	case session.StateAwaitingScan:
		return "scan_qr"
	default:
		return "disconnected"
	}
}
