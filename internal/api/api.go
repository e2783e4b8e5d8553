// Package api exposes the attendance service over HTTP: the LINE webhook,
// the report endpoint, liveness and metrics.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/celerix-dev/celerix-attendance/internal/attendance"
	"github.com/celerix-dev/celerix-attendance/internal/engine"
	"github.com/celerix-dev/celerix-attendance/internal/log"
	"github.com/celerix-dev/celerix-attendance/internal/metrics"
	"github.com/celerix-dev/celerix-attendance/internal/report"
	"github.com/celerix-dev/celerix-attendance/pkg/schema"
)

// StatusText is served on GET /.
const StatusText = "出退勤管理Bot稼働中！"

type Handler struct {
	Machine  *attendance.Machine
	Events   attendance.EventSource
	Replier  attendance.Replier
	Sessions engine.SessionReader
	Names    engine.Directory
	Metrics  *metrics.Recorder
}

// RegisterRoutes mounts every endpoint on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/", h.Index)
	r.GET("/health", h.Health)
	r.POST("/webhook", h.Webhook)

	apiGroup := r.Group("/api", CORS())
	{
		apiGroup.GET("/attendance", h.Attendance)
		apiGroup.OPTIONS("/attendance", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	}

	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}
}

// CORS lets browser dashboards read the report.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept-Encoding, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (h *Handler) Index(c *gin.Context) {
	c.String(http.StatusOK, StatusText)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Attendance(c *gin.Context) {
	rows, err := report.Build(c.Request.Context(), h.Sessions, h.Names)
	if err != nil {
		log.Error(c.Request.Context()).Err(err).Msg("api: failed to build report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Webhook verifies a delivery, handles its events concurrently and answers
// with one element per event: nil for skipped events.
func (h *Handler) Webhook(c *gin.Context) {
	ctx := c.Request.Context()
	events, err := h.Events.ParseRequest(c.Request)
	if errors.Is(err, attendance.ErrInvalidSignature) {
		log.Warn(ctx).Msg("api: rejected webhook with invalid signature")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.Error(ctx).Err(err).Msg("api: failed to parse webhook")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	results := make([]*schema.EventResult, len(events))
	var g errgroup.Group
	for i, ev := range events {
		i, ev := i, ev
		g.Go(func() error {
			results[i] = h.handleEvent(ctx, ev)
			return nil
		})
	}
	_ = g.Wait()

	c.JSON(http.StatusOK, results)
}

func (h *Handler) handleEvent(ctx context.Context, ev attendance.Event) *schema.EventResult {
	// Group and room senders that never added the bot arrive without a user id.
	if !ev.IsText() || ev.UserID == "" {
		h.Metrics.Skipped()
		log.Ctx(ctx).Debug().Str("type", ev.Type).Str("message_type", ev.MessageType).Bool("has_user", ev.UserID != "").Msg("api: skipped event")
		return nil
	}

	ctx = log.WithContext(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Str("user_id", ev.UserID)
	})

	res, err := h.Machine.Handle(ctx, ev.UserID, ev.Text)
	if err != nil {
		log.Error(ctx).Err(err).Str("command", res.Command.String()).Msg("api: failed to record attendance")
	}
	if res.Name.Fallback {
		h.Metrics.NameFallback()
	}
	h.Metrics.Event(res.Command.String(), res.Outcome.String())

	if h.Replier != nil {
		if err := h.Replier.Reply(ctx, ev.ReplyToken, res.Reply); err != nil {
			h.Metrics.ReplyFailed()
			log.Warn(ctx).Err(err).Msg("api: failed to deliver reply")
		}
	}

	return &schema.EventResult{
		UserID:  ev.UserID,
		Command: res.Command.String(),
		Outcome: res.Outcome.String(),
	}
}
