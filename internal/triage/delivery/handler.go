package delivery

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mailsweep-backend/internal/digest"
	staterepo "mailsweep-backend/internal/state/repository"
	"mailsweep-backend/internal/triage/usecase"
)

// pingInterval keeps SSE connections alive through idle proxies.
const pingInterval = 15 * time.Second

// TriageHandler exposes the cleanup jobs, sync, feedback, and digest
// endpoints.
type TriageHandler struct {
	controller       *usecase.Controller
	synchronizer     *usecase.Synchronizer
	feedback         *usecase.Feedback
	digest           *digest.Service
	store            staterepo.Store
	mailboxes        []string
	notifierEnabled  bool
	persistentStore  bool
	defaultBatchSize int
}

type HandlerOpts struct {
	Mailboxes        []string
	NotifierEnabled  bool
	PersistentStore  bool
	DefaultBatchSize int
}

func NewTriageHandler(controller *usecase.Controller, synchronizer *usecase.Synchronizer, feedback *usecase.Feedback, digestService *digest.Service, store staterepo.Store, opts HandlerOpts) *TriageHandler {
	return &TriageHandler{
		controller:       controller,
		synchronizer:     synchronizer,
		feedback:         feedback,
		digest:           digestService,
		store:            store,
		mailboxes:        opts.Mailboxes,
		notifierEnabled:  opts.NotifierEnabled,
		persistentStore:  opts.PersistentStore,
		defaultBatchSize: opts.DefaultBatchSize,
	}
}

// CleanupRequest is the body for starting or running a cleanup batch.
type CleanupRequest struct {
	Mailbox   string `json:"mailbox" binding:"required"`
	BatchSize int    `json:"batch_size"`
}

// StartCleanup launches a batch job and returns its id immediately.
// POST /api/cleanup/start
func (h *TriageHandler) StartCleanup(c *gin.Context) {
	var req CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.BatchSize <= 0 {
		req.BatchSize = h.defaultBatchSize
	}

	job, err := h.controller.Start(req.Mailbox, req.BatchSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  job.ID,
		"mailbox": job.Mailbox,
	})
}

// StreamEvents streams a job's progress as server-sent events until the job
// reaches a terminal state or the client disconnects.
// GET /api/cleanup/events/:job_id
func (h *TriageHandler) StreamEvents(c *gin.Context) {
	jobID := c.Param("job_id")
	job, err := h.controller.Lookup(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	events := job.Events()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	drained := false
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				drained = true
				return false
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				return false
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			return true
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})

	if drained {
		h.controller.Release(jobID)
	}
}

// CancelCleanup requests cancellation of a running job.
// POST /api/cleanup/cancel
func (h *TriageHandler) CancelCleanup(c *gin.Context) {
	var req struct {
		JobID string `json:"job_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.controller.Cancel(req.JobID); err != nil {
		if errors.Is(err, usecase.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": req.JobID, "cancelled": true})
}

// RunCleanup executes a batch synchronously and returns the final result.
// POST /api/cleanup/run
func (h *TriageHandler) RunCleanup(c *gin.Context) {
	var req CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.BatchSize <= 0 {
		req.BatchSize = h.defaultBatchSize
	}

	result, err := h.controller.RunOnce(c.Request.Context(), req.Mailbox, req.BatchSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": result})
		return
	}
	c.JSON(http.StatusOK, result)
}

// SubmitFeedback applies a manual correction and records the derived
// criterion.
// POST /api/cleanup/feedback
func (h *TriageHandler) SubmitFeedback(c *gin.Context) {
	var req usecase.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid category %q", req.Category)})
		return
	}

	result, err := h.feedback.Apply(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Resync walks a mailbox's history from its stored checkpoint without
// waiting for a push notification. With force=true, messages that already
// have a processed decision are re-classified and re-acted on.
// POST /api/sync/:mailbox
func (h *TriageHandler) Resync(c *gin.Context) {
	mailbox := c.Param("mailbox")
	force := c.Query("force") == "true"

	result, err := h.synchronizer.Refresh(c.Request.Context(), mailbox, force)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": result})
		return
	}
	c.JSON(http.StatusOK, result)
}

// RegisterWatch registers push notifications for a mailbox and seeds its
// checkpoint.
// POST /api/watch/:mailbox
func (h *TriageHandler) RegisterWatch(c *gin.Context) {
	mailbox := c.Param("mailbox")
	historyID, err := h.synchronizer.RegisterWatch(c.Request.Context(), mailbox)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mailbox": mailbox, "history_id": historyID})
}

// Health reports readiness plus the checkpoint state of every configured
// mailbox.
// GET /api/health
func (h *TriageHandler) Health(c *gin.Context) {
	checkpoints := make(map[string]any, len(h.mailboxes))
	for _, mailbox := range h.mailboxes {
		cp, err := h.store.GetCheckpoint(c.Request.Context(), mailbox)
		switch {
		case err != nil:
			checkpoints[mailbox] = gin.H{"error": err.Error()}
		case cp == nil:
			checkpoints[mailbox] = gin.H{"watched": false}
		default:
			checkpoints[mailbox] = gin.H{
				"watched":          true,
				"history_id":       cp.HistoryID,
				"watch_expiration": cp.WatchExpiration,
			}
		}
	}

	storeMode := "memory"
	if h.persistentStore {
		storeMode = "database"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"store":         storeMode,
		"notifications": h.notifierEnabled,
		"mailboxes":     checkpoints,
	})
}

// RunDigest sends the queued should-read digest now.
// POST /api/digest
func (h *TriageHandler) RunDigest(c *gin.Context) {
	count, err := h.digest.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": count})
}
