package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dwatch/displacement-watch/app/database"
	"github.com/dwatch/displacement-watch/app/feed"
	"github.com/dwatch/displacement-watch/app/pipeline"
	"github.com/dwatch/displacement-watch/app/tasks"
)

type HandlerOptions struct {
	Runner     tasks.DailyRunner
	RunOptions pipeline.Options
	Scheduler  tasks.TaskSchedulerInterface
	Metrics    http.Handler
	BaseURL    string
	Version    string
}

func NewHandler(selections SelectionReader, itemRepo database.ItemRepository,
	reportRepo database.ReportRepository, opts HandlerOptions) *Handler {
	return &Handler{
		selections: selections,
		itemRepo:   itemRepo,
		reportRepo: reportRepo,
		generator:  feed.NewGenerator(),
		runner:     opts.Runner,
		runOptions: opts.RunOptions,
		scheduler:  opts.Scheduler,
		metrics:    opts.Metrics,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		version:    opts.Version,
		now:        time.Now,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"version":   h.version,
	}

	if itemCount, err := h.itemRepo.GetItemCount(c.Request.Context()); err == nil {
		health["items"] = itemCount
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetLatestSelection(c *gin.Context) {
	date, selected, err := h.selections.LatestSelection(c.Request.Context())
	if err != nil {
		h.selectionError(c, "latest", err)
		return
	}

	h.writeSelection(c, date, selected)
}

func (h *Handler) GetSelection(c *gin.Context) {
	date, ok := parseDateParam(c)
	if !ok {
		return
	}

	selected, err := h.selections.SelectedItems(c.Request.Context(), date)
	if err != nil {
		h.selectionError(c, date, err)
		return
	}

	h.writeSelection(c, date, selected)
}

func (h *Handler) GetSelectionRSS(c *gin.Context) {
	date, ok := parseDateParam(c)
	if !ok {
		return
	}

	selected, err := h.selections.SelectedItems(c.Request.Context(), date)
	if err != nil {
		h.selectionError(c, date, err)
		return
	}

	channel := feed.Channel{
		Title:       fmt.Sprintf("Displacement Watch: top developments %s", date),
		Link:        h.baseURL + "/selections/" + date,
		Description: fmt.Sprintf("Ranked displacement news selected for %s", date),
		Generator:   "Displacement Watch " + h.version,
	}
	if h.baseURL != "" {
		channel.SelfURL = h.baseURL + "/selections/" + date + "/rss"
	}

	rss, err := h.generator.Run(channel, selected)
	if err != nil {
		slog.Error("RSS generation error", "date", date, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Selection-Items", strconv.Itoa(len(selected)))
	c.Header("X-Selection-Date", date)

	c.String(http.StatusOK, rss)
}

func (h *Handler) GetTrends(c *gin.Context) {
	snapshot, err := h.selections.Trends(c.Request.Context(), h.now())
	if err != nil {
		slog.Error("Database error", "operation", "get_trends", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

func (h *Handler) GetMetrics(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusNotFound)
		return
	}
	h.metrics.ServeHTTP(c.Writer, c.Request)
}

func (h *Handler) APIEnqueueRun(c *gin.Context) {
	if h.scheduler == nil || h.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler not running"})
		return
	}

	runTask := tasks.NewDailyRunTask(h.runner, h.runOptions, h.now)
	if err := h.scheduler.EnqueueTask(runTask); err != nil {
		slog.Error("Error enqueueing daily run task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to enqueue daily run task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"task": gin.H{
			"id":   runTask.ID,
			"type": runTask.Type,
		},
	})
}

func (h *Handler) APIGetLatestProposal(c *gin.Context) {
	proposal, err := h.reportRepo.GetLatestQueryProposal(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "get_latest_proposal", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if proposal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no proposal"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         proposal.ID,
		"created_at": proposal.CreatedAt,
		"proposal":   jsonOrNull(proposal.ProposalJSON),
		"rationale":  proposal.Rationale,
	})
}

func (h *Handler) writeSelection(c *gin.Context, date string, selected []database.SelectedItem) {
	response := NewSelectionResponse(date, selected)

	meta, err := h.reportRepo.GetReportMeta(c.Request.Context(), date)
	if err != nil {
		slog.Warn("Failed to load report meta", "date", date, "error", err)
	} else if meta != nil {
		response.Meta = jsonOrNull(meta.MetaJSON)
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) selectionError(c *gin.Context, date string, err error) {
	if errors.Is(err, pipeline.ErrNoSelection) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no selection", "date": date})
		return
	}

	slog.Error("Database error", "operation", "get_selection", "date", date, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
}

func parseDateParam(c *gin.Context) (string, bool) {
	date := c.Param("date")
	if _, err := time.Parse(database.DateLayout, date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, expected YYYY-MM-DD"})
		return "", false
	}
	return date, true
}

func jsonOrNull(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(raw)
}
