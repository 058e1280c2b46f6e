// Package api provides the read-only REST API over tickets and judge
// statistics, the health endpoint and the Telegram webhook receiver.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/judge-helpdesk-bot/internal/models"
	"github.com/aimd54/judge-helpdesk-bot/internal/service/stats"
	"github.com/aimd54/judge-helpdesk-bot/internal/service/tickets"
	"github.com/aimd54/judge-helpdesk-bot/pkg/logger"
)

// TicketService interface for ticket read operations.
type TicketService interface {
	ListByStatus(ctx context.Context, status models.TicketStatus, page, pageSize int) (*tickets.Page, error)
	GetDetails(ctx context.Context, id uint) (*tickets.Details, error)
}

// StatsService interface for statistics operations.
type StatsService interface {
	Overview(ctx context.Context) (*stats.Overview, error)
	Leaderboard(ctx context.Context, metric string, limit int) ([]stats.Entry, error)
}

// Handler handles ticket and statistics API requests.
type Handler struct {
	ticketService TicketService
	statsService  StatsService
	log           *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(ticketService *tickets.Service, statsService *stats.Service, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(ticketService, statsService, log)
}

// NewHandlerWithInterfaces creates a new API handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(ticketService TicketService, statsService StatsService, log *logger.Logger) *Handler {
	return &Handler{
		ticketService: ticketService,
		statsService:  statsService,
		log:           log,
	}
}

// ticketJSON is the API shape of a ticket card.
type ticketJSON struct {
	models.Ticket
	Owner    *personJSON   `json:"owner,omitempty"`
	Judge    *personJSON   `json:"judge,omitempty"`
	ClosedBy *personJSON   `json:"closed_by_user,omitempty"`
	System   bool          `json:"closed_by_system"`
	Comments []commentJSON `json:"comments"`
}

type personJSON struct {
	ID       int64       `json:"id"`
	Name     string      `json:"name"`
	Username *string     `json:"username,omitempty"`
	Role     models.Role `json:"role"`
}

type commentJSON struct {
	models.Comment
	Author string `json:"author"`
}

func person(u *models.User) *personJSON {
	if u == nil {
		return nil
	}
	return &personJSON{ID: u.ID, Name: u.DisplayName(), Username: u.Username, Role: u.Role}
}

// ListTickets returns one page of tickets.
// GET /api/v1/tickets?status=open&page=0&page_size=20.
func (h *Handler) ListTickets(c *gin.Context) {
	status := models.TicketStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid status: %s (valid: open, in_progress, closed)", status))
		return
	}

	page, err := h.parseInt(c, "page", 0, 0, 1<<20)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	pageSize, err := h.parseInt(c, "page_size", 0, 1, 100)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.ticketService.ListByStatus(c.Request.Context(), status, page, pageSize)
	if err != nil {
		h.log.Error().Err(err).Str("status", string(status)).Msg("Failed to list tickets")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve tickets")
		return
	}

	h.log.Debug().
		Str("status", string(status)).
		Int("page", result.Page).
		Int("tickets", len(result.Tickets)).
		Msg("Listed tickets")

	list := result.Tickets
	if list == nil {
		list = []models.Ticket{}
	}
	c.JSON(http.StatusOK, gin.H{
		"tickets":      list,
		"status":       status,
		"page":         result.Page,
		"total_pages":  result.TotalPages,
		"total":        result.Total,
		"generated_at": time.Now().UTC(),
	})
}

// GetTicket returns a ticket with its participants and comments.
// GET /api/v1/tickets/:id.
func (h *Handler) GetTicket(c *gin.Context) {
	id, err := h.parseTicketID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	details, err := h.ticketService.GetDetails(c.Request.Context(), id)
	if errors.Is(err, tickets.ErrTicketNotFound) {
		h.errorResponse(c, http.StatusNotFound, "Ticket not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Uint("ticket_id", id).Msg("Failed to get ticket")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve ticket")
		return
	}

	card := ticketJSON{
		Ticket:   details.Ticket,
		Owner:    person(details.Owner),
		Judge:    person(details.Judge),
		ClosedBy: person(details.ClosedBy),
		System:   details.ClosedBySystem(),
		Comments: make([]commentJSON, 0, len(details.Comments)),
	}
	for _, cv := range details.Comments {
		card.Comments = append(card.Comments, commentJSON{Comment: cv.Comment, Author: cv.Author})
	}

	c.JSON(http.StatusOK, gin.H{
		"ticket":       card,
		"generated_at": time.Now().UTC(),
	})
}

// GetStats returns ticket counts by status.
// GET /api/v1/stats.
func (h *Handler) GetStats(c *gin.Context) {
	overview, err := h.statsService.Overview(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get ticket stats")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve statistics")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":        overview,
		"generated_at": time.Now().UTC(),
	})
}

// GetLeaderboard ranks judges by workload.
// GET /api/v1/judges/leaderboard?metric=closed&limit=10.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	metric := c.DefaultQuery("metric", stats.MetricClosed)
	if err := h.validateMetric(metric); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := h.parseLimit(c, 10)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.statsService.Leaderboard(c.Request.Context(), metric, limit)
	if err != nil {
		h.log.Error().Err(err).Str("metric", metric).Msg("Failed to get judge leaderboard")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve leaderboard")
		return
	}

	h.log.Debug().
		Str("metric", metric).
		Int("limit", limit).
		Int("entries", len(entries)).
		Msg("Retrieved judge leaderboard")

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":   entries,
		"metric":        metric,
		"total_entries": len(entries),
		"generated_at":  time.Now().UTC(),
	})
}

// Helper functions

func (h *Handler) parseTicketID(c *gin.Context) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid ticket ID: %s", idStr)
	}
	return uint(id), nil
}

// parseLimit extracts and validates the limit query parameter.
func (h *Handler) parseLimit(c *gin.Context, defaultLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}

	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}

	if limit > 1000 {
		return 0, fmt.Errorf("limit cannot exceed 1000")
	}

	return limit, nil
}

// parseInt reads an optional integer query parameter within [lo, hi].
func (h *Handler) parseInt(c *gin.Context, name string, def, lo, hi int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter: %s", name, raw)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%s must be between %d and %d", name, lo, hi)
	}
	return n, nil
}

func (h *Handler) validateMetric(metric string) error {
	switch metric {
	case stats.MetricClosed, stats.MetricClaimed:
		return nil
	default:
		return fmt.Errorf("invalid metric: %s (valid: closed, claimed)", metric)
	}
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
