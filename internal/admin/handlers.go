// Package admin provides the HTTP surface next to the line protocol:
// read-only snapshots of the registry, connection history, transcripts,
// metrics and the WebSocket transport.
package admin

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/collab-whiteboard/backend/internal/logger"
	"github.com/collab-whiteboard/backend/internal/model"
	"github.com/collab-whiteboard/backend/internal/registry"
	"github.com/collab-whiteboard/backend/internal/repository"
)

const defaultConnectionLimit = 50

// Handler serves the admin API.
type Handler struct {
	registry    *registry.Registry
	transcripts *logger.Store
	audit       *repository.ConnectionRepository
}

// NewHandler creates a Handler. transcripts and audit may be nil, in which
// case their routes answer 404.
func NewHandler(reg *registry.Registry, transcripts *logger.Store, audit *repository.ConnectionRepository) *Handler {
	return &Handler{
		registry:    reg,
		transcripts: transcripts,
		audit:       audit,
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BoardResponse is a board snapshot. Lines are included only for a single
// board.
type BoardResponse struct {
	ID        int          `json:"id"`
	Name      string       `json:"name"`
	LineCount int          `json:"lineCount"`
	Members   []string     `json:"members"`
	Lines     []model.Line `json:"lines,omitempty"`
}

// UserResponse is a user snapshot.
type UserResponse struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	BoardID int    `json:"boardId"`
}

// ConnectionResponse is one audit record.
type ConnectionResponse struct {
	ID             string `json:"id"`
	UserID         int    `json:"userId"`
	UserName       string `json:"userName"`
	Transport      string `json:"transport"`
	RemoteAddr     string `json:"remoteAddr"`
	Commands       int    `json:"commands"`
	Failures       int    `json:"failures"`
	CloseReason    string `json:"closeReason,omitempty"`
	ConnectedAt    string `json:"connectedAt"`
	DisconnectedAt string `json:"disconnectedAt,omitempty"`
}

func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func toBoardResponse(info model.BoardInfo) BoardResponse {
	members := info.Members
	if members == nil {
		members = []string{}
	}
	return BoardResponse{
		ID:        info.ID,
		Name:      info.Name,
		LineCount: info.LineCount,
		Members:   members,
	}
}

func toConnectionResponse(conn *model.Connection) ConnectionResponse {
	resp := ConnectionResponse{
		ID:          conn.ID,
		UserID:      conn.UserID,
		UserName:    conn.UserName,
		Transport:   conn.Transport,
		RemoteAddr:  conn.RemoteAddr,
		Commands:    conn.Commands,
		Failures:    conn.Failures,
		CloseReason: conn.CloseReason,
		ConnectedAt: conn.ConnectedAt.Format(time.RFC3339),
	}
	if conn.DisconnectedAt != nil {
		resp.DisconnectedAt = conn.DisconnectedAt.Format(time.RFC3339)
	}
	return resp
}

// Health handles GET /health. It reports 503 when the registry invariants
// do not hold.
func (h *Handler) Health(c *gin.Context) {
	if err := h.registry.CheckInvariants(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "inconsistent",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"users":  len(h.registry.Users()),
		"boards": len(h.registry.Boards()),
	})
}

// ListBoards handles GET /api/boards.
func (h *Handler) ListBoards(c *gin.Context) {
	boards := h.registry.Boards()
	resp := make([]BoardResponse, 0, len(boards))
	for _, b := range boards {
		resp = append(resp, toBoardResponse(b))
	}
	c.JSON(http.StatusOK, gin.H{"boards": resp})
}

// GetBoard handles GET /api/boards/:id, including the board's lines.
func (h *Handler) GetBoard(c *gin.Context) {
	boardID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Board id must be an integer")
		return
	}

	info, err := h.registry.Board(boardID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			sendError(c, http.StatusNotFound, "BOARD_NOT_FOUND", "Board "+c.Param("id")+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	lines, err := h.registry.Lines(boardID)
	if err != nil {
		sendError(c, http.StatusNotFound, "BOARD_NOT_FOUND", "Board "+c.Param("id")+" not found")
		return
	}

	resp := toBoardResponse(info)
	resp.Lines = lines
	c.JSON(http.StatusOK, resp)
}

// ListUsers handles GET /api/users.
func (h *Handler) ListUsers(c *gin.Context) {
	users := h.registry.Users()
	resp := make([]UserResponse, 0, len(users))
	for _, u := range users {
		boardID, err := h.registry.BoardOf(u.ID)
		if err != nil {
			// Logged out since the snapshot was taken.
			continue
		}
		resp = append(resp, UserResponse{ID: u.ID, Name: u.Name, BoardID: boardID})
	}
	c.JSON(http.StatusOK, gin.H{"users": resp})
}

// GetTranscript handles GET /api/users/:id/transcript, returning the
// buffered transcript tail of a connected user.
func (h *Handler) GetTranscript(c *gin.Context) {
	if h.transcripts == nil {
		sendError(c, http.StatusNotFound, "TRANSCRIPTS_DISABLED", "Transcripts are not enabled")
		return
	}
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "User id must be an integer")
		return
	}

	lines, ok := h.transcripts.Tail(userID)
	if !ok {
		sendError(c, http.StatusNotFound, "USER_NOT_FOUND", "No transcript for user "+c.Param("id"))
		return
	}
	if lines == nil {
		lines = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "events": lines})
}

// ListConnections handles GET /api/connections?limit=N&user=ID.
func (h *Handler) ListConnections(c *gin.Context) {
	if h.audit == nil {
		sendError(c, http.StatusNotFound, "AUDIT_DISABLED", "Connection audit is not enabled")
		return
	}

	var (
		conns []*model.Connection
		err   error
	)
	if user := c.Query("user"); user != "" {
		userID, convErr := strconv.Atoi(user)
		if convErr != nil {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "user must be an integer")
			return
		}
		conns, err = h.audit.ListByUser(c.Request.Context(), userID)
	} else {
		limit := defaultConnectionLimit
		if l := c.Query("limit"); l != "" {
			limit, err = strconv.Atoi(l)
			if err != nil || limit <= 0 {
				sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
				return
			}
		}
		conns, err = h.audit.ListRecent(c.Request.Context(), limit)
	}
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list connections: "+err.Error())
		return
	}

	resp := make([]ConnectionResponse, 0, len(conns))
	for _, conn := range conns {
		resp = append(resp, toConnectionResponse(conn))
	}
	open, err := h.audit.CountOpen(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to count connections: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": resp, "open": open})
}

// RegisterRoutes registers the API routes on a Gin router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/boards", h.ListBoards)
	rg.GET("/boards/:id", h.GetBoard)
	rg.GET("/users", h.ListUsers)
	rg.GET("/users/:id/transcript", h.GetTranscript)
	rg.GET("/connections", h.ListConnections)
}
