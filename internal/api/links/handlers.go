// Package links implements the internal /api/v1 handlers used by
// collaborating services: the link-sending workflow mints intake links here,
// business logic revokes them when a prospect is deleted or superseded, and
// ops tooling reads access history and triggers maintenance sweeps. The whole
// surface sits behind the service-key middleware — unlike the form endpoints,
// nothing here is reachable by a prospect.
package links

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/formgate/formgate/internal/db/models"
)

// LinkIssuer mints a new signed intake link token for a subject.
type LinkIssuer interface {
	Issue(ctx context.Context, subjectID string) (string, error)
}

// LinkRevoker invalidates issued tokens.
type LinkRevoker interface {
	RevokeToken(ctx context.Context, token string) error
	RevokeSubject(ctx context.Context, subjectID string) (int64, error)
}

// TokenLister reads a subject's issued tokens.
type TokenLister interface {
	ListBySubject(ctx context.Context, subjectID string) ([]*models.AccessToken, error)
}

// AccessLogLister reads a subject's access history.
type AccessLogLister interface {
	ListBySubject(ctx context.Context, subjectID string, limit, offset int) ([]*models.AccessLogEntry, int, error)
}

// Sweeper runs a manual retention sweep.
type Sweeper interface {
	RunOnce(ctx context.Context) (int64, error)
}

// Handlers serves the internal link management endpoints.
type Handlers struct {
	issuer    LinkIssuer
	revoker   LinkRevoker
	tokens    TokenLister
	accessLog AccessLogLister
	sweeper   Sweeper
	publicURL string
	tokenTTL  time.Duration
}

// NewHandlers creates the link management Handlers. publicURL is the
// public-facing base the form link is built on; tokenTTL mirrors the issuer's
// validity window for display purposes.
func NewHandlers(
	issuer LinkIssuer,
	revoker LinkRevoker,
	tokens TokenLister,
	accessLog AccessLogLister,
	sweeper Sweeper,
	publicURL string,
	tokenTTL time.Duration,
) *Handlers {
	return &Handlers{
		issuer:    issuer,
		revoker:   revoker,
		tokens:    tokens,
		accessLog: accessLog,
		sweeper:   sweeper,
		publicURL: publicURL,
		tokenTTL:  tokenTTL,
	}
}

// CreateLinkRequest is the payload for minting a new intake link.
type CreateLinkRequest struct {
	SubjectID string `json:"subject_id" binding:"required"`
}

// CreateLinkHandler mints a new intake link for a subject.
// POST /api/v1/links
func (h *Handlers) CreateLinkHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateLinkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "subject_id is required",
			})
			return
		}

		token, err := h.issuer.Issue(c.Request.Context(), req.SubjectID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to issue link",
			})
			return
		}

		link := fmt.Sprintf("%s/form/access?token=%s&client=%s",
			h.publicURL, url.QueryEscape(token), url.QueryEscape(req.SubjectID))

		slog.Info("intake link issued", "subject_id", req.SubjectID)

		c.JSON(http.StatusCreated, gin.H{
			"subject_id": req.SubjectID,
			"token":      token,
			"url":        link,
			"expires_at": time.Now().Add(h.tokenTTL).Format(time.RFC3339),
		})
	}
}

// RevokeLinkHandler revokes a single link. Revocation is idempotent, so the
// response is 204 whether or not the token was still active.
// DELETE /api/v1/links/:token
func (h *Handlers) RevokeLinkHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")

		if err := h.revoker.RevokeToken(c.Request.Context(), token); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to revoke link",
			})
			return
		}

		// The token value itself stays out of the log line; it is a live
		// credential until the revocation commits.
		slog.Info("intake link revoked")

		c.Status(http.StatusNoContent)
	}
}

// RevokeSubjectLinksHandler revokes every link issued to a subject. The bulk
// revoke is not atomic across rows; the response reports how many rows
// actually changed so callers can retry until it settles at zero.
// DELETE /api/v1/subjects/:id/links
func (h *Handlers) RevokeSubjectLinksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectID := c.Param("id")

		count, err := h.revoker.RevokeSubject(c.Request.Context(), subjectID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "failed to revoke links for subject",
				"revoked": count,
			})
			return
		}

		slog.Info("subject links revoked", "subject_id", subjectID, "count", count)

		c.JSON(http.StatusOK, gin.H{
			"subject_id": subjectID,
			"revoked":    count,
		})
	}
}

// ListLinksHandler lists every link issued to a subject, newest first.
// GET /api/v1/subjects/:id/links
func (h *Handlers) ListLinksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectID := c.Param("id")

		tokens, err := h.tokens.ListBySubject(c.Request.Context(), subjectID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to list links",
			})
			return
		}

		resp := make([]gin.H, 0, len(tokens))
		for _, t := range tokens {
			var lastUsed interface{}
			if t.LastUsedAt != nil {
				lastUsed = t.LastUsedAt.Format(time.RFC3339)
			}

			resp = append(resp, gin.H{
				"id":           t.ID,
				"token":        t.Token,
				"issued_at":    t.IssuedAt.Format(time.RFC3339),
				"expires_at":   t.ExpiresAt.Format(time.RFC3339),
				"revoked":      t.Revoked,
				"last_used_at": lastUsed,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"subject_id": subjectID,
			"links":      resp,
		})
	}
}

// AccessLogHandler returns a subject's access history with pagination.
// GET /api/v1/subjects/:id/access-log?limit=50&offset=0
func (h *Handlers) AccessLogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectID := c.Param("id")

		limit := parsePositiveInt(c.Query("limit"), 50)
		if limit > 500 {
			limit = 500
		}
		offset := parsePositiveInt(c.Query("offset"), 0)

		entries, total, err := h.accessLog.ListBySubject(c.Request.Context(), subjectID, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to list access log",
			})
			return
		}

		resp := make([]gin.H, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, gin.H{
				"id":         e.ID,
				"subject_id": e.SubjectID,
				"action":     e.Action,
				"ip_address": e.IPAddress,
				"user_agent": e.UserAgent,
				"created_at": e.CreatedAt.Format(time.RFC3339),
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"subject_id": subjectID,
			"entries":    resp,
			"total":      total,
			"limit":      limit,
			"offset":     offset,
		})
	}
}

// SweepHandler runs a manual retention sweep of expired token rows.
// POST /api/v1/maintenance/sweep
func (h *Handlers) SweepHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := h.sweeper.RunOnce(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "sweep failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"deleted": count,
		})
	}
}

func parsePositiveInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
