// Package form implements the front-door HTTP handlers a prospect's browser
// hits when following an intake link. These endpoints are intentionally
// unauthenticated — the link token IS the credential — and sit behind the
// sliding-window rate limiter registered in internal/api/router.go.
//
// Denial contract: verification failures collapse to exactly two externally
// visible experiences. ExpiredClaim/Expired render 410 "link expired" so the
// prospect knows to request a fresh link; every other reason (malformed,
// unknown, revoked, store outage) renders an identical 403 "access denied" so
// an attacker cannot distinguish a wrong token from a valid-but-revoked one.
// The specific reason stays in server-side logs and metrics only.
package form

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/formgate/formgate/internal/audit"
	"github.com/formgate/formgate/internal/auth"
	"github.com/formgate/formgate/internal/middleware"
)

// TokenVerifier validates a presented link token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) auth.Result
}

// AccessRecorder appends entries to the access trail. Implementations absorb
// their own failures; Record never reports back.
type AccessRecorder interface {
	Record(subjectID string, action audit.Action, ipAddress, userAgent string)
}

// Handlers serves the prospect-facing form endpoints.
type Handlers struct {
	verifier        TokenVerifier
	recorder        AccessRecorder
	trustedIPHeader string
}

// NewHandlers creates the form Handlers.
func NewHandlers(verifier TokenVerifier, recorder AccessRecorder, trustedIPHeader string) *Handlers {
	return &Handlers{
		verifier:        verifier,
		recorder:        recorder,
		trustedIPHeader: trustedIPHeader,
	}
}

// submitRequest carries the token for the POST endpoints, where it arrives in
// the body rather than the query string.
type submitRequest struct {
	Token string `json:"token" binding:"required"`
}

// AccessHandler handles the initial form open.
// GET /form/access?token=...
func (h *Handlers) AccessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, ok := h.gate(c, c.Query("token"))
		if !ok {
			return
		}

		h.record(c, res.SubjectID, audit.ActionView)

		c.JSON(http.StatusOK, gin.H{
			"subject_id": res.SubjectID,
			"expires_at": res.ExpiresAt.Format(time.RFC3339),
		})
	}
}

// DraftHandler handles intermediate form saves.
// POST /form/draft
func (h *Handlers) DraftHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			denyGeneric(c)
			return
		}

		res, ok := h.gate(c, req.Token)
		if !ok {
			return
		}

		h.record(c, res.SubjectID, audit.ActionEdit)

		c.Status(http.StatusNoContent)
	}
}

// SubmitHandler handles the final form submission.
// POST /form/submit
//
// The submitted field payload itself is handed to the intake pipeline by the
// portal backend; this service only answers whether the credential authorizes
// the submission and records that it happened.
func (h *Handlers) SubmitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			denyGeneric(c)
			return
		}

		res, ok := h.gate(c, req.Token)
		if !ok {
			return
		}

		h.record(c, res.SubjectID, audit.ActionSubmit)

		c.JSON(http.StatusAccepted, gin.H{
			"status":     "accepted",
			"subject_id": res.SubjectID,
		})
	}
}

// gate verifies the token and writes the appropriate denial response when it
// is invalid. Returns ok=false when the request has been answered.
func (h *Handlers) gate(c *gin.Context, token string) (auth.Result, bool) {
	if token == "" {
		denyGeneric(c)
		return auth.Result{}, false
	}

	res := h.verifier.Verify(c.Request.Context(), token)
	if res.Valid() {
		return res, true
	}

	if res.Reason.IsExpiry() {
		c.AbortWithStatusJSON(http.StatusGone, gin.H{
			"error": "link expired",
		})
		return auth.Result{}, false
	}

	denyGeneric(c)
	return auth.Result{}, false
}

func (h *Handlers) record(c *gin.Context, subjectID string, action audit.Action) {
	ip := middleware.ClientIP(c, h.trustedIPHeader)
	if ip == "" {
		ip = c.ClientIP()
	}
	h.recorder.Record(subjectID, action, ip, c.Request.UserAgent())
}

// denyGeneric is the single response body shared by every non-expiry denial.
func denyGeneric(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"error": "access denied",
	})
}
