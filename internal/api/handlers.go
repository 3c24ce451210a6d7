package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/eligibility"
	"steem-patron-bot/internal/registration"
	"steem-patron-bot/internal/storage"
)

type claimRequest struct {
	Username   string `json:"username"`
	ClaimantID string `json:"claimant_id"`
	ChannelID  string `json:"channel_id"`
}

type claimResponse struct {
	Code                string `json:"code"`
	RegistrationAccount string `json:"registration_account"`
	Amount              string `json:"amount"`
	Memo                string `json:"memo"`
	Created             bool   `json:"created"`
	Message             string `json:"message"`
}

type claimView struct {
	Code           string     `json:"code"`
	ClaimantID     string     `json:"claimant_id"`
	LedgerUsername string     `json:"ledger_username"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	LastTouched    time.Time  `json:"last_touched"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
}

type upvoteRequest struct {
	URL string `json:"url"`
	// Weight accepts a JSON number or string, validated as an integer percent.
	Weight json.RawMessage `json:"weight"`
}

type patronRequest struct {
	Tier string `json:"tier"`
}

type patronView struct {
	ClaimantID string    `json:"claimant_id"`
	Tier       string    `json:"tier"`
	Since      time.Time `json:"since"`
}

type reportView struct {
	Loop        string    `json:"loop"`
	Outcome     string    `json:"outcome"`
	StartedAt   time.Time `json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
	Author      string    `json:"author,omitempty"`
	Permlink    string    `json:"permlink,omitempty"`
	Weight      int       `json:"weight,omitempty"`
	VotingPower float64   `json:"voting_power,omitempty"`
	Confirmed   int       `json:"confirmed,omitempty"`
	Error       string    `json:"error,omitempty"`
	Message     string    `json:"message"`
}

func (h *handler) createClaim(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ins, err := h.registrar.Register(c.Request.Context(), req.Username, req.ClaimantID, req.ChannelID)
	if err != nil {
		h.fail(c, err)
		return
	}

	status := http.StatusOK
	if ins.Created {
		status = http.StatusCreated
	}
	c.JSON(status, claimResponse{
		Code:                ins.Code,
		RegistrationAccount: ins.RegistrationAccount,
		Amount:              ins.Amount.String(),
		Memo:                ins.Memo,
		Created:             ins.Created,
		Message:             ins.Message(),
	})
}

func (h *handler) getClaim(c *gin.Context) {
	claim, err := h.registrar.Lookup(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, claimView{
		Code:           claim.Code,
		ClaimantID:     claim.ClaimantID,
		LedgerUsername: claim.LedgerUsername,
		Status:         string(claim.Status),
		CreatedAt:      claim.CreatedAt,
		LastTouched:    claim.LastTouched,
		ConfirmedAt:    claim.ConfirmedAt,
	})
}

func (h *handler) votingPower(c *gin.Context) {
	vp, err := h.voter.VotingPower(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"voting_power": vp,
		"message":      fmt.Sprintf("Current vp: %%%.2f", vp),
	})
}

func (h *handler) upvote(c *gin.Context) {
	var req upvoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	weight := strings.Trim(strings.TrimSpace(string(req.Weight)), `"`)

	report, err := h.voter.ManualUpvote(c.Request.Context(), req.URL, weight)
	if err != nil {
		h.fail(c, err)
		return
	}
	if h.outcomes != nil {
		if err := h.outcomes.Append(c.Request.Context(), report); err != nil {
			h.logger.Error().Err(err).Msg("append manual vote report")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"author":       report.Author,
		"permlink":     report.Permlink,
		"weight":       report.Weight,
		"voting_power": report.VotingPower,
		"message":      fmt.Sprintf("Voted. Current vp: %%%.2f", report.VotingPower),
	})
}

func (h *handler) listPatrons(c *gin.Context) {
	patrons, err := h.patrons.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]patronView, 0, len(patrons))
	for _, p := range patrons {
		out = append(out, patronView{ClaimantID: p.ClaimantID, Tier: p.Tier, Since: p.Since})
	}
	c.JSON(http.StatusOK, gin.H{"patrons": out})
}

func (h *handler) putPatron(c *gin.Context) {
	var req patronRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	p := &domain.Patron{ClaimantID: c.Param("claimant_id"), Tier: req.Tier, Since: h.now().UTC()}
	if err := h.patrons.Upsert(c.Request.Context(), p); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) deletePatron(c *gin.Context) {
	if err := h.patrons.Remove(c.Request.Context(), c.Param("claimant_id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) listReports(c *gin.Context) {
	since := h.now().Add(-24 * time.Hour)
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC 3339"})
			return
		}
		since = t
	}

	reports, err := h.outcomes.ListSince(c.Request.Context(), domain.Loop(c.Query("loop")), since)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]reportView, 0, len(reports))
	for _, r := range reports {
		out = append(out, reportView{
			Loop:        string(r.Loop),
			Outcome:     r.Outcome.String(),
			StartedAt:   r.StartedAt,
			DurationMS:  r.Duration.Milliseconds(),
			Author:      r.Author,
			Permlink:    r.Permlink,
			Weight:      r.Weight,
			VotingPower: r.VotingPower,
			Confirmed:   r.Confirmed,
			Error:       r.Error,
			Message:     r.Message(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"reports": out})
}

func (h *handler) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	c.JSON(status, gin.H{"checks": results})
}

// fail maps domain errors to HTTP responses.
func (h *handler) fail(c *gin.Context, err error) {
	var verr *eligibility.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, storage.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
	case errors.Is(err, registration.ErrLedgerUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger unavailable, try again later"})
	default:
		h.logger.Error().Err(err).
			Str("request_id", c.GetString("request_id")).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
