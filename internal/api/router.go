// Package api exposes the engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"steem-patron-bot/internal/domain"
	"steem-patron-bot/internal/observability"
	"steem-patron-bot/internal/registration"
	"steem-patron-bot/internal/storage"
)

// Registrar issues and looks up verification claims.
type Registrar interface {
	Register(ctx context.Context, username, claimantID, channelID string) (*registration.Instructions, error)
	Lookup(ctx context.Context, code string) (*domain.Claim, error)
}

// Voter performs manual curation.
type Voter interface {
	ManualUpvote(ctx context.Context, url, weight string) (*domain.CycleReport, error)
	VotingPower(ctx context.Context) (float64, error)
}

// ReadyCheck reports whether a dependency is usable.
type ReadyCheck func(ctx context.Context) error

// Options configures the router.
type Options struct {
	Registrar Registrar
	Voter     Voter
	Patrons   storage.PatronStore
	Outcomes  storage.OutcomeStore // optional; enables GET /v1/reports
	// Token guards /v1. Empty disables authentication.
	Token  string
	Checks map[string]ReadyCheck
	Logger zerolog.Logger
	Now    func() time.Time
}

type handler struct {
	registrar Registrar
	voter     Voter
	patrons   storage.PatronStore
	outcomes  storage.OutcomeStore
	checks    map[string]ReadyCheck
	logger    zerolog.Logger
	now       func() time.Time
}

// NewRouter builds the gin engine.
func NewRouter(opts Options) *gin.Engine {
	h := &handler{
		registrar: opts.Registrar,
		voter:     opts.Voter,
		patrons:   opts.Patrons,
		outcomes:  opts.Outcomes,
		checks:    opts.Checks,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if h.now == nil {
		h.now = time.Now
	}

	r := gin.New()
	r.Use(requestID(), requestLogger(opts.Logger), recovery(opts.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", h.ready)
	r.GET("/metrics", gin.WrapH(observability.Handler()))

	v1 := r.Group("/v1", requireToken(opts.Token))
	{
		v1.POST("/claims", h.createClaim)
		v1.GET("/claims/:code", h.getClaim)
		v1.GET("/voting-power", h.votingPower)
		v1.POST("/upvotes", h.upvote)
		v1.GET("/patrons", h.listPatrons)
		v1.PUT("/patrons/:claimant_id", h.putPatron)
		v1.DELETE("/patrons/:claimant_id", h.deletePatron)
		if h.outcomes != nil {
			v1.GET("/reports", h.listReports)
		}
	}
	return r
}
