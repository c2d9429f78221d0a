package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/events"
	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/idempotency"
	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/models"
	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ReplayedHeader is set on a create response served from the idempotency cache.
const ReplayedHeader = "Idempotent-Replayed"

type IdempotencyCache interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Remember(ctx context.Context, key, id string) (bool, error)
}

// Transactions serves the /api/transactions routes. Events and Idempotency
// are optional.
type Transactions struct {
	Store       store.Store
	Events      events.Publisher
	Idempotency IdempotencyCache
	Now         func() time.Time
}

func (h *Transactions) Register(r gin.IRouter) {
	g := r.Group("/api/transactions")
	g.GET("", h.FindTransactions)
	g.GET("/:id", h.FindTransaction)
	g.POST("", h.CreateTransaction)
	g.PUT("/:id", h.UpdateTransaction)
	g.DELETE("/:id", h.DeleteTransaction)
}

func (h *Transactions) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// GET /api/transactions
// Find all transactions, optionally filtered by type and category
func (h *Transactions) FindTransactions(c *gin.Context) {
	started := time.Now()
	defer func() { log.Trace().Caller().Dur("duration_ms", time.Since(started)).Send() }()

	filter := store.Filter{
		Type:     models.TransactionType(c.Query("type")),
		Category: c.Query("category"),
	}
	log.Debug().Msgf("Filter: type=%q category=%q", filter.Type, filter.Category)

	transactions, err := h.Store.List(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, transactions)
}

// GET /api/transactions/:id
// Find a transaction
func (h *Transactions) FindTransaction(c *gin.Context) {
	started := time.Now()
	defer func() { log.Trace().Caller().Dur("duration_ms", time.Since(started)).Send() }()

	transaction, err := h.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, transaction)
}

// POST /api/transactions
// Create new transaction
func (h *Transactions) CreateTransaction(c *gin.Context) {
	started := time.Now()
	defer func() { log.Trace().Caller().Dur("duration_ms", time.Since(started)).Send() }()
	ctx := c.Request.Context()

	key := c.GetHeader(idempotency.Header)
	if key != "" && h.Idempotency != nil {
		if replayed := h.replay(c, key); replayed {
			return
		}
	}

	var input models.TransactionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		log.Debug().Err(err).Msg("CreateTransaction.error")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	transaction, err := input.Normalize(h.now())
	if err != nil {
		abortWithError(c, err)
		return
	}

	created, err := h.Store.Create(ctx, transaction)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if key != "" && h.Idempotency != nil {
		stored, err := h.Idempotency.Remember(ctx, key, created.ID)
		if err != nil {
			log.Error().Err(err).Str("id", created.ID).Msg("Failed to save idempotency key")
		} else if !stored && h.discard(c, key, created.ID) {
			return
		}
	}

	h.publish(ctx, events.TransactionCreated, created.ID, created)
	c.JSON(http.StatusCreated, created)
}

// replay answers the request from the idempotency cache. A cache failure or
// a since-deleted transaction falls through to a normal create.
func (h *Transactions) replay(c *gin.Context, key string) bool {
	ctx := c.Request.Context()

	id, ok, err := h.Idempotency.Lookup(ctx, key)
	if err != nil {
		log.Error().Err(err).Msg("Idempotency lookup failed")
		return false
	}
	if !ok {
		return false
	}

	transaction, err := h.Store.Get(ctx, id)
	if err != nil {
		log.Debug().Err(err).Str("id", id).Msg("Idempotent transaction unavailable")
		return false
	}
	c.Header(ReplayedHeader, "true")
	c.JSON(http.StatusCreated, transaction)
	return true
}

// discard handles a create that lost the race for its idempotency key: the
// duplicate is removed and the winning record replayed. It reports false when
// the winner cannot be served, leaving the duplicate in place.
func (h *Transactions) discard(c *gin.Context, key, duplicate string) bool {
	ctx := c.Request.Context()

	id, ok, err := h.Idempotency.Lookup(ctx, key)
	if err != nil || !ok || id == duplicate {
		log.Error().Err(err).Str("id", duplicate).Msg("Idempotency key taken but winner unknown")
		return false
	}
	winner, err := h.Store.Get(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Idempotent transaction unavailable")
		return false
	}
	if err := h.Store.Delete(ctx, duplicate); err != nil {
		log.Error().Err(err).Str("id", duplicate).Msg("Failed to remove duplicate transaction")
		return false
	}

	log.Debug().Str("id", id).Str("duplicate", duplicate).Msg("Duplicate create discarded")
	c.Header(ReplayedHeader, "true")
	c.JSON(http.StatusCreated, winner)
	return true
}

// PUT /api/transactions/:id
// Replace a transaction
func (h *Transactions) UpdateTransaction(c *gin.Context) {
	started := time.Now()
	defer func() { log.Trace().Caller().Dur("duration_ms", time.Since(started)).Send() }()
	ctx := c.Request.Context()

	existing, err := h.Store.Get(ctx, c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	var input models.TransactionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	transaction, err := input.Replace(existing, h.now())
	if err != nil {
		abortWithError(c, err)
		return
	}

	updated, err := h.Store.Update(ctx, transaction)
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.publish(ctx, events.TransactionUpdated, updated.ID, updated)
	c.JSON(http.StatusOK, updated)
}

// DELETE /api/transactions/:id
// Delete a transaction
func (h *Transactions) DeleteTransaction(c *gin.Context) {
	started := time.Now()
	defer func() { log.Trace().Caller().Dur("duration_ms", time.Since(started)).Send() }()
	ctx := c.Request.Context()

	id := c.Param("id")
	if err := h.Store.Delete(ctx, id); err != nil {
		abortWithError(c, err)
		return
	}

	h.publish(ctx, events.TransactionDeleted, id, nil)
	c.JSON(http.StatusOK, gin.H{"id": id, "message": "Transaction removed"})
}

func (h *Transactions) publish(ctx context.Context, kind, id string, t *models.Transaction) {
	if h.Events == nil {
		return
	}
	e := events.Event{Type: kind, TransactionID: id, Transaction: t, OccurredAt: h.now().UTC()}
	if err := h.Events.Publish(ctx, e); err != nil {
		log.Error().Err(err).Str("event", kind).Str("id", id).Msg("Failed to publish event")
	}
}

func abortWithError(c *gin.Context, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "errors": verr.Errors})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Store error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
