package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/dialbook/internal/booking"
	"github.com/zulandar/dialbook/internal/models"
	"github.com/zulandar/dialbook/internal/orchestrator"
	"github.com/zulandar/dialbook/internal/telephony"
)

const markupContentType = "application/xml; charset=utf-8"

// registerRoutes sets up all routes on the gin router.
func registerRoutes(router *gin.Engine, opts Opts) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	if opts.RequestsPerMinute > 0 {
		api.Use(rateLimit(newLimiterStore(opts.RequestsPerMinute), opts.Logger))
	}
	api.POST("/bookings", handleCreateBooking(opts.Bookings))
	api.GET("/bookings", handleListBookings(opts.Bookings))
	api.GET("/bookings/:id", handleGetBooking(opts.Bookings))
	api.POST("/bookings/:id/call", handleStartCall(opts.Bookings, opts.Calls))

	hooks := router.Group("/webhooks/telephony")
	if opts.AuthToken != "" {
		hooks.Use(verifySignature(opts.AuthToken, opts.PublicBaseURL, opts.Logger))
	}
	hooks.POST("/turn", handleTurn(opts.Calls))
	hooks.POST("/status", handleStatus(opts.Calls))
}

// createBookingRequest is the JSON body of POST /api/bookings.
type createBookingRequest struct {
	OwnerID       string                `json:"owner_id"`
	Category      string                `json:"category"`
	ProviderName  string                `json:"provider_name"`
	ProviderPhone string                `json:"provider_phone"`
	Dates         []string              `json:"dates"`
	Buckets       []string              `json:"buckets"`
	ExactTime     *time.Time            `json:"exact_time"`
	Notes         string                `json:"notes"`
	Details       models.BookingDetails `json:"details"`
}

func handleCreateBooking(bookings Bookings) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body createBookingRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
			return
		}
		req, err := bookings.Create(c.Request.Context(), booking.CreateOpts{
			OwnerID:       body.OwnerID,
			Category:      body.Category,
			ProviderName:  body.ProviderName,
			ProviderPhone: body.ProviderPhone,
			Dates:         body.Dates,
			Buckets:       body.Buckets,
			ExactTime:     body.ExactTime,
			Notes:         body.Notes,
			Details:       body.Details,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, req)
	}
}

func handleListBookings(bookings Bookings) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := requireOwner(c)
		if !ok {
			return
		}
		reqs, err := bookings.ListByOwner(c.Request.Context(), owner)
		if err != nil {
			writeError(c, err)
			return
		}
		if reqs == nil {
			reqs = []models.BookingRequest{}
		}
		c.JSON(http.StatusOK, gin.H{"bookings": reqs})
	}
}

func handleGetBooking(bookings Bookings) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := requireOwner(c)
		if !ok {
			return
		}
		req, err := bookings.Get(c.Request.Context(), c.Param("id"), owner)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, req)
	}
}

func handleStartCall(bookings Bookings, calls Calls) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := requireOwner(c)
		if !ok {
			return
		}
		if _, err := bookings.Get(c.Request.Context(), c.Param("id"), owner); err != nil {
			writeError(c, err)
			return
		}
		req, err := calls.Initiate(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, req)
	}
}

func handleTurn(calls Calls) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			c.String(http.StatusBadRequest, "malformed form body")
			return
		}
		ev, err := telephony.ParseTurn(c.Request.PostForm, c.Request.Header)
		if err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		markup, err := calls.HandleTurn(c.Request.Context(), ev)
		if err != nil {
			// The provider retries on 5xx with the same idempotency token.
			c.Error(err)
			c.String(http.StatusServiceUnavailable, "temporarily unavailable")
			return
		}
		c.Data(http.StatusOK, markupContentType, []byte(markup))
	}
}

func handleStatus(calls Calls) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			c.String(http.StatusBadRequest, "malformed form body")
			return
		}
		ev, err := telephony.ParseStatus(c.Request.PostForm)
		if err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		if err := calls.HandleStatus(c.Request.Context(), ev); err != nil {
			c.Error(err)
			c.String(http.StatusServiceUnavailable, "temporarily unavailable")
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func requireOwner(c *gin.Context) (string, bool) {
	owner := strings.TrimSpace(c.Query("owner"))
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner query parameter is required"})
		return "", false
	}
	return owner, true
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	c.Error(err)
	if verr := booking.AsValidationError(err); verr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "fields": verr.Fields()})
		return
	}
	switch {
	case errors.Is(err, booking.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "booking request not found"})
	case errors.Is(err, booking.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrProviderUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "telephony provider unavailable, request left pending"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
