package handler

import (
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/clock"
	"github.com/iliyamo/cinema-booking/internal/service"
)

// ReservationHandler exposes the seat map and seat holds of a showtime.
type ReservationHandler struct {
	ledger *service.Ledger
	clock  clock.Clock
}

func NewReservationHandler(ledger *service.Ledger, clk clock.Clock) *ReservationHandler {
	if ledger == nil {
		panic("nil ledger passed to NewReservationHandler")
	}
	return &ReservationHandler{ledger: ledger, clock: clk}
}

type holdBody struct {
	SeatIDs    []uint64 `json:"seat_ids"`
	TTLSeconds int      `json:"ttl_seconds"`
}

// Seats handles GET /v1/showtimes/:id/seats.
func (h *ReservationHandler) Seats(c echo.Context) error {
	showID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	seats, err := h.ledger.Availability(c.Request().Context(), showID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"showtime_id": showID, "seats": seats})
}

// Hold handles POST /v1/showtimes/:id/hold.  All requested seats are held
// or none are; seats the caller already holds are extended.  ttl_seconds may
// shorten a hold but never stretch it past the configured lifetime.
func (h *ReservationHandler) Hold(c echo.Context) error {
	userID, ok, err := caller(c)
	if !ok {
		return err
	}
	showID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	var body holdBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	res, err := h.ledger.Hold(c.Request().Context(), service.HoldRequest{
		ShowtimeID: showID,
		SeatIDs:    body.SeatIDs,
		HolderID:   userID,
		TTL:        time.Duration(body.TTLSeconds) * time.Second,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"showtime_id": res.ShowtimeID,
		"seat_ids":    res.GrantedSeats,
		"expires_at":  res.ExpiresAt,
		"expires_in":  int(math.Ceil(res.ExpiresAt.Sub(h.clock.Now()).Seconds())),
	})
}

// Holds handles GET /v1/showtimes/:id/hold: the caller's live holds.
func (h *ReservationHandler) Holds(c echo.Context) error {
	userID, ok, err := caller(c)
	if !ok {
		return err
	}
	showID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	holds, err := h.ledger.Holds(c.Request().Context(), showID, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"showtime_id": showID, "holds": holds})
}

// Release handles DELETE /v1/showtimes/:id/hold.  It answers 200 whether or
// not anything was held; an empty seat_ids releases all of the caller's
// holds on the showtime.
func (h *ReservationHandler) Release(c echo.Context) error {
	userID, ok, err := caller(c)
	if !ok {
		return err
	}
	showID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	var body holdBody
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	n, err := h.ledger.Release(c.Request().Context(), showID, body.SeatIDs, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": n})
}
