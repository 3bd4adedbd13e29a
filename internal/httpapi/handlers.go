package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Spok95/tutoring-platform/internal/apperr"
	"github.com/Spok95/tutoring-platform/internal/cron"
	"github.com/Spok95/tutoring-platform/internal/db"
	"github.com/Spok95/tutoring-platform/internal/export"
	"github.com/Spok95/tutoring-platform/internal/models"
	"github.com/Spok95/tutoring-platform/internal/rating"
	"github.com/Spok95/tutoring-platform/internal/schedule"
)

const maxWebhookBody = 1 << 20

// bind — Bind + Validate в одном шаге.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return err
	}
	return c.Validate(dst)
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.BadRequest("invalid %s %q", name, c.Param(name))
	}
	return id, nil
}

// cron

type cronRequest struct {
	Token string `json:"token"`
}

// runCron — всегда 200 «OK», если токен верен; сбои отдельных элементов только в логах и метриках.
func (s *Server) runCron(c echo.Context) error {
	var req cronRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Token == "" {
		req.Token = c.Request().Header.Get("X-Cron-Token")
	}
	if !cron.Authorized(s.opts.CronToken, req.Token) {
		return apperr.Unauthorized("invalid cron token")
	}
	// клиент может отвалиться раньше, проход доводим до конца
	ctx := context.WithoutCancel(c.Request().Context())
	s.opts.Cron.Run(ctx, s.opts.Now())
	return c.String(http.StatusOK, "OK")
}

// availabilities

type availabilityItem struct {
	DayOfWeek int    `json:"dayOfWeek" validate:"min=0,max=6"`
	Hour      int    `json:"hour" validate:"min=9,max=21"`
	Minute    int    `json:"minute" validate:"oneof=0 30"`
	SlotID    *int64 `json:"slotId"`
}

type availabilityRequest struct {
	WeekStart      string             `json:"weekStart" validate:"required"`
	Availabilities []availabilityItem `json:"availabilities" validate:"dive"`
}

func (s *Server) saveAvailabilities(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	var req availabilityRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	desired := make([]schedule.Coord, 0, len(req.Availabilities))
	for _, a := range req.Availabilities {
		desired = append(desired, schedule.Coord{DayOfWeek: a.DayOfWeek, Hour: a.Hour, Minute: a.Minute})
	}
	res, err := s.opts.Availability.Save(c.Request().Context(), uid, req.WeekStart, desired)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) listAvailabilities(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	list, err := s.opts.Availability.List(c.Request().Context(), uid, c.QueryParam("weekStart"))
	if err != nil {
		return err
	}
	if list == nil {
		list = []models.Availability{}
	}
	return c.JSON(http.StatusOK, list)
}

// evaluations & ratings

type evaluationsRequest struct {
	Students []rating.EvaluationInput `json:"students" validate:"required,min=1,dive"`
}

func (s *Server) recordEvaluations(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	var req evaluationsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	saved, err := s.opts.Rating.RecordEvaluations(c.Request().Context(), uid, req.Students)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, saved)
}

type ratingRequest struct {
	Rating  int     `json:"rating" validate:"min=1,max=5"`
	Comment *string `json:"comment" validate:"omitempty,max=2000"`
}

func (s *Server) rateProfessor(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req ratingRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	saved, err := s.opts.Rating.RateProfessor(c.Request().Context(), uid, id, req.Rating, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, saved)
}

func (s *Server) professorScore(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	score, err := s.opts.Rating.ProfessorScore(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, score)
}

// booking

type reserveRequest struct {
	SlotID int64 `json:"slotId" validate:"required,gt=0"`
}

func (s *Server) reserve(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	var req reserveRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	r, err := s.opts.Booking.Reserve(c.Request().Context(), uid, req.SlotID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, r)
}

func (s *Server) cancelReservation(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.opts.Booking.Cancel(c.Request().Context(), uid, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) cancelSlot(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	out, err := s.opts.Booking.CancelSlot(c.Request().Context(), uid, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// tokens

type tokensResponse struct {
	Balance int                 `json:"balance"`
	Events  []models.TokenEvent `json:"events"`
}

func (s *Server) tokens(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	bal, err := s.opts.Ledger.Balance(ctx, uid)
	if err != nil {
		return apperr.Internal("balance", err)
	}
	events, err := s.opts.Ledger.History(ctx, uid)
	if err != nil {
		return apperr.Internal("history", err)
	}
	if events == nil {
		events = []models.TokenEvent{}
	}
	return c.JSON(http.StatusOK, tokensResponse{Balance: bal, Events: events})
}

func (s *Server) tokenStatement(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	u, err := s.opts.Users.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFound("user %d not found", uid)
		}
		return apperr.Internal("load user", err)
	}
	events, err := s.opts.Ledger.History(ctx, uid)
	if err != nil {
		return apperr.Internal("history", err)
	}
	now := s.opts.Now()
	f, err := export.TokenStatement(*u, events, s.opts.Location, now)
	if err != nil {
		return apperr.Internal("build statement", err)
	}

	name := export.StatementFilename(u.Name, now.In(s.opts.Location))
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	h.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(name)))
	c.Response().WriteHeader(http.StatusOK)
	return export.Write(f, c.Response())
}

// billing

type subscribeRequest struct {
	PromoCode string `json:"promoCode" validate:"omitempty,max=64"`
}

func (s *Server) subscribe(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return err
	}
	var req subscribeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sub, err := s.opts.Billing.Subscribe(c.Request().Context(), uid, req.PromoCode)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sub)
}

func (s *Server) stripeWebhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return apperr.BadRequest("read body: %v", err)
	}
	ev, err := s.opts.Billing.ParseEvent(payload, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		return err
	}
	if err := s.opts.Billing.HandleEvent(c.Request().Context(), ev); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
