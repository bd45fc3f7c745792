package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmehdipour/holo/internal/http/middleware"
	"github.com/jmehdipour/holo/internal/model"
	"github.com/jmehdipour/holo/internal/service/reminders"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// ReminderService is the reminder creation and management API used by the handlers.
type ReminderService interface {
	AddSingle(ctx context.Context, inv reminders.Invocation, when string, message *string, loc model.Location) (model.Reminder, error)
	AddRecurring(ctx context.Context, inv reminders.Invocation, interval string, message *string, loc model.Location, until *time.Time) (model.Reminder, error)
	List(ctx context.Context, userID uint64, pageIndex int) (reminders.Page, error)
	Remove(ctx context.Context, userID, reminderID uint64) error
}

var validate = validator.New()

const untilDateLayout = "2006-01-02"

type singleReq struct {
	When     string  `json:"when"     validate:"required,max=64"`
	Message  *string `json:"message"`
	Location string  `json:"location" validate:"omitempty,oneof=direct_message channel"`
}

type recurringReq struct {
	Interval string  `json:"interval" validate:"required,max=64"`
	Message  *string `json:"message"`
	Location string  `json:"location" validate:"omitempty,oneof=direct_message channel"`
	Until    string  `json:"until"    validate:"omitempty,datetime=2006-01-02"`
}

type reminderResp struct {
	ID               string  `json:"id"`
	Message          *string `json:"message,omitempty"`
	IsRepeating      bool    `json:"is_repeating"`
	FrequencySeconds *int64  `json:"frequency_seconds,omitempty"`
	NextTrigger      int64   `json:"next_trigger"`
	UntilDate        string  `json:"until_date,omitempty"`
	Location         string  `json:"location"`
}

func toResp(r model.Reminder) reminderResp {
	out := reminderResp{
		ID:               strconv.FormatUint(r.ID, 10),
		Message:          r.Message,
		IsRepeating:      r.IsRepeating,
		FrequencySeconds: r.FrequencySeconds,
		NextTrigger:      r.NextTrigger.Unix(),
		Location:         r.Location.String(),
	}
	if r.UntilDate != nil {
		out.UntilDate = r.UntilDate.Format(untilDateLayout)
	}
	return out
}

func invocation(c echo.Context) (reminders.Invocation, bool) {
	inv, ok := middleware.InvocationFromCtx(c)
	if !ok {
		return reminders.Invocation{}, false
	}
	return reminders.Invocation{UserID: inv.UserID, ServerID: inv.ServerID, ChannelID: inv.ChannelID}, true
}

// writeServiceError maps service errors to responses.
func writeServiceError(c echo.Context, err error) error {
	var verr *reminders.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": verr.Code, "description": verr.Message})
	case errors.Is(err, reminders.ErrReminderNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "reminder_not_found"})
	default:
		log.Errorf("reminder request failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
	}
}

func addSingleHandler(svc ReminderService) echo.HandlerFunc {
	return func(c echo.Context) error {
		inv, ok := invocation(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req singleReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if err := validate.Struct(req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		}
		loc, _ := model.ParseLocation(req.Location)

		rem, err := svc.AddSingle(c.Request().Context(), inv, req.When, req.Message, loc)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusCreated, toResp(rem))
	}
}

func addRecurringHandler(svc ReminderService) echo.HandlerFunc {
	return func(c echo.Context) error {
		inv, ok := invocation(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req recurringReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if err := validate.Struct(req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		}
		loc, _ := model.ParseLocation(req.Location)

		var until *time.Time
		if req.Until != "" {
			d, err := time.ParseInLocation(untilDateLayout, req.Until, time.UTC)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			}
			until = &d
		}

		rem, err := svc.AddRecurring(c.Request().Context(), inv, req.Interval, req.Message, loc, until)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusCreated, toResp(rem))
	}
}

func listRemindersHandler(svc ReminderService) echo.HandlerFunc {
	return func(c echo.Context) error {
		inv, ok := invocation(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		page := 0
		if v := c.QueryParam("page"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				page = n
			}
		}

		p, err := svc.List(c.Request().Context(), inv.UserID, page)
		if err != nil {
			return writeServiceError(c, err)
		}

		results := make([]reminderResp, 0, len(p.Items))
		for _, r := range p.Items {
			results = append(results, toResp(r))
		}
		return c.JSON(http.StatusOK, map[string]any{
			"page":       p.PageIndex,
			"page_count": p.PageCount,
			"total":      p.Total,
			"results":    results,
		})
	}
}

func removeReminderHandler(svc ReminderService) echo.HandlerFunc {
	return func(c echo.Context) error {
		inv, ok := invocation(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid reminder id"})
		}

		if err := svc.Remove(c.Request().Context(), inv.UserID, id); err != nil {
			return writeServiceError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
