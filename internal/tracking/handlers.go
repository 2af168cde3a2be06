package tracking

import (
	"context"
	"errors"
	"time"

	"backend-routetracking/internal/featureservice"
	"backend-routetracking/internal/project"

	"github.com/gofiber/fiber/v2"
)

// ProjectLoader loads the schedule of a planned date, or only the device
// roster.
type ProjectLoader interface {
	Load(ctx context.Context, date time.Time) (*project.Project, error)
	LoadDevices(ctx context.Context) (*project.Project, error)
}

type Handler struct {
	provider *Provider
	projects ProjectLoader
	solver   Solver
	geocoder Geocoder
	reporter MessageReporter
}

// NewHandler serves tracking requests. Without a provider or a project
// loader tracking is not configured and every request answers 503.
func NewHandler(provider *Provider, projects ProjectLoader, solver Solver, geocoder Geocoder, reporter MessageReporter) *Handler {
	return &Handler{provider: provider, projects: projects, solver: solver, geocoder: geocoder, reporter: reporter}
}

type deployRequest struct {
	Date     string   `json:"date"`
	RouteIDs []string `json:"route_ids"`
}

type trackingIDsRequest struct {
	TrackingIDs []string `json:"tracking_ids"`
}

type renameRequest struct {
	TrackingIDs map[string]string `json:"tracking_ids"`
}

func RegisterRoutes(r fiber.Router, h *Handler, authMiddleware fiber.Handler) {
	var configured fiber.Handler = func(c *fiber.Ctx) error {
		if h.provider == nil || h.projects == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "tracking server is not configured")
		}
		return c.Next()
	}
	r.Use(authMiddleware, configured)

	r.Post("/deploy", func(c *fiber.Ctx) error {
		tracker, p, date, routes, err := h.schedule(c)
		if err != nil {
			return err
		}
		tracker.SetProject(p)
		sent, err := tracker.Deploy(c.Context(), routes, date)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"sent": sent})
	})

	r.Post("/check", func(c *fiber.Ctx) error {
		tracker, _, date, routes, err := h.schedule(c)
		if err != nil {
			return err
		}
		notSent, err := tracker.CheckRoutesNotSent(c.Context(), routes, date)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"not_sent": notSent})
	})

	r.Get("/events", func(c *fiber.Ctx) error {
		date, err := parseDate(c.Query("date"))
		if err != nil {
			return err
		}
		since := date
		if raw := c.Query("since"); raw != "" {
			if since, err = time.Parse(time.RFC3339, raw); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "since must be RFC3339")
			}
		}
		p, err := h.projects.Load(c.Context(), date)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		tracker, err := h.tracker()
		if err != nil {
			return httpError(err)
		}
		events, err := tracker.DeviceEvents(c.Context(), p.Routes, since)
		if err != nil {
			return httpError(err)
		}
		if events == nil {
			events = []featureservice.Event{}
		}
		return c.JSON(events)
	})

	r.Post("/devices/sync", func(c *fiber.Ctx) error {
		p, sync, err := h.roster(c)
		if err != nil {
			return err
		}
		if err := sync.UpdateFromServer(c.Context(), p); err != nil {
			return httpError(err)
		}
		if err := p.Save(c.Context()); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(p.MobileDevices())
	})

	r.Post("/devices", func(c *fiber.Ctx) error {
		var req trackingIDsRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		tracker, err := h.tracker()
		if err != nil {
			return httpError(err)
		}
		if err := tracker.SyncService().AddDevices(c.Context(), req.TrackingIDs); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Put("/devices", func(c *fiber.Ctx) error {
		var req renameRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		tracker, err := h.tracker()
		if err != nil {
			return httpError(err)
		}
		if err := tracker.SyncService().UpdateTrackingIDs(c.Context(), req.TrackingIDs); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Delete("/devices", func(c *fiber.Ctx) error {
		var req trackingIDsRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		p, sync, err := h.roster(c)
		if err != nil {
			return err
		}
		if err := sync.DeleteDevices(c.Context(), p, req.TrackingIDs); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func (h *Handler) tracker() (*Tracker, error) {
	return h.provider.GetTracker(h.solver, h.geocoder, h.reporter)
}

// schedule resolves the tracker, project, date and routes of a deploy request.
func (h *Handler) schedule(c *fiber.Ctx) (*Tracker, *project.Project, time.Time, []*project.Route, error) {
	var req deployRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, nil, time.Time{}, nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, nil, time.Time{}, nil, err
	}
	p, err := h.projects.Load(c.Context(), date)
	if err != nil {
		return nil, nil, time.Time{}, nil, fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	tracker, err := h.tracker()
	if err != nil {
		return nil, nil, time.Time{}, nil, httpError(err)
	}
	return tracker, p, date, p.RoutesByID(req.RouteIDs), nil
}

func (h *Handler) roster(c *fiber.Ctx) (*project.Project, *SyncService, error) {
	p, err := h.projects.LoadDevices(c.Context())
	if err != nil {
		return nil, nil, fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	tracker, err := h.tracker()
	if err != nil {
		return nil, nil, httpError(err)
	}
	return p, tracker.SyncService(), nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, "date required")
	}
	date, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	return date, nil
}

func httpError(err error) error {
	var svcErr *featureservice.ServiceError
	switch {
	case errors.Is(err, ErrNilArgument), errors.Is(err, ErrInvalidArgument):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidOperation):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, featureservice.ErrCommunication):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrTracking), errors.Is(err, featureservice.ErrAuthentication), errors.As(err, &svcErr):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
