package feedapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/barangay-tools/bantay/pkg/alert"
	"github.com/barangay-tools/bantay/pkg/backend"
	"github.com/barangay-tools/bantay/pkg/recon"
)

// API exposes the engine's feed, badge, and actions over HTTP, plus the
// live alert WebSocket.
type API struct {
	engine *recon.Engine
	hub    *alert.Hub
}

func NewAPI(engine *recon.Engine, hub *alert.Hub) *API {
	return &API{engine: engine, hub: hub}
}

type FeedResponse struct {
	Feed     recon.Feed `json:"feed"`
	Unread   int        `json:"unread"`
	Degraded bool       `json:"degraded,omitempty"`
	Error    string     `json:"error,omitempty"`
}

type UnreadResponse struct {
	Unread int    `json:"unread"`
	Error  string `json:"error,omitempty"`
}

type ActionResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func parseStream(param string) (backend.StreamKind, error) {
	kind := backend.StreamKind(param)
	for _, k := range backend.AllStreams {
		if k == kind {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown stream %q", param)
}

func parseTarget(c echo.Context) (backend.StreamKind, int64, *ActionResponse) {
	kind, err := parseStream(c.Param("stream"))
	if err != nil {
		return "", 0, &ActionResponse{Error: err.Error()}
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return "", 0, &ActionResponse{Error: fmt.Sprintf("invalid record id: %s", err)}
	}
	return kind, id, nil
}

func actionStatus(err error) int {
	switch {
	case errors.Is(err, recon.ErrNotPermitted):
		return http.StatusForbidden
	case errors.Is(err, recon.ErrUnknownRecord):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// HandleGetFeed handles the GET /feed endpoint
func (a *API) HandleGetFeed(c echo.Context) error {
	return c.JSON(http.StatusOK, FeedResponse{
		Feed:     a.engine.Feed(),
		Unread:   a.engine.UnreadCount(),
		Degraded: a.engine.Degraded(),
	})
}

// HandleGetUnread handles the GET /unread endpoint
func (a *API) HandleGetUnread(c echo.Context) error {
	return c.JSON(http.StatusOK, UnreadResponse{Unread: a.engine.UnreadCount()})
}

// HandleRefresh handles POST /refresh, forcing an immediate pass over every
// enabled stream (pull-to-refresh).
func (a *API) HandleRefresh(c echo.Context) error {
	if err := a.engine.ReconcileAll(c.Request().Context()); err != nil {
		return c.JSON(http.StatusBadGateway, FeedResponse{
			Feed:   a.engine.Feed(),
			Unread: a.engine.UnreadCount(),
			Error:  err.Error(),
		})
	}
	return a.HandleGetFeed(c)
}

// HandleView handles POST /notifications/:stream/:id/view
func (a *API) HandleView(c echo.Context) error {
	kind, id, badReq := parseTarget(c)
	if badReq != nil {
		return c.JSON(http.StatusBadRequest, badReq)
	}
	if err := a.engine.View(kind, id); err != nil {
		return c.JSON(actionStatus(err), ActionResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, ActionResponse{OK: true})
}

// HandleDismiss handles DELETE /notifications/:stream/:id
func (a *API) HandleDismiss(c echo.Context) error {
	kind, id, badReq := parseTarget(c)
	if badReq != nil {
		return c.JSON(http.StatusBadRequest, badReq)
	}
	if err := a.engine.Dismiss(kind, id); err != nil {
		return c.JSON(actionStatus(err), ActionResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, ActionResponse{OK: true})
}

// HandleResolve handles POST /notifications/:stream/:id/resolve
func (a *API) HandleResolve(c echo.Context) error {
	kind, id, badReq := parseTarget(c)
	if badReq != nil {
		return c.JSON(http.StatusBadRequest, badReq)
	}
	if err := a.engine.Resolve(c.Request().Context(), kind, id); err != nil {
		return c.JSON(actionStatus(err), ActionResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, ActionResponse{OK: true})
}

// HandleViewAll handles POST /notifications/view-all
func (a *API) HandleViewAll(c echo.Context) error {
	if err := a.engine.MarkAllViewed(); err != nil {
		return c.JSON(http.StatusInternalServerError, ActionResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, ActionResponse{OK: true})
}

// HandleReset handles POST /notifications/reset
func (a *API) HandleReset(c echo.Context) error {
	if err := a.engine.ResetAll(); err != nil {
		return c.JSON(http.StatusInternalServerError, ActionResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, ActionResponse{OK: true})
}

// HandleAlertsWS handles GET /ws/alerts, streaming alerts to the client.
func (a *API) HandleAlertsWS(c echo.Context) error {
	return a.hub.ServeWS(c.Response(), c.Request())
}

// Register wires every route onto the echo instance.
func (a *API) Register(e *echo.Echo) {
	e.GET("/feed", a.HandleGetFeed)
	e.GET("/unread", a.HandleGetUnread)
	e.POST("/refresh", a.HandleRefresh)
	e.POST("/notifications/:stream/:id/view", a.HandleView)
	e.DELETE("/notifications/:stream/:id", a.HandleDismiss)
	e.POST("/notifications/:stream/:id/resolve", a.HandleResolve)
	e.POST("/notifications/view-all", a.HandleViewAll)
	e.POST("/notifications/reset", a.HandleReset)
	e.GET("/ws/alerts", a.HandleAlertsWS)
}
