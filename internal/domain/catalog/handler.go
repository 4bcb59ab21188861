package catalog

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tarifwerk/tarifwerk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/service-codes", h.ListServiceCodes)
	api.GET("/service-codes/:code", h.GetServiceCode)
	api.GET("/code-tables", h.ListCodeTables)
	api.GET("/code-tables/:name", h.GetCodeTable)
	api.GET("/packages", h.ListPackages)
	api.GET("/packages/:id", h.GetPackage)
	api.GET("/catalog/status", h.Status)
	api.POST("/catalog/reload", h.Reload)
}

func (h *Handler) GetServiceCode(c echo.Context) error {
	sc, err := h.svc.GetServiceCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "service code not found")
	}
	return c.JSON(http.StatusOK, sc)
}

func (h *Handler) ListServiceCodes(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListServiceCodes(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetCodeTable(c echo.Context) error {
	t, err := h.svc.GetCodeTable(c.Request().Context(), c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "code table not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListCodeTables(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListCodeTables(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetPackage(c echo.Context) error {
	p, err := h.svc.GetPackage(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "package not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPackages(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPackages(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// StatusResponse describes the currently published snapshot.
type StatusResponse struct {
	LoadedAt     time.Time `json:"loaded_at"`
	ServiceCodes int       `json:"service_codes"`
	CodeTables   int       `json:"code_tables"`
	Packages     int       `json:"packages"`
	Diagnostics  []string  `json:"diagnostics,omitempty"`
}

func (h *Handler) Status(c echo.Context) error {
	snap := h.svc.Store().Current()
	if snap == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "catalog not loaded")
	}
	return c.JSON(http.StatusOK, StatusResponse{
		LoadedAt:     snap.LoadedAt,
		ServiceCodes: snap.ServiceCount(),
		CodeTables:   snap.TableCount(),
		Packages:     snap.PackageCount(),
		Diagnostics:  snap.Diagnostics,
	})
}

func (h *Handler) Reload(c echo.Context) error {
	snap, err := h.svc.Load(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, StatusResponse{
		LoadedAt:     snap.LoadedAt,
		ServiceCodes: snap.ServiceCount(),
		CodeTables:   snap.TableCount(),
		Packages:     snap.PackageCount(),
		Diagnostics:  snap.Diagnostics,
	})
}
