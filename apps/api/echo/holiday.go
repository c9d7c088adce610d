package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core/audit"
	"github.com/trezcool/attendly/core/holiday"
	"github.com/trezcool/attendly/core/user"
)

type holidayApi struct {
	*server
}

func registerHolidayAPI(g *echo.Group, s *server) {
	api := holidayApi{s}
	managers := roleMiddleware(user.RolePrincipal, user.RoleCoordinator)

	hg := g.Group("/holidays")
	hg.GET("", api.query)
	hg.POST("", api.create, managers)
	hg.GET("/categories", api.categories)
	hg.GET("/:id", api.retrieve)
	hg.PUT("/:id", api.update, managers)
	hg.DELETE("/:id", api.destroy, managers)
}

func (api *holidayApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var filter holiday.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to holiday.QueryFilter")
	}
	hols, err := api.deps.HolidaySvc.List(ctx.Request().Context(), claims.SchoolID, filter)
	if err != nil {
		return err
	}
	if hols == nil {
		hols = []holiday.Holiday{}
	}
	return ctx.JSON(http.StatusOK, hols)
}

func (api *holidayApi) categories(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, holiday.Categories)
}

func (api *holidayApi) create(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data holiday.HolidayData
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to HolidayData")
	}
	hol, err := api.deps.HolidaySvc.Create(ctx.Request().Context(), claims.SchoolID, data)
	if err != nil {
		return err
	}
	api.recordAudit(ctx, audit.ActionCreate, "holiday", hol.ID, nil, hol)
	return ctx.JSON(http.StatusCreated, hol)
}

func (api *holidayApi) get(ctx echo.Context) (holiday.Holiday, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return holiday.Holiday{}, err
	}
	return api.deps.HolidaySvc.Get(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"))
}

func (api *holidayApi) retrieve(ctx echo.Context) error {
	hol, err := api.get(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, hol)
}

func (api *holidayApi) update(ctx echo.Context) error {
	hol, err := api.get(ctx)
	if err != nil {
		return err
	}
	var data holiday.HolidayData
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to HolidayData")
	}
	updated, err := api.deps.HolidaySvc.Update(ctx.Request().Context(), hol, data)
	if err != nil {
		return err
	}
	api.recordAudit(ctx, audit.ActionUpdate, "holiday", hol.ID, hol, updated)
	return ctx.JSON(http.StatusOK, updated)
}

func (api *holidayApi) destroy(ctx echo.Context) error {
	hol, err := api.get(ctx)
	if err != nil {
		return err
	}
	if err := api.deps.HolidaySvc.Delete(ctx.Request().Context(), hol.SchoolID, hol.ID); err != nil {
		return err
	}
	api.recordAudit(ctx, audit.ActionDelete, "holiday", hol.ID, hol, nil)
	return ctx.NoContent(http.StatusNoContent)
}
