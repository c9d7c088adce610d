package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core/audit"
	"github.com/trezcool/attendly/core/dbadmin"
	"github.com/trezcool/attendly/core/user"
)

type dbAdminApi struct {
	*server
}

func registerDBAdminAPI(g *echo.Group, s *server) {
	api := dbAdminApi{s}

	dg := g.Group("/admin/db", roleMiddleware(user.RolePrincipal), api.authorizeMiddleware())
	dg.GET("/collections", api.collections)
	dg.POST("/clear", api.clear)
	dg.POST("/drop", api.drop)
	dg.POST("/drop-database", api.dropDatabase)
}

func (api *dbAdminApi) authorizeMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			actor, err := getContextUser(ctx, api.deps.UserSvc)
			if err != nil {
				return err
			}
			if err := api.deps.DBAdminSvc.Authorize(actor); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

func (api *dbAdminApi) collections(ctx echo.Context) error {
	overview, err := api.deps.DBAdminSvc.Collections(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, overview)
}

// respond reports the outcome of a destructive action; failed actions still answer with their Result.
func (api *dbAdminApi) respond(ctx echo.Context, res dbadmin.Result, err error) error {
	if err != nil && res.Message == "" {
		return err
	}
	api.recordAudit(ctx, audit.ActionDelete, "database", string(res.Action), nil, res)
	if err != nil {
		api.deps.Logger.Error("dbadmin: "+string(res.Action), err)
		return ctx.JSON(http.StatusInternalServerError, res)
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *dbAdminApi) clear(ctx echo.Context) error {
	var data dbadmin.Request
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to dbadmin.Request")
	}
	res, err := api.deps.DBAdminSvc.ClearDocuments(ctx.Request().Context(), data)
	return api.respond(ctx, res, err)
}

func (api *dbAdminApi) drop(ctx echo.Context) error {
	var data dbadmin.Request
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to dbadmin.Request")
	}
	res, err := api.deps.DBAdminSvc.DropCollections(ctx.Request().Context(), data)
	return api.respond(ctx, res, err)
}

func (api *dbAdminApi) dropDatabase(ctx echo.Context) error {
	var data dbadmin.Request
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to dbadmin.Request")
	}
	res, err := api.deps.DBAdminSvc.DropDatabase(ctx.Request().Context(), data.Confirm)
	return api.respond(ctx, res, err)
}
