package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/audit"
	"github.com/trezcool/attendly/core/school"
	"github.com/trezcool/attendly/core/user"
)

type schoolApi struct {
	*server
}

func registerSchoolAPI(public, authed *echo.Group, s *server) {
	api := schoolApi{s}
	principal := roleMiddleware(user.RolePrincipal)
	cache := cacheMiddleware(s.deps.Cache, s.deps.Logger, s.deps.Conf.Redis.CacheTTL)

	pg := public.Group("/school")
	pg.GET("/plans", api.plans, cache)
	pg.POST("/quote", api.quote)
	pg.GET("/lookup/:code", api.lookup)

	sg := authed.Group("/school")
	sg.GET("", api.retrieve)
	sg.PUT("", api.update, principal)
	sg.GET("/subscription", api.subscription, principal)
	sg.GET("/subscriptions", api.subscriptions, principal)
	sg.POST("/subscribe", api.subscribe, principal)
}

func (api *schoolApi) plans(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, school.Plans)
}

func (api *schoolApi) quote(ctx echo.Context) error {
	var data school.QuoteRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuoteRequest")
	}
	if err := api.deps.Validate.Struct(data); err != nil {
		return err
	}
	q, err := api.deps.SchoolSvc.Quote(data.PlanID, data.Students)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, q)
}

// lookup lets the login page check a school code before asking for credentials.
func (api *schoolApi) lookup(ctx echo.Context) error {
	sch, err := api.deps.SchoolSvc.GetByCode(ctx.Request().Context(), ctx.Param("code"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sch.Lookup())
}

func (api *schoolApi) current(ctx echo.Context) (school.School, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return school.School{}, err
	}
	sch, err := api.deps.SchoolSvc.GetByID(ctx.Request().Context(), claims.SchoolID)
	if err != nil {
		return school.School{}, errors.Wrap(err, "finding school by ID")
	}
	return sch, nil
}

func (api *schoolApi) retrieve(ctx echo.Context) error {
	sch, err := api.current(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) update(ctx echo.Context) error {
	sch, err := api.current(ctx)
	if err != nil {
		return err
	}
	var data school.UpdateSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSchool")
	}
	updated, err := api.deps.SchoolSvc.Update(ctx.Request().Context(), sch, data)
	if err != nil {
		return err
	}
	api.recordAudit(ctx, audit.ActionUpdate, "school", sch.ID, sch, updated)
	return ctx.JSON(http.StatusOK, updated)
}

func (api *schoolApi) subscription(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	sub, err := api.deps.SchoolSvc.CurrentSubscription(ctx.Request().Context(), claims.SchoolID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SubscriptionResponse{Subscription: sub, IsCurrent: sub.IsCurrent(core.Today())})
}

func (api *schoolApi) subscriptions(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	subs, err := api.deps.SchoolSvc.SubscriptionHistory(ctx.Request().Context(), claims.SchoolID)
	if err != nil {
		return err
	}
	if subs == nil {
		subs = []school.Subscription{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *schoolApi) subscribe(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data school.SubscribeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubscribeRequest")
	}
	sub, err := api.deps.SchoolSvc.Subscribe(ctx.Request().Context(), claims.SchoolID, data)
	if err != nil {
		return err
	}
	api.recordAudit(ctx, audit.ActionCreate, "subscription", sub.ID, nil, sub)
	return ctx.JSON(http.StatusCreated, sub)
}

type SubscriptionResponse struct {
	school.Subscription
	IsCurrent bool `json:"is_current"`
}
