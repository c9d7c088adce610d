package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/audit"
	"github.com/trezcool/attendly/core/user"
)

// recordAudit appends the mutation of the context user to the audit log.
// The mutation already happened: failures are logged, not returned.
func (s *server) recordAudit(ctx echo.Context, action audit.Action, entityType, entityID string, before, after interface{}) {
	actor, err := getContextUser(ctx, s.deps.UserSvc)
	if err != nil {
		s.deps.Logger.Error("audit: getting context user", err)
		return
	}
	var role string
	if claims, err := getContextClaims(ctx); err == nil {
		role = claims.ActiveRole
	}
	s.recordAuditAs(ctx, actor, role, action, entityType, entityID, before, after)
}

func (s *server) recordAuditAs(
	ctx echo.Context,
	actor user.User,
	role string,
	action audit.Action,
	entityType, entityID string,
	before, after interface{},
) {
	e, err := audit.NewEntry(actor, role, action, entityType, entityID, before, after)
	if err != nil {
		s.deps.Logger.Error(fmt.Sprintf("audit: building %s %s entry", action, entityType), err, actor)
		return
	}
	if err := s.deps.AuditRecorder.Record(ctx.Request().Context(), e); err != nil {
		s.deps.Logger.Error(fmt.Sprintf("audit: recording %s %s/%s", action, entityType, entityID), err, actor)
	}
}

type auditApi struct {
	*server
}

func registerAuditAPI(g *echo.Group, s *server) {
	api := auditApi{s}
	g.GET("/audit-logs", api.query, roleMiddleware(user.RolePrincipal))
}

func (api *auditApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var filter audit.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to audit.QueryFilter")
	}
	var page core.PageParams
	if err := ctx.Bind(&page); err != nil {
		return errors.Wrap(err, "binding to PageParams")
	}

	res, err := api.deps.AuditSvc.List(ctx.Request().Context(), claims.SchoolID, filter, page)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}
