package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/audit"
	"github.com/trezcool/attendly/core/school"
	"github.com/trezcool/attendly/core/user"
)

var errNoPermsToSetRoles = "not enough rights to set these roles"

type authApi struct {
	*server
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, s *server) {
	api := authApi{s}
	rate := rateLimitMiddleware(s.deps.Cache, s.deps.Logger, s.deps.Conf.Redis.LoginRateCapacity, s.deps.Conf.Redis.LoginRateInterval)

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/register-school", api.registerSchool, rate)
	ag.POST("/:role/login", api.login, rate)
	ag.POST("/password-reset", api.resetPassword, rate)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset, rate)

	// authed endpoints
	ag.GET("/me", api.me, jwt)
	ag.POST("/token-refresh", api.refreshToken, jwt)
	ag.POST("/logout", api.logout, jwt)
}

func (api *authApi) issueToken(usr user.User, role string) (string, error) {
	token, err := api.auth.GenerateToken(api.auth.UserClaims(usr, role))
	if err != nil {
		return "", errors.Wrap(err, "generating token")
	}
	return token, nil
}

func (api *authApi) registerSchool(ctx echo.Context) error {
	var data school.RegisterSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RegisterSchool")
	}

	sch, principal, err := api.deps.SchoolSvc.Register(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	api.recordAuditAs(ctx, principal, user.RolePrincipal, audit.ActionCreate, "school", sch.ID, nil, sch)

	token, err := api.issueToken(principal, user.RolePrincipal)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, RegisterResponse{Token: token, School: sch, User: principal})
}

func (api *authApi) login(ctx echo.Context) error {
	role := ctx.Param("role")
	if !user.IsValidRole(role) {
		return errHttpNotFound
	}
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	sch, err := api.deps.SchoolSvc.GetByCode(ctx.Request().Context(), data.SchoolCode)
	if err != nil {
		if core.IsNotFound(err) {
			return errAuthenticationFailed
		}
		return errors.Wrap(err, "finding school by code")
	}
	usr, err := authenticate(ctx, sch, data.Username, data.Password, role, api.deps.UserSvc)
	if err != nil {
		return err
	}

	token, err := api.issueToken(usr, role)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *authApi) me(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return err
	}
	sch, err := api.deps.SchoolSvc.GetByID(ctx.Request().Context(), claims.SchoolID)
	if err != nil {
		return errors.Wrap(err, "finding school by ID")
	}
	return ctx.JSON(http.StatusOK, MeResponse{User: usr, School: sch, ActiveRole: claims.ActiveRole})
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refreshToken(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *authApi) logout(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err := api.auth.Revoke(ctx, claims); err != nil {
		return errors.Wrap(err, "revoking token")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *authApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	sch, err := api.deps.SchoolSvc.GetByCode(rctx, data.SchoolCode)
	if err == nil {
		err = api.deps.UserSvc.RequestPasswordReset(rctx, sch.ID, sch.Name, data.Email)
	}
	if !(err == nil || core.IsNotFound(err)) {
		// do not return errors to attackers
		api.deps.Logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *authApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	if err := api.deps.UserSvc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

type userApi struct {
	*server
}

func registerUserAPI(g *echo.Group, s *server) {
	api := userApi{s}
	principal := roleMiddleware(user.RolePrincipal)

	ug := g.Group("/users")
	ug.POST("", api.create, principal)
	ug.GET("", api.query, principal)
	ug.DELETE("", api.destroyMultiple, principal)
	ug.GET("/roles", api.queryRoles)

	// detail endpoints
	dg := ug.Group("/:id", ctxUserOrPrincipalMiddleware(s.deps.UserSvc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, principal)
}

func (api *userApi) create(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	data.SchoolID = claims.SchoolID
	if err := data.Validate(ctx.Request().Context(), api.deps.Validate, api.deps.UserSvc); err != nil {
		return err
	}

	// ctxUser cannot set a role > their own max role
	if user.MaxRolePriority(data.Roles) > user.MaxRolePriority(claims.Roles) {
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errNoPermsToSetRoles})
	}

	usr, err := api.deps.UserSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	api.recordAudit(ctx, audit.ActionCreate, "user", usr.ID, nil, usr)

	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.deps.UserSvc.Query(ctx.Request().Context(), claims.SchoolID, *filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, err := ctxObject(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	usr, err := ctxObject(ctx)
	if err != nil {
		return err
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if !claims.HasAnyRole(user.RolePrincipal) {
		// `IsActive` and `Roles` can only be changed by the principal
		// `Username` and `Email` can only be changed by the principal for now
		if data.IsActive != nil || data.Roles != nil || data.Username != "" || data.Email != "" {
			return errHttpForbidden
		}
	}

	if err := data.Validate(ctx.Request().Context(), usr, api.deps.Validate, api.deps.UserSvc); err != nil {
		return err
	}

	// ctxUser cannot set a role > their own max role
	if user.MaxRolePriority(data.Roles) > user.MaxRolePriority(claims.Roles) {
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errNoPermsToSetRoles})
	}

	updated, err := api.deps.UserSvc.Update(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	api.recordAudit(ctx, audit.ActionUpdate, "user", usr.ID, usr, updated)

	return ctx.JSON(http.StatusOK, updated)
}

func (api *userApi) destroy(ctx echo.Context) error {
	usr, err := ctxObject(ctx)
	if err != nil {
		return err
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if usr.ID == claims.Subject {
		return errHttpForbidden
	}

	if _, err := api.deps.UserSvc.Delete(ctx.Request().Context(), claims.SchoolID, usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	api.recordAudit(ctx, audit.ActionDelete, "user", usr.ID, usr, nil)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if len(query.IDs) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if core.ContainsString(query.IDs, claims.Subject) {
		return errHttpForbidden
	}

	if _, err := api.deps.UserSvc.Delete(ctx.Request().Context(), claims.SchoolID, query.IDs...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	for _, id := range query.IDs {
		api.recordAudit(ctx, audit.ActionDelete, "user", id, nil, nil)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

// ctxUserOrPrincipalMiddleware loads the user of the ":id" param when it is the context user,
// or when the context user is the principal of their school.
func ctxUserOrPrincipalMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}

			if ctx.Param("id") == claims.Subject || claims.HasAnyRole(user.RolePrincipal) {
				usr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
				if err == nil && usr.SchoolID == claims.SchoolID {
					ctx.Set("object", usr)
					return next(ctx)
				} else if err != nil && !core.IsNotFound(err) {
					return errors.Wrap(err, "finding user by ID")
				}
			}
			return errHttpNotFound
		}
	}
}

func ctxObject(ctx echo.Context) (user.User, error) {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return user.User{}, errors.New("user object not found in echo.Context")
	}
	return usr, nil
}

type (
	LoginRequest struct {
		SchoolCode string `json:"school_code" validate:"required"`
		Username   string `json:"username" validate:"required"`
		Password   string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	RegisterResponse struct {
		Token  string        `json:"token"`
		School school.School `json:"school"`
		User   user.User     `json:"user"`
	}

	MeResponse struct {
		User       user.User     `json:"user"`
		School     school.School `json:"school"`
		ActiveRole string        `json:"active_role"`
	}

	PasswordResetRequest struct {
		SchoolCode string `json:"school_code" validate:"required"`
		Email      string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.SchoolCode = school.NormalizeCode(lr.SchoolCode)
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.SchoolCode = school.NormalizeCode(pr.SchoolCode)
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
