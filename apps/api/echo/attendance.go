package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/attendance"
	"github.com/trezcool/attendly/core/audit"
	"github.com/trezcool/attendly/core/user"
)

type attendanceApi struct {
	*server
}

func registerAttendanceAPI(g *echo.Group, s *server) {
	api := attendanceApi{s}
	staff := roleMiddleware(user.StaffRoles...)
	cache := cacheMiddleware(s.deps.Cache, s.deps.Logger, s.deps.Conf.Redis.CacheTTL)

	ag := g.Group("/attendance")
	ag.POST("", api.mark, staff)
	ag.GET("/sheet", api.sheet, staff)
	ag.GET("/reports/me", api.ownReport, roleMiddleware(user.RoleStudent))

	// access is checked before the cache lookup
	ag.GET("/reports/classes/:id", api.classReport, staff, cache)
	ag.GET("/reports/classes/:id/trend", api.trend, staff, cache)
	ag.GET("/reports/students/:id", api.studentReport, api.studentAccessMiddleware(), cache)
}

// studentAccessMiddleware lets the staff & the student themselves read the report of ":id".
func (api *attendanceApi) studentAccessMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.HasAnyRole(user.StaffRoles...) {
				return next(ctx)
			}
			if claims.HasAnyRole(user.RoleStudent) {
				st, err := api.deps.AcademicSvc.StudentOfUser(ctx.Request().Context(), claims.SchoolID, claims.Subject)
				if err != nil && !core.IsNotFound(err) {
					return err
				}
				if err == nil && st.ID == ctx.Param("id") {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}

func (api *attendanceApi) mark(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	marker, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return err
	}
	var data attendance.MarkAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkAttendance")
	}
	records, err := api.deps.AttendanceSvc.Mark(ctx.Request().Context(), claims.SchoolID, marker, data)
	if err != nil {
		return err
	}
	api.recordAudit(ctx, audit.ActionUpdate, "attendance", data.ClassID+"@"+data.Date.String(), nil, MarkSummary{
		ClassID: data.ClassID,
		Date:    data.Date,
		Entries: data.Entries,
	})
	return ctx.JSON(http.StatusOK, records)
}

func (api *attendanceApi) sheet(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	day, err := bindDate(ctx, "date")
	if err != nil {
		return err
	}
	classID := ctx.QueryParam("class_id")
	if classID == "" {
		return core.NewFieldError("class_id", "this field is required")
	}
	sheet, err := api.deps.AttendanceSvc.Sheet(ctx.Request().Context(), claims.SchoolID, classID, day)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sheet)
}

func (api *attendanceApi) classReport(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	period, err := bindPeriod(ctx)
	if err != nil {
		return err
	}
	report, err := api.deps.AttendanceSvc.ClassReport(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"), period)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *attendanceApi) trend(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	period, err := bindPeriod(ctx)
	if err != nil {
		return err
	}
	points, err := api.deps.AttendanceSvc.Trend(ctx.Request().Context(), claims.SchoolID, ctx.Param("id"), period)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, points)
}

func (api *attendanceApi) studentReport(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	return api.respondStudentReport(ctx, claims.SchoolID, ctx.Param("id"))
}

func (api *attendanceApi) ownReport(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	st, err := api.deps.AcademicSvc.StudentOfUser(ctx.Request().Context(), claims.SchoolID, claims.Subject)
	if err != nil {
		return err
	}
	return api.respondStudentReport(ctx, claims.SchoolID, st.ID)
}

func (api *attendanceApi) respondStudentReport(ctx echo.Context, schoolID, studentID string) error {
	period, err := bindPeriod(ctx)
	if err != nil {
		return err
	}
	report, err := api.deps.AttendanceSvc.StudentReport(ctx.Request().Context(), schoolID, studentID, period)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, report)
}

// MarkSummary is the audited payload of an attendance marking.
type MarkSummary struct {
	ClassID string             `json:"class_id"`
	Date    core.Date          `json:"date"`
	Entries []attendance.Entry `json:"entries"`
}
