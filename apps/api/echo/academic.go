package echoapi

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/academic"
	"github.com/trezcool/attendly/core/audit"
	"github.com/trezcool/attendly/core/school"
	"github.com/trezcool/attendly/core/user"
)

// maxImportSize caps the uploaded student CSV files.
const maxImportSize = 2 << 20

type academicApi struct {
	*server
}

func registerAcademicAPI(g *echo.Group, s *server) {
	api := academicApi{s}
	principal := roleMiddleware(user.RolePrincipal)
	managers := roleMiddleware(user.RolePrincipal, user.RoleCoordinator)
	staff := roleMiddleware(user.StaffRoles...)

	sg := g.Group("/sessions")
	sg.GET("", api.querySessions, staff)
	sg.POST("", api.createSession, principal)
	sg.GET("/active", api.activeSession)
	sg.GET("/:id", api.retrieveSession, staff)
	sg.PUT("/:id", api.updateSession, principal)
	sg.POST("/:id/activate", api.activateSession, principal)
	sg.DELETE("/:id", api.destroySession, principal)

	cg := g.Group("/classes")
	cg.GET("", api.queryClasses, staff)
	cg.POST("", api.createClass, managers)
	cg.GET("/:id", api.retrieveClass, staff)
	cg.PUT("/:id", api.updateClass, managers)
	cg.DELETE("/:id", api.destroyClass, managers)

	tg := g.Group("/teachers")
	tg.GET("", api.queryTeachers, managers)
	tg.POST("", api.createTeacher, principal)
	tg.GET("/:id", api.retrieveTeacher, staff)
	tg.PUT("/:id/class", api.assignTeacher, managers)
	tg.DELETE("/:id", api.destroyTeacher, principal)

	stg := g.Group("/students")
	stg.GET("", api.queryStudents, staff)
	stg.POST("", api.createStudent, managers)
	stg.POST("/import", api.importStudents, managers)
	stg.GET("/me", api.ownStudent, roleMiddleware(user.RoleStudent))
	stg.GET("/:id", api.retrieveStudent, staff)
	stg.PUT("/:id/class", api.enrollStudent, managers)
	stg.DELETE("/:id", api.destroyStudent, principal)
}

func (api *academicApi) school(ctx echo.Context) (school.School, error) {
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

func schoolID(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	return claims.SchoolID, nil
}

// Sessions

func (api *academicApi) querySessions(ctx echo.Context) error {
	sid, err := schoolID(ctx)
	if err != nil {
		return err
	}
	sessions, err := api.deps.AcademicSvc.ListSessions(ctx.Request().Context(), sid)
	if err != nil {
		return err
	}
	if sessions == nil {
		sessions = []academic.Session{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *academicApi) createSession(ctx echo.Context) error {
	sid, err := schoolID(ctx)
	if err != nil {
		return err
	}
	var data academic.SessionData
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SessionData")
	}
	sess, err := api.deps.AcademicSvc.CreateSession(ctx.Request().Context(), sid, data)
	if err != nil {
		return err
	}
	api.recordAudit(ctx, audit.ActionCreate, "session", sess.ID, nil, sess)
	return ctx.JSON(http.StatusCreated, sess)
}

func (api *academicApi) activeSession(ctx echo.Context) error {
	sid, err := schoolID(ctx)
	if err != nil {
		return err
	}
	sess, err := api.deps.AcademicSvc.ActiveSession(ctx.Request().Context(), sid)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *academicApi) getSession(ctx echo.Context) (academic.Session, error) {
	sid, err := schoolID(ctx)
	if err != nil {
		return academic.Session{}, err
	}
	return api.deps.AcademicSvc.GetSession(ctx.Request().Context(), sid, ctx.Param("id"))
}

func (api *academicApi) retrieveSession(ctx echo.Context) error {
	sess, err := api.getSession(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *academicApi) updateSession(ctx echo.Context) error {
	sess, err := api.getSession(ctx)
	if err != nil {
		return err
	}
	var data academic.SessionData
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SessionData")
	}
	updated, err := api.deps.AcademicSvc.UpdateSession(ctx.Request().Context(), sess, data)
	if err != nil {
		return err
	}
	api.recordAudit(ctx, audit.ActionUpdate, "session", sess.ID, sess, updated)
	return ctx.JSON(http.StatusOK, updated)
}

func (api *academicApi) activateSession(ctx echo.Context) error {
	sess, err := api.getSession(ctx)
	if err != nil {
		return err
	}
	activated, err := api.deps.AcademicSvc.ActivateSession(ctx.Request().Context(), sess.SchoolID, sess.ID)
	if err != nil {
		return err
	}
	api.recordAudit(ctx, audit.ActionUpdate, "session", sess.ID, sess, activated)
	return ctx.JSON(http.StatusOK, activated)
}

func (api *academicApi) destroySession(ctx echo.Context) error {
	sess, err := api.getSession(ctx)
	if err != nil {
		return err
	}
	if err := api.deps.AcademicSvc.DeleteSession(ctx.Request().Context(), sess.SchoolID, sess.ID); err != nil {
		return err
	}
	api.recordAudit(ctx, audit.ActionDelete, "session", sess.ID, sess, nil)
	return ctx.NoContent(http.StatusNoContent)
}

// Classes

func (api *academicApi) queryClasses(ctx echo.Context) error {
	sid, err := schoolID(ctx)
	if err != nil {
		return err
	}
	var filter academic.ClassFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to ClassFilter")
	}
	classes, err := api.deps.AcademicSvc.ListClasses(ctx.Request().Context(), sid, filter)
	if err != nil {
		return err
	}
	if classes == nil {
		classes = []academic.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *academicApi) createClass(ctx echo.Context) error {
	sid, err := schoolID(ctx)
	if err != nil {
		return err
	}
	var data academic.ClassData
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ClassData")
	}
	class, err := api.deps.AcademicSvc.CreateClass(ctx.Request().Context(), sid, data)
	if err != nil {
		return err
	}
	api.recordAudit(ctx, audit.ActionCreate, "class", class.ID, nil, class)
	return ctx.JSON(http.StatusCreated, class)
}

func (api *academicApi) getClass(ctx echo.Context) (academic.Class, error) {
	sid, err := schoolID(ctx)
	if err != nil {
		return academic.Class{}, err
	}
	return api.deps.AcademicSvc.GetClass(ctx.Request().Context(), sid, ctx.Param("id"))
}

func (api *academicApi) retrieveClass(ctx echo.Context) error {
	class, err := api.getClass(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, class)
}

func (api *academicApi) updateClass(ctx echo.Context) error {
	class, err := api.getClass(ctx)
	if err != nil {
		return err
	}
	var data academic.ClassData
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ClassData")
	}
	updated, err := api.deps.AcademicSvc.UpdateClass(ctx.Request().Context(), class, data)
	if err != nil {
		return err
	}
	api.recordAudit(ctx, audit.ActionUpdate, "class", class.ID, class, updated)
	return ctx.JSON(http.StatusOK, updated)
}

func (api *academicApi) destroyClass(ctx echo.Context) error {
	class, err := api.getClass(ctx)
	if err != nil {
		return err
	}
	if err := api.deps.AcademicSvc.DeleteClass(ctx.Request().Context(), class.SchoolID, class.ID); err != nil {
		return err
	}
	api.recordAudit(ctx, audit.ActionDelete, "class", class.ID, class, nil)
	return ctx.NoContent(http.StatusNoContent)
}

// Teachers

func (api *academicApi) queryTeachers(ctx echo.Context) error {
	sid, err := schoolID(ctx)
	if err != nil {
		return err
	}
	var filter academic.PersonFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to PersonFilter")
	}
	filter.Search = core.CleanString(filter.Search)
	teachers, err := api.deps.AcademicSvc.ListTeachers(ctx.Request().Context(), sid, filter)
	if err != nil {
		return err
	}
	if teachers == nil {
		teachers = []academic.Teacher{}
	}
	return ctx.JSON(http.StatusOK, teachers)
}

func (api *academicApi) createTeacher(ctx echo.Context) error {
	sch, err := api.school(ctx)
	if err != nil {
		return err
	}
	var data academic.NewTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeacher")
	}
	t, err := api.deps.AcademicSvc.CreateTeacher(ctx.Request().Context(), sch, data)
	if err != nil {
		return err
	}
	api.recordAudit(ctx, audit.ActionCreate, "teacher", t.ID, nil, t)
	return ctx.JSON(http.StatusCreated, t)
}

func (api *academicApi) getTeacher(ctx echo.Context) (academic.Teacher, error) {
	sid, err := schoolID(ctx)
	if err != nil {
		return academic.Teacher{}, err
	}
	return api.deps.AcademicSvc.GetTeacher(ctx.Request().Context(), sid, ctx.Param("id"))
}

func (api *academicApi) retrieveTeacher(ctx echo.Context) error {
	t, err := api.getTeacher(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *academicApi) assignTeacher(ctx echo.Context) error {
	t, err := api.getTeacher(ctx)
	if err != nil {
		return err
	}
	var data academic.AssignClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignClass")
	}
	if err := api.deps.Validate.Struct(data); err != nil {
		return err
	}
	updated, err := api.deps.AcademicSvc.AssignTeacher(ctx.Request().Context(), t.SchoolID, t.ID, data.ClassID)
	if err != nil {
		return err
	}
	api.recordAudit(ctx, audit.ActionUpdate, "teacher", t.ID, classOf(t.ClassID), classOf(updated.ClassID))
	return ctx.JSON(http.StatusOK, updated)
}

func (api *academicApi) destroyTeacher(ctx echo.Context) error {
	t, err := api.getTeacher(ctx)
	if err != nil {
		return err
	}
	if err := api.deps.AcademicSvc.DeleteTeacher(ctx.Request().Context(), t.SchoolID, t.ID); err != nil {
		return err
	}
	api.recordAudit(ctx, audit.ActionDelete, "teacher", t.ID, t, nil)
	return ctx.NoContent(http.StatusNoContent)
}

// Students

func (api *academicApi) queryStudents(ctx echo.Context) error {
	sid, err := schoolID(ctx)
	if err != nil {
		return err
	}
	var filter academic.PersonFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to PersonFilter")
	}
	filter.Search = core.CleanString(filter.Search)
	students, err := api.deps.AcademicSvc.ListStudents(ctx.Request().Context(), sid, filter)
	if err != nil {
		return err
	}
	if students == nil {
		students = []academic.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *academicApi) createStudent(ctx echo.Context) error {
	sch, err := api.school(ctx)
	if err != nil {
		return err
	}
	var data academic.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	st, err := api.deps.AcademicSvc.CreateStudent(ctx.Request().Context(), sch, data)
	if err != nil {
		return err
	}
	api.recordAudit(ctx, audit.ActionCreate, "student", st.ID, nil, st)
	return ctx.JSON(http.StatusCreated, st)
}

// importStudents reads the multipart "file" field; "class_id" enrolls every created student.
func (api *academicApi) importStudents(ctx echo.Context) error {
	sch, err := api.school(ctx)
	if err != nil {
		return err
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewFieldError("file", "a CSV file is required")
	}
	if fh.Size > maxImportSize {
		return core.NewFieldError("file", "file is too large")
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxImportSize))
	if err != nil {
		return errors.Wrap(err, "reading uploaded file")
	}

	res, err := api.deps.AcademicSvc.ImportStudents(ctx.Request().Context(), sch, ctx.FormValue("class_id"), data)
	if err != nil {
		return err
	}
	for _, st := range res.Created {
		api.recordAudit(ctx, audit.ActionCreate, "student", st.ID, nil, st)
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *academicApi) ownStudent(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	st, err := api.deps.AcademicSvc.StudentOfUser(ctx.Request().Context(), claims.SchoolID, claims.Subject)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *academicApi) getStudent(ctx echo.Context) (academic.Student, error) {
	sid, err := schoolID(ctx)
	if err != nil {
		return academic.Student{}, err
	}
	return api.deps.AcademicSvc.GetStudent(ctx.Request().Context(), sid, ctx.Param("id"))
}

func (api *academicApi) retrieveStudent(ctx echo.Context) error {
	st, err := api.getStudent(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *academicApi) enrollStudent(ctx echo.Context) error {
	st, err := api.getStudent(ctx)
	if err != nil {
		return err
	}
	var data academic.AssignClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignClass")
	}
	if err := api.deps.Validate.Struct(data); err != nil {
		return err
	}
	updated, err := api.deps.AcademicSvc.EnrollStudent(ctx.Request().Context(), st.SchoolID, st.ID, data.ClassID)
	if err != nil {
		return err
	}
	api.recordAudit(ctx, audit.ActionUpdate, "student", st.ID, classOf(st.ClassID), classOf(updated.ClassID))
	return ctx.JSON(http.StatusOK, updated)
}

func (api *academicApi) destroyStudent(ctx echo.Context) error {
	st, err := api.getStudent(ctx)
	if err != nil {
		return err
	}
	if err := api.deps.AcademicSvc.DeleteStudent(ctx.Request().Context(), st.SchoolID, st.ID); err != nil {
		return err
	}
	api.recordAudit(ctx, audit.ActionDelete, "student", st.ID, st, nil)
	return ctx.NoContent(http.StatusNoContent)
}

// classOf is the audited part of a class (re)assignment.
func classOf(classID string) academic.AssignClass {
	return academic.AssignClass{ClassID: classID}
}
