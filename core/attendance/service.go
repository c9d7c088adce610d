package attendance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/academic"
	"github.com/trezcool/attendly/core/holiday"
	"github.com/trezcool/attendly/core/user"
)

var (
	ErrFutureDate   = errors.New("attendance cannot be marked for a future date")
	ErrOutOfSession = errors.New("date is outside of the class session")
	ErrHoliday      = errors.New("date is a holiday")
	ErrNotEnrolled  = errors.New("student is not enrolled in this class")
	ErrDuplicate    = errors.New("student is listed more than once")
)

type (
	Repository interface {
		// UpsertRecords inserts the records or updates the existing (class, student, date) ones, atomically.
		UpsertRecords(ctx context.Context, records []Record) ([]Record, error)
		// QueryRecords returns the matching records of the school ordered by date then student.
		QueryRecords(ctx context.Context, schoolID string, filter RecordFilter) ([]Record, error)
	}

	Service interface {
		Mark(ctx context.Context, schoolID string, marker user.User, data MarkAttendance) ([]Record, error)
		Sheet(ctx context.Context, schoolID, classID string, day core.Date) (Sheet, error)
		ClassReport(ctx context.Context, schoolID, classID string, period core.DateRange) (ClassReport, error)
		StudentReport(ctx context.Context, schoolID, studentID string, period core.DateRange) (StudentReport, error)
		Trend(ctx context.Context, schoolID, classID string, period core.DateRange) ([]TrendPoint, error)
	}

	service struct {
		repo     Repository
		acadSvc  academic.Service
		holSvc   holiday.Service
		logger   core.Logger
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	acadSvc academic.Service,
	holSvc holiday.Service,
	logger core.Logger,
	validate *validator.Validate,
) Service {
	return &service{repo: repo, acadSvc: acadSvc, holSvc: holSvc, logger: logger, validate: validate}
}

func (svc *service) Mark(ctx context.Context, schoolID string, marker user.User, data MarkAttendance) ([]Record, error) {
	if err := svc.validate.Struct(data); err != nil {
		return nil, err
	}
	switch {
	case data.Date.IsZero():
		return nil, core.NewFieldError("date", "date is required")
	case data.Date.After(core.Today()):
		return nil, core.NewValidationError(ErrFutureDate, core.FieldError{Field: "date", Error: ErrFutureDate.Error()})
	}

	class, err := svc.acadSvc.GetClass(ctx, schoolID, data.ClassID)
	if err != nil {
		return nil, err
	}
	if err := svc.checkMarker(ctx, schoolID, marker, class); err != nil {
		return nil, err
	}

	sess, err := svc.acadSvc.GetSession(ctx, schoolID, class.SessionID)
	if err != nil {
		return nil, errors.Wrap(err, "finding class session")
	}
	if !sess.Range().Contains(data.Date) {
		return nil, core.NewValidationError(ErrOutOfSession, core.FieldError{Field: "date", Error: ErrOutOfSession.Error()})
	}

	hol, isHoliday, err := svc.holSvc.IsHoliday(ctx, schoolID, data.Date)
	if err != nil {
		return nil, err
	}
	if isHoliday {
		msg := fmt.Sprintf("%s: %s", ErrHoliday, hol.Name)
		return nil, core.NewValidationError(ErrHoliday, core.FieldError{Field: "date", Error: msg})
	}

	enrolled, err := svc.enrolled(ctx, schoolID, class.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	records := make([]Record, 0, len(data.Entries))
	seen := make(map[string]bool, len(data.Entries))
	for i, e := range data.Entries {
		fld := fmt.Sprintf("entries[%d].student_id", i)
		if _, ok := enrolled[e.StudentID]; !ok {
			return nil, core.NewValidationError(ErrNotEnrolled, core.FieldError{Field: fld, Error: ErrNotEnrolled.Error()})
		}
		if seen[e.StudentID] {
			return nil, core.NewValidationError(ErrDuplicate, core.FieldError{Field: fld, Error: ErrDuplicate.Error()})
		}
		seen[e.StudentID] = true
		records = append(records, Record{
			SchoolID:  schoolID,
			ClassID:   class.ID,
			StudentID: e.StudentID,
			Date:      data.Date,
			Status:    e.Status,
			Remark:    core.CleanString(e.Remark),
			MarkedBy:  marker.ID,
			MarkedAt:  now,
		})
	}
	return svc.repo.UpsertRecords(ctx, records)
}

// checkMarker lets a plain teacher mark only the class they are actively assigned to.
func (svc *service) checkMarker(ctx context.Context, schoolID string, marker user.User, class academic.Class) error {
	if marker.HasAnyRole(user.RolePrincipal, user.RoleCoordinator) {
		return nil
	}
	if !marker.HasRole(user.RoleTeacher) {
		return core.ErrForbidden
	}
	t, err := svc.acadSvc.ActiveTeacherOf(ctx, schoolID, class.ID)
	if err != nil {
		if core.IsNotFound(err) {
			return core.ErrForbidden
		}
		return err
	}
	if t.UserID != marker.ID {
		return core.ErrForbidden
	}
	return nil
}

func (svc *service) enrolled(ctx context.Context, schoolID, classID string) (map[string]academic.Student, error) {
	students, err := svc.acadSvc.ListStudents(ctx, schoolID, academic.PersonFilter{ClassID: classID})
	if err != nil {
		return nil, errors.Wrap(err, "listing enrolled students")
	}
	byID := make(map[string]academic.Student, len(students))
	for _, st := range students {
		byID[st.ID] = st
	}
	return byID, nil
}

func (svc *service) Sheet(ctx context.Context, schoolID, classID string, day core.Date) (Sheet, error) {
	if day.IsZero() {
		day = core.Today()
	}
	if _, err := svc.acadSvc.GetClass(ctx, schoolID, classID); err != nil {
		return Sheet{}, err
	}
	students, err := svc.acadSvc.ListStudents(ctx, schoolID, academic.PersonFilter{ClassID: classID})
	if err != nil {
		return Sheet{}, errors.Wrap(err, "listing enrolled students")
	}
	records, err := svc.repo.QueryRecords(ctx, schoolID, RecordFilter{ClassID: classID, From: day, To: day})
	if err != nil {
		return Sheet{}, errors.Wrap(err, "querying attendance")
	}
	byStudent := make(map[string]Record, len(records))
	for _, r := range records {
		byStudent[r.StudentID] = r
	}

	sheet := Sheet{ClassID: classID, Date: day, Rows: make([]SheetRow, 0, len(students))}
	if hol, ok, err := svc.holSvc.IsHoliday(ctx, schoolID, day); err != nil {
		return Sheet{}, err
	} else if ok {
		sheet.Holiday = hol.Name
	}
	for _, st := range students {
		row := SheetRow{StudentID: st.ID, Name: st.Name, RollNumber: st.RollNumber}
		if r, ok := byStudent[st.ID]; ok {
			row.Status, row.Remark = r.Status, r.Remark
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet, nil
}

// reportPeriod fills the open bounds of period with the class session range, capped at today.
func (svc *service) reportPeriod(ctx context.Context, schoolID string, class academic.Class, period core.DateRange) (core.DateRange, error) {
	if !period.From.IsZero() && !period.To.IsZero() {
		if period.To.Before(period.From) {
			return period, core.NewFieldError("to", "end of period is before its start")
		}
		return period, nil
	}
	sess, err := svc.acadSvc.GetSession(ctx, schoolID, class.SessionID)
	if err != nil {
		return period, errors.Wrap(err, "finding class session")
	}
	if period.From.IsZero() {
		period.From = sess.StartDate
	}
	if period.To.IsZero() {
		period.To = sess.EndDate
		if today := core.Today(); today.Before(period.To) {
			period.To = today
		}
	}
	return period, nil
}

func (svc *service) ClassReport(ctx context.Context, schoolID, classID string, period core.DateRange) (ClassReport, error) {
	class, err := svc.acadSvc.GetClass(ctx, schoolID, classID)
	if err != nil {
		return ClassReport{}, err
	}
	if period, err = svc.reportPeriod(ctx, schoolID, class, period); err != nil {
		return ClassReport{}, err
	}
	enrolled, err := svc.enrolled(ctx, schoolID, classID)
	if err != nil {
		return ClassReport{}, err
	}
	records, err := svc.repo.QueryRecords(ctx, schoolID, RecordFilter{ClassID: classID, From: period.From, To: period.To})
	if err != nil {
		return ClassReport{}, errors.Wrap(err, "querying attendance")
	}

	summaries := make(map[string]*StudentSummary, len(enrolled))
	for _, st := range enrolled {
		summaries[st.ID] = &StudentSummary{StudentID: st.ID, Name: st.Name, RollNumber: st.RollNumber}
	}
	report := ClassReport{ClassID: classID, From: period.From, To: period.To}
	for _, r := range records {
		sum, ok := summaries[r.StudentID]
		if !ok {
			// left the class since
			sum = &StudentSummary{StudentID: r.StudentID}
			if st, err := svc.acadSvc.GetStudent(ctx, schoolID, r.StudentID); err == nil {
				sum.Name, sum.RollNumber = st.Name, st.RollNumber
			}
			summaries[r.StudentID] = sum
		}
		sum.Add(r.Status)
		report.Overall.Add(r.Status)
	}

	report.Students = make([]StudentSummary, 0, len(summaries))
	for _, sum := range summaries {
		report.Students = append(report.Students, *sum)
	}
	sort.Slice(report.Students, func(i, j int) bool {
		a, b := report.Students[i], report.Students[j]
		if a.RollNumber != b.RollNumber {
			return a.RollNumber < b.RollNumber
		}
		return a.Name < b.Name
	})
	return report, nil
}

func (svc *service) StudentReport(ctx context.Context, schoolID, studentID string, period core.DateRange) (StudentReport, error) {
	st, err := svc.acadSvc.GetStudent(ctx, schoolID, studentID)
	if err != nil {
		return StudentReport{}, err
	}
	if (period.From.IsZero() || period.To.IsZero()) && st.ClassID != "" {
		class, err := svc.acadSvc.GetClass(ctx, schoolID, st.ClassID)
		if err != nil {
			return StudentReport{}, err
		}
		if period, err = svc.reportPeriod(ctx, schoolID, class, period); err != nil {
			return StudentReport{}, err
		}
	}
	records, err := svc.repo.QueryRecords(ctx, schoolID, RecordFilter{StudentID: studentID, From: period.From, To: period.To})
	if err != nil {
		return StudentReport{}, errors.Wrap(err, "querying attendance")
	}
	report := StudentReport{StudentID: studentID, From: period.From, To: period.To, Records: records}
	for _, r := range records {
		report.Counts.Add(r.Status)
	}
	return report, nil
}

func (svc *service) Trend(ctx context.Context, schoolID, classID string, period core.DateRange) ([]TrendPoint, error) {
	class, err := svc.acadSvc.GetClass(ctx, schoolID, classID)
	if err != nil {
		return nil, err
	}
	if period, err = svc.reportPeriod(ctx, schoolID, class, period); err != nil {
		return nil, err
	}
	records, err := svc.repo.QueryRecords(ctx, schoolID, RecordFilter{ClassID: classID, From: period.From, To: period.To})
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}

	points := make([]TrendPoint, 0)
	for _, r := range records {
		if n := len(points); n == 0 || !points[n-1].Date.Equal(r.Date) {
			points = append(points, TrendPoint{Date: r.Date})
		}
		points[len(points)-1].Add(r.Status)
	}
	return points, nil
}
