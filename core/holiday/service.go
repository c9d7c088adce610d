package holiday

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
)

var ErrNotFound = core.NotFoundError{Entity: "holiday"}

var (
	categoryTag  = "holidaycategory"
	categoryText = "category must be one of NATIONAL, FESTIVAL or SCHOOL"
)

type (
	Repository interface {
		CreateHoliday(ctx context.Context, h Holiday) (Holiday, error)
		// QueryHolidays returns the holidays of the school matching filter, ordered by start date.
		QueryHolidays(ctx context.Context, schoolID string, filter QueryFilter) ([]Holiday, error)
		GetHolidayByID(ctx context.Context, schoolID, id string) (Holiday, error)
		UpdateHoliday(ctx context.Context, h Holiday) (Holiday, error)
		DeleteHoliday(ctx context.Context, schoolID, id string) error
	}

	Service interface {
		Create(ctx context.Context, schoolID string, data HolidayData) (Holiday, error)
		List(ctx context.Context, schoolID string, filter QueryFilter) ([]Holiday, error)
		Get(ctx context.Context, schoolID, id string) (Holiday, error)
		Update(ctx context.Context, h Holiday, data HolidayData) (Holiday, error)
		Delete(ctx context.Context, schoolID, id string) error
		// IsHoliday returns the holiday covering day, if any.
		IsHoliday(ctx context.Context, schoolID string, day core.Date) (Holiday, bool, error)
	}

	service struct {
		repo     Repository
		logger   core.Logger
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, logger core.Logger, validate *validator.Validate) Service {
	return &service{repo: repo, logger: logger, validate: validate}
}

// InitValidators registers the holiday validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(categoryTag, func(fl validator.FieldLevel) bool {
		return IsValidCategory(Category(fl.Field().String()))
	})
	core.RegisterCustomTranslation(validate, translator, categoryTag, categoryText)
}

func (svc *service) check(ctx context.Context, candidate Holiday, data *HolidayData) error {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return err
	}
	if err := ValidateDates(data.StartDate, data.EndDate, core.Today()); err != nil {
		return err
	}

	candidate.StartDate, candidate.EndDate = data.StartDate, data.EndDate
	neighbours, err := svc.repo.QueryHolidays(ctx, candidate.SchoolID, QueryFilter{
		From: data.StartDate.AddDays(-1),
		To:   data.EndDate.AddDays(1),
	})
	if err != nil {
		return errors.Wrap(err, "querying neighbour holidays")
	}
	return CheckOverlap(candidate, neighbours)
}

func (svc *service) Create(ctx context.Context, schoolID string, data HolidayData) (Holiday, error) {
	if err := svc.check(ctx, Holiday{SchoolID: schoolID}, &data); err != nil {
		return Holiday{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateHoliday(ctx, Holiday{
		SchoolID:    schoolID,
		Name:        data.Name,
		StartDate:   data.StartDate,
		EndDate:     data.EndDate,
		Category:    data.Category,
		Description: data.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *service) List(ctx context.Context, schoolID string, filter QueryFilter) ([]Holiday, error) {
	return svc.repo.QueryHolidays(ctx, schoolID, filter)
}

func (svc *service) Get(ctx context.Context, schoolID, id string) (Holiday, error) {
	return svc.repo.GetHolidayByID(ctx, schoolID, id)
}

func (svc *service) Update(ctx context.Context, h Holiday, data HolidayData) (Holiday, error) {
	if err := svc.check(ctx, h, &data); err != nil {
		return Holiday{}, err
	}
	h.Name = data.Name
	h.StartDate = data.StartDate
	h.EndDate = data.EndDate
	h.Category = data.Category
	h.Description = data.Description
	h.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateHoliday(ctx, h)
}

func (svc *service) Delete(ctx context.Context, schoolID, id string) error {
	return svc.repo.DeleteHoliday(ctx, schoolID, id)
}

func (svc *service) IsHoliday(ctx context.Context, schoolID string, day core.Date) (Holiday, bool, error) {
	hols, err := svc.repo.QueryHolidays(ctx, schoolID, QueryFilter{From: day, To: day})
	if err != nil {
		return Holiday{}, false, errors.Wrap(err, "querying holidays")
	}
	for _, h := range hols {
		if h.Covers(day) {
			return h, true, nil
		}
	}
	return Holiday{}, false, nil
}
