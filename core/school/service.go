package school

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/user"
)

var (
	ErrNotFound          = core.NotFoundError{Entity: "school"}
	ErrCodeExists        = errors.New("a school with this code already exists")
	ErrNoSubscription    = core.NotFoundError{Entity: "subscription"}
	ErrAmountMismatch    = errors.New("paid amount does not match the quote")
	ErrSchoolDeactivated = errors.New("school deactivated")
)

type (
	Repository interface {
		CheckCodeUniqueness(ctx context.Context, code string) error
		CreateSchool(ctx context.Context, sch School) (School, error)
		GetSchoolByID(ctx context.Context, id string) (School, error)
		GetSchoolByCode(ctx context.Context, code string) (School, error)
		UpdateSchool(ctx context.Context, sch School) (School, error)
		DeleteSchool(ctx context.Context, id string) error

		CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error)
		UpdateSubscription(ctx context.Context, sub Subscription) (Subscription, error)
		// GetLatestSubscription returns the most recently created subscription of the school.
		GetLatestSubscription(ctx context.Context, schoolID string) (Subscription, error)
		ListSubscriptions(ctx context.Context, schoolID string) ([]Subscription, error)
		// ExpireSubscriptions flags TRIAL|ACTIVE subscriptions that ended before day as EXPIRED.
		ExpireSubscriptions(ctx context.Context, day core.Date) (int, error)
	}

	Service interface {
		Register(ctx context.Context, data RegisterSchool) (School, user.User, error)
		GetByID(ctx context.Context, id string) (School, error)
		GetByCode(ctx context.Context, code string) (School, error)
		Update(ctx context.Context, sch School, data UpdateSchool) (School, error)
		Quote(planID string, students int) (Quote, error)
		Subscribe(ctx context.Context, schoolID string, data SubscribeRequest) (Subscription, error)
		CurrentSubscription(ctx context.Context, schoolID string) (Subscription, error)
		SubscriptionHistory(ctx context.Context, schoolID string) ([]Subscription, error)
		ExpireSubscriptions(ctx context.Context) (int, error)
	}

	service struct {
		repo      Repository
		usrSvc    user.Service
		mailSvc   core.EmailService
		logger    core.Logger
		validate  *validator.Validate
		trialDays int
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	usrSvc user.Service,
	mailSvc core.EmailService,
	logger core.Logger,
	validate *validator.Validate,
	conf *core.Config,
) Service {
	validate.RegisterStructValidation(registerStructValidation, RegisterSchool{})
	return &service{
		repo:      repo,
		usrSvc:    usrSvc,
		mailSvc:   mailSvc,
		logger:    logger,
		validate:  validate,
		trialDays: conf.TrialDays,
	}
}

func registerStructValidation(sl validator.StructLevel) {
	rs := sl.Current().Interface().(RegisterSchool)
	user.ReportPasswordPolicy(sl, rs.Password, rs.PrincipalName, rs.PrincipalUsername, rs.PrincipalEmail)
}

func (svc *service) Register(ctx context.Context, data RegisterSchool) (School, user.User, error) {
	data.Clean()
	if err := svc.validate.Struct(data); err != nil {
		return School{}, user.User{}, err
	}
	if err := svc.repo.CheckCodeUniqueness(ctx, data.SchoolCode); err != nil {
		if err == ErrCodeExists {
			return School{}, user.User{}, core.NewValidationError(err, core.FieldError{Field: "school_code", Error: err.Error()})
		}
		return School{}, user.User{}, errors.Wrap(err, "checking school code")
	}

	now := time.Now().UTC()
	sch, err := svc.repo.CreateSchool(ctx, School{
		Code:      data.SchoolCode,
		Name:      data.SchoolName,
		Email:     data.SchoolEmail,
		Phone:     data.SchoolPhone,
		Address:   data.SchoolAddress,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return School{}, user.User{}, errors.Wrap(err, "creating school")
	}

	principal, err := svc.usrSvc.Create(ctx, data.principal(sch.ID))
	if err != nil {
		svc.rollbackRegistration(ctx, sch)
		return School{}, user.User{}, errors.Wrap(err, "creating principal")
	}

	today := core.Today()
	trial, err := svc.repo.CreateSubscription(ctx, Subscription{
		SchoolID:  sch.ID,
		PlanID:    TrialPlanID,
		StartsOn:  today,
		EndsOn:    today.AddDays(svc.trialDays),
		Status:    StatusTrial,
		CreatedAt: now,
	})
	if err != nil {
		svc.rollbackRegistration(ctx, sch)
		return School{}, user.User{}, errors.Wrap(err, "creating trial subscription")
	}

	svc.sendWelcomeMail(sch, principal, trial)
	return sch, principal, nil
}

// rollbackRegistration removes a half-registered school; users & subscriptions cascade.
func (svc *service) rollbackRegistration(ctx context.Context, sch School) {
	if err := svc.repo.DeleteSchool(ctx, sch.ID); err != nil {
		svc.logger.Error(fmt.Sprintf("rolling back registration of school %s: %v", sch.Code, err), err)
	}
}

type welcomeData struct {
	PrincipalName string
	SchoolName    string
	SchoolCode    string
	TrialEndsOn   string
}

func (svc *service) sendWelcomeMail(sch School, principal user.User, trial Subscription) {
	if principal.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: principal.Name, Address: principal.Email}},
		Subject:      "Welcome to your school space",
		School:       sch.Name,
		TemplateName: "school_welcome",
		TemplateData: welcomeData{
			PrincipalName: principal.Name,
			SchoolName:    sch.Name,
			SchoolCode:    sch.Code,
			TrialEndsOn:   trial.EndsOn.String(),
		},
	})
}

func (svc *service) GetByID(ctx context.Context, id string) (School, error) {
	return svc.repo.GetSchoolByID(ctx, id)
}

func (svc *service) GetByCode(ctx context.Context, code string) (School, error) {
	return svc.repo.GetSchoolByCode(ctx, NormalizeCode(code))
}

func (svc *service) Update(ctx context.Context, sch School, data UpdateSchool) (School, error) {
	if err := svc.validate.Struct(data); err != nil {
		return School{}, err
	}
	if name := core.CleanString(data.Name); name != "" {
		sch.Name = name
	}
	if email := core.CleanString(data.Email, true /* lower */); email != "" {
		sch.Email = email
	}
	if phone := core.CleanString(data.Phone); phone != "" {
		sch.Phone = phone
	}
	if addr := core.CleanString(data.Address); addr != "" {
		sch.Address = addr
	}
	sch.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSchool(ctx, sch)
}

func (svc *service) Quote(planID string, students int) (Quote, error) {
	return NewQuote(planID, students)
}

// Subscribe replaces the current subscription with a paid, one year long, ACTIVE one.
func (svc *service) Subscribe(ctx context.Context, schoolID string, data SubscribeRequest) (Subscription, error) {
	if err := svc.validate.Struct(data); err != nil {
		return Subscription{}, err
	}
	quote, err := NewQuote(data.PlanID, data.Students)
	if err != nil {
		return Subscription{}, err
	}
	if data.PaidAmount != quote.Amount {
		return Subscription{}, core.NewValidationError(
			ErrAmountMismatch,
			core.FieldError{Field: "paid_amount", Error: fmt.Sprintf("expected %d %s", quote.Amount, quote.Currency)},
		)
	}

	if current, err := svc.repo.GetLatestSubscription(ctx, schoolID); err == nil {
		if current.Status == StatusTrial || current.Status == StatusActive {
			current.Status = StatusCancelled
			if _, err := svc.repo.UpdateSubscription(ctx, current); err != nil {
				return Subscription{}, errors.Wrap(err, "cancelling current subscription")
			}
		}
	} else if !core.IsNotFound(err) {
		return Subscription{}, errors.Wrap(err, "finding current subscription")
	}

	today := core.Today()
	sub, err := svc.repo.CreateSubscription(ctx, Subscription{
		SchoolID:         schoolID,
		PlanID:           quote.PlanID,
		BillableStudents: quote.BillableStudents,
		PaidAmount:       data.PaidAmount,
		StartsOn:         today,
		EndsOn:           core.DateOf(today.Time().AddDate(1, 0, -1)),
		Status:           StatusActive,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		return Subscription{}, errors.Wrap(err, "creating subscription")
	}
	return sub, nil
}

func (svc *service) CurrentSubscription(ctx context.Context, schoolID string) (Subscription, error) {
	return svc.repo.GetLatestSubscription(ctx, schoolID)
}

func (svc *service) SubscriptionHistory(ctx context.Context, schoolID string) ([]Subscription, error) {
	return svc.repo.ListSubscriptions(ctx, schoolID)
}

func (svc *service) ExpireSubscriptions(ctx context.Context) (int, error) {
	n, err := svc.repo.ExpireSubscriptions(ctx, core.Today())
	if err != nil {
		return 0, errors.Wrap(err, "expiring subscriptions")
	}
	return n, nil
}
