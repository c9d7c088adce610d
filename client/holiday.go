package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/holiday"
)

func (c *Client) Holidays(ctx context.Context, filter holiday.QueryFilter) ([]holiday.Holiday, error) {
	q := setPeriod(url.Values{}, core.DateRange{From: filter.From, To: filter.To})
	setIf(q, "category", string(filter.Category))

	var hols []holiday.Holiday
	err := c.do(ctx, http.MethodGet, "/holidays", q, nil, &hols)
	return hols, err
}

func (c *Client) Holiday(ctx context.Context, id string) (holiday.Holiday, error) {
	var h holiday.Holiday
	err := c.do(ctx, http.MethodGet, "/holidays/"+url.PathEscape(id), nil, nil, &h)
	return h, err
}

func (c *Client) HolidayCategories(ctx context.Context) ([]holiday.Category, error) {
	var cats []holiday.Category
	err := c.do(ctx, http.MethodGet, "/holidays/categories", nil, nil, &cats)
	return cats, err
}

// checkHoliday runs the date rules locally; a rejected holiday never reaches the API.
func checkHoliday(data holiday.HolidayData, existing []holiday.Holiday, id string) error {
	data.Clean()
	if err := holiday.ValidateDates(data.StartDate, data.EndDate, core.Today()); err != nil {
		return localValidationError(err)
	}
	candidate := holiday.Holiday{ID: id, Name: data.Name, StartDate: data.StartDate, EndDate: data.EndDate}
	if len(existing) > 0 {
		candidate.SchoolID = existing[0].SchoolID
	}
	if err := holiday.CheckOverlap(candidate, existing); err != nil {
		return localValidationError(err)
	}
	return nil
}

func localValidationError(err error) error {
	var verr *core.ValidationError
	if errors.As(err, &verr) && len(verr.Fields) > 0 {
		fields := make(map[string]string, len(verr.Fields))
		for _, f := range verr.Fields {
			fields[f.Field] = f.Error
		}
		return &ValidationError{Fields: fields}
	}
	return &ValidationError{Fields: map[string]string{"": err.Error()}}
}

// CreateHoliday rejects past dates, and overlaps with the known holidays, without sending a request.
func (c *Client) CreateHoliday(ctx context.Context, data holiday.HolidayData, existing ...holiday.Holiday) (holiday.Holiday, error) {
	if err := checkHoliday(data, existing, ""); err != nil {
		return holiday.Holiday{}, err
	}
	var h holiday.Holiday
	err := c.do(ctx, http.MethodPost, "/holidays", nil, data, &h)
	return h, err
}

func (c *Client) UpdateHoliday(ctx context.Context, id string, data holiday.HolidayData, existing ...holiday.Holiday) (holiday.Holiday, error) {
	if err := checkHoliday(data, existing, id); err != nil {
		return holiday.Holiday{}, err
	}
	var h holiday.Holiday
	err := c.do(ctx, http.MethodPut, "/holidays/"+url.PathEscape(id), nil, data, &h)
	return h, err
}

func (c *Client) DeleteHoliday(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/holidays/"+url.PathEscape(id), nil, nil, nil)
}
