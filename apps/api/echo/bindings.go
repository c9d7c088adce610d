package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/attendly/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads "?ordering=name,-created_at"; a leading "-" sorts descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindPeriod reads the optional "from" & "to" query dates.
func bindPeriod(ctx echo.Context) (core.DateRange, error) {
	var period core.DateRange
	for name, dst := range map[string]*core.Date{"from": &period.From, "to": &period.To} {
		if raw := ctx.QueryParam(name); raw != "" {
			if err := dst.UnmarshalParam(raw); err != nil {
				return period, core.NewFieldError(name, "date must be formatted as YYYY-MM-DD")
			}
		}
	}
	return period, nil
}

// bindDate reads the query date named name, defaulting to today.
func bindDate(ctx echo.Context, name string) (core.Date, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return core.Today(), nil
	}
	var d core.Date
	if err := d.UnmarshalParam(raw); err != nil {
		return d, core.NewFieldError(name, "date must be formatted as YYYY-MM-DD")
	}
	return d, nil
}
