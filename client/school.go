package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/trezcool/attendly/core/school"
)

type CurrentSubscription struct {
	school.Subscription
	IsCurrent bool `json:"is_current"`
}

func (c *Client) Plans(ctx context.Context) ([]school.Plan, error) {
	var plans []school.Plan
	err := c.do(ctx, http.MethodGet, "/school/plans", nil, nil, &plans)
	return plans, err
}

func (c *Client) Quote(ctx context.Context, planID string, students int) (school.Quote, error) {
	var q school.Quote
	err := c.do(ctx, http.MethodPost, "/school/quote", nil, school.QuoteRequest{PlanID: planID, Students: students}, &q)
	return q, err
}

// LookupSchool checks a school code, as typed on the school-code entry page.
func (c *Client) LookupSchool(ctx context.Context, code string) (school.Lookup, error) {
	var lk school.Lookup
	err := c.do(ctx, http.MethodGet, "/school/lookup/"+url.PathEscape(code), nil, nil, &lk)
	return lk, err
}

func (c *Client) School(ctx context.Context) (school.School, error) {
	var sch school.School
	err := c.do(ctx, http.MethodGet, "/school", nil, nil, &sch)
	return sch, err
}

func (c *Client) UpdateSchool(ctx context.Context, data school.UpdateSchool) (school.School, error) {
	var sch school.School
	err := c.do(ctx, http.MethodPut, "/school", nil, data, &sch)
	return sch, err
}

func (c *Client) Subscription(ctx context.Context) (CurrentSubscription, error) {
	var sub CurrentSubscription
	err := c.do(ctx, http.MethodGet, "/school/subscription", nil, nil, &sub)
	return sub, err
}

func (c *Client) Subscriptions(ctx context.Context) ([]school.Subscription, error) {
	var subs []school.Subscription
	err := c.do(ctx, http.MethodGet, "/school/subscriptions", nil, nil, &subs)
	return subs, err
}

func (c *Client) Subscribe(ctx context.Context, data school.SubscribeRequest) (school.Subscription, error) {
	var sub school.Subscription
	err := c.do(ctx, http.MethodPost, "/school/subscribe", nil, data, &sub)
	return sub, err
}
