package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/trezcool/attendly/core/user"
)

// Users lists the users of the school; ordering looks like "name,-created_at".
func (c *Client) Users(ctx context.Context, filter user.QueryFilter, ordering string) ([]user.User, error) {
	q := url.Values{}
	setIf(q, "search", filter.Search)
	for _, role := range filter.Roles {
		q.Add("role", role)
	}
	if filter.IsActive != nil {
		q.Set("is_active", strconv.FormatBool(*filter.IsActive))
	}
	setIf(q, "ordering", ordering)

	var users []user.User
	err := c.do(ctx, http.MethodGet, "/users", q, nil, &users)
	return users, err
}

func (c *Client) User(ctx context.Context, id string) (user.User, error) {
	var usr user.User
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, nil, &usr)
	return usr, err
}

func (c *Client) CreateUser(ctx context.Context, data user.NewUser) (user.User, error) {
	var usr user.User
	err := c.do(ctx, http.MethodPost, "/users", nil, data, &usr)
	return usr, err
}

func (c *Client) UpdateUser(ctx context.Context, id string, data user.UpdateUser) (user.User, error) {
	var usr user.User
	err := c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(id), nil, data, &usr)
	return usr, err
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) DeleteUsers(ctx context.Context, ids ...string) error {
	return c.do(ctx, http.MethodDelete, "/users", url.Values{"id": ids}, nil, nil)
}

func (c *Client) Roles(ctx context.Context) ([]user.Role, error) {
	var roles []user.Role
	err := c.do(ctx, http.MethodGet, "/users/roles", nil, nil, &roles)
	return roles, err
}
