package client

import (
	"context"
	"net/http"

	"github.com/trezcool/attendly/core/school"
	"github.com/trezcool/attendly/core/user"
)

type Credentials struct {
	SchoolCode string `json:"school_code"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

type Me struct {
	User       user.User     `json:"user"`
	School     school.School `json:"school"`
	ActiveRole string        `json:"active_role"`
}

type Registration struct {
	Token  string        `json:"token"`
	School school.School `json:"school"`
	User   user.User     `json:"user"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Login authenticates against the endpoint of role and keeps the issued token.
func (c *Client) Login(ctx context.Context, role string, creds Credentials) (string, error) {
	var res tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/"+role+"/login", nil, creds, &res); err != nil {
		return "", err
	}
	c.SetToken(res.Token)
	return res.Token, nil
}

// RegisterSchool creates a school & its principal, then keeps the principal's token.
func (c *Client) RegisterSchool(ctx context.Context, data school.RegisterSchool) (Registration, error) {
	var res Registration
	if err := c.do(ctx, http.MethodPost, "/auth/register-school", nil, data, &res); err != nil {
		return Registration{}, err
	}
	c.SetToken(res.Token)
	return res, nil
}

func (c *Client) Me(ctx context.Context) (Me, error) {
	var me Me
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &me)
	return me, err
}

func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	var res tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/token-refresh", nil, nil, &res); err != nil {
		return "", err
	}
	c.SetToken(res.Token)
	return res.Token, nil
}

// Logout revokes the token server-side; the token is forgotten either way.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
	c.SetToken("")
	return err
}

func (c *Client) RequestPasswordReset(ctx context.Context, schoolCode, email string) error {
	body := map[string]string{"school_code": schoolCode, "email": email}
	return c.do(ctx, http.MethodPost, "/auth/password-reset", nil, body, nil)
}

func (c *Client) ConfirmPasswordReset(ctx context.Context, data user.ResetUserPassword) error {
	return c.do(ctx, http.MethodPost, "/auth/password-reset-confirm", nil, data, nil)
}
