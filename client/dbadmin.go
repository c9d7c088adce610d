package client

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core/dbadmin"
)

func (c *Client) Collections(ctx context.Context) (dbadmin.Overview, error) {
	var o dbadmin.Overview
	err := c.do(ctx, http.MethodGet, "/admin/db/collections", nil, nil, &o)
	return o, err
}

// destructive posts a destructive action. A failed action still answers with its Result,
// which is returned alongside the error.
func (c *Client) destructive(ctx context.Context, path string, req dbadmin.Request) (dbadmin.Result, error) {
	var res dbadmin.Result
	err := c.do(ctx, http.MethodPost, "/admin/db"+path, nil, req, &res)
	var rerr *RequestError
	if errors.As(err, &rerr) && rerr.Status == http.StatusInternalServerError {
		if jerr := json.Unmarshal([]byte(rerr.Message), &res); jerr == nil && res.Message != "" {
			rerr.Message = res.Message
		}
	}
	return res, err
}

func (c *Client) ClearDocuments(ctx context.Context, req dbadmin.Request) (dbadmin.Result, error) {
	return c.destructive(ctx, "/clear", req)
}

func (c *Client) DropCollections(ctx context.Context, req dbadmin.Request) (dbadmin.Result, error) {
	return c.destructive(ctx, "/drop", req)
}

func (c *Client) DropDatabase(ctx context.Context, confirm string) (dbadmin.Result, error) {
	return c.destructive(ctx, "/drop-database", dbadmin.Request{Confirm: confirm})
}
