package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/audit"
)

// AuditLogs fetches one page of the audit log, newest first.
func (c *Client) AuditLogs(ctx context.Context, filter audit.QueryFilter, page core.PageParams) (audit.Page, error) {
	q := url.Values{}
	setIf(q, "action", string(filter.Action))
	setIf(q, "entity_type", filter.EntityType)
	setIf(q, "actor_id", filter.ActorID)
	setPage(q, page)

	var p audit.Page
	err := c.do(ctx, http.MethodGet, "/audit-logs", q, nil, &p)
	return p, err
}
