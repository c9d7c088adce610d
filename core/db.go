package core

import "strings"

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// CleanOrdering keeps the orderings whose field is a key of allowed and maps it to its column.
// Unknown fields are dropped so that client input never reaches an ORDER BY clause verbatim.
func CleanOrdering(orderings []DBOrdering, allowed map[string]string) []DBOrdering {
	cleaned := make([]DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		if col, ok := allowed[strings.ToLower(ord.Field)]; ok {
			cleaned = append(cleaned, DBOrdering{Field: col, Ascending: ord.Ascending})
		}
	}
	return cleaned
}

// OrderByClause joins orderings into an ORDER BY body, falling back to def.
func OrderByClause(orderings []DBOrdering, def string) string {
	if len(orderings) == 0 {
		return def
	}
	parts := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		parts = append(parts, ord.String())
	}
	return strings.Join(parts, ", ")
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// PageParams is the page-number pagination contract shared by list endpoints.
type PageParams struct {
	Page  int `query:"page" json:"page"`
	Limit int `query:"limit" json:"limit"`
}

// Normalize clamps the params to sane values: page >= 1 and 1 <= limit <= MaxPageLimit.
func (p PageParams) Normalize() PageParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

func (p PageParams) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.Limit
}

type PageMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"hasNextPage"`
}

// NewPageMeta builds the meta of the page described by p, given the total number of items.
func NewPageMeta(p PageParams, total int) PageMeta {
	p = p.Normalize()
	return PageMeta{
		Page:    p.Page,
		Limit:   p.Limit,
		Total:   total,
		HasNext: p.Page*p.Limit < total,
	}
}
