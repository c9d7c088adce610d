package client

import (
	"net/url"
	"sort"
	"strconv"

	"github.com/trezcool/attendly/core"
)

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func setDate(q url.Values, name string, d core.Date) {
	if !d.IsZero() {
		q.Set(name, d.String())
	}
}

func setPeriod(q url.Values, period core.DateRange) url.Values {
	setDate(q, "from", period.From)
	setDate(q, "to", period.To)
	return q
}

func setPage(q url.Values, page core.PageParams) {
	if page.Page > 0 {
		q.Set("page", strconv.Itoa(page.Page))
	}
	if page.Limit > 0 {
		q.Set("limit", strconv.Itoa(page.Limit))
	}
}

func setIf(q url.Values, name, val string) {
	if val != "" {
		q.Set(name, val)
	}
}
