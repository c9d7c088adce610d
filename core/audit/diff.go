package audit

import (
	"encoding/json"
	"reflect"

	"github.com/pkg/errors"
)

var ignoredFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"last_login": true,
}

// fields flattens the top-level JSON fields of v; a nil v has no fields.
func fields(v interface{}) (map[string]interface{}, error) {
	if v == nil {
		return map[string]interface{}{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling audited value")
	}
	m := make(map[string]interface{})
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "audited value is not a JSON object")
	}
	return m, nil
}

// ComputeDiff lists the JSON fields whose value changed between before and after.
// Either side may be nil (creation or deletion).
func ComputeDiff(before, after interface{}) (Diff, error) {
	bf, err := fields(before)
	if err != nil {
		return nil, err
	}
	af, err := fields(after)
	if err != nil {
		return nil, err
	}

	diff := make(Diff)
	for k, bv := range bf {
		if ignoredFields[k] {
			continue
		}
		if av, ok := af[k]; !ok || !reflect.DeepEqual(bv, av) {
			diff[k] = Change{From: bv, To: af[k]}
		}
	}
	for k, av := range af {
		if ignoredFields[k] {
			continue
		}
		if _, ok := bf[k]; !ok {
			diff[k] = Change{From: nil, To: av}
		}
	}
	return diff, nil
}
