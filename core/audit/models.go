package audit

import (
	"time"

	"github.com/trezcool/attendly/core"
)

type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Change is the before & after value of one field.
type Change struct {
	From interface{} `json:"from"`
	To   interface{} `json:"to"`
}

type Diff map[string]Change

type Entry struct {
	ID         string    `json:"id"`
	SchoolID   string    `json:"school_id"`
	ActorID    string    `json:"actor_id"`
	ActorName  string    `json:"actor_name"`
	ActorRole  string    `json:"actor_role"`
	Action     Action    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Diff       Diff      `json:"diff"`
	CreatedAt  time.Time `json:"created_at"`
}

type QueryFilter struct {
	Action     Action `query:"action"`
	EntityType string `query:"entity_type"`
	ActorID    string `query:"actor_id"`
}

func (qf QueryFilter) Matches(e Entry) bool {
	return (qf.Action == "" || e.Action == qf.Action) &&
		(qf.EntityType == "" || e.EntityType == qf.EntityType) &&
		(qf.ActorID == "" || e.ActorID == qf.ActorID)
}

// Page is one page of the audit log, newest entries first.
type Page struct {
	Items []Entry       `json:"items"`
	Meta  core.PageMeta `json:"meta"`
}
