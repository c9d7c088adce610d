package dbadmin

type Action string

const (
	ActionClear  Action = "clear"
	ActionDrop   Action = "drop"
	ActionDropDB Action = "dropdb"
)

// Confirmation phrases typed by the operator; dropping the database asks for its name instead.
const (
	ConfirmClear = "CLEAR"
	ConfirmDrop  = "DROP"
)

// Collection is a table and its approximate row count.
type Collection struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

type Overview struct {
	Database    string       `json:"database"`
	Collections []Collection `json:"collections"`
}

type Request struct {
	Collections []string `json:"collections"`
	Confirm     string   `json:"confirm"`
}

// Result is the flat outcome of a destructive action.
type Result struct {
	Action      Action   `json:"action"`
	Collections []string `json:"collections"`
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
}
