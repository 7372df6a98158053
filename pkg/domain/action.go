package domain

// Action is the closed set of auditable operations.
type Action string

const (
	ActionLogin         Action = "login"
	ActionLogout        Action = "logout"
	ActionViewRecord    Action = "view_record"
	ActionCreateRecord  Action = "create_record"
	ActionUpdateRecord  Action = "update_record"
	ActionDeleteRecord  Action = "delete_record"
	ActionSearchPatient Action = "search_patient"
	ActionExportData    Action = "export_data"
	ActionSystemAccess  Action = "system_access"
)

var actions = map[Action]struct{}{
	ActionLogin:         {},
	ActionLogout:        {},
	ActionViewRecord:    {},
	ActionCreateRecord:  {},
	ActionUpdateRecord:  {},
	ActionDeleteRecord:  {},
	ActionSearchPatient: {},
	ActionExportData:    {},
	ActionSystemAccess:  {},
}

// ParseAction reports whether s names a known action.
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	_, ok := actions[a]
	return a, ok
}

func (a Action) Valid() bool {
	_, ok := actions[a]
	return ok
}

func (a Action) String() string { return string(a) }
