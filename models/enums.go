package models

type UserRole string

const (
	UserRoleAdmin    UserRole = "A"
	UserRoleOperator UserRole = "O"
)

func (r UserRole) DisplayName() string {
	switch r {
	case UserRoleAdmin:
		return "Admin"
	case UserRoleOperator:
		return "Operator"
	}
	return string(r)
}

type EmployeeStatus string

const (
	EmployeeStatusActive     EmployeeStatus = "Active"
	EmployeeStatusTerminated EmployeeStatus = "Terminated"
	EmployeeStatusLeave      EmployeeStatus = "Leave"
)

const (
	SyncProviderFreshservice = "freshservice"
	SyncProviderAirtable     = "airtable"
	SyncProviderAirtablePush = "airtable_push"
)

const (
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredSystem = "system"
)
