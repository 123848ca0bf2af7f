package auth

const (
	ResourceTaskActivity   = "TASK_ACTIVITY"
	ResourceExpense        = "EXPENSE"
	ResourceUserManagement = "USER_MANAGEMENT"
	ResourceDropdown       = "DROPDOWN"
	ResourceReport         = "REPORT"

	ActionCreate  = "CREATE"
	ActionRead    = "READ"
	ActionReadAll = "READ_ALL"
	ActionUpdate  = "UPDATE"
	ActionDelete  = "DELETE"
	ActionApprove = "APPROVE"
)

const (
	RoleAdmin        = "ADMIN"
	RoleUser         = "USER"
	RoleGuest        = "GUEST"
	RoleExpenseAdmin = "EXPENSE_ADMIN"
)

// BuiltinPermissions is the permission catalog seeded by the initial migration.
// Roles are data: grants live in role_permissions, not here.
var BuiltinPermissions = []Permission{
	{Resource: ResourceTaskActivity, Action: ActionCreate, Description: "Create own task activities"},
	{Resource: ResourceTaskActivity, Action: ActionRead, Description: "Read own task activities"},
	{Resource: ResourceTaskActivity, Action: ActionReadAll, Description: "Read every user's task activities"},
	{Resource: ResourceTaskActivity, Action: ActionUpdate, Description: "Update task activities"},
	{Resource: ResourceTaskActivity, Action: ActionDelete, Description: "Delete task activities"},
	{Resource: ResourceExpense, Action: ActionCreate, Description: "Create own expenses"},
	{Resource: ResourceExpense, Action: ActionRead, Description: "Read own expenses"},
	{Resource: ResourceExpense, Action: ActionReadAll, Description: "Read every user's expenses"},
	{Resource: ResourceExpense, Action: ActionUpdate, Description: "Update expenses"},
	{Resource: ResourceExpense, Action: ActionDelete, Description: "Delete expenses"},
	{Resource: ResourceExpense, Action: ActionApprove, Description: "Approve or reject expenses"},
	{Resource: ResourceUserManagement, Action: ActionCreate, Description: "Create users"},
	{Resource: ResourceUserManagement, Action: ActionRead, Description: "View users"},
	{Resource: ResourceUserManagement, Action: ActionUpdate, Description: "Update users and revoke their tokens"},
	{Resource: ResourceUserManagement, Action: ActionDelete, Description: "Delete users"},
	{Resource: ResourceDropdown, Action: ActionRead, Description: "Read dropdown values"},
	{Resource: ResourceDropdown, Action: ActionUpdate, Description: "Manage dropdown values"},
	{Resource: ResourceReport, Action: ActionRead, Description: "Run reports"},
}
