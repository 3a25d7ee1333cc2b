package model

// Role определяет права сотрудника отделения.
type Role string

const (
	RoleBranchAdmin  Role = "branch_admin"
	RoleCheckinStaff Role = "checkin_staff"
	RoleWindowStaff  Role = "window_staff"
)

// StaffIdentity описывает сотрудника после успешного входа.
type StaffIdentity struct {
	BankID       string `json:"bankId"`
	BankName     string `json:"bankName"`
	BranchID     string `json:"branchId"`
	BranchName   string `json:"branchName"`
	Role         Role   `json:"role"`
	WindowNumber int    `json:"windowNumber,omitempty"`
	StaffName    string `json:"staffName,omitempty"`
}
