package models

// UserRole 用户角色枚举
type UserRole string

const (
	UserRoleSUPER_ADMIN UserRole = "SUPER_ADMIN" // 超级管理员
	UserRoleTEAM_LEAD   UserRole = "TEAM_LEAD"   // 招聘组长
	UserRoleRECRUITER   UserRole = "RECRUITER"   // 招聘顾问
	UserRoleVIEWER      UserRole = "VIEWER"      // 只读账号
)
