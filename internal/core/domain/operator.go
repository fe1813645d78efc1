package domain

type OperatorID string

type OperatorRole string

const (
	RoleViewer OperatorRole = "viewer"
	RoleEditor OperatorRole = "editor"
)
