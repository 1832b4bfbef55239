package models

import "time"

// ClubRole 社团成员角色
type ClubRole string

const (
	ClubRoleLeader   ClubRole = "leader"
	ClubRoleCoLeader ClubRole = "co_leader"
	ClubRoleMember   ClubRole = "member"
)

// IsLeader leaders and co-leaders manage the club
func (r ClubRole) IsLeader() bool {
	return r == ClubRoleLeader || r == ClubRoleCoLeader
}

// ClubMembership relates users to clubs with a role
type ClubMembership struct {
	ClubID    string    `json:"club_id" db:"club_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Role      ClubRole  `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
