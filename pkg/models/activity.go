package models

import "time"

// Activity types
const (
	ActivitySignup          = "user_signup"
	ActivityLogin           = "user_login"
	ActivitySiteCreated     = "site_created"
	ActivitySiteRenamed     = "site_renamed"
	ActivitySiteUpdated     = "site_updated"
	ActivitySiteDeleted     = "site_deleted"
	ActivityPagesUpdated    = "pages_updated"
	ActivityPageDeleted     = "page_deleted"
	ActivityCodeExecuted    = "code_executed"
	ActivityHackatimeBeat   = "hackatime_heartbeat"
	ActivityHackatimeLinked = "hackatime_connected"
	ActivityUserSuspended   = "user_suspended"
	ActivityUserUnsuspended = "user_unsuspended"
	ActivityUserDeleted     = "user_deleted"
	ActivityImpersonation   = "admin_impersonation"
	ActivitySettingsChanged = "settings_updated"
)

// ActivityEvent is an append-only audit record
type ActivityEvent struct {
	ID           string    `json:"id" db:"id"`
	Type         string    `json:"type" db:"activity_type"`
	Message      string    `json:"message" db:"message"`
	Username     string    `json:"username,omitempty" db:"username"`
	UserID       *string   `json:"user_id,omitempty" db:"user_id"`
	SpaceID      *string   `json:"space_id,omitempty" db:"space_id"`
	ActorAdminID *string   `json:"actor_admin_id,omitempty" db:"actor_admin_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
