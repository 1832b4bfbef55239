package models

// System setting keys stored in system_settings
const (
	SettingMaxSitesPerUser    = "max_sites_per_user"
	SettingMaintenanceMode    = "maintenance_mode"
	SettingMaintenanceMessage = "maintenance_message"
)

const DefaultMaxSitesPerUser = 10

// SystemSettings 管理员可调整的全局设置
type SystemSettings struct {
	MaxSitesPerUser    int    `json:"max_sites_per_user" validate:"min=0,max=10000"`
	MaintenanceMode    bool   `json:"maintenance_mode"`
	MaintenanceMessage string `json:"maintenance_message" validate:"max=500"`
}

// DefaultSystemSettings 未配置时的默认值
func DefaultSystemSettings() SystemSettings {
	return SystemSettings{
		MaxSitesPerUser:    DefaultMaxSitesPerUser,
		MaintenanceMessage: "We are performing scheduled maintenance. Please check back soon.",
	}
}

// UpdateSettingsRequest 部分更新
type UpdateSettingsRequest struct {
	MaxSitesPerUser    *int    `json:"max_sites_per_user" validate:"omitempty,min=0,max=10000"`
	MaintenanceMode    *bool   `json:"maintenance_mode"`
	MaintenanceMessage *string `json:"maintenance_message" validate:"omitempty,max=500"`
}
