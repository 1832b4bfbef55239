package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"spaces-backend/pkg/apperr"
	"spaces-backend/pkg/auth"
	"spaces-backend/pkg/database"
	"spaces-backend/pkg/models"
)

// SettingsStore 基于 system_settings 键值表的类型化设置
type SettingsStore struct {
	db       database.DatabaseInterface
	gate     *auth.Gate
	activity *ActivityLog
}

// NewSettingsStore 创建设置存储
func NewSettingsStore(db database.DatabaseInterface, gate *auth.Gate, activity *ActivityLog) *SettingsStore {
	return &SettingsStore{db: db, gate: gate, activity: activity}
}

// Get 读取设置，缺失或无法解析的键取默认值
func (s *SettingsStore) Get(ctx context.Context) (models.SystemSettings, error) {
	return loadSettings(ctx, s.db)
}

func loadSettings(ctx context.Context, db database.DatabaseInterface) (models.SystemSettings, error) {
	settings := models.DefaultSystemSettings()
	raw, err := db.GetSettings(ctx)
	if err != nil {
		return settings, apperr.Wrap(apperr.DatabaseUnavailable, "failed to load system settings", err)
	}
	if v, ok := raw[models.SettingMaxSitesPerUser]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			settings.MaxSitesPerUser = n
		}
	}
	if v, ok := raw[models.SettingMaintenanceMode]; ok {
		settings.MaintenanceMode = parseBool(v)
	}
	if v, ok := raw[models.SettingMaintenanceMessage]; ok && strings.TrimSpace(v) != "" {
		settings.MaintenanceMessage = v
	}
	return settings, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Update 管理员部分更新设置
func (s *SettingsStore) Update(ctx context.Context, actor auth.Principal, req models.UpdateSettingsRequest) (models.SystemSettings, error) {
	if err := s.gate.Authorize(ctx, actor, auth.AdminOverride()); err != nil {
		return models.SystemSettings{}, err
	}
	if req.MaxSitesPerUser != nil && *req.MaxSitesPerUser < 0 {
		return models.SystemSettings{}, apperr.New(apperr.InvalidInput, "max_sites_per_user must not be negative")
	}

	var changed []string
	err := s.db.InTx(ctx, func(tx database.DatabaseInterface) error {
		if req.MaxSitesPerUser != nil {
			if err := tx.PutSetting(ctx, models.SettingMaxSitesPerUser, strconv.Itoa(*req.MaxSitesPerUser)); err != nil {
				return err
			}
			changed = append(changed, models.SettingMaxSitesPerUser)
		}
		if req.MaintenanceMode != nil {
			if err := tx.PutSetting(ctx, models.SettingMaintenanceMode, strconv.FormatBool(*req.MaintenanceMode)); err != nil {
				return err
			}
			changed = append(changed, models.SettingMaintenanceMode)
		}
		if req.MaintenanceMessage != nil {
			if err := tx.PutSetting(ctx, models.SettingMaintenanceMessage, *req.MaintenanceMessage); err != nil {
				return err
			}
			changed = append(changed, models.SettingMaintenanceMessage)
		}
		if len(changed) == 0 {
			return nil
		}
		return s.activity.Append(ctx, tx, Entry{
			Type:     models.ActivitySettingsChanged,
			Template: fmt.Sprintf("{username} updated system settings: %s", strings.Join(changed, ", ")),
			Actor:    actor,
		})
	})
	if err != nil {
		return models.SystemSettings{}, apperr.Wrap(apperr.Internal, "failed to update settings", err)
	}
	return s.Get(ctx)
}
