package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"gorm.io/gorm"
)

type SyncRun struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	Provider      string     `gorm:"index;size:50;not null" json:"provider"`
	Status        string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy   string     `gorm:"size:20" json:"triggered_by"`
	CorrelationId string     `gorm:"size:64" json:"correlation_id"`
	RecordsSynced int        `json:"records_synced"`
	ErrorCount    int        `json:"error_count"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	DurationMs    int64      `json:"duration_ms"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type SyncRecordError struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	SyncRunId   uint      `gorm:"index;not null" json:"sync_run_id"`
	Provider    string    `gorm:"size:50" json:"provider"`
	EntityType  string    `gorm:"size:50" json:"entity_type"`
	ExternalId  string    `gorm:"size:128" json:"external_id"`
	Message     string    `gorm:"type:text" json:"message"`
	PayloadJSON []byte    `gorm:"type:json" json:"payload"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// EntityMapping remembers which remote row corresponds to one of our records,
// keyed by (provider, entity_type, internal key). The push workers use it to
// skip the lookup-by-formula round trip on repeat upserts.
type EntityMapping struct {
	ID         uint       `gorm:"primary_key" json:"id"`
	Provider   string     `gorm:"uniqueIndex:idx_entity_mapping,priority:1;size:50;not null" json:"provider"`
	EntityType string     `gorm:"uniqueIndex:idx_entity_mapping,priority:2;size:50;not null" json:"entity_type"`
	InternalId string     `gorm:"uniqueIndex:idx_entity_mapping,priority:3;size:128;not null" json:"internal_id"`
	RemoteId   string     `gorm:"size:128;not null" json:"remote_id"`
	LastSeenAt *time.Time `json:"last_seen_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func StartSyncRun(ctx context.Context, provider string, triggeredBy string) (*SyncRun, error) {
	db := config.GetDB()
	now := time.Now()
	run := SyncRun{
		Provider:      provider,
		Status:        SyncRunStatusRunning,
		TriggeredBy:   triggeredBy,
		CorrelationId: correlationIdFromContextOrNew(ctx),
		StartedAt:     &now,
	}
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (run *SyncRun) Finish(ctx context.Context, synced int, errCount int) error {
	db := config.GetDB()
	now := time.Now()
	status := SyncRunStatusSuccess
	if errCount > 0 && synced > 0 {
		status = SyncRunStatusPartial
	} else if errCount > 0 {
		status = SyncRunStatusFailed
	}
	run.Status = status
	run.RecordsSynced = synced
	run.ErrorCount = errCount
	run.FinishedAt = &now
	if run.StartedAt != nil {
		run.DurationMs = now.Sub(*run.StartedAt).Milliseconds()
	}
	return db.WithContext(ctx).Model(&SyncRun{}).Where("id = ?", run.ID).Updates(map[string]interface{}{
		"status":         run.Status,
		"records_synced": run.RecordsSynced,
		"error_count":    run.ErrorCount,
		"finished_at":    run.FinishedAt,
		"duration_ms":    run.DurationMs,
	}).Error
}

func RecordSyncError(ctx context.Context, runId uint, provider string, entityType string, externalId string, payload []byte, cause error) error {
	db := config.GetDB()
	rec := SyncRecordError{
		SyncRunId:   runId,
		Provider:    provider,
		EntityType:  entityType,
		ExternalId:  externalId,
		Message:     cause.Error(),
		PayloadJSON: payload,
	}
	return db.WithContext(ctx).Create(&rec).Error
}

func GetSyncRuns(ctx context.Context, provider string, limit int) ([]SyncRun, error) {
	db := config.GetDB()
	if limit <= 0 {
		limit = 20
	}
	var runs []SyncRun
	q := db.WithContext(ctx).Order("id DESC").Limit(limit)
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	err := q.Find(&runs).Error
	return runs, err
}

func FindEntityMapping(ctx context.Context, provider string, entityType string, internalId string) (*EntityMapping, error) {
	db := config.GetDB()
	var mapping EntityMapping
	err := db.WithContext(ctx).
		Where("provider = ? AND entity_type = ? AND internal_id = ?", provider, entityType, internalId).
		First(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mapping, nil
}

func SaveEntityMapping(ctx context.Context, provider string, entityType string, internalId string, remoteId string) error {
	db := config.GetDB()
	now := time.Now()

	existing, err := FindEntityMapping(ctx, provider, entityType, internalId)
	if err != nil {
		return err
	}
	if existing != nil {
		return db.WithContext(ctx).Model(&EntityMapping{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
			"remote_id":    remoteId,
			"last_seen_at": &now,
		}).Error
	}
	mapping := EntityMapping{
		Provider:   provider,
		EntityType: entityType,
		InternalId: internalId,
		RemoteId:   remoteId,
		LastSeenAt: &now,
	}
	return db.WithContext(ctx).Create(&mapping).Error
}
