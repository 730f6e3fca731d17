package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"gorm.io/gorm"
)

type Department struct {
	ID         int       `gorm:"primary_key" json:"id"`
	ExternalId string    `gorm:"size:64;uniqueIndex" json:"external_id"`
	Name       string    `gorm:"size:150;not null;unique" json:"name"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func UpsertDepartment(ctx context.Context, externalId string, name string) (created bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, errors.New("department name is required")
	}
	db := config.GetDB()

	var existing Department
	err = db.WithContext(ctx).Where("name = ?", name).First(&existing).Error
	if err == nil {
		if externalId != "" && existing.ExternalId != externalId {
			return false, db.WithContext(ctx).Model(&Department{}).
				Where("id = ?", existing.ID).
				Update("external_id", externalId).Error
		}
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	department := Department{ExternalId: externalId, Name: name}
	if err := db.WithContext(ctx).Create(&department).Error; err != nil {
		return false, err
	}
	return true, nil
}

func GetDepartments(ctx context.Context) ([]Department, error) {
	db := config.GetDB()
	var departments []Department
	err := db.WithContext(ctx).Order("name ASC").Find(&departments).Error
	return departments, err
}

func GetDepartmentByName(ctx context.Context, name string) (*Department, error) {
	db := config.GetDB()
	var department Department
	err := db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).First(&department).Error
	if err != nil {
		return nil, err
	}
	return &department, nil
}
