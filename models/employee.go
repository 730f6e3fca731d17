package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"gorm.io/gorm"
)

type Employee struct {
	ID                int            `gorm:"primary_key" json:"id"`
	ExternalId        string         `gorm:"size:64;uniqueIndex;not null" json:"external_id"`
	FirstName         string         `gorm:"size:100" json:"first_name"`
	LastName          string         `gorm:"size:100" json:"last_name"`
	FullName          string         `gorm:"size:200;index" json:"full_name"`
	Email             string         `gorm:"size:100;index" json:"email"`
	Title             string         `gorm:"size:150" json:"title"`
	EmployeeType      string         `gorm:"size:50" json:"employee_type"`
	Status            EmployeeStatus `gorm:"size:20;index" json:"status"`
	DepartmentName    string         `gorm:"size:150" json:"department_name"`
	DepartmentId      *int           `gorm:"index" json:"department_id"`
	PositionStartDate *time.Time     `json:"position_start_date"`
	TerminationDate   *time.Time     `json:"termination_date"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewEmployee struct {
	ExternalId        string
	FirstName         string
	LastName          string
	Email             string
	Title             string
	EmployeeType      string
	Status            EmployeeStatus
	DepartmentName    string
	PositionStartDate *time.Time
	TerminationDate   *time.Time
}

func (input NewEmployee) Validate() error {
	if strings.TrimSpace(input.ExternalId) == "" {
		return errors.New("employee external id is required")
	}
	if strings.TrimSpace(input.FirstName) == "" && strings.TrimSpace(input.LastName) == "" {
		return errors.New("employee name is required")
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return errors.New("employee email is invalid")
	}
	return nil
}

func UpsertEmployee(ctx context.Context, input NewEmployee) (created bool, err error) {
	if err := input.Validate(); err != nil {
		return false, err
	}
	db := config.GetDB()

	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)
	fullName := strings.TrimSpace(firstName + " " + lastName)
	fields := map[string]interface{}{
		"first_name":          firstName,
		"last_name":           lastName,
		"full_name":           fullName,
		"email":               strings.TrimSpace(input.Email),
		"title":               input.Title,
		"employee_type":       input.EmployeeType,
		"status":              input.Status,
		"department_name":     input.DepartmentName,
		"position_start_date": input.PositionStartDate,
		"termination_date":    input.TerminationDate,
	}

	var existing Employee
	err = db.WithContext(ctx).Where("external_id = ?", input.ExternalId).First(&existing).Error
	if err == nil {
		return false, db.WithContext(ctx).Model(&Employee{}).
			Where("external_id = ?", input.ExternalId).
			Updates(fields).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	employee := Employee{
		ExternalId:        input.ExternalId,
		FirstName:         firstName,
		LastName:          lastName,
		FullName:          fullName,
		Email:             strings.TrimSpace(input.Email),
		Title:             input.Title,
		EmployeeType:      input.EmployeeType,
		Status:            input.Status,
		DepartmentName:    input.DepartmentName,
		PositionStartDate: input.PositionStartDate,
		TerminationDate:   input.TerminationDate,
	}
	if err := db.WithContext(ctx).Create(&employee).Error; err != nil {
		return false, err
	}
	return true, nil
}

// GetActiveEmployees returns active staff ordered by last name for the
// headcount linking pass.
func GetActiveEmployees(ctx context.Context) ([]Employee, error) {
	db := config.GetDB()
	var employees []Employee
	err := db.WithContext(ctx).
		Where("status = ?", EmployeeStatusActive).
		Order("last_name ASC, first_name ASC").
		Find(&employees).Error
	return employees, err
}

func SetEmployeeDepartment(ctx context.Context, employeeId int, departmentId *int) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&Employee{}).
		Where("id = ?", employeeId).
		Update("department_id", departmentId).Error
}
