package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     *string   `gorm:"size:100;unique" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"password"`
	IsActive  *bool     `gorm:"not null" json:"is_active"`
	Role      UserRole  `gorm:"type:enum('A','O');default:O" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string   `json:"username" binding:"required"`
	Name     string   `json:"name" binding:"required"`
	Email    string   `json:"email"`
	Password string   `json:"password" binding:"required"`
	IsActive *bool    `json:"is_active" binding:"required"`
	Role     UserRole `json:"role" binding:"required"`
}

type LoginInfo struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func (result *User) PrepareGive() {
	result.Password = ""
}

func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {
	db := config.GetDB()
	var result LoginInfo

	user := User{}
	err := db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Take(&user).Error
	if err != nil {
		return &result, errors.New("invalid username or password")
	}

	err = utils.ComparePassword(user.Password, password)
	if err != nil && errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return &result, errors.New("invalid username or password")
	}
	if err != nil {
		return &result, err
	}

	if user.IsActive == nil || !*user.IsActive {
		return &result, errors.New("account is disabled")
	}

	token, err := utils.JwtGenerate(user.ID, string(user.Role))
	if err != nil {
		return &result, err
	}

	result.Token = token
	result.Name = user.Name
	result.Role = user.Role.DisplayName()
	return &result, nil
}

func CreateUser(ctx context.Context, input NewUser) (*User, error) {
	db := config.GetDB()

	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, errors.New("username is required")
	}
	var count int64
	if err := db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("username already exists")
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	var email *string
	if strings.TrimSpace(input.Email) != "" {
		if !utils.IsValidEmail(input.Email) {
			return nil, errors.New("email is invalid")
		}
		e := strings.TrimSpace(input.Email)
		email = &e
	}

	user := User{
		Username: username,
		Name:     input.Name,
		Email:    email,
		Password: string(hashed),
		IsActive: input.IsActive,
		Role:     input.Role,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		// The count above does not cover concurrent creates; the unique
		// index is the backstop.
		if isDuplicateKeyErr(err) {
			return nil, errors.New("username or email already exists")
		}
		return nil, err
	}
	user.PrepareGive()
	return &user, nil
}

func GetUserById(ctx context.Context, id int) (*User, error) {
	db := config.GetDB()
	var user User
	err := db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	user.PrepareGive()
	return &user, nil
}
