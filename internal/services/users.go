package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/localnerve/librarydb/internal/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	maxUsername       = 40
	maxPersonName     = 20
	minPasswordLength = 6
)

// Users manages accounts and verifies credentials
type Users struct {
	DB  *gorm.DB
	Log *zap.Logger
	// Cost is the bcrypt cost; tests lower it
	Cost int
}

// NewUsers creates the account service
func NewUsers(db *gorm.DB, log *zap.Logger) *Users {
	return &Users{DB: db, Log: log, Cost: bcrypt.DefaultCost}
}

// Registration is a new account
type Registration struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (r *Registration) validate() error {
	var err error
	if r.Username, err = requireText("username", r.Username, maxUsername); err != nil {
		return err
	}
	if strings.ContainsFunc(r.Username, isSpace) {
		return invalid("username cannot contain spaces")
	}
	if r.FirstName, err = requireText("first name", r.FirstName, maxPersonName); err != nil {
		return err
	}
	if r.LastName, err = optionalText("last name", r.LastName, maxPersonName); err != nil {
		return err
	}
	if utf8.RuneCountInString(r.Password) < minPasswordLength {
		return invalid("password must be at least %d characters", minPasswordLength)
	}
	return nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// Register creates a general account
func (u *Users) Register(ctx context.Context, reg Registration) (*models.User, error) {
	return u.create(ctx, reg, models.RoleGeneral)
}

// CreateLibrarian creates a librarian account. It is reserved for administrative tooling.
func (u *Users) CreateLibrarian(ctx context.Context, reg Registration) (*models.User, error) {
	return u.create(ctx, reg, models.RoleLibrarian)
}

func (u *Users) create(ctx context.Context, reg Registration, role models.Role) (*models.User, error) {
	if err := reg.validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), u.Cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Username:     reg.Username,
		PasswordHash: string(hash),
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		Role:         role,
	}

	err = u.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("username = ?", user.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: username %s is already taken", ErrConflict, user.Username)
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return nil, duplicate(err, "username %s is already taken", user.Username)
	}

	u.Log.Info("User registered",
		zap.Uint("user_id", user.ID),
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)),
	)
	return &user, nil
}

// Authenticate verifies credentials. When role is not empty the account must hold it.
func (u *Users) Authenticate(ctx context.Context, username, password string, role models.Role) (*models.User, error) {
	var user models.User
	err := quiet(u.DB.WithContext(ctx)).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: incorrect username or password", ErrUnauthenticated)
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			u.Log.Warn("Stored password is not usable", zap.Uint("user_id", user.ID), zap.Error(err))
		}
		return nil, fmt.Errorf("%w: incorrect username or password", ErrUnauthenticated)
	}

	if role != "" && user.Role != role {
		return nil, fmt.Errorf("%w: only %s users can sign in here", ErrForbidden, role)
	}
	return &user, nil
}

// Get loads an account by id
func (u *Users) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := quiet(u.DB.WithContext(ctx)).First(&user, id).Error; err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: user %d does not exist", ErrNotFound, id)
		}
		return nil, err
	}
	return &user, nil
}

// ByUsername loads an account by username
func (u *Users) ByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := quiet(u.DB.WithContext(ctx)).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: user %s does not exist", ErrNotFound, username)
		}
		return nil, err
	}
	return &user, nil
}

// Provision returns the local account of an externally authenticated user,
// creating a general account on first sight. Such accounts cannot sign in with a password.
func (u *Users) Provision(ctx context.Context, ext *ExternalUser) (*models.User, error) {
	username := ext.Email
	if utf8.RuneCountInString(username) > maxUsername {
		return nil, invalid("email %s is too long for a username", username)
	}

	firstName := username
	if at := strings.IndexByte(firstName, '@'); at > 0 {
		firstName = firstName[:at]
	}
	if ext.GivenName != nil && strings.TrimSpace(*ext.GivenName) != "" {
		firstName = strings.TrimSpace(*ext.GivenName)
	}
	if utf8.RuneCountInString(firstName) > maxPersonName {
		firstName = string([]rune(firstName)[:maxPersonName])
	}

	user := models.User{
		Username: username,
		// Not a bcrypt hash, so no password ever matches
		PasswordHash: "external:" + ext.ID,
		FirstName:    firstName,
		Role:         models.RoleGeneral,
	}
	err := u.DB.WithContext(ctx).
		Where(models.User{Username: username}).
		FirstOrCreate(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}
