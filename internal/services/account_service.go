/**
 * @description
 * Account service: registration, authentication and email verification.
 * Registration creates the user, the cash account and the baseline portfolio
 * snapshot synchronously in one transaction — no signal-style side effects.
 *
 * @dependencies
 * - backend/internal/models
 * - gorm.io/gorm
 * - golang.org/x/crypto/bcrypt
 * - github.com/golang-jwt/jwt/v5 (email verification tokens)
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/papertrade-project/backend/internal/config"
	"github.com/papertrade-project/backend/internal/logger"
	"github.com/papertrade-project/backend/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	minPasswordLength = 8

	verifyTokenPurpose = "email_verify"
	verifyTokenTTL     = 48 * time.Hour
)

// Mailer sends account emails. Implemented by internal/mailer.
type Mailer interface {
	SendVerificationEmail(toEmail, username, token string) error
}

type AccountService struct {
	DB   *gorm.DB
	Cfg  *config.Config
	Mail Mailer
}

func NewAccountService(db *gorm.DB, cfg *config.Config, mail Mailer) *AccountService {
	return &AccountService{
		DB:   db,
		Cfg:  cfg,
		Mail: mail,
	}
}

// Register creates a user with a funded account and its baseline snapshot in
// one transaction, then sends the verification email best-effort.
func (s *AccountService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if username == "" || email == "" {
		return nil, fmt.Errorf("username and email are required")
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUsernameTaken
		}
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrEmailTaken
		}

		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		account := models.Account{
			UserID: user.ID,
			Cash:   models.StartingCash,
		}
		if err := tx.Create(&account).Error; err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}

		// Baseline the valuation series at signup
		seed := models.PortfolioSnapshot{
			AccountID:  account.ID,
			Date:       models.DateOnly(time.Now()),
			TotalValue: models.StartingCash,
		}
		if err := tx.Create(&seed).Error; err != nil {
			return fmt.Errorf("failed to create baseline snapshot: %w", err)
		}

		user.Account = &account
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			// Lost a race with a concurrent signup past the pre-checks.
			// Re-check to report which field actually collided.
			var count int64
			_ = s.DB.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error
			if count > 0 {
				return nil, ErrEmailTaken
			}
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	s.sendVerification(&user)

	return &user, nil
}

// Authenticate checks username/password and returns the user
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).
		Preload("Account").
		Where("username = ?", strings.TrimSpace(username)).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}

// VerifyEmail validates a verification token and marks the user verified
func (s *AccountService) VerifyEmail(ctx context.Context, tokenString string) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.Cfg.Auth.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ErrInvalidToken
	}
	if purpose, _ := claims["purpose"].(string); purpose != verifyTokenPurpose {
		return ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return ErrInvalidToken
	}

	result := s.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("email_verified", true)
	if result.Error != nil {
		return fmt.Errorf("failed to verify email: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvalidToken
	}

	return nil
}

// AccountForUser resolves the cash account owned by a user
func (s *AccountService) AccountForUser(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	var account models.Account
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("no account for user %s", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &account, nil
}

// VerificationToken issues a signed email-verification token for a user
func (s *AccountService) VerificationToken(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":     user.ID.String(),
		"purpose": verifyTokenPurpose,
		"exp":     time.Now().Add(verifyTokenTTL).Unix(),
		"iat":     time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.Cfg.Auth.JWTSecret))
}

func (s *AccountService) sendVerification(user *models.User) {
	if s.Mail == nil {
		return
	}
	token, err := s.VerificationToken(user)
	if err != nil {
		logger.Error("Failed to issue verification token for %s: %v", user.Username, err)
		return
	}
	if err := s.Mail.SendVerificationEmail(user.Email, user.Username, token); err != nil {
		logger.Error("Failed to send verification email to %s: %v", user.Email, err)
	}
}
