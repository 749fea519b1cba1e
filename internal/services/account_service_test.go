package services

import (
	"context"
	"testing"

	"github.com/papertrade-project/backend/internal/config"
	"github.com/papertrade-project/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type captureMailer struct {
	toEmail  string
	username string
	token    string
	calls    int
}

func (m *captureMailer) SendVerificationEmail(toEmail, username, token string) error {
	m.toEmail = toEmail
	m.username = username
	m.token = token
	m.calls++
	return nil
}

func testAuthConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{JWTSecret: "test-secret"},
	}
}

// raceRegistrations runs two Register calls concurrently and returns the
// errors of the ones that failed
func raceRegistrations(service *AccountService, signups [2][3]string) []error {
	start := make(chan struct{})
	results := make(chan error, len(signups))
	for _, signup := range signups {
		go func(username, email, password string) {
			<-start
			_, err := service.Register(context.Background(), username, email, password)
			results <- err
		}(signup[0], signup[1], signup[2])
	}
	close(start)

	var failures []error
	for range signups {
		if err := <-results; err != nil {
			failures = append(failures, err)
		}
	}
	return failures
}

func TestAccountService(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	ctx := context.Background()

	t.Run("Register funds the account and baselines history", func(t *testing.T) {
		testDB.TruncateAll(t)

		mail := &captureMailer{}
		service := NewAccountService(testDB.DB, testAuthConfig(), mail)

		user, err := service.Register(ctx, "alice", "Alice@Example.com", "correct-horse")
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
		assert.Equal(t, "alice@example.com", user.Email, "email must be normalized to lowercase")
		assert.False(t, user.EmailVerified)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct-horse")))

		require.NotNil(t, user.Account)
		assert.True(t, user.Account.Cash.Equal(models.StartingCash))

		var snapshots []models.PortfolioSnapshot
		require.NoError(t, testDB.Where("account_id = ?", user.Account.ID).Find(&snapshots).Error)
		require.Len(t, snapshots, 1, "signup must seed exactly one baseline snapshot")
		assert.True(t, snapshots[0].TotalValue.Equal(models.StartingCash))

		assert.Equal(t, 1, mail.calls)
		assert.Equal(t, "alice@example.com", mail.toEmail)
		assert.NotEmpty(t, mail.token)
	})

	t.Run("Register rejects duplicates", func(t *testing.T) {
		testDB.TruncateAll(t)

		service := NewAccountService(testDB.DB, testAuthConfig(), nil)

		_, err := service.Register(ctx, "bob", "bob@example.com", "password123")
		require.NoError(t, err)

		_, err = service.Register(ctx, "bob", "other@example.com", "password123")
		assert.ErrorIs(t, err, ErrUsernameTaken)

		_, err = service.Register(ctx, "bobby", "bob@example.com", "password123")
		assert.ErrorIs(t, err, ErrEmailTaken)

		// A failed registration must not leave partial rows behind
		var users int64
		require.NoError(t, testDB.Model(&models.User{}).Count(&users).Error)
		assert.Equal(t, int64(1), users)
	})

	t.Run("Register validates input", func(t *testing.T) {
		testDB.TruncateAll(t)

		service := NewAccountService(testDB.DB, testAuthConfig(), nil)

		_, err := service.Register(ctx, "carol", "carol@example.com", "short")
		assert.Error(t, err)

		_, err = service.Register(ctx, "", "carol@example.com", "password123")
		assert.Error(t, err)
	})

	t.Run("Authenticate", func(t *testing.T) {
		testDB.TruncateAll(t)

		service := NewAccountService(testDB.DB, testAuthConfig(), nil)

		registered, err := service.Register(ctx, "dave", "dave@example.com", "password123")
		require.NoError(t, err)

		user, err := service.Authenticate(ctx, "dave", "password123")
		require.NoError(t, err)
		assert.Equal(t, registered.ID, user.ID)
		require.NotNil(t, user.Account, "authenticate must preload the account")

		_, err = service.Authenticate(ctx, "dave", "wrong-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = service.Authenticate(ctx, "nobody", "password123")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("VerifyEmail round trip", func(t *testing.T) {
		testDB.TruncateAll(t)

		service := NewAccountService(testDB.DB, testAuthConfig(), nil)

		user, err := service.Register(ctx, "erin", "erin@example.com", "password123")
		require.NoError(t, err)

		token, err := service.VerificationToken(user)
		require.NoError(t, err)

		require.NoError(t, service.VerifyEmail(ctx, token))

		var fresh models.User
		require.NoError(t, testDB.First(&fresh, "id = ?", user.ID).Error)
		assert.True(t, fresh.EmailVerified)

		assert.ErrorIs(t, service.VerifyEmail(ctx, "garbage"), ErrInvalidToken)
	})

	t.Run("Concurrent registration reports the colliding field", func(t *testing.T) {
		service := NewAccountService(testDB.DB, testAuthConfig(), nil)

		// Same email, distinct usernames: racing past the pre-checks must
		// still surface the email conflict, not the username one
		testDB.TruncateAll(t)
		errs := raceRegistrations(service,
			[2][3]string{
				{"grace1", "grace@example.com", "password123"},
				{"grace2", "grace@example.com", "password123"},
			})
		require.Len(t, errs, 1, "exactly one signup must be rejected")
		assert.ErrorIs(t, errs[0], ErrEmailTaken)

		var users int64
		require.NoError(t, testDB.Model(&models.User{}).Count(&users).Error)
		assert.Equal(t, int64(1), users)

		// Same username, distinct emails
		testDB.TruncateAll(t)
		errs = raceRegistrations(service,
			[2][3]string{
				{"heidi", "heidi1@example.com", "password123"},
				{"heidi", "heidi2@example.com", "password123"},
			})
		require.Len(t, errs, 1, "exactly one signup must be rejected")
		assert.ErrorIs(t, errs[0], ErrUsernameTaken)
	})

	t.Run("AccountForUser", func(t *testing.T) {
		testDB.TruncateAll(t)

		service := NewAccountService(testDB.DB, testAuthConfig(), nil)

		user, err := service.Register(ctx, "frank", "frank@example.com", "password123")
		require.NoError(t, err)

		account, err := service.AccountForUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.Account.ID, account.ID)
	})
}
