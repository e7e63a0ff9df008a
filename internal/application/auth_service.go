package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pquerna/otp"

	"github.com/example/hrms/internal/persistence"
)

const totpIssuer = "HRMS"

// LoginInput carries the password step credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// VerifyTwoFactorInput exchanges a challenge token and a TOTP code for a session.
type VerifyTwoFactorInput struct {
	ChallengeToken string `json:"challengeToken" validate:"required"`
	Code           string `json:"code" validate:"required,len=6,numeric"`
}

// ChangePasswordInput replaces the caller's password.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

// EnableTwoFactorInput confirms a pending TOTP secret.
type EnableTwoFactorInput struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// DisableTwoFactorInput turns two-factor authentication off.
type DisableTwoFactorInput struct {
	Password string `json:"password" validate:"required"`
}

// LoginResult is either an issued session or a pending two-factor challenge.
type LoginResult struct {
	User              *User      `json:"user,omitempty"`
	Token             string     `json:"token,omitempty"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
	TwoFactorRequired bool       `json:"twoFactorRequired"`
	ChallengeToken    string     `json:"challengeToken,omitempty"`
}

// TwoFactorSetup is returned when a TOTP secret is provisioned.
type TwoFactorSetup struct {
	Secret string `json:"secret"`
	URI    string `json:"otpauthUri"`
}

// AuthService coordinates authentication flows, session validation and two-factor setup.
type AuthService struct {
	users          persistence.UserRepository
	sessions       persistence.SessionRepository
	tokens         *TokenIssuer
	verifyPassword PasswordVerifier
	hashPassword   PasswordHasher
	newKey         func(account string) (*otp.Key, error)
	idGenerator    func() string
	now            func() time.Time
	sessionTTL     time.Duration
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(users persistence.UserRepository, sessions persistence.SessionRepository, tokens *TokenIssuer, idGenerator func() string, now func() time.Time, sessionTTL time.Duration) *AuthService {
	return NewAuthServiceWithLogger(users, sessions, tokens, idGenerator, now, sessionTTL, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(users persistence.UserRepository, sessions persistence.SessionRepository, tokens *TokenIssuer, idGenerator func() string, now func() time.Time, sessionTTL time.Duration, logger *slog.Logger) *AuthService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &AuthService{
		users:          users,
		sessions:       sessions,
		tokens:         tokens,
		verifyPassword: VerifyPassword,
		hashPassword:   HashPassword,
		newKey:         GenerateTOTPKey,
		idGenerator:    idGenerator,
		now:            now,
		sessionTTL:     sessionTTL,
		logger:         defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

func (s *AuthService) ready() error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}
	if s.users == nil || s.sessions == nil || s.tokens == nil {
		return fmt.Errorf("AuthService dependencies not configured")
	}
	return nil
}

// Login validates credentials. Administrators with two-factor enabled receive a challenge
// token instead of a session.
func (s *AuthService) Login(ctx context.Context, input LoginInput, userAgent string) (result LoginResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	email := strings.TrimSpace(strings.ToLower(input.Email))
	logger := s.loggerWith(ctx, "Login", "email", email)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "login failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "login succeeded", "two_factor_required", result.TwoFactorRequired)
	}()

	input.Email = email
	if err = validateInput(input).errOrNil(); err != nil {
		return
	}

	var user persistence.User
	user, err = s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if isStoreNotFound(err) {
			err = ErrInvalidCredentials
		}
		return
	}
	if !user.Active {
		err = ErrAccountDisabled
		return
	}
	if s.verifyPassword(user.PasswordHash, input.Password) != nil {
		err = ErrInvalidCredentials
		return
	}

	if user.Role == RoleAdmin && user.TwoFactorEnabled {
		var challenge string
		challenge, _, err = s.tokens.IssueChallenge(user.ID)
		if err != nil {
			return
		}
		result = LoginResult{TwoFactorRequired: true, ChallengeToken: challenge}
		return
	}

	result, err = s.issueSession(ctx, user, userAgent)
	return
}

// VerifyTwoFactor completes a login started by Login.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, input VerifyTwoFactorInput, userAgent string) (result LoginResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "VerifyTwoFactor")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "two-factor verification failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "two-factor verification succeeded", "user_id", result.User.ID)
	}()

	if err = validateInput(input).errOrNil(); err != nil {
		return
	}

	var userID string
	userID, err = s.tokens.ParseChallenge(input.ChallengeToken)
	if err != nil {
		return
	}

	var user persistence.User
	user, err = s.users.GetUser(ctx, userID)
	if err != nil {
		if isStoreNotFound(err) {
			err = ErrInvalidCredentials
		}
		return
	}
	if !user.Active {
		err = ErrAccountDisabled
		return
	}
	if !user.TwoFactorEnabled || !VerifyTOTP(user.TwoFactorSecret, input.Code, s.now()) {
		err = ErrInvalidTwoFactorCode
		return
	}

	result, err = s.issueSession(ctx, user, userAgent)
	return
}

func (s *AuthService) issueSession(ctx context.Context, user persistence.User, userAgent string) (LoginResult, error) {
	now := s.now()
	session := persistence.Session{
		ID:        s.idGenerator(),
		UserID:    user.ID,
		UserAgent: strings.TrimSpace(userAgent),
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return LoginResult{}, err
	}

	token, err := s.tokens.IssueSession(user.ID, session.ID, session.ExpiresAt)
	if err != nil {
		return LoginResult{}, err
	}

	view := userFromRecord(user)
	expiresAt := session.ExpiresAt
	return LoginResult{User: &view, Token: token, ExpiresAt: &expiresAt}, nil
}

// Authenticate resolves a session token into the calling principal.
func (s *AuthService) Authenticate(ctx context.Context, token string) (principal Principal, err error) {
	if err = s.ready(); err != nil {
		return
	}

	defer func() {
		if err != nil {
			s.loggerWith(ctx, "Authenticate").DebugContext(ctx, "session rejected", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	var userID, sessionID string
	userID, sessionID, err = s.tokens.ParseSession(token)
	if err != nil {
		return
	}

	var session persistence.Session
	session, err = s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if isStoreNotFound(err) {
			err = ErrSessionRevoked
		}
		return
	}
	switch {
	case session.UserID != userID:
		err = ErrUnauthenticated
		return
	case session.RevokedAt != nil:
		err = ErrSessionRevoked
		return
	case !session.ExpiresAt.After(s.now()):
		err = ErrSessionExpired
		return
	}

	var user persistence.User
	user, err = s.users.GetUser(ctx, userID)
	if err != nil {
		if isStoreNotFound(err) {
			err = ErrUnauthenticated
		}
		return
	}
	if !user.Active {
		err = ErrAccountDisabled
		return
	}

	principal = Principal{UserID: user.ID, Role: user.Role, SessionID: session.ID}
	return
}

// Logout revokes the caller's current session.
func (s *AuthService) Logout(ctx context.Context, principal Principal) (err error) {
	if err = s.ready(); err != nil {
		return
	}
	logger := s.loggerWith(ctx, "Logout", "user_id", principal.UserID, "session_id", principal.SessionID)
	defer func() { logOutcome(ctx, logger, err, "session revoked") }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	err = s.sessions.RevokeSession(ctx, principal.SessionID, s.now())
	if isStoreNotFound(err) {
		err = nil
	}
	return
}

// Me returns the caller's account.
func (s *AuthService) Me(ctx context.Context, principal Principal) (User, error) {
	if err := s.ready(); err != nil {
		return User{}, err
	}
	if err := requireAuthenticated(principal); err != nil {
		return User{}, err
	}
	user, err := s.users.GetUser(ctx, principal.UserID)
	if err != nil {
		return User{}, mapStoreError(err, "user")
	}
	return userFromRecord(user), nil
}

// ChangePassword replaces the caller's password after verifying the current one.
func (s *AuthService) ChangePassword(ctx context.Context, principal Principal, input ChangePasswordInput) (err error) {
	if err = s.ready(); err != nil {
		return
	}
	logger := s.loggerWith(ctx, "ChangePassword", "user_id", principal.UserID)
	defer func() { logOutcome(ctx, logger, err, "password changed") }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	vErr := validateInput(input)
	if !vErr.HasErrors() {
		checkPasswordPolicy("newPassword", input.NewPassword, vErr)
		if input.NewPassword == input.CurrentPassword {
			vErr.add("newPassword", "newPassword must differ from the current password")
		}
	}
	if err = vErr.errOrNil(); err != nil {
		return
	}

	var user persistence.User
	if user, err = s.users.GetUser(ctx, principal.UserID); err != nil {
		err = mapStoreError(err, "user")
		return
	}
	if s.verifyPassword(user.PasswordHash, input.CurrentPassword) != nil {
		vErr.add("currentPassword", "current password is incorrect")
		err = vErr
		return
	}

	if user.PasswordHash, err = s.hashPassword(input.NewPassword); err != nil {
		return
	}
	user.UpdatedAt = s.now()
	err = mapStoreError(s.users.UpdateUser(ctx, user), "user")
	return
}

// SetupTwoFactor provisions a new TOTP secret for an administrator. The secret becomes
// effective once EnableTwoFactor confirms a code.
func (s *AuthService) SetupTwoFactor(ctx context.Context, principal Principal) (setup TwoFactorSetup, err error) {
	if err = s.ready(); err != nil {
		return
	}
	logger := s.loggerWith(ctx, "SetupTwoFactor", "user_id", principal.UserID)
	defer func() { logOutcome(ctx, logger, err, "two-factor secret provisioned") }()

	if err = requireAdmin(principal); err != nil {
		return
	}

	var user persistence.User
	if user, err = s.users.GetUser(ctx, principal.UserID); err != nil {
		err = mapStoreError(err, "user")
		return
	}
	if user.TwoFactorEnabled {
		err = badRequest("two-factor authentication is already enabled")
		return
	}

	var key *otp.Key
	if key, err = s.newKey(user.Email); err != nil {
		return
	}
	user.TwoFactorSecret = key.Secret()
	user.UpdatedAt = s.now()
	if err = mapStoreError(s.users.UpdateUser(ctx, user), "user"); err != nil {
		return
	}

	setup = TwoFactorSetup{Secret: key.Secret(), URI: key.URL()}
	return
}

// EnableTwoFactor confirms the pending secret with a current code.
func (s *AuthService) EnableTwoFactor(ctx context.Context, principal Principal, input EnableTwoFactorInput) (err error) {
	if err = s.ready(); err != nil {
		return
	}
	logger := s.loggerWith(ctx, "EnableTwoFactor", "user_id", principal.UserID)
	defer func() { logOutcome(ctx, logger, err, "two-factor enabled") }()

	if err = requireAdmin(principal); err != nil {
		return
	}
	vErr := validateInput(input)
	if err = vErr.errOrNil(); err != nil {
		return
	}

	var user persistence.User
	if user, err = s.users.GetUser(ctx, principal.UserID); err != nil {
		err = mapStoreError(err, "user")
		return
	}
	if user.TwoFactorEnabled {
		err = badRequest("two-factor authentication is already enabled")
		return
	}
	if user.TwoFactorSecret == "" {
		err = badRequest("two-factor setup has not been started")
		return
	}
	if !VerifyTOTP(user.TwoFactorSecret, input.Code, s.now()) {
		vErr.add("code", "code is invalid")
		err = vErr
		return
	}

	user.TwoFactorEnabled = true
	user.UpdatedAt = s.now()
	err = mapStoreError(s.users.UpdateUser(ctx, user), "user")
	return
}

// DisableTwoFactor turns two-factor authentication off after a password check.
func (s *AuthService) DisableTwoFactor(ctx context.Context, principal Principal, input DisableTwoFactorInput) (err error) {
	if err = s.ready(); err != nil {
		return
	}
	logger := s.loggerWith(ctx, "DisableTwoFactor", "user_id", principal.UserID)
	defer func() { logOutcome(ctx, logger, err, "two-factor disabled") }()

	if err = requireAuthenticated(principal); err != nil {
		return
	}
	vErr := validateInput(input)
	if err = vErr.errOrNil(); err != nil {
		return
	}

	var user persistence.User
	if user, err = s.users.GetUser(ctx, principal.UserID); err != nil {
		err = mapStoreError(err, "user")
		return
	}
	if s.verifyPassword(user.PasswordHash, input.Password) != nil {
		vErr.add("password", "password is incorrect")
		err = vErr
		return
	}

	user.TwoFactorEnabled = false
	user.TwoFactorSecret = ""
	user.UpdatedAt = s.now()
	err = mapStoreError(s.users.UpdateUser(ctx, user), "user")
	return
}

// PruneSessions deletes expired and revoked sessions.
func (s *AuthService) PruneSessions(ctx context.Context) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	removed, err := s.sessions.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		s.loggerWith(ctx, "PruneSessions").ErrorContext(ctx, "session pruning failed", "error", err)
		return 0, err
	}
	s.loggerWith(ctx, "PruneSessions").InfoContext(ctx, "sessions pruned", "removed", removed)
	return removed, nil
}
