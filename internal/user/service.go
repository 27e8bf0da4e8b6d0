package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/arkova/catalog-core/internal/event"
	"github.com/arkova/catalog-core/internal/user/entity"
	userrepo "github.com/arkova/catalog-core/internal/user/repo"
	"github.com/arkova/catalog-core/pkg/utilities"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (hash string, algo string, err error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", "", err
	}
	return string(h), fmt.Sprintf("bcrypt:%d", cost), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Publisher is the event-bus surface used by the service. Nil disables publishing.
type Publisher interface {
	CreateAndPublishEvent(ctx context.Context, p event.Params) (event.Event, error)
}

// UserService orchestrates registration, authentication and group management.
type UserService struct {
	db     *sqlx.DB
	repo   *userrepo.UserRepo
	groups *userrepo.GroupRepo
	hasher PasswordHasher
	bus    Publisher
	logger *zap.SugaredLogger
	// configuration knobs
	MaxFailed   int
	LockMinutes int
}

func NewUserService(db *sqlx.DB, bus Publisher, logger *zap.SugaredLogger) *UserService {
	return &UserService{
		db:          db,
		repo:        userrepo.NewUserRepo(db),
		groups:      userrepo.NewGroupRepo(db),
		hasher:      BcryptHasher{Cost: 12},
		bus:         bus,
		logger:      logger,
		MaxFailed:   6,
		LockMinutes: 15,
	}
}

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrGroupNotFound     = errors.New("group not found")
	ErrLocked            = errors.New("user locked")
	ErrDisabled          = errors.New("user disabled")
	ErrBadCredentials    = errors.New("invalid credentials")
	ErrMustResetPassword = errors.New("must reset password")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicatePhone    = errors.New("phone number already registered")
)

// RegisterInput carries the registration fields.
type RegisterInput struct {
	Username    string
	Email       string
	Phone       string
	Password    string
	DisplayName string
	RegionID    *int64
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// RegisterUser creates the user and profile rows in one transaction. Any
// duplicate username, email or phone aborts before the insert with a specific
// sentinel error and nothing is committed.
func (s *UserService) RegisterUser(ctx context.Context, in RegisterInput) (int64, error) {
	username := optional(in.Username)
	phone := optional(in.Phone)
	var email *string
	if e := strings.ToLower(strings.TrimSpace(in.Email)); e != "" {
		email = &e
	}
	if username == nil && email == nil {
		return 0, errors.New("username or email required")
	}
	if in.Password == "" {
		return 0, errors.New("password required")
	}

	hash, algo, err := s.hasher.Hash(in.Password)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	conflicts, err := s.repo.CheckConflicts(ctx, tx, username, email, phone)
	if err != nil {
		return 0, err
	}
	switch {
	case conflicts.Username:
		return 0, ErrDuplicateUsername
	case conflicts.Email:
		return 0, ErrDuplicateEmail
	case conflicts.Phone:
		return 0, ErrDuplicatePhone
	}

	u := &entity.User{
		ID:           utilities.NewSnowflakeID(),
		Username:     username,
		Email:        email,
		PhoneNumber:  phone,
		PasswordHash: &hash,
		PasswordAlgo: &algo,
		Status:       "active",
		RegionID:     in.RegionID,
		Version:      1,
	}
	if err := s.repo.CreateTx(ctx, tx, u); err != nil {
		return 0, err
	}
	displayName := in.DisplayName
	if displayName == "" && username != nil {
		displayName = *username
	}
	if err := s.repo.CreateProfileTx(ctx, tx, &entity.Profile{UserID: u.ID, DisplayName: displayName, Locale: "en"}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true

	s.publish(ctx, event.Params{
		EventName: "user.registered",
		Source:    "user.service",
		Payload:   map[string]any{"user_id": u.ID},
	})
	return u.ID, nil
}

// AuthenticatePassword performs password authentication by email or username.
// On success resets counters and returns the user minimal auth view.
func (s *UserService) AuthenticatePassword(ctx context.Context, identifier, password string) (*entity.MinimalAuthView, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrBadCredentials
	}

	var u *entity.User
	var err error
	if strings.Contains(identifier, "@") {
		u, err = s.repo.GetByEmail(ctx, identifier)
	} else {
		u, err = s.repo.GetByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBadCredentials // avoid user enumeration
		}
		return nil, err
	}

	// Expired lock auto-unlock attempt
	if u.Status == "locked" && u.LockedUntil != nil && u.LockedUntil.Before(time.Now()) {
		if unlocked, _ := s.repo.UnlockIfExpired(ctx, u.ID); unlocked {
			u.Status = "active"
			u.LockedUntil = nil
		}
	}

	if u.Status == "locked" {
		return nil, ErrLocked
	}
	if u.Status == "disabled" {
		return nil, ErrDisabled
	}
	if u.PasswordHash == nil || *u.PasswordHash == "" {
		return nil, ErrBadCredentials
	}

	if !s.hasher.Verify(*u.PasswordHash, password) {
		if _, incErr := s.repo.IncrementFailedLogin(ctx, u.ID); incErr == nil {
			if locked, _ := s.repo.LockIfThreshold(ctx, u.ID, s.MaxFailed, s.LockMinutes); locked {
				s.publish(ctx, event.Params{
					EventName: "user.locked",
					Source:    "user.service",
					Severity:  "warning",
					Payload:   map[string]any{"user_id": u.ID},
				})
			}
		}
		s.publish(ctx, event.Params{
			EventName: "user.login_failed",
			Source:    "user.service",
			Severity:  "warning",
			Payload:   map[string]any{"user_id": u.ID},
		})
		return nil, ErrBadCredentials
	}

	if err := s.repo.ResetLoginSuccess(ctx, u.ID); err != nil {
		return nil, err
	}

	if u.MustResetPassword {
		return nil, ErrMustResetPassword
	}

	view, err := s.repo.GetMinimalAuthView(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, event.Params{
		EventName: "user.login",
		Source:    "user.service",
		Payload:   map[string]any{"user_id": u.ID},
	})
	return view, nil
}

// GetMinimalAuthView retrieves the minimal projection for a user by ID.
func (s *UserService) GetMinimalAuthView(ctx context.Context, id int64) (*entity.MinimalAuthView, error) {
	v, err := s.repo.GetMinimalAuthView(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return v, nil
}

// BumpVersionAndRevoke bumps the token version so outstanding access tokens
// stop validating; refresh-session revocation is the auth service's job.
func (s *UserService) BumpVersionAndRevoke(ctx context.Context, userID int64) (int64, error) {
	if err := s.repo.BumpVersion(ctx, userID); err != nil {
		return 0, err
	}
	v, err := s.repo.GetMinimalAuthView(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	s.publish(ctx, event.Params{
		EventName: "user.sessions_revoked",
		Source:    "user.service",
		Payload:   map[string]any{"user_id": userID, "version": v.Version},
	})
	return v.Version, nil
}

// Deactivate disables a user account.
func (s *UserService) Deactivate(ctx context.Context, id int64) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, event.Params{
		EventName: "user.deactivated",
		Source:    "user.service",
		Payload:   map[string]any{"user_id": id},
	})
	return nil
}

// Reactivate restores a disabled user account.
func (s *UserService) Reactivate(ctx context.Context, id int64) error {
	if err := s.repo.Reactivate(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, event.Params{
		EventName: "user.reactivated",
		Source:    "user.service",
		Payload:   map[string]any{"user_id": id},
	})
	return nil
}

// CreateGroup creates a user group.
func (s *UserService) CreateGroup(ctx context.Context, name, description string) (*entity.Group, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("group name required")
	}
	g := &entity.Group{ID: utilities.NewSnowflakeID(), Name: name, Description: description}
	if err := s.groups.Create(ctx, g); err != nil {
		return nil, err
	}
	s.publish(ctx, event.Params{
		EventName: "group.created",
		Source:    "user.service",
		Payload:   map[string]any{"group_id": g.ID, "name": g.Name},
	})
	return g, nil
}

// ListGroups returns all groups.
func (s *UserService) ListGroups(ctx context.Context) ([]entity.Group, error) {
	return s.groups.List(ctx)
}

// DeleteGroup removes a group and its memberships.
func (s *UserService) DeleteGroup(ctx context.Context, id int64) error {
	rows, err := s.groups.Delete(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// AddGroupMember attaches a user to a group.
func (s *UserService) AddGroupMember(ctx context.Context, groupID, userID int64) error {
	if _, err := s.groups.GetByID(ctx, groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrGroupNotFound
		}
		return err
	}
	if err := s.groups.AddMember(ctx, groupID, userID); err != nil {
		return err
	}
	s.publish(ctx, event.Params{
		EventName: "group.member_added",
		Source:    "user.service",
		Payload:   map[string]any{"group_id": groupID, "user_id": userID},
	})
	return nil
}

// RemoveGroupMember detaches a user from a group.
func (s *UserService) RemoveGroupMember(ctx context.Context, groupID, userID int64) error {
	rows, err := s.groups.RemoveMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// ListGroupsForUser returns the groups a user belongs to.
func (s *UserService) ListGroupsForUser(ctx context.Context, userID int64) ([]entity.Group, error) {
	return s.groups.ListGroupsForUser(ctx, userID)
}

func (s *UserService) publish(ctx context.Context, p event.Params) {
	if s.bus == nil {
		return
	}
	if _, err := s.bus.CreateAndPublishEvent(ctx, p); err != nil {
		s.logger.Warnw("event publish failed", "event", p.EventName, "err", err)
	}
}
