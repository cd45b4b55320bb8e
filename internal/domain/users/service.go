// Package users keeps the local copy of WCA accounts: sign-in sync, lookup for
// the competition form, import of organizers who never signed in and role
// administration.
package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ams-cubing/public-calendar/internal/audit"
	"github.com/ams-cubing/public-calendar/internal/auth"
	"github.com/ams-cubing/public-calendar/internal/auth/oauth"
	"github.com/ams-cubing/public-calendar/internal/validation"
	"github.com/rs/zerolog"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrForbidden     = errors.New("not allowed to manage users")
	ErrWCAIDRequired = errors.New("wca id required")
)

const (
	// PlaceholderDomain marks imported accounts without a real address.
	PlaceholderDomain = "ams.placeholder"

	SearchLimit = 5

	msgNotInWCA      = "No se encontró el usuario en la WCA"
	msgImported      = "Organizador %s añadido exitosamente"
	msgAlreadyExists = "El usuario %s ya existe"
	msgInvalidRole   = "Rol inválido"
	msgUnknownRegion = "Región no encontrada"
	msgInvalidWCAID  = "ID de la WCA inválido"
)

var wcaIDPattern = regexp.MustCompile(`^[0-9]{4}[A-Z]{4}[0-9]{2}$`)

// PersonFetcher looks up public WCA person records.
type PersonFetcher interface {
	FetchPerson(ctx context.Context, wcaID string) (*oauth.Person, error)
}

// ImportResult is the outcome of ImportFromWCA.
type ImportResult struct {
	User    *User
	Created bool
	Message string
}

// ProfileUpdate is an admin edit of a user's role and region.
type ProfileUpdate struct {
	Role     *auth.Role `json:"role,omitempty"`
	RegionID *int       `json:"regionId,omitempty"`
	// ClearRegion removes the region when true.
	ClearRegion bool `json:"clearRegion,omitempty"`
}

type Service struct {
	repo   Repository
	wca    PersonFetcher
	audit  *audit.Logger
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, wca PersonFetcher, auditLogger *audit.Logger, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		wca:    wca,
		audit:  auditLogger,
		logger: logger.With().Str("component", "users").Logger(),
		now:    time.Now,
	}
}

// PlaceholderEmail is the address stored for imported accounts.
func PlaceholderEmail(wcaID string) string {
	return strings.ToLower(wcaID) + "@" + PlaceholderDomain
}

// IsPlaceholderEmail reports whether address is a placeholder.
func IsPlaceholderEmail(address string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(address)), "@"+PlaceholderDomain)
}

// SyncFromWCA upserts the account on sign-in. The role follows the WCA
// delegate status, but an admin stays admin.
func (s *Service) SyncFromWCA(ctx context.Context, profile oauth.Profile) (*User, error) {
	wcaID := strings.ToUpper(strings.TrimSpace(profile.WCAID))
	if wcaID == "" {
		return nil, ErrWCAIDRequired
	}

	role := auth.RoleUser
	if profile.IsDelegate() {
		role = auth.RoleDelegate
	}
	now := s.now().UTC()

	var synced *User
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		existing, err := tx.GetUser(ctx, wcaID)
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return fmt.Errorf("get user: %w", err)
		}
		user := User{
			WCAID:     wcaID,
			Name:      strings.TrimSpace(profile.Name),
			Email:     strings.TrimSpace(profile.Email),
			Role:      role,
			LastLogin: &now,
		}
		if profile.AvatarURL != "" {
			avatar := profile.AvatarURL
			user.AvatarURL = &avatar
		}
		if existing != nil {
			user.RegionID = existing.RegionID
			if auth.IsAdmin(existing.Role) {
				user.Role = auth.RoleAdmin
			}
			if user.Email == "" {
				user.Email = existing.Email
			}
		}
		if user.Email == "" {
			user.Email = PlaceholderEmail(wcaID)
		}
		synced, err = tx.UpsertUser(ctx, user)
		if err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("wca_id", wcaID).Str("role", string(synced.Role)).Msg("user signed in")
	return synced, nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, wcaID string) (*User, error) {
	return s.repo.GetUser(ctx, strings.ToUpper(strings.TrimSpace(wcaID)))
}

// Search matches name or WCA id. An empty query returns the first users by
// name.
func (s *Service) Search(ctx context.Context, actor auth.Actor, query string) ([]User, error) {
	if !actor.CanManageCompetitions() {
		return nil, ErrForbidden
	}
	users, err := s.repo.SearchUsers(ctx, strings.TrimSpace(query), SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return users, nil
}

// ImportFromWCA creates a local account for a WCA person so they can be
// added as organizer before ever signing in. Existing users are returned
// unchanged.
func (s *Service) ImportFromWCA(ctx context.Context, actor auth.Actor, wcaID string) (*ImportResult, error) {
	if !actor.CanManageCompetitions() {
		return nil, ErrForbidden
	}
	wcaID = strings.ToUpper(strings.TrimSpace(wcaID))
	if !wcaIDPattern.MatchString(wcaID) {
		verr := &validation.Error{}
		verr.Add("wcaId", msgInvalidWCAID)
		return nil, verr
	}

	existing, err := s.repo.GetUser(ctx, wcaID)
	if err == nil {
		return &ImportResult{User: existing, Message: fmt.Sprintf(msgAlreadyExists, existing.Name)}, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("get user: %w", err)
	}

	person, err := s.wca.FetchPerson(ctx, wcaID)
	if err != nil {
		if errors.Is(err, oauth.ErrPersonNotFound) {
			verr := &validation.Error{}
			verr.Add("wcaId", msgNotInWCA)
			return nil, verr
		}
		return nil, fmt.Errorf("fetch wca person: %w", err)
	}

	user := User{
		WCAID: person.WCAID,
		Name:  strings.TrimSpace(person.Name),
		Email: PlaceholderEmail(person.WCAID),
		Role:  auth.RoleUser,
	}
	if person.AvatarURL != "" {
		avatar := person.AvatarURL
		user.AvatarURL = &avatar
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.InsertUser(ctx, user); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		return s.audit.Record(ctx, tx, audit.Entry{
			Action:     audit.ActionImportUser,
			TargetType: audit.TargetUser,
			TargetID:   user.WCAID,
			ActorID:    actor.WCAID,
			Details:    map[string]any{"name": user.Name, "source": "wca"},
		})
	})
	if err != nil {
		return nil, err
	}

	return &ImportResult{User: &user, Created: true, Message: fmt.Sprintf(msgImported, user.Name)}, nil
}

// UpdateProfile changes a user's role or region. Admin only.
func (s *Service) UpdateProfile(ctx context.Context, actor auth.Actor, wcaID string, in ProfileUpdate) (*User, error) {
	if !auth.IsAdmin(actor.Role) {
		return nil, ErrForbidden
	}
	wcaID = strings.ToUpper(strings.TrimSpace(wcaID))

	verr := &validation.Error{}
	if in.Role != nil && !in.Role.Valid() {
		verr.Add("role", msgInvalidRole)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	var updated *User
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		current, err := tx.GetUser(ctx, wcaID)
		if err != nil {
			return err
		}
		role := current.Role
		if in.Role != nil {
			role = *in.Role
		}
		region := current.RegionID
		switch {
		case in.ClearRegion:
			region = nil
		case in.RegionID != nil:
			ok, err := tx.RegionExists(ctx, *in.RegionID)
			if err != nil {
				return fmt.Errorf("check region: %w", err)
			}
			if !ok {
				verr.Add("regionId", msgUnknownRegion)
				return verr
			}
			region = in.RegionID
		}

		if err := tx.UpdateUserProfile(ctx, wcaID, role, region); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		details := map[string]any{
			"previousRole": string(current.Role),
			"role":         string(role),
		}
		if region != nil {
			details["regionId"] = *region
		}
		if err := s.audit.Record(ctx, tx, audit.Entry{
			Action:     audit.ActionUpdateUser,
			TargetType: audit.TargetUser,
			TargetID:   wcaID,
			ActorID:    actor.WCAID,
			Details:    details,
		}); err != nil {
			return err
		}
		updated, err = tx.GetUser(ctx, wcaID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
