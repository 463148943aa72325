// Package backend is the reference activities service: it stores the roster
// in SQLite through GORM and serves the JSON endpoints the view consumes.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/roster/internal/activities"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrActivityNotFound indicates that no activity carries the requested name.
	ErrActivityNotFound = errors.New("backend: activity not found")
	// ErrAlreadySignedUp indicates that the email is already on the roster.
	ErrAlreadySignedUp = errors.New("backend: already signed up")
	// ErrNotSignedUp indicates that the email is not on the roster.
	ErrNotSignedUp = errors.New("backend: not signed up")
	// ErrMissingEmail indicates an empty email parameter.
	ErrMissingEmail = errors.New("backend: email required")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "backend.service.new"
	opList       = "backend.list_activities"
	opSignup     = "backend.signup"
	opUnregister = "backend.unregister"
	opSeed       = "backend.seed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
	}, nil
}

// List returns every activity in position order with its participants in
// signup order.
func (s *Service) List(ctx context.Context) (activities.Snapshot, error) {
	var rows []Activity
	if err := s.db.WithContext(ctx).Order("position ASC").Order("name ASC").Find(&rows).Error; err != nil {
		s.logError(opList, "activity_select_failed", err)
		return activities.Snapshot{}, newServiceError(opList, "activity_select_failed", err)
	}

	var participants []Participant
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&participants).Error; err != nil {
		s.logError(opList, "participant_select_failed", err)
		return activities.Snapshot{}, newServiceError(opList, "participant_select_failed", err)
	}

	byActivity := make(map[string][]string, len(rows))
	for _, participant := range participants {
		byActivity[participant.ActivityName] = append(byActivity[participant.ActivityName], participant.Email)
	}

	entries := make([]activities.Entry, 0, len(rows))
	for _, row := range rows {
		emails := byActivity[row.Name]
		if emails == nil {
			emails = []string{}
		}
		entries = append(entries, activities.Entry{
			Name: activities.ActivityName(row.Name),
			Detail: activities.Detail{
				Description:     row.Description,
				Schedule:        row.Schedule,
				MaxParticipants: row.MaxParticipants,
				Participants:    emails,
			},
		})
	}

	snapshot, err := activities.NewSnapshot(entries...)
	if err != nil {
		s.logError(opList, "snapshot_invalid", err)
		return activities.Snapshot{}, newServiceError(opList, "snapshot_invalid", err)
	}
	return snapshot, nil
}

// Signup adds email to the named activity. Capacity is not enforced.
func (s *Service) Signup(ctx context.Context, name activities.ActivityName, email string) error {
	if strings.TrimSpace(email) == "" {
		return newServiceError(opSignup, "missing_email", ErrMissingEmail)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireActivity(tx, name); err != nil {
			if errors.Is(err, ErrActivityNotFound) {
				return newServiceError(opSignup, "activity_not_found", err)
			}
			s.logError(opSignup, "activity_select_failed", err, zap.String("activity", name.String()))
			return newServiceError(opSignup, "activity_select_failed", err)
		}

		signedUp, err := isSignedUp(tx, name, email)
		if err != nil {
			s.logError(opSignup, "participant_select_failed", err, zap.String("activity", name.String()))
			return newServiceError(opSignup, "participant_select_failed", err)
		}
		if signedUp {
			return newServiceError(opSignup, "already_signed_up", ErrAlreadySignedUp)
		}

		participant := Participant{
			ActivityName:      name.String(),
			Email:             email,
			SignedUpAtSeconds: s.clock().UTC().Unix(),
		}
		if err := tx.Create(&participant).Error; err != nil {
			s.logError(opSignup, "participant_insert_failed", err, zap.String("activity", name.String()))
			return newServiceError(opSignup, "participant_insert_failed", err)
		}
		return nil
	})
}

// Unregister removes email from the named activity.
func (s *Service) Unregister(ctx context.Context, name activities.ActivityName, email string) error {
	if strings.TrimSpace(email) == "" {
		return newServiceError(opUnregister, "missing_email", ErrMissingEmail)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireActivity(tx, name); err != nil {
			if errors.Is(err, ErrActivityNotFound) {
				return newServiceError(opUnregister, "activity_not_found", err)
			}
			s.logError(opUnregister, "activity_select_failed", err, zap.String("activity", name.String()))
			return newServiceError(opUnregister, "activity_select_failed", err)
		}

		result := tx.Where("activity_name = ? AND email = ?", name.String(), email).Delete(&Participant{})
		if result.Error != nil {
			s.logError(opUnregister, "participant_delete_failed", result.Error, zap.String("activity", name.String()))
			return newServiceError(opUnregister, "participant_delete_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return newServiceError(opUnregister, "not_signed_up", ErrNotSignedUp)
		}
		return nil
	})
}

// Seed stores entries that are not present yet. Existing activities are left
// untouched, so seeding twice is harmless.
func (s *Service) Seed(ctx context.Context, entries []activities.Entry) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return SeedActivities(tx, entries, s.clock().UTC())
	})
	if err != nil {
		s.logError(opSeed, "seed_failed", err)
		return newServiceError(opSeed, "seed_failed", err)
	}
	return nil
}

// SeedActivities inserts each missing activity with its participants, placing
// new activities after the existing ones.
func SeedActivities(tx *gorm.DB, entries []activities.Entry, signedUpAt time.Time) error {
	var existing int64
	if err := tx.Model(&Activity{}).Count(&existing).Error; err != nil {
		return err
	}
	position := int(existing)
	for _, entry := range entries {
		err := requireActivity(tx, entry.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrActivityNotFound) {
			return err
		}
		activity := Activity{
			Name:            entry.Name.String(),
			Description:     entry.Detail.Description,
			Schedule:        entry.Detail.Schedule,
			MaxParticipants: entry.Detail.MaxParticipants,
			Position:        position,
		}
		if err := tx.Create(&activity).Error; err != nil {
			return err
		}
		position++
		for _, email := range entry.Detail.Participants {
			participant := Participant{
				ActivityName:      activity.Name,
				Email:             email,
				SignedUpAtSeconds: signedUpAt.Unix(),
			}
			if err := tx.Create(&participant).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func requireActivity(tx *gorm.DB, name activities.ActivityName) error {
	var activity Activity
	err := tx.Where("name = ?", name.String()).Take(&activity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrActivityNotFound
	}
	return err
}

func isSignedUp(tx *gorm.DB, name activities.ActivityName, email string) (bool, error) {
	var count int64
	err := tx.Model(&Participant{}).
		Where("activity_name = ? AND email = ?", name.String(), email).
		Count(&count).Error
	return count > 0, err
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	if s == nil || s.logger == nil {
		return
	}
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("backend operation failed", attrs...)
}
