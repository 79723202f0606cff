package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/eventdrop/eventdrop/internal/common"
	"github.com/eventdrop/eventdrop/internal/entity"
	"github.com/eventdrop/eventdrop/internal/service/access"
	"github.com/go-playground/validator/v10"
)

const (
	serviceName = "event"
)

type EventRepository interface {
	Create(ctx context.Context, ev *entity.Event) error
	Get(ctx context.Context, id string) (*entity.Event, error)
	Update(ctx context.Context, ev *entity.Event) error
	Delete(ctx context.Context, id string) error
}

// Purger removes an event's storage namespace on deletion.
type Purger interface {
	Purge(eventID string) error
}

type CreatePayload struct {
	EventID                 string   `json:"eventId"`
	Name                    string   `json:"name" validate:"required,max=48"`
	Description             string   `json:"description" validate:"max=2048"`
	AdminPassword           string   `json:"adminPassword" validate:"required,min=8"`
	AdminPasswordConfirm    string   `json:"adminPasswordConfirm" validate:"eqfield=AdminPassword"`
	GuestPassword           string   `json:"guestPassword" validate:"omitempty,min=4"`
	AllowedMimeTypes        []string `json:"allowedMimeTypes" validate:"dive,mimepattern"`
	AllowGuestDownload      *bool    `json:"allowGuestDownload"`
	AllowGuestUpload        *bool    `json:"allowGuestUpload"`
	UploadMaxFileSizeBytes  int64    `json:"uploadMaxFileSizeBytes" validate:"min=0"`
	UploadMaxTotalSizeBytes int64    `json:"uploadMaxTotalSizeBytes" validate:"min=0"`
}

// UpdatePayload is a partial patch; nil fields stay untouched.
type UpdatePayload struct {
	Name                    *string   `json:"name"`
	Description             *string   `json:"description"`
	AdminPassword           *string   `json:"adminPassword"`
	AdminPasswordConfirm    *string   `json:"adminPasswordConfirm"`
	GuestPassword           *string   `json:"guestPassword"`
	AllowedMimeTypes        *[]string `json:"allowedMimeTypes"`
	AllowGuestDownload      *bool     `json:"allowGuestDownload"`
	AllowGuestUpload        *bool     `json:"allowGuestUpload"`
	UploadMaxFileSizeBytes  *int64    `json:"uploadMaxFileSizeBytes"`
	UploadMaxTotalSizeBytes *int64    `json:"uploadMaxTotalSizeBytes"`
}

// EventService owns event records: creation with full payload validation,
// admin-scoped mutation, and deletion with storage purge.
type EventService struct {
	repo            EventRepository
	purger          Purger
	validate        *validator.Validate
	allowCreation   bool
	defaultMaxFile  int64
	defaultMaxTotal int64
	log             *slog.Logger
}

func NewEventService(repo EventRepository, purger Purger, allowCreation bool, defaultMaxFile, defaultMaxTotal int64, log *slog.Logger) *EventService {
	return &EventService{
		repo:            repo,
		purger:          purger,
		validate:        newValidator(),
		allowCreation:   allowCreation,
		defaultMaxFile:  defaultMaxFile,
		defaultMaxTotal: defaultMaxTotal,
		log:             log.With(slog.String("service", serviceName)),
	}
}

func (s *EventService) AllowCreation() bool {
	return s.allowCreation
}

func (s *EventService) Create(ctx context.Context, payload *CreatePayload) (*entity.Event, error) {
	if !s.allowCreation {
		return nil, common.ErrEventCreationDisabled
	}

	if err := validateEventID(payload.EventID); err != nil {
		return nil, err
	}

	if err := s.validate.Struct(payload); err != nil {
		return nil, firstViolation(err)
	}

	secured := payload.GuestPassword != ""

	if !secured && payload.AllowGuestDownload != nil && *payload.AllowGuestDownload {
		return nil, common.InvalidInput("allowGuestDownload")
	}

	allowDownload := secured
	if payload.AllowGuestDownload != nil {
		allowDownload = *payload.AllowGuestDownload
	}

	allowUpload := true
	if payload.AllowGuestUpload != nil {
		allowUpload = *payload.AllowGuestUpload
	}

	// A secured event that guests can neither upload to nor download from
	// is unusable; reject rather than strand the guest credential.
	if secured && !allowDownload && !allowUpload {
		return nil, common.ErrGuestAccessDisabled
	}

	adminHash, err := access.HashSecret(payload.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("cannot hash admin secret: %w", err)
	}

	var guestHash string
	if secured {
		guestHash, err = access.HashSecret(payload.GuestPassword)
		if err != nil {
			return nil, fmt.Errorf("cannot hash guest secret: %w", err)
		}
	}

	maxFile := payload.UploadMaxFileSizeBytes
	if maxFile == 0 {
		maxFile = s.defaultMaxFile
	}

	maxTotal := payload.UploadMaxTotalSizeBytes
	if maxTotal == 0 {
		maxTotal = s.defaultMaxTotal
	}

	now := time.Now().UTC()
	ev := &entity.Event{
		ID:                      payload.EventID,
		Name:                    payload.Name,
		Description:             payload.Description,
		AdminSecretHash:         adminHash,
		GuestSecretHash:         guestHash,
		AllowedMimeTypes:        payload.AllowedMimeTypes,
		AllowGuestDownload:      allowDownload,
		AllowGuestUpload:        allowUpload,
		UploadMaxFileSizeBytes:  maxFile,
		UploadMaxTotalSizeBytes: maxTotal,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err := s.repo.Create(ctx, ev); err != nil {
		return nil, err
	}

	s.log.Info("Event created", slog.String("event_id", ev.ID), slog.Bool("secured", secured))

	return ev, nil
}

func (s *EventService) Get(ctx context.Context, id string) (*entity.Event, error) {
	ev, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cannot get event %s: %w", id, err)
	}

	return ev, nil
}

// Update applies a patch to ev, re-running the create-time validations on
// every present field. The caller has already established admin access.
func (s *EventService) Update(ctx context.Context, ev *entity.Event, patch *UpdatePayload) (*entity.Event, error) {
	updated := *ev

	// Lengths count runes, matching the create-time validator.
	if patch.Name != nil {
		if *patch.Name == "" || utf8.RuneCountInString(*patch.Name) > maxNameLen {
			return nil, common.InvalidInput("name")
		}
		updated.Name = *patch.Name
	}

	if patch.Description != nil {
		if utf8.RuneCountInString(*patch.Description) > maxDescriptionLen {
			return nil, common.InvalidInput("description")
		}
		updated.Description = *patch.Description
	}

	if patch.AdminPassword != nil {
		if len(*patch.AdminPassword) < minAdminSecretLen {
			return nil, common.InvalidInput("adminPassword")
		}
		if patch.AdminPasswordConfirm == nil || *patch.AdminPasswordConfirm != *patch.AdminPassword {
			return nil, common.InvalidInput("adminPasswordConfirm")
		}

		hash, err := access.HashSecret(*patch.AdminPassword)
		if err != nil {
			return nil, fmt.Errorf("cannot hash admin secret: %w", err)
		}
		updated.AdminSecretHash = hash
	}

	if patch.GuestPassword != nil {
		switch {
		case *patch.GuestPassword == "":
			updated.GuestSecretHash = ""
		case len(*patch.GuestPassword) < minGuestSecretLen:
			return nil, common.InvalidInput("guestPassword")
		default:
			hash, err := access.HashSecret(*patch.GuestPassword)
			if err != nil {
				return nil, fmt.Errorf("cannot hash guest secret: %w", err)
			}
			updated.GuestSecretHash = hash
		}
	}

	if patch.AllowedMimeTypes != nil {
		for _, pattern := range *patch.AllowedMimeTypes {
			if !validMimePattern(pattern) {
				return nil, common.InvalidInput("allowedMimeTypes")
			}
		}
		updated.AllowedMimeTypes = *patch.AllowedMimeTypes
	}

	if patch.AllowGuestDownload != nil {
		updated.AllowGuestDownload = *patch.AllowGuestDownload
	}

	if patch.AllowGuestUpload != nil {
		updated.AllowGuestUpload = *patch.AllowGuestUpload
	}

	if patch.UploadMaxFileSizeBytes != nil {
		if *patch.UploadMaxFileSizeBytes < 0 {
			return nil, common.InvalidInput("uploadMaxFileSizeBytes")
		}
		updated.UploadMaxFileSizeBytes = *patch.UploadMaxFileSizeBytes
	}

	if patch.UploadMaxTotalSizeBytes != nil {
		if *patch.UploadMaxTotalSizeBytes < 0 {
			return nil, common.InvalidInput("uploadMaxTotalSizeBytes")
		}
		updated.UploadMaxTotalSizeBytes = *patch.UploadMaxTotalSizeBytes
	}

	if !updated.Secured() && updated.AllowGuestDownload {
		return nil, common.InvalidInput("allowGuestDownload")
	}

	if updated.Secured() && !updated.AllowGuestDownload && !updated.AllowGuestUpload {
		return nil, common.ErrGuestAccessDisabled
	}

	updated.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("cannot update event %s: %w", ev.ID, err)
	}

	s.log.Info("Event updated", slog.String("event_id", ev.ID))

	return &updated, nil
}

// Delete removes the record first, so racing operations see EVENT_NOT_FOUND
// before the namespace purge begins.
func (s *EventService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("cannot delete event %s: %w", id, err)
	}

	if err := s.purger.Purge(id); err != nil {
		return fmt.Errorf("cannot purge event %s storage: %w", id, err)
	}

	s.log.Info("Event deleted", slog.String("event_id", id))

	return nil
}
