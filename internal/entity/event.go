package entity

import (
	"strings"
	"time"
)

type AccessLevel string

const (
	AccessUnauthenticated AccessLevel = "unauthenticated"
	AccessGuest           AccessLevel = "guest"
	AccessAdmin           AccessLevel = "admin"
)

// Event представляет одно событие (раздачу). Это агрегат.
type Event struct {
	ID               string // Стабильный слаг, уникальный идентификатор события и ключ неймспейса в хранилище
	Name             string
	Description      string
	AdminSecretHash  string   // bcrypt, always present
	GuestSecretHash  string   // bcrypt, empty means the event is unsecured
	AllowedMimeTypes []string // type/subtype or type/* patterns; empty accepts everything

	AllowGuestDownload bool
	AllowGuestUpload   bool

	UploadMaxFileSizeBytes  int64
	UploadMaxTotalSizeBytes int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Secured reports whether guest-level access requires a credential.
func (e *Event) Secured() bool {
	return e.GuestSecretHash != ""
}

// MimeTypeAllowed matches contentType against the event's allow-list.
// An empty allow-list accepts everything. Patterns are type/subtype or
// type/*; matching is case-insensitive and ignores media-type parameters.
func (e *Event) MimeTypeAllowed(contentType string) bool {
	if len(e.AllowedMimeTypes) == 0 {
		return true
	}

	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}

	typ, sub, ok := strings.Cut(contentType, "/")
	if !ok {
		return false
	}

	for _, pattern := range e.AllowedMimeTypes {
		ptyp, psub, ok := strings.Cut(strings.ToLower(pattern), "/")
		if !ok {
			continue
		}

		if ptyp != typ {
			continue
		}

		if psub == "*" || psub == sub {
			return true
		}
	}

	return false
}

// EventInfo is the API projection of an Event. Secrets never leave the
// service, so admin, guest and unauthenticated callers all see the same shape.
type EventInfo struct {
	EventID                 string    `json:"eventId"`
	Name                    string    `json:"name"`
	Description             string    `json:"description"`
	AllowedMimeTypes        []string  `json:"allowedMimeTypes"`
	Secured                 bool      `json:"secured"`
	AllowGuestDownload      bool      `json:"allowGuestDownload"`
	AllowGuestUpload        bool      `json:"allowGuestUpload"`
	AccessLevel             string    `json:"accessLevel"`
	CreatedAt               time.Time `json:"createdAt"`
	UploadMaxFileSizeBytes  int64     `json:"uploadMaxFileSizeBytes"`
	UploadMaxTotalSizeBytes int64     `json:"uploadMaxTotalSizeBytes"`
}

func (e *Event) Info(level AccessLevel) *EventInfo {
	mimeTypes := e.AllowedMimeTypes
	if mimeTypes == nil {
		mimeTypes = []string{}
	}

	return &EventInfo{
		EventID:                 e.ID,
		Name:                    e.Name,
		Description:             e.Description,
		AllowedMimeTypes:        mimeTypes,
		Secured:                 e.Secured(),
		AllowGuestDownload:      e.AllowGuestDownload,
		AllowGuestUpload:        e.AllowGuestUpload,
		AccessLevel:             string(level),
		CreatedAt:               e.CreatedAt,
		UploadMaxFileSizeBytes:  e.UploadMaxFileSizeBytes,
		UploadMaxTotalSizeBytes: e.UploadMaxTotalSizeBytes,
	}
}
