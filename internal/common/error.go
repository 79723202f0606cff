package common

import (
	"fmt"
	"net/http"
)

// Error is a domain error carried up to the HTTP layer. Key and Status map
// straight onto the API error body {errorKey, property?, message?}.
type Error struct {
	Key      string
	Status   int
	Property string
	Message  string
}

func (e *Error) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("%s: %s", e.Key, e.Property)
	}

	return e.Key
}

// Is matches two errors by key and status, so a wrapped InvalidInput with any
// property still matches the generic sentinel. AUTHORIZATION_REQUIRED exists
// in a 401 and a 403 flavor, which must never be conflated.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Key == t.Key && e.Status == t.Status
}

// WithProperty returns a copy of e pointing at the offending payload field.
func (e *Error) WithProperty(property string) *Error {
	c := *e
	c.Property = property

	return &c
}

var (
	ErrInvalidInput    = &Error{Key: "INVALID_INPUT", Status: http.StatusBadRequest}
	ErrInvalidEventID  = &Error{Key: "INVALID_EVENT_ID", Status: http.StatusBadRequest}
	ErrInvalidFolder   = &Error{Key: "INVALID_FOLDER", Status: http.StatusBadRequest}
	ErrInvalidFilename = &Error{Key: "INVALID_FILENAME", Status: http.StatusBadRequest}

	// Wrong or missing admin secret: identity is simply absent, ask again.
	ErrAuthRequired = &Error{Key: "AUTHORIZATION_REQUIRED", Status: http.StatusUnauthorized}
	// Wrong guest secret or insufficient level: forbidden, not "try again".
	ErrAuthForbidden = &Error{Key: "AUTHORIZATION_REQUIRED", Status: http.StatusForbidden}

	ErrGuestDownloadsDisabled = &Error{Key: "GUEST_DOWNLOADS_DISABLED", Status: http.StatusForbidden}
	ErrGuestUploadsDisabled   = &Error{Key: "GUEST_UPLOADS_DISABLED", Status: http.StatusForbidden}
	ErrGuestAccessDisabled    = &Error{Key: "GUEST_ACCESS_DISABLED", Status: http.StatusForbidden}

	ErrEventNotFound    = &Error{Key: "EVENT_NOT_FOUND", Status: http.StatusNotFound}
	ErrFileNotFound     = &Error{Key: "FILE_NOT_FOUND", Status: http.StatusNotFound}
	ErrFolderNotFound   = &Error{Key: "FOLDER_NOT_FOUND", Status: http.StatusNotFound}
	ErrNoFilesAvailable = &Error{Key: "NO_FILES_AVAILABLE", Status: http.StatusNotFound}

	ErrEventIDTaken          = &Error{Key: "EVENT_ID_TAKEN", Status: http.StatusConflict}
	ErrFolderAlreadyExists   = &Error{Key: "FOLDER_ALREADY_EXISTS", Status: http.StatusConflict}
	ErrEventCreationDisabled = &Error{Key: "EVENT_CREATION_DISABLED", Status: http.StatusForbidden}

	ErrTooManyRequests = &Error{
		Key:     "TOO_MANY_REQUESTS",
		Status:  http.StatusTooManyRequests,
		Message: "Too many requests, please try again later.",
	}

	ErrUnsupportedFileType = &Error{Key: "UNSUPPORTED_FILE_TYPE", Status: http.StatusUnsupportedMediaType}

	// Per-file rejections inside a partial-success upload.
	ErrFileTooLarge      = &Error{Key: "FILE_TOO_LARGE", Status: http.StatusRequestEntityTooLarge}
	ErrTotalSizeExceeded = &Error{Key: "TOTAL_SIZE_EXCEEDED", Status: http.StatusRequestEntityTooLarge}
)

// InvalidInput reports a 400 validation failure on a single payload property.
func InvalidInput(property string) *Error {
	return ErrInvalidInput.WithProperty(property)
}
