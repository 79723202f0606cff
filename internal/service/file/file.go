package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"

	"github.com/eventdrop/eventdrop/internal/common"
	"github.com/eventdrop/eventdrop/internal/entity"
	"github.com/spf13/afero"
)

const (
	serviceName = "file"

	mimeTypeUnknown = "application/octet-stream"
)

type Storage interface {
	List(eventID, folder string) (*entity.FolderListing, error)
	EnsureFolder(eventID, folder string) error
	Save(eventID, folder, name string, r io.Reader, limit int64) (*entity.StoredFile, error)
	Open(eventID, folder, name string) (afero.File, *entity.StoredFile, error)
	Remove(eventID, folder, name string) error
	RenameFolder(eventID, from, to string) error
	Usage(eventID string) (int64, error)
	MimeType(eventID, folder, name string) (string, error)
}

// EventChecker re-resolves an event so that deletion racing an in-flight
// operation wins: the operation fails with EVENT_NOT_FOUND instead of
// writing into an orphaned namespace.
type EventChecker interface {
	Get(ctx context.Context, id string) (*entity.Event, error)
}

// FileService implements the per-event hierarchical file store.
type FileService struct {
	storage Storage
	events  EventChecker
	log     *slog.Logger
}

func NewFileService(storage Storage, events EventChecker, log *slog.Logger) *FileService {
	return &FileService{
		storage: storage,
		events:  events,
		log:     log.With(slog.String("service", serviceName)),
	}
}

func (s *FileService) List(_ context.Context, ev *entity.Event, folder string) (*entity.FolderListing, error) {
	listing, err := s.storage.List(ev.ID, folder)
	if err != nil {
		return nil, fmt.Errorf("cannot list folder: %w", err)
	}

	return listing, nil
}

// EnsureFolder materializes the upload "from" target even when no file ends
// up stored in it.
func (s *FileService) EnsureFolder(_ context.Context, ev *entity.Event, folder string) error {
	return s.storage.EnsureFolder(ev.ID, folder)
}

// SaveFile stores one file of a multi-file upload. Each call independently
// succeeds or fails; the handler turns failures into rejection entries.
func (s *FileService) SaveFile(ctx context.Context, ev *entity.Event, folder, name, contentType string, r io.Reader) (*entity.StoredFile, error) {
	if _, err := s.events.Get(ctx, ev.ID); err != nil {
		return nil, err
	}

	if !ev.MimeTypeAllowed(s.effectiveMimeType(name, contentType)) {
		return nil, common.ErrUnsupportedFileType
	}

	limit := ev.UploadMaxFileSizeBytes

	// Cumulative ceiling: whatever the event already holds counts against
	// uploadMaxTotalSizeBytes, so the effective per-file limit may shrink.
	totalLimited := false
	if ev.UploadMaxTotalSizeBytes > 0 {
		usage, err := s.storage.Usage(ev.ID)
		if err != nil {
			return nil, fmt.Errorf("cannot compute event usage: %w", err)
		}

		remaining := ev.UploadMaxTotalSizeBytes - usage
		if remaining <= 0 {
			return nil, common.ErrTotalSizeExceeded
		}

		if limit <= 0 || remaining < limit {
			limit = remaining
			totalLimited = true
		}
	}

	stored, err := s.storage.Save(ev.ID, folder, name, r, limit)
	if err != nil {
		if errors.Is(err, common.ErrFileTooLarge) && totalLimited {
			return nil, common.ErrTotalSizeExceeded
		}

		return nil, err
	}

	s.log.Info("File stored",
		slog.String("event_id", ev.ID), slog.String("folder", folder),
		slog.String("name", stored.Name), slog.Int64("size", stored.Size))

	return stored, nil
}

// Download resolves a stored file to its content stream, metadata and
// content type. The caller closes the stream.
func (s *FileService) Download(_ context.Context, ev *entity.Event, folder, name string) (afero.File, *entity.StoredFile, string, error) {
	f, stored, err := s.storage.Open(ev.ID, folder, name)
	if err != nil {
		return nil, nil, "", err
	}

	mimeType, err := s.storage.MimeType(ev.ID, folder, name)
	if err != nil {
		mimeType = mimeTypeUnknown
	}

	return f, stored, mimeType, nil
}

func (s *FileService) Delete(_ context.Context, ev *entity.Event, folder, name string) error {
	if err := s.storage.Remove(ev.ID, folder, name); err != nil {
		return err
	}

	s.log.Info("File deleted",
		slog.String("event_id", ev.ID), slog.String("folder", folder), slog.String("name", name))

	return nil
}

func (s *FileService) RenameFolder(_ context.Context, ev *entity.Event, from, to string) error {
	if err := s.storage.RenameFolder(ev.ID, from, to); err != nil {
		return err
	}

	s.log.Info("Folder renamed",
		slog.String("event_id", ev.ID), slog.String("from", from), slog.String("to", to))

	return nil
}

// MimeType exposes the stored file's resolved content type; the preview
// service uses it to reject non-image sources.
func (s *FileService) MimeType(_ context.Context, ev *entity.Event, folder, name string) (string, error) {
	return s.storage.MimeType(ev.ID, folder, name)
}

func (s *FileService) effectiveMimeType(name, contentType string) string {
	if contentType != "" && contentType != mimeTypeUnknown {
		return contentType
	}

	if ext := filepath.Ext(name); ext != "" {
		if mimeType := mime.TypeByExtension(ext); mimeType != "" {
			return mimeType
		}
	}

	return mimeTypeUnknown
}
