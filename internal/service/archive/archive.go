package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/eventdrop/eventdrop/internal/common"
	"github.com/eventdrop/eventdrop/internal/entity"
	"github.com/spf13/afero"
)

const (
	serviceName = "archive"
)

type Storage interface {
	WalkFiles(eventID, folder string, fn func(relPath string, info os.FileInfo, open func() (afero.File, error)) error) error
}

// ArchiveService streams zip bundles of folder subtrees. The archive is
// written entry by entry straight into w; nothing is materialized on disk
// or buffered beyond the current file.
type ArchiveService struct {
	storage Storage
	log     *slog.Logger
}

func NewArchiveService(storage Storage, log *slog.Logger) *ArchiveService {
	return &ArchiveService{
		storage: storage,
		log:     log.With(slog.String("service", serviceName)),
	}
}

type zipEntry struct {
	relPath string
	info    os.FileInfo
	open    func() (afero.File, error)
}

// WriteZip bundles every file under folder, recursive. NO_FILES_AVAILABLE is
// decided before the first byte is written, so the caller can still send 404.
func (s *ArchiveService) WriteZip(ctx context.Context, w io.Writer, ev *entity.Event, folder string) error {
	var entries []zipEntry

	err := s.storage.WalkFiles(ev.ID, folder, func(relPath string, info os.FileInfo, open func() (afero.File, error)) error {
		entries = append(entries, zipEntry{relPath: relPath, info: info, open: open})

		return nil
	})
	if err != nil {
		return fmt.Errorf("cannot collect files: %w", err)
	}

	if len(entries) == 0 {
		return common.ErrNoFilesAvailable
	}

	zw := zip.NewWriter(w)

	for _, entry := range entries {
		// The client going away aborts the stream instead of leaking the walk.
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := s.writeEntry(zw, entry); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("cannot finish archive: %w", err)
	}

	s.log.Info("Archive streamed",
		slog.String("event_id", ev.ID), slog.String("folder", folder), slog.Int("files", len(entries)))

	return nil
}

func (s *ArchiveService) writeEntry(zw *zip.Writer, entry zipEntry) error {
	header, err := zip.FileInfoHeader(entry.info)
	if err != nil {
		return fmt.Errorf("cannot build header for %s: %w", entry.relPath, err)
	}

	header.Name = entry.relPath
	header.Method = zip.Deflate

	ew, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("cannot create entry %s: %w", entry.relPath, err)
	}

	f, err := entry.open()
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", entry.relPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(ew, f); err != nil {
		return fmt.Errorf("cannot write entry %s: %w", entry.relPath, err)
	}

	return nil
}
