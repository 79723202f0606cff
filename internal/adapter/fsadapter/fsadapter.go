package fsadapter

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/eventdrop/eventdrop/internal/common"
	"github.com/eventdrop/eventdrop/internal/entity"
	"github.com/spf13/afero"
)

const (
	mimeTypeUnknown       = "application/octet-stream"
	mimeTypeCheckPartSize = 512

	// Upper bound on the dedup suffix loop. Reaching it means something is
	// generating pathological collisions; give up instead of spinning.
	maxDedupAttempts = 10000

	dirPerm  = 0o755
	filePerm = 0o644
)

// FSAdapter is the event-partitioned file store. Every event owns the subtree
// {root}/{eventID}; folders below it are plain directories, so a folder exists
// exactly as long as something is inside it or it was created explicitly.
type FSAdapter struct {
	fs   afero.Fs
	root string
	log  *slog.Logger
}

func NewFSAdapter(root string, log *slog.Logger) (*FSAdapter, error) {
	return NewFSAdapterWithFS(afero.NewOsFs(), root, log)
}

func NewFSAdapterWithFS(fs afero.Fs, root string, log *slog.Logger) (*FSAdapter, error) {
	if root == "" {
		return nil, fmt.Errorf("cannot create adapter: empty root")
	}

	if err := fs.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("cannot create root dir: %w", err)
	}

	return &FSAdapter{
		fs:   fs,
		root: root,
		log:  log.With(slog.String("item", "FSAdapter")),
	}, nil
}

func (a *FSAdapter) eventDir(eventID string) string {
	return filepath.Join(a.root, eventID)
}

func (a *FSAdapter) folderDir(eventID string, segments []string) string {
	return filepath.Join(append([]string{a.eventDir(eventID)}, segments...)...)
}

// List returns the immediate files and immediate subfolder names of folder.
// A folder nobody has written to yet lists as empty.
func (a *FSAdapter) List(eventID, folder string) (*entity.FolderListing, error) {
	segments, err := SplitFolder(folder)
	if err != nil {
		return nil, err
	}

	listing := &entity.FolderListing{
		Folder:  folder,
		Folders: []string{},
		Files:   []entity.StoredFile{},
	}

	entries, err := afero.ReadDir(a.fs, a.folderDir(eventID, segments))
	if err != nil {
		if os.IsNotExist(err) {
			return listing, nil
		}

		return nil, fmt.Errorf("cannot read folder: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			listing.Folders = append(listing.Folders, entry.Name())

			continue
		}

		listing.Files = append(listing.Files, entity.StoredFile{
			Name:      entry.Name(),
			Folder:    folder,
			Size:      entry.Size(),
			CreatedAt: entry.ModTime(),
		})
	}

	return listing, nil
}

// EnsureFolder materializes an empty folder, as requested by the upload
// "from" field.
func (a *FSAdapter) EnsureFolder(eventID, folder string) error {
	segments, err := SplitFolder(folder)
	if err != nil {
		return err
	}

	if err := a.fs.MkdirAll(a.folderDir(eventID, segments), dirPerm); err != nil {
		return fmt.Errorf("cannot create folder: %w", err)
	}

	return nil
}

// Save streams r into (folder, name), deriving a dedup name on collision.
// The O_EXCL open reserves the final name atomically, so two concurrent
// uploads of the same name can never end up on the same stored file. When
// limit is positive and the stream exceeds it, the partial file is removed
// and FILE_TOO_LARGE is returned.
func (a *FSAdapter) Save(eventID, folder, name string, r io.Reader, limit int64) (*entity.StoredFile, error) {
	segments, err := SplitFolder(folder)
	if err != nil {
		return nil, err
	}

	if err := ValidateFilename(name); err != nil {
		return nil, err
	}

	dir := a.folderDir(eventID, segments)
	if err := a.fs.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("cannot create folder: %w", err)
	}

	finalName := name
	var f afero.File
	for n := 1; ; n++ {
		f, err = a.fs.OpenFile(filepath.Join(dir, finalName), os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
		if err == nil {
			break
		}

		if !os.IsExist(err) {
			return nil, fmt.Errorf("cannot create file: %w", err)
		}

		if n > maxDedupAttempts {
			return nil, fmt.Errorf("cannot find free name for %s: %w", name, err)
		}

		finalName = dedupName(name, n)
	}

	written, err := a.copyLimited(f, r, limit)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		// Reclaim the reserved name so a later upload can use it again.
		if rerr := a.fs.Remove(filepath.Join(dir, finalName)); rerr != nil {
			a.log.Error("Cannot remove partial file", slog.String("name", finalName), slog.Any("error", rerr))
		}

		return nil, err
	}

	stat, err := a.fs.Stat(filepath.Join(dir, finalName))
	if err != nil {
		return nil, fmt.Errorf("cannot stat stored file: %w", err)
	}

	return &entity.StoredFile{
		Name:      finalName,
		Folder:    folder,
		Size:      written,
		CreatedAt: stat.ModTime(),
	}, nil
}

func (a *FSAdapter) copyLimited(w io.Writer, r io.Reader, limit int64) (int64, error) {
	if limit <= 0 {
		written, err := io.Copy(w, r)
		if err != nil {
			return 0, fmt.Errorf("cannot write file: %w", err)
		}

		return written, nil
	}

	written, err := io.Copy(w, io.LimitReader(r, limit+1))
	if err != nil {
		return 0, fmt.Errorf("cannot write file: %w", err)
	}

	if written > limit {
		return 0, common.ErrFileTooLarge
	}

	return written, nil
}

// Open resolves (folder, name) for download. The caller closes the file.
func (a *FSAdapter) Open(eventID, folder, name string) (afero.File, *entity.StoredFile, error) {
	segments, err := SplitFolder(folder)
	if err != nil {
		return nil, nil, err
	}

	if err := ValidateFilename(name); err != nil {
		return nil, nil, err
	}

	fullPath := filepath.Join(a.folderDir(eventID, segments), name)

	stat, err := a.fs.Stat(fullPath)
	if err != nil || stat.IsDir() {
		return nil, nil, common.ErrFileNotFound
	}

	f, err := a.fs.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, common.ErrFileNotFound
		}

		return nil, nil, fmt.Errorf("cannot open file: %w", err)
	}

	return f, &entity.StoredFile{
		Name:      name,
		Folder:    folder,
		Size:      stat.Size(),
		CreatedAt: stat.ModTime(),
	}, nil
}

func (a *FSAdapter) Remove(eventID, folder, name string) error {
	segments, err := SplitFolder(folder)
	if err != nil {
		return err
	}

	if err := ValidateFilename(name); err != nil {
		return err
	}

	fullPath := filepath.Join(a.folderDir(eventID, segments), name)

	stat, err := a.fs.Stat(fullPath)
	if err != nil || stat.IsDir() {
		return common.ErrFileNotFound
	}

	if err := a.fs.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return common.ErrFileNotFound
		}

		return fmt.Errorf("cannot remove file: %w", err)
	}

	return nil
}

// RenameFolder re-parents everything under from to to. The destination must
// not already exist.
func (a *FSAdapter) RenameFolder(eventID, from, to string) error {
	fromSegments, err := SplitFolder(from)
	if err != nil {
		return err
	}

	toSegments, err := SplitFolder(to)
	if err != nil {
		return err
	}

	if len(fromSegments) == 0 || len(toSegments) == 0 {
		return fmt.Errorf("%w: cannot rename the root folder", common.ErrInvalidFolder)
	}

	if from == to || strings.HasPrefix(to+"/", from+"/") {
		return fmt.Errorf("%w: cannot move a folder into itself", common.ErrInvalidFolder)
	}

	fromDir := a.folderDir(eventID, fromSegments)
	toDir := a.folderDir(eventID, toSegments)

	stat, err := a.fs.Stat(fromDir)
	if err != nil || !stat.IsDir() {
		return common.ErrFolderNotFound
	}

	if _, err := a.fs.Stat(toDir); err == nil {
		return common.ErrFolderAlreadyExists
	}

	if err := a.fs.MkdirAll(filepath.Dir(toDir), dirPerm); err != nil {
		return fmt.Errorf("cannot create parent folder: %w", err)
	}

	if err := a.fs.Rename(fromDir, toDir); err != nil {
		return fmt.Errorf("cannot rename folder: %w", err)
	}

	return nil
}

// Purge removes an event's entire namespace. Called on event deletion.
func (a *FSAdapter) Purge(eventID string) error {
	if err := a.fs.RemoveAll(a.eventDir(eventID)); err != nil {
		return fmt.Errorf("cannot purge event storage: %w", err)
	}

	return nil
}

// Usage returns the cumulative size of every file stored under the event.
func (a *FSAdapter) Usage(eventID string) (int64, error) {
	var total int64

	err := afero.Walk(a.fs, a.eventDir(eventID), func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}

			return err
		}

		if !info.IsDir() {
			total += info.Size()
		}

		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("cannot walk event storage: %w", err)
	}

	return total, nil
}

// WalkFiles visits every file under folder (recursive, sorted path order)
// with its path relative to folder. Used for zip bundling.
func (a *FSAdapter) WalkFiles(eventID, folder string, fn func(relPath string, info os.FileInfo, open func() (afero.File, error)) error) error {
	segments, err := SplitFolder(folder)
	if err != nil {
		return err
	}

	base := a.folderDir(eventID, segments)

	var paths []string
	err = afero.Walk(a.fs, base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}

			return err
		}

		if !info.IsDir() {
			paths = append(paths, path)
		}

		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("cannot walk folder: %w", err)
	}

	sort.Strings(paths)

	for _, path := range paths {
		info, err := a.fs.Stat(path)
		if err != nil {
			continue
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return fmt.Errorf("cannot build relative path: %w", err)
		}

		open := func() (afero.File, error) {
			return a.fs.Open(path)
		}

		if err := fn(filepath.ToSlash(rel), info, open); err != nil {
			return err
		}
	}

	return nil
}

// MimeType resolves a stored file's content type from its extension, falling
// back to content sniffing.
func (a *FSAdapter) MimeType(eventID, folder, name string) (string, error) {
	if ext := filepath.Ext(name); ext != "" {
		if mimeType := mime.TypeByExtension(ext); mimeType != "" {
			return mimeType, nil
		}
	}

	f, _, err := a.Open(eventID, folder, name)
	if err != nil {
		return mimeTypeUnknown, err
	}
	defer f.Close()

	buffer := make([]byte, mimeTypeCheckPartSize)
	n, err := f.Read(buffer)
	if err != nil && err != io.EOF {
		return mimeTypeUnknown, err
	}

	return http.DetectContentType(buffer[:n]), nil
}
