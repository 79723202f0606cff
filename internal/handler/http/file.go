package httphandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/eventdrop/eventdrop/internal/common"
	"github.com/eventdrop/eventdrop/internal/entity"
	"github.com/eventdrop/eventdrop/internal/service/preview"
	"github.com/eventdrop/eventdrop/internal/util"
)

const (
	// Stored files are immutable once written (dedup naming instead of
	// overwrite), so downloads and previews can be cached for a year.
	cacheControlImmutable = "public, max-age=31536000, immutable"

	maxFieldSize = 4 << 10
)

func NewListFilesHandler(resolver *Resolver, srv FileService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ListFilesHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		ev, level, err := resolver.Resolve(r)
		if err != nil {
			writeError(w, log, err)

			return
		}

		if err := resolver.access.CanDownload(ev, level); err != nil {
			writeError(w, log, err)

			return
		}

		listing, err := srv.List(r.Context(), ev, queryFolder(r.URL.Query()))
		if err != nil {
			writeError(w, log, err)

			return
		}

		writeJSON(w, log, http.StatusOK, listing)
	}
}

type uploadResponse struct {
	Message  string                `json:"message"`
	Uploaded int                   `json:"uploaded"`
	Rejected []entity.RejectedFile `json:"rejected"`
}

// NewUploadHandler streams a multipart request part by part. The optional
// "from" field selects (and materializes) the target folder for all file
// parts that follow it; part order is the client's contract, so file parts
// preceding the field land in the root. Every file succeeds or is rejected
// on its own.
func NewUploadHandler(resolver *Resolver, srv FileService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "UploadHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		ev, level, err := resolver.Resolve(r)
		if err != nil {
			writeError(w, log, err)

			return
		}

		if err := resolver.access.CanUpload(ev, level); err != nil {
			writeError(w, log, err)

			return
		}

		mr, err := r.MultipartReader()
		if err != nil {
			writeError(w, log, common.InvalidInput("body"))

			return
		}

		var (
			folder   string
			uploaded int
			rejected = []entity.RejectedFile{}
		)

		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				writeError(w, log, common.InvalidInput("body"))

				return
			}

			if part.FileName() == "" {
				if part.FormName() == "from" {
					folder, err = readFolderField(r, resolver, ev, part, srv)
					if err != nil {
						writeError(w, log, err)

						return
					}
				}

				continue
			}

			name := path.Base(strings.ReplaceAll(part.FileName(), `\`, "/"))

			stored, err := srv.SaveFile(r.Context(), ev, folder, name, part.Header.Get("Content-Type"), part)
			part.Close()
			if err != nil {
				// A deleted event invalidates the whole request, not one file.
				if errors.Is(err, common.ErrEventNotFound) {
					writeError(w, log, err)

					return
				}

				var apiErr *common.Error
				if errors.As(err, &apiErr) {
					rejected = append(rejected, entity.RejectedFile{File: name, Reason: apiErr.Key})

					continue
				}

				writeError(w, log, err)

				return
			}

			log.Info("File uploaded",
				slog.String("event_id", ev.ID), slog.String("name", stored.Name), slog.Int64("size", stored.Size))
			uploaded++
		}

		writeJSON(w, log, http.StatusOK, uploadResponse{
			Message:  fmt.Sprintf("%d file(s) uploaded", uploaded),
			Uploaded: uploaded,
			Rejected: rejected,
		})
	}
}

func readFolderField(r *http.Request, resolver *Resolver, ev *entity.Event, part *multipart.Part, srv FileService) (string, error) {
	defer part.Close()

	value, err := io.ReadAll(io.LimitReader(part, maxFieldSize))
	if err != nil {
		return "", common.InvalidInput("from")
	}

	folder := string(value)

	// Materialize the target so the folder exists even if every file part
	// that follows is rejected.
	if err := srv.EnsureFolder(r.Context(), ev, folder); err != nil {
		return "", err
	}

	return folder, nil
}

// splitFilePath splits a /files/{path...} tail into folder and filename, and
// reports whether the request addresses the preview of the file.
func splitFilePath(pathValue string) (folder, name string, preview bool) {
	segments := strings.Split(pathValue, "/")

	if len(segments) >= 2 && segments[len(segments)-1] == "preview" {
		preview = true
		segments = segments[:len(segments)-1]
	}

	name = segments[len(segments)-1]
	folder = strings.Join(segments[:len(segments)-1], "/")

	return folder, name, preview
}

func NewDownloadHandler(resolver *Resolver, srv FileService, previews PreviewService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "DownloadHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		ev, level, err := resolver.Resolve(r)
		if err != nil {
			writeError(w, log, err)

			return
		}

		if err := resolver.access.CanDownload(ev, level); err != nil {
			writeError(w, log, err)

			return
		}

		folder, name, preview := splitFilePath(r.PathValue("path"))
		if preview {
			servePreview(w, r, ev, folder, name, previews, log)

			return
		}

		f, stored, mimeType, err := srv.Download(r.Context(), ev, folder, name)
		if err != nil {
			writeError(w, log, err)

			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", mimeType)
		w.Header().Set("Content-Length", strconv.FormatInt(stored.Size, 10))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", stored.Name))
		w.Header().Set("Cache-Control", cacheControlImmutable)

		if _, err := io.Copy(w, f); err != nil {
			log.Error("Download aborted", slog.String("name", stored.Name), slog.Any("error", err))
		}
	}
}

func servePreview(w http.ResponseWriter, r *http.Request, ev *entity.Event, folder, name string, previews PreviewService, log *slog.Logger) {
	params, err := preview.ParseParams(r.URL.Query())
	if err != nil {
		writeError(w, log, err)

		return
	}

	// Previews are deterministic for fixed parameters, so the identity of
	// the source plus the parameters is a valid strong ETag.
	etag := `"` + util.ETag(ev.ID, folder, name, fmt.Sprintf("%+v", *params)) + `"`
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)

		return
	}

	img, err := previews.Load(r.Context(), ev, folder, name)
	if err != nil {
		writeError(w, log, err)

		return
	}

	w.Header().Set("Content-Type", preview.ContentType(params.Format))
	w.Header().Set("Cache-Control", cacheControlImmutable)
	w.Header().Set("ETag", etag)

	if err := previews.Encode(w, img, params); err != nil {
		log.Error("Preview aborted", slog.String("name", name), slog.Any("error", err))
	}
}

func NewDeleteFileHandler(resolver *Resolver, srv FileService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "DeleteFileHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		ev, level, err := resolver.Resolve(r)
		if err != nil {
			writeError(w, log, err)

			return
		}

		if err := resolver.access.RequireAdmin(level); err != nil {
			writeError(w, log, err)

			return
		}

		folder, name, _ := splitFilePath(r.PathValue("path"))

		if err := srv.Delete(r.Context(), ev, folder, name); err != nil {
			writeError(w, log, err)

			return
		}

		writeJSON(w, log, http.StatusOK, map[string]any{"ok": true})
	}
}

type renameFolderRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func NewRenameFolderHandler(resolver *Resolver, srv FileService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "RenameFolderHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		ev, level, err := resolver.Resolve(r)
		if err != nil {
			writeError(w, log, err)

			return
		}

		if err := resolver.access.RequireAdmin(level); err != nil {
			writeError(w, log, err)

			return
		}

		var req renameFolderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, log, common.InvalidInput("body"))

			return
		}

		if err := srv.RenameFolder(r.Context(), ev, req.From, req.To); err != nil {
			writeError(w, log, err)

			return
		}

		writeJSON(w, log, http.StatusOK, map[string]any{"ok": true})
	}
}
