package httphandler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/eventdrop/eventdrop/internal/common"
)

// NewArchiveHandler streams a zip of a folder subtree. Archives are a
// point-in-time snapshot, so every caching layer is told not to keep them.
func NewArchiveHandler(resolver *Resolver, srv ArchiveService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ArchiveHandler"))

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

		folder := queryFolder(r.URL.Query())

		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ev.ID+".zip"))
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Surrogate-Control", "no-store")
		w.Header().Set("Expires", "0")

		if err := srv.WriteZip(r.Context(), w, ev, folder); err != nil {
			// NO_FILES_AVAILABLE and folder validation fire before the
			// first byte, so the error response is still writable.
			var apiErr *common.Error
			if errors.As(err, &apiErr) {
				resetCacheHeaders(w)
				writeError(w, log, err)

				return
			}

			log.Error("Archive aborted",
				slog.String("event_id", ev.ID), slog.String("folder", folder), slog.Any("error", err))
		}
	}
}

func resetCacheHeaders(w http.ResponseWriter) {
	w.Header().Del("Content-Disposition")
	w.Header().Del("Surrogate-Control")
	w.Header().Del("Expires")
	w.Header().Del("Pragma")
	w.Header().Set("Cache-Control", "no-store")
}
