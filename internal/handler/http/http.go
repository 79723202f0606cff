package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/eventdrop/eventdrop/internal/common"
	"github.com/eventdrop/eventdrop/internal/entity"
	"github.com/eventdrop/eventdrop/internal/service/access"
	eventsvc "github.com/eventdrop/eventdrop/internal/service/event"
	"github.com/eventdrop/eventdrop/internal/service/preview"
	"github.com/spf13/afero"
)

type EventService interface {
	AllowCreation() bool
	Create(ctx context.Context, payload *eventsvc.CreatePayload) (*entity.Event, error)
	Get(ctx context.Context, id string) (*entity.Event, error)
	Update(ctx context.Context, ev *entity.Event, patch *eventsvc.UpdatePayload) (*entity.Event, error)
	Delete(ctx context.Context, id string) error
}

type AccessService interface {
	Resolve(ctx context.Context, ev *entity.Event, claim *access.Claim, client string) (entity.AccessLevel, error)
	RequireAdmin(level entity.AccessLevel) error
	RequireGuest(ev *entity.Event, level entity.AccessLevel) error
	CanDownload(ev *entity.Event, level entity.AccessLevel) error
	CanUpload(ev *entity.Event, level entity.AccessLevel) error
}

type FileService interface {
	List(ctx context.Context, ev *entity.Event, folder string) (*entity.FolderListing, error)
	EnsureFolder(ctx context.Context, ev *entity.Event, folder string) error
	SaveFile(ctx context.Context, ev *entity.Event, folder, name, contentType string, r io.Reader) (*entity.StoredFile, error)
	Download(ctx context.Context, ev *entity.Event, folder, name string) (afero.File, *entity.StoredFile, string, error)
	Delete(ctx context.Context, ev *entity.Event, folder, name string) error
	RenameFolder(ctx context.Context, ev *entity.Event, from, to string) error
}

type ArchiveService interface {
	WriteZip(ctx context.Context, w io.Writer, ev *entity.Event, folder string) error
}

type PreviewService interface {
	Load(ctx context.Context, ev *entity.Event, folder, name string) (image.Image, error)
	Encode(w io.Writer, img image.Image, params *preview.Params) error
}

// errorBody is the wire shape of every failure: {errorKey, property?, message?}.
type errorBody struct {
	ErrorKey string `json:"errorKey"`
	Property string `json:"property,omitempty"`
	Message  string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("Cannot encode response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var apiErr *common.Error
	if errors.As(err, &apiErr) {
		writeJSON(w, log, apiErr.Status, errorBody{
			ErrorKey: apiErr.Key,
			Property: apiErr.Property,
			Message:  apiErr.Message,
		})

		return
	}

	log.Error("Request failed", slog.Any("error", err))
	writeJSON(w, log, http.StatusInternalServerError, errorBody{ErrorKey: "INTERNAL_ERROR"})
}

// parseClaim extracts the credential from Basic auth, where the username is
// literally "admin" or "guest". A missing or malformed header is no claim.
func parseClaim(r *http.Request) *access.Claim {
	role, secret, ok := r.BasicAuth()
	if !ok {
		return nil
	}

	return &access.Claim{Role: role, Secret: secret}
}

// clientIdentity keys the login throttle. The edge proxy fronting the core
// forwards the original address.
func clientIdentity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")

		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// Resolver is the shared front half of every event-scoped handler: event
// lookup first, then the throttle-gated credential resolution. Existence is
// checked before authorization here because the event record is the input to
// the access decision; file existence stays behind authorization.
type Resolver struct {
	events EventService
	access AccessService
}

func NewResolver(events EventService, access AccessService) *Resolver {
	return &Resolver{events: events, access: access}
}

func (rs *Resolver) Resolve(r *http.Request) (*entity.Event, entity.AccessLevel, error) {
	ev, err := rs.events.Get(r.Context(), r.PathValue("eventId"))
	if err != nil {
		return nil, entity.AccessUnauthenticated, err
	}

	level, err := rs.access.Resolve(r.Context(), ev, parseClaim(r), clientIdentity(r))
	if err != nil {
		return nil, entity.AccessUnauthenticated, err
	}

	return ev, level, nil
}

func queryFolder(query url.Values) string {
	return query.Get("folder")
}
