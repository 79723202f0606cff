package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/eventdrop/eventdrop/internal/common"
	"github.com/eventdrop/eventdrop/internal/entity"
	"github.com/redis/go-redis/v9"
)

const (
	KeyEvent     = "ev" // HASH. ev:{eventId} field: value
	KeySeparator = ":"

	fieldID                 = "id"
	fieldName               = "name"
	fieldDescription        = "description"
	fieldAdminHash          = "admin_hash"
	fieldGuestHash          = "guest_hash"
	fieldMimeTypes          = "mime_types"
	fieldAllowGuestDownload = "allow_guest_download"
	fieldAllowGuestUpload   = "allow_guest_upload"
	fieldMaxFileSize        = "max_file_size"
	fieldMaxTotalSize       = "max_total_size"
	fieldCreatedAt          = "created_at"
	fieldUpdatedAt          = "updated_at"

	mimeTypesSeparator = "\n"
)

// EventRepository persists event records as one redis hash per event.
type EventRepository struct {
	cl  redis.Cmdable
	log *slog.Logger
}

func NewEventRepository(cl redis.Cmdable, log *slog.Logger) *EventRepository {
	return &EventRepository{
		cl:  cl,
		log: log.With(slog.String("item", "EventRepository")),
	}
}

// Create reserves the slug and stores the record. The HSetNX on the id field
// is the atomic reservation step: exactly one concurrent creator wins.
func (r *EventRepository) Create(ctx context.Context, ev *entity.Event) error {
	key := getKey(KeyEvent, ev.ID)

	ok, err := r.cl.HSetNX(ctx, key, fieldID, ev.ID).Result()
	if err != nil {
		return fmt.Errorf("cannot reserve event id: %w", err)
	}

	if !ok {
		return common.ErrEventIDTaken
	}

	if _, err := r.cl.HSet(ctx, key, marshalEvent(ev)).Result(); err != nil {
		// Release the reservation, otherwise the half-written hash blocks
		// the slug forever.
		if _, derr := r.cl.Del(ctx, key).Result(); derr != nil {
			r.log.Error("Cannot release reserved event id",
				slog.String("event_id", ev.ID), slog.Any("error", derr))
		}

		return fmt.Errorf("cannot save event: %w", err)
	}

	return nil
}

func (r *EventRepository) Get(ctx context.Context, id string) (*entity.Event, error) {
	fields, err := r.cl.HGetAll(ctx, getKey(KeyEvent, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get event: %w", err)
	}

	if len(fields) < 1 {
		return nil, common.ErrEventNotFound
	}

	return unmarshalEvent(fields), nil
}

func (r *EventRepository) Update(ctx context.Context, ev *entity.Event) error {
	key := getKey(KeyEvent, ev.ID)

	exists, err := r.cl.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("cannot check event: %w", err)
	}

	if exists < 1 {
		return common.ErrEventNotFound
	}

	if _, err := r.cl.HSet(ctx, key, marshalEvent(ev)).Result(); err != nil {
		return fmt.Errorf("cannot update event: %w", err)
	}

	return nil
}

func (r *EventRepository) Delete(ctx context.Context, id string) error {
	count, err := r.cl.Del(ctx, getKey(KeyEvent, id)).Result()
	if err != nil {
		return fmt.Errorf("cannot delete event: %w", err)
	}

	if count < 1 {
		return common.ErrEventNotFound
	}

	return nil
}

func marshalEvent(ev *entity.Event) map[string]any {
	return map[string]any{
		fieldID:                 ev.ID,
		fieldName:               ev.Name,
		fieldDescription:        ev.Description,
		fieldAdminHash:          ev.AdminSecretHash,
		fieldGuestHash:          ev.GuestSecretHash,
		fieldMimeTypes:          strings.Join(ev.AllowedMimeTypes, mimeTypesSeparator),
		fieldAllowGuestDownload: boolToField(ev.AllowGuestDownload),
		fieldAllowGuestUpload:   boolToField(ev.AllowGuestUpload),
		fieldMaxFileSize:        strconv.FormatInt(ev.UploadMaxFileSizeBytes, 10),
		fieldMaxTotalSize:       strconv.FormatInt(ev.UploadMaxTotalSizeBytes, 10),
		fieldCreatedAt:          strconv.FormatInt(ev.CreatedAt.UnixMilli(), 10),
		fieldUpdatedAt:          strconv.FormatInt(ev.UpdatedAt.UnixMilli(), 10),
	}
}

func unmarshalEvent(fields map[string]string) *entity.Event {
	ev := &entity.Event{
		ID:                 fields[fieldID],
		Name:               fields[fieldName],
		Description:        fields[fieldDescription],
		AdminSecretHash:    fields[fieldAdminHash],
		GuestSecretHash:    fields[fieldGuestHash],
		AllowGuestDownload: fields[fieldAllowGuestDownload] == "1",
		AllowGuestUpload:   fields[fieldAllowGuestUpload] == "1",
	}

	if v := fields[fieldMimeTypes]; v != "" {
		ev.AllowedMimeTypes = strings.Split(v, mimeTypesSeparator)
	}

	ev.UploadMaxFileSizeBytes, _ = strconv.ParseInt(fields[fieldMaxFileSize], 10, 64)
	ev.UploadMaxTotalSizeBytes, _ = strconv.ParseInt(fields[fieldMaxTotalSize], 10, 64)

	if ms, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64); err == nil {
		ev.CreatedAt = time.UnixMilli(ms).UTC()
	}
	if ms, err := strconv.ParseInt(fields[fieldUpdatedAt], 10, 64); err == nil {
		ev.UpdatedAt = time.UnixMilli(ms).UTC()
	}

	return ev
}

func boolToField(v bool) string {
	if v {
		return "1"
	}

	return "0"
}

func getKey(keys ...string) string {
	return strings.Join(keys, KeySeparator)
}
