package httphandler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/eventdrop/eventdrop/internal/common"
	"github.com/eventdrop/eventdrop/internal/entity"
	eventsvc "github.com/eventdrop/eventdrop/internal/service/event"
)

// ConfigResponse advertises instance-level policy to the client.
type ConfigResponse struct {
	AllowedDomains     []string `json:"allowedDomains"`
	SupportSubdomain   bool     `json:"supportSubdomain"`
	AllowEventCreation bool     `json:"allowEventCreation"`
}

func NewConfigHandler(cfg ConfigResponse, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ConfigHandler"))

	if cfg.AllowedDomains == nil {
		cfg.AllowedDomains = []string{}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, log, http.StatusOK, cfg)
	}
}

func NewCreateEventHandler(srv EventService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "CreateEventHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var payload eventsvc.CreatePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, log, common.InvalidInput("body"))

			return
		}

		ev, err := srv.Create(r.Context(), &payload)
		if err != nil {
			writeError(w, log, err)

			return
		}

		writeJSON(w, log, http.StatusOK, ev.Info(entity.AccessUnauthenticated))
	}
}

func NewGetEventHandler(resolver *Resolver, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "GetEventHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		ev, level, err := resolver.Resolve(r)
		if err != nil {
			writeError(w, log, err)

			return
		}

		writeJSON(w, log, http.StatusOK, ev.Info(level))
	}
}

type updateEventResponse struct {
	*entity.EventInfo
	OK bool `json:"ok"`
}

func NewUpdateEventHandler(resolver *Resolver, srv EventService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "UpdateEventHandler"))

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

		var patch eventsvc.UpdatePayload
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, log, common.InvalidInput("body"))

			return
		}

		updated, err := srv.Update(r.Context(), ev, &patch)
		if err != nil {
			writeError(w, log, err)

			return
		}

		writeJSON(w, log, http.StatusOK, updateEventResponse{
			EventInfo: updated.Info(level),
			OK:        true,
		})
	}
}

type deleteEventResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func NewDeleteEventHandler(resolver *Resolver, srv EventService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "DeleteEventHandler"))

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

		if err := srv.Delete(r.Context(), ev.ID); err != nil {
			writeError(w, log, err)

			return
		}

		writeJSON(w, log, http.StatusOK, deleteEventResponse{
			OK:      true,
			Message: "Event and all stored files have been deleted",
		})
	}
}
