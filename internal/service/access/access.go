package access

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eventdrop/eventdrop/internal/common"
	"github.com/eventdrop/eventdrop/internal/entity"
)

const (
	serviceName = "access"

	RoleAdmin = "admin"
	RoleGuest = "guest"
)

// Claim is the credential a request presented, parsed from Basic auth.
// A nil *Claim means no credential at all.
type Claim struct {
	Role   string
	Secret string
}

type ThrottleRepository interface {
	Fail(ctx context.Context, eventID, client, role string) (int64, error)
	Count(ctx context.Context, eventID, client, role string) (int64, error)
	Reset(ctx context.Context, eventID, client, role string) error
}

// AccessService resolves a claim against an event into an access level,
// gating every secret comparison behind the login throttle.
type AccessService struct {
	throttle  ThrottleRepository
	threshold int64
	log       *slog.Logger
}

func NewAccessService(throttle ThrottleRepository, threshold int, log *slog.Logger) *AccessService {
	return &AccessService{
		throttle:  throttle,
		threshold: int64(threshold),
		log:       log.With(slog.String("service", serviceName)),
	}
}

// Resolve implements the authorization decision table.
//
// A wrong admin secret is treated as absence of identity (401): the admin
// credential is the sole source of truth, so failing it means "ask again".
// A wrong guest secret is forbidden (403): guest identity is secondary, so
// failing it is a final answer, not a challenge. This asymmetry is a product
// decision and must not be normalized.
func (s *AccessService) Resolve(ctx context.Context, ev *entity.Event, claim *Claim, client string) (entity.AccessLevel, error) {
	if claim == nil {
		return entity.AccessUnauthenticated, nil
	}

	switch claim.Role {
	case RoleAdmin:
		return s.resolveAdmin(ctx, ev, claim, client)
	case RoleGuest:
		return s.resolveGuest(ctx, ev, claim, client)
	default:
		return entity.AccessUnauthenticated, common.ErrAuthRequired
	}
}

func (s *AccessService) resolveAdmin(ctx context.Context, ev *entity.Event, claim *Claim, client string) (entity.AccessLevel, error) {
	if err := s.gate(ctx, ev.ID, client, RoleAdmin); err != nil {
		return entity.AccessUnauthenticated, err
	}

	if !verifySecret(ev.AdminSecretHash, claim.Secret) {
		s.fail(ctx, ev.ID, client, RoleAdmin)

		return entity.AccessUnauthenticated, common.ErrAuthRequired
	}

	s.reset(ctx, ev.ID, client, RoleAdmin)

	return entity.AccessAdmin, nil
}

func (s *AccessService) resolveGuest(ctx context.Context, ev *entity.Event, claim *Claim, client string) (entity.AccessLevel, error) {
	// An unsecured event has no guest secret to compare against; the
	// credential is ignored and the caller stays unauthenticated, which
	// already carries guest-level power on such events.
	if !ev.Secured() {
		return entity.AccessUnauthenticated, nil
	}

	if err := s.gate(ctx, ev.ID, client, RoleGuest); err != nil {
		return entity.AccessUnauthenticated, err
	}

	if !verifySecret(ev.GuestSecretHash, claim.Secret) {
		s.fail(ctx, ev.ID, client, RoleGuest)

		return entity.AccessUnauthenticated, common.ErrAuthForbidden
	}

	s.reset(ctx, ev.ID, client, RoleGuest)

	return entity.AccessGuest, nil
}

// gate short-circuits with 429 before any secret comparison once the
// failed-attempt count for the current window reaches the threshold.
func (s *AccessService) gate(ctx context.Context, eventID, client, role string) error {
	count, err := s.throttle.Count(ctx, eventID, client, role)
	if err != nil {
		return fmt.Errorf("cannot check attempt counter: %w", err)
	}

	if count >= s.threshold {
		s.log.Warn("Login throttled",
			slog.String("event_id", eventID), slog.String("client", client), slog.String("role", role))

		return common.ErrTooManyRequests
	}

	return nil
}

func (s *AccessService) fail(ctx context.Context, eventID, client, role string) {
	if _, err := s.throttle.Fail(ctx, eventID, client, role); err != nil {
		s.log.Error("Cannot record failed attempt", slog.String("event_id", eventID), slog.Any("error", err))
	}
}

func (s *AccessService) reset(ctx context.Context, eventID, client, role string) {
	if err := s.throttle.Reset(ctx, eventID, client, role); err != nil {
		s.log.Error("Cannot reset attempt counter", slog.String("event_id", eventID), slog.Any("error", err))
	}
}

// RequireAdmin admits only a fully authenticated admin. An authenticated
// guest gets 403, everyone else 401.
func (s *AccessService) RequireAdmin(level entity.AccessLevel) error {
	switch level {
	case entity.AccessAdmin:
		return nil
	case entity.AccessGuest:
		return common.ErrAuthForbidden
	default:
		return common.ErrAuthRequired
	}
}

// RequireGuest admits admin, guest, and unauthenticated callers on
// unsecured events.
func (s *AccessService) RequireGuest(ev *entity.Event, level entity.AccessLevel) error {
	if level == entity.AccessAdmin || level == entity.AccessGuest {
		return nil
	}

	if !ev.Secured() {
		return nil
	}

	return common.ErrAuthRequired
}

// CanDownload layers the allowGuestDownload policy on top of RequireGuest.
func (s *AccessService) CanDownload(ev *entity.Event, level entity.AccessLevel) error {
	if err := s.RequireGuest(ev, level); err != nil {
		return err
	}

	if level == entity.AccessAdmin || !ev.Secured() {
		return nil
	}

	if !ev.AllowGuestDownload {
		return common.ErrGuestDownloadsDisabled
	}

	return nil
}

// CanUpload layers the allowGuestUpload policy on top of RequireGuest.
func (s *AccessService) CanUpload(ev *entity.Event, level entity.AccessLevel) error {
	if err := s.RequireGuest(ev, level); err != nil {
		return err
	}

	if level == entity.AccessAdmin {
		return nil
	}

	if !ev.AllowGuestUpload {
		return common.ErrGuestUploadsDisabled
	}

	return nil
}
