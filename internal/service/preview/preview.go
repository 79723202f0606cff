package preview

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/eventdrop/eventdrop/internal/common"
	"github.com/eventdrop/eventdrop/internal/entity"
	"github.com/spf13/afero"
)

const (
	serviceName = "preview"

	// MaxDimension bounds w and h; anything larger is rejected, not clamped.
	MaxDimension = 1920

	defaultQuality = 80
)

type Fit string

const (
	FitCover   Fit = "cover"
	FitContain Fit = "contain"
	FitFill    Fit = "fill"
)

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

type Params struct {
	Width   int
	Height  int
	Quality int
	Fit     Fit
	Format  Format
}

// ParseParams validates the w/h/q/fit/format query parameters. Absent w and h
// keep the source dimensions; the transcode still happens.
func ParseParams(values url.Values) (*Params, error) {
	params := &Params{
		Quality: defaultQuality,
		Fit:     FitCover,
		Format:  FormatJPEG,
	}

	var err error

	if params.Width, err = parseDimension(values.Get("w")); err != nil {
		return nil, common.InvalidInput("w")
	}

	if params.Height, err = parseDimension(values.Get("h")); err != nil {
		return nil, common.InvalidInput("h")
	}

	if v := values.Get("q"); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil || q < 1 || q > 100 {
			return nil, common.InvalidInput("q")
		}
		params.Quality = q
	}

	if v := values.Get("fit"); v != "" {
		switch Fit(v) {
		case FitCover, FitContain, FitFill:
			params.Fit = Fit(v)
		default:
			return nil, common.InvalidInput("fit")
		}
	}

	if v := values.Get("format"); v != "" {
		switch strings.ToLower(v) {
		case "jpeg", "jpg":
			params.Format = FormatJPEG
		case "png":
			params.Format = FormatPNG
		case "webp":
			params.Format = FormatWebP
		default:
			return nil, common.InvalidInput("format")
		}
	}

	return params, nil
}

func parseDimension(v string) (int, error) {
	if v == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > MaxDimension {
		return 0, fmt.Errorf("dimension out of range: %s", v)
	}

	return n, nil
}

type FileSource interface {
	Open(eventID, folder, name string) (afero.File, *entity.StoredFile, error)
	MimeType(eventID, folder, name string) (string, error)
}

// PreviewService streams resized/transcoded previews of stored images. The
// transformation is deterministic for fixed parameters, so responses are
// safe to cache forever.
type PreviewService struct {
	storage FileSource
	log     *slog.Logger
}

func NewPreviewService(storage FileSource, log *slog.Logger) *PreviewService {
	return &PreviewService{
		storage: storage,
		log:     log.With(slog.String("service", serviceName)),
	}
}

// ContentType is deterministic per format, so callers can set headers
// before any preview byte is produced.
func ContentType(format Format) string {
	switch format {
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Load resolves and decodes the source image. Everything that can fail with
// a client-visible error happens here, before any response byte is written.
// The source is opened before the mime check: a missing file is FILE_NOT_FOUND
// regardless of its extension.
func (s *PreviewService) Load(_ context.Context, ev *entity.Event, folder, name string) (image.Image, error) {
	f, _, err := s.storage.Open(ev.ID, folder, name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mimeType, err := s.storage.MimeType(ev.ID, folder, name)
	if err != nil {
		return nil, err
	}

	if !strings.HasPrefix(mimeType, "image/") {
		return nil, common.ErrUnsupportedFileType
	}

	img, err := s.decode(f, mimeType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrUnsupportedFileType, name)
	}

	return img, nil
}

// Encode resizes img per params and streams the transcoded result into w.
func (s *PreviewService) Encode(w io.Writer, img image.Image, params *Params) error {
	img = resize(img, params)

	switch params.Format {
	case FormatPNG:
		if err := imaging.Encode(w, img, imaging.PNG); err != nil {
			return fmt.Errorf("cannot encode png: %w", err)
		}
	case FormatWebP:
		if err := webp.Encode(w, img, &webp.Options{Quality: float32(params.Quality)}); err != nil {
			return fmt.Errorf("cannot encode webp: %w", err)
		}
	default:
		if err := imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(params.Quality)); err != nil {
			return fmt.Errorf("cannot encode jpeg: %w", err)
		}
	}

	return nil
}

func (s *PreviewService) decode(r io.Reader, mimeType string) (image.Image, error) {
	if mimeType == "image/webp" {
		return webp.Decode(r)
	}

	return imaging.Decode(r, imaging.AutoOrientation(true))
}

func resize(img image.Image, params *Params) image.Image {
	w, h := params.Width, params.Height
	if w == 0 && h == 0 {
		return img
	}

	switch params.Fit {
	case FitContain:
		if w > 0 && h > 0 {
			return imaging.Fit(img, w, h, imaging.Lanczos)
		}
	case FitFill:
		if w > 0 && h > 0 {
			return imaging.Resize(img, w, h, imaging.Lanczos)
		}
	default: // cover
		if w > 0 && h > 0 {
			return imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos)
		}
	}

	// Only one dimension given: scale preserving aspect ratio.
	return imaging.Resize(img, w, h, imaging.Lanczos)
}
