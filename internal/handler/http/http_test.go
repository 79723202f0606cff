package httphandler_test

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eventdrop/eventdrop/internal/adapter/fsadapter"
	httphandler "github.com/eventdrop/eventdrop/internal/handler/http"
	eventrepo "github.com/eventdrop/eventdrop/internal/repository/event"
	"github.com/eventdrop/eventdrop/internal/repository/throttle"
	"github.com/eventdrop/eventdrop/internal/service/access"
	"github.com/eventdrop/eventdrop/internal/service/archive"
	eventsvc "github.com/eventdrop/eventdrop/internal/service/event"
	"github.com/eventdrop/eventdrop/internal/service/file"
	"github.com/eventdrop/eventdrop/internal/service/preview"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminPassword = "admin-secret-1"
	guestPassword = "guest-secret"

	throttleThreshold = 12
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	log := slog.Default()

	events := eventrepo.NewMemoryRepository()
	attempts := throttle.NewMemoryRepository(15 * time.Minute)

	storage, err := fsadapter.NewFSAdapterWithFS(afero.NewMemMapFs(), "data", log)
	require.NoError(t, err)

	eSrv := eventsvc.NewEventService(events, storage, true, 0, 0, log)
	aSrv := access.NewAccessService(attempts, throttleThreshold, log)
	fSrv := file.NewFileService(storage, eSrv, log)
	zSrv := archive.NewArchiveService(storage, log)
	pSrv := preview.NewPreviewService(storage, log)

	resolver := httphandler.NewResolver(eSrv, aSrv)

	mux := http.NewServeMux()
	mux.Handle("GET /api/config", httphandler.NewConfigHandler(httphandler.ConfigResponse{
		AllowEventCreation: true,
	}, log))
	mux.Handle("POST /api/events", httphandler.NewCreateEventHandler(eSrv, log))
	mux.Handle("GET /api/events/{eventId}", httphandler.NewGetEventHandler(resolver, log))
	mux.Handle("PATCH /api/events/{eventId}", httphandler.NewUpdateEventHandler(resolver, eSrv, log))
	mux.Handle("DELETE /api/events/{eventId}", httphandler.NewDeleteEventHandler(resolver, eSrv, log))
	mux.Handle("GET /api/events/{eventId}/files", httphandler.NewListFilesHandler(resolver, fSrv, log))
	mux.Handle("POST /api/events/{eventId}/files", httphandler.NewUploadHandler(resolver, fSrv, log))
	mux.Handle("PATCH /api/events/{eventId}/folders", httphandler.NewRenameFolderHandler(resolver, fSrv, log))
	mux.Handle("GET /api/events/{eventId}/files.zip", httphandler.NewArchiveHandler(resolver, zSrv, log))
	mux.Handle("GET /api/events/{eventId}/files/{path...}", httphandler.NewDownloadHandler(resolver, fSrv, pSrv, log))
	mux.Handle("DELETE /api/events/{eventId}/files/{path...}", httphandler.NewDeleteFileHandler(resolver, fSrv, log))

	return mux
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any, auth ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, target, reader)
	req.RemoteAddr = "192.0.2.10:54321"
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return body
}

func createEvent(t *testing.T, h http.Handler, eventID string, secured bool) {
	t.Helper()

	payload := map[string]any{
		"eventId":              eventID,
		"name":                 "Test Event",
		"adminPassword":        adminPassword,
		"adminPasswordConfirm": adminPassword,
	}
	if secured {
		payload["guestPassword"] = guestPassword
	}

	rec := doJSON(t, h, http.MethodPost, "/api/events", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func uploadFiles(t *testing.T, h http.Handler, eventID, folder string, files map[string]string, auth ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if folder != "" {
		require.NoError(t, mw.WriteField("from", folder))
	}

	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}

	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/events/"+eventID+"/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.RemoteAddr = "192.0.2.10:54321"
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestEventLifecycle(t *testing.T) {
	h := newTestServer(t)

	createEvent(t, h, "abc-1", false)

	// Upload without credentials: unsecured events default to open uploads.
	rec := uploadFiles(t, h, "abc-1", "", map[string]string{"hello.txt": "hello world"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["uploaded"])
	assert.Empty(t, body["rejected"])

	// The file shows up in the listing.
	rec = doJSON(t, h, http.MethodGet, "/api/events/abc-1/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	files := body["files"].([]any)
	require.Len(t, files, 1)
	assert.Equal(t, "hello.txt", files[0].(map[string]any)["name"])

	// Unauthenticated delete is refused with a challenge.
	rec = doJSON(t, h, http.MethodDelete, "/api/events/abc-1/files/hello.txt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTHORIZATION_REQUIRED", decodeBody(t, rec)["errorKey"])

	// The admin credential clears it.
	rec = doJSON(t, h, http.MethodDelete, "/api/events/abc-1/files/hello.txt", nil, "admin", adminPassword)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/api/events/abc-1/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody(t, rec)["files"])

	// Delete the whole event, it is gone afterwards.
	rec = doJSON(t, h, http.MethodDelete, "/api/events/abc-1", nil, "admin", adminPassword)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/events/abc-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "EVENT_NOT_FOUND", decodeBody(t, rec)["errorKey"])
}

func TestCreateEventValidation(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/events", map[string]any{
		"eventId":              "ab",
		"name":                 "Too short id",
		"adminPassword":        adminPassword,
		"adminPasswordConfirm": adminPassword,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_EVENT_ID", decodeBody(t, rec)["errorKey"])

	createEvent(t, h, "abc-1", false)

	rec = doJSON(t, h, http.MethodPost, "/api/events", map[string]any{
		"eventId":              "abc-1",
		"name":                 "Duplicate",
		"adminPassword":        adminPassword,
		"adminPasswordConfirm": adminPassword,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "EVENT_ID_TAKEN", decodeBody(t, rec)["errorKey"])
}

func TestGetEventAccessLevels(t *testing.T) {
	h := newTestServer(t)

	createEvent(t, h, "gala-1", true)

	rec := doJSON(t, h, http.MethodGet, "/api/events/gala-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "unauthenticated", body["accessLevel"])
	assert.Equal(t, true, body["secured"])
	// Secrets never appear in the projection.
	assert.NotContains(t, rec.Body.String(), "Hash")
	assert.NotContains(t, rec.Body.String(), adminPassword)

	rec = doJSON(t, h, http.MethodGet, "/api/events/gala-1", nil, "guest", guestPassword)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "guest", decodeBody(t, rec)["accessLevel"])

	rec = doJSON(t, h, http.MethodGet, "/api/events/gala-1", nil, "admin", adminPassword)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", decodeBody(t, rec)["accessLevel"])

	// Wrong admin secret challenges, wrong guest secret refuses.
	rec = doJSON(t, h, http.MethodGet, "/api/events/gala-1", nil, "admin", "wrong-wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/events/gala-1", nil, "guest", "wrong-wrong")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSecuredEventGuestPolicies(t *testing.T) {
	h := newTestServer(t)

	createEvent(t, h, "gala-1", true)

	// Listing requires a credential on secured events.
	rec := doJSON(t, h, http.MethodGet, "/api/events/gala-1/files", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/events/gala-1/files", nil, "guest", guestPassword)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Turn guest downloads off; guests lose listing, admin keeps it.
	rec = doJSON(t, h, http.MethodPatch, "/api/events/gala-1",
		map[string]any{"allowGuestDownload": false}, "admin", adminPassword)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/api/events/gala-1/files", nil, "guest", guestPassword)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "GUEST_DOWNLOADS_DISABLED", decodeBody(t, rec)["errorKey"])

	rec = doJSON(t, h, http.MethodGet, "/api/events/gala-1/files", nil, "admin", adminPassword)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Turning uploads off too would strand the guests entirely.
	rec = doJSON(t, h, http.MethodPatch, "/api/events/gala-1",
		map[string]any{"allowGuestUpload": false}, "admin", adminPassword)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "GUEST_ACCESS_DISABLED", decodeBody(t, rec)["errorKey"])
}

func TestUpdateEventRequiresAdmin(t *testing.T) {
	h := newTestServer(t)

	createEvent(t, h, "gala-1", true)

	rec := doJSON(t, h, http.MethodPatch, "/api/events/gala-1", map[string]any{"name": "New"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// An authenticated guest is refused, not challenged.
	rec = doJSON(t, h, http.MethodPatch, "/api/events/gala-1",
		map[string]any{"name": "New"}, "guest", guestPassword)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h, http.MethodPatch, "/api/events/gala-1",
		map[string]any{"name": "New"}, "admin", adminPassword)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "New", body["name"])
	assert.Equal(t, true, body["ok"])
}

func TestUploadRejections(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/events", map[string]any{
		"eventId":              "pics-1",
		"name":                 "Pictures only",
		"adminPassword":        adminPassword,
		"adminPasswordConfirm": adminPassword,
		"allowedMimeTypes":     []string{"image/*"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = uploadFiles(t, h, "pics-1", "", map[string]string{
		"photo.png": "fake image bytes",
		"notes.txt": "not an image",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["uploaded"])
	rejected := body["rejected"].([]any)
	require.Len(t, rejected, 1)
	entry := rejected[0].(map[string]any)
	assert.Equal(t, "notes.txt", entry["file"])
	assert.Equal(t, "UNSUPPORTED_FILE_TYPE", entry["reason"])
}

func TestUploadDedupAndFolders(t *testing.T) {
	h := newTestServer(t)

	createEvent(t, h, "abc-1", false)

	rec := uploadFiles(t, h, "abc-1", "photos", map[string]string{"a.txt": "one"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = uploadFiles(t, h, "abc-1", "photos", map[string]string{"a.txt": "two"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/events/abc-1/files?folder=photos", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	files := body["files"].([]any)
	require.Len(t, files, 2)

	names := []string{
		files[0].(map[string]any)["name"].(string),
		files[1].(map[string]any)["name"].(string),
	}
	assert.ElementsMatch(t, []string{"a.txt", "a_1.txt"}, names)

	// The folder shows up in the root listing.
	rec = doJSON(t, h, http.MethodGet, "/api/events/abc-1/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["folders"], "photos")
}

func TestUploadFolderFieldOrdering(t *testing.T) {
	h := newTestServer(t)

	createEvent(t, h, "abc-1", false)

	// The "from" field scopes only the file parts that follow it; a file
	// sent before the field belongs to the root.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("files", "before.txt")
	require.NoError(t, err)
	_, err = io.WriteString(fw, "x")
	require.NoError(t, err)

	require.NoError(t, mw.WriteField("from", "photos"))

	fw, err = mw.CreateFormFile("files", "after.txt")
	require.NoError(t, err)
	_, err = io.WriteString(fw, "y")
	require.NoError(t, err)

	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/events/abc-1/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.RemoteAddr = "192.0.2.10:54321"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, decodeBody(t, rec)["uploaded"])

	rec = doJSON(t, h, http.MethodGet, "/api/events/abc-1/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	root := decodeBody(t, rec)
	files := root["files"].([]any)
	require.Len(t, files, 1)
	assert.Equal(t, "before.txt", files[0].(map[string]any)["name"])

	rec = doJSON(t, h, http.MethodGet, "/api/events/abc-1/files?folder=photos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	files = decodeBody(t, rec)["files"].([]any)
	require.Len(t, files, 1)
	assert.Equal(t, "after.txt", files[0].(map[string]any)["name"])
}

func TestUploadEmptyFolderMaterialized(t *testing.T) {
	h := newTestServer(t)

	createEvent(t, h, "abc-1", false)

	rec := uploadFiles(t, h, "abc-1", "empty-folder", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/events/abc-1/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["folders"], "empty-folder")
}

func TestDownloadFile(t *testing.T) {
	h := newTestServer(t)

	createEvent(t, h, "abc-1", false)

	rec := uploadFiles(t, h, "abc-1", "docs", map[string]string{"note.txt": "file content"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/events/abc-1/files/docs/note.txt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "file content", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `"note.txt"`)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")

	rec = doJSON(t, h, http.MethodGet, "/api/events/abc-1/files/docs/missing.txt", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "FILE_NOT_FOUND", decodeBody(t, rec)["errorKey"])
}

func TestRenameFolder(t *testing.T) {
	h := newTestServer(t)

	createEvent(t, h, "abc-1", false)

	rec := uploadFiles(t, h, "abc-1", "old", map[string]string{"a.txt": "x"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Admin only.
	rec = doJSON(t, h, http.MethodPatch, "/api/events/abc-1/folders",
		map[string]any{"from": "old", "to": "new"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodPatch, "/api/events/abc-1/folders",
		map[string]any{"from": "old", "to": "new"}, "admin", adminPassword)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/api/events/abc-1/files?folder=new", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["files"], 1)

	rec = doJSON(t, h, http.MethodPatch, "/api/events/abc-1/folders",
		map[string]any{"from": "missing", "to": "x"}, "admin", adminPassword)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "FOLDER_NOT_FOUND", decodeBody(t, rec)["errorKey"])
}

func TestArchiveDownload(t *testing.T) {
	h := newTestServer(t)

	createEvent(t, h, "abc-1", false)

	// Empty events answer 404 before any archive byte.
	rec := doJSON(t, h, http.MethodGet, "/api/events/abc-1/files.zip", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NO_FILES_AVAILABLE", decodeBody(t, rec)["errorKey"])

	rec = uploadFiles(t, h, "abc-1", "", map[string]string{"a.txt": "aaa"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = uploadFiles(t, h, "abc-1", "photos", map[string]string{"b.txt": "bbbb"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/events/abc-1/files.zip", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "abc-1.zip")

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)

	var names []string
	for _, zf := range zr.File {
		names = append(names, zf.Name)
	}
	assert.ElementsMatch(t, []string{"a.txt", "photos/b.txt"}, names)
}

func uploadPNG(t *testing.T, h http.Handler, eventID, name string, width, height int) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 200, A: 255})
		}
	}

	var encoded bytes.Buffer
	require.NoError(t, png.Encode(&encoded, img))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", name)
	require.NoError(t, err)
	_, err = fw.Write(encoded.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/events/"+eventID+"/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.RemoteAddr = "192.0.2.10:54321"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPreview(t *testing.T) {
	h := newTestServer(t)

	createEvent(t, h, "abc-1", false)
	uploadPNG(t, h, "abc-1", "photo.png", 16, 16)

	rec := doJSON(t, h, http.MethodGet, "/api/events/abc-1/files/photo.png/preview?w=8&h=8&format=png", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	out, _, err := image.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 8, out.Bounds().Dx())
	assert.Equal(t, 8, out.Bounds().Dy())

	// A matching If-None-Match short-circuits to 304.
	req := httptest.NewRequest(http.MethodGet, "/api/events/abc-1/files/photo.png/preview?w=8&h=8&format=png", nil)
	req.RemoteAddr = "192.0.2.10:54321"
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	// Bad parameters and non-image sources are client errors.
	rec = doJSON(t, h, http.MethodGet, "/api/events/abc-1/files/photo.png/preview?w=99999", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	uploadText := uploadFiles(t, h, "abc-1", "", map[string]string{"notes.txt": "text"})
	require.Equal(t, http.StatusOK, uploadText.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/events/abc-1/files/notes.txt/preview", nil)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, "UNSUPPORTED_FILE_TYPE", decodeBody(t, rec)["errorKey"])

	// A missing source is 404 even when its extension is not an image type.
	rec = doJSON(t, h, http.MethodGet, "/api/events/abc-1/files/missing.txt/preview", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "FILE_NOT_FOUND", decodeBody(t, rec)["errorKey"])
}

func TestLoginThrottle(t *testing.T) {
	h := newTestServer(t)

	createEvent(t, h, "gala-1", true)

	for i := 0; i < throttleThreshold; i++ {
		rec := doJSON(t, h, http.MethodGet, "/api/events/gala-1", nil, "guest", "wrong-secret")
		require.Equal(t, http.StatusForbidden, rec.Code)
	}

	// Past the threshold even the correct secret is refused.
	rec := doJSON(t, h, http.MethodGet, "/api/events/gala-1", nil, "guest", guestPassword)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "TOO_MANY_REQUESTS", body["errorKey"])
	assert.Equal(t, "Too many requests, please try again later.", body["message"])

	// A different client is unaffected.
	req := httptest.NewRequest(http.MethodGet, "/api/events/gala-1", nil)
	req.RemoteAddr = "198.51.100.77:1234"
	req.SetBasicAuth("guest", guestPassword)
	fresh := httptest.NewRecorder()
	h.ServeHTTP(fresh, req)
	assert.Equal(t, http.StatusOK, fresh.Code)
}

func TestUploadRequiresPermission(t *testing.T) {
	h := newTestServer(t)

	createEvent(t, h, "gala-1", true)

	// Secured event, no credential: challenged.
	rec := uploadFiles(t, h, "gala-1", "", map[string]string{"a.txt": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = uploadFiles(t, h, "gala-1", "", map[string]string{"a.txt": "x"}, "guest", guestPassword)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Guests lose uploads when the flag goes off; the admin keeps them.
	patch := doJSON(t, h, http.MethodPatch, "/api/events/gala-1",
		map[string]any{"allowGuestUpload": false}, "admin", adminPassword)
	require.Equal(t, http.StatusOK, patch.Code, patch.Body.String())

	rec = uploadFiles(t, h, "gala-1", "", map[string]string{"b.txt": "x"}, "guest", guestPassword)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "GUEST_UPLOADS_DISABLED", decodeBody(t, rec)["errorKey"])

	rec = uploadFiles(t, h, "gala-1", "", map[string]string{"b.txt": "x"}, "admin", adminPassword)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownEvent(t *testing.T) {
	h := newTestServer(t)

	for _, target := range []string{
		"/api/events/ghost-1",
		"/api/events/ghost-1/files",
		"/api/events/ghost-1/files.zip",
	} {
		rec := doJSON(t, h, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Equal(t, "EVENT_NOT_FOUND", decodeBody(t, rec)["errorKey"], target)
	}
}

func TestConfigEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["allowEventCreation"])
	assert.NotNil(t, body["allowedDomains"])
}

func TestFilenameSanitization(t *testing.T) {
	h := newTestServer(t)

	createEvent(t, h, "abc-1", false)

	// Client path components are stripped down to the base name.
	rec := uploadFiles(t, h, "abc-1", "", map[string]string{`C:\Users\me\evil.txt`: "x"})
	require.Equal(t, http.StatusOK, rec.Code)

	list := doJSON(t, h, http.MethodGet, "/api/events/abc-1/files", nil)
	require.Equal(t, http.StatusOK, list.Code)
	files := decodeBody(t, list)["files"].([]any)
	require.Len(t, files, 1)
	assert.Equal(t, "evil.txt", files[0].(map[string]any)["name"])
}
