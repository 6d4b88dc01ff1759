package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lukewaehner/KijayKolder-LinksHub/config"
	"github.com/lukewaehner/KijayKolder-LinksHub/core/auth"
	"github.com/lukewaehner/KijayKolder-LinksHub/core/metadata"
	"github.com/lukewaehner/KijayKolder-LinksHub/core/realtime"
	"github.com/lukewaehner/KijayKolder-LinksHub/core/upload"
	"github.com/lukewaehner/KijayKolder-LinksHub/model"
	"github.com/lukewaehner/KijayKolder-LinksHub/repository"
	"github.com/lukewaehner/KijayKolder-LinksHub/storage"
	"github.com/lukewaehner/KijayKolder-LinksHub/testutil"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPassword = "open-sesame"
	testBaseURL  = "http://linkshub.test"
)

type testEnv struct {
	router *mux.Router
	tracks repository.TrackRepository
	videos repository.VideoRepository
	store  *storage.MemoryStore
	hub    *realtime.Hub
	cfg    *config.Config
	cookie *http.Cookie
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb := testutil.NewTestDB(t)
	tracks := repository.NewGormTrackRepository(gdb, nil)
	videos := repository.NewGormVideoRepository(gdb, nil)
	store := storage.NewMemoryStore()
	files := storage.NewFileAPI(store, testBaseURL)

	tokens, err := auth.NewTokenIssuer([]byte("server-test"), time.Hour)
	require.NoError(t, err)
	authenticator, err := auth.NewAuthenticator(testPassword, tokens, auth.NewMemorySessionStore())
	require.NoError(t, err)

	cfg := &config.Config{
		SessionTTL:             time.Hour,
		MaxUploadSize:          10 << 20,
		FallbackVideoURL:       "/videos/fallback.mov",
		FallbackVideoThumbnail: "/images/fallback.png",
	}
	hub := realtime.NewHub()
	orchestrator := upload.NewOrchestrator(tracks, videos, files, metadata.NewExtractor(), upload.NewTracker(nil))

	h := NewAPIHandler(tracks, videos, files, orchestrator, authenticator, hub, cfg)
	return &testEnv{router: NewRouter(h), tracks: tracks, videos: videos, store: store, hub: hub, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.send(req)
}

func (e *testEnv) send(req *http.Request) *httptest.ResponseRecorder {
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/admin/auth", map[string]string{"password": testPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == AdminCookie {
			e.cookie = c
		}
	}
	require.NotNil(t, e.cookie)
}

func (e *testEnv) uploadTracks(t *testing.T, files map[string][]byte) upload.BatchResult {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/admin/tracks/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := e.send(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result upload.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/admin/auth", map[string]string{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Invalid password", body["error"])

	rec = env.do(t, http.MethodGet, "/admin/verify", nil)
	assert.Equal(t, false, decode[map[string]any](t, rec)["authenticated"])

	env.login(t)
	assert.True(t, env.cookie.HttpOnly)

	rec = env.do(t, http.MethodGet, "/admin/verify", nil)
	assert.Equal(t, true, decode[map[string]any](t, rec)["authenticated"])

	rec = env.do(t, http.MethodDelete, "/admin/auth", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["success"])

	// the revoked token is still presented but no longer accepted
	rec = env.do(t, http.MethodGet, "/admin/verify", nil)
	assert.Equal(t, false, decode[map[string]any](t, rec)["authenticated"])
}

func TestAdminRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/admin/tracks"},
		{http.MethodPost, "/admin/tracks/upload"},
		{http.MethodDelete, "/admin/tracks/x"},
		{http.MethodPost, "/extract-metadata"},
		{http.MethodPost, "/switch-active-video"},
		{http.MethodGet, "/admin/uploads"},
	} {
		rec := env.do(t, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}

	// public mirrors stay open
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/tracks", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/videos", nil).Code)
}

func TestUploadAndServeTrack(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	audio := bytes.Repeat([]byte{0x00, 0x01, 0x02}, 100)
	result := env.uploadTracks(t, map[string][]byte{"Song.mp3": audio})
	require.Equal(t, 1, result.Accepted)
	require.Equal(t, 1, result.Succeeded)
	require.Len(t, result.Tracks, 1)

	track := result.Tracks[0]
	assert.Equal(t, "Song", track.Title)
	assert.Equal(t, model.DefaultArtist, track.Artist)
	assert.Equal(t, "", track.Album)
	assert.True(t, track.IsSingle)
	assert.Equal(t, 0, track.Duration)

	listed := decode[[]model.Track](t, env.do(t, http.MethodGet, "/tracks", nil))
	require.Len(t, listed, 1)
	assert.Equal(t, track.ID, listed[0].ID)

	require.True(t, strings.HasPrefix(track.FileURL, testBaseURL+"/files/audio/"))
	rec := env.do(t, http.MethodGet, strings.TrimPrefix(track.FileURL, testBaseURL), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, audio, rec.Body.Bytes(), "served bytes match the upload")

	progress := decode[[]upload.Status](t, env.do(t, http.MethodGet, "/admin/uploads", nil))
	require.Len(t, progress, 1)
	assert.Equal(t, 100, progress[0].Percent)

	cleared := decode[map[string]int](t, env.do(t, http.MethodDelete, "/admin/uploads", nil))
	assert.Equal(t, 1, cleared["removed"])
}

func TestUploadRequiresFiles(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "nothing here"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/admin/tracks/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, env.send(req).Code)
}

func createTrack(t *testing.T, env *testEnv, title string, active bool) *model.Track {
	t.Helper()
	track, err := env.tracks.Create(context.Background(), &model.Track{
		Title:    title,
		Artist:   model.DefaultArtist,
		FileURL:  testBaseURL + "/files/audio/" + title + ".mp3",
		IsActive: active,
		IsSingle: true,
	})
	require.NoError(t, err)
	return track
}

func TestUpdateTrack(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	track := createTrack(t, env, "draft", true)

	rec := env.do(t, http.MethodPatch, "/admin/tracks/"+track.ID, map[string]any{"album": "Real Album", "year": 1999})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[model.Track](t, rec)
	assert.Equal(t, "Real Album", updated.Album)
	assert.False(t, updated.IsSingle, "a non-empty album makes the track part of a release")
	require.NotNil(t, updated.Year)
	assert.Equal(t, 1999, *updated.Year)

	rec = env.do(t, http.MethodPatch, "/admin/tracks/"+track.ID, map[string]any{"album": "", "is_single": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[model.Track](t, rec).IsSingle, "an explicit is_single wins")

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPatch, "/admin/tracks/"+track.ID, map[string]any{}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPatch, "/admin/tracks/"+track.ID, map[string]any{"title": " "}).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPatch, "/admin/tracks/missing", map[string]any{"title": "x"}).Code)
}

func TestToggleTrackTwiceRestoresState(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	track := createTrack(t, env, "toggle", true)

	rec := env.do(t, http.MethodPost, "/admin/tracks/"+track.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[model.Track](t, rec).IsActive)
	assert.Empty(t, decode[[]model.Track](t, env.do(t, http.MethodGet, "/tracks", nil)))

	rec = env.do(t, http.MethodPost, "/admin/tracks/"+track.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[model.Track](t, rec).IsActive)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/admin/tracks/missing/toggle", nil).Code)
}

func TestDeleteTrackCascadesWhenEnabled(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.CascadeBlobDelete = true
	env.login(t)

	result := env.uploadTracks(t, map[string][]byte{"Gone.mp3": []byte("bytes")})
	require.Len(t, result.Tracks, 1)
	track := result.Tracks[0]
	blobPath := strings.TrimPrefix(track.FileURL, testBaseURL)

	rec := env.do(t, http.MethodDelete, "/admin/tracks/"+track.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, blobPath, nil).Code)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/admin/tracks/"+track.ID, nil).Code)
}

func TestDeleteTrackKeepsBlobByDefault(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	result := env.uploadTracks(t, map[string][]byte{"Kept.mp3": []byte("bytes")})
	track := result.Tracks[0]

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/admin/tracks/"+track.ID, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, strings.TrimPrefix(track.FileURL, testBaseURL), nil).Code)
}

func TestBulkDeleteStopsAtFirstFailure(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	a := createTrack(t, env, "a", true)
	b := createTrack(t, env, "b", true)

	rec := env.do(t, http.MethodDelete, "/admin/tracks", map[string]any{"ids": []string{a.ID, "missing", b.ID}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, []any{a.ID}, body["deleted"])

	remaining, err := env.tracks.GetAllForAdmin(context.Background())
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, b.ID, remaining[0].ID)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodDelete, "/admin/tracks", map[string]any{"ids": []string{}}).Code)
}

func TestTrackAnalysis(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	track := createTrack(t, env, "analyzed", true)

	rec := env.do(t, http.MethodGet, "/admin/tracks/"+track.ID+"/analysis", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Analysis metadata.Analysis `json:"analysis"`
		Labels   map[string]string `json:"labels"`
	}](t, rec)
	assert.Equal(t, []string{"title", "artist"}, body.Analysis.Present)
	assert.Len(t, body.Analysis.Missing, 4)
	assert.Equal(t, 33, body.Analysis.Completeness)
	assert.Len(t, body.Labels, len(metadata.ExpectedFields))

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/admin/tracks/missing/analysis", nil).Code)
}

func TestExtractMetadataEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	rec := env.do(t, http.MethodPost, "/extract-metadata", map[string]string{"fileName": "x.mp3"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["success"])

	result := env.uploadTracks(t, map[string][]byte{"Big.flac": bytes.Repeat([]byte{0x80}, 250000)})
	track := result.Tracks[0]

	rec = env.do(t, http.MethodPost, "/extract-metadata", map[string]string{
		"fileUrl":  track.FileURL,
		"trackId":  track.ID,
		"fileName": "Big.flac",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		Success bool `json:"success"`
		Data    struct {
			ID                string                `json:"id"`
			Duration          int                   `json:"duration"`
			ExtractedMetadata upload.ExtractSummary `json:"extracted_metadata"`
		} `json:"data"`
	}](t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, track.ID, body.Data.ID)
	assert.Equal(t, 2, body.Data.Duration, "250000 bytes at 1 Mbps")
	assert.True(t, body.Data.ExtractedMetadata.Estimated)

	rec = env.do(t, http.MethodPost, "/extract-metadata", map[string]string{
		"fileUrl": track.FileURL,
		"trackId": "missing",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActiveVideoFallbacks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.do(t, http.MethodGet, "/videos/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	fallback := decode[model.BackgroundVideo](t, rec)
	assert.Equal(t, "demo-video", fallback.ID)
	assert.Equal(t, "/videos/fallback.mov", fallback.FileURL)

	first, err := env.videos.Create(ctx, &model.BackgroundVideo{Title: "first", FileURL: "f1", SortOrder: 0})
	require.NoError(t, err)
	second, err := env.videos.Create(ctx, &model.BackgroundVideo{Title: "second", FileURL: "f2", SortOrder: 1})
	require.NoError(t, err)

	assert.Equal(t, first.ID, decode[model.BackgroundVideo](t, env.do(t, http.MethodGet, "/videos/active", nil)).ID)

	_, err = env.videos.SetActive(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, decode[model.BackgroundVideo](t, env.do(t, http.MethodGet, "/videos/active", nil)).ID)
}

func TestSwitchActiveVideo(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	var ids []string
	for _, title := range []string{"one", "two", "three"} {
		rec := env.do(t, http.MethodPost, "/admin/videos", map[string]any{"title": title, "file_url": title + ".mov", "is_active": true})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		ids = append(ids, decode[model.BackgroundVideo](t, rec).ID)
	}

	rec := env.do(t, http.MethodPost, "/switch-active-video", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Video ID is required", decode[map[string]any](t, rec)["error"])

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/switch-active-video", map[string]string{"videoId": "missing"}).Code)

	rec = env.do(t, http.MethodPost, "/switch-active-video", map[string]string{"videoId": ids[1]})
	require.Equal(t, http.StatusOK, rec.Code)

	videos := decode[[]model.BackgroundVideo](t, env.do(t, http.MethodGet, "/videos", nil))
	var active []string
	for _, v := range videos {
		if v.IsActive {
			active = append(active, v.ID)
		}
	}
	assert.Equal(t, []string{ids[1]}, active)
}

func TestActivateVideoByName(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/set-hibachi-active", nil).Code)

	ids := map[string]string{}
	for _, v := range []struct{ title, url string }{
		{"Grill Night", "http://files/videos/hibachi.mp4"},
		{"Ecstasy Loop", "http://files/videos/loop.mp4"},
		{"Plain", "http://files/videos/plain.mp4"},
	} {
		rec := env.do(t, http.MethodPost, "/admin/videos", map[string]any{"title": v.title, "file_url": v.url})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		ids[v.title] = decode[model.BackgroundVideo](t, rec).ID
	}

	activeID := func() string {
		return decode[model.BackgroundVideo](t, env.do(t, http.MethodGet, "/videos/active", nil)).ID
	}

	rec := env.do(t, http.MethodPost, "/set-hibachi-active", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Hibachi video set as active", decode[map[string]any](t, rec)["message"])
	assert.Equal(t, ids["Grill Night"], activeID(), "matched by file URL")

	rec = env.do(t, http.MethodPost, "/set-ecstasy-active", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, ids["Ecstasy Loop"], activeID(), "matched by title, case-insensitively")
}

func TestVideoAdminEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/admin/videos", map[string]any{"title": "no file"}).Code)

	rec := env.do(t, http.MethodPost, "/admin/videos", map[string]any{"title": "clip", "file_url": "clip.mov"})
	require.Equal(t, http.StatusCreated, rec.Code)
	video := decode[model.BackgroundVideo](t, rec)
	assert.False(t, video.IsActive)

	rec = env.do(t, http.MethodPatch, "/admin/videos/"+video.ID, map[string]any{"description": "loop"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "loop", decode[model.BackgroundVideo](t, rec).Description)

	rec = env.do(t, http.MethodPost, "/admin/videos/"+video.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[model.BackgroundVideo](t, rec).IsActive)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/admin/videos/"+video.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/admin/videos/"+video.ID, nil).Code)
}

func TestFileProxyUnknownBucket(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/files/secrets/key", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/files/audio/nothing.mp3", nil).Code)
}

func TestChangeFeed(t *testing.T) {
	env := newTestEnv(t)
	go env.hub.Run()
	defer env.hub.Stop()

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws?table=nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?table=" + realtime.TopicTracks
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.ClientCount(realtime.TopicTracks) == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, env.hub.Publish(context.Background(),
		realtime.NewEvent(realtime.TopicTracks, realtime.EventDelete, "t1", nil)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev realtime.Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, realtime.EventDelete, ev.Type)
	assert.Equal(t, "t1", ev.ID)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(invalid("x")))
	assert.Equal(t, http.StatusBadRequest, statusFor(upload.ErrMissingParameters))
	assert.Equal(t, http.StatusUnauthorized, statusFor(auth.ErrInvalidPassword))
	assert.Equal(t, http.StatusNotFound, statusFor(&repository.StoreError{Op: "delete", Table: "tracks", Err: repository.ErrNotFound}))
	assert.Equal(t, http.StatusConflict, statusFor(&storage.UploadError{Bucket: "audio", Name: "a", Err: storage.ErrObjectExists}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
