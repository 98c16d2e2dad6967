package videos

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"vidtube/auth"
	"vidtube/db"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *db.CompatDB {
	t.Helper()
	raw, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	raw.SetMaxOpenConns(1)
	if err := db.RunMigrations(raw, db.DialectSQLite); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	return db.NewCompatDB(raw, db.DialectSQLite)
}

func seedUser(t *testing.T, d *db.CompatDB, username string) string {
	t.Helper()
	id := uuid.New().String()
	_, err := d.Exec(
		`INSERT INTO users (id, username, email, full_name, password_hash) VALUES (?, ?, ?, ?, ?)`,
		id, username, username+"@test.com", username, "x")
	if err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return id
}

func seedVideo(t *testing.T, d *db.CompatDB, ownerID, title string, published int, createdAt string) string {
	t.Helper()
	id := uuid.New().String()
	_, err := d.Exec(`
		INSERT INTO videos (id, owner_id, title, description, video_url, thumbnail_url, duration, is_published, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ownerID, title, "desc for "+title,
		"/storage/media/"+id+".mp4", "/storage/media/"+id+".jpg",
		42.5, published, createdAt)
	if err != nil {
		t.Fatalf("seed video %s: %v", title, err)
	}
	return id
}

func asUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), auth.UserIDKey, userID))
}

func withParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	return env
}

func dataList(t *testing.T, env envelope) []map[string]interface{} {
	t.Helper()
	var list []map[string]interface{}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode data list: %v", err)
	}
	return list
}

func dataMap(t *testing.T, env envelope) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(env.Data, &m); err != nil {
		t.Fatalf("decode data map: %v", err)
	}
	return m
}

// fakeMedia stands in for the object store. It honors the Store contract of
// consuming the local temp file.
type fakeMedia struct {
	stored    []string
	removed   []string
	failStore bool
}

func (f *fakeMedia) Store(ctx context.Context, localPath string) (string, error) {
	os.Remove(localPath)
	if f.failStore {
		return "", errors.New("store failed")
	}
	u := "/storage/media/" + filepath.Base(localPath)
	f.stored = append(f.stored, u)
	return u, nil
}

func (f *fakeMedia) Remove(ctx context.Context, rawURL string) error {
	f.removed = append(f.removed, rawURL)
	return nil
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	for field, filename := range files {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("create form file %s: %v", field, err)
		}
		if _, err := fw.Write([]byte("fake media bytes")); err != nil {
			t.Fatalf("write form file %s: %v", field, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

// ---------------------------------------------------------------------------

func TestList_PublishedOnlyNewestFirst(t *testing.T) {
	d := newTestDB(t)
	h := &Handler{DB: d, Media: &fakeMedia{}}
	owner := seedUser(t, d, "alice")
	seedVideo(t, d, owner, "oldest", 1, "2024-01-01T00:00:01Z")
	seedVideo(t, d, owner, "newest", 1, "2024-01-01T00:00:03Z")
	seedVideo(t, d, owner, "draft", 0, "2024-01-01T00:00:02Z")

	rec := httptest.NewRecorder()
	h.HandleList(rec, httptest.NewRequest("GET", "/api/videos", nil))
	env := decode(t, rec)
	if rec.Code != 200 || !env.Success {
		t.Fatalf("status = %d, env = %+v", rec.Code, env)
	}

	list := dataList(t, env)
	if len(list) != 2 {
		t.Fatalf("got %d videos, want 2 (draft excluded)", len(list))
	}
	if list[0]["title"] != "newest" || list[1]["title"] != "oldest" {
		t.Errorf("order = [%v, %v], want [newest, oldest]", list[0]["title"], list[1]["title"])
	}
	owner0, _ := list[0]["owner"].(map[string]interface{})
	if owner0 == nil || owner0["fullName"] != "alice" {
		t.Errorf("owner = %v", list[0]["owner"])
	}
}

func TestList_QueryAndOwnerFilter(t *testing.T) {
	d := newTestDB(t)
	h := &Handler{DB: d, Media: &fakeMedia{}}
	alice := seedUser(t, d, "alice")
	bob := seedUser(t, d, "bob")
	seedVideo(t, d, alice, "cooking pasta", 1, "2024-01-01T00:00:01Z")
	seedVideo(t, d, alice, "gardening", 1, "2024-01-01T00:00:02Z")
	seedVideo(t, d, bob, "pasta secrets", 1, "2024-01-01T00:00:03Z")

	rec := httptest.NewRecorder()
	h.HandleList(rec, httptest.NewRequest("GET", "/api/videos?query=pasta", nil))
	if list := dataList(t, decode(t, rec)); len(list) != 2 {
		t.Errorf("query filter: got %d videos, want 2", len(list))
	}

	rec = httptest.NewRecorder()
	h.HandleList(rec, httptest.NewRequest("GET", "/api/videos?userId="+alice, nil))
	if list := dataList(t, decode(t, rec)); len(list) != 2 {
		t.Errorf("owner filter: got %d videos, want 2", len(list))
	}

	rec = httptest.NewRecorder()
	h.HandleList(rec, httptest.NewRequest("GET", "/api/videos?userId=bogus", nil))
	if rec.Code != 400 {
		t.Errorf("malformed userId status = %d, want 400", rec.Code)
	}
}

func TestList_SortByViewsAscending(t *testing.T) {
	d := newTestDB(t)
	h := &Handler{DB: d, Media: &fakeMedia{}}
	owner := seedUser(t, d, "alice")
	popular := seedVideo(t, d, owner, "popular", 1, "2024-01-01T00:00:01Z")
	seedVideo(t, d, owner, "quiet", 1, "2024-01-01T00:00:02Z")
	if _, err := d.Exec(`UPDATE videos SET views = 100 WHERE id = ?`, popular); err != nil {
		t.Fatalf("bump views: %v", err)
	}

	rec := httptest.NewRecorder()
	h.HandleList(rec, httptest.NewRequest("GET", "/api/videos?sortBy=views&sortType=asc", nil))
	list := dataList(t, decode(t, rec))
	if len(list) != 2 || list[0]["title"] != "quiet" || list[1]["title"] != "popular" {
		t.Errorf("sort by views asc gave %v", list)
	}
}

func TestList_Pagination(t *testing.T) {
	d := newTestDB(t)
	h := &Handler{DB: d, Media: &fakeMedia{}}
	owner := seedUser(t, d, "alice")
	for i := 1; i <= 12; i++ {
		seedVideo(t, d, owner, fmt.Sprintf("v%d", i), 1, fmt.Sprintf("2024-01-01T00:00:%02dZ", i))
	}

	rec := httptest.NewRecorder()
	h.HandleList(rec, httptest.NewRequest("GET", "/api/videos?page=2&limit=5", nil))
	list := dataList(t, decode(t, rec))
	if len(list) != 5 {
		t.Fatalf("got %d videos, want 5", len(list))
	}
	// Newest first: page 2 covers v7..v3.
	if list[0]["title"] != "v7" || list[4]["title"] != "v3" {
		t.Errorf("page window = [%v .. %v], want [v7 .. v3]", list[0]["title"], list[4]["title"])
	}
}

func TestGet_MalformedID(t *testing.T) {
	// Zero-value DB: the handler must reject the id before touching storage.
	h := &Handler{DB: &db.CompatDB{Dialect: db.DialectSQLite}, Media: &fakeMedia{}}
	rec := httptest.NewRecorder()
	r := withParams(httptest.NewRequest("GET", "/api/videos/nope", nil), "videoId", "nope")
	h.HandleGet(rec, r)
	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGet_NotFound(t *testing.T) {
	d := newTestDB(t)
	h := &Handler{DB: d, Media: &fakeMedia{}}
	missing := uuid.New().String()
	rec := httptest.NewRecorder()
	r := withParams(httptest.NewRequest("GET", "/api/videos/"+missing, nil), "videoId", missing)
	h.HandleGet(rec, r)
	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGet_CountsViewsAndRecordsHistory(t *testing.T) {
	d := newTestDB(t)
	h := &Handler{DB: d, Media: &fakeMedia{}}
	owner := seedUser(t, d, "alice")
	viewer := seedUser(t, d, "bob")
	videoID := seedVideo(t, d, owner, "watch me", 1, "2024-01-01T00:00:01Z")

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r := withParams(httptest.NewRequest("GET", "/api/videos/"+videoID, nil), "videoId", videoID)
		h.HandleGet(rec, asUser(r, viewer))
		env := decode(t, rec)
		if rec.Code != 200 {
			t.Fatalf("status = %d, env = %+v", rec.Code, env)
		}
		if i == 0 {
			data := dataMap(t, env)
			if data["title"] != "watch me" || data["isPublished"] != true {
				t.Errorf("data = %v", data)
			}
		}
	}

	var views int
	if err := d.QueryRow(`SELECT views FROM videos WHERE id = ?`, videoID).Scan(&views); err != nil || views != 2 {
		t.Errorf("views = %d (err %v), want 2", views, err)
	}
	var historyRows int
	if err := d.QueryRow(`SELECT COUNT(*) FROM watch_history WHERE user_id = ? AND video_id = ?`,
		viewer, videoID).Scan(&historyRows); err != nil || historyRows != 1 {
		t.Errorf("history rows = %d (err %v), want 1 (upsert, not append)", historyRows, err)
	}
}

func TestGet_UnpublishedStillVisible(t *testing.T) {
	d := newTestDB(t)
	h := &Handler{DB: d, Media: &fakeMedia{}}
	owner := seedUser(t, d, "alice")
	videoID := seedVideo(t, d, owner, "draft", 0, "2024-01-01T00:00:01Z")

	rec := httptest.NewRecorder()
	r := withParams(httptest.NewRequest("GET", "/api/videos/"+videoID, nil), "videoId", videoID)
	h.HandleGet(rec, asUser(r, owner))
	if rec.Code != 200 {
		t.Errorf("status = %d, want 200 (get ignores publish state)", rec.Code)
	}
}

func TestPublish(t *testing.T) {
	d := newTestDB(t)
	media := &fakeMedia{}
	h := &Handler{DB: d, Media: media}
	owner := seedUser(t, d, "alice")

	body, contentType := multipartBody(t,
		map[string]string{"title": "My video", "description": "About things", "duration": "12.5"},
		map[string]string{"videoFile": "clip.mp4", "thumbnail": "thumb.jpg"})
	rec := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/videos", body)
	r.Header.Set("Content-Type", contentType)
	h.HandlePublish(rec, asUser(r, owner))

	env := decode(t, rec)
	if rec.Code != 200 || !env.Success {
		t.Fatalf("status = %d, env = %+v", rec.Code, env)
	}
	data := dataMap(t, env)
	if data["title"] != "My video" || data["isPublished"] != true {
		t.Errorf("data = %v", data)
	}
	if data["duration"] != 12.5 {
		t.Errorf("duration = %v, want 12.5", data["duration"])
	}
	if len(media.stored) != 2 {
		t.Errorf("stored %d objects, want 2", len(media.stored))
	}
}

func TestPublish_Unlisted(t *testing.T) {
	d := newTestDB(t)
	h := &Handler{DB: d, Media: &fakeMedia{}}
	owner := seedUser(t, d, "alice")

	body, contentType := multipartBody(t,
		map[string]string{"title": "Draft", "description": "d", "isPublished": "false"},
		map[string]string{"videoFile": "clip.mp4", "thumbnail": "thumb.jpg"})
	rec := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/videos", body)
	r.Header.Set("Content-Type", contentType)
	h.HandlePublish(rec, asUser(r, owner))

	data := dataMap(t, decode(t, rec))
	if data["isPublished"] != false {
		t.Errorf("isPublished = %v, want false", data["isPublished"])
	}
}

func TestPublish_MissingFields(t *testing.T) {
	d := newTestDB(t)
	h := &Handler{DB: d, Media: &fakeMedia{}}
	owner := seedUser(t, d, "alice")

	// No thumbnail part.
	body, contentType := multipartBody(t,
		map[string]string{"title": "t", "description": "d"},
		map[string]string{"videoFile": "clip.mp4"})
	rec := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/videos", body)
	r.Header.Set("Content-Type", contentType)
	h.HandlePublish(rec, asUser(r, owner))
	if rec.Code != 400 {
		t.Errorf("missing thumbnail status = %d, want 400", rec.Code)
	}

	// No title.
	body, contentType = multipartBody(t,
		map[string]string{"description": "d"},
		map[string]string{"videoFile": "clip.mp4", "thumbnail": "thumb.jpg"})
	rec = httptest.NewRecorder()
	r = httptest.NewRequest("POST", "/api/videos", body)
	r.Header.Set("Content-Type", contentType)
	h.HandlePublish(rec, asUser(r, owner))
	if rec.Code != 400 {
		t.Errorf("missing title status = %d, want 400", rec.Code)
	}
}

func TestPublish_StoreFailure(t *testing.T) {
	d := newTestDB(t)
	h := &Handler{DB: d, Media: &fakeMedia{failStore: true}}
	owner := seedUser(t, d, "alice")

	body, contentType := multipartBody(t,
		map[string]string{"title": "t", "description": "d"},
		map[string]string{"videoFile": "clip.mp4", "thumbnail": "thumb.jpg"})
	rec := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/videos", body)
	r.Header.Set("Content-Type", contentType)
	h.HandlePublish(rec, asUser(r, owner))
	if rec.Code != 500 {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var n int
	if err := d.QueryRow(`SELECT COUNT(*) FROM videos`).Scan(&n); err != nil || n != 0 {
		t.Errorf("video rows = %d, want 0 (no row without stored media)", n)
	}
}

func TestUpdate_NonOwner(t *testing.T) {
	d := newTestDB(t)
	h := &Handler{DB: d, Media: &fakeMedia{}}
	alice := seedUser(t, d, "alice")
	mallory := seedUser(t, d, "mallory")
	videoID := seedVideo(t, d, alice, "original title", 1, "2024-01-01T00:00:01Z")

	body, contentType := multipartBody(t,
		map[string]string{"title": "hijacked", "description": "d"}, nil)
	rec := httptest.NewRecorder()
	r := httptest.NewRequest("PATCH", "/api/videos/"+videoID, body)
	r.Header.Set("Content-Type", contentType)
	h.HandleUpdate(rec, asUser(withParams(r, "videoId", videoID), mallory))
	if rec.Code != 403 {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	var title string
	if err := d.QueryRow(`SELECT title FROM videos WHERE id = ?`, videoID).Scan(&title); err != nil || title != "original title" {
		t.Errorf("title = %q, want unchanged", title)
	}
}

func TestUpdate_Owner(t *testing.T) {
	d := newTestDB(t)
	media := &fakeMedia{}
	h := &Handler{DB: d, Media: media}
	alice := seedUser(t, d, "alice")
	videoID := seedVideo(t, d, alice, "before", 1, "2024-01-01T00:00:01Z")

	body, contentType := multipartBody(t,
		map[string]string{"title": "after", "description": "new description"},
		map[string]string{"thumbnail": "new-thumb.jpg"})
	rec := httptest.NewRecorder()
	r := httptest.NewRequest("PATCH", "/api/videos/"+videoID, body)
	r.Header.Set("Content-Type", contentType)
	h.HandleUpdate(rec, asUser(withParams(r, "videoId", videoID), alice))

	env := decode(t, rec)
	if rec.Code != 200 {
		t.Fatalf("status = %d, env = %+v", rec.Code, env)
	}
	data := dataMap(t, env)
	if data["title"] != "after" || data["description"] != "new description" {
		t.Errorf("data = %v", data)
	}
	// The replaced thumbnail object is cleaned up.
	if len(media.removed) != 1 {
		t.Errorf("removed %d objects, want 1", len(media.removed))
	}
}

func TestTogglePublish(t *testing.T) {
	d := newTestDB(t)
	h := &Handler{DB: d, Media: &fakeMedia{}}
	alice := seedUser(t, d, "alice")
	videoID := seedVideo(t, d, alice, "flip me", 1, "2024-01-01T00:00:01Z")

	toggle := func() envelope {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest("PATCH", "/api/videos/toggle/publish/"+videoID, nil)
		h.HandleTogglePublish(rec, asUser(withParams(r, "videoId", videoID), alice))
		if rec.Code != 200 {
			t.Fatalf("toggle status = %d", rec.Code)
		}
		return decode(t, rec)
	}

	if data := dataMap(t, toggle()); data["isPublished"] != false {
		t.Errorf("first toggle isPublished = %v, want false", data["isPublished"])
	}

	// Unpublished videos disappear from the public listing.
	rec := httptest.NewRecorder()
	h.HandleList(rec, httptest.NewRequest("GET", "/api/videos", nil))
	if list := dataList(t, decode(t, rec)); len(list) != 0 {
		t.Errorf("listing has %d videos after unpublish, want 0", len(list))
	}

	if data := dataMap(t, toggle()); data["isPublished"] != true {
		t.Errorf("second toggle isPublished = %v, want true", data["isPublished"])
	}
}

func TestTogglePublish_NonOwner(t *testing.T) {
	d := newTestDB(t)
	h := &Handler{DB: d, Media: &fakeMedia{}}
	alice := seedUser(t, d, "alice")
	mallory := seedUser(t, d, "mallory")
	videoID := seedVideo(t, d, alice, "mine", 1, "2024-01-01T00:00:01Z")

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("PATCH", "/api/videos/toggle/publish/"+videoID, nil)
	h.HandleTogglePublish(rec, asUser(withParams(r, "videoId", videoID), mallory))
	if rec.Code != 403 {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestDelete(t *testing.T) {
	d := newTestDB(t)
	media := &fakeMedia{}
	h := &Handler{DB: d, Media: media}
	alice := seedUser(t, d, "alice")
	videoID := seedVideo(t, d, alice, "goner", 1, "2024-01-01T00:00:01Z")

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("DELETE", "/api/videos/"+videoID, nil)
	h.HandleDelete(rec, asUser(withParams(r, "videoId", videoID), alice))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}

	var n int
	if err := d.QueryRow(`SELECT COUNT(*) FROM videos WHERE id = ?`, videoID).Scan(&n); err != nil || n != 0 {
		t.Errorf("video rows = %d, want 0", n)
	}
	if len(media.removed) != 2 {
		t.Errorf("removed %d media objects, want 2 (video + thumbnail)", len(media.removed))
	}
}

func TestDelete_NonOwner(t *testing.T) {
	d := newTestDB(t)
	h := &Handler{DB: d, Media: &fakeMedia{}}
	alice := seedUser(t, d, "alice")
	mallory := seedUser(t, d, "mallory")
	videoID := seedVideo(t, d, alice, "mine", 1, "2024-01-01T00:00:01Z")

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("DELETE", "/api/videos/"+videoID, nil)
	h.HandleDelete(rec, asUser(withParams(r, "videoId", videoID), mallory))
	if rec.Code != 403 {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	var n int
	if err := d.QueryRow(`SELECT COUNT(*) FROM videos WHERE id = ?`, videoID).Scan(&n); err != nil || n != 1 {
		t.Errorf("video rows = %d, want 1 (untouched)", n)
	}
}
