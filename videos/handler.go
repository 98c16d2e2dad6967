package videos

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"vidtube/auth"
	"vidtube/db"
	"vidtube/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxUploadBytes bounds multipart parsing memory; larger parts spill to disk.
const maxUploadBytes = 32 << 20

// MediaStore is the slice of the media gateway the video handlers need.
type MediaStore interface {
	Store(ctx context.Context, localPath string) (string, error)
	Remove(ctx context.Context, rawURL string) error
}

// Handler holds dependencies for video endpoints.
type Handler struct {
	DB    *db.CompatDB
	Media MediaStore
}

var sortColumns = map[string]string{
	"createdAt": "v.created_at",
	"views":     "v.views",
	"duration":  "v.duration",
	"title":     "v.title",
}

// HandleList returns published videos, filtered, sorted and paginated.
// Query params: page, limit, query, sortBy, sortType, userId.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := httputil.ParsePagination(r)

	query := `
		SELECT v.id, v.title, v.thumbnail_url, v.duration, v.views, v.created_at,
		       u.id, u.full_name, u.avatar_url
		FROM videos v
		JOIN users u ON v.owner_id = u.id
		WHERE v.is_published = 1`
	var args []interface{}

	if userID := q.Get("userId"); userID != "" {
		if !httputil.ValidID(userID) {
			httputil.WriteError(w, 400, "Invalid user id")
			return
		}
		query += " AND v.owner_id = ?"
		args = append(args, userID)
	}
	if search := q.Get("query"); search != "" {
		query += " AND (v.title LIKE ? OR v.description LIKE ?)"
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern)
	}

	sortCol, ok := sortColumns[q.Get("sortBy")]
	if !ok {
		sortCol = "v.created_at"
	}
	dir := "DESC"
	if q.Get("sortType") == "asc" {
		dir = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s LIMIT ? OFFSET ?", sortCol, dir)
	args = append(args, limit, offset)

	rows, err := h.DB.QueryContext(r.Context(), query, args...)
	if err != nil {
		httputil.WriteError(w, 500, "Failed to fetch videos")
		return
	}
	defer rows.Close()

	videos := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, title, thumbnail, createdAt, ownerID, ownerName, ownerAvatar string
		var duration float64
		var views int64
		if err := rows.Scan(&id, &title, &thumbnail, &duration, &views, &createdAt,
			&ownerID, &ownerName, &ownerAvatar); err != nil {
			continue
		}
		videos = append(videos, map[string]interface{}{
			"id": id, "title": title, "thumbnail": thumbnail,
			"duration": duration, "views": views, "createdAt": createdAt,
			"owner": map[string]interface{}{
				"id": ownerID, "fullName": ownerName, "avatar": ownerAvatar,
			},
		})
	}
	httputil.WriteData(w, 200, videos, "Videos fetched successfully")
}

// HandlePublish creates a video from a multipart upload (videoFile, thumbnail).
// Both uploads must succeed before any database write happens.
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httputil.WriteError(w, 400, "Expected multipart form data")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	description := strings.TrimSpace(r.FormValue("description"))
	if title == "" || description == "" {
		httputil.WriteError(w, 400, "Title and description are required")
		return
	}
	isPublished := r.FormValue("isPublished") != "false"
	duration, _ := strconv.ParseFloat(r.FormValue("duration"), 64)
	if duration < 0 {
		duration = 0
	}

	videoPath, err := saveUpload(r, "videoFile")
	if err != nil {
		httputil.WriteError(w, 400, "A video file is required")
		return
	}
	thumbPath, err := saveUpload(r, "thumbnail")
	if err != nil {
		os.Remove(videoPath)
		httputil.WriteError(w, 400, "A thumbnail is required")
		return
	}

	videoURL, err := h.Media.Store(r.Context(), videoPath)
	if err != nil {
		os.Remove(thumbPath)
		httputil.WriteError(w, 500, "Failed to upload video file")
		return
	}
	thumbnailURL, err := h.Media.Store(r.Context(), thumbPath)
	if err != nil {
		if rmErr := h.Media.Remove(r.Context(), videoURL); rmErr != nil {
			log.Printf("orphaned video object after thumbnail upload failure: %v", rmErr)
		}
		httputil.WriteError(w, 500, "Failed to upload thumbnail")
		return
	}

	videoID := uuid.New().String()
	published := 0
	if isPublished {
		published = 1
	}
	_, err = h.DB.ExecContext(r.Context(), `
		INSERT INTO videos (id, owner_id, title, description, video_url, thumbnail_url, duration, is_published)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		videoID, callerID, title, description, videoURL, thumbnailURL, duration, published)
	if err != nil {
		httputil.WriteError(w, 500, "Something went wrong while publishing the video")
		return
	}

	video, err := h.loadVideo(r.Context(), videoID)
	if err != nil {
		httputil.WriteError(w, 500, "Something went wrong while publishing the video")
		return
	}
	httputil.WriteData(w, 200, video, "Video uploaded successfully")
}

// HandleGet fetches a single video regardless of publish state, bumps its
// view count and records the caller's watch history.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoId")
	if !httputil.ValidID(videoID) {
		httputil.WriteError(w, 400, "Invalid video id")
		return
	}

	video, err := h.loadVideo(r.Context(), videoID)
	if err != nil {
		httputil.WriteError(w, 404, "Video not found")
		return
	}

	if _, err := h.DB.ExecContext(r.Context(),
		`UPDATE videos SET views = views + 1 WHERE id = ?`, videoID); err != nil {
		log.Printf("view count update failed for %s: %v", videoID, err)
	}
	callerID := auth.CallerID(r)
	_, err = h.DB.ExecContext(r.Context(), `
		INSERT INTO watch_history (user_id, video_id, watched_at) VALUES (?, ?, `+h.DB.NowUTC()+`)
		ON CONFLICT (user_id, video_id) DO UPDATE SET watched_at = excluded.watched_at`,
		callerID, videoID)
	if err != nil {
		log.Printf("watch history update failed for %s: %v", videoID, err)
	}

	httputil.WriteData(w, 200, video, "Video fetched successfully")
}

// HandleUpdate edits title/description and optionally replaces media files.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)
	videoID := chi.URLParam(r, "videoId")
	if !httputil.ValidID(videoID) {
		httputil.WriteError(w, 400, "Invalid video id")
		return
	}

	var ownerID, oldVideoURL, oldThumbnailURL string
	err := h.DB.QueryRowContext(r.Context(),
		`SELECT owner_id, video_url, thumbnail_url FROM videos WHERE id = ?`, videoID,
	).Scan(&ownerID, &oldVideoURL, &oldThumbnailURL)
	if err != nil {
		httputil.WriteError(w, 404, "Video not found")
		return
	}
	if ownerID != callerID {
		httputil.WriteError(w, 403, "You are not authorized to update this video")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && err != http.ErrNotMultipart {
		httputil.WriteError(w, 400, "Malformed form data")
		return
	}
	title := strings.TrimSpace(r.FormValue("title"))
	description := strings.TrimSpace(r.FormValue("description"))
	if title == "" || description == "" {
		httputil.WriteError(w, 400, "Title and description are required")
		return
	}

	sets := "title = ?, description = ?, updated_at = " + h.DB.NowUTC()
	args := []interface{}{title, description}

	if thumbPath, err := saveUpload(r, "thumbnail"); err == nil {
		newThumbnail, err := h.Media.Store(r.Context(), thumbPath)
		if err != nil {
			httputil.WriteError(w, 500, "Failed to upload new thumbnail")
			return
		}
		if err := h.Media.Remove(r.Context(), oldThumbnailURL); err != nil {
			log.Printf("failed to remove replaced thumbnail %s: %v", oldThumbnailURL, err)
		}
		sets += ", thumbnail_url = ?"
		args = append(args, newThumbnail)
	}
	if videoPath, err := saveUpload(r, "videoFile"); err == nil {
		newVideo, err := h.Media.Store(r.Context(), videoPath)
		if err != nil {
			httputil.WriteError(w, 500, "Failed to upload new video file")
			return
		}
		if err := h.Media.Remove(r.Context(), oldVideoURL); err != nil {
			log.Printf("failed to remove replaced video file %s: %v", oldVideoURL, err)
		}
		sets += ", video_url = ?"
		args = append(args, newVideo)
		if d, err := strconv.ParseFloat(r.FormValue("duration"), 64); err == nil && d > 0 {
			sets += ", duration = ?"
			args = append(args, d)
		}
	}

	// Write is keyed on id AND owner so a concurrent owner change cannot
	// slip past the check above.
	args = append(args, videoID, callerID)
	res, err := h.DB.ExecContext(r.Context(),
		"UPDATE videos SET "+sets+" WHERE id = ? AND owner_id = ?", args...)
	if err != nil {
		httputil.WriteError(w, 500, "Something went wrong while updating the video")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.WriteError(w, 500, "Something went wrong while updating the video")
		return
	}

	video, err := h.loadVideo(r.Context(), videoID)
	if err != nil {
		httputil.WriteError(w, 500, "Something went wrong while updating the video")
		return
	}
	httputil.WriteData(w, 200, video, "Video updated successfully")
}

// HandleTogglePublish flips the published flag.
func (h *Handler) HandleTogglePublish(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)
	videoID := chi.URLParam(r, "videoId")
	if !httputil.ValidID(videoID) {
		httputil.WriteError(w, 400, "Invalid video id")
		return
	}

	var ownerID string
	var published int
	err := h.DB.QueryRowContext(r.Context(),
		`SELECT owner_id, is_published FROM videos WHERE id = ?`, videoID,
	).Scan(&ownerID, &published)
	if err != nil {
		httputil.WriteError(w, 404, "Video not found")
		return
	}
	if ownerID != callerID {
		httputil.WriteError(w, 403, "You are not authorized to update this video")
		return
	}

	next := 1 - published
	res, err := h.DB.ExecContext(r.Context(),
		`UPDATE videos SET is_published = ?, updated_at = `+h.DB.NowUTC()+` WHERE id = ? AND owner_id = ?`,
		next, videoID, callerID)
	if err != nil {
		httputil.WriteError(w, 500, "Something went wrong while updating the video")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.WriteError(w, 500, "Something went wrong while updating the video")
		return
	}
	httputil.WriteData(w, 200, map[string]interface{}{"isPublished": next == 1},
		"Video publish status updated successfully")
}

// HandleDelete removes the video row, then cleans up its media objects.
// A media deletion failure after the row is gone is logged, not rolled back.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)
	videoID := chi.URLParam(r, "videoId")
	if !httputil.ValidID(videoID) {
		httputil.WriteError(w, 400, "Invalid video id")
		return
	}

	var ownerID, videoURL, thumbnailURL string
	err := h.DB.QueryRowContext(r.Context(),
		`SELECT owner_id, video_url, thumbnail_url FROM videos WHERE id = ?`, videoID,
	).Scan(&ownerID, &videoURL, &thumbnailURL)
	if err != nil {
		httputil.WriteError(w, 404, "Video not found")
		return
	}
	if ownerID != callerID {
		httputil.WriteError(w, 403, "You are not authorized to delete this video")
		return
	}

	res, err := h.DB.ExecContext(r.Context(),
		`DELETE FROM videos WHERE id = ? AND owner_id = ?`, videoID, callerID)
	if err != nil {
		httputil.WriteError(w, 500, "Something went wrong while deleting the video")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.WriteError(w, 500, "Something went wrong while deleting the video")
		return
	}

	for _, u := range []string{videoURL, thumbnailURL} {
		if err := h.Media.Remove(r.Context(), u); err != nil {
			log.Printf("failed to remove media object %s for deleted video %s: %v", u, videoID, err)
		}
	}
	httputil.WriteData(w, 200, nil, "Video deleted successfully")
}

// loadVideo returns the full video document with its owner populated.
func (h *Handler) loadVideo(ctx context.Context, videoID string) (map[string]interface{}, error) {
	var id, title, description, videoURL, thumbnail, createdAt, updatedAt string
	var ownerID, username, avatar string
	var duration float64
	var views int64
	var published int
	err := h.DB.QueryRowContext(ctx, `
		SELECT v.id, v.title, v.description, v.video_url, v.thumbnail_url,
		       v.duration, v.views, v.is_published, v.created_at, v.updated_at,
		       u.id, u.username, u.avatar_url
		FROM videos v
		JOIN users u ON v.owner_id = u.id
		WHERE v.id = ?`, videoID,
	).Scan(&id, &title, &description, &videoURL, &thumbnail,
		&duration, &views, &published, &createdAt, &updatedAt,
		&ownerID, &username, &avatar)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id": id, "title": title, "description": description,
		"videoFile": videoURL, "thumbnail": thumbnail,
		"duration": duration, "views": views, "isPublished": published == 1,
		"createdAt": createdAt, "updatedAt": updatedAt,
		"owner": map[string]interface{}{
			"id": ownerID, "username": username, "avatar": avatar,
		},
	}, nil
}

// saveUpload copies the named multipart file to a temp file and returns its
// path. The caller owns the temp file; the media gateway removes it.
func saveUpload(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", err
	}
	defer file.Close()
	return writeTemp(file, header)
}

func writeTemp(file multipart.File, header *multipart.FileHeader) (string, error) {
	ext := filepath.Ext(header.Filename)
	tmp, err := os.CreateTemp("", "vidtube-upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), nil
}
