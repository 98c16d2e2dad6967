package playlists

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"vidtube/auth"
	"vidtube/db"
	"vidtube/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handler holds dependencies for playlist endpoints.
type Handler struct {
	DB *db.CompatDB
}

type playlistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HandleCreate creates an empty playlist owned by the caller.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, 400, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" || req.Description == "" {
		httputil.WriteError(w, 400, "Name and description are required")
		return
	}

	playlistID := uuid.New().String()
	_, err := h.DB.ExecContext(r.Context(),
		`INSERT INTO playlists (id, owner_id, name, description) VALUES (?, ?, ?, ?)`,
		playlistID, callerID, req.Name, req.Description)
	if err != nil {
		httputil.WriteError(w, 500, "Unable to create playlist")
		return
	}

	playlist, err := h.loadPlaylist(r.Context(), playlistID)
	if err != nil {
		httputil.WriteError(w, 500, "Unable to create playlist")
		return
	}
	httputil.WriteData(w, 200, playlist, "Playlist created successfully")
}

// HandleGet returns one playlist with its published videos populated,
// each enriched with its owner. Dangling video references are dropped.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	playlistID := chi.URLParam(r, "playlistId")
	if !httputil.ValidID(playlistID) {
		httputil.WriteError(w, 400, "Invalid playlist id")
		return
	}

	var name, description, createdAt, ownerID, ownerName, ownerAvatar string
	err := h.DB.QueryRowContext(r.Context(), `
		SELECT p.name, p.description, p.created_at, u.id, u.full_name, u.avatar_url
		FROM playlists p
		JOIN users u ON p.owner_id = u.id
		WHERE p.id = ?`, playlistID,
	).Scan(&name, &description, &createdAt, &ownerID, &ownerName, &ownerAvatar)
	if err != nil {
		httputil.WriteError(w, 404, "Playlist not found")
		return
	}

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT v.id, v.title, v.description, v.thumbnail_url, v.duration, v.views, v.created_at,
		       u.id, u.full_name
		FROM playlist_videos pv
		JOIN videos v ON pv.video_id = v.id
		JOIN users u ON v.owner_id = u.id
		WHERE pv.playlist_id = ? AND v.is_published = 1
		ORDER BY pv.position ASC, pv.added_at ASC`, playlistID)
	if err != nil {
		httputil.WriteError(w, 500, "Unable to get playlist")
		return
	}
	defer rows.Close()

	videos := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, title, vdesc, thumbnail, vCreatedAt, vOwnerID, vOwnerName string
		var duration float64
		var views int64
		if err := rows.Scan(&id, &title, &vdesc, &thumbnail, &duration, &views, &vCreatedAt,
			&vOwnerID, &vOwnerName); err != nil {
			continue
		}
		videos = append(videos, map[string]interface{}{
			"id": id, "title": title, "description": vdesc,
			"thumbnail": thumbnail, "duration": duration, "views": views,
			"createdAt": vCreatedAt,
			"owner":     map[string]interface{}{"id": vOwnerID, "fullName": vOwnerName},
		})
	}

	httputil.WriteData(w, 200, map[string]interface{}{
		"id": playlistID, "name": name, "description": description,
		"createdAt": createdAt, "videos": videos,
		"owner": map[string]interface{}{
			"id": ownerID, "fullName": ownerName, "avatar": ownerAvatar,
		},
	}, "Playlist fetched successfully")
}

// HandleUpdate renames a playlist, owner only.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)
	playlistID := chi.URLParam(r, "playlistId")
	if !httputil.ValidID(playlistID) {
		httputil.WriteError(w, 400, "Invalid playlist id")
		return
	}
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, 400, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" || req.Description == "" {
		httputil.WriteError(w, 400, "Name and description are required")
		return
	}

	if code, msg := h.guardOwner(r.Context(), playlistID, callerID, "update"); code != 0 {
		httputil.WriteError(w, code, msg)
		return
	}

	res, err := h.DB.ExecContext(r.Context(),
		`UPDATE playlists SET name = ?, description = ?, updated_at = `+h.DB.NowUTC()+` WHERE id = ? AND owner_id = ?`,
		req.Name, req.Description, playlistID, callerID)
	if err != nil {
		httputil.WriteError(w, 500, "Unable to update playlist")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.WriteError(w, 500, "Unable to update playlist")
		return
	}

	playlist, err := h.loadPlaylist(r.Context(), playlistID)
	if err != nil {
		httputil.WriteError(w, 500, "Unable to update playlist")
		return
	}
	httputil.WriteData(w, 200, playlist, "Playlist updated successfully")
}

// HandleDelete removes a playlist and its membership rows, owner only.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)
	playlistID := chi.URLParam(r, "playlistId")
	if !httputil.ValidID(playlistID) {
		httputil.WriteError(w, 400, "Invalid playlist id")
		return
	}

	if code, msg := h.guardOwner(r.Context(), playlistID, callerID, "delete"); code != 0 {
		httputil.WriteError(w, code, msg)
		return
	}

	err := db.WithTx(r.Context(), h.DB, func(conn *db.CompatConn) error {
		if _, err := conn.ExecContext(r.Context(),
			`DELETE FROM playlist_videos WHERE playlist_id = ?`, playlistID); err != nil {
			return err
		}
		_, err := conn.ExecContext(r.Context(),
			`DELETE FROM playlists WHERE id = ? AND owner_id = ?`, playlistID, callerID)
		return err
	})
	if err != nil {
		httputil.WriteError(w, 500, "Unable to delete playlist")
		return
	}
	httputil.WriteData(w, 200, nil, "Playlist deleted successfully")
}

// HandleAddVideo appends a video to the playlist, owner only.
// Duplicate members are rejected by the membership primary key.
func (h *Handler) HandleAddVideo(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)
	playlistID := chi.URLParam(r, "playlistId")
	videoID := chi.URLParam(r, "videoId")
	if !httputil.ValidID(playlistID) || !httputil.ValidID(videoID) {
		httputil.WriteError(w, 400, "Invalid playlist or video id")
		return
	}

	if code, msg := h.guardOwner(r.Context(), playlistID, callerID, "add videos to"); code != 0 {
		httputil.WriteError(w, code, msg)
		return
	}

	res, err := h.DB.ExecContext(r.Context(), `
		INSERT INTO playlist_videos (playlist_id, video_id, position)
		VALUES (?, ?, COALESCE((SELECT MAX(position) + 1 FROM playlist_videos WHERE playlist_id = ?), 0))
		ON CONFLICT DO NOTHING`,
		playlistID, videoID, playlistID)
	if err != nil {
		httputil.WriteError(w, 500, "Unable to add video to playlist")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.WriteError(w, 400, "Video already exists in the playlist")
		return
	}

	playlist, err := h.loadPlaylist(r.Context(), playlistID)
	if err != nil {
		httputil.WriteError(w, 500, "Unable to add video to playlist")
		return
	}
	httputil.WriteData(w, 200, playlist, "Video added to playlist successfully")
}

// HandleRemoveVideo drops a video from the playlist, owner only.
func (h *Handler) HandleRemoveVideo(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)
	playlistID := chi.URLParam(r, "playlistId")
	videoID := chi.URLParam(r, "videoId")
	if !httputil.ValidID(playlistID) || !httputil.ValidID(videoID) {
		httputil.WriteError(w, 400, "Invalid playlist or video id")
		return
	}

	if code, msg := h.guardOwner(r.Context(), playlistID, callerID, "remove videos from"); code != 0 {
		httputil.WriteError(w, code, msg)
		return
	}

	res, err := h.DB.ExecContext(r.Context(),
		`DELETE FROM playlist_videos WHERE playlist_id = ? AND video_id = ?`,
		playlistID, videoID)
	if err != nil {
		httputil.WriteError(w, 500, "Unable to remove video from playlist")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.WriteError(w, 404, "Video not found in playlist")
		return
	}

	playlist, err := h.loadPlaylist(r.Context(), playlistID)
	if err != nil {
		httputil.WriteError(w, 500, "Unable to remove video from playlist")
		return
	}
	httputil.WriteData(w, 200, playlist, "Video removed from playlist successfully")
}

// HandleListByUser returns a user's playlists, newest first.
func (h *Handler) HandleListByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !httputil.ValidID(userID) {
		httputil.WriteError(w, 400, "Invalid user id")
		return
	}
	limit, offset := httputil.ParsePagination(r)

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT p.id, p.name, p.description, p.created_at, u.id, u.full_name
		FROM playlists p
		JOIN users u ON p.owner_id = u.id
		WHERE p.owner_id = ?
		ORDER BY p.created_at DESC
		LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		httputil.WriteError(w, 500, "Unable to get playlists")
		return
	}
	defer rows.Close()

	lists := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, name, description, createdAt, ownerID, ownerName string
		if err := rows.Scan(&id, &name, &description, &createdAt, &ownerID, &ownerName); err != nil {
			continue
		}
		videoIDs, err := h.memberVideoIDs(r.Context(), id)
		if err != nil {
			continue
		}
		lists = append(lists, map[string]interface{}{
			"id": id, "name": name, "description": description,
			"createdAt": createdAt, "videos": videoIDs,
			"owner": map[string]interface{}{"id": ownerID, "fullName": ownerName},
		})
	}
	httputil.WriteData(w, 200, lists, "Playlists fetched successfully")
}

// guardOwner returns (0, "") when the caller owns the playlist, or the
// error status and message to write otherwise.
func (h *Handler) guardOwner(ctx context.Context, playlistID, callerID, verb string) (int, string) {
	var ownerID string
	if err := h.DB.QueryRowContext(ctx,
		`SELECT owner_id FROM playlists WHERE id = ?`, playlistID).Scan(&ownerID); err != nil {
		return 404, "Playlist not found"
	}
	if ownerID != callerID {
		return 403, "You are not authorized to " + verb + " this playlist"
	}
	return 0, ""
}

func (h *Handler) loadPlaylist(ctx context.Context, playlistID string) (map[string]interface{}, error) {
	var id, ownerID, name, description, createdAt, updatedAt string
	err := h.DB.QueryRowContext(ctx,
		`SELECT id, owner_id, name, description, created_at, updated_at FROM playlists WHERE id = ?`,
		playlistID).Scan(&id, &ownerID, &name, &description, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	videoIDs, err := h.memberVideoIDs(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id": id, "owner": ownerID, "name": name, "description": description,
		"videos": videoIDs, "createdAt": createdAt, "updatedAt": updatedAt,
	}, nil
}

func (h *Handler) memberVideoIDs(ctx context.Context, playlistID string) ([]string, error) {
	rows, err := h.DB.QueryContext(ctx,
		`SELECT video_id FROM playlist_videos WHERE playlist_id = ? ORDER BY position ASC, added_at ASC`,
		playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
