package users

import (
	"net/http"

	"vidtube/auth"
	"vidtube/db"
	"vidtube/httputil"
)

// Handler holds dependencies for user profile endpoints.
type Handler struct {
	DB *db.CompatDB
}

// HandleWatchHistory lists the caller's watched videos, most recent first.
// History rows whose video has been deleted are dropped by the join.
func (h *Handler) HandleWatchHistory(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)
	limit, offset := httputil.ParsePagination(r)

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT v.id, v.title, v.thumbnail_url, v.duration, v.views, wh.watched_at,
		       u.id, u.full_name, u.avatar_url
		FROM watch_history wh
		JOIN videos v ON wh.video_id = v.id
		JOIN users u ON v.owner_id = u.id
		WHERE wh.user_id = ?
		ORDER BY wh.watched_at DESC
		LIMIT ? OFFSET ?`, callerID, limit, offset)
	if err != nil {
		httputil.WriteError(w, 500, "Failed to fetch watch history")
		return
	}
	defer rows.Close()

	history := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, title, thumbnail, watchedAt string
		var ownerID, ownerName, ownerAvatar string
		var duration float64
		var views int64
		if err := rows.Scan(&id, &title, &thumbnail, &duration, &views, &watchedAt,
			&ownerID, &ownerName, &ownerAvatar); err != nil {
			continue
		}
		history = append(history, map[string]interface{}{
			"id": id, "title": title, "thumbnail": thumbnail,
			"duration": duration, "views": views, "watchedAt": watchedAt,
			"owner": map[string]interface{}{
				"id": ownerID, "fullName": ownerName, "avatar": ownerAvatar,
			},
		})
	}
	httputil.WriteData(w, 200, history, "Watch history fetched successfully")
}
