package dashboard

import (
	"net/http"

	"vidtube/auth"
	"vidtube/db"
	"vidtube/httputil"
)

// Handler holds dependencies for channel dashboard endpoints.
type Handler struct {
	DB *db.CompatDB
}

// HandleStats aggregates the caller's channel statistics. Each aggregate is
// computed independently and defaults to zero rather than failing.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)
	ctx := r.Context()

	var totalSubscribers int64
	if err := h.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE channel_id = ?`, callerID,
	).Scan(&totalSubscribers); err != nil {
		totalSubscribers = 0
	}

	var totalVideos, totalViews int64
	if err := h.DB.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(views), 0) FROM videos WHERE owner_id = ?`, callerID,
	).Scan(&totalVideos, &totalViews); err != nil {
		totalVideos, totalViews = 0, 0
	}

	var totalLikes int64
	if err := h.DB.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM likes l
		JOIN videos v ON l.video_id = v.id
		WHERE v.owner_id = ?`, callerID,
	).Scan(&totalLikes); err != nil {
		totalLikes = 0
	}

	httputil.WriteData(w, 200, map[string]interface{}{
		"totalSubscribers": totalSubscribers,
		"totalLikes":       totalLikes,
		"totalVideos":      totalVideos,
		"totalViews":       totalViews,
	}, "Channel stats fetched successfully")
}

// HandleVideos lists all of the caller's videos (any publish state) with
// per-video like counts, newest first.
func (h *Handler) HandleVideos(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)
	limit, offset := httputil.ParsePagination(r)

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT v.id, v.title, v.description, v.thumbnail_url, v.duration, v.views,
		       v.is_published, v.created_at,
		       COUNT(l.id) AS total_likes,
		       u.id, u.full_name, u.avatar_url
		FROM videos v
		JOIN users u ON v.owner_id = u.id
		LEFT JOIN likes l ON l.video_id = v.id
		WHERE v.owner_id = ?
		GROUP BY v.id, u.id
		ORDER BY v.created_at DESC
		LIMIT ? OFFSET ?`, callerID, limit, offset)
	if err != nil {
		httputil.WriteError(w, 500, "Failed to fetch channel videos")
		return
	}
	defer rows.Close()

	videos := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, title, description, thumbnail, createdAt string
		var ownerID, ownerName, ownerAvatar string
		var duration float64
		var views, totalLikes int64
		var published int
		if err := rows.Scan(&id, &title, &description, &thumbnail, &duration, &views,
			&published, &createdAt, &totalLikes, &ownerID, &ownerName, &ownerAvatar); err != nil {
			continue
		}
		videos = append(videos, map[string]interface{}{
			"id": id, "title": title, "description": description,
			"thumbnail": thumbnail, "duration": duration, "views": views,
			"isPublished": published == 1, "createdAt": createdAt,
			"totalLikes": totalLikes,
			"owner": map[string]interface{}{
				"id": ownerID, "fullName": ownerName, "avatar": ownerAvatar,
			},
		})
	}
	httputil.WriteData(w, 200, videos, "Channel videos fetched successfully")
}
