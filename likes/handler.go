package likes

import (
	"net/http"

	"vidtube/auth"
	"vidtube/db"
	"vidtube/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handler holds dependencies for like endpoints.
type Handler struct {
	DB *db.CompatDB
}

// HandleToggleVideo toggles the caller's like on a video.
func (h *Handler) HandleToggleVideo(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "video_id", chi.URLParam(r, "videoId"), "video")
}

// HandleToggleComment toggles the caller's like on a comment.
func (h *Handler) HandleToggleComment(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "comment_id", chi.URLParam(r, "commentId"), "comment")
}

// HandleToggleTweet toggles the caller's like on a tweet.
func (h *Handler) HandleToggleTweet(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, "tweet_id", chi.URLParam(r, "tweetId"), "tweet")
}

// toggle flips the presence of the (caller, target) like row inside a single
// transaction: delete-if-present, else insert under the partial unique index.
// Two concurrent toggles cannot both insert.
func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, column, targetID, noun string) {
	if !httputil.ValidID(targetID) {
		httputil.WriteError(w, 400, "Invalid "+noun+" id")
		return
	}
	callerID := auth.CallerID(r)

	var like map[string]interface{}
	err := db.WithTx(r.Context(), h.DB, func(conn *db.CompatConn) error {
		res, err := conn.ExecContext(r.Context(),
			"DELETE FROM likes WHERE liked_by = ? AND "+column+" = ?", callerID, targetID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}

		likeID := uuid.New().String()
		res, err = conn.ExecContext(r.Context(),
			"INSERT INTO likes (id, liked_by, "+column+") VALUES (?, ?, ?) ON CONFLICT DO NOTHING",
			likeID, callerID, targetID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Lost a race with a concurrent insert; surface the existing row.
			err = conn.QueryRowContext(r.Context(),
				"SELECT id FROM likes WHERE liked_by = ? AND "+column+" = ?",
				callerID, targetID).Scan(&likeID)
			if err != nil {
				return err
			}
		}

		var createdAt string
		if err := conn.QueryRowContext(r.Context(),
			"SELECT created_at FROM likes WHERE id = ?", likeID).Scan(&createdAt); err != nil {
			return err
		}
		like = map[string]interface{}{
			"id": likeID, "likedBy": callerID, noun: targetID, "createdAt": createdAt,
		}
		return nil
	})
	if err != nil {
		httputil.WriteError(w, 500, "Something went wrong while toggling the like")
		return
	}

	if like == nil {
		httputil.WriteData(w, 200, nil, "Like removed successfully")
		return
	}
	httputil.WriteData(w, 200, like, "Like added successfully")
}

// HandleLikedVideos lists videos the caller has liked, newest like first.
// Likes whose video has since been deleted are dropped by the join.
func (h *Handler) HandleLikedVideos(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)
	limit, offset := httputil.ParsePagination(r)

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT v.id, v.title, v.description, v.thumbnail_url, v.duration, v.views, v.created_at,
		       u.id, u.full_name, u.avatar_url
		FROM likes l
		JOIN videos v ON l.video_id = v.id
		JOIN users u ON v.owner_id = u.id
		WHERE l.liked_by = ? AND l.video_id IS NOT NULL
		ORDER BY l.created_at DESC
		LIMIT ? OFFSET ?`, callerID, limit, offset)
	if err != nil {
		httputil.WriteError(w, 500, "Failed to fetch liked videos")
		return
	}
	defer rows.Close()

	videos := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, title, description, thumbnail, createdAt string
		var ownerID, ownerName, ownerAvatar string
		var duration float64
		var views int64
		if err := rows.Scan(&id, &title, &description, &thumbnail, &duration, &views, &createdAt,
			&ownerID, &ownerName, &ownerAvatar); err != nil {
			continue
		}
		videos = append(videos, map[string]interface{}{
			"id": id, "title": title, "description": description,
			"thumbnail": thumbnail, "duration": duration, "views": views,
			"createdAt": createdAt,
			"owner": map[string]interface{}{
				"id": ownerID, "fullName": ownerName, "avatar": ownerAvatar,
			},
		})
	}
	httputil.WriteData(w, 200, videos, "Liked videos fetched successfully")
}
