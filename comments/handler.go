package comments

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

// Handler holds dependencies for comment endpoints.
type Handler struct {
	DB *db.CompatDB
}

type contentRequest struct {
	Content string `json:"content"`
}

// HandleList returns a video's comments, newest first, with owner details.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoId")
	if !httputil.ValidID(videoID) {
		httputil.WriteError(w, 400, "Invalid video id")
		return
	}
	limit, offset := httputil.ParsePagination(r)

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT c.id, c.content, c.video_id, c.created_at, c.updated_at,
		       u.id, u.username, u.full_name, u.avatar_url
		FROM comments c
		JOIN users u ON c.owner_id = u.id
		WHERE c.video_id = ?
		ORDER BY c.created_at DESC
		LIMIT ? OFFSET ?`, videoID, limit, offset)
	if err != nil {
		httputil.WriteError(w, 500, "Failed to fetch comments")
		return
	}
	defer rows.Close()

	comments := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, content, vid, createdAt, updatedAt string
		var ownerID, username, fullName, avatar string
		if err := rows.Scan(&id, &content, &vid, &createdAt, &updatedAt,
			&ownerID, &username, &fullName, &avatar); err != nil {
			continue
		}
		comments = append(comments, map[string]interface{}{
			"id": id, "content": content, "video": vid,
			"createdAt": createdAt, "updatedAt": updatedAt,
			"owner": map[string]interface{}{
				"id": ownerID, "username": username, "fullName": fullName, "avatar": avatar,
			},
		})
	}
	httputil.WriteData(w, 200, comments, "Comments fetched successfully")
}

// HandleAdd creates a comment on a video. The video reference is weak: the
// video is not required to exist.
func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)
	videoID := chi.URLParam(r, "videoId")
	if !httputil.ValidID(videoID) {
		httputil.WriteError(w, 400, "Invalid video id")
		return
	}
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, 400, "Invalid request body")
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		httputil.WriteError(w, 400, "Content is required")
		return
	}

	commentID := uuid.New().String()
	_, err := h.DB.ExecContext(r.Context(),
		`INSERT INTO comments (id, video_id, owner_id, content) VALUES (?, ?, ?, ?)`,
		commentID, videoID, callerID, req.Content)
	if err != nil {
		httputil.WriteError(w, 500, "Something went wrong while adding the comment")
		return
	}

	comment, err := h.loadComment(r.Context(), commentID)
	if err != nil {
		httputil.WriteError(w, 500, "Something went wrong while adding the comment")
		return
	}
	httputil.WriteData(w, 200, comment, "Comment added successfully")
}

// HandleUpdate edits a comment's content, owner only.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)
	commentID := chi.URLParam(r, "commentId")
	if !httputil.ValidID(commentID) {
		httputil.WriteError(w, 400, "Invalid comment id")
		return
	}
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, 400, "Invalid request body")
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		httputil.WriteError(w, 400, "Content is required")
		return
	}

	var ownerID string
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT owner_id FROM comments WHERE id = ?`, commentID).Scan(&ownerID); err != nil {
		httputil.WriteError(w, 404, "Comment not found")
		return
	}
	if ownerID != callerID {
		httputil.WriteError(w, 403, "You are not authorized to update this comment")
		return
	}

	res, err := h.DB.ExecContext(r.Context(),
		`UPDATE comments SET content = ?, updated_at = `+h.DB.NowUTC()+` WHERE id = ? AND owner_id = ?`,
		req.Content, commentID, callerID)
	if err != nil {
		httputil.WriteError(w, 500, "Something went wrong while updating the comment")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.WriteError(w, 500, "Something went wrong while updating the comment")
		return
	}

	comment, err := h.loadComment(r.Context(), commentID)
	if err != nil {
		httputil.WriteError(w, 500, "Something went wrong while updating the comment")
		return
	}
	httputil.WriteData(w, 200, comment, "Comment updated successfully")
}

// HandleDelete removes a comment, owner only.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)
	commentID := chi.URLParam(r, "commentId")
	if !httputil.ValidID(commentID) {
		httputil.WriteError(w, 400, "Invalid comment id")
		return
	}

	var ownerID string
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT owner_id FROM comments WHERE id = ?`, commentID).Scan(&ownerID); err != nil {
		httputil.WriteError(w, 404, "Comment not found")
		return
	}
	if ownerID != callerID {
		httputil.WriteError(w, 403, "You are not authorized to delete this comment")
		return
	}

	res, err := h.DB.ExecContext(r.Context(),
		`DELETE FROM comments WHERE id = ? AND owner_id = ?`, commentID, callerID)
	if err != nil {
		httputil.WriteError(w, 500, "Something went wrong while deleting the comment")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.WriteError(w, 500, "Something went wrong while deleting the comment")
		return
	}
	httputil.WriteData(w, 200, nil, "Comment deleted successfully")
}

func (h *Handler) loadComment(ctx context.Context, commentID string) (map[string]interface{}, error) {
	var id, content, videoID, ownerID, createdAt, updatedAt string
	err := h.DB.QueryRowContext(ctx,
		`SELECT id, content, video_id, owner_id, created_at, updated_at FROM comments WHERE id = ?`,
		commentID).Scan(&id, &content, &videoID, &ownerID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id": id, "content": content, "video": videoID, "owner": ownerID,
		"createdAt": createdAt, "updatedAt": updatedAt,
	}, nil
}
