package tweets

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

// Handler holds dependencies for tweet endpoints.
type Handler struct {
	DB *db.CompatDB
}

type contentRequest struct {
	Content string `json:"content"`
}

// HandleCreate posts a new tweet for the caller.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)
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

	tweetID := uuid.New().String()
	_, err := h.DB.ExecContext(r.Context(),
		`INSERT INTO tweets (id, owner_id, content) VALUES (?, ?, ?)`,
		tweetID, callerID, req.Content)
	if err != nil {
		httputil.WriteError(w, 500, "Unable to create tweet")
		return
	}

	tweet, err := h.loadTweet(r.Context(), tweetID)
	if err != nil {
		httputil.WriteError(w, 500, "Unable to create tweet")
		return
	}
	httputil.WriteData(w, 200, tweet, "Tweet created successfully")
}

// HandleListByUser returns a user's tweets, newest first, with owner details.
func (h *Handler) HandleListByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !httputil.ValidID(userID) {
		httputil.WriteError(w, 400, "Invalid user id")
		return
	}
	limit, offset := httputil.ParsePagination(r)

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT t.id, t.content, t.created_at, t.updated_at,
		       u.id, u.username, u.full_name, u.avatar_url
		FROM tweets t
		JOIN users u ON t.owner_id = u.id
		WHERE t.owner_id = ?
		ORDER BY t.created_at DESC
		LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		httputil.WriteError(w, 500, "Failed to fetch tweets")
		return
	}
	defer rows.Close()

	tweets := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, content, createdAt, updatedAt string
		var ownerID, username, fullName, avatar string
		if err := rows.Scan(&id, &content, &createdAt, &updatedAt,
			&ownerID, &username, &fullName, &avatar); err != nil {
			continue
		}
		tweets = append(tweets, map[string]interface{}{
			"id": id, "content": content,
			"createdAt": createdAt, "updatedAt": updatedAt,
			"owner": map[string]interface{}{
				"id": ownerID, "username": username, "fullName": fullName, "avatar": avatar,
			},
		})
	}
	httputil.WriteData(w, 200, tweets, "User tweets fetched successfully")
}

// HandleUpdate edits a tweet's content, owner only.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)
	tweetID := chi.URLParam(r, "tweetId")
	if !httputil.ValidID(tweetID) {
		httputil.WriteError(w, 400, "Invalid tweet id")
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
		`SELECT owner_id FROM tweets WHERE id = ?`, tweetID).Scan(&ownerID); err != nil {
		httputil.WriteError(w, 404, "Tweet not found")
		return
	}
	if ownerID != callerID {
		httputil.WriteError(w, 403, "You are not authorized to update this tweet")
		return
	}

	res, err := h.DB.ExecContext(r.Context(),
		`UPDATE tweets SET content = ?, updated_at = `+h.DB.NowUTC()+` WHERE id = ? AND owner_id = ?`,
		req.Content, tweetID, callerID)
	if err != nil {
		httputil.WriteError(w, 500, "Unable to update tweet")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.WriteError(w, 500, "Unable to update tweet")
		return
	}

	tweet, err := h.loadTweet(r.Context(), tweetID)
	if err != nil {
		httputil.WriteError(w, 500, "Unable to update tweet")
		return
	}
	httputil.WriteData(w, 200, tweet, "Tweet updated successfully")
}

// HandleDelete removes a tweet, owner only.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)
	tweetID := chi.URLParam(r, "tweetId")
	if !httputil.ValidID(tweetID) {
		httputil.WriteError(w, 400, "Invalid tweet id")
		return
	}

	var ownerID string
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT owner_id FROM tweets WHERE id = ?`, tweetID).Scan(&ownerID); err != nil {
		httputil.WriteError(w, 404, "Tweet not found")
		return
	}
	if ownerID != callerID {
		httputil.WriteError(w, 403, "You are not authorized to delete this tweet")
		return
	}

	res, err := h.DB.ExecContext(r.Context(),
		`DELETE FROM tweets WHERE id = ? AND owner_id = ?`, tweetID, callerID)
	if err != nil {
		httputil.WriteError(w, 500, "Unable to delete tweet")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		httputil.WriteError(w, 500, "Unable to delete tweet")
		return
	}
	httputil.WriteData(w, 200, nil, "Tweet deleted successfully")
}

func (h *Handler) loadTweet(ctx context.Context, tweetID string) (map[string]interface{}, error) {
	var id, content, ownerID, createdAt, updatedAt string
	err := h.DB.QueryRowContext(ctx,
		`SELECT id, content, owner_id, created_at, updated_at FROM tweets WHERE id = ?`,
		tweetID).Scan(&id, &content, &ownerID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id": id, "content": content, "owner": ownerID,
		"createdAt": createdAt, "updatedAt": updatedAt,
	}, nil
}
