package subscriptions

import (
	"net/http"

	"vidtube/auth"
	"vidtube/db"
	"vidtube/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handler holds dependencies for subscription endpoints.
type Handler struct {
	DB *db.CompatDB
}

// HandleToggle subscribes the caller to a channel, or unsubscribes if a
// subscription already exists. Self-subscription is rejected outright.
func (h *Handler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	callerID := auth.CallerID(r)
	channelID := chi.URLParam(r, "channelId")
	if !httputil.ValidID(channelID) {
		httputil.WriteError(w, 400, "Invalid channel id")
		return
	}
	if channelID == callerID {
		httputil.WriteError(w, 400, "You cannot subscribe to your own channel")
		return
	}

	var exists int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT 1 FROM users WHERE id = ?`, channelID).Scan(&exists); err != nil {
		httputil.WriteError(w, 404, "Channel not found")
		return
	}

	var sub map[string]interface{}
	err := db.WithTx(r.Context(), h.DB, func(conn *db.CompatConn) error {
		res, err := conn.ExecContext(r.Context(),
			`DELETE FROM subscriptions WHERE channel_id = ? AND subscriber_id = ?`,
			channelID, callerID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}

		subID := uuid.New().String()
		res, err = conn.ExecContext(r.Context(),
			`INSERT INTO subscriptions (id, channel_id, subscriber_id) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
			subID, channelID, callerID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			err = conn.QueryRowContext(r.Context(),
				`SELECT id FROM subscriptions WHERE channel_id = ? AND subscriber_id = ?`,
				channelID, callerID).Scan(&subID)
			if err != nil {
				return err
			}
		}

		var createdAt string
		if err := conn.QueryRowContext(r.Context(),
			`SELECT created_at FROM subscriptions WHERE id = ?`, subID).Scan(&createdAt); err != nil {
			return err
		}
		sub = map[string]interface{}{
			"id": subID, "channel": channelID, "subscriber": callerID, "createdAt": createdAt,
		}
		return nil
	})
	if err != nil {
		httputil.WriteError(w, 500, "Something went wrong while toggling the subscription")
		return
	}

	if sub == nil {
		httputil.WriteData(w, 200, nil, "Unsubscribed successfully")
		return
	}
	httputil.WriteData(w, 200, sub, "Subscribed successfully")
}

// HandleListSubscribers returns the users subscribed to a channel.
func (h *Handler) HandleListSubscribers(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelId")
	if !httputil.ValidID(channelID) {
		httputil.WriteError(w, 400, "Invalid channel id")
		return
	}
	var exists int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT 1 FROM users WHERE id = ?`, channelID).Scan(&exists); err != nil {
		httputil.WriteError(w, 404, "Channel not found")
		return
	}
	limit, offset := httputil.ParsePagination(r)

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT s.channel_id, u.id, u.username, u.avatar_url
		FROM subscriptions s
		JOIN users u ON s.subscriber_id = u.id
		WHERE s.channel_id = ?
		ORDER BY s.created_at DESC
		LIMIT ? OFFSET ?`, channelID, limit, offset)
	if err != nil {
		httputil.WriteError(w, 500, "Failed to fetch subscribers")
		return
	}
	defer rows.Close()

	subscribers := make([]map[string]interface{}, 0)
	for rows.Next() {
		var channel, id, username, avatar string
		if err := rows.Scan(&channel, &id, &username, &avatar); err != nil {
			continue
		}
		subscribers = append(subscribers, map[string]interface{}{
			"channel": channel,
			"subscriber": map[string]interface{}{
				"id": id, "username": username, "avatar": avatar,
			},
		})
	}
	httputil.WriteData(w, 200, subscribers, "Subscribers fetched successfully")
}

// HandleListSubscribed returns the channels a user has subscribed to.
func (h *Handler) HandleListSubscribed(w http.ResponseWriter, r *http.Request) {
	subscriberID := chi.URLParam(r, "subscriberId")
	if !httputil.ValidID(subscriberID) {
		httputil.WriteError(w, 400, "Invalid subscriber id")
		return
	}
	var exists int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT 1 FROM users WHERE id = ?`, subscriberID).Scan(&exists); err != nil {
		httputil.WriteError(w, 404, "Subscriber not found")
		return
	}
	limit, offset := httputil.ParsePagination(r)

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT s.subscriber_id, u.id, u.username, u.avatar_url
		FROM subscriptions s
		JOIN users u ON s.channel_id = u.id
		WHERE s.subscriber_id = ?
		ORDER BY s.created_at DESC
		LIMIT ? OFFSET ?`, subscriberID, limit, offset)
	if err != nil {
		httputil.WriteError(w, 500, "Failed to fetch subscribed channels")
		return
	}
	defer rows.Close()

	channels := make([]map[string]interface{}, 0)
	for rows.Next() {
		var subscriber, id, username, avatar string
		if err := rows.Scan(&subscriber, &id, &username, &avatar); err != nil {
			continue
		}
		channels = append(channels, map[string]interface{}{
			"subscriber": subscriber,
			"channel": map[string]interface{}{
				"id": id, "username": username, "avatar": avatar,
			},
		})
	}
	httputil.WriteData(w, 200, channels, "Subscribed channels fetched successfully")
}
