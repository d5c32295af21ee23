package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rkudryashov/tgmux/internal/broadcast"
	"github.com/rkudryashov/tgmux/internal/pool"
	"go.uber.org/zap"
)

// writeClientError maps connection-layer failures onto statuses: a
// missing credential is 404, an unauthenticated session 409, anything
// else 502 since the fault is upstream.
func writeClientError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pool.ErrNoCredential):
		respondError(w, http.StatusNotFound, "no linked account")
	case errors.Is(err, pool.ErrUnauthenticated):
		respondError(w, http.StatusConflict, "session is not authorized, log in again")
	default:
		respondError(w, http.StatusBadGateway, err.Error())
	}
}

// dialogResponse is one chat in GET /accounts/{ownerID}/chats.
type dialogResponse struct {
	ChatID      int64  `json:"chat_id"`
	Title       string `json:"title"`
	Kind        string `json:"kind"`
	Username    string `json:"username,omitempty"`
	UnreadCount int    `json:"unread_count"`
	Muted       bool   `json:"muted"`
}

// HandleListChats handles GET /accounts/{ownerID}/chats.
func (h *Handlers) HandleListChats(w http.ResponseWriter, r *http.Request) {
	id := ownerID(w, r)
	if id == 0 {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	dialogs, err := h.dir.List(r.Context(), id, limit)
	if err != nil {
		writeClientError(w, err)
		return
	}

	out := make([]dialogResponse, 0, len(dialogs))
	for _, d := range dialogs {
		out = append(out, dialogResponse{
			ChatID:      d.ChatID,
			Title:       d.Title,
			Kind:        string(d.Kind),
			Username:    d.Username,
			UnreadCount: d.UnreadCount,
			Muted:       d.Muted,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"chats": out})
}

// draftBody is both the PUT request and the GET response for drafts.
type draftBody struct {
	Text         string  `json:"text"`
	Targets      []int64 `json:"targets"`
	DelaySeconds float64 `json:"delay_seconds"`
}

// HandlePutDraft handles PUT /accounts/{ownerID}/draft.
func (h *Handlers) HandlePutDraft(w http.ResponseWriter, r *http.Request) {
	id := ownerID(w, r)
	if id == 0 {
		return
	}

	var req draftBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.DelaySeconds < 0 {
		respondError(w, http.StatusBadRequest, "delay_seconds must not be negative")
		return
	}
	delay := h.cfg.SendDelay()
	if req.DelaySeconds > 0 {
		delay = secondsToDuration(req.DelaySeconds)
	}

	h.drafts.Set(id, broadcast.Draft{Text: req.Text, Targets: req.Targets, Delay: delay})
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetDraft handles GET /accounts/{ownerID}/draft.
func (h *Handlers) HandleGetDraft(w http.ResponseWriter, r *http.Request) {
	id := ownerID(w, r)
	if id == 0 {
		return
	}

	d, ok := h.drafts.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "no draft")
		return
	}
	respondJSON(w, http.StatusOK, draftBody{
		Text:         d.Text,
		Targets:      d.Targets,
		DelaySeconds: d.Delay.Seconds(),
	})
}

// HandleDeleteDraft handles DELETE /accounts/{ownerID}/draft.
func (h *Handlers) HandleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	id := ownerID(w, r)
	if id == 0 {
		return
	}
	h.drafts.Clear(id)
	w.WriteHeader(http.StatusNoContent)
}

// broadcastRequest is the body of POST /accounts/{ownerID}/broadcasts.
// Empty fields fall back to the stored draft.
type broadcastRequest struct {
	Text         string  `json:"text,omitempty"`
	Targets      []int64 `json:"targets,omitempty"`
	DelaySeconds float64 `json:"delay_seconds,omitempty"`
}

// broadcastResponse reports one finished fan-out run.
type broadcastResponse struct {
	JobID  string   `json:"job_id"`
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}

// HandleBroadcast handles POST /accounts/{ownerID}/broadcasts. The call
// blocks until every target has been attempted.
func (h *Handlers) HandleBroadcast(w http.ResponseWriter, r *http.Request) {
	id := ownerID(w, r)
	if id == 0 {
		return
	}

	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	text, targets := req.Text, req.Targets
	delay := h.cfg.SendDelay()
	if req.DelaySeconds > 0 {
		delay = secondsToDuration(req.DelaySeconds)
	}

	fromDraft := false
	if text == "" || len(targets) == 0 {
		d, ok := h.drafts.Get(id)
		if !ok {
			respondError(w, http.StatusBadRequest, "text and targets are required when no draft is stored")
			return
		}
		fromDraft = true
		if text == "" {
			text = d.Text
		}
		if len(targets) == 0 {
			targets = d.Targets
		}
		if req.DelaySeconds == 0 && d.Delay > 0 {
			delay = d.Delay
		}
	}
	if text == "" || len(targets) == 0 {
		respondError(w, http.StatusBadRequest, "text and targets are required")
		return
	}

	res, err := h.bcast.SendToMany(r.Context(), id, text, targets, delay)
	if err != nil {
		writeClientError(w, err)
		return
	}
	if fromDraft {
		h.drafts.Clear(id)
	}

	h.logger.Info("broadcast done",
		zap.Int64("owner_id", id),
		zap.String("job_id", res.JobID),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed))
	respondJSON(w, http.StatusOK, broadcastResponse{
		JobID:  res.JobID,
		Sent:   res.Sent,
		Failed: res.Failed,
		Errors: capStrings(res.Errors, h.cfg.ErrorCap),
	})
}

// broadcastHistoryItem is one recorded run in GET /accounts/{ownerID}/broadcasts.
type broadcastHistoryItem struct {
	JobID       string `json:"job_id"`
	Body        string `json:"body"`
	TargetCount int    `json:"target_count"`
	Sent        int    `json:"sent"`
	Failed      int    `json:"failed"`
	CreatedAt   int64  `json:"created_at"`
	FinishedAt  int64  `json:"finished_at,omitempty"`
}

// HandleBroadcastHistory handles GET /accounts/{ownerID}/broadcasts.
func (h *Handlers) HandleBroadcastHistory(w http.ResponseWriter, r *http.Request) {
	id := ownerID(w, r)
	if id == 0 {
		return
	}

	jobs, err := h.db.ListBroadcasts(id, 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]broadcastHistoryItem, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, broadcastHistoryItem{
			JobID:       j.ID,
			Body:        j.Body,
			TargetCount: j.TargetCount,
			Sent:        j.SentCount,
			Failed:      j.FailedCount,
			CreatedAt:   j.CreatedAt,
			FinishedAt:  j.FinishedAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"broadcasts": out})
}

// joinRequest is the body of POST /accounts/{ownerID}/joins.
type joinRequest struct {
	Refs []string `json:"refs"`
}

// joinResponse reports one finished join-and-archive run.
type joinResponse struct {
	BatchID       string   `json:"batch_id"`
	Joined        int      `json:"joined"`
	Failed        int      `json:"failed"`
	Errors        []string `json:"errors,omitempty"`
	ArchiveErrors []string `json:"archive_errors,omitempty"`
}

// HandleJoin handles POST /accounts/{ownerID}/joins.
func (h *Handlers) HandleJoin(w http.ResponseWriter, r *http.Request) {
	id := ownerID(w, r)
	if id == 0 {
		return
	}

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Refs) == 0 {
		respondError(w, http.StatusBadRequest, "refs is required")
		return
	}

	res, err := h.joins.JoinAndArchive(r.Context(), id, req.Refs, h.cfg.JoinDelay())
	if err != nil {
		writeClientError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, joinResponse{
		BatchID:       res.BatchID,
		Joined:        res.Joined,
		Failed:        res.Failed,
		Errors:        capStrings(res.Errors, h.cfg.ErrorCap),
		ArchiveErrors: capStrings(res.ArchiveErrors, h.cfg.ErrorCap),
	})
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
