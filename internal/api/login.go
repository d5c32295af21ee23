package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rkudryashov/tgmux/internal/login"
	"github.com/rkudryashov/tgmux/internal/pool"
	"go.uber.org/zap"
)

// loginRequest is the body of POST /accounts/{ownerID}/login.
type loginRequest struct {
	AppID   int32  `json:"app_id"`
	AppHash string `json:"app_hash"`
	Phone   string `json:"phone"`
}

// loginResponse is the reply for login, code verification, and attach.
// State discriminates challenge outcomes; a challenge is a normal reply,
// not an error.
type loginResponse struct {
	State   string           `json:"state"`
	Message string           `json:"message,omitempty"`
	Account *accountResponse `json:"account,omitempty"`
}

// HandleLogin handles POST /accounts/{ownerID}/login.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	id := ownerID(w, r)
	if id == 0 {
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AppID == 0 || req.AppHash == "" || req.Phone == "" {
		respondError(w, http.StatusBadRequest, "app_id, app_hash, and phone are required")
		return
	}

	res, err := h.flow.Begin(r.Context(), id, req.AppID, req.AppHash, req.Phone)
	if err != nil {
		h.logger.Warn("login begin failed", zap.Int64("owner_id", id), zap.Error(err))
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := loginResponse{State: string(res.State), Message: res.Message}
	if res.Account != nil {
		resp.Account = h.account(id)
	}
	respondJSON(w, http.StatusOK, resp)
}

// codeRequest is the body of POST /accounts/{ownerID}/login/code.
type codeRequest struct {
	Code     string `json:"code"`
	Password string `json:"password,omitempty"`
}

// HandleLoginCode handles POST /accounts/{ownerID}/login/code.
func (h *Handlers) HandleLoginCode(w http.ResponseWriter, r *http.Request) {
	id := ownerID(w, r)
	if id == 0 {
		return
	}

	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.flow.Complete(r.Context(), id, req.Code, req.Password)
	if errors.Is(err, login.ErrNoPendingLogin) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Warn("login complete failed", zap.Int64("owner_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := loginResponse{State: string(res.Outcome), Message: res.Message}
	if res.Outcome == login.OutcomeSuccess {
		resp.Account = h.account(id)
	}
	respondJSON(w, http.StatusOK, resp)
}

// attachRequest is the body of POST /accounts/{ownerID}/attach.
// SessionPath is optional; empty means the owner's default location.
type attachRequest struct {
	AppID       int32  `json:"app_id"`
	AppHash     string `json:"app_hash"`
	SessionPath string `json:"session_path,omitempty"`
}

// HandleAttach handles POST /accounts/{ownerID}/attach.
func (h *Handlers) HandleAttach(w http.ResponseWriter, r *http.Request) {
	id := ownerID(w, r)
	if id == 0 {
		return
	}

	var req attachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AppID == 0 || req.AppHash == "" {
		respondError(w, http.StatusBadRequest, "app_id and app_hash are required")
		return
	}

	if _, err := h.flow.Attach(r.Context(), id, req.AppID, req.AppHash, req.SessionPath); err != nil {
		h.logger.Warn("attach failed", zap.Int64("owner_id", id), zap.Error(err))
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, loginResponse{
		State:   string(login.OutcomeSuccess),
		Account: h.account(id),
	})
}

// HandleUnlink handles DELETE /accounts/{ownerID}.
func (h *Handlers) HandleUnlink(w http.ResponseWriter, r *http.Request) {
	id := ownerID(w, r)
	if id == 0 {
		return
	}

	err := h.flow.Unlink(r.Context(), id)
	if errors.Is(err, pool.ErrNoCredential) {
		respondError(w, http.StatusNotFound, "no linked account")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) account(ownerID int64) *accountResponse {
	cred, ok := h.creds.Get(ownerID)
	if !ok {
		return nil
	}
	return &accountResponse{
		OwnerID:   ownerID,
		AppID:     cred.AppID,
		AppHash:   "<redacted>",
		Phone:     cred.Phone,
		Handle:    cred.Handle(),
		AccountID: cred.AccountID,
	}
}
