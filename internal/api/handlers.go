// Package api is the HTTP admin surface of the daemon. Every endpoint
// is scoped to an owner identity; the daemon process is the trust
// boundary and the listener binds to loopback by default.
package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rkudryashov/tgmux/internal/broadcast"
	"github.com/rkudryashov/tgmux/internal/bulkjoin"
	"github.com/rkudryashov/tgmux/internal/config"
	"github.com/rkudryashov/tgmux/internal/credstore"
	"github.com/rkudryashov/tgmux/internal/directory"
	"github.com/rkudryashov/tgmux/internal/login"
	"github.com/rkudryashov/tgmux/internal/store"
	"go.uber.org/zap"
)

// Handlers bundles the endpoint implementations and their dependencies.
type Handlers struct {
	cfg    *config.Config
	creds  *credstore.Store
	flow   *login.Flow
	dir    *directory.Directory
	bcast  *broadcast.Engine
	drafts *broadcast.DraftRegistry
	joins  *bulkjoin.Engine
	db     *store.DB
	logger *zap.Logger
}

// New creates the handler set.
func New(
	cfg *config.Config,
	creds *credstore.Store,
	flow *login.Flow,
	dir *directory.Directory,
	bcast *broadcast.Engine,
	drafts *broadcast.DraftRegistry,
	joins *bulkjoin.Engine,
	db *store.DB,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		cfg:    cfg,
		creds:  creds,
		flow:   flow,
		dir:    dir,
		bcast:  bcast,
		drafts: drafts,
		joins:  joins,
		db:     db,
		logger: logger,
	}
}

// ownerID parses the {ownerID} route parameter. A zero return means the
// response has already been written.
func ownerID(w http.ResponseWriter, r *http.Request) int64 {
	id, err := strconv.ParseInt(chi.URLParam(r, "ownerID"), 10, 64)
	if err != nil || id == 0 {
		respondError(w, http.StatusBadRequest, "invalid owner id")
		return 0
	}
	return id
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// accountResponse is one linked account in listings. The API secret is
// never echoed back.
type accountResponse struct {
	OwnerID   int64  `json:"owner_id"`
	AppID     int32  `json:"app_id"`
	AppHash   string `json:"app_hash"`
	Phone     string `json:"phone"`
	Handle    string `json:"handle"`
	AccountID int64  `json:"account_id"`
}

// HandleListAccounts handles GET /accounts.
func (h *Handlers) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	entries := h.creds.List()
	out := make([]accountResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, accountResponse{
			OwnerID:   e.OwnerID,
			AppID:     e.Credential.AppID,
			AppHash:   "<redacted>",
			Phone:     e.Credential.Phone,
			Handle:    e.Credential.Handle(),
			AccountID: e.Credential.AccountID,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"accounts": out})
}
