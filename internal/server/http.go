package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// HealthzHandler answers the health probe as an adjacent HTTP endpoint
// required to integrate but out of core scope.
func (rt *Runtime) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ICEServersHandler returns the static JSON array configured via
// SIGNAL_ICE_SERVERS — no credential minting, since ICE credential
// distribution is out of scope.
func (rt *Runtime) ICEServersHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if len(rt.cfg.ICEServers) == 0 {
		_, _ = w.Write([]byte("[]"))
		return
	}
	_, _ = w.Write(rt.cfg.ICEServers)
}

// tokenRequest is the payload accepted by the development-only token
// issuer.
type tokenRequest struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId,omitempty"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
}

// TokenHandler signs a short-lived token via the same verifier path the
// upgrade handler reads, for local development convenience. In
// production a real issuer is expected to sit outside this process, so
// this endpoint is disabled.
func (rt *Runtime) TokenHandler(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.Production {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	tok, err := rt.Verifier.Issue(req.UserID, req.RoomID, rt.cfg.TokenTTL)
	if err != nil {
		rt.logger.Error("token issuance failed", slog.Any("error", err))
		http.Error(w, "token issuance failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tokenResponse{Token: tok, ExpiresIn: int64(rt.cfg.TokenTTL.Seconds())})
}
