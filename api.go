/*
Copyright © 2026 iknowur contributors
*/

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Request handlers for the party protocol. Each resolves a party, calls the
// matching store operation, and returns the viewer-projected result; domain
// failures come back as taxonomy codes mapped onto HTTP statuses.

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Code  Code   `json:"code,omitempty"`
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func writeError(cfg *Config, w http.ResponseWriter, err error) {
	var ge *GameError
	if errors.As(err, &ge) {
		writeJSON(cfg, w, httpStatus(ge.Code), errorResponse{Error: ge.Message, Code: ge.Code})
		return
	}

	writeJSON(cfg, w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func writeBadRequest(cfg *Config, w http.ResponseWriter, message string) {
	writeJSON(cfg, w, http.StatusBadRequest, errorResponse{Error: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func handleCreateParty(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req struct {
			PlayerID string `json:"playerId"`
			Name     string `json:"name"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			writeBadRequest(cfg, w, "invalid request body")
			return
		}
		if req.PlayerID == "" || cleanName(req.Name) == "" {
			writeBadRequest(cfg, w, "playerId and name are required")
			return
		}

		view, err := store.CreateParty(req.PlayerID, req.Name)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusCreated, map[string]any{
			"party":    view,
			"playerId": req.PlayerID,
		})
	}
}

func handleJoinParty(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req struct {
			PartyCode string `json:"partyCode"`
			PlayerID  string `json:"playerId"`
			Name      string `json:"name"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			writeBadRequest(cfg, w, "invalid request body")
			return
		}
		if req.PartyCode == "" || req.PlayerID == "" || req.Name == "" {
			writeBadRequest(cfg, w, "partyCode, playerId, name are required")
			return
		}

		view, err := store.JoinParty(req.PartyCode, req.PlayerID, req.Name)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, map[string]any{
			"party":    view,
			"playerId": req.PlayerID,
		})
	}
}

func handleGetParty(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		playerID := r.URL.Query().Get("playerId")

		view, err := store.GetParty(ps.ByName("partyid"), playerID)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, map[string]any{
			"party":    view,
			"playerId": playerID,
		})
	}
}

func handleSubmitPredictions(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var req struct {
			PlayerID    string            `json:"playerId"`
			Predictions []PredictionEntry `json:"predictions"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			writeBadRequest(cfg, w, "invalid request body")
			return
		}

		refs, view, err := store.SubmitPredictions(ps.ByName("partyid"), req.PlayerID, req.Predictions)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusCreated, map[string]any{
			"predictionRefs": refs,
			"party":          view,
		})
	}
}

func handleCreateClaim(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var req struct {
			PlayerID     string `json:"playerId"`
			PredictionID string `json:"predictionId"`
			RevealedText string `json:"revealedText"`
			Salt         string `json:"salt"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			writeBadRequest(cfg, w, "invalid request body")
			return
		}
		if req.RevealedText == "" || req.Salt == "" {
			writeBadRequest(cfg, w, "revealedText and salt are required")
			return
		}

		claimID, view, err := store.CreateClaim(ps.ByName("partyid"), req.PlayerID, req.PredictionID, req.RevealedText, req.Salt)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusCreated, map[string]any{
			"claimId": claimID,
			"party":   view,
		})
	}
}

func handleCastVote(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var req struct {
			PlayerID string `json:"playerId"`
			Vote     string `json:"vote"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			writeBadRequest(cfg, w, "invalid request body")
			return
		}

		outcome, view, err := store.CastVote(ps.ByName("partyid"), ps.ByName("claimid"), req.PlayerID, req.Vote)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, map[string]any{
			"status":   outcome.Status,
			"yesVotes": outcome.YesVotes,
			"noVotes":  outcome.NoVotes,
			"party":    view,
		})
	}
}

func handleAPIHealth(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(cfg, w, http.StatusOK, map[string]any{
			"ok": true,
			"at": time.Now(),
		})
	}
}

// handleJoinQR generates a PNG QR code for the party's join URL, so a phone
// can join by scanning. Scheme respects TLS and X-Forwarded-Proto.
func handleJoinQR(cfg *Config, store *Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		p := store.get(ps.ByName("partyid"))
		if p == nil {
			writeError(cfg, w, gameErr(CodeNotFound, "party not found"))
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + "/?join=" + p.Code

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

// registerPredictionParty wires the party protocol under /api:
//   - POST /api/parties                                → create
//   - POST /api/join                                   → join by code
//   - GET  /api/parties/:partyid                       → viewer-projected state
//   - POST /api/parties/:partyid/predictions/submit    → prediction batch
//   - POST /api/parties/:partyid/claims                → reveal + open claim
//   - POST /api/parties/:partyid/claims/:claimid/votes → vote
//   - GET  /api/parties/:partyid/ws                    → change notifications
//   - GET  /api/parties/:partyid/qr                    → join QR code
func registerPredictionParty(cfg *Config, store *Store, notifier *Notifier, mux *httprouter.Router) {
	store.notify = notifier.PartyChanged

	mux.POST(cfg.prefix+"/api/parties", handleCreateParty(cfg, store))
	// Not /api/parties/join: the router rejects a static segment alongside
	// the :partyid wildcard.
	mux.POST(cfg.prefix+"/api/join", handleJoinParty(cfg, store))
	mux.GET(cfg.prefix+"/api/parties/:partyid", handleGetParty(cfg, store))
	mux.POST(cfg.prefix+"/api/parties/:partyid/predictions/submit", handleSubmitPredictions(cfg, store))
	mux.POST(cfg.prefix+"/api/parties/:partyid/claims", handleCreateClaim(cfg, store))
	mux.POST(cfg.prefix+"/api/parties/:partyid/claims/:claimid/votes", handleCastVote(cfg, store))
	mux.GET(cfg.prefix+"/api/parties/:partyid/ws", serveNotifyWS(cfg, store, notifier))
	mux.GET(cfg.prefix+"/api/parties/:partyid/qr", handleJoinQR(cfg, store))
	mux.GET(cfg.prefix+"/api/health", handleAPIHealth(cfg))
}
