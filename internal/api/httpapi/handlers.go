package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/osa030/19radio/internal/app/presence"
)

// Envelope is the body of every command response. Result carries the
// command-specific payload.
type Envelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Result  any    `json:"result,omitempty"`
}

type refBody struct {
	Ref string `json:"ref"`
}

type volumeBody struct {
	Percent int `json:"percent"`
}

type priorityBody struct {
	Keyword string `json:"keyword"`
	Level   string `json:"level"`
}

type rateBody struct {
	Ref    string `json:"ref"`
	Rating int    `json:"rating"`
}

type presenceBody struct {
	Kind         string `json:"kind"`
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	SelfMuted    bool   `json:"self_muted"`
	SelfDeafened bool   `json:"self_deafened"`
}

func (s *Server) respond(w http.ResponseWriter, code string, result any) {
	writeJSON(w, http.StatusOK, Envelope{Code: code, Message: s.cfg.GetMessage(code), Result: result})
}

func (s *Server) handleNow(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, managerFrom(r).Scheduler().Now())
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	n := 5
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "invalid_argument", "n must be a non-negative integer")
			return
		}
		n = v
	}
	explain, _ := strconv.ParseBool(r.URL.Query().Get("explain"))
	writeJSON(w, http.StatusOK, managerFrom(r).Scheduler().Next(r.Context(), n, explain))
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, managerFrom(r).Scheduler().Queue())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, managerFrom(r).Scheduler().History())
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	res := managerFrom(r).Scheduler().VoteSkip(r.Context(), r.Header.Get(UserIDHeader))
	s.respond(w, res.Code, res)
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var body refBody
	if !decodeBody(w, r, &body) {
		return
	}
	res := managerFrom(r).Scheduler().Request(r.Context(), r.Header.Get(UserIDHeader), r.Header.Get(DisplayNameHeader), body.Ref)
	s.respond(w, res.Code, res)
}

func (s *Server) handleDemand(w http.ResponseWriter, r *http.Request) {
	var body refBody
	if !decodeBody(w, r, &body) {
		return
	}
	res := managerFrom(r).Scheduler().Demand(r.Context(), r.Header.Get(UserIDHeader), r.Header.Get(DisplayNameHeader), body.Ref)
	s.respond(w, res.Code, res)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var body refBody
	if r.ContentLength != 0 && !decodeBody(w, r, &body) {
		return
	}
	res := managerFrom(r).Scheduler().Withdraw(r.Context(), r.Header.Get(UserIDHeader), body.Ref)
	s.respond(w, res.Code, res)
}

func (s *Server) handleGetPriority(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, managerFrom(r).Scheduler().Priorities(r.Header.Get(UserIDHeader)))
}

func (s *Server) handleSetPriority(w http.ResponseWriter, r *http.Request) {
	var body priorityBody
	if !decodeBody(w, r, &body) {
		return
	}
	res := managerFrom(r).Scheduler().SetPriority(r.Context(), r.Header.Get(UserIDHeader), body.Keyword, body.Level)
	s.respond(w, res.Code, res)
}

func (s *Server) handleClearPriority(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("keyword")
	res := managerFrom(r).Scheduler().ClearPriority(r.Context(), r.Header.Get(UserIDHeader), keyword)
	s.respond(w, res.Code, res)
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	var body rateBody
	if !decodeBody(w, r, &body) {
		return
	}
	res := managerFrom(r).Scheduler().Rate(r.Context(), r.Header.Get(UserIDHeader), body.Ref, body.Rating)
	s.respond(w, res.Code, res)
}

func (s *Server) handleOn(w http.ResponseWriter, r *http.Request) {
	s.respond(w, managerFrom(r).Scheduler().On(), nil)
}

func (s *Server) handleOff(w http.ResponseWriter, r *http.Request) {
	s.respond(w, managerFrom(r).Scheduler().Off(), nil)
}

func (s *Server) handleAnother(w http.ResponseWriter, r *http.Request) {
	s.respond(w, managerFrom(r).Scheduler().Another(), nil)
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var body volumeBody
	if !decodeBody(w, r, &body) {
		return
	}
	s.respond(w, managerFrom(r).Scheduler().SetVolume(r.Context(), body.Percent), body)
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	var body presenceBody
	if !decodeBody(w, r, &body) {
		return
	}
	kind, err := presence.ParseEventKind(body.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	if body.UserID == "" && kind != presence.EventOutputMute {
		writeError(w, http.StatusBadRequest, "invalid_argument", "user_id required")
		return
	}

	ev := presence.Event{
		Kind:         kind,
		UserID:       body.UserID,
		DisplayName:  body.DisplayName,
		SelfMuted:    body.SelfMuted,
		SelfDeafened: body.SelfDeafened,
	}
	if err := managerFrom(r).HandlePresence(r.Context(), ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	s.respond(w, "success", nil)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Envelope{Code: code, Message: message})
}
