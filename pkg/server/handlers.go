package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillforge/pkg/export"
	"github.com/jingkaihe/skillforge/pkg/ingest"
	"github.com/jingkaihe/skillforge/pkg/logger"
	"github.com/jingkaihe/skillforge/pkg/render"
	"github.com/jingkaihe/skillforge/pkg/session"
	"github.com/jingkaihe/skillforge/pkg/skills"
	"github.com/jingkaihe/skillforge/pkg/types/failure"
	"github.com/jingkaihe/skillforge/pkg/types/skill"
	"github.com/jingkaihe/skillforge/pkg/types/sop"
)

// Attachment is an uploaded file; Data is base64 encoded in JSON
type Attachment struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

func toAttachments(in []Attachment) []ingest.Attachment {
	out := make([]ingest.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, ingest.Attachment{Name: a.Name, Data: a.Data})
	}
	return out
}

// SynthesizeRequest is the body of POST /sessions/{id}/sop
type SynthesizeRequest struct {
	Task        string       `json:"task"`
	Deliverable string       `json:"deliverable"`
	References  []Attachment `json:"references,omitempty"`
}

// ReviseRequest is the body of POST /sessions/{id}/sop/revise
type ReviseRequest struct {
	Feedback string `json:"feedback"`
}

// LoadSkillRequest is the body of POST /sessions/{id}/skill/load
type LoadSkillRequest struct {
	Name string `json:"name"`
}

// ChatRequest is the body of POST /sessions/{id}/chat
type ChatRequest struct {
	Message     string       `json:"message"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ExportRequest is the body of POST /sessions/{id}/export
type ExportRequest struct {
	Format string `json:"format"`
}

// SOPResponse carries an SOP with its Markdown rendering
type SOPResponse struct {
	SOP      sop.SOP          `json:"sop"`
	Markdown string           `json:"markdown"`
	Session  session.Snapshot `json:"session"`
}

// UndoResponse reports the outcome of an undo
type UndoResponse struct {
	Status    string           `json:"status"`
	Message   string           `json:"message"`
	Remaining int              `json:"remaining"`
	SOP       sop.SOP          `json:"sop"`
	Session   session.Snapshot `json:"session"`
}

// SkillResponse carries a skill with its Markdown rendering
type SkillResponse struct {
	Skill    skill.Skill       `json:"skill"`
	Markdown string            `json:"markdown"`
	Location string            `json:"location,omitempty"`
	Session  *session.Snapshot `json:"session,omitempty"`
}

// ChatResponse carries a skill reply
type ChatResponse struct {
	Reply   string           `json:"reply"`
	Session session.Snapshot `json:"session"`
}

// withSession decodes body into req and runs fn on the session while it is
// locked. Errors are reported together with the session state.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, req any, fn func(*session.Session) (any, error)) {
	id := mux.Vars(r)["id"]
	if req != nil {
		if err := decodeBody(r, req); err != nil {
			s.writeError(w, r, err, nil)
			return
		}
	}

	var (
		result any
		snap   *session.Snapshot
	)
	err := s.manager.With(id, func(sess *session.Session) error {
		var err error
		result, err = fn(sess)
		if err != nil {
			st := sess.Snapshot()
			snap = &st
		}
		return err
	})
	if err != nil {
		s.writeError(w, r, err, snap)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, result)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.manager.Create()
	s.writeJSONResponse(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, nil, func(sess *session.Session) (any, error) {
		return sess.Snapshot(), nil
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.manager.Delete(id) {
		s.writeError(w, r, failure.Wrap(failure.KindState, "session", session.ErrNotFound, id), nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req SynthesizeRequest
	s.withSession(w, r, &req, func(sess *session.Session) (any, error) {
		out, err := sess.Synthesize(r.Context(), req.Task, req.Deliverable, toAttachments(req.References))
		if err != nil {
			return nil, err
		}
		return SOPResponse{SOP: out, Markdown: render.SOP(out), Session: sess.Snapshot()}, nil
	})
}

func (s *Server) handleRevise(w http.ResponseWriter, r *http.Request) {
	var req ReviseRequest
	s.withSession(w, r, &req, func(sess *session.Session) (any, error) {
		out, err := sess.Revise(r.Context(), req.Feedback)
		if err != nil {
			return nil, err
		}
		return SOPResponse{SOP: out, Markdown: render.SOP(out), Session: sess.Snapshot()}, nil
	})
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, nil, func(sess *session.Session) (any, error) {
		res, err := sess.Undo()
		if err != nil {
			return nil, err
		}
		return UndoResponse{
			Status:    string(res.Status),
			Message:   res.Message(),
			Remaining: res.Remaining,
			SOP:       res.Current,
			Session:   sess.Snapshot(),
		}, nil
	})
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, nil, func(sess *session.Session) (any, error) {
		return map[string]string{"diff": sess.Diff()}, nil
	})
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, nil, func(sess *session.Session) (any, error) {
		sk, location, err := sess.Compile(r.Context())
		if err != nil {
			return nil, err
		}
		snap := sess.Snapshot()
		return SkillResponse{Skill: sk, Markdown: render.Skill(sk), Location: location, Session: &snap}, nil
	})
}

func (s *Server) handleLoadSkill(w http.ResponseWriter, r *http.Request) {
	var req LoadSkillRequest
	s.withSession(w, r, &req, func(sess *session.Session) (any, error) {
		sk, err := sess.LoadSkill(r.Context(), req.Name)
		if err != nil {
			return nil, err
		}
		snap := sess.Snapshot()
		return SkillResponse{Skill: sk, Markdown: render.Skill(sk), Session: &snap}, nil
	})
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	s.withSession(w, r, &req, func(sess *session.Session) (any, error) {
		reply, err := sess.Invoke(r.Context(), req.Message, toAttachments(req.Attachments))
		if err != nil {
			return nil, err
		}
		return ChatResponse{Reply: reply, Session: sess.Snapshot()}, nil
	})
}

func (s *Server) handleClearChat(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, nil, func(sess *session.Session) (any, error) {
		sess.ClearConversation()
		return sess.Snapshot(), nil
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	var doc export.Document
	var snap *session.Snapshot
	err := s.manager.With(mux.Vars(r)["id"], func(sess *session.Session) error {
		var err error
		doc, err = sess.Export(r.Context(), export.ParseFormat(req.Format))
		if err != nil {
			st := sess.Snapshot()
			snap = &st
		}
		return err
	})
	if err != nil {
		s.writeError(w, r, err, snap)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Data); err != nil {
		logger.G(r.Context()).WithError(err).Warn("failed to write export")
	}
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	names, err := s.services.Store.List(r.Context())
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	names, err = skills.FilterNames(names, r.URL.Query().Get("filter"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if names == nil {
		names = []string{}
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]any{"skills": names, "total": len(names)})
}

func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	sk, err := s.services.Store.Load(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, SkillResponse{Skill: sk, Markdown: render.Skill(sk)})
}

func (s *Server) handleDeleteSkill(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Store.Delete(r.Context(), mux.Vars(r)["name"]); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSkillMD(w http.ResponseWriter, r *http.Request) {
	sk, err := s.services.Store.Load(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	content, err := skills.ExportSkillMD(sk)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string            `json:"error"`
	Kind    string            `json:"kind,omitempty"`
	Session *session.Snapshot `json:"session,omitempty"`
}

func statusFor(err error) int {
	if errors.Is(err, skills.ErrNotFound) || errors.Is(err, session.ErrNotFound) {
		return http.StatusNotFound
	}
	kind, _ := failure.KindOf(err)
	switch kind {
	case failure.KindValidation:
		return http.StatusBadRequest
	case failure.KindState:
		return http.StatusConflict
	case failure.KindService, failure.KindFormat:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, snap *session.Snapshot) {
	status := statusFor(err)
	entry := logger.G(r.Context()).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}

	kind, _ := failure.KindOf(err)
	s.writeJSONResponse(w, status, ErrorResponse{
		Error:   failure.Message(err),
		Kind:    string(kind),
		Session: snap,
	})
}
