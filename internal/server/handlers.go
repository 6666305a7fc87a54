package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"moodle-assistant/internal/auth"
	"moodle-assistant/internal/chat"
	"moodle-assistant/internal/moodle"
	"moodle-assistant/internal/storage"
)

func (ws *WebServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (ws *WebServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Utilizador e senha são obrigatórios.")
		return
	}

	res, err := ws.moodle.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		log.Printf("❌ login failed for %s: %v", req.Username, err)
		msg := "Credenciais inválidas ou erro no Moodle."
		var apiErr *moodle.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			msg = apiErr.Message
		}
		writeError(w, http.StatusUnauthorized, msg)
		return
	}

	user := auth.User{ID: res.User.ID, Username: res.User.Username, Fullname: res.User.Fullname, Roles: res.User.Roles}
	sess, err := ws.sessions.Create(user, res.Token)
	if err != nil {
		log.Printf("❌ failed to create session for %s: %v", user.Username, err)
		writeError(w, http.StatusInternalServerError, "Não foi possível iniciar a sessão.")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   ws.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	log.Printf("✅ user %s (id %d) logged in", user.Username, user.ID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

func (ws *WebServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, ok := ws.currentSession(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Nenhuma sessão ativa para terminar."})
		return
	}
	if err := ws.sessions.Remove(sess.ID); err != nil {
		log.Printf("❌ failed to end session for %s: %v", sess.User.Username, err)
		writeError(w, http.StatusInternalServerError, "Não foi possível terminar a sessão.")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	log.Printf("👋 session ended for %s", sess.User.Username)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Sessão terminada com sucesso."})
}

func (ws *WebServer) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := ws.currentSession(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"loggedIn": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loggedIn": true, "user": sess.User})
}

func (ws *WebServer) handleMyCourses(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())
	courses, err := ws.moodle.UserCourses(r.Context(), sess.Token, sess.User.ID)
	if err != nil {
		log.Printf("❌ failed to load courses for user %d: %v", sess.User.ID, err)
		writeError(w, http.StatusInternalServerError, "Falha ao carregar as suas disciplinas do Moodle.")
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

func courseIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["courseid"], 10, 64)
	return id, err == nil
}

func (ws *WebServer) handleCourseSummary(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())
	courseID, ok := courseIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "ID da disciplina inválido.")
		return
	}
	sections, err := ws.moodle.CourseContents(r.Context(), sess.Token, courseID)
	if err != nil {
		log.Printf("❌ failed to load contents of course %d: %v", courseID, err)
		writeError(w, http.StatusInternalServerError, "Falha ao carregar o conteúdo da disciplina.")
		return
	}
	writeJSON(w, http.StatusOK, sections)
}

type chatRequest struct {
	Question   string     `json:"question"`
	CourseID   flexibleID `json:"courseId"`
	CourseName string     `json:"courseName"`
}

func (ws *WebServer) handleChat(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		strings.TrimSpace(req.Question) == "" || req.CourseID == 0 || req.CourseName == "" {
		writeError(w, http.StatusBadRequest, "Pergunta, ID da disciplina e nome da disciplina são obrigatórios.")
		return
	}

	answer, err := ws.chat.Ask(r.Context(), chat.Question{
		UserID:     sess.User.ID,
		UserToken:  sess.Token,
		CourseID:   int64(req.CourseID),
		CourseName: req.CourseName,
		Text:       req.Question,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, chat.GenericFailureMessage)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (ws *WebServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())
	courseID, ok := courseIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "ID da disciplina inválido.")
		return
	}
	key := storage.Key{UserID: sess.User.ID, CourseID: courseID}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(ws.history.LegacyDigest(r.Context(), key, ws.opts.DigestEntries)))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"courseId": courseID, "entries": ws.history.Log(r.Context(), key)})
}

// handleStatic serves files from the public dir and falls back to index.html
// so client-side routes resolve.
func (ws *WebServer) handleStatic(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusNotFound, "Rota não encontrada.")
		return
	}
	name := filepath.Join(ws.opts.PublicDir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		http.ServeFile(w, r, name)
		return
	}
	index := filepath.Join(ws.opts.PublicDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, index)
}
