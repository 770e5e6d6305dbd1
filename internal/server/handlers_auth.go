package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pellucid/hearth/internal/apperr"
	"github.com/pellucid/hearth/internal/config"
	"github.com/pellucid/hearth/internal/identity"
)

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("invalid request body: " + err.Error())
	}
	return nil
}

type checkEmailRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleCheckEmail(w http.ResponseWriter, r *http.Request) {
	var req checkEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	exists, err := s.identity.CheckEmail(req.Email)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

type loginRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	user, sess, err := s.identity.Login(req.Email)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.identity.SetCookie(w, sess)
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

type signupIndividualRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (s *Server) handleSignupIndividual(w http.ResponseWriter, r *http.Request) {
	var req signupIndividualRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	user, sess, err := s.identity.SignupIndividual(req.Email, req.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.identity.SetCookie(w, sess)
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

type signupGroupRequest struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	GroupName string `json:"groupName"`
	GroupURL  string `json:"groupUrl"`
}

func (s *Server) handleSignupGroup(w http.ResponseWriter, r *http.Request) {
	var req signupGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	user, group, invitation, sess, err := s.identity.SignupGroup(req.Email, req.Name, req.GroupName, req.GroupURL)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.identity.SetCookie(w, sess)
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "group": group, "invitation": invitation})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(identity.CookieName); err == nil {
		_ = s.identity.Logout(cookie.Value)
	}
	s.identity.ClearCookie(w)
	writeSuccess(w)
}

func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	userID := userIDFromContext(r.Context())
	url, err := s.oauth.Start(provider, userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// handleOAuthCallback returns an HTML page that relays the result to its
// opener window and closes itself (spec.md §6: "postMessages
// {type:\"oauth_success\", provider, accountEmail} to its opener").
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	accountEmail, err := s.oauth.Callback(r.Context(), provider, code, state)

	var payload map[string]any
	if err != nil {
		payload = map[string]any{"type": "oauth_error", "provider": provider, "message": err.Error()}
	} else {
		payload = map[string]any{"type": "oauth_success", "provider": provider, "accountEmail": accountEmail}
	}
	body, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	writeCallbackPage(w, body)
}

func writeCallbackPage(w http.ResponseWriter, payloadJSON []byte) {
	_, _ = w.Write([]byte("<!DOCTYPE html>\n<html><body><script>\nwindow.opener && window.opener.postMessage("))
	_, _ = w.Write(payloadJSON)
	_, _ = w.Write([]byte(", \"*\");\nwindow.close();\n</script></body></html>"))
}

func (s *Server) handleOAuthToken(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	userID := userIDFromContext(r.Context())
	accountEmail := r.URL.Query().Get("accountEmail")

	conns, err := s.oauth.ListConnections(userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if accountEmail == "" {
		accounts := conns[provider]
		if len(accounts) == 0 {
			writeErr(w, apperr.OAuthRequired(provider, ""))
			return
		}
		accountEmail = accounts[0].AccountEmail
	}

	tok, err := s.oauth.GetToken(r.Context(), userID, provider, accountEmail)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": tok.AccessToken, "accountEmail": tok.AccountEmail})
}

type updateMeRequest struct {
	DiscordUserID string `json:"discordUserId"`
	Locale        string `json:"locale"`
	Timezone      string `json:"timezone"`
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	userID := userIDFromContext(r.Context())
	user, err := s.identity.UpdateProfile(userID, req.DiscordUserID, req.Locale, req.Timezone)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleEnv(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"env":           s.appConfig.AppEnv,
		"isDevelopment": s.appConfig.AppEnv == config.EnvDevelopment,
		"isTest":        s.appConfig.AppEnv == config.EnvTest,
		"isProduction":  s.appConfig.AppEnv == config.EnvProduction,
		"port":          s.appConfig.Port,
		"host":          s.appConfig.Host,
	})
}
