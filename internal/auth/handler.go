package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/optiktrack/api-auth/internal/identity"
	"github.com/optiktrack/api-auth/internal/mailer"
	"github.com/rs/zerolog/log"
)

const genericResetReply = "If the email exists, reset instructions have been sent."

// Handler exposes the auth HTTP surface. Credential checks go through the
// identity collaborator; token work goes through the TokenService.
type Handler struct {
	svc          *TokenService
	users        identity.Store
	mail         mailer.Sender
	resetURLBase string
}

func NewHandler(svc *TokenService, users identity.Store, mail mailer.Sender, resetURLBase string) *Handler {
	return &Handler{svc: svc, users: users, mail: mail, resetURLBase: resetURLBase}
}

// POST /api/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		http.Error(w, "email and password are required", http.StatusBadRequest)
		return
	}
	_, err := h.users.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			http.Error(w, "email already registered", http.StatusBadRequest)
			return
		}
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed JSON", http.StatusBadRequest)
		return
	}

	pair, err := h.svc.Login(r.Context(), req.Email, req.Password, clientFingerprint(r))
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		log.Error().Err(err).Msg("login failed")
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// POST /api/auth/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		http.Error(w, "refresh token is required", http.StatusBadRequest)
		return
	}

	pair, err := h.svc.Rotate(r.Context(), req.RefreshToken, clientFingerprint(r))
	if err != nil {
		log.Error().Err(err).Msg("rotation failed")
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if pair == nil {
		http.Error(w, "invalid or expired refresh token", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// POST /api/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		http.Error(w, "refresh token is required", http.StatusBadRequest)
		return
	}
	if err := h.svc.RevokeRefresh(r.Context(), req.RefreshToken); err != nil {
		log.Error().Err(err).Msg("logout revoke failed")
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/auth/me (protected)
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, "no user in context", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sub":   claims.Subject,
		"email": claims.Email,
		"jti":   claims.ID,
		"roles": claims.Roles,
	})
}

// POST /api/auth/revoke (protected) — kills the presented bearer token for
// the rest of its lifetime.
func (h *Handler) RevokeCurrent(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, "no user in context", http.StatusUnauthorized)
		return
	}
	if err := h.svc.RevokeBearer(r.Context(), claims); err != nil {
		log.Error().Err(err).Msg("bearer revoke failed")
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/auth/forgot-password — always answers the same generic message so
// account existence cannot be probed.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeJSON(w, http.StatusOK, map[string]string{"message": genericResetReply})
		return
	}

	user, err := h.users.FindByIdentifier(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			log.Error().Err(err).Msg("forgot-password lookup failed")
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": genericResetReply})
		return
	}

	token, err := h.users.GeneratePasswordResetToken(r.Context(), user)
	if err != nil {
		log.Error().Err(err).Msg("reset token generation failed")
		writeJSON(w, http.StatusOK, map[string]string{"message": genericResetReply})
		return
	}

	callback := fmt.Sprintf("%s?userId=%d&token=%s", h.resetURLBase, user.ID, url.QueryEscape(token))
	body := fmt.Sprintf(
		`<p>Olá,</p>
<p>We received a request to reset your password on <strong>OptikTrack</strong>.</p>
<p><a href=%q>Reset password</a></p>
<p>If you did not ask for this, ignore this email.</p>`, callback)

	if err := h.mail.Send(r.Context(), user.Email, "Password reset - OptikTrack", body); err != nil {
		log.Error().Err(err).Str("email", user.Email).Msg("reset email delivery failed")
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": genericResetReply})
}

// POST /api/auth/reset-password
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.UserID == 0 || req.Token == "" || req.NewPassword == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	user, err := h.users.FindByID(r.Context(), req.UserID)
	if err != nil {
		// same answer for a bad user id and a bad token
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := h.users.ResetPassword(r.Context(), user, req.Token, req.NewPassword); err != nil {
		if errors.Is(err, identity.ErrAuthFailed) {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// clientFingerprint is an advisory device-binding signal, not a security
// boundary.
func clientFingerprint(r *http.Request) string {
	return r.Header.Get("User-Agent")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
