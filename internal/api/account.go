package api

import (
	"net/http"

	"github.com/finledger/ledger-api/internal/domain/models"
	"github.com/finledger/ledger-api/internal/lib/jwt"
	"github.com/finledger/ledger-api/internal/services/account"
)

type LoginResponse struct {
	models.User
	Token jwt.Pair `json:"token"`
}

type TokenRequest struct {
	Refresh string `json:"refresh"`
}

type RefreshResponse struct {
	Access string `json:"access"`
}

func (s *APIServer) registerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req account.RegisterRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		user, err := s.accounts.Register(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeEnvelope(w, http.StatusCreated, "User created successfully", user)
	}
}

func (s *APIServer) loginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req account.LoginRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		user, pair, err := s.accounts.Login(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeEnvelope(w, http.StatusOK, "User logged in successfully", LoginResponse{User: user, Token: pair})
	}
}

func (s *APIServer) refreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TokenRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		access, err := s.accounts.Refresh(r.Context(), req.Refresh)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeEnvelope(w, http.StatusOK, "Token refreshed successfully", RefreshResponse{Access: access})
	}
}

func (s *APIServer) logoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TokenRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := s.accounts.Logout(r.Context(), userID(r), req.Refresh); err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeEnvelope(w, http.StatusResetContent, "User logged out successfully", nil)
	}
}

func (s *APIServer) profileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.accounts.Profile(r.Context(), userID(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeEnvelope(w, http.StatusOK, "User retrieved successfully", user)
	}
}

func (s *APIServer) updateProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req account.UpdateProfileRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		user, err := s.accounts.UpdateProfile(r.Context(), userID(r), req, r.Method == http.MethodPatch)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeEnvelope(w, http.StatusOK, "User updated successfully", user)
	}
}

func (s *APIServer) passwordChangeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req account.ChangePasswordRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		if err := s.accounts.ChangePassword(r.Context(), userID(r), req); err != nil {
			s.writeError(w, r, err)
			return
		}

		s.writeEnvelope(w, http.StatusOK, "Password changed successfully", nil)
	}
}
