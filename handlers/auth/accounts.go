package auth

import (
	"collabnotes/core"
	"collabnotes/handlers/validate"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type (
	RegisterRequest struct {
		Username string `json:"username" validate:"omitempty,min=3,max=30"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=6"`
	}

	LoginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	TokenResponse struct {
		Token string `json:"token"`
	}
)

func writeMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"message": message})
}

func HandleRegister(users core.UserStore, tokens *Tokens) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeMessage(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
		if msg := validate.Struct(req); msg != "" {
			writeMessage(w, r, http.StatusBadRequest, msg)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			logrus.WithError(err).Error("Failed to hash password")
			writeMessage(w, r, http.StatusInternalServerError, "Server error")
			return
		}

		username := req.Username
		if username == "" {
			username = strings.SplitN(req.Email, "@", 2)[0]
		}
		user := &core.User{Username: username, Email: req.Email, PasswordHash: string(hash)}
		if err := users.CreateUser(r.Context(), user); err != nil {
			if errors.Is(err, core.ErrConflict) {
				writeMessage(w, r, http.StatusConflict, "Email already in use")
				return
			}
			logrus.WithError(err).Error("Failed to create user")
			writeMessage(w, r, http.StatusInternalServerError, "Server error")
			return
		}

		token, err := tokens.Sign(user.ID)
		if err != nil {
			logrus.WithError(err).WithField("user_id", user.ID).Error("Failed to sign token")
			writeMessage(w, r, http.StatusInternalServerError, "Server error")
			return
		}

		logrus.WithField("user_id", user.ID).Info("User registered")
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, TokenResponse{Token: token})
	}
}

func HandleLogin(users core.UserStore, tokens *Tokens) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeMessage(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}

		user, err := users.FindUserByEmail(r.Context(), req.Email)
		if err != nil {
			if !errors.Is(err, core.ErrNotFound) {
				logrus.WithError(err).Error("Failed to look up user")
				writeMessage(w, r, http.StatusInternalServerError, "Server error")
				return
			}
			writeMessage(w, r, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		// Accounts created through an external login have no password.
		if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			writeMessage(w, r, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		token, err := tokens.Sign(user.ID)
		if err != nil {
			logrus.WithError(err).WithField("user_id", user.ID).Error("Failed to sign token")
			writeMessage(w, r, http.StatusInternalServerError, "Server error")
			return
		}
		render.JSON(w, r, TokenResponse{Token: token})
	}
}
