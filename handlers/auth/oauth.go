package auth

import (
	"collabnotes/core"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const stateCookie = "oauth_state"

// OIDCClaims represents the claims from OIDC token
type OIDCClaims struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Sub               string `json:"sub"`
}

// ExternalLogin signs users in through OIDC or GitHub and hands them a regular token.
type ExternalLogin struct {
	users  core.UserStore
	tokens *Tokens

	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	// userInfoURL is the GitHub user endpoint, overridable in tests.
	userInfoURL string

	login    http.HandlerFunc
	callback http.HandlerFunc
}

// NewExternalLogin configures OIDC when OIDC_ISSUER_URL is set, GitHub when its client
// credentials are set, and otherwise answers every request with an error.
func NewExternalLogin(users core.UserStore, tokens *Tokens) *ExternalLogin {
	e := &ExternalLogin{users: users, tokens: tokens, userInfoURL: "https://api.github.com/user"}

	oidcConfigured := os.Getenv("OIDC_ISSUER_URL") != "" && os.Getenv("OIDC_CLIENT_ID") != ""
	githubConfigured := os.Getenv("GITHUB_CLIENT_ID") != "" && os.Getenv("GITHUB_CLIENT_SECRET") != ""

	switch {
	case oidcConfigured && e.initOIDC():
		logrus.Info("Initializing OIDC authentication provider.")
		e.login = e.redirectToProvider
		e.callback = e.handleOIDCCallback
	case githubConfigured:
		logrus.Info("Initializing GitHub authentication provider.")
		e.initGitHub()
		e.login = e.redirectToProvider
		e.callback = e.handleGitHubCallback
	default:
		logrus.Warn("No external authentication provider configured.")
		notConfigured := func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Authentication not configured", http.StatusInternalServerError)
		}
		e.login = notConfigured
		e.callback = notConfigured
	}
	return e
}

func (e *ExternalLogin) HandleLogin(w http.ResponseWriter, r *http.Request) {
	e.login(w, r)
}

func (e *ExternalLogin) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if !validState(r) {
		logrus.Warn("OAuth callback with missing or mismatched state")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}
	e.callback(w, r)
}

func (e *ExternalLogin) initGitHub() {
	e.oauthConfig = &oauth2.Config{
		ClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		RedirectURL:  os.Getenv("GITHUB_REDIRECT_URL"),
		Scopes:       []string{"read:user", "user:email"},
		Endpoint:     github.Endpoint,
	}
}

func (e *ExternalLogin) initOIDC() bool {
	providerURL := os.Getenv("OIDC_ISSUER_URL")
	clientID := os.Getenv("OIDC_CLIENT_ID")

	provider, err := oidc.NewProvider(context.Background(), providerURL)
	if err != nil {
		logrus.Errorf("Failed to create OIDC provider: %s", err.Error())
		return false
	}

	e.oauthConfig = &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: os.Getenv("OIDC_CLIENT_SECRET"),
		RedirectURL:  os.Getenv("OIDC_REDIRECT_URL"),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		Endpoint:     provider.Endpoint(),
	}
	e.verifier = provider.Verifier(&oidc.Config{ClientID: clientID})
	logrus.Info("OIDC provider initialized")
	return true
}

func (e *ExternalLogin) redirectToProvider(w http.ResponseWriter, r *http.Request) {
	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		http.Error(w, "Failed to generate login state", http.StatusInternalServerError)
		return
	}
	state := hex.EncodeToString(stateBytes)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		Secure:   r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, e.oauthConfig.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func validState(r *http.Request) bool {
	cookie, err := r.Cookie(stateCookie)
	return err == nil && cookie.Value != "" && cookie.Value == r.FormValue("state")
}

func (e *ExternalLogin) handleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	token, err := e.oauthConfig.Exchange(r.Context(), r.FormValue("code"))
	if err != nil {
		logrus.Errorf("failed to exchange token: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	client := e.oauthConfig.Client(r.Context(), token)
	resp, err := client.Get(e.userInfoURL)
	if err != nil {
		logrus.Errorf("failed to get user from github: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logrus.Errorf("failed to read github response body: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	var githubUser struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &githubUser); err != nil || githubUser.ID == 0 {
		logrus.Errorf("failed to unmarshal github user: %v", err)
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	e.finishLogin(w, r, &core.User{
		Subject:  fmt.Sprintf("github:%d", githubUser.ID),
		Username: githubUser.Login,
	})
}

func (e *ExternalLogin) handleOIDCCallback(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")
	if code == "" {
		logrus.Error("no code in callback")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	token, err := e.oauthConfig.Exchange(r.Context(), code)
	if err != nil {
		logrus.Errorf("failed to exchange token: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		logrus.Error("no id_token in token response")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	idToken, err := e.verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		logrus.Errorf("failed to verify ID token: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		logrus.Errorf("failed to extract claims from ID token: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Name
	}
	if username == "" {
		username = claims.Email
	}
	e.finishLogin(w, r, &core.User{
		Subject:  "oidc:" + claims.Sub,
		Username: username,
	})
}

// finishLogin links the external identity to a local account and redirects to the client
// with a token.
func (e *ExternalLogin) finishLogin(w http.ResponseWriter, r *http.Request, external *core.User) {
	user, err := e.users.UpsertExternalUser(r.Context(), external)
	if err != nil {
		logrus.WithError(err).WithField("subject", external.Subject).Error("Failed to store external user")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	token, err := e.tokens.Sign(user.ID)
	if err != nil {
		logrus.Errorf("failed to create JWT: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	logrus.WithFields(logrus.Fields{"user_id": user.ID, "subject": user.Subject}).Info("External login")
	http.Redirect(w, r, "/?token="+url.QueryEscape(token), http.StatusTemporaryRedirect)
}
