package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/setplaylist/setplaylist/internal/models"
	"github.com/setplaylist/setplaylist/internal/shared"
	"github.com/setplaylist/setplaylist/internal/web"
)

// passwordResetScope marks a pending authorization as a password-reset
// ticket rather than an OAuth handshake. The two flows share the consume-once
// store but must never redeem each other's tokens.
const passwordResetScope = "password_reset"

// RegisterForm renders the signup page.
func (a *App) RegisterForm(w http.ResponseWriter, r *http.Request) {
	if UserFrom(r.Context()) != nil {
		http.Redirect(w, r, "/home", http.StatusSeeOther)
		return
	}
	a.page(w, http.StatusOK, "register.html", web.PageData{Title: "Sign up"})
}

// Register creates the account, signs the user in, and redirects straight
// into the provider link flow so a fresh account comes out fully connected.
func (a *App) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.fail(w, http.StatusBadRequest, "Invalid form submission.", err)
		return
	}

	user, err := a.creds.Register(
		r.PostFormValue("username"),
		r.PostFormValue("password"),
		r.PostFormValue("email"),
		r.PostFormValue("recovery_question"),
		r.PostFormValue("recovery_answer"),
	)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrDuplicateUsername):
			a.page(w, http.StatusConflict, "register.html", web.PageData{
				Title: "Sign up",
				Flash: "That username is taken. Pick another one.",
			})
		case errors.Is(err, shared.ErrInvalidInput):
			a.page(w, http.StatusBadRequest, "register.html", web.PageData{
				Title: "Sign up",
				Flash: "All fields are required.",
			})
		default:
			a.fail(w, http.StatusInternalServerError, "Something went wrong creating your account.", err)
		}
		return
	}

	if _, err := a.sessions.Issue(w, user); err != nil {
		a.fail(w, http.StatusInternalServerError, "Something went wrong signing you in.", err)
		return
	}

	url, _, err := a.broker.BeginLink(r.Context(), user)
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "Could not start the Spotify connection.", err)
		return
	}

	http.Redirect(w, r, url, http.StatusSeeOther)
}

// BeginLink starts (or restarts) the provider link flow for a signed-in user.
// Also the re-link path after a revoked token.
func (a *App) BeginLink(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())

	url, _, err := a.broker.BeginLink(r.Context(), user)
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "Could not start the Spotify connection.", err)
		return
	}

	http.Redirect(w, r, url, http.StatusSeeOther)
}

// Callback completes the provider link flow. Any state mismatch renders the
// same forbidden page; the reason is logged, never shown.
func (a *App) Callback(w http.ResponseWriter, r *http.Request) {
	session := SessionFrom(r.Context())

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		a.fail(w, http.StatusForbidden, "This authorization link is not valid.", nil)
		return
	}

	_, err := a.broker.CompleteLink(r.Context(), session, code, state)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrUnknownState):
			a.fail(w, http.StatusForbidden, "This authorization link is not valid.", err)
		case errors.Is(err, shared.ErrExchangeFailed):
			a.fail(w, http.StatusBadGateway, "Spotify did not accept the authorization. Try connecting again.", err)
		default:
			a.fail(w, http.StatusInternalServerError, "Something went wrong connecting your account.", err)
		}
		return
	}

	http.Redirect(w, r, "/home", http.StatusSeeOther)
}

// LoginForm renders the login page.
func (a *App) LoginForm(w http.ResponseWriter, r *http.Request) {
	if UserFrom(r.Context()) != nil {
		http.Redirect(w, r, "/home", http.StatusSeeOther)
		return
	}
	a.page(w, http.StatusOK, "login.html", web.PageData{Title: "Log in"})
}

// Login authenticates the credentials, issues a session, and warms up the
// provider access token. A revoked provider grant still signs the user in
// locally but lands on the re-link page instead of home.
func (a *App) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.fail(w, http.StatusBadRequest, "Invalid form submission.", err)
		return
	}

	user, err := a.creds.Authenticate(r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "Something went wrong signing you in.", err)
		return
	}
	if user == nil {
		a.page(w, http.StatusUnauthorized, "login.html", web.PageData{
			Title: "Log in",
			Flash: "Invalid username or password.",
		})
		return
	}

	session, err := a.sessions.Issue(w, user)
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "Something went wrong signing you in.", err)
		return
	}

	if user.Linked() {
		if _, err := a.refresh.EnsureFreshAccessToken(r.Context(), user, session); err != nil {
			if errors.Is(err, shared.ErrTokenRevoked) {
				a.page(w, http.StatusOK, "relink.html", web.PageData{Title: "Reconnect Spotify", User: user})
				return
			}
			// Token refresh is best effort at login; browsing works
			// without it and playlist builds will retry.
			a.logger.Warn("token refresh at login failed", "username", user.Username(), "error", err)
		}
	}

	http.Redirect(w, r, "/home", http.StatusSeeOther)
}

// Logout destroys the session and clears the cookie.
func (a *App) Logout(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Destroy(w, r); err != nil {
		a.fail(w, http.StatusInternalServerError, "Something went wrong logging you out.", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ForgotForm renders the username prompt for password recovery.
func (a *App) ForgotForm(w http.ResponseWriter, r *http.Request) {
	a.page(w, http.StatusOK, "forgot.html", web.PageData{Title: "Reset password"})
}

// Forgot looks up the account and redirects to its recovery question. An
// unknown username gets the same prompt back with a neutral message.
func (a *App) Forgot(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.fail(w, http.StatusBadRequest, "Invalid form submission.", err)
		return
	}

	user, err := a.creds.GetByUsername(r.PostFormValue("username"))
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "Something went wrong.", err)
		return
	}
	if user == nil {
		a.page(w, http.StatusOK, "forgot.html", web.PageData{
			Title: "Reset password",
			Flash: "If that account exists, you can answer its recovery question next.",
		})
		return
	}

	http.Redirect(w, r, "/forgot/"+user.ID(), http.StatusSeeOther)
}

// forgotQuestionData feeds the recovery question template.
type forgotQuestionData struct {
	Question string
	UserID   string
}

// forgotResetData feeds the new-password template.
type forgotResetData struct {
	UserID     string
	ResetToken string
}

// ForgotQuestion renders the account's recovery question.
func (a *App) ForgotQuestion(w http.ResponseWriter, r *http.Request) {
	user, err := a.creds.Get(r.PathValue("id"))
	if err != nil {
		a.fail(w, http.StatusNotFound, "We could not find that account.", err)
		return
	}

	a.page(w, http.StatusOK, "forgot_question.html", web.PageData{
		Title: "Recovery question",
		Data:  forgotQuestionData{Question: user.RecoveryQuestion(), UserID: user.ID()},
	})
}

// ForgotAnswer verifies the recovery answer. A correct answer mints a
// consume-once reset ticket and renders the new-password form; a wrong one
// re-renders the question.
func (a *App) ForgotAnswer(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.fail(w, http.StatusBadRequest, "Invalid form submission.", err)
		return
	}

	user, err := a.creds.Get(r.PathValue("id"))
	if err != nil {
		a.fail(w, http.StatusNotFound, "We could not find that account.", err)
		return
	}

	ok, err := a.creds.AuthenticateRecoveryAnswer(user.Username(), r.PostFormValue("recovery_answer"))
	if err != nil {
		if errors.Is(err, shared.ErrTooManyAttempts) {
			a.fail(w, http.StatusTooManyRequests, "Too many attempts. Wait a bit and try again.", err)
			return
		}
		a.fail(w, http.StatusInternalServerError, "Something went wrong.", err)
		return
	}
	if !ok {
		a.page(w, http.StatusUnauthorized, "forgot_question.html", web.PageData{
			Title: "Recovery question",
			Flash: "That answer is not right. Try again.",
			Data:  forgotQuestionData{Question: user.RecoveryQuestion(), UserID: user.ID()},
		})
		return
	}

	now := time.Now()
	token := shared.GenerateState()
	err = a.pending.Create(&models.PendingAuth{
		State:     token,
		UserID:    user.ID(),
		Scopes:    passwordResetScope,
		CreatedAt: now,
		ExpiresAt: now.Add(15 * time.Minute),
	})
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "Something went wrong.", err)
		return
	}

	a.page(w, http.StatusOK, "forgot_reset.html", web.PageData{
		Title: "New password",
		Data:  forgotResetData{UserID: user.ID(), ResetToken: token},
	})
}

// ForgotReset redeems the reset ticket and sets the new password. The ticket
// is consumed exactly once and must match both the reset scope and the user
// in the path; any miss is the same invalid-link failure.
func (a *App) ForgotReset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.fail(w, http.StatusBadRequest, "Invalid form submission.", err)
		return
	}

	pending, err := a.pending.Consume(r.PostFormValue("reset_token"))
	if err != nil {
		a.fail(w, http.StatusForbidden, "This reset link is not valid.", err)
		return
	}
	if pending.Scopes != passwordResetScope || pending.UserID != r.PathValue("id") {
		a.fail(w, http.StatusForbidden, "This reset link is not valid.", nil)
		return
	}

	user, err := a.creds.Get(pending.UserID)
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "Something went wrong.", err)
		return
	}

	if err := a.creds.ResetPassword(user, r.PostFormValue("password")); err != nil {
		if errors.Is(err, shared.ErrInvalidInput) {
			a.fail(w, http.StatusBadRequest, "A new password is required.", err)
			return
		}
		a.fail(w, http.StatusInternalServerError, "Something went wrong.", err)
		return
	}

	a.page(w, http.StatusOK, "login.html", web.PageData{
		Title: "Log in",
		Flash: "Your password has been reset. Log in with the new one.",
	})
}
