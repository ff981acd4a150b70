// Package browsertest provides an in-memory browser engine that simulates the
// sign-in application. Pages are rendered as HTML and queried with goquery, so
// selectors behave as they would against the real DOM.
package browsertest

import (
	"bytes"
	"encoding/json"
	"html/template"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultBaseURL = "http://localhost:3000"
	SignInPath     = "/signin"
	HomePath       = "/"
	UserDashboard  = "/user/dashboard"
	AdminDashboard = "/admin/dashboard"

	// TokenKey is the localStorage key the application keeps its session in.
	TokenKey = "jwt"
)

type Role int

const (
	RoleUser  Role = 0
	RoleAdmin Role = 1
)

type Account struct {
	Password string
	Role     Role
}

// Messages is the error copy shown in the sign-in alert.
type Messages struct {
	UnknownEmail  string
	WrongPassword string
	EmptyForm     string
}

func DefaultMessages() Messages {
	return Messages{
		UnknownEmail:  "User with that email doesn't exist. Please signup",
		WrongPassword: "Email and password didn't match",
		EmptyForm:     "Error: email and password are required",
	}
}

// App is the simulated application under test.
type App struct {
	BaseURL  string
	Accounts map[string]Account
	Messages Messages

	// RedirectAuthenticated sends visitors holding a token away from the
	// sign-in page to the home route.
	RedirectAuthenticated bool

	// Latency delays every client-side transition (redirects and alerts).
	Latency time.Duration
}

// NewApp returns an application seeded with the default accounts.
func NewApp() *App {
	return &App{
		BaseURL: DefaultBaseURL,
		Accounts: map[string]Account{
			"user1@psg.in":         {Password: "12345678", Role: RoleUser},
			"admin@psg.in":         {Password: "12345678", Role: RoleAdmin},
			"testuser@example.com": {Password: "testpassword", Role: RoleUser},
		},
		Messages:              DefaultMessages(),
		RedirectAuthenticated: true,
	}
}

// URL returns the absolute URL of path.
func (a *App) URL(path string) string {
	return strings.TrimRight(a.BaseURL, "/") + path
}

// signInResult is the outcome of a form submission.
type signInResult struct {
	Redirect string
	Token    string
	Alert    string
}

func (a *App) signIn(email, password string) signInResult {
	if email == "" && password == "" {
		return signInResult{Alert: a.Messages.EmptyForm}
	}
	account, ok := a.Accounts[email]
	if !ok {
		return signInResult{Alert: a.Messages.UnknownEmail}
	}
	if account.Password != password {
		return signInResult{Alert: a.Messages.WrongPassword}
	}

	token, _ := json.Marshal(map[string]any{
		"token": uuid.NewString(),
		"user": map[string]any{
			"email": email,
			"role":  account.Role,
		},
	})

	redirect := UserDashboard
	if account.Role == RoleAdmin {
		redirect = AdminDashboard
	}
	return signInResult{Redirect: redirect, Token: string(token)}
}

type pageData struct {
	Title string
	Alert string
	Email string
}

var pages = template.Must(template.New("pages").Parse(`
{{define "layout"}}<!DOCTYPE html>
<html><head><title>{{.Title}}</title></head>
<body><div id="root">{{template "body" .}}</div></body></html>{{end}}

{{define "signin"}}<form class="signin">
{{if .Alert}}<div class="alert alert-danger">{{.Alert}}</div>{{end}}
<input type="email" id="email" class="form-control" value="{{.Email}}">
<input type="password" id="password" class="form-control">
<button type="submit" class="btn btn-primary">Submit</button>
</form>{{end}}

{{define "home"}}<h1>Home</h1>{{end}}
{{define "user"}}<h2 class="dashboard">User Dashboard</h2>{{end}}
{{define "admin"}}<h2 class="dashboard">Admin Dashboard</h2>{{end}}
{{define "notfound"}}<h1>Not Found</h1>{{end}}
{{define "blank"}}{{end}}
`))

// render returns the HTML served for path.
func (a *App) render(path string, data pageData) (string, error) {
	name := "notfound"
	switch path {
	case "":
		name, data.Title = "blank", "about:blank"
	case SignInPath:
		name, data.Title = "signin", "Sign in"
	case HomePath:
		name, data.Title = "home", "Home"
	case UserDashboard:
		name, data.Title = "user", "User Dashboard"
	case AdminDashboard:
		name, data.Title = "admin", "Admin Dashboard"
	}

	t, err := pages.Clone()
	if err != nil {
		return "", err
	}
	if _, err := t.New("body").Parse(`{{template "` + name + `" .}}`); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
