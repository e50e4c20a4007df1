package main

import (
	"html/template"
	"log/slog"
	"net/http"

	gk "github.com/panyam/gatekeep"
)

var pages = template.Must(template.New("pages").Parse(`
{{define "home"}}<!doctype html>
<title>Home</title>
<p><a href="/login">Log in</a> or <a href="/register">register</a> to see the secrets.</p>
{{end}}
{{define "login"}}<!doctype html>
<title>Log in</title>
<form method="post" action="/login">
  <input type="hidden" name="callbackURL" value="{{.CallbackURL}}">
  <input name="username" type="email" placeholder="Email" required>
  <input name="password" type="password" placeholder="Password" required>
  <button type="submit">Log in</button>
</form>
<p><a href="/auth/google?callbackURL={{.CallbackURL}}">Log in with Google</a></p>
<p><a href="/auth/github?callbackURL={{.CallbackURL}}">Log in with GitHub</a></p>
<p><a href="/auth/saml/login?callbackURL={{.CallbackURL}}">Log in with SAML</a></p>
<p><a href="/register">Register</a></p>
{{end}}
{{define "register"}}<!doctype html>
<title>Register</title>
<form method="post" action="/register">
  <input name="username" type="email" placeholder="Email" required>
  <input name="password" type="password" placeholder="Password" required>
  <button type="submit">Register</button>
</form>
{{end}}
{{define "secrets"}}<!doctype html>
<title>Secrets</title>
<p>Logged in as {{.Email}}.</p>
<p><a href="/logout">Log out</a></p>
{{end}}
`))

func render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("error rendering page", "page", name, "err", err)
	}
}

func handleHome(w http.ResponseWriter, r *http.Request) {
	render(w, "home", nil)
}

func handleLoginPage(w http.ResponseWriter, r *http.Request) {
	render(w, "login", struct{ CallbackURL string }{r.URL.Query().Get("callbackURL")})
}

func handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	render(w, "register", nil)
}

func handleSecrets(w http.ResponseWriter, r *http.Request) {
	user, _ := gk.UserFromContext(r.Context())
	render(w, "secrets", user)
}
