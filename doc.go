// Package gatekeep authenticates users of a web application by local
// email/password or through an external identity provider, and remembers
// them in a server side session.
//
// # Architecture
//
// User: an account keyed by email. Users created by an identity provider
// carry the FederatedOnlyPassword sentinel instead of a password hash and can
// never log in with a password.
//
// LocalVerifier: checks an email/password pair against a CredentialStore
// using a PasswordHasher. Also registers new local users.
//
// FederatedVerifier: given a Profile from an identity provider (google,
// github, SAML), finds the user with that email or provisions one.
//
// SessionManager: binds a user's ID (and only the ID) to an scs session, and
// resolves it back to a User by re-reading the store on each request.
//
// Gate: admits requests whose session resolves to a user and denies the rest.
//
// # Basic Usage
//
//	store := fs.NewFSCredentialStore("/path/to/storage")
//	session := scs.New()
//	sessions := gatekeep.NewSessionManager(session, store)
//	app := gatekeep.NewApp(store, &gatekeep.BcryptHasher{}, sessions)
//
//	mux := http.NewServeMux()
//	mux.Handle("/", app.Handler())
//	mux.Handle("/secrets", app.Gate.EnsureUser(secretsHandler))
//	http.ListenAndServe(":3000", session.LoadAndSave(mux))
//
// # Failures
//
// All failures are *AuthError values with a Kind. A wrong password and an
// unknown email are reported differently (InvalidCredentials vs
// UserNotFound) so they can be logged apart, but App answers both with the
// same redirect to the login page. Store and hash errors are logged at error
// level.
//
// # Store Implementations
//
// The stores directory has implementations over the file system (fs), GORM
// (gorm), plain PostgreSQL via pgx (postgres) and Google Cloud Datastore (gae).
// Each one enforces email uniqueness itself.
//
// The client package logs in from code and replays the session cookie over
// HTTP, or the session token over gRPC metadata for the grpc interceptors.
package gatekeep
