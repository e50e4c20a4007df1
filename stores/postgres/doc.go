// Package postgres implements gatekeep stores directly over PostgreSQL using
// database/sql with the pgx driver. The schema is managed by goose migrations
// embedded in the migrations package.
//
//	db, err := postgres.Open(ctx, dsn)
//	credentials := postgres.NewCredentialStore(db)
//	session := scs.New()
//	session.Store = postgres.NewSessionStore(db)
package postgres
