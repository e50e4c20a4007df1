//go:build !wasm
// +build !wasm

// Package gorm provides GORM-based implementations of gatekeep stores.
// It supports any database that GORM supports (PostgreSQL, MySQL, SQLite, etc.)
// and is suitable for production deployments requiring relational database storage.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - users: accounts keyed by a unique email
//   - sessions: scs session data, keyed by session token
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	credentials := gormstore.NewCredentialStore(db)
//	session := scs.New()
//	session.Store = gormstore.NewSessionStore(db)
package gorm
