//go:build !wasm
// +build !wasm

// Package gae provides Google Cloud Datastore implementations of gatekeep stores.
// It is designed for deployment on Google Cloud Platform and supports multi-tenancy
// through Datastore namespaces.
//
// # Datastore Kinds
//
// The package uses the following Datastore kinds:
//   - User: accounts, keyed by user id
//   - UserEmail: email to user id index, keyed by email
//   - Session: scs session data, keyed by session token
//
// Every read is a lookup by key, so results are strongly consistent.
//
// # Namespacing
//
// All stores support Datastore namespaces for multi-tenant applications.
// Pass a namespace when creating stores to isolate data between tenants:
//
//	credentials := gae.NewCredentialStore(client, "tenant-123")
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	credentials := gae.NewCredentialStore(client, "")  // default namespace
//	session := scs.New()
//	session.Store = gae.NewSessionStore(client, "")
package gae
