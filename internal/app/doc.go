// Package app assembles the messaging core: one shared transport client, one
// REST gateway, one room coordinator, and a controller per conversation kind.
// It replaces ad-hoc global wiring with a single owner whose lifetime is the
// process; hosts construct an App, open the kinds they need, and shut it down
// once.
package app
