// Package controller orchestrates one conversation screen: session
// lifecycle through the gateway, room membership on the shared transport,
// the transcript engine, and typing coordination. Two controller instances
// exist at once (assistant and staff) sharing only the transport; each owns
// its own transcript engine so the conversations never cross-contaminate.
package controller
