package models

// LocalEntity is implemented by every local record the bridge can export.
// The orchestrator only needs a stable id and a type tag; field access
// stays with the per-type export contracts.
type LocalEntity interface {
	GetEntityID() int64
	GetEntityType() string
}
