package models

// Actor is the editing identity a lock operation runs on behalf of. The
// upstream session provider supplies it and the lock service trusts it
// verbatim; there is no user lookup anywhere in this subsystem.
type Actor struct {
	// ID is the opaque actor id that lock rows are owned by.
	ID string `json:"id"`
	// DisplayName is shown to other editors in conflict messages.
	DisplayName string `json:"display_name"`
}
