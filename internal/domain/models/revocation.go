package models

import "time"

// RevocationEntry is one row of the revocation ledger: scope Z of client Y
// acting for user X is revoked as of RevokedAt. Token verification rejects
// that scope on any token issued at or before RevokedAt, even before the
// token's own expiry. Entries live at least as long as any token minted
// before the revocation could remain valid.
type RevocationEntry struct {
	Subject   string    `json:"subject"`
	ClientID  string    `json:"client_id"`
	Scope     string    `json:"scope"`
	RevokedAt time.Time `json:"revoked_at"`
	Reason    string    `json:"reason,omitempty"`
}
