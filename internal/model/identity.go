package model

import "time"

// Identity is one off-chain social profile linked to an address.
type Identity struct {
	FID         int64  `json:"fid"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	PFPURL      string `json:"pfp_url"`
}

// Ref reduces the identity to what rows carry.
func (i Identity) Ref() *IdentityRef {
	return &IdentityRef{FID: i.FID, Username: i.Username}
}

// User is a cached profile for an address, maintained by the profile syncer.
type User struct {
	Address   string
	Identity  Identity
	UpdatedAt time.Time
}
