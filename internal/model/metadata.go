package model

// Metadata is the subset of NFT metadata the marketplace renders.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	TokenURI    string `json:"-"`
}
