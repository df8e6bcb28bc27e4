package metadata

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const tokenURIABIJSON = `[
  {"inputs": [{"name": "tokenId", "type": "uint256"}], "name": "tokenURI", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "id", "type": "uint256"}], "name": "uri", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

var (
	tokenURIABI     abi.ABI
	tokenURIABIOnce sync.Once
	tokenURIABIErr  error
)

// TokenURIABI covers ERC-721 tokenURI and ERC-1155 uri.
func TokenURIABI() (abi.ABI, error) {
	tokenURIABIOnce.Do(func() {
		tokenURIABI, tokenURIABIErr = abi.JSON(strings.NewReader(tokenURIABIJSON))
	})
	return tokenURIABI, tokenURIABIErr
}
