package metadata

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"

	"mintExchange/internal/model"
)

const maxMetadataBytes = 1 << 20

// Caller performs read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Fetcher loads NFT metadata JSON for a token.
type Fetcher struct {
	caller  Caller
	gateway string
	http    *http.Client
	cache   *lru.Cache[string, model.Metadata]
}

func NewFetcher(caller Caller, gateway string, timeout time.Duration, cacheSize int) (*Fetcher, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	if gateway != "" && !strings.HasSuffix(gateway, "/") {
		gateway += "/"
	}
	cache, err := lru.New[string, model.Metadata](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Fetcher{
		caller:  caller,
		gateway: gateway,
		http:    &http.Client{Timeout: timeout},
		cache:   cache,
	}, nil
}

// Fetch returns metadata for contract/tokenID. uriHint, when set, is used instead
// of asking the contract for its token URI.
func (f *Fetcher) Fetch(ctx context.Context, contract, tokenID, uriHint string) (model.Metadata, error) {
	key := strings.ToLower(contract) + ":" + tokenID
	if meta, ok := f.cache.Get(key); ok {
		return meta, nil
	}

	uri := strings.TrimSpace(uriHint)
	if uri == "" {
		var err error
		uri, err = f.tokenURI(ctx, contract, tokenID)
		if err != nil {
			return model.Metadata{}, err
		}
	}

	meta, err := f.load(ctx, uri)
	if err != nil {
		return model.Metadata{}, err
	}
	meta.TokenURI = uri
	meta.Image = f.Resolve(meta.Image)
	f.cache.Add(key, meta)
	return meta, nil
}

// tokenURI asks the contract for the token URI, trying ERC-721 then ERC-1155.
func (f *Fetcher) tokenURI(ctx context.Context, contract, tokenID string) (string, error) {
	if f.caller == nil {
		return "", fmt.Errorf("no uri hint and no chain caller")
	}
	if !common.IsHexAddress(contract) {
		return "", fmt.Errorf("invalid contract address: %s", contract)
	}
	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return "", fmt.Errorf("invalid token id: %s", tokenID)
	}

	parsed, err := TokenURIABI()
	if err != nil {
		return "", fmt.Errorf("parse token uri abi: %w", err)
	}
	to := common.HexToAddress(contract)

	uri, err := callString(ctx, f.caller, to, parsed, "tokenURI", id)
	if err == nil && uri != "" {
		return uri, nil
	}
	uri, err1155 := callString(ctx, f.caller, to, parsed, "uri", id)
	if err1155 != nil {
		if err != nil {
			return "", err
		}
		return "", err1155
	}
	return strings.ReplaceAll(uri, "{id}", fmt.Sprintf("%064x", id)), nil
}

func callString(ctx context.Context, caller Caller, to common.Address, parsed abi.ABI, method string, id *big.Int) (string, error) {
	data, err := parsed.Pack(method, id)
	if err != nil {
		return "", fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return "", fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return "", fmt.Errorf("%s: unexpected output count %d", method, len(values))
	}
	value, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("%s: unexpected output type %T", method, values[0])
	}
	return value, nil
}

// Resolve rewrites ipfs:// URIs through the configured gateway.
func (f *Fetcher) Resolve(uri string) string {
	if !strings.HasPrefix(uri, "ipfs://") || f.gateway == "" {
		return uri
	}
	path := strings.TrimPrefix(uri, "ipfs://")
	path = strings.TrimPrefix(path, "ipfs/")
	return f.gateway + path
}

func (f *Fetcher) load(ctx context.Context, uri string) (model.Metadata, error) {
	if strings.HasPrefix(uri, "data:") {
		return decodeDataURI(uri)
	}

	target := f.Resolve(uri)
	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return model.Metadata{}, fmt.Errorf("unsupported metadata uri: %s", uri)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return model.Metadata{}, err
	}
	req.Header.Set("accept", "application/json")
	resp, err := f.http.Do(req)
	if err != nil {
		return model.Metadata{}, fmt.Errorf("fetch metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Metadata{}, fmt.Errorf("fetch metadata: status %d", resp.StatusCode)
	}

	var meta model.Metadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataBytes)).Decode(&meta); err != nil {
		return model.Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

// decodeDataURI handles on-chain metadata served as data:application/json URIs.
func decodeDataURI(uri string) (model.Metadata, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return model.Metadata{}, fmt.Errorf("malformed data uri")
	}

	var raw []byte
	if strings.HasSuffix(header, ";base64") {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return model.Metadata{}, fmt.Errorf("decode data uri: %w", err)
		}
		raw = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return model.Metadata{}, fmt.Errorf("decode data uri: %w", err)
		}
		raw = []byte(unescaped)
	}

	var meta model.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return model.Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}
