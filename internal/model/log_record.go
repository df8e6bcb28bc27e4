package model

import (
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// RawLog is the normalized representation of a chain log fed to the dispatcher.
type RawLog struct {
	BlockNumber uint64   `json:"block_number"`
	BlockHash   string   `json:"block_hash,omitempty"`
	TxHash      string   `json:"tx_hash"`
	TxIndex     uint64   `json:"tx_index"`
	LogIndex    uint64   `json:"log_index"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	Removed     bool     `json:"removed,omitempty"`
	Timestamp   uint64   `json:"timestamp,omitempty"`
}

// Topic0 returns the event signature topic, or "" when the log has none.
func (l RawLog) Topic0() string {
	if len(l.Topics) == 0 {
		return ""
	}
	return l.Topics[0]
}

// SortLogs orders logs by (block number, log index) ascending.
func SortLogs(logs []RawLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].LogIndex < logs[j].LogIndex
	})
}

// NormalizeAddress renders an address the way rows store it: lowercase hex.
func NormalizeAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// NormalizeHex lowercases a hex string such as a tx or order hash.
func NormalizeHex(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
