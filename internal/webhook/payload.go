package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"mintExchange/internal/model"
)

// Quantity is a block number, index or timestamp that providers send either as
// a JSON number or as a 0x-prefixed hex string.
type Quantity uint64

func (q *Quantity) UnmarshalJSON(input []byte) error {
	input = bytes.TrimSpace(input)
	if bytes.Equal(input, []byte("null")) {
		*q = 0
		return nil
	}

	if len(input) > 0 && input[0] == '"' {
		var s string
		if err := json.Unmarshal(input, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			v, err := strconv.ParseUint(s[2:], 16, 64)
			if err != nil {
				return fmt.Errorf("invalid hex quantity %q: %w", s, err)
			}
			*q = Quantity(v)
			return nil
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid quantity %q: %w", s, err)
		}
		*q = Quantity(v)
		return nil
	}

	v, err := strconv.ParseUint(string(input), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid quantity %s: %w", input, err)
	}
	*q = Quantity(v)
	return nil
}

// Log is one log entry of a webhook delivery.
type Log struct {
	Address          string   `json:"address"`
	Topics           []string `json:"topics"`
	Data             string   `json:"data"`
	BlockNumber      Quantity `json:"blockNumber"`
	BlockHash        string   `json:"blockHash,omitempty"`
	BlockTimestamp   Quantity `json:"blockTimestamp,omitempty"`
	TransactionHash  string   `json:"transactionHash,omitempty"`
	TransactionIndex Quantity `json:"transactionIndex,omitempty"`
	LogIndex         Quantity `json:"logIndex"`
	Removed          bool     `json:"removed,omitempty"`
}

// Payload is the body of a webhook delivery: the logs of one transaction.
type Payload struct {
	TransactionHash string `json:"transactionHash"`
	Logs            []Log  `json:"logs"`
}

// DecodePayload reads and validates a delivery.
func DecodePayload(r io.Reader) (Payload, error) {
	var payload Payload
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return Payload{}, err
	}
	return payload, nil
}

// Validate checks the fields the dispatcher relies on.
func (p Payload) Validate() error {
	if p.TransactionHash != "" && !isHash(p.TransactionHash) {
		return fmt.Errorf("invalid transactionHash %q", p.TransactionHash)
	}
	for i, log := range p.Logs {
		if !common.IsHexAddress(log.Address) {
			return fmt.Errorf("logs[%d]: invalid address %q", i, log.Address)
		}
		for j, topic := range log.Topics {
			if !isHash(topic) {
				return fmt.Errorf("logs[%d].topics[%d]: invalid topic %q", i, j, topic)
			}
		}
		if log.Data != "" {
			if _, err := hexutil.Decode(log.Data); err != nil {
				return fmt.Errorf("logs[%d]: invalid data: %w", i, err)
			}
		}
		if log.TransactionHash != "" && !isHash(log.TransactionHash) {
			return fmt.Errorf("logs[%d]: invalid transactionHash %q", i, log.TransactionHash)
		}
		if p.TransactionHash == "" && log.TransactionHash == "" {
			return fmt.Errorf("logs[%d]: transaction hash is missing", i)
		}
	}
	return nil
}

// RawLogs converts the delivery into dispatcher input. Logs without their own
// transaction hash take the delivery's.
func (p Payload) RawLogs() []model.RawLog {
	out := make([]model.RawLog, 0, len(p.Logs))
	for _, log := range p.Logs {
		data := log.Data
		if data == "" {
			data = "0x"
		}
		txHash := log.TransactionHash
		if txHash == "" {
			txHash = p.TransactionHash
		}
		out = append(out, model.RawLog{
			BlockNumber: uint64(log.BlockNumber),
			BlockHash:   log.BlockHash,
			TxHash:      model.NormalizeHex(txHash),
			TxIndex:     uint64(log.TransactionIndex),
			LogIndex:    uint64(log.LogIndex),
			Address:     model.NormalizeAddress(common.HexToAddress(log.Address)),
			Topics:      log.Topics,
			Data:        data,
			Removed:     log.Removed,
			Timestamp:   uint64(log.BlockTimestamp),
		})
	}
	return out
}

func isHash(value string) bool {
	if !strings.HasPrefix(value, "0x") && !strings.HasPrefix(value, "0X") {
		return false
	}
	if len(value) != 2+2*common.HashLength {
		return false
	}
	_, err := hexutil.Decode(value)
	return err == nil
}
