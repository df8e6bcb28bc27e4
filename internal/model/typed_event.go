package model

// Protocol identifies which on-chain schema produced an event.
type Protocol string

const (
	ProtocolNative  Protocol = "native"
	ProtocolSeaport Protocol = "seaport"
)

// Event is the protocol-agnostic representation of one decoded log.
type Event struct {
	Type        EventType
	Protocol    Protocol
	Contract    string
	BlockNumber uint64
	BlockHash   string
	TxHash      string
	LogIndex    uint64
	Timestamp   uint64
	Args        Args
}

// NewEvent builds an Event whose Type always agrees with its Args.
func NewEvent(protocol Protocol, log RawLog, args Args) Event {
	return Event{
		Type:        args.eventType(),
		Protocol:    protocol,
		Contract:    log.Address,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Timestamp:   log.Timestamp,
		Args:        args,
	}
}
