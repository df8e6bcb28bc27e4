package market

import "mintExchange/internal/model"

// Decoder decodes the logs of one protocol schema.
//
// Decode returns ok=false with a nil error when the log is not applicable: its
// signature is not part of the schema, or it falls outside the marketplace view.
// An error means the signature matched but the payload could not be parsed.
type Decoder interface {
	Protocol() model.Protocol
	CanDecode(topic0 string) bool
	Decode(log model.RawLog) (model.Event, bool, error)
}
