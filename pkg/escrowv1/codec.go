package escrowv1

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// CodecName is the Connect codec name, and so the content subtype, used
// by EscrowService.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecName }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	return json.Unmarshal(data, msg)
}

// WithCodec installs the EscrowService codec. It is both a handler and a
// client option.
func WithCodec() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
