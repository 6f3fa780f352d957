// Package jsonutil wraps sonic with a frozen, encoding/json compatible config.
package jsonutil

import (
	"io"

	"github.com/bytedance/sonic"
)

var api = sonic.Config{
	EscapeHTML:       true,
	SortMapKeys:      false,
	CompactMarshaler: true,
	CopyString:       true,
}.Froze()

func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

func UnmarshalString(data string, v any) error {
	return api.UnmarshalFromString(data, v)
}

// NewDecoder returns a streaming decoder over r.
func NewDecoder(r io.Reader) sonic.Decoder {
	return api.NewDecoder(r)
}

func NewEncoder(w io.Writer) sonic.Encoder {
	return api.NewEncoder(w)
}
