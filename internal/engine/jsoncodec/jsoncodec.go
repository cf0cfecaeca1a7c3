// Package jsoncodec centralises JSON encoding for the engine on sonic's
// stdlib-compatible configuration.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	enc := defaultConfig.NewEncoder(w)
	return enc.Encode(v)
}

func Decode(r io.Reader, v any) error {
	dec := defaultConfig.NewDecoder(r)
	return dec.Decode(v)
}

// Remap converts between JSON-shaped values by a marshal/unmarshal round
// trip. Used to decode raw distributor parameter maps into typed parameter
// structs.
func Remap(from any, to any) error {
	data, err := Marshal(from)
	if err != nil {
		return err
	}
	return Unmarshal(data, to)
}
