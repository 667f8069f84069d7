// Package codec is the single serialization point for everything that crosses
// a link or lands on a storage volume. It uses CBOR core deterministic
// encoding so identical values always produce identical bytes.
//
// Decoding fails closed: anything that is not exactly one well-formed CBOR
// item, or that nests deeper than MaxNesting, or that repeats a map key, is
// reported as ErrMalformed and must be dropped by the caller.
package codec

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// MaxNesting bounds array/map depth accepted from the network.
const MaxNesting = 16

// ErrMalformed marks input that could not be decoded at all.
var ErrMalformed = errors.New("codec: malformed input")

// RawMessage is an undecoded CBOR item.
type RawMessage = cbor.RawMessage

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IntDec:          cbor.IntDecConvertSigned,
		MaxNestedLevels: MaxNesting,
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v. Type mismatches come back as
// *cbor.UnmarshalTypeError so callers can tell them apart from ErrMalformed.
func Unmarshal(data []byte, v any) error {
	if err := decMode.Wellformed(data); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return decMode.Unmarshal(data, v)
}

// Encode serializes a structured value built from maps, slices, strings,
// numbers, booleans and nil.
func Encode(v any) ([]byte, error) {
	return Marshal(v)
}

// Decode is the inverse of Encode. Maps come back as map[string]any, integers
// as int64, floats as float64 and arrays as []any.
func Decode(data []byte) (any, error) {
	var v any
	if err := Unmarshal(data, &v); err != nil {
		if errors.Is(err, ErrMalformed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}

// IsTypeError reports whether err is a field type mismatch rather than
// malformed input.
func IsTypeError(err error) bool {
	var te *cbor.UnmarshalTypeError
	return errors.As(err, &te)
}
