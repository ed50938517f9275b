package topicroute

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"
)

// Codec decodes payloads into FromPayload parameters.
type Codec interface {
	// Name identifies the codec in configuration.
	Name() string

	Unmarshal(data []byte, v any) error
}

// JSONCodec decodes JSON payloads with encoding/json.
type JSONCodec struct {
	// DisallowUnknownFields rejects payloads with fields the target lacks.
	DisallowUnknownFields bool
}

// Name returns "json".
func (JSONCodec) Name() string { return "json" }

// Unmarshal decodes data into v.
func (c JSONCodec) Unmarshal(data []byte, v any) error {
	if !c.DisallowUnknownFields {
		return json.Unmarshal(data, v)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// ProtoCodec decodes protobuf wire-format payloads. The target must be a
// proto.Message, or a pointer to one.
type ProtoCodec struct {
	Options proto.UnmarshalOptions
}

// Name returns "proto".
func (ProtoCodec) Name() string { return "proto" }

// Unmarshal decodes data into v.
func (c ProtoCodec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return c.Options.Unmarshal(data, m)
	}

	// Payload[*pb.Msg] hands us a **pb.Msg holding nil.
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Pointer {
		return fmt.Errorf("proto codec: %T is not a proto.Message", v)
	}
	elem := rv.Elem()
	if elem.IsNil() {
		elem.Set(reflect.New(elem.Type().Elem()))
	}
	m, ok := elem.Interface().(proto.Message)
	if !ok {
		return fmt.Errorf("proto codec: %s is not a proto.Message", elem.Type())
	}
	return c.Options.Unmarshal(data, m)
}

// CodecByName returns the built-in codec registered under name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "proto", "protobuf":
		return ProtoCodec{}, nil
	}
	return nil, fmt.Errorf("%w: unknown payload codec %q", ErrInvalidConfig, name)
}
