// Package wire carries the BookingService messages in protobuf wire format.
// Messages are encoded by hand with protowire, so the service needs no
// generated code.
package wire

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/types/known/timestamppb"
)

type Message interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// Codec is registered on the server and clients in place of the default
// proto codec.
type Codec struct{}

func (Codec) Name() string { return "proto" }

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("wire: cannot marshal %T", v)
	}
	return m.Marshal()
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("wire: cannot unmarshal into %T", v)
	}
	return m.Unmarshal(data)
}

// consumeFields calls fn for each field in b. fn returns how many bytes of the
// value it consumed, or 0 to skip the field.
func consumeFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m := fn(num, typ, b)
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func consumeString(dst *string, typ protowire.Type, b []byte) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeString(b)
	if n >= 0 {
		*dst = v
	}
	return n
}

func consumeInt(dst *int64, typ protowire.Type, b []byte) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*dst = int64(v)
	}
	return n
}

func consumeBool(dst *bool, typ protowire.Type, b []byte) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*dst = protowire.DecodeBool(v)
	}
	return n
}

// consumeTime reads a google.protobuf.Timestamp.
func consumeTime(dst *time.Time, typ protowire.Type, b []byte) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n
	}
	ts := &timestamppb.Timestamp{}
	err := consumeFields(v, func(num protowire.Number, typ protowire.Type, b []byte) int {
		var x int64
		switch num {
		case 1:
			m := consumeInt(&x, typ, b)
			ts.Seconds = x
			return m
		case 2:
			m := consumeInt(&x, typ, b)
			ts.Nanos = int32(x)
			return m
		}
		return 0
	})
	if err != nil {
		return -1
	}
	*dst = ts.AsTime()
	return n
}

func appendString(out []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return out
	}
	out = protowire.AppendTag(out, num, protowire.BytesType)
	return protowire.AppendString(out, s)
}

func appendInt(out []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return out
	}
	out = protowire.AppendTag(out, num, protowire.VarintType)
	return protowire.AppendVarint(out, uint64(v))
}

func appendBool(out []byte, num protowire.Number, v bool) []byte {
	if !v {
		return out
	}
	out = protowire.AppendTag(out, num, protowire.VarintType)
	return protowire.AppendVarint(out, protowire.EncodeBool(v))
}

func appendTime(out []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return out
	}
	ts := timestamppb.New(t)
	var inner []byte
	inner = appendInt(inner, 1, ts.Seconds)
	inner = appendInt(inner, 2, int64(ts.Nanos))
	out = protowire.AppendTag(out, num, protowire.BytesType)
	return protowire.AppendBytes(out, inner)
}

func appendMessage(out []byte, num protowire.Number, m Message) []byte {
	b, _ := m.Marshal()
	out = protowire.AppendTag(out, num, protowire.BytesType)
	return protowire.AppendBytes(out, b)
}

func consumeMessage(m Message, typ protowire.Type, b []byte) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n
	}
	if err := m.Unmarshal(v); err != nil {
		return -1
	}
	return n
}
