// Package codec implements the packed textual encoding used for message
// bodies: a structured value is packed into a length-prefixed binary form
// and rendered as a space-separated sequence of decimal byte values, e.g.
// "7 0 0 0 1 0 0 0 3 102 111 111 5 0 0 0 3 98 97 114".
//
// The canonical Value forms are map[string]any for objects, []any for
// arrays, and string, int64, float64, bool and nil for scalars. Pack
// accepts the other Go integer types and normalizes them to int64, so
// Decode(Encode(v)) == v holds for every canonical value.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Value is a JSON-like tree: objects, arrays and scalars.
type Value = any

// Type tags of the binary packing. Composite values carry a big-endian
// uint32 element count, strings a big-endian uint32 byte length.
const (
	tagNil    byte = 0x00
	tagFalse  byte = 0x01
	tagTrue   byte = 0x02
	tagInt    byte = 0x03
	tagFloat  byte = 0x04
	tagString byte = 0x05
	tagArray  byte = 0x06
	tagObject byte = 0x07
)

// EmptyObject returns the fallback value used by callers that replace
// undecodable bodies with an empty object.
func EmptyObject() map[string]any {
	return map[string]any{}
}

// Encode packs v and renders the packed bytes as decimal values joined by
// single spaces. The rendering is deterministic: object keys are packed in
// sorted order.
func Encode(v Value) (string, error) {
	packed, err := Pack(v)
	if err != nil {
		return "", err
	}

	var b strings.Builder

	b.Grow(len(packed) * 4)

	for i, c := range packed {
		if i > 0 {
			b.WriteByte(' ')
		}

		b.WriteString(strconv.Itoa(int(c)))
	}

	return b.String(), nil
}

// Decode parses a space-separated sequence of decimal byte values and
// unpacks the resulting bytes into a Value.
func Decode(text string) (Value, error) {
	if text == "" {
		return nil, fmt.Errorf("decode: empty input")
	}

	parts := strings.Split(text, " ")
	packed := make([]byte, len(parts))

	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("decode: byte %d: %q is not a decimal byte value", i, p)
		}

		packed[i] = byte(n)
	}

	return Unpack(packed)
}

// Pack serializes v into the length-prefixed binary form.
func Pack(v Value) ([]byte, error) {
	var buf bytes.Buffer

	if err := packValue(&buf, v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unpack parses the length-prefixed binary form back into a Value. It
// fails if the input is truncated or carries trailing bytes.
func Unpack(packed []byte) (Value, error) {
	r := &reader{buf: packed}

	v, err := r.readValue()
	if err != nil {
		return nil, err
	}

	if r.pos != len(r.buf) {
		return nil, fmt.Errorf("unpack: %d trailing bytes after value", len(r.buf)-r.pos)
	}

	return v, nil
}

func packValue(buf *bytes.Buffer, v Value) error { // nolint: cyclop
	switch val := v.(type) {
	case nil:
		buf.WriteByte(tagNil)
	case bool:
		if val {
			buf.WriteByte(tagTrue)
		} else {
			buf.WriteByte(tagFalse)
		}
	case int64:
		packInt(buf, val)
	case int:
		packInt(buf, int64(val))
	case int32:
		packInt(buf, int64(val))
	case float64:
		buf.WriteByte(tagFloat)
		binary.Write(buf, binary.BigEndian, math.Float64bits(val)) // nolint:errcheck // bytes.Buffer does not fail
	case float32:
		buf.WriteByte(tagFloat)
		binary.Write(buf, binary.BigEndian, math.Float64bits(float64(val))) // nolint:errcheck
	case string:
		buf.WriteByte(tagString)
		packLen(buf, len(val))
		buf.WriteString(val)
	case []any:
		buf.WriteByte(tagArray)
		packLen(buf, len(val))

		for _, elem := range val {
			if err := packValue(buf, elem); err != nil {
				return err
			}
		}
	case map[string]any:
		buf.WriteByte(tagObject)
		packLen(buf, len(val))

		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}

		slices.Sort(keys)

		for _, k := range keys {
			packLen(buf, len(k))
			buf.WriteString(k)

			if err := packValue(buf, val[k]); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("pack: unsupported value type %T", v)
	}

	return nil
}

func packInt(buf *bytes.Buffer, n int64) {
	buf.WriteByte(tagInt)
	binary.Write(buf, binary.BigEndian, n) // nolint:errcheck // bytes.Buffer does not fail
}

func packLen(buf *bytes.Buffer, n int) {
	binary.Write(buf, binary.BigEndian, uint32(n)) // nolint:errcheck,gosec // lengths come from in-memory slices
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *reader) readByte() (byte, error) {
	if r.remaining() < 1 {
		return 0, fmt.Errorf("unpack: truncated input at offset %d", r.pos)
	}

	b := r.buf[r.pos]
	r.pos++

	return b, nil
}

func (r *reader) readBytes(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("unpack: need %d bytes at offset %d, have %d", n, r.pos, r.remaining())
	}

	b := r.buf[r.pos : r.pos+n]
	r.pos += n

	return b, nil
}

// readLen reads a uint32 length prefix. Every counted element occupies at
// least one byte, so a length beyond the remaining input is rejected here
// instead of allocating for it.
func (r *reader) readLen() (int, error) {
	b, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}

	n := binary.BigEndian.Uint32(b)
	if int64(n) > int64(r.remaining()) {
		return 0, fmt.Errorf("unpack: length %d exceeds remaining input %d", n, r.remaining())
	}

	return int(n), nil
}

func (r *reader) readValue() (Value, error) { // nolint: cyclop
	tag, err := r.readByte()
	if err != nil {
		return nil, err
	}

	switch tag {
	case tagNil:
		return nil, nil
	case tagFalse:
		return false, nil
	case tagTrue:
		return true, nil
	case tagInt:
		b, err := r.readBytes(8)
		if err != nil {
			return nil, err
		}

		return int64(binary.BigEndian.Uint64(b)), nil // nolint:gosec // round-trips the packed two's complement value
	case tagFloat:
		b, err := r.readBytes(8)
		if err != nil {
			return nil, err
		}

		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	case tagString:
		return r.readString()
	case tagArray:
		n, err := r.readLen()
		if err != nil {
			return nil, err
		}

		arr := make([]any, n)

		for i := range arr {
			if arr[i], err = r.readValue(); err != nil {
				return nil, err
			}
		}

		return arr, nil
	case tagObject:
		n, err := r.readLen()
		if err != nil {
			return nil, err
		}

		obj := make(map[string]any, n)

		for i := 0; i < n; i++ {
			key, err := r.readString()
			if err != nil {
				return nil, err
			}

			if obj[key], err = r.readValue(); err != nil {
				return nil, err
			}
		}

		return obj, nil
	default:
		return nil, fmt.Errorf("unpack: unknown type tag 0x%02x at offset %d", tag, r.pos-1)
	}
}

func (r *reader) readString() (string, error) {
	n, err := r.readLen()
	if err != nil {
		return "", err
	}

	b, err := r.readBytes(n)
	if err != nil {
		return "", err
	}

	return string(b), nil
}
