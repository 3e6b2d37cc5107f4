// Package llsd encodes and decodes LLSD XML, the structured data format of
// the grid's HTTP capabilities.
//
// Values map to Go types as follows:
//
//	undef    nil
//	boolean  bool
//	integer  int32 (any Go integer type encodes)
//	real     float64
//	string   string
//	uuid     uuid.UUID
//	date     time.Time
//	uri      *url.URL
//	binary   []byte
//	map      map[string]any
//	array    []any
package llsd

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContentType is the MIME type of LLSD XML documents.
const ContentType = "application/llsd+xml"

// ErrMalformed is returned for documents that are not valid LLSD XML.
var ErrMalformed = errors.New("llsd: malformed document")

// ============================================================================
// Encoding
// ============================================================================

// Marshal encodes v as an LLSD XML document.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes v as an LLSD XML document to w.
func Encode(w io.Writer, v any) error {
	enc := xml.NewEncoder(w)
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	root := xml.StartElement{Name: xml.Name{Local: "llsd"}}
	if err := enc.EncodeToken(root); err != nil {
		return err
	}
	if err := encodeValue(enc, v); err != nil {
		return err
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return err
	}
	return enc.Flush()
}

func encodeValue(enc *xml.Encoder, v any) error {
	switch value := v.(type) {
	case nil:
		return emptyElement(enc, "undef")
	case bool:
		if value {
			return textElement(enc, "boolean", "true")
		}
		return textElement(enc, "boolean", "false")
	case int:
		return textElement(enc, "integer", strconv.Itoa(value))
	case int8:
		return textElement(enc, "integer", strconv.Itoa(int(value)))
	case int16:
		return textElement(enc, "integer", strconv.Itoa(int(value)))
	case int32:
		return textElement(enc, "integer", strconv.FormatInt(int64(value), 10))
	case int64:
		return textElement(enc, "integer", strconv.FormatInt(value, 10))
	case uint8:
		return textElement(enc, "integer", strconv.FormatUint(uint64(value), 10))
	case uint16:
		return textElement(enc, "integer", strconv.FormatUint(uint64(value), 10))
	case uint32:
		// LLSD integers are signed 32 bit; unsigned values keep their bits
		return textElement(enc, "integer", strconv.FormatInt(int64(int32(value)), 10))
	case float32:
		return encodeReal(enc, float64(value))
	case float64:
		return encodeReal(enc, value)
	case string:
		return textElement(enc, "string", value)
	case uuid.UUID:
		return textElement(enc, "uuid", value.String())
	case time.Time:
		return textElement(enc, "date", value.UTC().Format(time.RFC3339Nano))
	case *url.URL:
		return textElement(enc, "uri", value.String())
	case []byte:
		return textElement(enc, "binary", base64.StdEncoding.EncodeToString(value))
	case map[string]any:
		return encodeMap(enc, value)
	case []any:
		return encodeArray(enc, value)
	case []map[string]any:
		items := make([]any, len(value))
		for i, m := range value {
			items[i] = m
		}
		return encodeArray(enc, items)
	case []uuid.UUID:
		items := make([]any, len(value))
		for i, id := range value {
			items[i] = id
		}
		return encodeArray(enc, items)
	default:
		return fmt.Errorf("llsd: cannot encode %T", v)
	}
}

func encodeReal(enc *xml.Encoder, value float64) error {
	switch {
	case math.IsNaN(value):
		return textElement(enc, "real", "nan")
	case math.IsInf(value, 1):
		return textElement(enc, "real", "inf")
	case math.IsInf(value, -1):
		return textElement(enc, "real", "-inf")
	}
	return textElement(enc, "real", strconv.FormatFloat(value, 'g', -1, 64))
}

func encodeMap(enc *xml.Encoder, m map[string]any) error {
	start := xml.StartElement{Name: xml.Name{Local: "map"}}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := textElement(enc, "key", k); err != nil {
			return err
		}
		if err := encodeValue(enc, m[k]); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
	}
	return enc.EncodeToken(start.End())
}

func encodeArray(enc *xml.Encoder, items []any) error {
	start := xml.StartElement{Name: xml.Name{Local: "array"}}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	for i, item := range items {
		if err := encodeValue(enc, item); err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
	}
	return enc.EncodeToken(start.End())
}

func textElement(enc *xml.Encoder, name, text string) error {
	start := xml.StartElement{Name: xml.Name{Local: name}}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if err := enc.EncodeToken(xml.CharData(text)); err != nil {
		return err
	}
	return enc.EncodeToken(start.End())
}

func emptyElement(enc *xml.Encoder, name string) error {
	start := xml.StartElement{Name: xml.Name{Local: name}}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	return enc.EncodeToken(start.End())
}

// ============================================================================
// Decoding
// ============================================================================

// Unmarshal decodes an LLSD XML document.
func Unmarshal(data []byte) (any, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads one LLSD XML document from r.
func Decode(r io.Reader) (any, error) {
	dec := xml.NewDecoder(r)

	start, err := nextStart(dec)
	if err != nil {
		return nil, err
	}
	if start.Name.Local != "llsd" {
		return nil, fmt.Errorf("%w: root element %q", ErrMalformed, start.Name.Local)
	}

	// An empty document decodes to undef
	next, err := nextStartOrEnd(dec)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, nil
	}
	return decodeValue(dec, *next)
}

func nextStart(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start, nil
		}
	}
}

// nextStartOrEnd returns the next start element, or nil when the enclosing
// element ends first.
func nextStartOrEnd(dec *xml.Decoder) (*xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return &t, nil
		case xml.EndElement:
			return nil, nil
		}
	}
}

// readText collects character data up to the end of the current element.
func readText(dec *xml.Decoder) (string, error) {
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			return sb.String(), nil
		case xml.StartElement:
			return "", fmt.Errorf("%w: unexpected element %q in scalar", ErrMalformed, t.Name.Local)
		}
	}
}

func decodeValue(dec *xml.Decoder, start xml.StartElement) (any, error) {
	switch start.Name.Local {
	case "map":
		return decodeMap(dec)
	case "array":
		return decodeArray(dec)
	}

	text, err := readText(dec)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)

	switch start.Name.Local {
	case "undef":
		return nil, nil
	case "boolean":
		return text == "1" || strings.EqualFold(text, "true"), nil
	case "integer":
		if text == "" {
			return int32(0), nil
		}
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: integer %q", ErrMalformed, text)
		}
		return int32(n), nil
	case "real":
		switch strings.ToLower(text) {
		case "":
			return float64(0), nil
		case "nan":
			return math.NaN(), nil
		case "inf":
			return math.Inf(1), nil
		case "-inf":
			return math.Inf(-1), nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: real %q", ErrMalformed, text)
		}
		return f, nil
	case "string":
		return text, nil
	case "uuid":
		if text == "" {
			return uuid.Nil, nil
		}
		id, err := uuid.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("%w: uuid %q", ErrMalformed, text)
		}
		return id, nil
	case "date":
		if text == "" {
			return time.Time{}, nil
		}
		ts, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return nil, fmt.Errorf("%w: date %q", ErrMalformed, text)
		}
		return ts, nil
	case "uri":
		u, err := url.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("%w: uri %q", ErrMalformed, text)
		}
		return u, nil
	case "binary":
		data, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("%w: binary: %v", ErrMalformed, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unknown element %q", ErrMalformed, start.Name.Local)
	}
}

func decodeMap(dec *xml.Decoder) (map[string]any, error) {
	m := make(map[string]any)
	for {
		keyElem, err := nextStartOrEnd(dec)
		if err != nil {
			return nil, err
		}
		if keyElem == nil {
			return m, nil
		}
		if keyElem.Name.Local != "key" {
			return nil, fmt.Errorf("%w: expected key, got %q", ErrMalformed, keyElem.Name.Local)
		}
		key, err := readText(dec)
		if err != nil {
			return nil, err
		}

		valueElem, err := nextStartOrEnd(dec)
		if err != nil {
			return nil, err
		}
		if valueElem == nil {
			return nil, fmt.Errorf("%w: key %q without value", ErrMalformed, key)
		}
		value, err := decodeValue(dec, *valueElem)
		if err != nil {
			return nil, err
		}
		m[key] = value
	}
}

func decodeArray(dec *xml.Decoder) ([]any, error) {
	items := []any{}
	for {
		elem, err := nextStartOrEnd(dec)
		if err != nil {
			return nil, err
		}
		if elem == nil {
			return items, nil
		}
		value, err := decodeValue(dec, *elem)
		if err != nil {
			return nil, err
		}
		items = append(items, value)
	}
}
