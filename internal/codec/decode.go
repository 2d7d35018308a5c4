// Package codec provides best-effort decoding of captured HTTP bodies into
// JSON values and tolerant re-encoding for delivery. Decoding never fails:
// anything that is not valid JSON is passed through as the raw string.
package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
)

// Decode attempts a strict JSON parse of raw and falls back to the raw
// string when parsing fails. nil and empty inputs yield nil.
func Decode(raw any) any {
	switch v := raw.(type) {
	case nil:
		return nil
	case []byte:
		return decodeString(string(v))
	case string:
		return decodeString(v)
	default:
		return raw
	}
}

func decodeString(s string) any {
	if s == "" {
		return nil
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return s
	}
	return out
}

// DecodeBody decompresses and decodes a captured body using the response
// headers as hints. It tries base64, gzip and brotli in sequence and returns
// the decoded JSON value, the raw text when the payload is not JSON, or nil
// for binary content types that cannot be represented.
func DecodeBody(raw []byte, headers map[string]string) any {
	if len(raw) == 0 {
		return nil
	}
	encoding := ""
	contentType := ""
	for k, v := range headers {
		switch strings.ToLower(k) {
		case "content-encoding":
			encoding = strings.ToLower(v)
		case "content-type":
			contentType = strings.ToLower(v)
		}
	}
	if isBinaryContentType(contentType) {
		return nil
	}

	data := raw
	// base64-wrapped payloads show up when bodies transit systems that
	// cannot carry raw bytes
	if decoded, err := base64.StdEncoding.DecodeString(string(raw)); err == nil && len(decoded) > 0 {
		if d := decompress(decoded, encoding); json.Valid(d) || utf8.Valid(d) {
			data = d
		}
	}
	data = decompress(data, encoding)

	if json.Valid(data) {
		return Decode(data)
	}
	if utf8.Valid(data) {
		return string(data)
	}
	return nil
}

func decompress(data []byte, encoding string) []byte {
	switch encoding {
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return data
		}
		out, err := io.ReadAll(zr)
		_ = zr.Close()
		if err != nil {
			return data
		}
		return out
	case "br":
		out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
		if err != nil || len(out) == 0 {
			return data
		}
		return out
	default:
		return data
	}
}

func isBinaryContentType(contentType string) bool {
	return strings.HasPrefix(contentType, "audio/") ||
		strings.HasPrefix(contentType, "image/") ||
		strings.HasPrefix(contentType, "video/") ||
		strings.HasPrefix(contentType, "application/octet-stream")
}
