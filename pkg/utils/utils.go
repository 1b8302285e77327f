package utils

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
)

func JSONEncode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// JSONEncodeString is JSONEncode for values that are known to marshal; it
// panics on failure so call sites stay single-expression.
func JSONEncodeString(v any) string {
	s, err := JSONEncode(v)
	if err != nil {
		panic(fmt.Errorf("unable to encode type %T to string: %w", v, err))
	}
	return s
}

// IsContentType compares the media type of a Content-Type header, ignoring
// any parameters such as charset.
func IsContentType(header http.Header, contentType string) bool {
	headerContentType := header.Get("Content-Type")
	for i, c := range headerContentType {
		if c == ' ' || c == ';' {
			headerContentType = headerContentType[:i]
			break
		}
	}
	return headerContentType == contentType
}

// GenerateID generates a random ID with the given prefix.
// Format: prefix_<24 random hex characters>
func GenerateID(prefix string) string {
	b := make([]byte, 12)
	rand.Read(b)
	return prefix + "_" + hex.EncodeToString(b)
}
