package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxBodyBytes caps every JSON request body.
const MaxBodyBytes = 1 << 20

var ErrEmptyBody = errors.New("request body is empty")

// DecodeJSON reads a single JSON object into dst. Unknown fields are
// rejected so typos in field names fail loudly.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func ValidateRequired(value string) bool {
	return strings.TrimSpace(value) != ""
}

// ValidateJWT is a shape check only: three dot-separated segments.
func ValidateJWT(token string) bool {
	if token == "" {
		return false
	}
	parts := strings.Split(token, ".")
	return len(parts) == 3 && parts[0] != "" && parts[1] != ""
}
