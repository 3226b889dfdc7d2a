package handlers

import (
	"encoding/base64"
	"fmt"

	apperrors "github.com/acme/lead-engagement/pkg/errors"
)

// encodeCursor turns an opaque store page state into a URL-safe cursor.
func encodeCursor(state []byte) string {
	if len(state) == 0 {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(state)
}

func decodeCursor(cursor string) ([]byte, error) {
	if cursor == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: decode cursor: %v", apperrors.ErrValidation, err)
	}
	return data, nil
}
