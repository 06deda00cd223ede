package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/routedly/marketplace-be/internal/sla"
)

// DecodeEventCursor parses the opaque pagination cursor. An empty string is
// the first page.
func DecodeEventCursor(cursorStr string) (*sla.EventCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &sla.EventCursor{
		CreatedAt: time.Unix(0, createdAt),
		EventID:   parts[1],
	}, nil
}

// EncodeEventCursor renders a keyset position as an opaque string.
func EncodeEventCursor(cursor *sla.EventCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.EventID)
	return base64.StdEncoding.EncodeToString([]byte(cs))
}
