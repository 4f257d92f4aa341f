package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// PayloadArchiver implements domain.PayloadArchiver by serializing raw venue
// payloads and uploading them to object storage. Payloads land here when the
// normalizer cannot recognize a response shape; the archived copy is the
// input to offline reconciliation.
type PayloadArchiver struct {
	writer domain.BlobWriter
}

// NewPayloadArchiver creates a PayloadArchiver that uploads through the given
// writer.
func NewPayloadArchiver(writer domain.BlobWriter) *PayloadArchiver {
	return &PayloadArchiver{writer: writer}
}

// ArchivePayload uploads one raw payload at
// raw/{YYYY-MM-DD}/{attemptID}/{step}-{venue}.json.
func (a *PayloadArchiver) ArchivePayload(ctx context.Context, attemptID string, step domain.AttemptStep, venue domain.Venue, payload map[string]any) error {
	buf, err := marshalPayload(payload)
	if err != nil {
		return fmt.Errorf("s3blob: marshal payload for attempt %s: %w", attemptID, err)
	}

	path := payloadPath(attemptID, step, venue, time.Now().UTC())
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive payload for attempt %s: %w", attemptID, err)
	}
	return nil
}

// payloadPath partitions archived payloads by the day they were captured so
// old prefixes can be expired with a lifecycle rule.
func payloadPath(attemptID string, step domain.AttemptStep, venue domain.Venue, now time.Time) string {
	return fmt.Sprintf("raw/%s/%s/%s-%s.json", now.Format("2006-01-02"), attemptID, step, venue)
}

func marshalPayload(payload map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var _ domain.PayloadArchiver = (*PayloadArchiver)(nil)
