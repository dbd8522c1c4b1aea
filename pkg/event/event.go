// Package event decodes inbound push notifications into file references.
// The transport wraps the storage notification in an envelope whose payload
// is base64-encoded JSON; everything beyond structural decoding (location
// and extension rules) is the pipeline's concern, not the decoder's.
package event

import (
	"encoding/base64"
	"encoding/json"
	"path"
	"strings"

	rferrors "github.com/reportflow/reportflow/pkg/errors"
)

// FileReference identifies one candidate input object. Immutable once
// constructed.
type FileReference struct {
	Container string
	Path      string
}

// String returns the container-qualified object path.
func (r FileReference) String() string {
	return r.Container + "/" + r.Path
}

// Stem returns the base file name without its extension.
func (r FileReference) Stem() string {
	base := path.Base(r.Path)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Envelope is the outer message wrapper delivered by the trigger transport.
type Envelope struct {
	Message      *Message `json:"message"`
	Subscription string   `json:"subscription,omitempty"`
}

// Message carries the encoded notification payload.
type Message struct {
	Data      string `json:"data"`
	MessageID string `json:"messageId,omitempty"`
}

// notification is the decoded payload: the storage event body.
type notification struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// DecodeEnvelope parses a raw request body into a FileReference.
//
// It rejects malformed JSON, a missing message, undecodable payload data,
// and missing or empty bucket/name fields. All failures carry
// CodeBadEnvelope: they are permanent and must not trigger redelivery.
func DecodeEnvelope(body []byte) (FileReference, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return FileReference{}, rferrors.Wrap(err, rferrors.CodeBadEnvelope, "request body is not a valid envelope")
	}
	if env.Message == nil {
		return FileReference{}, rferrors.New(rferrors.CodeBadEnvelope, "no message found in envelope")
	}

	payload, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		return FileReference{}, rferrors.Wrap(err, rferrors.CodeBadEnvelope, "message data is not valid base64")
	}

	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return FileReference{}, rferrors.Wrap(err, rferrors.CodeBadEnvelope, "message payload is not valid JSON")
	}
	if n.Bucket == "" || n.Name == "" {
		return FileReference{}, rferrors.New(rferrors.CodeBadEnvelope, "notification is missing bucket or object name")
	}

	return FileReference{Container: n.Bucket, Path: n.Name}, nil
}

// EncodeEnvelope builds a wire envelope for a file reference. Used by the
// local watch mode and by tests to synthesize notifications.
func EncodeEnvelope(ref FileReference) ([]byte, error) {
	payload, err := json.Marshal(notification{Bucket: ref.Container, Name: ref.Path})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Message: &Message{Data: base64.StdEncoding.EncodeToString(payload)},
	})
}
