// Package transport forwards alert records to the cloud ingestion sink.
//
// Transport owns serialization and message metadata; a Sink only moves
// bytes. No retry happens here: a failed send is reported to the caller.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/heat-sentinel/internal/alert"
	"github.com/oshokin/heat-sentinel/internal/domain/sentinel"
	"github.com/oshokin/heat-sentinel/internal/logger"
)

const (
	// ContentType of every alert message.
	ContentType = "application/json"
	// ContentEncoding of every alert message.
	ContentEncoding = "utf-8"
)

// Message is one alert ready for the sink.
type Message struct {
	// MessageID uniquely identifies the message.
	MessageID string
	// Body is the canonical JSON document.
	Body []byte
	// ContentType describes Body.
	ContentType string
	// ContentEncoding is the character encoding of Body.
	ContentEncoding string
}

// Sink delivers messages to the cloud.
type Sink interface {
	Publish(ctx context.Context, msg *Message) error
	Close() error
}

// Ack confirms a delivered alert.
type Ack struct {
	// MessageID of the delivered message.
	MessageID string
	// SentAt is when the sink accepted the message.
	SentAt time.Time
}

// Transport serializes alert records and hands them to a sink.
type Transport struct {
	// sink moves the bytes.
	sink Sink
	// now stamps acknowledgements.
	now func() time.Time
	// newID generates message identifiers.
	newID func() string
}

// New creates a transport over sink.
func New(sink Sink) *Transport {
	return &Transport{
		sink:  sink,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Send delivers one alert record.
func (t *Transport) Send(ctx context.Context, record *sentinel.AlertRecord) (Ack, error) {
	body, err := alert.Marshal(record)
	if err != nil {
		return Ack{}, fmt.Errorf("%w: %w", sentinel.ErrTransport, err)
	}

	msg := &Message{
		MessageID:       t.newID(),
		Body:            body,
		ContentType:     ContentType,
		ContentEncoding: ContentEncoding,
	}

	if err = t.sink.Publish(ctx, msg); err != nil {
		return Ack{}, fmt.Errorf("%w: publish: %w", sentinel.ErrTransport, err)
	}

	ack := Ack{
		MessageID: msg.MessageID,
		SentAt:    t.now(),
	}

	logger.InfoKV(ctx, "Alert sent",
		"message_id", ack.MessageID,
		"image", record.ImageReference,
		"detections", len(record.Detections))

	return ack, nil
}

// Close releases the sink.
func (t *Transport) Close() error {
	return t.sink.Close()
}

// LogSink writes alerts to the log instead of the cloud.
type LogSink struct{}

// Publish logs the message.
func (LogSink) Publish(ctx context.Context, msg *Message) error {
	logger.InfoKV(ctx, "Dry run, alert not forwarded",
		"message_id", msg.MessageID,
		"content_type", msg.ContentType,
		"content_encoding", msg.ContentEncoding,
		"body", string(msg.Body))

	return nil
}

// Close does nothing.
func (LogSink) Close() error {
	return nil
}
