package xnats

import (
	"errors"

	"github.com/nats-io/nats.go"
)

// Connect opens a connection and its JetStream context.
func Connect(url string, opts ...nats.Option) (nc *nats.Conn, js nats.JetStreamContext, err error) {
	nc, err = nats.Connect(url, opts...)
	if err != nil {
		return
	}

	js, err = nc.JetStream(nats.PublishAsyncMaxPending(256))
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return
}

// EnsureStream creates stream with its op subjects unless it exists.
func EnsureStream(js nats.JetStreamContext, stream string) (err error) {
	_, err = js.StreamInfo(stream)
	if err == nil {
		return
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     stream,
		Subjects: []string{Subjects(stream)},
	})
	return
}
