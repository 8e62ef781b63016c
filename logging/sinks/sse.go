package sinks

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/r3labs/sse/v2"

	"tracks-and-trains/server/logging"
)

// SSESink streams events to subscribed HTTP clients as server-sent events.
// It also serves the subscription endpoint itself.
type SSESink struct {
	server *sse.Server
	stream string
}

func NewSSESink(stream string) *SSESink {
	if stream == "" {
		stream = "events"
	}
	server := sse.New()
	server.AutoReplay = false
	server.CreateStream(stream)
	return &SSESink{server: server, stream: stream}
}

func (s *SSESink) Write(event logging.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.server.TryPublish(s.stream, &sse.Event{Data: data})
	return nil
}

func (s *SSESink) Close(context.Context) error {
	s.server.RemoveStream(s.stream)
	s.server.Close()
	return nil
}

func (s *SSESink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.ServeHTTP(w, r)
}
