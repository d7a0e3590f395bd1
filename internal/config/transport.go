package config

import (
	"fmt"

	"github.com/supplychain/notifyconsole/internal/stream"
)

// NewTransport builds the stream transport selected by s.Transport.
func (s Stream) NewTransport() (stream.Transport, error) {
	switch s.Transport {
	case TransportStomp, "":
		return &stream.STOMPTransport{
			URL:       s.URL,
			Host:      s.Host,
			Login:     s.Login,
			Passcode:  s.Passcode,
			HeartBeat: s.HeartBeat,
		}, nil
	case TransportKafka:
		return &stream.KafkaTransport{
			Brokers:     s.KafkaBrokers,
			GroupPrefix: s.KafkaGroupPrefix,
		}, nil
	case TransportSpool:
		return &stream.SpoolTransport{Dir: s.SpoolDir}, nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", stream.ErrInvalidInput, s.Transport)
	}
}

// ConnectorOptions maps the stream settings onto connector options. The
// caller supplies the transport, logger, and observer.
func (s Stream) ConnectorOptions(transport stream.Transport) stream.ConnectorOptions {
	return stream.ConnectorOptions{
		Transport:       transport,
		Topic:           s.Topic,
		ReconnectDelay:  s.ReconnectDelay,
		ReconnectJitter: s.ReconnectJitter,
		HistoryLimit:    s.HistoryLimit,
	}
}
