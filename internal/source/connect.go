package source

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MQTTOptions describes the broker connection shared by the push
// subscriber and the notification sink.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Retries  int
}

// clientOptions builds paho options. The client ID gets a random suffix so
// that several dashboards can share a broker.
func clientOptions(o MQTTOptions, log zerolog.Logger) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%s", o.ClientID, uuid.NewString()[:8]))
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		log.Info().Msg("mqtt reconnecting")
	})
	return opts
}

// Connect dials the broker with exponential backoff and disconnects when
// ctx is done.
func Connect(ctx context.Context, o MQTTOptions, log zerolog.Logger) (mqtt.Client, error) {
	log = log.With().Str("broker", o.Broker).Logger()
	opts := clientOptions(o, log)

	retries := o.Retries
	if retries < 1 {
		retries = 1
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		token := client.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			log.Warn().Err(err).Msg("mqtt connect failed")
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", o.Broker, err)
	}
	log.Info().Msg("connected to mqtt broker")

	go func() {
		<-ctx.Done()
		client.Disconnect(250)
		log.Info().Msg("mqtt connection closed")
	}()
	return client, nil
}
