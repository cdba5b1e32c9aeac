package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                       { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}            { return t.done }
func (t *fakeToken) Error() error                     { return t.err }

type fakeClient struct {
	token        mqtt.Token
	topic        string
	qos          byte
	retained     bool
	payload      []byte
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topic, c.qos, c.retained = topic, qos, retained
	c.payload, _ = payload.([]byte)
	return c.token
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func TestPublishStatus(t *testing.T) {
	client := &fakeClient{token: completedToken(nil)}
	pub := newPublisher(client, MQTTConfig{TopicPrefix: "lobby/", QoS: 1}, nil)

	at := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	err := pub.PublishStatus(context.Background(), StatusEvent{Code: "abc123", Status: "recovery", Label: "Recovery", UpdatedAt: at})
	require.NoError(t, err)

	assert.Equal(t, "lobby/ABC123", client.topic)
	assert.Equal(t, byte(1), client.qos)
	assert.True(t, client.retained)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(client.payload, &decoded))
	assert.Equal(t, "recovery", decoded["status"])
	assert.NotContains(t, decoded, "firstName")

	pub.Close()
	assert.True(t, client.disconnected)
}

func TestPublishStatusBrokerError(t *testing.T) {
	client := &fakeClient{token: completedToken(errors.New("not authorized"))}
	pub := newPublisher(client, MQTTConfig{}, nil)

	err := pub.PublishStatus(context.Background(), StatusEvent{Code: "ABC123"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "waitroom/patients/ABC123")
}

func TestPublishStatusHonoursContext(t *testing.T) {
	client := &fakeClient{token: &fakeToken{done: make(chan struct{})}}
	pub := newPublisher(client, MQTTConfig{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pub.PublishStatus(ctx, StatusEvent{Code: "ABC123"})
	assert.ErrorIs(t, err, context.Canceled)
}
