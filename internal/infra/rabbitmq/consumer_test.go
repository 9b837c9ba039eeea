package rabbitmq

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestAttemptFromHeaders(t *testing.T) {
	assert.Equal(t, 1, attemptFromHeaders(amqp.Delivery{}))
	assert.Equal(t, 1, attemptFromHeaders(amqp.Delivery{Headers: amqp.Table{}}))

	d := amqp.Delivery{Headers: amqp.Table{
		"x-death": []interface{}{amqp.Table{}, amqp.Table{}, amqp.Table{}},
	}}
	assert.Equal(t, 3, attemptFromHeaders(d))

	// Malformed header falls back to first attempt.
	bad := amqp.Delivery{Headers: amqp.Table{"x-death": "oops"}}
	assert.Equal(t, 1, attemptFromHeaders(bad))
}

func TestBackoffIsExponentialAndCapped(t *testing.T) {
	c := &Consumer{baseDelay: time.Second}

	assert.Equal(t, 1*time.Second, c.backoff(1))
	assert.Equal(t, 2*time.Second, c.backoff(2))
	assert.Equal(t, 8*time.Second, c.backoff(4))
	assert.Equal(t, 60*time.Second, c.backoff(10))
}
