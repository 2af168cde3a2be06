package queues

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// wait before dialing again after a failed or dropped connection
	reconnectDelay = 5 * time.Second

	// wait before reopening the channel after a channel exception
	reInitDelay = 2 * time.Second

	// wait before publishing again when the broker did not confirm
	resendDelay = 5 * time.Second
)

// Exchange is the topic exchange tracking events are published on.
const Exchange = "tracking"

// DeploymentsQueue collects deploy status events for downstream consumers.
const DeploymentsQueue = "trackingDeployments"

var (
	errNotConnected  = errors.New("not connected to a server")
	errAlreadyClosed = errors.New("already closed: not connected to the server")
	errShutdown      = errors.New("client is shutting down")
)

// connection is the part of *amqp.Connection the re-init loop needs.
type connection interface {
	Channel() (*amqp.Channel, error)
	Close() error
}

// Client is a publisher that keeps one confirmed AMQP channel open and
// reconnects in the background when the broker goes away.
type Client struct {
	m               sync.Mutex
	connection      *amqp.Connection
	channel         *amqp.Channel
	done            chan struct{}
	closeOnce       sync.Once
	notifyConnClose chan *amqp.Error
	notifyChanClose chan *amqp.Error
	notifyConfirm   chan amqp.Confirmation
	isReady         bool
}

// New returns a client and starts connecting to addr.
func New(addr string) *Client {
	client := &Client{done: make(chan struct{})}
	go client.handleReconnect(addr)
	return client
}

func (client *Client) handleReconnect(addr string) {
	for {
		client.setReady(false)

		conn, err := client.connect(addr)
		if err != nil {
			slog.Warn("amqp connect failed, retrying", "error", err)

			select {
			case <-client.done:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		if done := client.handleReInit(conn); done {
			return
		}
	}
}

func (client *Client) connect(addr string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(addr)
	if err != nil {
		return nil, err
	}

	client.m.Lock()
	client.connection = conn
	client.notifyConnClose = make(chan *amqp.Error, 1)
	conn.NotifyClose(client.notifyConnClose)
	client.m.Unlock()

	slog.Info("amqp connected")
	return conn, nil
}

// handleReInit reopens the channel until the connection drops or the
// client is closed. It reports whether the client is shutting down, in
// which case conn is closed too since Close may have run before it existed.
func (client *Client) handleReInit(conn connection) bool {
	for {
		client.setReady(false)

		if err := client.init(conn); err != nil {
			slog.Warn("amqp channel init failed, retrying", "error", err)

			select {
			case <-client.done:
				_ = conn.Close()
				return true
			case <-client.notifyConnClose:
				slog.Warn("amqp connection closed, reconnecting")
				return false
			case <-time.After(reInitDelay):
			}
			continue
		}

		select {
		case <-client.done:
			_ = conn.Close()
			return true
		case <-client.notifyConnClose:
			slog.Warn("amqp connection closed, reconnecting")
			return false
		case <-client.notifyChanClose:
			slog.Warn("amqp channel closed, reinitializing")
		}
	}
}

func (client *Client) init(conn connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	if err := ch.Confirm(false); err != nil {
		return err
	}
	if err := declareTracking(ch); err != nil {
		return err
	}

	client.m.Lock()
	client.channel = ch
	client.notifyChanClose = make(chan *amqp.Error, 1)
	client.notifyConfirm = make(chan amqp.Confirmation, 1)
	ch.NotifyClose(client.notifyChanClose)
	ch.NotifyPublish(client.notifyConfirm)
	client.isReady = true
	client.m.Unlock()

	slog.Info("amqp channel ready", "exchange", Exchange)
	return nil
}

func (client *Client) setReady(ready bool) {
	client.m.Lock()
	client.isReady = ready
	client.m.Unlock()
}

// Push publishes body as JSON under routingKey and blocks until the broker
// confirms it, ctx ends, or the client is closed.
func (client *Client) Push(ctx context.Context, routingKey string, body []byte) error {
	for {
		client.m.Lock()
		if !client.isReady {
			client.m.Unlock()
			return errNotConnected
		}
		ch, confirms := client.channel, client.notifyConfirm
		client.m.Unlock()

		err := ch.PublishWithContext(ctx, Exchange, routingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		})
		if err == nil {
			select {
			case confirm := <-confirms:
				if confirm.Ack {
					slog.Debug("amqp push confirmed", "deliveryTag", confirm.DeliveryTag)
					return nil
				}
			case <-ctx.Done():
				return ctx.Err()
			case <-client.done:
				return errShutdown
			}
		}

		slog.Warn("amqp push failed, retrying", "routingKey", routingKey, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-client.done:
			return errShutdown
		case <-time.After(resendDelay):
		}
	}
}

// Done is closed once Close has been called.
func (client *Client) Done() <-chan struct{} {
	return client.done
}

// Close stops reconnecting and shuts the channel and connection down.
func (client *Client) Close() error {
	client.closeOnce.Do(func() { close(client.done) })

	client.m.Lock()
	defer client.m.Unlock()

	if !client.isReady {
		return errAlreadyClosed
	}
	client.isReady = false
	if err := client.channel.Close(); err != nil {
		return err
	}
	return client.connection.Close()
}

func declareTracking(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		Exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return err
	}

	q, err := ch.QueueDeclare(
		DeploymentsQueue, // name
		true,             // durable
		false,            // delete when unused
		false,            // exclusive
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		return err
	}

	return ch.QueueBind(q.Name, "deployments.#", Exchange, false, nil)
}
