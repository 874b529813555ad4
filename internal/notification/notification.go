package notification

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/shopmonkeyus/go-common/logger"
	cnats "github.com/shopmonkeyus/go-common/nats"
	"github.com/shopmonkeyus/procure/internal/util"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	ReconcileCompleted = "reconcile.completed"
	ReconcileAdvisory  = "reconcile.advisory"
	AuditCompleted     = "audit.completed"
	AuditFailed        = "audit.failed"
	RepairCompleted    = "repair.completed"

	// SubjectPrefix is prepended to every event type to form the nats subject.
	SubjectPrefix = "procure.maintenance."
)

// Event is a maintenance event published to the event sink.
type Event struct {
	ID        string    `json:"id" msgpack:"id"`
	Type      string    `json:"type" msgpack:"type"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
	Data      any       `json:"data,omitempty" msgpack:"data,omitempty"`
}

func (e *Event) String() string {
	return util.JSONStringify(e)
}

// Subject returns the subject for an event type.
func Subject(eventType string) string {
	return SubjectPrefix + eventType
}

type conn interface {
	PublishMsg(m *nats.Msg) error
	Flush() error
	Close()
}

// Publisher sends maintenance events to nats. A publisher without a connection discards events.
type Publisher struct {
	logger logger.Logger
	nc     conn
	lock   sync.Mutex
	count  int
}

// New returns a publisher connected to url. If url is empty the publisher is a no-op.
func New(log logger.Logger, url string, credsFile string) (*Publisher, error) {
	log = log.WithPrefix("[notification]")
	if url == "" {
		log.Debug("no events url configured, events will be discarded")
		return &Publisher{logger: log}, nil
	}
	nc, err := connect(log, url, credsFile)
	if err != nil {
		return nil, err
	}
	return &Publisher{logger: log, nc: nc}, nil
}

func connect(log logger.Logger, url string, credsFile string) (*nats.Conn, error) {
	var creds nats.Option
	if credsFile != "" && !util.IsLocalhost(url) {
		creds = nats.UserCredentials(credsFile)
	}
	nc, err := cnats.NewNats(log, "procure", url, creds)
	if err != nil {
		return nil, errors.Wrapf(err, "error creating nats connection to %s", url)
	}
	log.Debug("connected to %s", url)
	return nc, nil
}

// DecodeEvent decodes a message sent by Publish.
func DecodeEvent(msg *nats.Msg) (*Event, error) {
	var event Event
	if err := util.DecodeNatsMsg(msg, &event); err != nil {
		return nil, errors.Wrapf(err, "error decoding event on %s", msg.Subject)
	}
	return &event, nil
}

// Watch calls fn for every maintenance event received until ctx is done.
func Watch(ctx context.Context, log logger.Logger, url string, credsFile string, fn func(event *Event)) error {
	if url == "" {
		return errors.New("events url is required")
	}
	log = log.WithPrefix("[notification]")
	nc, err := connect(log, url, credsFile)
	if err != nil {
		return err
	}
	defer nc.Close()
	sub, err := nc.Subscribe(SubjectPrefix+">", func(msg *nats.Msg) {
		event, err := DecodeEvent(msg)
		if err != nil {
			log.Warn("%s", err)
			return
		}
		fn(event)
	})
	if err != nil {
		return errors.Wrapf(err, "error subscribing to %s>", SubjectPrefix)
	}
	defer sub.Unsubscribe()
	log.Debug("watching %s>", SubjectPrefix)
	<-ctx.Done()
	return nil
}

// Enabled returns true if events are being sent.
func (p *Publisher) Enabled() bool {
	if p == nil {
		return false
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.nc != nil
}

// Published returns the number of events sent.
func (p *Publisher) Published() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.count
}

// Publish sends an event of the given type. Publish on a disabled publisher is a no-op.
func (p *Publisher) Publish(eventType string, data any) error {
	if p == nil {
		return nil
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.nc == nil {
		return nil
	}
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	buf, err := msgpack.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "error encoding %s event", eventType)
	}
	msg := nats.NewMsg(Subject(eventType))
	msg.Data = buf
	msg.Header.Set("content-encoding", "msgpack")
	msg.Header.Set(nats.MsgIdHdr, event.ID)
	if err := p.nc.PublishMsg(msg); err != nil {
		return errors.Wrapf(err, "error publishing %s event", eventType)
	}
	p.count++
	p.logger.Trace("published %s (%s)", msg.Subject, event.ID)
	return nil
}

// Notify publishes and logs any error instead of returning it.
func (p *Publisher) Notify(eventType string, data any) {
	if err := p.Publish(eventType, data); err != nil {
		p.logger.Warn("%s", err)
	}
}

// Close flushes pending events and closes the connection. Events published
// after Close are discarded. It is safe to call more than once.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.nc == nil {
		return nil
	}
	err := p.nc.Flush()
	p.nc.Close()
	p.nc = nil
	return err
}
