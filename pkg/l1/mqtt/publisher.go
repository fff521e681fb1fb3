package mqtt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/neurolink/pkg/l0/comm"
)

// Defaults.
const (
	DefaultQueueLen       = 16
	DefaultPublishTimeout = 2 * time.Second
)

// Sink publishes payloads, Queue implements it.
type Sink interface {
	PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token
}

// DeviceInfo describes the device whose status is published.
type DeviceInfo struct {
	ID           string
	Transport    string
	Capabilities []byte
}

// Publisher is a comm.StateNotifier publishing every link state change
// as retained status. StateChanged never blocks the control loop: events
// are queued and published from Run, the oldest dropped when full.
type Publisher struct {
	Info    DeviceInfo
	Timeout time.Duration

	queue   *Queue
	sink    Sink
	events  chan *Status
	seq     uint64
	dropped uint64

	lastLock sync.Mutex
	last     *Status
}

// NewPublisher creates a Publisher connecting to the broker URL. The
// broker publishes an offline status as will when the device vanishes.
func NewPublisher(brokerURL string, info DeviceInfo) (*Publisher, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if opts.ClientID == "" {
		opts.SetClientID("neurolink-" + info.ID)
	}
	will, err := EncodeStatus(&Status{Device: info.ID, Transport: info.Transport, State: StateOffline})
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(prefix+info.ID+"/"+StatusTopic, will, 1, true)
	q := NewQueue(opts, prefix)
	p := newPublisher(q, info)
	p.queue = q
	q.OnConnect = p.onConnect
	return p, nil
}

func newPublisher(sink Sink, info DeviceInfo) *Publisher {
	return &Publisher{
		Info:    info,
		Timeout: DefaultPublishTimeout,
		sink:    sink,
		events:  make(chan *Status, DefaultQueueLen),
	}
}

// Dropped counts status events dropped by a full queue.
func (p *Publisher) Dropped() uint64 {
	return atomic.LoadUint64(&p.dropped)
}

// StateChanged implements comm.StateNotifier.
func (p *Publisher) StateChanged(ctx context.Context, state comm.State) {
	st := &Status{
		Device:    p.Info.ID,
		Transport: p.Info.Transport,
		State:     state.String(),
		Online:    true,
		Connected: state.IsConnected(),
		Seq:       atomic.AddUint64(&p.seq, 1),
		Time:      time.Now(),
	}
	for {
		select {
		case p.events <- st:
			return
		default:
		}
		select {
		case <-p.events:
			atomic.AddUint64(&p.dropped, 1)
		default:
		}
	}
}

// Run implements framework.Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	if p.queue != nil {
		if err := p.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		defer p.queue.Close()
	}
	for {
		select {
		case <-ctx.Done():
			p.publish(&Status{
				Device:    p.Info.ID,
				Transport: p.Info.Transport,
				State:     StateOffline,
				Seq:       atomic.AddUint64(&p.seq, 1),
				Time:      time.Now(),
			})
			return nil
		case st := <-p.events:
			p.publish(st)
		}
	}
}

func (p *Publisher) connect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	return backoff.RetryNotify(func() error {
		token := p.queue.Connect()
		token.Wait()
		return token.Error()
	}, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		glog.Warningf("mqtt connect: %v, retry in %s", err, d)
	})
}

// onConnect republishes retained topics, which are lost if the broker
// restarted without persistence.
func (p *Publisher) onConnect(*Queue) {
	if len(p.Info.Capabilities) > 0 {
		p.pub(CapsTopic, p.Info.Capabilities)
	}
	p.lastLock.Lock()
	last := p.last
	p.lastLock.Unlock()
	if last != nil {
		p.publish(last)
	}
}

func (p *Publisher) publish(st *Status) {
	data, err := EncodeStatus(st)
	if err != nil {
		glog.Errorf("encode status: %v", err)
		return
	}
	p.lastLock.Lock()
	p.last = st
	p.lastLock.Unlock()
	if err := p.pub(StatusTopic, data); err != nil {
		glog.Warningf("publish status %s: %v", st.State, err)
	}
}

func (p *Publisher) pub(suffix string, payload []byte) error {
	token := p.sink.PubWith(p.Info.ID+"/"+suffix, payload, 1, true)
	if !token.WaitTimeout(p.Timeout) {
		return errors.New("publish timeout")
	}
	return token.Error()
}
