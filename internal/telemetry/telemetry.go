package telemetry

import (
	"encoding/json"
	"log"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Pose is the robot's tilt plus the derived body-frame rates, published
// once per decimation window.
type Pose struct {
	Roll      float64    `json:"roll"`
	Pitch     float64    `json:"pitch"`
	BodyRates [3]float64 `json:"body_rates"`
	BodyAccel [3]float64 `json:"body_accel"`
}

// Torques are the per-axis demands going into the mixer. Gated reports
// whether the safety envelope suppressed fresh pitch output.
type Torques struct {
	Tx    float64 `json:"tx"`
	Ty    float64 `json:"ty"`
	Tz    float64 `json:"tz"`
	Gated bool    `json:"gated"`
}

// Duties is the mixed motor command.
type Duties struct {
	Duty [3]float64 `json:"duty"`
	Kill bool       `json:"kill"`
}

// Timing is the end-of-run scheduler report.
type Timing struct {
	Cycles       int     `json:"cycles"`
	MeanErrMS    float64 `json:"mean_err_ms"`
	StdDevErrMS  float64 `json:"stddev_err_ms"`
	SleepPercent float64 `json:"sleep_percent"`
}

type sample struct {
	topic   string
	payload any
}

// Publisher forwards control-loop samples to the MQTT broker without
// ever blocking the tick: samples go through a small buffered channel
// and are dropped when the broker can't keep up.
type Publisher struct {
	client  mqtt.Client
	ch      chan sample
	done    chan struct{}
	dropped atomic.Uint64
}

// Connect dials the broker and starts the publish worker.
func Connect(broker, clientID string) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	log.Printf("telemetry: connected to MQTT broker at %s", broker)

	p := &Publisher{
		client: client,
		ch:     make(chan sample, 64),
		done:   make(chan struct{}),
	}
	go p.worker()
	return p, nil
}

// Publish queues v for delivery on topic. Never blocks; returns false
// if the sample was dropped.
func (p *Publisher) Publish(topic string, v any) bool {
	select {
	case p.ch <- sample{topic: topic, payload: v}:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Dropped returns how many samples were discarded because the queue was
// full.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *Publisher) worker() {
	defer close(p.done)
	for s := range p.ch {
		payload, err := json.Marshal(s.payload)
		if err != nil {
			log.Printf("telemetry: marshal error (%s): %v", s.topic, err)
			continue
		}
		token := p.client.Publish(s.topic, 0, true, payload)
		if token.Wait() && token.Error() != nil {
			log.Printf("telemetry: publish error (%s): %v", s.topic, token.Error())
		}
	}
}

// Close drains the queue and disconnects from the broker.
func (p *Publisher) Close() {
	close(p.ch)
	<-p.done
	if n := p.Dropped(); n > 0 {
		log.Printf("telemetry: dropped %d samples", n)
	}
	p.client.Disconnect(250)
}
