package main

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// doneToken is an already-completed mqtt.Token.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type recordingPublisher struct {
	mu    sync.Mutex
	calls []publishCall
}

func (p *recordingPublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, publishCall{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return doneToken{}
}

func TestMQTTSink_PublishesRotation(t *testing.T) {
	pub := &recordingPublisher{}
	cfg := MQTTConfig{Topic: "hdaps/rotation", QoS: 1, Retained: true}
	sink := newMQTTSink(pub, cfg, discardLogger())

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	if err := sink.Draw(Frame{AngleX: 8, AngleY: -4, At: at}); err != nil {
		t.Fatalf("Draw: %v", err)
	}

	if len(pub.calls) != 1 {
		t.Fatalf("publish calls = %d, want 1", len(pub.calls))
	}
	c := pub.calls[0]
	if c.topic != "hdaps/rotation" || c.qos != 1 || !c.retained {
		t.Fatalf("publish = %+v", c)
	}

	var msg rotationMessage
	if err := json.Unmarshal(c.payload, &msg); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg.AngleX != 8 || msg.AngleY != -4 {
		t.Fatalf("payload angles = (%d,%d), want (8,-4)", msg.AngleX, msg.AngleY)
	}
	if !msg.Ts.Equal(at) || msg.Ts.Location() != time.UTC {
		t.Fatalf("payload ts = %v, want %v in UTC", msg.Ts, at)
	}

	var raw map[string]any
	_ = json.Unmarshal(c.payload, &raw)
	for _, k := range []string{"angle_x", "angle_y", "ts"} {
		if _, ok := raw[k]; !ok {
			t.Fatalf("payload missing %q: %s", k, c.payload)
		}
	}
}

func TestMQTTSink_ZeroTimeUsesNow(t *testing.T) {
	pub := &recordingPublisher{}
	sink := newMQTTSink(pub, MQTTConfig{Topic: "t"}, discardLogger())

	before := time.Now().Add(-time.Second)
	if err := sink.Draw(Frame{}); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	var msg rotationMessage
	if err := json.Unmarshal(pub.calls[0].payload, &msg); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg.Ts.Before(before) {
		t.Fatalf("ts = %v, want around now", msg.Ts)
	}
	if sink.Name() != "mqtt" {
		t.Fatalf("Name = %q", sink.Name())
	}
}
