package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/steward/id"
	"github.com/xraph/steward/throttle"
)

type captureSink struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (s *captureSink) Deliver(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.events = append(s.events, e)

	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.events)
}

type memRecords struct {
	mu      sync.Mutex
	records map[string]throttle.Record
}

func newMemRecords() *memRecords {
	return &memRecords{records: make(map[string]throttle.Record)}
}

func (m *memRecords) GetRecord(_ context.Context, key string) (*throttle.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[key]
	if !ok {
		return nil, nil
	}

	cp := r

	return &cp, nil
}

func (m *memRecords) PutRecord(_ context.Context, r *throttle.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[r.Key] = *r

	return nil
}

func (m *memRecords) PurgeRecords(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, r := range m.records {
		if r.LastSentAt.Before(before) {
			delete(m.records, k)
			n++
		}
	}

	return n, nil
}

func TestDispatchDelivers(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(sink, newMemRecords(), time.Hour, nil)

	sent, err := d.Dispatch(context.Background(), &Event{
		Kind:        KindMemberAdded,
		RecipientID: id.NewUserID(),
		GroupID:     id.NewGroupID(),
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if !sent {
		t.Fatal("expected event to be delivered")
	}
	if sink.count() != 1 {
		t.Fatalf("expected 1 delivery, got %d", sink.count())
	}
}

func TestDispatchThrottlesRepeat(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(sink, newMemRecords(), time.Hour, nil)

	evt := &Event{
		Kind:        KindMemberAdded,
		RecipientID: id.NewUserID(),
		GroupID:     id.NewGroupID(),
	}

	if _, err := d.Dispatch(context.Background(), evt); err != nil {
		t.Fatalf("first dispatch failed: %v", err)
	}

	sent, err := d.Dispatch(context.Background(), evt)
	if err != nil {
		t.Fatalf("second dispatch failed: %v", err)
	}
	if sent {
		t.Error("expected repeat within window to be suppressed")
	}
	if sink.count() != 1 {
		t.Errorf("expected 1 delivery, got %d", sink.count())
	}
}

func TestDispatchAllowsAfterWindow(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(sink, newMemRecords(), time.Hour, nil)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }

	evt := &Event{
		Kind:        KindGroupAddedToNode,
		RecipientID: id.NewUserID(),
		GroupID:     id.NewGroupID(),
		NodeID:      id.NewNodeID(),
	}

	if _, err := d.Dispatch(context.Background(), evt); err != nil {
		t.Fatalf("first dispatch failed: %v", err)
	}

	d.now = func() time.Time { return base.Add(2 * time.Hour) }

	sent, err := d.Dispatch(context.Background(), evt)
	if err != nil {
		t.Fatalf("second dispatch failed: %v", err)
	}
	if !sent {
		t.Error("expected delivery after window elapsed")
	}
	if sink.count() != 2 {
		t.Errorf("expected 2 deliveries, got %d", sink.count())
	}
}

func TestDispatchSeparateRecipients(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(sink, newMemRecords(), time.Hour, nil)

	grp := id.NewGroupID()
	for range 2 {
		evt := &Event{
			Kind:        KindMemberAdded,
			RecipientID: id.NewUserID(),
			GroupID:     grp,
		}
		sent, err := d.Dispatch(context.Background(), evt)
		if err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if !sent {
			t.Error("expected delivery: distinct recipients have distinct keys")
		}
	}
	if sink.count() != 2 {
		t.Errorf("expected 2 deliveries, got %d", sink.count())
	}
}

func TestDispatchZeroWindowDisablesThrottle(t *testing.T) {
	sink := &captureSink{}
	d := NewDispatcher(sink, newMemRecords(), 0, nil)

	evt := &Event{
		Kind:        KindMemberAdded,
		RecipientID: id.NewUserID(),
		GroupID:     id.NewGroupID(),
	}

	for range 3 {
		sent, err := d.Dispatch(context.Background(), evt)
		if err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if !sent {
			t.Fatal("expected delivery with throttling disabled")
		}
	}
	if sink.count() != 3 {
		t.Errorf("expected 3 deliveries, got %d", sink.count())
	}
}

func TestDispatchSinkError(t *testing.T) {
	sinkErr := errors.New("smtp down")
	sink := &captureSink{err: sinkErr}
	records := newMemRecords()
	d := NewDispatcher(sink, records, time.Hour, nil)

	evt := &Event{
		Kind:        KindAccountMerged,
		RecipientID: id.NewUserID(),
		GroupID:     id.NewGroupID(),
	}

	sent, err := d.Dispatch(context.Background(), evt)
	if err == nil {
		t.Fatal("expected error from failing sink")
	}
	if !errors.Is(err, sinkErr) {
		t.Errorf("expected wrapped sink error, got %v", err)
	}
	if sent {
		t.Error("failed delivery should not report sent")
	}

	// A failed delivery must not consume the throttle window.
	if rec, _ := records.GetRecord(context.Background(), evt.ThrottleKey()); rec != nil {
		t.Error("failed delivery should not write a throttle record")
	}
}
