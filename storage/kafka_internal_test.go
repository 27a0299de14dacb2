package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/Shopify/sarama/mocks"
)

// mapStore keeps values in memory for tests within this package.
type mapStore struct {
	mu     sync.Mutex
	values map[string][]byte
}

func (s *mapStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, found := s.values[key]
	if !found {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *mapStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *mapStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *mapStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *mapStore) Close() error   { return nil }
func (s *mapStore) String() string { return "map store" }

func TestPublisher(t *testing.T) {
	kc := KafkaConfig{}
	if p, err := kc.Connect("host", nil); p != nil || err != nil {
		t.Fatalf("expected no publisher without servers, got %v, %v\n", p, err)
	}
	topic := kc.topic("my host:1")
	if topic != "acseg-activity-my-host-1" {
		t.Errorf("bad default topic %q\n", topic)
	}

	producer := mocks.NewAsyncProducer(t, nil)
	var got map[string]interface{}
	producer.ExpectInputWithCheckerFunctionAndSucceed(func(value []byte) error {
		return json.Unmarshal(value, &got)
	})
	producer.ExpectInputAndFail(errors.New("broker down"))

	failed := &mapStore{values: make(map[string][]byte)}
	p := NewPublisher(producer, topic, failed)
	if err := p.LogActivity(map[string]interface{}{"run_id": "abc", "seeds": 3}); err != nil {
		t.Fatal(err)
	}
	if err := p.LogActivity(map[string]interface{}{"run_id": "def"}); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("couldn't close publisher: %v\n", err)
	}
	if got["run_id"] != "abc" || got["seeds"] != float64(3) {
		t.Errorf("bad published activity %v\n", got)
	}
	keys, err := failed.Keys(context.Background(), FailedPrefix+topic+"/")
	if err != nil || len(keys) != 1 {
		t.Fatalf("expected one stored failed message, got %v (%v)\n", keys, err)
	}
	if v, _ := failed.Get(context.Background(), keys[0]); !strings.Contains(string(v), "def") {
		t.Errorf("bad stored failed message %q\n", v)
	}

	var nilPublisher *Publisher
	if err := nilPublisher.LogActivity(map[string]interface{}{"x": 1}); err != nil {
		t.Errorf("nil publisher should ignore activity: %v\n", err)
	}
	if err := nilPublisher.Close(); err != nil {
		t.Errorf("nil publisher close: %v\n", err)
	}
}
