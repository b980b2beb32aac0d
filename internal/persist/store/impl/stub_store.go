package impl

import (
	"context"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"
)

const stubPlaceholderURL = "https://placehold.co/400x200/f0f0f0/999?text=Label+Uploaded"

// StubStore keeps objects in memory and hands out placeholder URLs. Used when
// no bucket is configured.
type StubStore struct {
	mutex   sync.Mutex
	objects map[string][]byte
}

func MakeStubStore() *StubStore {
	return &StubStore{objects: make(map[string][]byte)}
}

func (s *StubStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mutex.Lock()
	s.objects[key] = append([]byte(nil), data...)
	s.mutex.Unlock()
	log.Info().Str("key", key).Int("bytes", len(data)).Msg("[STUB] label upload")
	return stubPlaceholderURL + "&key=" + url.QueryEscape(key), nil
}

func (s *StubStore) Object(key string) ([]byte, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

func (s *StubStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.objects)
}
