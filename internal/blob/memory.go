package blob

import (
	"context"
	"fmt"
	"io"
	"sync"

	"kvault/pkg/requestcontext"
)

// Memory keeps object bytes in a map. Used when no bucket is configured.
type Memory struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string][]byte
}

func NewMemory(baseURL string) *Memory {
	if baseURL == "" {
		baseURL = "memory://blobs"
	}
	return &Memory{baseURL: baseURL, objects: make(map[string][]byte)}
}

func (m *Memory) Put(ctx context.Context, obj Object) (Ref, error) {
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return Ref{}, fmt.Errorf("read upload: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key("", obj.Name, requestcontext.Now(ctx))
	for n := 1; ; n++ {
		if _, taken := m.objects[key]; !taken {
			break
		}
		key = fmt.Sprintf("%s.%d", Key("", obj.Name, requestcontext.Now(ctx)), n)
	}
	m.objects[key] = data
	return Ref{URL: m.baseURL + "/" + key, ContentID: key}, nil
}

// Get returns a copy of stored bytes.
func (m *Memory) Get(contentID string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[contentID]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}
