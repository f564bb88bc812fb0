package storage

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process ObjectStore for tests and local development.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte // "bucket/path" -> bytes
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Put(bucket, path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+path] = data
}

func (m *Memory) Get(_ context.Context, bucket, path string) (io.ReadCloser, ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[bucket+"/"+path]
	if !ok {
		return nil, ObjectInfo{}, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), memInfo(path, data), nil
}

func (m *Memory) Stat(_ context.Context, bucket, path string) (ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[bucket+"/"+path]
	if !ok {
		return ObjectInfo{}, ErrNotFound
	}
	return memInfo(path, data), nil
}

func (m *Memory) List(_ context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var infos []ObjectInfo
	for key, data := range m.objects {
		b, path, _ := strings.Cut(key, "/")
		if b != bucket || !strings.HasPrefix(path, prefix) {
			continue
		}
		infos = append(infos, memInfo(path, data))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func memInfo(path string, data []byte) ObjectInfo {
	sum := sha1.Sum(data)
	return ObjectInfo{Name: path, Size: int64(len(data)), ETag: hex.EncodeToString(sum[:])}
}
