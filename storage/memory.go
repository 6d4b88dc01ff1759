package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// MemoryStore is an in-process Store for tests and local development.
// FailPut, when set, is consulted before every Put.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]map[string]memoryObject

	FailPut func(bucket, name string) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]map[string]memoryObject)}
}

func (s *MemoryStore) EnsureBuckets(_ context.Context, buckets ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range buckets {
		if s.objects[b] == nil {
			s.objects[b] = make(map[string]memoryObject)
		}
	}
	return nil
}

func (s *MemoryStore) Put(_ context.Context, bucket, name string, data []byte, contentType string) error {
	if s.FailPut != nil {
		if err := s.FailPut(bucket, name); err != nil {
			return &UploadError{Bucket: bucket, Name: name, Err: err}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects[bucket] == nil {
		s.objects[bucket] = make(map[string]memoryObject)
	}
	if _, exists := s.objects[bucket][name]; exists {
		return &UploadError{Bucket: bucket, Name: name, Err: ErrObjectExists}
	}
	s.objects[bucket][name] = memoryObject{
		data:        bytes.Clone(data),
		contentType: contentType,
		modified:    time.Now(),
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, bucket, name string) (io.ReadCloser, ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[bucket][name]
	if !ok {
		return nil, ObjectInfo{}, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), ObjectInfo{
		Bucket:       bucket,
		Key:          name,
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		LastModified: obj.modified,
	}, nil
}

func (s *MemoryStore) Remove(_ context.Context, bucket, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects[bucket], name)
	return nil
}

func (s *MemoryStore) List(_ context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ObjectInfo
	for key, obj := range s.objects[bucket] {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, ObjectInfo{
			Bucket:       bucket,
			Key:          key,
			Size:         int64(len(obj.data)),
			ContentType:  obj.contentType,
			LastModified: obj.modified,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
