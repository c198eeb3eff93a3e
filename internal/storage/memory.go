package storage

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/dmitrijs2005/docbroker/internal/common"
)

// MemoryClient is an in-process, versioned document store. It backs
// DSN-less broker runs and doubles as the scenario test backend: PutFile
// failures can be armed per document to simulate a broken storage server.
type MemoryClient struct {
	mu   sync.Mutex
	docs map[string]*memoryDoc
}

type memoryDoc struct {
	content  []byte
	version  int64
	failures int // remaining armed PutFile failures; -1 means unlimited
	failCode int
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{docs: make(map[string]*memoryDoc)}
}

// Seed stores initial content for docKey, starting a fresh version line.
func (c *MemoryClient) Seed(docKey string, content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc := c.doc(docKey)
	doc.content = append([]byte(nil), content...)
	doc.version = 1
}

// SetPutFailures arms the next n PutFile attempts for docKey to fail with
// statusCode. n < 0 keeps failing indefinitely. statusCode 0 defaults to
// 500 Internal Server Error.
func (c *MemoryClient) SetPutFailures(docKey string, n int, statusCode int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}
	doc := c.doc(docKey)
	doc.failures = n
	doc.failCode = statusCode
}

// Content returns a copy of the currently stored bytes for docKey.
func (c *MemoryClient) Content(docKey string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[docKey]
	if !ok {
		return nil
	}
	return append([]byte(nil), doc.content...)
}

// doc returns the entry for docKey, creating an empty one if needed.
// Caller must hold c.mu.
func (c *MemoryClient) doc(docKey string) *memoryDoc {
	doc, ok := c.docs[docKey]
	if !ok {
		doc = &memoryDoc{}
		c.docs[docKey] = doc
	}
	return doc
}

func (c *MemoryClient) GetFile(ctx context.Context, docKey string) (*FileInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[docKey]
	if !ok || doc.version == 0 {
		return nil, fmt.Errorf("get %q: %w", docKey, common.ErrorNotFound)
	}
	return &FileInfo{
		Content: append([]byte(nil), doc.content...),
		Version: fmt.Sprintf("%d", doc.version),
	}, nil
}

func (c *MemoryClient) PutFile(ctx context.Context, docKey string, content []byte, opts PutOptions) (*PutResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, ok := c.docs[docKey]
	if !ok || doc.version == 0 {
		return nil, fmt.Errorf("put %q: %w", docKey, common.ErrorNotFound)
	}

	if doc.failures != 0 {
		if doc.failures > 0 {
			doc.failures--
		}
		return &PutResult{Status: PutTransientFailure, StatusCode: doc.failCode}, nil
	}

	if !opts.Force && opts.BaseVersion != fmt.Sprintf("%d", doc.version) {
		return &PutResult{Status: PutConflict, StatusCode: http.StatusConflict}, nil
	}

	doc.content = append([]byte(nil), content...)
	doc.version++
	return &PutResult{Status: PutAccepted, Version: fmt.Sprintf("%d", doc.version)}, nil
}
