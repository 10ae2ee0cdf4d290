package models

import (
	"net/http"
	"time"
)

// CachedResponse is a serialized HTTP response stored by the response cache.
type CachedResponse struct {
	CacheName string
	Method    string
	URL       string
	Status    int
	Header    http.Header
	Body      []byte
	StoredAt  time.Time
}
