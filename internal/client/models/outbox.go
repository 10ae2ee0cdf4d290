package models

import "time"

// OutboxPayload is a locally created story submission awaiting upload.
//
// The photo is kept in the lightest durable form available at capture time:
// either an inline data URL (PhotoDataURL) or the content address of a blob
// (PhotoBlob). Conversion to a multipart upload happens at submit time.
type OutboxPayload struct {
	ClientRef    string    `json:"clientRef"`
	Description  string    `json:"description"`
	PhotoDataURL string    `json:"photoDataUrl,omitempty"`
	PhotoBlob    string    `json:"photoBlob,omitempty"`
	Lat          *float64  `json:"lat,omitempty"`
	Lon          *float64  `json:"lon,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// OutboxEntry is a stored payload together with its store-assigned key and
// retry bookkeeping.
type OutboxEntry struct {
	Key           int64
	Payload       OutboxPayload
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	// DeliveredAt is set when the server accepted the entry but the row
	// could not be removed at the time.
	DeliveredAt time.Time
}

// Delivered reports whether the server already accepted the entry.
func (e OutboxEntry) Delivered() bool {
	return !e.DeliveredAt.IsZero()
}

// Due reports whether the entry may be attempted at now.
func (e OutboxEntry) Due(now time.Time) bool {
	return e.NextAttemptAt.IsZero() || !e.NextAttemptAt.After(now)
}

// NewStory is a submission request coming from the user.
type NewStory struct {
	Description string
	Photo       []byte
	PhotoType   string
	Lat         *float64
	Lon         *float64
}
