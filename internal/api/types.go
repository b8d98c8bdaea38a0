package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueItem describes an undelivered capture in a transport-friendly format.
// Payload bytes are never included; Size reports their length.
type QueueItem struct {
	ID            string `json:"id"`
	Destination   string `json:"destination"`
	Size          int64  `json:"size"`
	State         string `json:"state"`
	Attempts      int    `json:"attempts"`
	LastError     string `json:"lastError,omitempty"`
	EnqueuedAt    string `json:"enqueuedAt,omitempty"`
	NextAttemptAt string `json:"nextAttemptAt,omitempty"`
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Skipped      bool `json:"skipped"`
	NothingDue   bool `json:"nothingDue,omitempty"`
	Attempted    int  `json:"attempted"`
	Delivered    int  `json:"delivered"`
	Failed       int  `json:"failed"`
	DeadLettered int  `json:"deadLettered"`
	InFlight     int  `json:"inFlight,omitempty"`
	Remaining    int  `json:"remaining"`
}

// SyncStatus mirrors the sync engine's status view.
type SyncStatus struct {
	Online           bool        `json:"online"`
	State            string      `json:"state"`
	Pending          int         `json:"pending"`
	Dead             int         `json:"dead"`
	OldestEnqueuedAt string      `json:"oldestEnqueuedAt,omitempty"`
	LastSyncAt       string      `json:"lastSyncAt,omitempty"`
	LastError        string      `json:"lastError,omitempty"`
	LastDrain        DrainResult `json:"lastDrain"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running         bool       `json:"running"`
	PID             int        `json:"pid"`
	QueueDBPath     string     `json:"queueDbPath"`
	LockFilePath    string     `json:"lockFilePath"`
	Provider        string     `json:"provider"`
	OnlineSince     string     `json:"onlineSince,omitempty"`
	ProbeError      string     `json:"probeError,omitempty"`
	NetlinkWatching bool       `json:"netlinkWatching"`
	InboxWatching   bool       `json:"inboxWatching"`
	Sync            SyncStatus `json:"sync"`
}

// QueueListResponse wraps a collection of queue items for API responses.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// SubmitResponse reports the outcome of a capture submission. Queued is false
// when the capture was delivered immediately and never stored.
type SubmitResponse struct {
	ID          string `json:"id"`
	Destination string `json:"destination"`
	Queued      bool   `json:"queued"`
}

// RequeueResponse reports whether a dead-lettered item was moved back.
type RequeueResponse struct {
	ID       string `json:"id"`
	Requeued bool   `json:"requeued"`
}

// QueueHealth reports database diagnostics.
type QueueHealth struct {
	DBPath           string `json:"dbPath"`
	DatabaseExists   bool   `json:"databaseExists"`
	DatabaseReadable bool   `json:"databaseReadable"`
	SchemaVersion    int    `json:"schemaVersion"`
	IntegrityCheck   bool   `json:"integrityCheck"`
	TotalItems       int    `json:"totalItems"`
	FreeBytes        uint64 `json:"freeBytes,omitempty"`
	FreeBytesKnown   bool   `json:"freeBytesKnown"`
	Error            string `json:"error,omitempty"`
}
