package ipc

import "sitesync/internal/api"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and sync engine status.
type StatusResponse = api.DaemonStatus

// QueueItem mirrors the HTTP API queue DTO for IPC callers.
type QueueItem = api.QueueItem

// SubmitRequest asks the daemon to prepare and submit a photo on disk. When
// Destination is empty it is derived from Project and the file name.
type SubmitRequest struct {
	Path        string `json:"path"`
	Destination string `json:"destination"`
	Project     string `json:"project"`
}

// SubmitResponse reports the accepted capture.
type SubmitResponse = api.SubmitResponse

// SyncRequest triggers a manual drain.
type SyncRequest struct {
	// Wait blocks until the drain finishes; otherwise it is only scheduled.
	Wait bool `json:"wait"`
}

// SyncResponse reports the drain outcome when Wait was set.
type SyncResponse struct {
	Scheduled bool            `json:"scheduled"`
	Result    api.DrainResult `json:"result"`
	State     string          `json:"state"`
}

// QueueListRequest filters queue listing by state.
type QueueListRequest struct {
	State string `json:"state"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueRequeueRequest moves dead-lettered items back to pending. All ignores ID.
type QueueRequeueRequest struct {
	ID  string `json:"id"`
	All bool   `json:"all"`
}

// QueueRequeueResponse reports how many items were requeued.
type QueueRequeueResponse struct {
	Updated int64 `json:"updated"`
}

// DatabaseHealthRequest fetches database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database diagnostics.
type DatabaseHealthResponse = api.QueueHealth

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the notification result.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
