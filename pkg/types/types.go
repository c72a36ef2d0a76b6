package types

import (
	"time"

	"github.com/google/uuid"
)

// DiskSample is a point-in-time measurement of bytes used across a path set.
// Samples are immutable once produced; consumers copy them by value.
type DiskSample struct {
	Timestamp  time.Time
	BytesUsed  int64
	Paths      []string
	Exclusions []string
}

// PIDEventType is the kind of change observed on the PID file.
type PIDEventType string

const (
	PIDCreated  PIDEventType = "created"
	PIDModified PIDEventType = "modified"
	PIDDeleted  PIDEventType = "deleted"
)

// PIDFileEvent records one observed transition of the PID file.
// PID is 0 when the file content was not a usable pid (deleted events,
// unparseable content).
type PIDFileEvent struct {
	Type      PIDEventType
	PID       int32
	Timestamp time.Time
}

// ProcessStatus classifies a process found in the process table.
type ProcessStatus string

const (
	ProcessRunning  ProcessStatus = "running"
	ProcessSleeping ProcessStatus = "sleeping"
	ProcessStopped  ProcessStatus = "stopped"
	ProcessZombie   ProcessStatus = "zombie"
	ProcessUnknown  ProcessStatus = "unknown"
)

// ProcessInfo describes a process in the OS process table. PID is always >= 1.
type ProcessInfo struct {
	PID         int32
	Name        string
	Cmdline     string
	StartTime   time.Time
	Status      ProcessStatus
	CPUPercent  float64
	MemoryBytes uint64
	Username    string
	Cwd         string
}

// ProgressMetrics is the estimator's view of the transfer at one instant.
type ProgressMetrics struct {
	Percent          float64
	BytesTransferred int64
	TotalBytes       int64
	RateBps          float64
	ETCSeconds       float64
	Confidence       float64
}

// Complete reports whether the transfer has moved all known bytes.
func (m ProgressMetrics) Complete() bool {
	return m.TotalBytes > 0 && m.BytesTransferred >= m.TotalBytes
}

// Priority orders messages in the dispatch queue and maps onto provider
// semantics (e.g. Telegram silent notifications for low priority).
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// Message is one logical notification. Immutable after construction; the
// dispatcher and every provider receive it by value.
type Message struct {
	Title    string
	Content  string
	Priority Priority
	Tags     []string
	Metadata map[string]string
}

// NewMessage builds a Message, copying the metadata map so later mutation by
// the caller cannot leak into an already-enqueued message.
func NewMessage(title, content string, priority Priority, tags []string, metadata map[string]string) Message {
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return Message{
		Title:    title,
		Content:  content,
		Priority: priority,
		Tags:     append([]string(nil), tags...),
		Metadata: md,
	}
}

// QueuedMessage is a Message bound to a delivery attempt: a target provider
// set, a queue priority, and a delivery id used for tracking.
type QueuedMessage struct {
	Message    Message
	Providers  []string
	DeliveryID string
	EnqueuedAt time.Time
}

// NewQueuedMessage assigns a fresh delivery id.
func NewQueuedMessage(msg Message, providers []string) QueuedMessage {
	return QueuedMessage{
		Message:    msg,
		Providers:  append([]string(nil), providers...),
		DeliveryID: uuid.NewString(),
		EnqueuedAt: time.Now(),
	}
}

// ProviderResult is the outcome of delivering one message to one provider.
type ProviderResult struct {
	Provider string
	Success  bool
	Attempts int
	Err      string
}

// DeliveryOutcome aggregates per-provider results.
type DeliveryOutcome string

const (
	DeliveryPending DeliveryOutcome = "pending"
	DeliverySuccess DeliveryOutcome = "success"
	DeliveryPartial DeliveryOutcome = "partial"
	DeliveryFailed  DeliveryOutcome = "failed"
)

// DeliveryStatus tracks one delivery id across its provider set.
type DeliveryStatus struct {
	DeliveryID string
	Message    Message
	Providers  []string
	Results    []ProviderResult
	Outcome    DeliveryOutcome
	UpdatedAt  time.Time
}

// Aggregate recomputes the overall outcome from the per-provider results.
// Pending until every requested provider has reported.
func (d *DeliveryStatus) Aggregate() DeliveryOutcome {
	if len(d.Results) < len(d.Providers) {
		return DeliveryPending
	}
	succeeded := 0
	for _, r := range d.Results {
		if r.Success {
			succeeded++
		}
	}
	switch {
	case succeeded == len(d.Results) && succeeded > 0:
		return DeliverySuccess
	case succeeded > 0:
		return DeliveryPartial
	default:
		return DeliveryFailed
	}
}

// MonitorState names a node in the orchestrator's lifecycle graph.
type MonitorState string

const (
	StateIdle       MonitorState = "IDLE"
	StateDetecting  MonitorState = "DETECTING"
	StateMonitoring MonitorState = "MONITORING"
	StateCompleting MonitorState = "COMPLETING"
	StateError      MonitorState = "ERROR"
	StateRecovering MonitorState = "RECOVERING"
	StateShutdown   MonitorState = "SHUTDOWN"
	StateSuspended  MonitorState = "SUSPENDED"
)

// ErrorCategory classifies a failure for recovery-strategy selection.
type ErrorCategory string

const (
	CategoryPermission ErrorCategory = "permission"
	CategoryTimeout    ErrorCategory = "timeout"
	CategoryResource   ErrorCategory = "resource"
	CategoryNetwork    ErrorCategory = "network"
	CategoryValidation ErrorCategory = "validation"
	CategorySystem     ErrorCategory = "system"
	CategoryUnknown    ErrorCategory = "unknown"
)

// ErrorSeverity ranks how urgently a failure needs operator attention.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// ErrorRecord is a classified, sanitized failure suitable for logs and
// notification payloads.
type ErrorRecord struct {
	ID        string
	Category  ErrorCategory
	Severity  ErrorSeverity
	Message   string
	Context   string
	Timestamp time.Time
}
