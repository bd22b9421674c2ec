package model

// HealthStatus represents the health state of a table process
type HealthStatus struct {
	Table     string
	Status    TableStatus
	Timestamp int64
	Metrics   HealthMetrics
}

// TableStatus defines the operational status of a table
type TableStatus string

const (
	TableStatusHealthy   TableStatus = "healthy"
	TableStatusDegraded  TableStatus = "degraded"
	TableStatusUnhealthy TableStatus = "unhealthy"
)

// HealthMetrics contains the figures the health checks derive their status from
type HealthMetrics struct {
	DiskUsage          float64
	PendingCompactions int
	OldestInflightAge  float64 // seconds, 0 when nothing is inflight
	TimelineInstants   int
}
