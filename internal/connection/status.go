package connection

import (
	"time"

	"github.com/dandantas/kestrel/internal/model"
)

// GlobalStatus aggregates all active connections into one snapshot:
// mode, health, and isConnected follow the most recently updated
// connection; counters are summed; latency is averaged; uptime is the
// youngest connection's age (the least-proven connection sets the bar).
func (m *Manager) GlobalStatus() model.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.conns) == 0 {
		return model.IdleStatus()
	}

	now := time.Now()
	var newest *Connection
	var totalMessages, totalErrors, latencySum, latencyCount int64
	var retries int
	minUptime := time.Duration(-1)

	for _, conn := range m.conns {
		if newest == nil || conn.UpdatedAt.After(newest.UpdatedAt) {
			newest = conn
		}
		totalMessages += conn.MessageCount
		totalErrors += conn.ErrorCount
		if conn.LatencyMs > 0 {
			latencySum += conn.LatencyMs
			latencyCount++
		}
		retries += conn.ConsecutiveFailures
		if up := now.Sub(conn.StartTime); minUptime < 0 || up < minUptime {
			minUptime = up
		}
	}

	// lastJobID wins over raw timestamps when both changed in the same
	// tick; it tracks the latest state-changing event.
	if conn, ok := m.conns[m.lastJobID]; ok {
		newest = conn
	}

	status := newest.snapshot(now)
	status.JobID = ""
	status.RetryCount = retries
	status.Metrics = model.Metrics{
		MessageCount: totalMessages,
		ErrorCount:   totalErrors,
		Uptime:       minUptime,
	}
	if latencyCount > 0 {
		status.Metrics.AvgLatencyMs = latencySum / latencyCount
	}
	return status
}
