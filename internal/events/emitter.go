// internal/events/emitter.go
package events

import (
	"log"
	"math"
	"time"
)

// Sink 事件接收端接口（WebSocket 客户端或广播器实现）
type Sink interface {
	Publish(eventName string, payload interface{})
}

// NopSink 丢弃所有事件，用于无观察者的会话
type NopSink struct{}

func (NopSink) Publish(eventName string, payload interface{}) {}

// LogLevel agent_log 事件的级别
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelSuccess LogLevel = "success"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// Operation file_operation 事件的操作类型
type Operation string

const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpPatch  Operation = "patch"
)

// OpStatus file_operation 事件的状态
type OpStatus string

const (
	StatusStarted   OpStatus = "started"
	StatusCompleted OpStatus = "completed"
	StatusFailed    OpStatus = "failed"
)

// Emitter 按会话路由事件：每个会话持有自己的 Sink，
// 并发会话互不串扰（取代进程级单观察者槽位）
type Emitter struct {
	sessionID string
	sink      Sink
}

// New 创建绑定到指定会话和 Sink 的 Emitter
func New(sessionID string, sink Sink) *Emitter {
	if sink == nil {
		sink = NopSink{}
	}
	return &Emitter{sessionID: sessionID, sink: sink}
}

// SessionID 返回绑定的会话 ID
func (e *Emitter) SessionID() string {
	return e.sessionID
}

// LogPayload agent_log 事件载荷
type LogPayload struct {
	Message   string   `json:"message"`
	Type      LogLevel `json:"type"`
	Timestamp string   `json:"timestamp"`
	SessionID string   `json:"session_id"`
}

// Log 发送 agent_log 事件，同时写入进程日志
func (e *Emitter) Log(message string, level LogLevel) {
	log.Printf("[%s] %s", level, message)
	e.sink.Publish("agent_log", LogPayload{
		Message:   message,
		Type:      level,
		Timestamp: now(),
		SessionID: e.sessionID,
	})
}

// ProgressPayload agent_progress 事件载荷
type ProgressPayload struct {
	Step       string  `json:"step"`
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Message    string  `json:"message"`
	Timestamp  string  `json:"timestamp"`
	SessionID  string  `json:"session_id"`
}

// Progress 发送 agent_progress 事件
func (e *Emitter) Progress(step string, current, total int, message string) {
	pct := Percentage(current, total)
	log.Printf("[PROGRESS] %s: %d/%d (%.2f%%)", step, current, total, pct)
	e.sink.Publish("agent_progress", ProgressPayload{
		Step:       step,
		Current:    current,
		Total:      total,
		Percentage: pct,
		Message:    message,
		Timestamp:  now(),
		SessionID:  e.sessionID,
	})
}

// FileOpPayload file_operation 事件载荷
type FileOpPayload struct {
	Operation Operation `json:"operation"`
	FilePath  string    `json:"file_path"`
	Status    OpStatus  `json:"status"`
	Timestamp string    `json:"timestamp"`
	SessionID string    `json:"session_id"`
}

// FileOp 发送 file_operation 事件
func (e *Emitter) FileOp(op Operation, filePath string, status OpStatus) {
	log.Printf("[FILE] %s %s - %s", op, filePath, status)
	e.sink.Publish("file_operation", FileOpPayload{
		Operation: op,
		FilePath:  filePath,
		Status:    status,
		Timestamp: now(),
		SessionID: e.sessionID,
	})
}

// Complete 发送 agent_complete 事件
func (e *Emitter) Complete(summary string) {
	e.sink.Publish("agent_complete", map[string]interface{}{
		"log":        summary,
		"session_id": e.sessionID,
	})
}

// Error 发送 agent_error 事件
func (e *Emitter) Error(errMsg string) {
	e.sink.Publish("agent_error", map[string]interface{}{
		"error":      errMsg,
		"session_id": e.sessionID,
	})
}

// Changed 发送 project:changed 事件（文件系统外部变更）
func (e *Emitter) Changed(path, changeType string) {
	e.sink.Publish("project:changed", map[string]interface{}{
		"path":       path,
		"type":       changeType,
		"timestamp":  now(),
		"session_id": e.sessionID,
	})
}

// Percentage 计算保留两位小数的进度百分比，total 为 0 时返回 0
func Percentage(current, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(current)/float64(total)*10000) / 100
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
