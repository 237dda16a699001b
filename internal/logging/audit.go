package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AuditEvent names a security audit record.
type AuditEvent string

const (
	EventToolStart       AuditEvent = "TOOL_EXECUTION_START"
	EventToolSuccess     AuditEvent = "TOOL_EXECUTION_SUCCESS"
	EventToolFailed      AuditEvent = "TOOL_EXECUTION_FAILED"
	EventAuthentication  AuditEvent = "AUTHENTICATION"
	EventAPIError        AuditEvent = "API_ERROR"
	EventConfigChange    AuditEvent = "CONFIGURATION_CHANGE"
	EventValidationBlock AuditEvent = "VALIDATION_BLOCKED"
	EventSchemaChange    AuditEvent = "SCHEMA_CHANGE"
)

// AuditLogger writes the security audit trail. Every parameter map passes
// through Sanitize before it is written.
type AuditLogger struct {
	logger *zap.Logger
}

// NewAuditLogger wraps a zap logger dedicated to audit records.
func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLogger{logger: logger}
}

// Sync flushes buffered records.
func (a *AuditLogger) Sync() {
	_ = a.logger.Sync()
}

// ToolStart records that a tool call passed validation and is about to run.
func (a *AuditLogger) ToolStart(tool string, params map[string]any) {
	a.logger.Info(string(EventToolStart),
		zap.String("tool", tool),
		zap.Any("params", Sanitize(params)))
}

// ToolExecution records the outcome of a tool call.
func (a *AuditLogger) ToolExecution(tool string, params map[string]any, resultSize int, err error) {
	if err != nil {
		a.logger.Warn(string(EventToolFailed),
			zap.String("tool", tool),
			zap.Any("params", Sanitize(params)),
			zap.String("error", SanitizeString(err.Error())))
		return
	}
	a.logger.Info(string(EventToolSuccess),
		zap.String("tool", tool),
		zap.Any("params", Sanitize(params)),
		zap.Int("result_size", resultSize))
}

// Authentication records an attempt to reach the appliance with the
// configured account.
func (a *AuditLogger) Authentication(host, user string, err error) {
	if err != nil {
		a.logger.Warn(string(EventAuthentication),
			zap.String("host", host), zap.String("user", user),
			zap.Bool("success", false), zap.String("error", SanitizeString(err.Error())))
		return
	}
	a.logger.Info(string(EventAuthentication),
		zap.String("host", host), zap.String("user", user), zap.Bool("success", true))
}

// APIError records a failed WAPI call.
func (a *AuditLogger) APIError(endpoint string, status int, err error) {
	msg := ""
	if err != nil {
		msg = SanitizeString(err.Error())
	}
	a.logger.Error(string(EventAPIError),
		zap.String("endpoint", endpoint), zap.Int("status", status), zap.String("error", msg))
}

// ValidationBlocked records input rejected by the validator.
func (a *AuditLogger) ValidationBlocked(tool string, params map[string]any, err error) {
	a.logger.Warn(string(EventValidationBlock),
		zap.String("tool", tool),
		zap.Any("params", Sanitize(params)),
		zap.String("error", err.Error()))
}

// SecurityEvent records a free-form event at the given level.
func (a *AuditLogger) SecurityEvent(event AuditEvent, details map[string]any, level zapcore.Level) {
	if ce := a.logger.Check(level, string(event)); ce != nil {
		ce.Write(zap.Any("details", Sanitize(details)))
	}
}

// ConfigurationChange records a settings or cache change.
func (a *AuditLogger) ConfigurationChange(setting, oldValue, newValue string) {
	a.logger.Info(string(EventConfigChange),
		zap.String("setting", setting),
		zap.String("old", SanitizeString(oldValue)),
		zap.String("new", SanitizeString(newValue)))
}
