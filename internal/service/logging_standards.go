package service

// Logging Standards for SpamFightBot
//
// This file defines standard field names and message patterns
// to keep moderation logs auditable and consistent.

// Standard Field Names
// Use these exact field names for consistency across all logging calls
const (
	// Core identifiers
	LogFieldChatID    = "chat_id"
	LogFieldChatTitle = "chat_title"
	LogFieldUserID    = "user_id"
	LogFieldUserName  = "user_name"
	LogFieldMessageID = "message_id"
	LogFieldGroupID   = "group_id"
	LogFieldFrontID   = "front_id"
	LogFieldInviterID = "inviter_id"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldMethod    = "method"
	LogFieldCommand   = "command"
	LogFieldRoute     = "route"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	// HTTP
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"
	LogFieldURL        = "url"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"

	// Error and debugging
	LogFieldErrorCode = "error_code"
	LogFieldAttempt   = "attempt"
)

// Log Level Usage Guidelines
//
// DEBUG: raw command text, member statuses, benign races such as a
// message that was already deleted.
//
// INFO: joins, removals, pairings and the bot leaving a chat. These
// lines form the moderation audit trail.
//
// WARN: operator attention needed but the bot carries on, e.g. missing
// rights to read a front's member list, or a transient network failure.
// WARN and above are mailed when error mail is enabled.
//
// ERROR: a chat was found broken and left, retries were exhausted, or the
// store failed.

// Standard Log Message Patterns
//
// Self-removal:        "Leaving <title> (<id>)"
// Moderation outcome:  "Removed <name>" / "<name> joined"
// Failed operations:   "Failed to [operation]"
