// Package errs collects the typed errors that cross component boundaries,
// so callers can use errors.As instead of matching on string content.
package errs

import "fmt"

// LLMError wraps a failure from an LLMProvider. The orchestrator never
// panics or aborts on one — it surfaces "Error: <msg>" to the user and
// keeps the poll loop running.
type LLMError struct {
	Provider string
	Err      error
}

func (e *LLMError) Error() string { return fmt.Sprintf("llm(%s): %v", e.Provider, e.Err) }
func (e *LLMError) Unwrap() error { return e.Err }

// ToolError wraps a failure from executing a tool call.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string { return fmt.Sprintf("tool(%s): %v", e.Tool, e.Err) }
func (e *ToolError) Unwrap() error { return e.Err }

// CommunicationError wraps a failure from a channel adapter's receive,
// send, or typing call.
type CommunicationError struct {
	ChannelType string
	Op          string
	Err         error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("communication(%s.%s): %v", e.ChannelType, e.Op, e.Err)
}
func (e *CommunicationError) Unwrap() error { return e.Err }

// AuthorizationDenied is returned when a sender has not completed pairing
// and the message is dropped before reaching the LLM/tool loop.
type AuthorizationDenied struct {
	ChannelType string
	SenderID    string
}

func (e *AuthorizationDenied) Error() string {
	return fmt.Sprintf("sender %s on %s is not authorized", e.SenderID, e.ChannelType)
}

// HookError wraps a panic or error recovered from a hook handler.
type HookError struct {
	Plugin string
	Hook   string
	Err    error
}

func (e *HookError) Error() string { return fmt.Sprintf("hook(%s@%s): %v", e.Plugin, e.Hook, e.Err) }
func (e *HookError) Unwrap() error { return e.Err }

// ConfigurationError wraps a failure loading or validating configuration.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string { return fmt.Sprintf("config(%s): %v", e.Path, e.Err) }
func (e *ConfigurationError) Unwrap() error { return e.Err }

// DependencyError wraps a failure satisfying a plugin dependency or
// capability lookup.
type DependencyError struct {
	Plugin string
	Err    error
}

func (e *DependencyError) Error() string { return fmt.Sprintf("dependency(%s): %v", e.Plugin, e.Err) }
func (e *DependencyError) Unwrap() error { return e.Err }
