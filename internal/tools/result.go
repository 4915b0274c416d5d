package tools

import "github.com/nextlevelbuilder/goclaw-kernel/internal/providers"

// Result is what every tool invocation hands back to the agent loop.
// ForLLM is the only part the model sees; the rest feeds the loop's
// progress reporting and accounting.
type Result struct {
	// ForLLM is fed back to the model as the tool-call result.
	ForLLM string
	// ForUser is a short human-facing note (a saved file path, a one-line
	// status); the loop surfaces it as the tool_progress preview.
	ForUser string
	// Silent suppresses the ForUser preview on the outbound channel.
	Silent bool
	// IsError marks the result as a failure the model should react to.
	IsError bool
	// Err is the underlying cause for IsError results; the loop logs it
	// and it never reaches the model beyond what ForLLM already says.
	Err error

	// Tools that make their own LLM call (read_image, create_image)
	// report it here: the loop folds Usage into the turn's token total
	// and tags its progress events with Provider/Model.
	Usage    *providers.Usage
	Provider string
	Model    string
}

// NewResult wraps plain tool output.
func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

// SilentResult wraps output that should reach the model but produce no
// channel-visible preview.
func SilentResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM, Silent: true}
}

// ErrorResult wraps a failure message for the model.
func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

// WithError attaches the underlying cause to an error result.
func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}
