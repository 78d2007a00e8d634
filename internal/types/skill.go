package types

// SkillRequest is the synchronous request contract between the orchestrator
// and a skill. Intent here is the skill-specific sub-intent derived from the
// message (e.g. "create_task"), not the top-level MessageIntent.
type SkillRequest struct {
	ID      string         `json:"id"`
	UserID  int64          `json:"user_id"`
	Intent  string         `json:"intent"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// SkillResponse is a skill's reply. Recoverable failures are expressed with
// Success=false and Error set; skills do not raise across the boundary.
type SkillResponse struct {
	RequestID string         `json:"request_id"`
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// OKResponse builds a successful response for a request.
func OKResponse(requestID, message string, data map[string]any) SkillResponse {
	return SkillResponse{RequestID: requestID, Success: true, Message: message, Data: data}
}

// ErrorResponse builds a failure response for a request.
func ErrorResponse(requestID, errMsg string) SkillResponse {
	return SkillResponse{
		RequestID: requestID,
		Success:   false,
		Message:   "Sorry, I couldn't complete that.",
		Error:     errMsg,
	}
}

// SkillMetadata describes a skill to the registry.
type SkillMetadata struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Permissions []string        `json:"permissions"`
	Collections []string        `json:"collections"`
	Intents     []MessageIntent `json:"intents"`
}
