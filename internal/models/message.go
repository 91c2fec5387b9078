package models

// Message roles shared by the transcript store and the LLM wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ValidPersistedRole reports whether a role may be written to the
// transcript. Tool messages are part of the in-flight provider exchange and
// are never persisted.
func ValidPersistedRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}
