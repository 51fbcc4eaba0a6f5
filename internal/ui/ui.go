// Package ui defines the rendering surface the driver talks to. Any sink
// honoring these operations works; the console implementation targets an
// ANSI terminal, and Silent discards everything (subagent headless mode).
package ui

// UI is the sink for driver output plus blocking user input.
type UI interface {
	PrintInfo(text string)
	PrintSuccess(text string)
	PrintWarning(text string)
	PrintError(text string)

	// PrintAgentMessage renders a final agent reply attributed to a role.
	PrintAgentMessage(text, agentName string)
	// PrintThinking renders intermediate reasoning in a dimmer style.
	PrintThinking(text string)
	// PrintCode renders a code block. May be slow; the driver offloads it.
	PrintCode(text, filename string)

	PrintSubagentSpawned(id, label string)
	PrintSubagentCompleted(id, label string)
	PrintSubagentFailed(id, label, errText string)

	StartThinking(label string)
	StopThinking()

	// GetUserInput blocks until the user submits a line.
	GetUserInput(prompt string) (string, error)
}

// Silent is a UI that discards all output. Used by headless subagent drivers.
type Silent struct{}

func (Silent) PrintInfo(string)                      {}
func (Silent) PrintSuccess(string)                   {}
func (Silent) PrintWarning(string)                   {}
func (Silent) PrintError(string)                     {}
func (Silent) PrintAgentMessage(string, string)      {}
func (Silent) PrintThinking(string)                  {}
func (Silent) PrintCode(string, string)              {}
func (Silent) PrintSubagentSpawned(string, string)   {}
func (Silent) PrintSubagentCompleted(string, string) {}
func (Silent) PrintSubagentFailed(string, string, string) {
}
func (Silent) StartThinking(string) {}
func (Silent) StopThinking()       {}
func (Silent) GetUserInput(string) (string, error) {
	return "", ErrNoInput
}
