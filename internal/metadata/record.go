// Package metadata models processing-tool runs and serializes their
// history to an XML metadata document.
package metadata

// Parameter is one named input to a run.
type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Output is one named artifact produced by a run.
type Output struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Message is a leveled diagnostic note. Level is free-form; conventional
// values are provided as constants.
type Message struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Conventional message levels.
const (
	LevelInfo    = "Info"
	LevelWarning = "Warning"
	LevelError   = "Error"
)
