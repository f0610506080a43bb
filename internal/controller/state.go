package controller

// State is the assistant's pipeline state. Exactly one State is active at a
// time; the controller is its sole writer, observers read it through
// notifications.
type State string

const (
	// StateIdle means the pipeline has not been started.
	StateIdle State = "idle"
	// StateListeningWake means frames flow to the wake recognizer.
	StateListeningWake State = "listening_wake"
	// StateRecordingCommand means frames flow to the command capture.
	StateRecordingCommand State = "recording_command"
	// StateProcessing means a captured utterance is being transcribed and
	// answered. No consumer receives frames.
	StateProcessing State = "processing"
	// StateSpeaking means the reply is being synthesized and played.
	StateSpeaking State = "speaking"
	// StateError means a fatal fault stopped the pipeline. Only Reset
	// leaves this state.
	StateError State = "error"
)

func (s State) String() string { return string(s) }
