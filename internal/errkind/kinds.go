package errkind

// Kind classifies a generation failure.
type Kind string

const (
	Unknown Kind = "unknown"

	// Validation covers empty script text, caught before any network call.
	Validation Kind = "validation"
	// Configuration covers missing voices and wrong speaker counts.
	Configuration Kind = "configuration"
	// Response means the collaborator answered without usable audio.
	Response Kind = "response"
	// Decode means the audio payload could not be interpreted.
	Decode Kind = "decode"
	// Transport covers credential, network and collaborator-level failures.
	Transport Kind = "transport"
)

// FallbackMessage is shown when a failure carries no message of its own.
const FallbackMessage = "Failed to generate speech."
