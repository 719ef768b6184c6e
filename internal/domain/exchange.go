package domain

type AudioEncoding string

const (
	EncodingLinear16 AudioEncoding = "LINEAR16"
)

type AudioOutConfig struct {
	Encoding         AudioEncoding
	SampleRateHertz  int32
	VolumePercentage int32
}

// DefaultAudioOutConfig is linear PCM, mono, 16-bit, 16 kHz at full volume.
func DefaultAudioOutConfig() AudioOutConfig {
	return AudioOutConfig{
		Encoding:         EncodingLinear16,
		SampleRateHertz:  16000,
		VolumePercentage: 100,
	}
}

// AssistRequest is the single message sent on an Assist stream.
type AssistRequest struct {
	CommandText       string
	LanguageCode      string
	AudioOut          AudioOutConfig
	Device            DeviceIdentity
	ConversationState []byte
	IsNewConversation bool
}

type DialogStateOut struct {
	SupplementalDisplayText string
	ConversationState       []byte
	Transcript              string
}

// AssistResponse is one message of the response stream. Any field may be
// empty.
type AssistResponse struct {
	AudioOut     []byte
	DialogState  *DialogStateOut
	ErrorMessage string
}

// AssistResult is the outcome of one completed exchange.
type AssistResult struct {
	ExchangeID  string
	Audio       []byte
	Chunks      int
	DisplayText string
	// ConversationState is kept for logging only; it is never sent back.
	ConversationState []byte
}
