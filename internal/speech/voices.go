package speech

// Gender tags a catalog voice.
type Gender string

const (
	Male    Gender = "Male"
	Female  Gender = "Female"
	Neutral Gender = "Neutral"
)

type Voice struct {
	Value  string `json:"value"`
	Label  string `json:"label"`
	Gender Gender `json:"gender"`
}

const DefaultInstruction = "Speak clearly and naturally."

var catalog = []Voice{
	{Value: "Puck", Label: "Puck", Gender: Male},
	{Value: "Charon", Label: "Charon", Gender: Male},
	{Value: "Kore", Label: "Kore", Gender: Female},
	{Value: "Fenrir", Label: "Fenrir", Gender: Male},
	{Value: "Achernar", Label: "Achernar", Gender: Female},
}

// Voices returns a copy of the catalog in display order.
func Voices() []Voice {
	return append([]Voice(nil), catalog...)
}

func LookupVoice(id string) (Voice, bool) {
	for _, v := range catalog {
		if v.Value == id {
			return v, true
		}
	}
	return Voice{}, false
}

func DefaultVoice() string {
	return catalog[0].Value
}

// ResolveVoice returns id when the catalog knows it, otherwise the first catalog voice.
func ResolveVoice(id string) string {
	if _, ok := LookupVoice(id); ok {
		return id
	}
	return DefaultVoice()
}

// DefaultSpeakers is the speaker pair new sessions start with.
func DefaultSpeakers() []Speaker {
	return []Speaker{
		{Name: "A", Voice: catalog[0].Value},
		{Name: "B", Voice: catalog[2].Value},
	}
}
