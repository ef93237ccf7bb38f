package consts

// Transcript speakers
const (
	SpeakerSystem = "[System]"
	SpeakerError  = "[Error]"
)

// Units
const Currency = "JPYC"
