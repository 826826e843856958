// Package audio converts between the telephony and realtime audio representations
package audio

// Audio format constants
const (
	// Telephony leg: G.711 μ-law, 8 kHz mono, one byte per sample
	TelephonySampleRate = 8000

	// Realtime leg: signed 16-bit little-endian PCM, 16 kHz mono
	RealtimeSampleRate = 16000

	// PCM16 byte size per sample
	PCM16ByteSize = 2

	// μ-law companding parameters (ITU-T G.711)
	mulawBias = 0x84
	mulawClip = 32635

	// Typical telephony frame: 20 ms at 8 kHz
	TelephonyFrameSamples = 160
)
