package audio

import (
	"fmt"
)

// Encoding identifies how samples are laid out in a frame payload.
type Encoding uint8

const (
	EncodingMulaw Encoding = iota + 1 // 8-bit logarithmic telephony encoding
	EncodingPCM16                     // 16-bit signed little-endian linear PCM
)

func (e Encoding) String() string {
	switch e {
	case EncodingMulaw:
		return "mulaw"
	case EncodingPCM16:
		return "pcm16"
	default:
		return "unknown"
	}
}

// bytesPerSample returns the payload width of one sample, or 0 if unknown.
func (e Encoding) bytesPerSample() int {
	switch e {
	case EncodingMulaw:
		return 1
	case EncodingPCM16:
		return PCM16ByteSize
	default:
		return 0
	}
}

// Format is the tag carried by every frame.
type Format struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
}

// Well-known formats for the two legs.
var (
	FormatTelephony = Format{Encoding: EncodingMulaw, SampleRate: TelephonySampleRate, Channels: 1}
	FormatRealtime  = Format{Encoding: EncodingPCM16, SampleRate: RealtimeSampleRate, Channels: 1}

	// formatLinear8k is the intermediate between decode and upsample.
	formatLinear8k = Format{Encoding: EncodingPCM16, SampleRate: TelephonySampleRate, Channels: 1}
)

func (f Format) String() string {
	return fmt.Sprintf("%s/%d/%d", f.Encoding, f.SampleRate, f.Channels)
}

// Frame is an immutable slice of audio. Conversions always return a new Frame.
type Frame struct {
	format Format
	data   []byte
}

// NewFrame copies payload into a frame tagged with format.
func NewFrame(format Format, payload []byte) Frame {
	data := make([]byte, len(payload))
	copy(data, payload)
	return Frame{format: format, data: data}
}

// frameOwning wraps a freshly allocated payload without copying it.
func frameOwning(format Format, data []byte) Frame {
	return Frame{format: format, data: data}
}

// Format returns the frame's format tag.
func (f Frame) Format() Format { return f.format }

// Bytes returns a copy of the payload.
func (f Frame) Bytes() []byte {
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out
}

// Len returns the payload size in bytes.
func (f Frame) Len() int { return len(f.data) }

// Samples returns the number of samples in the frame.
func (f Frame) Samples() int {
	w := f.format.Encoding.bytesPerSample()
	if w == 0 {
		return 0
	}
	return len(f.data) / w
}

// IsEmpty reports whether the frame carries no audio.
func (f Frame) IsEmpty() bool { return len(f.data) == 0 }
