package audio

import (
	"encoding/binary"
	"fmt"
)

// Upsample doubles the sample rate of a linear frame by emitting every sample twice.
// Sample-and-hold needs no lookahead, so it adds no latency at 20 ms frame sizes.
func Upsample(f Frame) (Frame, error) {
	if f.format.Encoding != EncodingPCM16 {
		return Frame{}, fmt.Errorf("upsample: %w: %s", ErrUnsupportedFormat, f.format)
	}
	if len(f.data)%PCM16ByteSize != 0 {
		return Frame{}, fmt.Errorf("upsample: %w: %d bytes", ErrOddLength, len(f.data))
	}

	out := make([]byte, len(f.data)*2)
	for i := 0; i < len(f.data); i += PCM16ByteSize {
		j := i * 2
		out[j], out[j+1] = f.data[i], f.data[i+1]
		out[j+2], out[j+3] = f.data[i], f.data[i+1]
	}

	format := f.format
	format.SampleRate *= 2
	return frameOwning(format, out), nil
}

// Downsample halves the sample rate by keeping every other sample, without filtering.
func Downsample(f Frame) (Frame, error) {
	if f.format.Encoding != EncodingPCM16 {
		return Frame{}, fmt.Errorf("downsample: %w: %s", ErrUnsupportedFormat, f.format)
	}
	if len(f.data)%PCM16ByteSize != 0 {
		return Frame{}, fmt.Errorf("downsample: %w: %d bytes", ErrOddLength, len(f.data))
	}

	n := len(f.data) / PCM16ByteSize
	out := make([]byte, ((n+1)/2)*PCM16ByteSize)
	for i, j := 0, 0; i < n; i += 2 {
		off := i * PCM16ByteSize
		out[j], out[j+1] = f.data[off], f.data[off+1]
		j += PCM16ByteSize
	}

	format := f.format
	format.SampleRate /= 2
	return frameOwning(format, out), nil
}

// PCM16Samples decodes a linear frame into samples.
func PCM16Samples(f Frame) []int16 {
	n := len(f.data) / PCM16ByteSize
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(f.data[i*PCM16ByteSize:]))
	}
	return out
}

// PCM16Frame builds a linear frame from samples.
func PCM16Frame(sampleRate int, samples []int16) Frame {
	out := make([]byte, len(samples)*PCM16ByteSize)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*PCM16ByteSize:], uint16(s))
	}
	return frameOwning(Format{Encoding: EncodingPCM16, SampleRate: sampleRate, Channels: 1}, out)
}
