package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Conversion errors. All of them classify as decode errors for the caller.
var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrOddLength         = errors.New("pcm16 payload has odd length")
)

// DecodeTelephony expands a μ-law frame to linear PCM at the same rate.
func DecodeTelephony(f Frame) (Frame, error) {
	if f.format != FormatTelephony {
		return Frame{}, fmt.Errorf("decode: %w: %s", ErrUnsupportedFormat, f.format)
	}
	out := make([]byte, len(f.data)*PCM16ByteSize)
	for i, b := range f.data {
		binary.LittleEndian.PutUint16(out[i*PCM16ByteSize:], uint16(DecodeMulaw(b)))
	}
	return frameOwning(formatLinear8k, out), nil
}

// EncodeTelephony compresses a linear 8 kHz frame to μ-law.
func EncodeTelephony(f Frame) (Frame, error) {
	if f.format != formatLinear8k {
		return Frame{}, fmt.Errorf("encode: %w: %s", ErrUnsupportedFormat, f.format)
	}
	if len(f.data)%PCM16ByteSize != 0 {
		return Frame{}, fmt.Errorf("encode: %w: %d bytes", ErrOddLength, len(f.data))
	}
	out := make([]byte, len(f.data)/PCM16ByteSize)
	for i := range out {
		out[i] = EncodeMulaw(int16(binary.LittleEndian.Uint16(f.data[i*PCM16ByteSize:])))
	}
	return frameOwning(FormatTelephony, out), nil
}

// TelephonyToRealtime converts a caller frame to the realtime endpoint's format.
// A frame already in realtime format is returned unchanged.
func TelephonyToRealtime(f Frame) (Frame, error) {
	if f.format == FormatRealtime {
		return f, nil
	}
	linear, err := DecodeTelephony(f)
	if err != nil {
		return Frame{}, err
	}
	return Upsample(linear)
}

// RealtimeToTelephony converts synthesized speech back to the caller's format.
// A frame already in telephony format is returned unchanged.
func RealtimeToTelephony(f Frame) (Frame, error) {
	if f.format == FormatTelephony {
		return f, nil
	}
	if f.format != FormatRealtime {
		return Frame{}, fmt.Errorf("convert: %w: %s", ErrUnsupportedFormat, f.format)
	}
	linear, err := Downsample(f)
	if err != nil {
		return Frame{}, err
	}
	return EncodeTelephony(linear)
}
