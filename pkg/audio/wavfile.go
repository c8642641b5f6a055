package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/wav"
)

// bitsPerSample is fixed at 16 for the signed little-endian PCM produced by
// [EncodeWAV]; decoding accepts whatever bit depth the container declares.
const bitsPerSample = 16

// DecodeWAV reads a RIFF/WAV container and returns the interleaved samples
// scaled into [-1, 1] together with the channel count and sample rate.
// Returns [ErrBadFormat] for invalid containers and [ErrEmptyAudio] for
// containers with no sample data.
func DecodeWAV(r io.ReadSeeker) (samples []float32, channels, sampleRate int, err error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("%w: not a RIFF/WAV file", ErrBadFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("audio: decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, 0, fmt.Errorf("%w: missing format chunk", ErrBadFormat)
	}
	if len(buf.Data) == 0 {
		return nil, 0, 0, ErrEmptyAudio
	}

	depth := int(dec.BitDepth)
	if depth <= 0 {
		depth = bitsPerSample
	}
	scale := 1.0 / float64(int64(1)<<(depth-1))

	samples = make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(float64(v) * scale)
	}
	return samples, buf.Format.NumChannels, buf.Format.SampleRate, nil
}

// DecodeWAVFile is a convenience wrapper around [DecodeWAV] for a file path.
func DecodeWAVFile(path string) (samples []float32, channels, sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()
	return DecodeWAV(f)
}

// EncodeWAV wraps mono float samples in a standard RIFF/WAV container with
// 16-bit signed little-endian PCM data. Samples outside [-1, 1] are clamped.
// The returned byte slice is suitable for direct inclusion in a multipart
// form upload to an inference server.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	const channels = 1
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(samples) * 2

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(buf[44+i*2:46+i*2], uint16(int16(v)))
	}

	return buf
}
