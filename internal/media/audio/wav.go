package audio

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV encodes buf as a 16-bit PCM WAV file at path.
func WriteWAV(path string, buf Buffer) error {
	if err := buf.Validate(); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer file.Close()

	encoder := wav.NewEncoder(file, buf.SampleRate, 16, buf.Channels, 1)
	data := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		data[i] = int(s)
	}
	intBuf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: buf.Channels,
			SampleRate:  buf.SampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := encoder.Write(intBuf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return file.Close()
}

// ReadWAV decodes a 16-bit PCM WAV file.
func ReadWAV(path string) (Buffer, error) {
	file, err := os.Open(path)
	if err != nil {
		return Buffer{}, fmt.Errorf("open wav: %w", err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return Buffer{}, fmt.Errorf("read wav: %s is not a valid wav file", path)
	}
	intBuf, err := decoder.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("read wav: %w", err)
	}
	if decoder.BitDepth != 16 {
		return Buffer{}, fmt.Errorf("read wav: unsupported bit depth %d", decoder.BitDepth)
	}
	buf := Buffer{
		SampleRate: intBuf.Format.SampleRate,
		Channels:   intBuf.Format.NumChannels,
		Samples:    make([]int16, len(intBuf.Data)),
	}
	for i, v := range intBuf.Data {
		buf.Samples[i] = int16(v)
	}
	return buf, nil
}
