package audioconv

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

type Container string

const (
	ContainerUnknown Container = ""
	ContainerOgg     Container = "ogg"
	ContainerMP3     Container = "mp3"
	ContainerWAV     Container = "wav"
)

// Sniff guesses the container from the first bytes of data.
func Sniff(data []byte) Container {
	switch {
	case len(data) >= 4 && string(data[:4]) == "OggS":
		return ContainerOgg
	case len(data) >= 4 && string(data[:4]) == "RIFF":
		return ContainerWAV
	case len(data) >= 3 && string(data[:3]) == "ID3":
		return ContainerMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG frame sync
		return ContainerMP3
	default:
		return ContainerUnknown
	}
}

// MP3Duration decodes the stream headers to compute the playback length.
func MP3Duration(data []byte) (time.Duration, error) {
	if len(data) == 0 {
		return 0, errors.New("empty mp3")
	}
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("mp3 decoder: %w", err)
	}
	sr := dec.SampleRate()
	n := dec.Length()
	if sr <= 0 || n <= 0 {
		return 0, fmt.Errorf("mp3 length unknown (rate=%d, bytes=%d)", sr, n)
	}
	// decoder output is 16-bit stereo: 4 bytes per frame
	frames := n / 4
	return time.Duration(frames) * time.Second / time.Duration(sr), nil
}
