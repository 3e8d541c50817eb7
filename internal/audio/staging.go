package audio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

type Format string

const (
	OggOpus Format = "ogg"
	MP3     Format = "mp3"
)

func (f Format) Ext() string {
	if f == "" {
		return ".bin"
	}
	return "." + string(f)
}

// Payload is audio held in memory, e.g. a synthesized reply.
type Payload struct {
	Data   []byte
	Format Format
}

func (p Payload) Empty() bool { return len(p.Data) == 0 }

// Clip is audio staged on disk for the duration of one pipeline run.
type Clip struct {
	Path   string
	Format Format
}

// Release removes the staged file. Safe to call more than once.
func (c Clip) Release() error {
	if c.Path == "" {
		return nil
	}
	if err := os.Remove(c.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Stager hands out staging paths that are unique per call, so concurrent
// runs never share a file.
type Stager struct {
	dir string
}

func NewStager(dir string) (*Stager, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "ulpan")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("staging dir: %w", err)
	}
	return &Stager{dir: dir}, nil
}

func (s *Stager) Dir() string { return s.dir }

// Reserve returns a fresh path for kind without creating the file.
func (s *Stager) Reserve(kind string, format Format) Clip {
	name := fmt.Sprintf("%s-%s%s", kind, uuid.NewString(), format.Ext())
	return Clip{Path: filepath.Join(s.dir, name), Format: format}
}

// Write stages p under a fresh path. On error nothing is left behind.
func (s *Stager) Write(kind string, p Payload) (Clip, error) {
	clip := s.Reserve(kind, p.Format)
	if err := os.WriteFile(clip.Path, p.Data, 0o600); err != nil {
		_ = clip.Release()
		return Clip{}, fmt.Errorf("stage %s: %w", kind, err)
	}
	return clip, nil
}
