package listener

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"github.com/zenwerk/go-wave"

	"pixie-agent/audio_capture"
)

// Archiver writes recorded commands to wav files for later inspection.
type Archiver struct {
	fileSys afero.Fs
	dir     string
}

func NewArchiver(fileSys afero.Fs, dir string) (*Archiver, error) {
	if fileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	if err := fileSys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}

	return &Archiver{fileSys: fileSys, dir: dir}, nil
}

func (a *Archiver) Save(utterance *audio_capture.Utterance) (string, error) {
	waveFilename := filepath.Join(a.dir, "command"+strconv.FormatInt(time.Now().UnixNano(), 10)+".wav")

	waveFile, err := a.fileSys.Create(waveFilename)
	if err != nil {
		return "", err
	}

	param := wave.WriterParam{
		Out:           waveFile,
		Channel:       1,
		SampleRate:    utterance.SampleRate(),
		BitsPerSample: 16,
	}

	waveWriter, err := wave.NewWriter(param)
	if err != nil {
		_ = waveFile.Close()
		return "", err
	}

	if _, err := waveWriter.WriteSample16(utterance.Samples()); err != nil {
		_ = waveWriter.Close()
		return "", err
	}

	if err := waveWriter.Close(); err != nil {
		return "", err
	}

	return waveFilename, nil
}
