package sink

import (
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Recorder captures an instance's sample stream to a RIFF/WAV file. Useful
// on headless runs where the audio needs keeping rather than hearing.
type Recorder struct {
	path string
	file *os.File
	enc  *wav.Encoder
	done chan struct{}
	err  error
}

func NewRecorder(path string) *Recorder {
	return &Recorder{path: path}
}

func (rec *Recorder) Start(r io.Reader, sampleRate int) error {
	f, err := os.Create(rec.path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}
	rec.file = f
	rec.enc = wav.NewEncoder(f, sampleRate, 16, 2, 1)
	rec.done = make(chan struct{})

	go func() {
		defer close(rec.done)
		buf := make([]byte, 8192)
		ints := make([]int, 0, len(buf)/2)
		for {
			n, err := r.Read(buf)
			if n > 1 {
				n -= n % 2
				ints = ints[:0]
				for i := 0; i < n; i += 2 {
					ints = append(ints, int(int16(uint16(buf[i])|uint16(buf[i+1])<<8)))
				}
				werr := rec.enc.Write(&goaudio.IntBuffer{
					Format:         &goaudio.Format{NumChannels: 2, SampleRate: sampleRate},
					Data:           ints,
					SourceBitDepth: 16,
				})
				if werr != nil && rec.err == nil {
					rec.err = werr
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return nil
}

// Close waits for the stream to end, then finalizes the WAV header. The
// stream ends when the instance shuts its audio bridge, so Close must come
// after that.
func (rec *Recorder) Close() error {
	if rec.done == nil {
		return nil
	}
	<-rec.done

	if err := rec.enc.Close(); err != nil && rec.err == nil {
		rec.err = err
	}
	if err := rec.file.Close(); err != nil && rec.err == nil {
		rec.err = err
	}
	return rec.err
}
