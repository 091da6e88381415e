package wavio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ChunkReader reads a WAV file as an ordered sequence of raw 16-bit PCM byte
// chunks. It satisfies the transcribe stream contract: forward-only and
// single-use.
type ChunkReader struct {
	file      *os.File
	dec       *wav.Decoder
	buf       *goaudio.IntBuffer
	chunkSize int
	read      int64
	done      bool
}

// Open prepares a chunked reader over the WAV file at path. chunkBytes is the
// size of each emitted chunk; the final chunk may be shorter.
func Open(path string, chunkBytes int) (*ChunkReader, error) {
	if chunkBytes <= 0 {
		chunkBytes = 1024
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	dec := wav.NewDecoder(file)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("not a valid wav file: %s", path)
	}
	return &ChunkReader{
		file:      file,
		dec:       dec,
		chunkSize: chunkBytes,
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: int(dec.NumChans),
				SampleRate:  int(dec.SampleRate),
			},
			Data: make([]int, chunkBytes/2),
		},
	}, nil
}

// Next yields the next chunk of little-endian PCM bytes, or io.EOF once the
// file is exhausted.
func (r *ChunkReader) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.done {
		return nil, io.EOF
	}
	n, err := r.dec.PCMBuffer(r.buf)
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	if n == 0 {
		r.done = true
		return nil, io.EOF
	}
	chunk := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(chunk[i*2:], uint16(int16(r.buf.Data[i])))
	}
	r.read += int64(len(chunk))
	return chunk, nil
}

// BytesRead reports how many PCM bytes have been yielded so far.
func (r *ChunkReader) BytesRead() int64 {
	return r.read
}

// SampleRate reports the source file's sample rate.
func (r *ChunkReader) SampleRate() int {
	return int(r.dec.SampleRate)
}

// Channels reports the source file's channel count.
func (r *ChunkReader) Channels() int {
	return int(r.dec.NumChans)
}

func (r *ChunkReader) Close() error {
	return r.file.Close()
}
