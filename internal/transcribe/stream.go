package transcribe

import (
	"context"
	"io"
)

// Stream yields raw audio chunks in capture order. A stream is single-use:
// once Next has returned io.EOF (or any other error) the stream is spent and
// a fresh one must be created for a repeat transcription. Implementations
// must honor ctx so a cancelled call stops consuming promptly.
type Stream interface {
	Next(ctx context.Context) ([]byte, error)
}

type chunkStream struct {
	chunks [][]byte
	pos    int
}

// Chunks builds an in-memory stream over the given chunks, in order.
func Chunks(chunks ...[]byte) Stream {
	return &chunkStream{chunks: chunks}
}

func (s *chunkStream) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

type readerStream struct {
	r         io.Reader
	chunkSize int
	done      bool
}

// NewReaderStream yields fixed-size chunks read from r until it is exhausted.
// The final chunk may be shorter.
func NewReaderStream(r io.Reader, chunkSize int) Stream {
	if chunkSize <= 0 {
		chunkSize = 1024
	}
	return &readerStream{r: r, chunkSize: chunkSize}
}

func (s *readerStream) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.done {
		return nil, io.EOF
	}
	buf := make([]byte, s.chunkSize)
	n, err := s.r.Read(buf)
	if n > 0 {
		if err == io.EOF {
			s.done = true
		}
		return buf[:n], nil
	}
	if err == nil {
		err = io.EOF
	}
	s.done = true
	return nil, err
}

// Pipe is a channel-fed stream for live producers. The producing goroutine
// calls Send for each chunk and CloseSend when capture ends; the consuming
// backend sees chunks in send order.
type Pipe struct {
	ch     chan []byte
	closed chan struct{}
}

func NewPipe(buffer int) *Pipe {
	return &Pipe{
		ch:     make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

// Send hands one chunk to the consumer. It returns ctx.Err() if the consumer
// side went away first.
func (p *Pipe) Send(ctx context.Context, chunk []byte) error {
	select {
	case p.ch <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseSend marks the end of the stream. Must be called exactly once.
func (p *Pipe) CloseSend() {
	close(p.closed)
}

func (p *Pipe) Next(ctx context.Context) ([]byte, error) {
	select {
	case chunk := <-p.ch:
		return chunk, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		// Drain chunks sent before CloseSend.
		select {
		case chunk := <-p.ch:
			return chunk, nil
		default:
			return nil, io.EOF
		}
	}
}
