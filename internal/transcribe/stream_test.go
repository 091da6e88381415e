package transcribe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func TestChunksSingleUse(t *testing.T) {
	s := Chunks([]byte{1, 2}, []byte{3})
	ctx := context.Background()

	first, err := s.Next(ctx)
	if err != nil || !bytes.Equal(first, []byte{1, 2}) {
		t.Fatalf("unexpected first chunk %v, err %v", first, err)
	}
	second, err := s.Next(ctx)
	if err != nil || !bytes.Equal(second, []byte{3}) {
		t.Fatalf("unexpected second chunk %v, err %v", second, err)
	}
	if _, err := s.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if _, err := s.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF to repeat, got %v", err)
	}
}

func TestReaderStreamChunking(t *testing.T) {
	data := make([]byte, 10)
	for i := range data {
		data[i] = byte(i)
	}
	s := NewReaderStream(bytes.NewReader(data), 4)
	ctx := context.Background()

	var got []byte
	var sizes []int
	for {
		chunk, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, chunk...)
		sizes = append(sizes, len(chunk))
	}

	if !bytes.Equal(got, data) {
		t.Fatalf("expected bytes preserved in order, got %v", got)
	}
	if len(sizes) != 3 || sizes[0] != 4 || sizes[1] != 4 || sizes[2] != 2 {
		t.Fatalf("expected chunks of 4,4,2, got %v", sizes)
	}
}

func TestReaderStreamHonorsCancellation(t *testing.T) {
	s := NewReaderStream(bytes.NewReader(make([]byte, 64)), 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPipeOrdering(t *testing.T) {
	pipe := NewPipe(4)
	ctx := context.Background()

	for _, chunk := range [][]byte{{1}, {2}, {3}} {
		if err := pipe.Send(ctx, chunk); err != nil {
			t.Fatalf("send failed: %v", err)
		}
	}
	pipe.CloseSend()

	var got []byte
	for {
		chunk, err := pipe.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, chunk...)
	}
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("expected chunks in send order, got %v", got)
	}
}

func TestPipeSendFailsWhenConsumerGone(t *testing.T) {
	pipe := NewPipe(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := pipe.Send(ctx, []byte{1}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
