package request

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMultipartStringBody(t *testing.T) {
	s := newMultipartStream("B", []byte(`{"title":"t"}`), "application/octet-stream", "hello", nil)
	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	want := "--B\r\nContent-Type: application/json\r\n\r\n" +
		`{"title":"t"}` + "\r\n" +
		"--B\r\nContent-Type: application/octet-stream\r\n\r\n" +
		"hello\r\n--B--"
	if string(got) != want {
		t.Errorf("assembled stream =\n%q\nwant\n%q", got, want)
	}
}

func TestMultipartStreamedBody(t *testing.T) {
	var progress []int64
	s := newMultipartStream("B", []byte(`{}`), "image/png", strings.NewReader("pixels"), func(n int64) {
		progress = append(progress, n)
	})
	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	want := "--B\r\nContent-Type: application/json\r\n\r\n{}\r\n" +
		"--B\r\nContent-Type: image/png\r\n\r\npixels\r\n--B--"
	if string(got) != want {
		t.Errorf("assembled stream =\n%q\nwant\n%q", got, want)
	}
	if len(progress) == 0 {
		t.Fatal("no progress notifications for streamed media")
	}
	if final := progress[len(progress)-1]; final != int64(len("pixels")) {
		t.Errorf("final progress = %d, want %d", final, len("pixels"))
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Errorf("progress not cumulative: %v", progress)
		}
	}
}

// chunkReader yields one byte per Read to force many state transitions.
type chunkReader struct{ data string }

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestMultipartSmallChunks(t *testing.T) {
	var calls int
	s := newMultipartStream("B", []byte(`{"a":1}`), "text/plain", &chunkReader{data: "abc"}, func(int64) {
		calls++
	})
	// Drain with a tiny buffer so every emission is split across reads.
	var out []byte
	buf := make([]byte, 3)
	for {
		n, err := s.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
	}
	want := "--B\r\nContent-Type: application/json\r\n\r\n{\"a\":1}\r\n" +
		"--B\r\nContent-Type: text/plain\r\n\r\nabc\r\n--B--"
	if string(out) != want {
		t.Errorf("assembled stream =\n%q\nwant\n%q", out, want)
	}
	if calls != 3 {
		t.Errorf("progress calls = %d, want 3 (one per chunk)", calls)
	}
}

type failingReader struct {
	data string
	read bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true
		return copy(p, r.data), nil
	}
	return 0, errors.New("disk on fire")
}

func TestMultipartSourceErrorPropagates(t *testing.T) {
	s := newMultipartStream("B", []byte(`{}`), "text/plain", &failingReader{data: "partial"}, nil)
	_, err := io.ReadAll(s)
	if err == nil {
		t.Fatal("expected source error to propagate")
	}
	if !strings.Contains(err.Error(), "disk on fire") {
		t.Errorf("error = %v, want the source error", err)
	}
}

func TestMultipartTerminatorDeferredForStreams(t *testing.T) {
	src := &chunkReader{data: "xy"}
	s := newMultipartStream("B", []byte(`{}`), "text/plain", src, nil)

	// Pull everything up to the media bytes; the terminator must not
	// appear until the source reports exhaustion.
	preamble := "--B\r\nContent-Type: application/json\r\n\r\n{}\r\n--B\r\nContent-Type: text/plain\r\n\r\n"
	got := make([]byte, 0, len(preamble)+2)
	buf := make([]byte, 1)
	for len(got) < len(preamble)+2 {
		n, err := s.Read(buf)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		got = append(got, buf[:n]...)
	}
	if strings.Contains(string(got), "--B--") {
		t.Error("terminator emitted before source exhaustion")
	}
	rest, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !strings.HasSuffix(string(rest), "\r\n--B--") {
		t.Errorf("stream did not end with the closing delimiter: %q", rest)
	}
}

func TestNewBoundaryUnique(t *testing.T) {
	a, b := newBoundary(), newBoundary()
	if a == b {
		t.Error("boundaries must be unique")
	}
	if len(a) < 16 {
		t.Errorf("boundary %q too short to be collision-resistant", a)
	}
}
