package request

import (
	"fmt"
	"io"

	"github.com/google/uuid"
)

// multipartState tracks assembly progress. The terminator transition is the
// load-bearing one: for streamed media it only fires once the source signals
// exhaustion, because total length is unknown upfront.
type multipartState int

const (
	stateMetadata multipartState = iota
	statePreamble
	stateMedia
	stateTerminator
	stateDone
)

// multipartStream lazily assembles a multipart/related body: a JSON metadata
// part followed by a media part that may be an open-ended byte stream. The
// media body is forwarded chunk by chunk, never buffered whole.
type multipartStream struct {
	boundary  string
	metadata  []byte
	mediaType string

	// Exactly one of mediaString/mediaReader is set.
	mediaString string
	mediaReader io.Reader

	onProgress func(int64)
	bytesRead  int64

	state   multipartState
	pending []byte
	err     error
}

// newMultipartStream builds the assembly stream. metadata is the serialized
// JSON body payload; media is either a string or an io.Reader.
func newMultipartStream(boundary string, metadata []byte, mediaType string, media any, onProgress func(int64)) *multipartStream {
	s := &multipartStream{
		boundary:   boundary,
		metadata:   metadata,
		mediaType:  mediaType,
		onProgress: onProgress,
	}
	switch m := media.(type) {
	case string:
		s.mediaString = m
	case io.Reader:
		s.mediaReader = m
	}
	return s
}

// newBoundary returns a collision-resistant boundary token.
func newBoundary() string {
	return uuid.NewString()
}

func (s *multipartStream) Read(p []byte) (int, error) {
	for {
		if len(s.pending) > 0 {
			n := copy(p, s.pending)
			s.pending = s.pending[n:]
			return n, nil
		}
		if s.err != nil {
			return 0, s.err
		}

		switch s.state {
		case stateMetadata:
			s.pending = append(s.partHeader("application/json"), s.metadata...)
			s.pending = append(s.pending, '\r', '\n')
			s.state = statePreamble

		case statePreamble:
			s.pending = s.partHeader(s.mediaType)
			s.state = stateMedia

		case stateMedia:
			if s.mediaReader == nil {
				s.pending = []byte(s.mediaString)
				s.state = stateTerminator
				continue
			}
			n, err := s.mediaReader.Read(p)
			if n > 0 {
				s.bytesRead += int64(n)
				// Progress is a side-channel observation; it must
				// fire before the chunk moves downstream and never
				// alter it.
				if s.onProgress != nil {
					s.onProgress(s.bytesRead)
				}
				if err == io.EOF {
					s.state = stateTerminator
				} else if err != nil {
					s.err = err
				}
				return n, nil
			}
			if err == io.EOF {
				s.state = stateTerminator
				continue
			}
			if err != nil {
				s.err = err
				return 0, err
			}

		case stateTerminator:
			s.pending = []byte("\r\n--" + s.boundary + "--")
			s.state = stateDone

		case stateDone:
			return 0, io.EOF
		}
	}
}

func (s *multipartStream) partHeader(contentType string) []byte {
	return []byte(fmt.Sprintf("--%s\r\nContent-Type: %s\r\n\r\n", s.boundary, contentType))
}

// progressReader reports cumulative bytes read from a raw media upload body.
type progressReader struct {
	r          io.Reader
	onProgress func(int64)
	bytesRead  int64
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.bytesRead += int64(n)
		p.onProgress(p.bytesRead)
	}
	return n, err
}
