package interceptor

import (
	"io"
	"sync/atomic"

	"github.com/sofatutor/llm-observer/internal/correlation"
)

// streamCaptureReadCloser wraps a streamed response body and mirrors every
// chunk the application reads into the call's correlation buffer. Once EOF
// or Close is reached it invokes the finalize callback exactly once with the
// accumulated bytes.
type streamCaptureReadCloser struct {
	rc        io.ReadCloser
	buf       *correlation.Buffer
	maxBytes  int64
	written   int64
	finalized int32
	onDone    func([]byte)
}

func newStreamCapture(rc io.ReadCloser, buf *correlation.Buffer, maxBytes int64, onDone func([]byte)) *streamCaptureReadCloser {
	return &streamCaptureReadCloser{
		rc:       rc,
		buf:      buf,
		maxBytes: maxBytes,
		onDone:   onDone,
	}
}

func (s *streamCaptureReadCloser) Read(p []byte) (int, error) {
	n, err := s.rc.Read(p)
	if n > 0 && (s.maxBytes == 0 || s.written < s.maxBytes) {
		limit := n
		remaining := s.maxBytes - s.written
		if s.maxBytes > 0 && int64(limit) > remaining {
			limit = int(remaining)
		}
		_, _ = s.buf.Write(p[:limit])
		s.written += int64(limit)
	}
	if err == io.EOF {
		s.finalize()
	}
	return n, err
}

func (s *streamCaptureReadCloser) Close() error {
	// Finalize happens once even if Close is called before EOF
	s.finalize()
	return s.rc.Close()
}

func (s *streamCaptureReadCloser) finalize() {
	if atomic.CompareAndSwapInt32(&s.finalized, 0, 1) {
		if s.onDone != nil {
			s.onDone(s.buf.Take())
		}
	}
}
