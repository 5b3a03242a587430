package codec

import (
	"bytes"
	"fmt"
	"io"
)

// MaxFrameSize caps a single newline delimited frame.
const MaxFrameSize = 10 * 1024 * 1024

// Framer reassembles newline delimited frames from arbitrary byte chunks.
// A chunk may hold a fragment of a frame, several frames, or both; the
// resulting frame sequence is independent of how the stream was chunked.
type Framer struct {
	buf       bytes.Buffer
	max       int
	discarded int
}

// NewFramer returns a framer with the given frame size limit; max <= 0
// applies MaxFrameSize.
func NewFramer(max int) *Framer {
	if max <= 0 {
		max = MaxFrameSize
	}
	return &Framer{max: max}
}

// Push appends chunk and returns every frame completed by it, oldest first.
// Blank lines are dropped. When an unterminated frame outgrows the limit its
// bytes are discarded up to the next newline and an error is returned once
// per oversized frame; the stream itself stays usable.
func (f *Framer) Push(chunk []byte) ([][]byte, error) {
	var frames [][]byte
	var err error
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			if f.discarded > 0 {
				f.discarded += len(chunk)
				break
			}
			f.buf.Write(chunk)
			if f.buf.Len() > f.max {
				f.discarded = f.buf.Len()
				f.buf.Reset()
				err = fmt.Errorf("frame exceeds %v bytes, discarding", f.max)
			}
			break
		}
		if f.discarded > 0 {
			f.discarded = 0
			chunk = chunk[i+1:]
			continue
		}
		f.buf.Write(chunk[:i])
		if f.buf.Len() > f.max {
			err = fmt.Errorf("frame exceeds %v bytes, discarding", f.max)
			f.buf.Reset()
			chunk = chunk[i+1:]
			continue
		}
		if frame := trimFrame(f.buf.Bytes()); len(frame) > 0 {
			frames = append(frames, frame)
		}
		f.buf.Reset()
		chunk = chunk[i+1:]
	}
	return frames, err
}

// Flush returns the trailing unterminated frame, if any, and resets the
// framer. Used when the underlying stream ends without a final newline.
func (f *Framer) Flush() []byte {
	defer f.buf.Reset()
	if f.discarded > 0 {
		f.discarded = 0
		return nil
	}
	return trimFrame(f.buf.Bytes())
}

// Pending reports how many bytes of an incomplete frame are buffered.
func (f *Framer) Pending() int {
	return f.buf.Len()
}

func trimFrame(line []byte) []byte {
	line = bytes.TrimRight(line, "\r")
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	frame := make([]byte, len(line))
	copy(frame, line)
	return frame
}

// Pump reads r until EOF, feeding every chunk through f. onFrame receives
// each completed frame including a trailing unterminated one; onError
// receives oversize diagnostics without stopping the pump. The returned
// error is the terminal read failure, nil on a clean EOF.
func Pump(r io.Reader, f *Framer, onFrame func(frame []byte), onError func(err error)) error {
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			frames, ferr := f.Push(chunk[:n])
			if ferr != nil && onError != nil {
				onError(ferr)
			}
			for _, frame := range frames {
				onFrame(frame)
			}
		}
		if err != nil {
			if tail := f.Flush(); len(tail) > 0 {
				onFrame(tail)
			}
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
