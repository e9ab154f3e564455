package transport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/sirupsen/logrus"
)

// PipeTransport frames messages over a subprocess's standard streams: Send
// writes to the child's stdin, Receive reads from its stdout. The stream
// carries a 4-byte big-endian length prefix per message.
type PipeTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	stdinOnce sync.Once
	stdinErr  error
	waitOnce  sync.Once
	waitErr   error
}

// NewPipeTransport spawns the given shell command line and wires its
// standard streams. The child's stderr passes through to ours so its
// diagnostics stay visible.
func NewPipeTransport(command string) (*PipeTransport, error) {
	if command == "" {
		return nil, fmt.Errorf("pipe mode requires a command line")
	}

	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open subprocess stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open subprocess stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn subprocess: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewPipeTransport",
		"command":  command,
		"pid":      cmd.Process.Pid,
	}).Debug("Pipe transport ready")

	return &PipeTransport{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// Send writes one length-prefixed message to the subprocess.
func (t *PipeTransport) Send(message []byte) error {
	if len(message) > MaxMessageSize {
		return ErrMessageTooLarge
	}

	prefix := lengthPrefix(message)
	if _, err := t.stdin.Write(prefix); err != nil {
		return sendErr(err)
	}
	if _, err := t.stdin.Write(message); err != nil {
		return sendErr(err)
	}
	return nil
}

func sendErr(err error) error {
	if errors.Is(err, os.ErrClosed) {
		return ErrTransportClosed
	}
	return fmt.Errorf("pipe send failed: %w", err)
}

// Receive blocks until one length-prefixed message has been read from the
// subprocess. Frames the child wrote before exiting remain readable until
// Close reaps it.
func (t *PipeTransport) Receive() ([]byte, error) {
	prefix := make([]byte, 4)
	if _, err := io.ReadFull(t.stdout, prefix); err != nil {
		return nil, receiveErr(err)
	}

	length := int(prefix[0])<<24 | int(prefix[1])<<16 | int(prefix[2])<<8 | int(prefix[3])
	if length > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	message := make([]byte, length)
	if _, err := io.ReadFull(t.stdout, message); err != nil {
		return nil, receiveErr(err)
	}
	return message, nil
}

func receiveErr(err error) error {
	if errors.Is(err, os.ErrClosed) {
		return ErrTransportClosed
	}
	return fmt.Errorf("pipe receive failed: %w", err)
}

// CloseSend closes the child's stdin so a well-behaved child sees end of
// input and exits. Its stdout keeps draining until Close.
func (t *PipeTransport) CloseSend() error {
	t.stdinOnce.Do(func() { t.stdinErr = t.stdin.Close() })
	return t.stdinErr
}

// Close reaps the subprocess. Receiving must be finished first: reaping
// closes the child's stdout and discards anything still buffered there.
func (t *PipeTransport) Close() error {
	t.waitOnce.Do(func() {
		t.CloseSend()
		t.waitErr = t.cmd.Wait()
		if t.waitErr != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Close",
				"error":    t.waitErr,
			}).Debug("Subprocess exited with error")
		}
	})
	return t.waitErr
}

// lengthPrefix creates a 4-byte length prefix for the data.
func lengthPrefix(data []byte) []byte {
	prefix := make([]byte, 4)
	dataLen := len(data)
	prefix[0] = byte(dataLen >> 24)
	prefix[1] = byte(dataLen >> 16)
	prefix[2] = byte(dataLen >> 8)
	prefix[3] = byte(dataLen)
	return prefix
}
