// Package protocol defines the wire format spoken over the pomod socket.
// Frames are newline-delimited JSON objects in both directions: a client
// sends command frames, the daemon answers with typed message frames.
package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pomod-sh/pomod/internal/timer"
)

// Command is a client-to-daemon instruction.
type Command string

const (
	CmdPause    Command = "pause"
	CmdResume   Command = "resume"
	CmdToggle   Command = "toggle"
	CmdSkip     Command = "skip"
	CmdReset    Command = "reset"
	CmdOnce     Command = "once"
	CmdShutdown Command = "shutdown"
)

// Commands lists every valid command, for help output and validation.
var Commands = []Command{CmdPause, CmdResume, CmdToggle, CmdSkip, CmdReset, CmdOnce, CmdShutdown}

// Valid reports whether c is a known command.
func (c Command) Valid() bool {
	for _, known := range Commands {
		if c == known {
			return true
		}
	}
	return false
}

// Message types sent from the daemon to clients.
const (
	TypeHello    = "hello"
	TypeState    = "state"
	TypeError    = "error"
	TypeShutdown = "shutdown"
)

// CommandFrame is one client-to-daemon frame.
type CommandFrame struct {
	Command Command `json:"command"`
}

// Message is one daemon-to-client frame. State is set for "state" frames,
// Version for "hello" frames and Error for "error" frames.
type Message struct {
	Type    string          `json:"type"`
	Version string          `json:"version,omitempty"`
	State   *timer.Snapshot `json:"state,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// NewHello builds the handshake frame sent once after accept.
func NewHello(version string) Message {
	return Message{Type: TypeHello, Version: version}
}

// NewState wraps a timer snapshot for broadcast.
func NewState(snap timer.Snapshot) Message {
	return Message{Type: TypeState, State: &snap}
}

// NewError builds a protocol-error report for the originating client.
func NewError(err error) Message {
	return Message{Type: TypeError, Error: err.Error()}
}

// NewShutdown builds the termination notice pushed to every client before
// the daemon exits.
func NewShutdown() Message {
	return Message{Type: TypeShutdown}
}

// DecodeError describes a malformed or unknown command frame. It is reported
// back to the sender only and never affects the timer or other clients.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "invalid command frame: " + e.Reason
}

// DecodeCommand parses one raw frame into a Command. Both the structured
// form {"command":"skip"} and a bare token "skip" are accepted; the bare
// form keeps `echo skip | nc -U` debugging workable.
func DecodeCommand(line []byte) (Command, error) {
	raw := strings.TrimSpace(string(line))
	if raw == "" {
		return "", &DecodeError{Reason: "empty frame"}
	}

	var cmd Command
	if strings.HasPrefix(raw, "{") {
		var frame CommandFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			return "", &DecodeError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
		}
		cmd = frame.Command
	} else {
		cmd = Command(raw)
	}

	if !cmd.Valid() {
		return "", &DecodeError{Reason: fmt.Sprintf("unknown command %q", cmd)}
	}
	return cmd, nil
}

// Encode serializes v followed by the frame delimiter.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return append(data, '\n'), nil
}

// Writer writes frames to one side of a connection.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w for frame writing.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes v and writes it as a single frame.
func (fw *Writer) Write(v any) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}
	if _, err := fw.w.Write(data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Reader reads frames from one side of a connection.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader wraps r for frame reading.
func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// ReadLine returns the next raw frame, or io.EOF when the peer closed.
func (fr *Reader) ReadLine() ([]byte, error) {
	if !fr.scanner.Scan() {
		if err := fr.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return fr.scanner.Bytes(), nil
}

// ReadMessage reads and decodes one daemon-to-client frame.
func (fr *Reader) ReadMessage() (Message, error) {
	line, err := fr.ReadLine()
	if err != nil {
		return Message{}, err
	}
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return Message{}, fmt.Errorf("malformed server frame: %w", err)
	}
	return msg, nil
}
