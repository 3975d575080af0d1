package player

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ipcCommand is the JSON structure sent to mpv's IPC socket.
type ipcCommand struct {
	Command   []interface{} `json:"command"`
	RequestID int           `json:"request_id,omitempty"`
}

// ipcMessage is any newline-delimited JSON object mpv writes back: command
// replies carry request_id and error, events carry event and its fields.
type ipcMessage struct {
	Event     string          `json:"event"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
	Reason    string          `json:"reason"`
	FileError string          `json:"file_error"`
	Error     string          `json:"error"`
	RequestID int             `json:"request_id"`
}

const (
	socketWaitAttempts = 50
	socketWaitInterval = 100 * time.Millisecond
)

// encodeCommand marshals a command as one IPC line.
func encodeCommand(requestID int, args ...interface{}) ([]byte, error) {
	payload, err := json.Marshal(ipcCommand{Command: args, RequestID: requestID})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return append(payload, '\n'), nil
}

// waitForSocket polls until mpv has created its IPC socket.
func waitForSocket(path string) error {
	for i := 0; i < socketWaitAttempts; i++ {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		time.Sleep(socketWaitInterval)
	}
	return fmt.Errorf("mpv IPC socket %s did not appear", path)
}
