// Package input reads command arguments that name a file or "-" for stdin.
package input

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrEmpty is returned when a source holds no data.
var ErrEmpty = errors.New("empty input")

// ReadSource reads the whole of path, or of stdin when path is "-".
// A leading "@" is accepted and ignored so "@file" works as in curl.
func ReadSource(path string, stdin io.Reader) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case path == "-":
		if stdin == nil {
			return nil, fmt.Errorf("read stdin: no reader")
		}
		data, err = io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
	default:
		path = strings.TrimPrefix(path, "@")
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, ErrEmpty
	}
	return data, nil
}
