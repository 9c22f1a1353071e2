package dictation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// promptHeader opens every STT initial prompt.
const promptHeader = "You are transcribing an ultrasound medical dictation.\n" +
	"Korean and English mixed medical terms must be written in correct English spelling.\n"

// BuildPrompt returns the STT initial prompt: a fixed instruction followed by
// the trimmed contents of the examples file. An empty path or a missing file
// yields the instruction alone; other read errors are returned.
func BuildPrompt(examplesPath string) (string, error) {
	var examples string
	if examplesPath != "" {
		data, err := os.ReadFile(examplesPath)
		switch {
		case err == nil:
			examples = strings.TrimSpace(string(data))
		case errors.Is(err, fs.ErrNotExist):
		default:
			return "", fmt.Errorf("dictation: read examples: %w", err)
		}
	}
	return promptHeader + examples + "\n", nil
}
