// Package sink delivers transcribed text to the system clipboard and
// persists segment audio as WAV files for the transcription worker.
package sink

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Clipboard copies text into the system clipboard via the platform's
// native utility and optionally synthesizes a paste keystroke so the
// text lands in the focused application.
type Clipboard struct {
	autoPaste  bool
	pasteDelay time.Duration
}

// NewClipboard creates a clipboard deliverer. When autoPaste is true a
// paste keystroke is sent shortly after each copy.
func NewClipboard(autoPaste bool) *Clipboard {
	return &Clipboard{
		autoPaste:  autoPaste,
		pasteDelay: 100 * time.Millisecond,
	}
}

// Deliver copies text to the clipboard. A copy failure is returned as an
// error; a paste failure is not, since the text is already on the
// clipboard and the user can paste it by hand.
func (c *Clipboard) Deliver(text string) error {
	if err := c.copy(text); err != nil {
		return fmt.Errorf("clipboard copy failed: %w", err)
	}

	if c.autoPaste {
		time.Sleep(c.pasteDelay)
		if err := c.paste(); err != nil {
			return fmt.Errorf("%w: %v", ErrPasteFailed, err)
		}
	}

	return nil
}

// ErrPasteFailed marks a delivery where the copy succeeded but the
// synthesized paste keystroke did not. Callers should log and move on.
var ErrPasteFailed = fmt.Errorf("paste keystroke failed")

func (c *Clipboard) copy(text string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		if _, err := exec.LookPath("wl-copy"); err == nil {
			cmd = exec.Command("wl-copy")
		} else {
			cmd = exec.Command("xclip", "-selection", "clipboard")
		}
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (%s)", cmd.Path, err, strings.TrimSpace(string(out)))
	}

	return nil
}

func (c *Clipboard) paste() error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("osascript", "-e",
			`tell application "System Events" to keystroke "v" using command down`)
	case "linux":
		cmd = exec.Command("xdotool", "key", "--clearmodifiers", "ctrl+v")
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (%s)", cmd.Path, err, strings.TrimSpace(string(out)))
	}

	return nil
}
