package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
)

// ErrNoInput is returned by UIs that cannot prompt the user.
var ErrNoInput = errors.New("ui: no input source")

const (
	ansiReset  = "\033[0m"
	ansiDim    = "\033[2m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

// Console renders to an ANSI terminal and reads input via readline.
type Console struct {
	out io.Writer
	rl  *readline.Instance

	mu       sync.Mutex
	spinning bool
	spinStop chan struct{}
}

func NewConsole() (*Console, error) {
	rl, err := readline.New("")
	if err != nil {
		return nil, fmt.Errorf("init readline: %w", err)
	}
	return &Console{out: os.Stdout, rl: rl}, nil
}

// Close restores the terminal state.
func (c *Console) Close() error {
	c.StopThinking()
	return c.rl.Close()
}

func (c *Console) printLine(color, prefix, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearSpinnerLocked()
	fmt.Fprintf(c.out, "%s%s%s%s\n", color, prefix, text, ansiReset)
}

func (c *Console) PrintInfo(text string)    { c.printLine(ansiCyan, "", text) }
func (c *Console) PrintSuccess(text string) { c.printLine(ansiGreen, "✓ ", text) }
func (c *Console) PrintWarning(text string) { c.printLine(ansiYellow, "⚠ ", text) }
func (c *Console) PrintError(text string)   { c.printLine(ansiRed, "✗ ", text) }

func (c *Console) PrintAgentMessage(text, agentName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearSpinnerLocked()
	fmt.Fprintf(c.out, "%s[%s]%s %s\n", ansiBold, agentName, ansiReset, text)
}

func (c *Console) PrintThinking(text string) {
	c.printLine(ansiDim, "… ", text)
}

func (c *Console) PrintCode(text, filename string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearSpinnerLocked()
	if filename != "" {
		fmt.Fprintf(c.out, "%s── %s ──%s\n", ansiDim, filename, ansiReset)
	}
	fmt.Fprintln(c.out, text)
}

func (c *Console) PrintSubagentSpawned(id, label string) {
	c.printLine(ansiCyan, "⇢ ", fmt.Sprintf("background task started: %s (%s)", label, id))
}

func (c *Console) PrintSubagentCompleted(id, label string) {
	c.printLine(ansiGreen, "⇠ ", fmt.Sprintf("background task finished: %s (%s)", label, id))
}

func (c *Console) PrintSubagentFailed(id, label, errText string) {
	c.printLine(ansiRed, "⇠ ", fmt.Sprintf("background task failed: %s (%s): %s", label, id, errText))
}

// StartThinking shows an animated spinner until StopThinking.
func (c *Console) StartThinking(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.spinning {
		return
	}
	c.spinning = true
	c.spinStop = make(chan struct{})

	go func(stop chan struct{}) {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.spinning {
					fmt.Fprintf(c.out, "\r%s%s %s%s ", ansiDim, frames[i%len(frames)], label, ansiReset)
				}
				c.mu.Unlock()
				i++
			}
		}
	}(c.spinStop)
}

func (c *Console) StopThinking() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearSpinnerLocked()
}

// clearSpinnerLocked stops the spinner and wipes its line. Callers hold c.mu.
func (c *Console) clearSpinnerLocked() {
	if !c.spinning {
		return
	}
	c.spinning = false
	close(c.spinStop)
	fmt.Fprintf(c.out, "\r%s\r", strings.Repeat(" ", 60))
}

func (c *Console) GetUserInput(prompt string) (string, error) {
	c.StopThinking()
	c.rl.SetPrompt(prompt)
	line, err := c.rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}
