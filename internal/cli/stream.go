package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/cadenzalabs/ensemble/internal/piece"
)

// ANSI color helpers using raw escape codes, matching the provider
// stack's chat TUI: no OSC queries, no termenv auto-detect.
var (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorOrange = "\033[38;5;208m"
	colorBlue   = "\033[38;5;39m"
	colorPink   = "\033[38;5;212m"
	colorGray   = "\033[38;5;241m"
	colorRed    = "\033[38;5;196m"
)

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func printBanner(pieceName, task string) {
	w := termWidth()
	sep := colorOrange + strings.Repeat("-", w) + colorReset
	fmt.Println(sep)
	fmt.Printf("%s%sensemble%s %s running %q\n", colorBold, colorOrange, colorReset, pieceName, task)
	fmt.Println(sep)
}

func printMovementStart(movement string, iteration int) {
	fmt.Printf("\n%s%s[%d] %s%s\n", colorBold, colorBlue, iteration, movement, colorReset)
}

func printMovementComplete(movement string, resp *piece.AgentResponse) {
	if resp == nil {
		return
	}
	status := string(resp.Status)
	c := colorGray
	switch resp.Status {
	case piece.StatusError:
		c = colorRed
	case piece.StatusInterrupted:
		c = colorDim
	case piece.StatusDone:
		c = colorPink
	}
	fmt.Printf("%s%s -> %s%s\n", c, movement, status, colorReset)
	if resp.Content != "" {
		fmt.Println(renderMarkdown(resp.Content, termWidth()-4))
	}
}

func printAbort(reason piece.TerminalReason) {
	fmt.Printf("\n%s%saborted: %s%s\n", colorBold, colorRed, reason, colorReset)
}

func printComplete(iteration int) {
	fmt.Printf("\n%s%scomplete after %d movement(s)%s\n", colorBold, colorOrange, iteration, colorReset)
}

// renderMarkdown renders content for terminal display, falling back to
// the raw text if the renderer can't be built.
func renderMarkdown(content string, width int) string {
	if width <= 0 {
		width = 76
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithColorProfile(termenv.ANSI256),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

// streamEvents renders engine lifecycle events to stdout until ch
// closes, the non-TUI terminal experience `ensemble run` defaults to.
func streamEvents(ch <-chan piece.Event) {
	for ev := range ch {
		switch ev.Kind {
		case piece.EventMovementStart:
			printMovementStart(ev.Movement, ev.Iteration)
		case piece.EventMovementComplete:
			printMovementComplete(ev.Movement, ev.Response)
		case piece.EventPieceAbort:
			printAbort(ev.Reason)
		case piece.EventPieceComplete:
			printComplete(ev.Iteration)
		}
	}
}
