// Where: internal/infra/interaction/interaction.go
// What: Terminal detection and confirmation prompts.
// Why: A deploy to production started by hand must be confirmed first.
package interaction

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(title, description string) (bool, error)
}

// IsTerminal reports whether the file refers to a terminal device.
var IsTerminal = func(file *os.File) bool {
	if file == nil {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Interactive reports whether both stdin and stdout are terminals.
func Interactive() bool {
	return IsTerminal(os.Stdin) && IsTerminal(os.Stdout)
}

var runConfirmPrompt = func(title, description string, confirmed *bool) error {
	return huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Deploy").
		Negative("Cancel").
		Value(confirmed).
		Run()
}

// HuhConfirmer implements Confirmer using the huh TUI library.
type HuhConfirmer struct{}

func (HuhConfirmer) Confirm(title, description string) (bool, error) {
	var confirmed bool
	if err := runConfirmPrompt(title, description, &confirmed); err != nil {
		return false, fmt.Errorf("prompt confirm: %w", err)
	}
	return confirmed, nil
}
