package cli

import (
	"context"
	"fmt"
)

func (a *App) getStatus() string {
	s := ""
	if a.userName != "" {
		s = a.userName + " "
	}
	if a.watcher != nil {
		if m := a.watcher.Mode(); m != "" {
			s = s + string(m)
		}
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// Root prints the banner and runs the REPL on the app's input.
func (a *App) Root(ctx context.Context) {
	fmt.Fprintln(a.out, "Welcome to storykeeper CLI (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.lines())
}
