package cli

import (
	"context"
	"fmt"
	"iter"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	List(ctx context.Context) error
	Search(ctx context.Context, query string) error
	Add(ctx context.Context) error
	Outbox(ctx context.Context) error
	Sync(ctx context.Context) error
	Delete(ctx context.Context, id string) error
	Fav(ctx context.Context, id string) error
	Favs(ctx context.Context) error
	Unfav(ctx context.Context, id string) error
	ClearFavs(ctx context.Context) error
	Status(ctx context.Context) error
}

// runREPL reads commands from lines and dispatches them to a until input
// ends or the user types "exit" or "quit".
//
//	login | logout        session
//	list | l              feed (cached when offline)
//	search <text>         search cached stories
//	add                   new story (queued when offline)
//	outbox                pending uploads
//	sync                  upload the outbox now
//	delete <id>           drop a cached story
//	fav <id> | favs | unfav <id> | clearfavs
//	status                connectivity and queue size
//
// Errors returned by handlers are printed and the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, lines iter.Seq[string]) {
	printlnFn(fmt.Sprintf("sk %s> ", statusFn()))
	for line := range lines {
		parts := strings.Fields(line)
		if len(parts) == 0 {
			printlnFn(fmt.Sprintf("sk %s> ", statusFn()))
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: (l)ist, search, add, outbox, sync, delete, fav, favs, unfav, clearfavs, status, logout, exit")
			} else {
				printlnFn("Available commands: login, (l)ist, search, outbox, favs, status, exit")
			}

		case "login":
			err = a.Login(ctx)

		case "logout":
			err = a.Logout(ctx)

		case "l", "list":
			err = a.List(ctx)

		case "search":
			err = a.Search(ctx, strings.Join(args, " "))

		case "add":
			err = a.Add(ctx)

		case "outbox":
			err = a.Outbox(ctx)

		case "sync":
			err = a.Sync(ctx)

		case "delete":
			if len(args) == 0 {
				printlnFn("Usage: delete <id>")
				break
			}
			err = a.Delete(ctx, args[0])

		case "fav":
			if len(args) == 0 {
				printlnFn("Usage: fav <id>")
				break
			}
			err = a.Fav(ctx, args[0])

		case "favs":
			err = a.Favs(ctx)

		case "unfav":
			if len(args) == 0 {
				printlnFn("Usage: unfav <id>")
				break
			}
			err = a.Unfav(ctx, args[0])

		case "clearfavs":
			err = a.ClearFavs(ctx)

		case "status":
			err = a.Status(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err)
		}
		printlnFn(fmt.Sprintf("sk %s> ", statusFn()))
	}
}
