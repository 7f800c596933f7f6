package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

const helpText = `Available commands:
  add                      add a warranty
  (l)ist                   list warranties, soonest expiration first
  show <id>                show one warranty
  edit <id>                change name or dates
  delete <id>              delete a warranty
  attach <id> <file>       upload a receipt
  receipt <id> [save]      print the receipt link, or save the receipt locally
  sync                     reconcile with the server now
  conflicts                list unresolved conflicts
  resolve <id> local|remote
  triggers                 list reminder triggers
  exit | quit              leave the program`

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Add(ctx context.Context) error
	List(ctx context.Context) error
	Show(ctx context.Context, args []string) error
	Edit(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Attach(ctx context.Context, args []string) error
	Receipt(ctx context.Context, args []string) error
	Sync(ctx context.Context) error
	Conflicts(ctx context.Context) error
	Resolve(ctx context.Context, args []string) error
	Triggers(ctx context.Context) error
}

// runREPL reads commands from reader until EOF, "exit" or "quit", or until
// ctx is done. Handler errors are printed and the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, w io.Writer) {
	for ctx.Err() == nil {
		fmt.Fprintf(w, "mw %s> ", statusFn())
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cerr error
		switch cmd {
		case "help":
			fmt.Fprintln(w, helpText)
		case "add":
			cerr = a.Add(ctx)
		case "l", "list":
			cerr = a.List(ctx)
		case "show":
			cerr = a.Show(ctx, args)
		case "edit":
			cerr = a.Edit(ctx, args)
		case "delete", "rm":
			cerr = a.Delete(ctx, args)
		case "attach":
			cerr = a.Attach(ctx, args)
		case "receipt":
			cerr = a.Receipt(ctx, args)
		case "sync":
			cerr = a.Sync(ctx)
		case "conflicts":
			cerr = a.Conflicts(ctx)
		case "resolve":
			cerr = a.Resolve(ctx, args)
		case "triggers":
			cerr = a.Triggers(ctx)
		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return
		default:
			fmt.Fprintln(w, "Unknown command:", cmd)
		}
		if cerr != nil {
			fmt.Fprintf(w, "error: %v\n", cerr)
		}
	}
}
