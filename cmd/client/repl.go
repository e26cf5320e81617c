package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/npezzotti/go-chatclient/internal/chat"
	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh/terminal"
)

var errQuit = errors.New("quit")

type cmdKind int

const (
	cmdNone cmdKind = iota
	cmdSend
	cmdJoin
	cmdRooms
	cmdRefresh
	cmdLogout
	cmdQuit
	cmdHelp
)

type command struct {
	kind cmdKind
	arg  string
}

const helpText = `commands:
  /join <room>   switch to a room by name or id
  /rooms         list your rooms
  /refresh       reload the room history
  /logout        log out and return to the login prompt
  /quit          exit
anything else is sent to the current room; start a line with // to send a leading /`

// parseCommand turns an input line into a command.
func parseCommand(line string) (command, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return command{kind: cmdNone}, nil
	}
	if strings.HasPrefix(line, "//") {
		return command{kind: cmdSend, arg: line[1:]}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdSend, arg: line}, nil
	}

	name, arg, _ := strings.Cut(strings.TrimSpace(line[1:]), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "join", "j":
		if arg == "" {
			return command{}, fmt.Errorf("usage: /join <room>")
		}
		return command{kind: cmdJoin, arg: arg}, nil
	case "rooms":
		return command{kind: cmdRooms}, nil
	case "refresh":
		return command{kind: cmdRefresh}, nil
	case "logout":
		return command{kind: cmdLogout}, nil
	case "quit", "exit", "q":
		return command{kind: cmdQuit}, nil
	case "help", "h", "?":
		return command{kind: cmdHelp}, nil
	default:
		return command{}, fmt.Errorf("unknown command /%s, try /help", name)
	}
}

// lineReader reads one line per request so nothing else competes for
// stdin while a password is being read from the terminal.
type lineReader struct {
	src  io.Reader
	req  chan struct{}
	resp chan lineResult
}

type lineResult struct {
	line string
	err  error
}

func newLineReader(r io.Reader) *lineReader {
	lr := &lineReader{
		src:  r,
		req:  make(chan struct{}),
		resp: make(chan lineResult, 1),
	}
	go lr.loop(bufio.NewReader(r))
	return lr
}

func (lr *lineReader) loop(r *bufio.Reader) {
	for range lr.req {
		line, err := r.ReadString('\n')
		if err != nil && line != "" {
			err = nil
		}
		lr.resp <- lineResult{line: strings.TrimRight(line, "\r\n"), err: err}
	}
}

func (lr *lineReader) ReadLine(ctx context.Context) (string, error) {
	select {
	case lr.req <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case res := <-lr.resp:
		return res.line, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ReadPassword reads without echo when the source is a terminal and falls
// back to a plain line otherwise.
func (lr *lineReader) ReadPassword(ctx context.Context) ([]byte, error) {
	f, ok := lr.src.(*os.File)
	if !ok || !terminal.IsTerminal(int(f.Fd())) {
		line, err := lr.ReadLine(ctx)
		return []byte(line), err
	}

	type result struct {
		password []byte
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := terminal.ReadPassword(int(f.Fd()))
		ch <- result{p, err}
	}()

	select {
	case res := <-ch:
		return res.password, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type repl struct {
	log     zerolog.Logger
	client  *chat.Client
	printer *feedPrinter
	in      *lineReader
	out     io.Writer
	timeout time.Duration
	user    string
	rooms   []types.Room
}

func (r *repl) run(ctx context.Context) error {
	for {
		if err := r.login(ctx); err != nil {
			return quitOrErr(err)
		}

		err := r.chat(ctx)
		if err != nil {
			return quitOrErr(err)
		}
	}
}

func quitOrErr(err error) error {
	if errors.Is(err, errQuit) || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *repl) login(ctx context.Context) error {
	for {
		username := r.user
		if username == "" {
			fmt.Fprint(r.out, "username: ")
			line, err := r.in.ReadLine(ctx)
			if err != nil {
				return err
			}
			username = strings.TrimSpace(line)
			if username == "" {
				continue
			}
		}

		fmt.Fprint(r.out, "password: ")
		password, err := r.in.ReadPassword(ctx)
		fmt.Fprintln(r.out)
		if err != nil {
			return err
		}

		reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err = r.client.Login(reqCtx, username, password)
		cancel()
		if err == nil {
			fmt.Fprintf(r.out, "logged in as %s\n", username)
			return nil
		}

		fmt.Fprintf(r.out, "login failed: %v\n", err)
		if errors.Is(err, chat.ErrAuth) {
			r.user = ""
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// chat runs the command loop until logout (nil) or quit.
func (r *repl) chat(ctx context.Context) error {
	if err := r.listRooms(ctx); err != nil {
		fmt.Fprintf(r.out, "could not list rooms: %v\n", err)
	}
	fmt.Fprintln(r.out, "type /join <room> to start, /help for commands")

	for {
		line, err := r.in.ReadLine(ctx)
		if err != nil {
			return err
		}

		cmd, err := parseCommand(line)
		if err != nil {
			fmt.Fprintln(r.out, err)
			continue
		}

		if err := r.exec(ctx, cmd); err != nil {
			if errors.Is(err, errQuit) {
				return err
			}
			fmt.Fprintf(r.out, "error: %v\n", err)
			if errors.Is(err, chat.ErrAuth) {
				fmt.Fprintln(r.out, "session expired, please log in again")
				r.logout(ctx)
				return nil
			}
			continue
		}
		if cmd.kind == cmdLogout {
			return nil
		}
	}
}

func (r *repl) exec(ctx context.Context, cmd command) error {
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	switch cmd.kind {
	case cmdNone:
		return nil
	case cmdSend:
		return r.client.SendMessage(reqCtx, cmd.arg)
	case cmdJoin:
		room, ok := chat.Find(r.rooms, cmd.arg)
		if !ok {
			return fmt.Errorf("no room %q, try /rooms", cmd.arg)
		}
		return r.client.SelectRoom(reqCtx, room.Id)
	case cmdRooms:
		return r.listRooms(reqCtx)
	case cmdRefresh:
		return r.client.RefreshHistory(reqCtx)
	case cmdLogout:
		r.logout(ctx)
		return nil
	case cmdQuit:
		return errQuit
	case cmdHelp:
		fmt.Fprintln(r.out, helpText)
		return nil
	}
	return nil
}

func (r *repl) listRooms(ctx context.Context) error {
	rooms, err := r.client.ListRooms(ctx)
	if err != nil {
		return err
	}
	r.rooms = rooms
	r.printer.SetRooms(rooms)
	printRooms(r.out, rooms)
	return nil
}

func (r *repl) logout(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Logout(reqCtx); err != nil {
		r.log.Warn().Err(err).Msg("logout")
	}
	r.rooms = nil
	fmt.Fprintln(r.out, "logged out")
}

func printRooms(w io.Writer, rooms []types.Room) {
	if len(rooms) == 0 {
		fmt.Fprintln(w, "you are not in any rooms")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Room", "Type", "Id"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, room := range rooms {
		table.Append([]string{room.Name, roomType(room.Type), room.Id})
	}
	table.Render()
}

func roomType(t string) string {
	switch t {
	case "c":
		return "channel"
	case "p":
		return "private"
	case "d":
		return "direct"
	default:
		return t
	}
}
