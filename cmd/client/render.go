package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/gookit/color"
	"github.com/npezzotti/go-chatclient/internal/chat"
	"github.com/npezzotti/go-chatclient/internal/types"
)

// feedPrinter turns successive views into terminal output, printing only
// what changed since the previous view.
type feedPrinter struct {
	w io.Writer

	mu     sync.Mutex
	names  map[string]string
	roomId string
	seen   map[string]string
}

func newFeedPrinter(w io.Writer) *feedPrinter {
	return &feedPrinter{
		w:     w,
		names: make(map[string]string),
		seen:  make(map[string]string),
	}
}

func (p *feedPrinter) SetRooms(rooms []types.Room) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range rooms {
		p.names[r.Id] = r.Name
	}
}

func (p *feedPrinter) follow(updates <-chan chat.View) {
	for v := range updates {
		p.render(v)
	}
}

func (p *feedPrinter) render(v chat.View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v.RoomId != p.roomId {
		p.roomId = v.RoomId
		clear(p.seen)
		if v.RoomId != "" {
			p.header()
		}
	} else if p.backfilled(v.Messages) {
		// output is append-only, so older messages arriving late mean
		// printing the room again in order
		clear(p.seen)
		p.header()
	}

	for _, msg := range v.Messages {
		body, ok := p.seen[msg.Id]
		if ok && body == msg.Body {
			continue
		}
		p.seen[msg.Id] = msg.Body
		fmt.Fprintln(p.w, formatMessage(msg, ok))
	}
}

// backfilled reports whether a message not printed yet sorts before one
// that was.
func (p *feedPrinter) backfilled(messages []types.Message) bool {
	fresh := false
	for _, msg := range messages {
		if _, ok := p.seen[msg.Id]; !ok {
			fresh = true
		} else if fresh {
			return true
		}
	}
	return false
}

func (p *feedPrinter) header() {
	fmt.Fprintln(p.w, color.New(color.FgGreen, color.OpBold).Sprintf("── #%s ──", p.roomName(p.roomId)))
}

func (p *feedPrinter) roomName(id string) string {
	if name, ok := p.names[id]; ok {
		return name
	}
	return id
}

func formatMessage(msg types.Message, edited bool) string {
	line := fmt.Sprintf("%s %s %s",
		color.Gray.Sprint(msg.Clock()),
		color.Cyan.Sprint(msg.Author.DisplayName()+":"),
		msg.Body)
	if edited {
		line += color.Gray.Sprint(" (edited)")
	}
	return line
}
