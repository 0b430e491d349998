package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/leaguechat/go/internal/chat/gesture"
	"github.com/mcdev12/leaguechat/go/internal/chat/history"
	"github.com/mcdev12/leaguechat/go/internal/chat/session"
	"github.com/mcdev12/leaguechat/go/internal/models"
)

var (
	errUnknownCommand = errors.New("unknown command")
	errUsage          = errors.New("wrong number of arguments")
	errQuit           = errors.New("quit")
)

// command is one parsed console line. A line without a leading slash is a
// plain message.
type command struct {
	name string
	args []string
	text string
}

// arity is the number of leading arguments a command takes before its free text.
var arity = map[string]int{
	"send":     0,
	"reply":    1,
	"react":    2,
	"delete":   1,
	"moderate": 1,
	"report":   1,
	"older":    0,
	"retry":    1,
	"discard":  1,
	"who":      2,
	"swipe":    1,
	"hold":     2,
	"read":     0,
	"unread":   0,
	"open":     1,
	"leave":    0,
	"state":    0,
	"online":   0,
	"typing":   0,
	"mention":  0,
	"quit":     0,
	"help":     0,
}

func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, errUsage
	}
	if !strings.HasPrefix(line, "/") {
		return command{name: "send", text: line}, nil
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return command{}, errUnknownCommand
	}
	name := strings.ToLower(fields[0])
	n, ok := arity[name]
	if !ok {
		return command{}, fmt.Errorf("%w: %s", errUnknownCommand, name)
	}
	rest := fields[1:]
	if len(rest) < n {
		return command{}, fmt.Errorf("%w: /%s needs %d", errUsage, name, n)
	}

	cmd := command{name: name, args: rest[:n]}
	if len(rest) > n {
		cmd.text = strings.Join(rest[n:], " ")
	}
	if name == "reply" && cmd.text == "" {
		return command{}, fmt.Errorf("%w: /reply needs a message", errUsage)
	}
	return cmd, nil
}

// console drives a session from text commands.
type console struct {
	session    *session.Session
	recognizer *gesture.Recognizer
	out        io.Writer
	room       string
	timeout    time.Duration
}

func (c *console) run(ctx context.Context, line string) error {
	cmd, err := parseCommand(line)
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	switch cmd.name {
	case "send":
		_, err = c.session.Send(c.room, cmd.text, session.SendOptions{})
	case "reply":
		_, err = c.session.Send(c.room, cmd.text, session.SendOptions{ReplyTo: cmd.args[0]})
	case "react":
		err = c.session.React(c.room, cmd.args[0], cmd.args[1])
	case "delete":
		err = c.session.Delete(c.room, cmd.args[0])
	case "moderate":
		err = c.session.Moderate(c.room, cmd.args[0])
	case "report":
		err = c.session.Report(reqCtx, c.room, cmd.args[0])
	case "older":
		var page history.Page
		page, err = c.session.LoadOlder(reqCtx, c.room)
		if err == nil && !page.Ignored {
			fmt.Fprintf(c.out, "loaded %d older messages (more: %t)\n", len(page.Messages), page.HasMore)
		}
	case "retry":
		err = c.session.Retry(c.room, cmd.args[0])
	case "discard":
		err = c.session.Discard(c.room, cmd.args[0])
	case "who":
		c.printReactors(cmd.args[1], c.session.WhoReacted(c.room, cmd.args[0], cmd.args[1]))
	case "swipe":
		c.recognizer.Start(gesture.Target{RoomID: c.room, MessageID: cmd.args[0]})
		c.recognizer.Move(gesture.Point{X: gesture.SwipeThreshold + 1})
		err = c.resolve(c.recognizer.End(), cmd.text)
	case "hold":
		c.recognizer.Start(gesture.Target{RoomID: c.room, MessageID: cmd.args[0], Emoji: cmd.args[1]})
	case "read":
		err = c.session.MarkAsRead(reqCtx, c.room)
	case "unread":
		var n int
		n, err = c.session.RefreshUnread(reqCtx, c.room)
		if err == nil {
			fmt.Fprintf(c.out, "%d unread in %s\n", n, c.room)
		}
	case "open":
		if err = c.session.OpenRoom(reqCtx, cmd.args[0]); err == nil {
			c.room = cmd.args[0]
			c.printRoom()
		}
	case "leave":
		err = c.session.LeaveRoom(c.room)
	case "state":
		c.printRoom()
	case "online":
		c.printMembers("online", c.session.Online(c.room))
		c.printMembers("typing", c.session.Typing(c.room))
	case "typing":
		err = c.session.Keystroke(c.room)
	case "mention":
		c.printMembers("suggestions", c.session.Suggestions(c.room, "@"+cmd.text))
	case "help":
		c.printHelp()
	case "quit":
		return errQuit
	}
	return err
}

// resolve applies a finished gesture. A swipe with text sends the reply at once.
func (c *console) resolve(res gesture.Result, text string) error {
	outcome, err := c.session.ResolveGesture(res)
	if err != nil {
		return err
	}
	switch outcome.Kind {
	case gesture.KindLongPress:
		c.printReactors(res.Target.Emoji, outcome.Reactors)
	case gesture.KindSwipe:
		fmt.Fprintf(c.out, "replying to %s: %q\n", outcome.Reply.AuthorName, outcome.Reply.Preview)
		if text != "" {
			_, err = c.session.Send(c.room, text, session.SendOptions{ReplyTo: outcome.Reply.ID})
		}
	}
	return err
}

func (c *console) onLongPress(res gesture.Result) {
	if err := c.resolve(res, ""); err != nil {
		log.Warn().Err(err).Str("message_id", res.Target.MessageID).Msg("long press failed")
	}
}

func (c *console) printReactors(emoji string, users []string) {
	if len(users) == 0 {
		fmt.Fprintf(c.out, "nobody reacted with %s\n", emoji)
		return
	}
	fmt.Fprintf(c.out, "%s: %s\n", emoji, strings.Join(users, ", "))
}

func (c *console) printMembers(label string, members []models.Member) {
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.DisplayName)
	}
	fmt.Fprintf(c.out, "%s: %s\n", label, strings.Join(names, ", "))
}

func (c *console) printRoom() {
	for _, g := range c.session.Groups(c.room) {
		fmt.Fprintf(c.out, "%s\n", g.AuthorName)
		for _, m := range g.Messages {
			c.printMessage(m)
		}
	}
}

func (c *console) printMessage(m models.Message) {
	prefix := "  "
	switch m.ClientState {
	case models.ClientStatePending:
		prefix = "… "
	case models.ClientStateFailed:
		prefix = "! "
	}

	body := m.VisibleBody()
	if m.IsDeleted() {
		body = "(deleted)"
	}
	if m.ReplyTo != nil {
		body = fmt.Sprintf("[re %s: %s] %s", m.ReplyTo.AuthorName, c.session.ReplyPreview(c.room, m.ReplyTo), body)
	}
	if g := m.VisibleGif(); g != nil {
		body += " " + g.URL
	}

	id := m.ID
	if id == "" {
		id = m.ClientID
	}
	fmt.Fprintf(c.out, "%s%s %s %s", prefix, m.CreatedAt.Local().Format("15:04"), id, body)
	for _, emoji := range m.Reactions.Emojis() {
		fmt.Fprintf(c.out, " %s%d", emoji, m.Reactions.Count(emoji))
	}
	fmt.Fprintln(c.out)
}

func (c *console) printHelp() {
	fmt.Fprint(c.out, `text              send a message
/reply ID text    reply to a message
/react ID EMOJI   toggle a reaction
/delete ID        delete your message
/moderate ID      remove a message as commissioner
/report ID        report a message
/older            load older messages
/retry ID         resend a failed message
/discard ID       drop a failed message
/who ID EMOJI     list who reacted
/swipe ID [text]  swipe to reply
/hold ID EMOJI    long press a reaction
/read, /unread    mark read, refresh unread count
/open ROOM        switch room
/leave            leave the room
/state, /online   show the room, show who is online
/typing           signal a keystroke
/mention PREFIX   member suggestions
/quit
`)
}
