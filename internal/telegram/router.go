package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ArgSpec bounds a command's argument count. Max -1 means unlimited.
type ArgSpec struct {
	Min, Max int
}

// ArgsNone accepts no arguments.
var ArgsNone = ArgSpec{0, 0}

// ArgsAtLeast accepts n or more arguments.
func ArgsAtLeast(n int) ArgSpec { return ArgSpec{n, -1} }

// ArgsUpTo accepts between zero and n arguments.
func ArgsUpTo(n int) ArgSpec { return ArgSpec{0, n} }

func (a ArgSpec) accepts(n int) bool {
	return n >= a.Min && (a.Max < 0 || n <= a.Max)
}

// Attachment is an audio blob on an incoming message.
type Attachment struct {
	FileID          string
	Name            string
	DurationSeconds float64
}

// Invocation is one received command, normalised for handlers.
type Invocation struct {
	ChatID    int64
	ChatType  string
	UserID    int64
	UserName  string
	MessageID int
	Args      []string
	Audio     *Attachment
}

// Handler processes one invocation.
type Handler func(ctx context.Context, inv *Invocation) error

// Command is one registration on the router. The same name may be registered
// more than once with different arities; dispatch picks the first
// registration, in registration order, whose arity accepts the call.
type Command struct {
	// Names are the command's synonyms. The first one is canonical and
	// leads the help entry.
	Names []string

	// Help is the one-line description shown in the help table.
	Help string

	// Args bounds the accepted argument count.
	Args ArgSpec

	// AllowAudio lets a message with an audio attachment satisfy the
	// argument minimum.
	AllowAudio bool

	// Allowed gates who may invoke the command. Nil means everyone.
	Allowed Selector

	// Hidden drops the command from help output.
	Hidden bool

	Handler Handler
}

func (c *Command) answers(name string, argc int, hasAudio bool) bool {
	for _, n := range c.Names {
		if n != name {
			continue
		}
		if c.Args.accepts(argc) {
			return true
		}
		if c.AllowAudio && hasAudio {
			return true
		}
	}
	return false
}

// Callback is one inline-button press.
type Callback struct {
	ID        string
	ChatID    int64
	UserID    int64
	UserName  string
	MessageID int
	Payload   string
}

// CallbackHandler processes one button press.
type CallbackHandler func(ctx context.Context, cb *Callback) error

// Dispatch errors.
var (
	// ErrUnknownCommand is returned for a command no registration answers.
	ErrUnknownCommand = errors.New("telegram: unknown command")

	// ErrDenied is returned when the matching registration's selector
	// rejects the sender.
	ErrDenied = errors.New("telegram: permission denied")

	// ErrUnhandled is returned for updates the router has no interest in.
	ErrUnhandled = errors.New("telegram: unhandled update")
)

// Router dispatches incoming updates to command, callback, and bare-audio
// handlers.
type Router struct {
	commands  []*Command
	callbacks map[string]CallbackHandler
	audio     Handler

	// Membership feeds membership selectors. Nil disables them.
	Membership func(ctx context.Context, chatID, userID int64) (MemberStatus, error)
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{callbacks: map[string]CallbackHandler{}}
}

// Register adds a command registration. Registration order is dispatch
// priority for same-name commands.
func (r *Router) Register(cmd *Command) {
	r.commands = append(r.commands, cmd)
}

// OnCallback registers a handler for callback payloads of the form
// "<prefix>:<rest>".
func (r *Router) OnCallback(prefix string, h CallbackHandler) {
	r.callbacks[prefix] = h
}

// OnAudio registers the handler for plain messages carrying audio.
func (r *Router) OnAudio(h Handler) {
	r.audio = h
}

// Dispatch routes one update. It returns ErrUnhandled for updates the
// router does not consume, ErrUnknownCommand and ErrDenied for their
// respective failures, and otherwise whatever the handler returns.
func (r *Router) Dispatch(ctx context.Context, update tgbotapi.Update) error {
	if cq := update.CallbackQuery; cq != nil {
		return r.dispatchCallback(ctx, cq)
	}
	msg := update.Message
	if msg == nil {
		return ErrUnhandled
	}

	if msg.IsCommand() {
		return r.dispatchCommand(ctx, msg)
	}
	if att := attachmentOf(msg); att != nil && r.audio != nil {
		return r.audio(ctx, invocationOf(msg, nil, att))
	}
	return ErrUnhandled
}

func (r *Router) dispatchCommand(ctx context.Context, msg *tgbotapi.Message) error {
	name := strings.ToLower(msg.Command())
	args := strings.Fields(msg.CommandArguments())
	att := attachmentOf(msg)
	if att == nil && msg.ReplyToMessage != nil {
		// Replying /q to an audio message queues that audio.
		att = attachmentOf(msg.ReplyToMessage)
	}

	var cmd *Command
	known := false
	for _, c := range r.commands {
		if c.answers(name, len(args), att != nil) {
			cmd = c
			break
		}
		for _, n := range c.Names {
			if n == name {
				known = true
			}
		}
	}
	if cmd == nil {
		if known {
			return fmt.Errorf("%w: wrong number of arguments for /%s", ErrUnknownCommand, name)
		}
		return fmt.Errorf("%w: /%s", ErrUnknownCommand, name)
	}

	inv := invocationOf(msg, args, att)
	if cmd.Allowed != nil {
		ok, err := cmd.Allowed.Matches(ctx, r.envOf(inv))
		if err != nil {
			return fmt.Errorf("telegram: evaluate permissions for /%s: %w", name, err)
		}
		if !ok {
			return fmt.Errorf("%w: /%s", ErrDenied, name)
		}
	}
	return cmd.Handler(ctx, inv)
}

func (r *Router) dispatchCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) error {
	prefix, payload, _ := strings.Cut(cq.Data, ":")
	h, ok := r.callbacks[prefix]
	if !ok {
		return fmt.Errorf("%w: callback %q", ErrUnknownCommand, prefix)
	}
	cb := &Callback{
		ID:      cq.ID,
		UserID:  cq.From.ID,
		Payload: payload,
	}
	cb.UserName = displayName(cq.From)
	if cq.Message != nil {
		cb.ChatID = cq.Message.Chat.ID
		cb.MessageID = cq.Message.MessageID
	}
	return h(ctx, cb)
}

func (r *Router) envOf(inv *Invocation) SelectorEnv {
	env := SelectorEnv{
		UserID:   inv.UserID,
		ChatID:   inv.ChatID,
		ChatType: inv.ChatType,
	}
	if r.Membership != nil {
		env.Membership = func(ctx context.Context) (MemberStatus, error) {
			return r.Membership(ctx, inv.ChatID, inv.UserID)
		}
	}
	return env
}

func invocationOf(msg *tgbotapi.Message, args []string, att *Attachment) *Invocation {
	inv := &Invocation{
		ChatID:    msg.Chat.ID,
		ChatType:  msg.Chat.Type,
		MessageID: msg.MessageID,
		Args:      args,
		Audio:     att,
	}
	if msg.From != nil {
		inv.UserID = msg.From.ID
		inv.UserName = displayName(msg.From)
	}
	return inv
}

// attachmentOf extracts the audio blob of a message, if any. Voice notes and
// audio documents count.
func attachmentOf(msg *tgbotapi.Message) *Attachment {
	switch {
	case msg.Audio != nil:
		name := msg.Audio.FileName
		if name == "" {
			name = strings.TrimSpace(msg.Audio.Performer + " " + msg.Audio.Title)
		}
		return &Attachment{
			FileID:          msg.Audio.FileID,
			Name:            name,
			DurationSeconds: float64(msg.Audio.Duration),
		}
	case msg.Voice != nil:
		return &Attachment{
			FileID:          msg.Voice.FileID,
			Name:            "voice message",
			DurationSeconds: float64(msg.Voice.Duration),
		}
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "audio/"):
		return &Attachment{
			FileID: msg.Document.FileID,
			Name:   msg.Document.FileName,
		}
	default:
		return nil
	}
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return "someone"
	}
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Help renders the visible command table as a tree message. Same-name
// registrations merge into one entry listing all synonyms.
func (r *Router) Help() TreeMessage {
	type entry struct {
		names    []string
		helps    []string
		selector Selector
	}
	var order []string
	merged := map[string]*entry{}

	for _, cmd := range r.commands {
		if cmd.Hidden || len(cmd.Names) == 0 {
			continue
		}
		canonical := cmd.Names[0]
		e, ok := merged[canonical]
		if !ok {
			e = &entry{}
			merged[canonical] = e
			order = append(order, canonical)
		}
		for _, n := range cmd.Names {
			if !contains(e.names, n) {
				e.names = append(e.names, n)
			}
		}
		if cmd.Help != "" && !contains(e.helps, cmd.Help) {
			e.helps = append(e.helps, cmd.Help)
		}
		if e.selector == nil {
			e.selector = cmd.Allowed
		}
	}
	sort.Strings(order)

	rows := make(Seq, 0, len(order))
	for _, canonical := range order {
		e := merged[canonical]
		names := make([]string, len(e.names))
		for i, n := range e.names {
			names[i] = "/" + n
		}
		value := Seq{Text(strings.Join(e.helps, "; "))}
		if e.selector != nil {
			value = append(value, Named{Key: "Allowed", Value: Text(e.selector.Describe())})
		}
		rows = append(rows, Named{
			Key:   strings.Join(names, ", "),
			Value: value,
		})
	}
	return Seq{Named{Key: "Commands", Value: rows}}
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
