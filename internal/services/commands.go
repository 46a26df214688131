package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"

	"github.com/tbourn/go-memes-bot/internal/domain"
	"github.com/tbourn/go-memes-bot/internal/platform"
	"github.com/tbourn/go-memes-bot/internal/sysutil"
)

// Command names, compared case-insensitively.
const (
	CmdGetThreshold = "get-threshold"
	CmdSetThreshold = "set-threshold"
)

// CommandHandler answers admin chat commands such as "!set-threshold 5".
// Reading the threshold is open to everyone; changing it requires one of
// AdminRoleIDs. With no admin roles configured nobody may change it from
// chat.
type CommandHandler struct {
	Thresholds   *ThresholdService
	Client       platform.Client
	Prefix       string
	AdminRoleIDs []string

	log zerolog.Logger
}

// NewCommandHandler returns a handler for prefix (default "!").
func NewCommandHandler(th *ThresholdService, client platform.Client, prefix string, adminRoles []string) *CommandHandler {
	if prefix == "" {
		prefix = "!"
	}
	return &CommandHandler{
		Thresholds:   th,
		Client:       client,
		Prefix:       prefix,
		AdminRoleIDs: adminRoles,
		log:          sysutil.Component("commands"),
	}
}

// IsCommand reports whether post addresses one of the bot's commands.
func (h *CommandHandler) IsCommand(post domain.Post) bool {
	name, _, ok := h.parse(post.Content)
	return ok && (name == CmdGetThreshold || name == CmdSetThreshold)
}

// Handle executes the command in post and replies in the same channel.
// It reports whether post was a command.
func (h *CommandHandler) Handle(ctx context.Context, post domain.Post) bool {
	reply, err := h.Execute(ctx, post)
	if errors.Is(err, ErrUnknownCommand) {
		return false
	}
	if err != nil {
		h.log.Warn().Err(err).Str("post_id", post.ID).Str("author_id", post.Author.ID).Msg("command rejected")
	}
	if err := h.Client.SendMessage(ctx, post.ChannelID, reply); err != nil {
		h.log.Error().Err(err).Str("channel_id", post.ChannelID).Msg("command reply failed")
	}
	return true
}

// Execute runs the command and returns the reply text. The reply is set
// even when err is non-nil, except for ErrUnknownCommand.
func (h *CommandHandler) Execute(ctx context.Context, post domain.Post) (string, error) {
	name, args, ok := h.parse(post.Content)
	if !ok {
		return "", ErrUnknownCommand
	}
	switch name {
	case CmdGetThreshold:
		n, err := h.Thresholds.Get(ctx)
		if err != nil {
			return "Could not read the threshold right now, try again later.", err
		}
		return fmt.Sprintf("Current repost threshold: %d unique reactors.", n), nil

	case CmdSetThreshold:
		if !h.isAdmin(post) {
			return "You are not allowed to change the threshold.", ErrForbidden
		}
		if len(args) != 1 {
			return fmt.Sprintf("Usage: %s%s <positive number>", h.Prefix, CmdSetThreshold), ErrInvalidThreshold
		}
		n, err := h.Thresholds.Set(ctx, args[0])
		switch {
		case errors.Is(err, ErrInvalidThreshold):
			return fmt.Sprintf("%q is not a positive whole number.", args[0]), err
		case err != nil:
			return "Could not save the threshold right now, try again later.", err
		}
		h.log.Info().Int("threshold", n).Str("by", post.Author.ID).Msg("threshold changed")
		return fmt.Sprintf("Repost threshold set to %d unique reactors.", n), nil
	}
	return "", ErrUnknownCommand
}

func (h *CommandHandler) parse(content string) (name string, args []string, ok bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, h.Prefix) {
		return "", nil, false
	}
	fields := strings.Fields(content[len(h.Prefix):])
	if len(fields) == 0 {
		return "", nil, false
	}
	// Casers are stateful, so one per call.
	return cases.Fold().String(fields[0]), fields[1:], true
}

func (h *CommandHandler) isAdmin(post domain.Post) bool {
	for _, want := range h.AdminRoleIDs {
		for _, have := range post.MemberRoles {
			if want == have {
				return true
			}
		}
	}
	return false
}
