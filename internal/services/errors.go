// Package services holds the repost pipeline: meme classification, reaction
// aggregation, the repost decision engine, the backfill scanner, the event
// dispatcher and the administrative threshold surface.
//
// Errors returned here are translated into chat replies or HTTP responses
// by the caller; services never format user-facing text for transports
// other than chat commands.
package services

import (
	"errors"

	"github.com/tbourn/go-memes-bot/internal/settings"
)

var (
	// ErrInvalidThreshold is returned when a threshold is not a positive
	// integer. It is the same value the settings store returns, so either
	// name matches with errors.Is.
	ErrInvalidThreshold = settings.ErrInvalidThreshold

	// ErrForbidden is returned when a chat command is issued by a member
	// without an admin role.
	ErrForbidden = errors.New("not allowed to manage the bot")

	// ErrUnknownCommand marks a prefixed message that names no command.
	ErrUnknownCommand = errors.New("unknown command")
)
