// File: utils/embedhandler.go

package utils

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/karma-runner/internal/domain/karma"
	"github.com/disgoorg/karma-runner/internal/domain/lifecycle"
	"github.com/disgoorg/karma-runner/internal/domain/runners"
	"github.com/disgoorg/karma-runner/runnerbot/config"
)

// Responder is implemented by command, component and modal events.
type Responder interface {
	CreateMessage(messageCreate discord.MessageCreate, opts ...rest.RequestOpt) error
}

// ResponseHandler provides standardized responses for interactions
type ResponseHandler struct{}

var EH = &ResponseHandler{}

// ErrorType represents different categories of errors for consistent handling
type ErrorType int

const (
	// UserError - User input issues, validation failures, parameter problems
	UserError ErrorType = iota
	// SystemError - Database failures, network issues, internal server errors
	SystemError
	// NotFoundError - Requested resources don't exist
	NotFoundError
	// PermissionError - Unauthorized actions, access denied
	PermissionError
	// BusinessLogicError - Insufficient karma, taken orders, closed offers
	BusinessLogicError
)

func getErrorPrefix(errorType ErrorType) string {
	switch errorType {
	case UserError:
		return "⚠️"
	case SystemError:
		return "🔧"
	case NotFoundError:
		return "🔍"
	case PermissionError:
		return "🚫"
	case BusinessLogicError:
		return "☕"
	default:
		return "❌"
	}
}

func getErrorColor(errorType ErrorType) int {
	switch errorType {
	case UserError, BusinessLogicError:
		return config.WarningColor
	case NotFoundError:
		return config.InfoColor
	default:
		return config.ErrorColor
	}
}

// ClassifyError maps a core error to the message shown to the user.
// Unknown errors are system errors and get a generic message.
func ClassifyError(err error) (ErrorType, string) {
	switch {
	case errors.Is(err, karma.ErrInsufficientFunds):
		return BusinessLogicError, "You don't have enough karma for that. Run a few orders to earn some."
	case errors.Is(err, lifecycle.ErrCategoryBlocked):
		return BusinessLogicError, "Espresso drinks can only be ordered from a runner who offered them."
	case errors.Is(err, lifecycle.ErrUnknownDrink):
		return UserError, "I couldn't tell what kind of drink that is. Pick a category."
	case errors.Is(err, lifecycle.ErrSelfClaim):
		return UserError, "You can't run your own order."
	case errors.Is(err, lifecycle.ErrWrongActor):
		return PermissionError, "Only the person involved in this order can do that."
	case errors.Is(err, lifecycle.ErrAlreadyClaimed):
		return BusinessLogicError, "Someone already claimed this order."
	case errors.Is(err, lifecycle.ErrNotClaimed):
		return BusinessLogicError, "This order hasn't been claimed yet."
	case errors.Is(err, lifecycle.ErrNotPending):
		return BusinessLogicError, "This order is already closed."
	case errors.Is(err, lifecycle.ErrNotFound):
		return NotFoundError, "That order no longer exists."
	case errors.Is(err, lifecycle.ErrOfferContextMissing), errors.Is(err, runners.ErrNotFound):
		return NotFoundError, "That runner offer is gone."
	case errors.Is(err, lifecycle.ErrCapabilityMismatch):
		return UserError, "This runner didn't offer to bring that kind of drink."
	case errors.Is(err, runners.ErrAlreadyMatched):
		return BusinessLogicError, "Someone else already ordered from this runner."
	case errors.Is(err, runners.ErrAlreadyOpen):
		return BusinessLogicError, "You already have an open offer. Withdraw it first."
	case errors.Is(err, runners.ErrInvalidOffer):
		return UserError, "An offer needs some minutes and at least one drink type."
	case errors.Is(err, karma.ErrInvalidCode):
		return UserError, "That code is not valid."
	case errors.Is(err, karma.ErrCodeExists):
		return BusinessLogicError, "A code with that name already exists."
	case errors.Is(err, karma.ErrInvalidAmount):
		return UserError, "The amount must be positive."
	default:
		return SystemError, "Something went wrong. Please try again later."
	}
}

// Reject answers an interaction with an ephemeral error. System errors are
// logged; rejections are expected and are not.
func (h *ResponseHandler) Reject(event Responder, err error) error {
	errorType, message := ClassifyError(err)
	if errorType == SystemError {
		slog.Error("Interaction failed",
			slog.String("type", "error"),
			slog.Any("error", err))
	}
	return h.CreateClassifiedError(event, errorType, message)
}

// CreateClassifiedError creates an ephemeral error response
func (h *ResponseHandler) CreateClassifiedError(event Responder, errorType ErrorType, message string) error {
	return event.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Description: getErrorPrefix(errorType) + " " + message,
			Color:       getErrorColor(errorType),
		}},
		Flags: discord.MessageFlagEphemeral,
	})
}

// CreateUserError creates an error response for user input issues
func (h *ResponseHandler) CreateUserError(event Responder, message string) error {
	return h.CreateClassifiedError(event, UserError, message)
}

// CreatePermissionError creates an error response for unauthorized actions
func (h *ResponseHandler) CreatePermissionError(event Responder, action string) error {
	return h.CreateClassifiedError(event, PermissionError, fmt.Sprintf("You don't have permission to %s", action))
}

// CreateSuccess creates an ephemeral success message
func (h *ResponseHandler) CreateSuccess(event Responder, message string) error {
	return event.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Description: "✅ " + message,
			Color:       config.SuccessColor,
		}},
		Flags: discord.MessageFlagEphemeral,
	})
}

// CreateInfoEmbed creates a public info embed
func (h *ResponseHandler) CreateInfoEmbed(event Responder, title, message string) error {
	return event.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Title:       title,
			Description: message,
			Color:       config.InfoColor,
		}},
	})
}
