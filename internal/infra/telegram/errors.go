package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-telegram/bot"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
)

// classify wraps a Bot API error into *domain.DeliveryError
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	de := &domain.DeliveryError{Op: op, Err: err}

	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		de.Kind = domain.DeliveryRateLimited
		de.RetryAfter = time.Duration(tooMany.RetryAfter) * time.Second
		return de
	}

	desc := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, bot.ErrorForbidden), errors.Is(err, bot.ErrorUnauthorized):
		de.Kind = domain.DeliveryForbidden
	case errors.Is(err, bot.ErrorNotFound):
		de.Kind = domain.DeliveryNotFound
	case errors.Is(err, bot.ErrorBadRequest):
		de.Kind = badRequestKind(desc)
	case errors.Is(err, context.Canceled):
		de.Kind = domain.DeliveryRejected
	default:
		// Network failures and 5xx responses
		de.Kind = domain.DeliveryTransient
	}
	return de
}

func badRequestKind(desc string) domain.DeliveryKind {
	switch {
	case strings.Contains(desc, "message can't be edited"):
		return domain.DeliveryTooOld
	case strings.Contains(desc, "not found"):
		// message to edit/delete/copy not found, chat not found, thread not found
		return domain.DeliveryNotFound
	case strings.Contains(desc, "bot was blocked"), strings.Contains(desc, "not enough rights"):
		return domain.DeliveryForbidden
	}
	return domain.DeliveryRejected
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}
