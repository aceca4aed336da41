package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/commerce-router/internal/service/conversation"
)

var (
	// ErrInvalidRequest is returned for an empty user id or message. It is the
	// only error Route returns; everything else is a user-visible reply.
	ErrInvalidRequest = errors.New("invalid route request")

	// ErrUnsupportedIntent means the message maps to no registered service.
	ErrUnsupportedIntent = errors.New("unsupported intent")

	// ErrSessionCreateFailed means the session store rejected a new session.
	ErrSessionCreateFailed = errors.New("session create failed")

	// ErrCompletionFailed aliases the engine's error so callers need only this package.
	ErrCompletionFailed = conversation.ErrCompletionFailed
)

const scopeText = "I specialize in commerce services like ordering food, booking rides, etc. " +
	"For general questions, please use the main assistant."

func unsupportedServiceText(tag string, available []string) string {
	return fmt.Sprintf("Sorry, I don't support '%s' yet. Available services: %s", tag, strings.Join(available, ", "))
}

func createFailedText(tag string) string {
	return fmt.Sprintf("Sorry, I couldn't create a session for %s. Please try again.", tag)
}

func completionFailedText(tag string) string {
	return fmt.Sprintf("Sorry, I encountered an error with %s. Please try again.", tag)
}
