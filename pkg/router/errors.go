package router

import "errors"

var (
	ErrMissingCredentials = errors.New("router: token and client id are required")
	ErrNotReady           = errors.New("router: connection not ready")
	ErrChannelNotFound    = errors.New("router: channel not found")
	ErrNotTextChannel     = errors.New("router: channel is not text based")
	ErrGuildNotFound      = errors.New("router: guild not found")
	ErrMemberNotFound     = errors.New("router: guild member not found")
	ErrUnknownAction      = errors.New("router: unknown action type")
	ErrInvalidPattern     = errors.New("router: invalid message pattern")
	ErrInvalidListener    = errors.New("router: invalid listener")
	ErrInvalidAttachment  = errors.New("router: invalid attachment")
)
