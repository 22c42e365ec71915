/*
Package protocol implements the newline-delimited wire format spoken by chat clients.

Inbound lines are either bare chat text or a command introduced by ClientPrefix. Outbound frames
are always introduced by ServerPrefix. Parsing happens once per line at the session boundary and
encoding happens once per recipient; nothing inside the server re-parses a rendered frame.
*/
package protocol

import (
	"strings"

	"linechat/internal/pkg/errs"
)

const (
	// ClientPrefix introduces every client command line.
	ClientPrefix = "[CLIENT] "

	// ServerPrefix introduces every server frame.
	ServerPrefix = "[SERVER] "
)

// Verb names a client command.
type Verb string

const (
	// VerbChat is a bare line sent without ClientPrefix.
	VerbChat Verb = "CHAT"

	VerbLogin          Verb = "LOGIN"
	VerbCheckLogin     Verb = "CHECK_LOGIN"
	VerbRegister       Verb = "REGISTER"
	VerbVerifyOTP      Verb = "VERIFY_OTP"
	VerbRequestOTP     Verb = "REQ_LOGIN_OTP"
	VerbVerifyLoginOTP Verb = "VERIFY_LOGIN_OTP"
	VerbPM             Verb = "PM"
	VerbUsers          Verb = "USERS"
	VerbQuit           Verb = "QUIT"

	// VerbConnect is the legacy guest join.
	VerbConnect Verb = "CONNECT"
)

// fixedArity lists the commands whose arguments are whitespace separated tokens of a known count.
var fixedArity = map[Verb]int{
	VerbLogin:          2,
	VerbCheckLogin:     2,
	VerbRegister:       3,
	VerbVerifyOTP:      1,
	VerbRequestOTP:     1,
	VerbVerifyLoginOTP: 2,
	VerbUsers:          0,
	VerbQuit:           0,
}

// Command is one parsed inbound line.
type Command struct {
	Verb Verb

	// Args holds the positional tokens of fixed-arity commands, and the target of a PM.
	Args []string

	// Text holds free-form content: the chat line, the PM body, or the CONNECT name.
	Text string
}

// Arg returns the i-th positional argument or an empty string.
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// Parse turns one inbound line into a Command.
// A trailing carriage return is ignored. Command keywords are matched case-insensitively.
func Parse(line string) (Command, *errs.CustomError) {
	line = strings.TrimSuffix(line, "\r")

	if !strings.HasPrefix(line, ClientPrefix) {
		return Command{Verb: VerbChat, Text: line}, nil
	}

	rest := strings.TrimLeft(line[len(ClientPrefix):], " ")
	keyword, tail, _ := strings.Cut(rest, " ")
	verb := Verb(strings.ToUpper(keyword))

	switch verb {
	case VerbPM:
		return parsePrivate(tail)

	case VerbConnect:
		return Command{Verb: VerbConnect, Text: strings.TrimSpace(tail)}, nil
	}

	arity, ok := fixedArity[verb]
	if !ok {
		return Command{}, errs.NewError(errs.ErrUnknownCommand)
	}

	args := strings.Fields(tail)
	if len(args) != arity {
		return Command{}, errs.NewError(errs.ErrMalformedCommand, string(verb))
	}

	return Command{Verb: verb, Args: args}, nil
}

// parsePrivate splits "target body..." keeping the body verbatim.
func parsePrivate(tail string) (Command, *errs.CustomError) {
	target, body, _ := strings.Cut(strings.TrimLeft(tail, " "), " ")
	if target == "" || strings.TrimSpace(body) == "" {
		return Command{}, errs.NewError(errs.ErrBadPrivateMessage)
	}

	return Command{Verb: VerbPM, Args: []string{target}, Text: body}, nil
}
