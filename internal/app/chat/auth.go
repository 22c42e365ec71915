package chat

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"linechat/internal/app/message"
	"linechat/internal/app/protocol"
	"linechat/internal/app/store"
	"linechat/internal/app/user"
	"linechat/internal/pkg/errs"
	"linechat/internal/pkg/randx"
)

const (
	flowRegister   = "register"
	flowEmailLogin = "email_login"

	// guestFallbackName is used when CONNECT carries no name.
	guestFallbackName = "User"

	maxNameLength = 32
)

// reservedNames collide with wire keywords and cannot be claimed.
var reservedNames = map[string]struct{}{
	strings.ToLower(message.PublicTarget): {},
	strings.ToLower(message.SystemSender): {},
	strings.ToLower(protocol.EchoSender):  {},
}

type registerRequest struct {
	Username string `validate:"required,max=32,chatname"`
	Password string `validate:"required,max=72"`
	Email    string `validate:"required,email"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("chatname", func(fl validator.FieldLevel) bool {
		return isValidName(fl.Field().String())
	})
	return v
}

// isValidName rejects reserved names and characters that would break frame parsing.
func isValidName(name string) bool {
	if name == "" || len(name) > maxNameLength {
		return false
	}
	if _, reserved := reservedNames[strings.ToLower(name)]; reserved {
		return false
	}
	return !strings.ContainsFunc(name, func(r rune) bool {
		return r == ':' || unicode.IsSpace(r) || unicode.IsControl(r)
	})
}

// pendingAuth is the tagged union of in-progress authentication flows.
type pendingAuth interface {
	flow() string
}

// checkOnlyAuth marks a connection used to validate credentials without joining.
type checkOnlyAuth struct {
	username string
}

// registrationAuth holds an account awaiting email confirmation.
type registrationAuth struct {
	account   user.Account
	challenge otpChallenge
}

// emailLoginAuth holds a passwordless login awaiting its code.
type emailLoginAuth struct {
	email     string
	username  string
	challenge otpChallenge
}

func (*checkOnlyAuth) flow() string    { return "check_only" }
func (*registrationAuth) flow() string { return flowRegister }
func (*emailLoginAuth) flow() string   { return flowEmailLogin }

// otpChallenge is one issued code with its bookkeeping.
type otpChallenge struct {
	code     string
	issuedAt time.Time
	attempts int
}

// verify checks candidate. A non-nil error with done set means the challenge is spent.
func (c *otpChallenge) verify(candidate string, now time.Time, ttl time.Duration, maxAttempts int) (err *errs.CustomError, done bool) {
	if now.Sub(c.issuedAt) > ttl {
		return errs.NewError(errs.ErrOTPExpired), true
	}

	if randx.IsValidOTP(candidate) && subtle.ConstantTimeCompare([]byte(c.code), []byte(candidate)) == 1 {
		return nil, true
	}

	c.attempts++
	if c.attempts >= maxAttempts {
		return errs.NewError(errs.ErrOTPAttemptsExceeded), true
	}
	return errs.NewError(errs.ErrInvalidOTP), false
}

// handleAuthCommand handles commands of a session that has not joined yet.
func (s *Session) handleAuthCommand(cmd protocol.Command) {
	switch cmd.Verb {
	case protocol.VerbLogin:
		s.login(cmd.Arg(0), cmd.Arg(1))

	case protocol.VerbCheckLogin:
		s.checkOnly(cmd.Arg(0), cmd.Arg(1))

	case protocol.VerbRegister:
		s.register(cmd.Arg(0), cmd.Arg(1), cmd.Arg(2))

	case protocol.VerbVerifyOTP:
		s.verifyRegistration(cmd.Arg(0))

	case protocol.VerbRequestOTP:
		s.requestEmailLogin(cmd.Arg(0))

	case protocol.VerbVerifyLoginOTP:
		s.verifyEmailLogin(cmd.Arg(0), cmd.Arg(1))

	case protocol.VerbConnect:
		s.connectGuest(cmd.Text)

	case protocol.VerbChat:
		if strings.TrimSpace(cmd.Text) == "" {
			return
		}
		s.sendError(errs.NewError(errs.ErrNotLoggedIn))

	default:
		s.sendError(errs.NewError(errs.ErrNotLoggedIn))
	}
}

// lookup resolves credentials. ok is false when the reply has already been sent.
func (s *Session) lookup(username, password string) (user.Account, bool) {
	ctx, cancel := s.mgr.storeContext()
	defer cancel()

	account, err := s.mgr.store.LookupByCredentials(ctx, username, password)
	switch {
	case err == nil:
		return account, true
	case errors.Is(err, store.ErrNotFound):
		s.mgr.metrics.AuthFailures.WithLabelValues("bad_credentials").Inc()
		s.logger.Info().Msg("Login failed.")
		s.deliver(message.NewEvent(message.KindLoginFail, ""))
	default:
		s.sendStoreError(err, "Failed to look up credentials.")
	}
	return user.Account{}, false
}

func (s *Session) login(username, password string) {
	account, ok := s.lookup(username, password)
	if !ok {
		return
	}

	s.join(account.Username, message.KindLoginSuccess, nil)
}

func (s *Session) checkOnly(username, password string) {
	account, ok := s.lookup(username, password)
	if !ok {
		return
	}

	s.pending = &checkOnlyAuth{username: account.Username}
	s.deliver(message.NewEvent(message.KindLoginSuccess, account.Username))
}

func (s *Session) register(username, password, email string) {
	req := registerRequest{Username: username, Password: password, Email: email}
	if err := s.mgr.validate.Struct(req); err != nil {
		s.logger.Info().Err(err).Msg("Registration rejected by validation.")
		s.sendError(errs.NewError(errs.ErrInvalidRegistration))
		return
	}

	if _, online := s.mgr.registry.FindByName(username); online {
		s.sendError(errs.NewError(errs.ErrUserExists))
		return
	}

	ctx, cancel := s.mgr.storeContext()
	exists, err := s.mgr.store.UsernameExists(ctx, username)
	cancel()
	if err != nil {
		s.sendStoreError(err, "Failed to check username.")
		return
	}
	if exists {
		s.sendError(errs.NewError(errs.ErrUserExists))
		return
	}

	challenge, ok := s.issueCode(flowRegister, email)
	if !ok {
		return
	}

	s.pending = &registrationAuth{
		account:   user.Account{Username: username, Password: password, Email: email},
		challenge: challenge,
	}
	s.deliver(message.NewEvent(message.KindOTPRequested, ""))
}

func (s *Session) verifyRegistration(code string) {
	pending, ok := s.pending.(*registrationAuth)
	if !ok {
		s.sendError(errs.NewError(errs.ErrNoPendingOTP))
		return
	}

	if !s.verifyChallenge(&pending.challenge, code) {
		return
	}

	ctx, cancel := s.mgr.storeContext()
	err := s.mgr.store.CreateAccount(ctx, pending.account)
	cancel()
	switch {
	case errors.Is(err, store.ErrUserExists):
		s.sendError(errs.NewError(errs.ErrUserExists))
		return
	case err != nil:
		s.sendStoreError(err, "Failed to create account.")
		return
	}

	s.logger.Info().Str("new_account", pending.account.Username).Msg("Account registered.")
	s.deliver(message.NewEvent(message.KindLoginSuccess, ""))
}

func (s *Session) requestEmailLogin(email string) {
	ctx, cancel := s.mgr.storeContext()
	account, err := s.mgr.store.LookupByEmail(ctx, email)
	cancel()
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.mgr.metrics.AuthFailures.WithLabelValues("email_not_found").Inc()
		s.sendError(errs.NewError(errs.ErrEmailNotFound))
		return
	case err != nil:
		s.sendStoreError(err, "Failed to look up email.")
		return
	}

	challenge, ok := s.issueCode(flowEmailLogin, email)
	if !ok {
		return
	}

	s.pending = &emailLoginAuth{
		email:     email,
		username:  account.Username,
		challenge: challenge,
	}
	s.deliver(message.NewEvent(message.KindOTPSent, ""))
}

func (s *Session) verifyEmailLogin(email, code string) {
	pending, ok := s.pending.(*emailLoginAuth)
	if !ok || !strings.EqualFold(pending.email, email) {
		s.sendError(errs.NewError(errs.ErrNoPendingOTP))
		return
	}

	if !s.verifyChallenge(&pending.challenge, code) {
		return
	}

	s.join(pending.username, message.KindLoginSuccess, nil)
}

func (s *Session) connectGuest(name string) {
	if !s.mgr.config.AllowGuests {
		s.sendError(errs.NewError(errs.ErrGuestsDisabled))
		return
	}

	if name == "" {
		name = guestFallbackName
	}
	if !isValidName(name) {
		s.sendError(errs.NewError(errs.ErrInvalidName))
		return
	}

	ctx, cancel := s.mgr.storeContext()
	accounts, err := s.mgr.store.ListAllUsernames(ctx)
	cancel()
	if err != nil {
		s.sendStoreError(err, "Failed to check guest name.")
		return
	}

	registered := lo.SliceToMap(accounts, func(account string) (string, struct{}) {
		return strings.ToLower(account), struct{}{}
	})
	isAccount := func(candidate string) bool {
		_, ok := registered[strings.ToLower(candidate)]
		return ok
	}
	if isAccount(name) {
		s.sendError(errs.NewError(errs.ErrUserExists))
		return
	}

	s.pending = nil
	s.join(name, message.KindConnected, isAccount)
}

// issueCode generates a code and hands it to the dispatcher.
func (s *Session) issueCode(flow, email string) (otpChallenge, bool) {
	code, err := randx.OTPCode()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate one-time code.")
		s.sendError(errs.NewError(errs.ErrUnknown))
		return otpChallenge{}, false
	}

	outcome := "queued"
	if !s.mgr.codes.Dispatch(flow, email, code) {
		outcome = "dropped"
		s.logger.Warn().Str("flow", flow).Msg("One-time code could not be queued for delivery.")
	}
	s.mgr.metrics.CodesQueued.WithLabelValues(flow, outcome).Inc()

	return otpChallenge{code: code, issuedAt: s.mgr.now()}, true
}

// verifyChallenge checks code against c, clearing the pending flow once the challenge is spent.
func (s *Session) verifyChallenge(c *otpChallenge, code string) bool {
	cfg := s.mgr.config

	verr, done := c.verify(code, s.mgr.now(), cfg.OTPTTL, cfg.OTPMaxAttempts)
	if done {
		s.pending = nil
	}
	if verr != nil {
		s.mgr.metrics.AuthFailures.WithLabelValues(verr.Reason).Inc()
		s.sendError(verr)
		return false
	}
	return true
}
