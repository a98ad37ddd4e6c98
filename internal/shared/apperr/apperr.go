// Package apperr define a taxonomia de erros do core de apostas.
// Todo erro carrega um Kind estável (legível por máquina) e uma mensagem humana.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

// Autenticação
const (
	ExpiredCredential Kind = "expired_credential"
	InvalidCredential Kind = "invalid_credential"
	UnknownUser       Kind = "unknown_user"
)

// Validação
const (
	MarketSuspended     Kind = "market_suspended"
	InvalidStake        Kind = "invalid_stake"
	OddsChanged         Kind = "odds_changed"
	InsufficientBalance Kind = "insufficient_balance"
	InvalidSubmission   Kind = "invalid_submission" // payload incompleto na borda
)

// Persistência
const (
	Duplicate   Kind = "duplicate"
	Timeout     Kind = "timeout"
	Unavailable Kind = "unavailable"
	NotFound    Kind = "not_found"
)

const Internal Kind = "internal"

// AlreadyProcessed é o resultado de uma submissão repetida (mesma chave de idempotência)
const AlreadyProcessed Kind = "already_processed"

// Error implementa error; errors.Is(err, apperr.OddsChanged) compara pelo Kind
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

// Kind também é um error, o que permite errors.Is(err, apperr.Timeout)
func (k Kind) Error() string { return string(k) }

func New(k Kind, msg string) *Error { return &Error{Kind: k, Message: msg} }

func Wrap(k Kind, msg string, err error) *Error { return &Error{Kind: k, Message: msg, Err: err} }

// KindOf retorna o Kind do primeiro *Error da cadeia; erros desconhecidos viram Internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	return Internal
}

// MessageOf retorna a mensagem humana, sem detalhes internos
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// FromContext traduz erros de contexto em Timeout; ctx cancelado pelo chamador vira Unavailable
func FromContext(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(Timeout, op+" timed out", err)
	case errors.Is(err, context.Canceled):
		return Wrap(Unavailable, op+" canceled", err)
	}
	return err
}

func IsAuth(k Kind) bool {
	return k == ExpiredCredential || k == InvalidCredential || k == UnknownUser
}

func IsValidation(k Kind) bool {
	switch k {
	case MarketSuspended, InvalidStake, OddsChanged, InsufficientBalance, InvalidSubmission:
		return true
	}
	return false
}
