package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/varden/recover/internal/recover/store"
	"github.com/varden/recover/pkg/cryptox"
	"github.com/varden/recover/pkg/slogx"
)

// noncePrefix scopes nonce keys inside the shared KV store.
const noncePrefix = "sms-nonce:"

// ErrInvalidNonce reports a missing, expired or mismatched one-time code.
// All three collapse to one error so the caller cannot distinguish "wrong
// code" from "no code outstanding".
var ErrInvalidNonce = errors.New("invalid nonce")

// NonceService issues and checks the short-lived one-time codes sent over
// SMS. At most one code is outstanding per identifier; issuing a new one
// overwrites the old.
type NonceService struct {
	Store  store.KV
	Length int
	TTL    time.Duration
}

// Issue generates a fresh code for the identifier and stores it with the
// configured TTL, replacing any previous code.
func (s *NonceService) Issue(ctx context.Context, identifier string) (string, error) {
	length := s.Length
	if length <= 0 {
		length = cryptox.DefaultCodeLength
	}

	code, err := cryptox.GenerateCode(length)
	if err != nil {
		return "", err
	}

	if err := s.Store.Set(ctx, noncePrefix+identifier, code, s.TTL); err != nil {
		return "", err
	}

	slogx.FromContext(ctx).Info("nonce issued", slog.Duration("ttl", s.TTL))
	return code, nil
}

// Check compares the candidate against the outstanding code for the
// identifier. On success the code is cleared so it cannot be replayed; on
// failure it stays in place and keeps its original TTL.
func (s *NonceService) Check(ctx context.Context, identifier, candidate string) error {
	stored, err := s.Store.Get(ctx, noncePrefix+identifier)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidNonce
	}
	if err != nil {
		return err
	}

	if !cryptox.EqualCodes(stored, candidate) {
		return ErrInvalidNonce
	}

	// Best effort; an expired leftover is harmless once verified.
	if err := s.Store.Delete(ctx, noncePrefix+identifier); err != nil {
		slogx.FromContext(ctx).Warn("failed to clear verified nonce", slog.String("error", err.Error()))
	}
	return nil
}

// Clear removes any outstanding code for the identifier.
func (s *NonceService) Clear(ctx context.Context, identifier string) error {
	return s.Store.Delete(ctx, noncePrefix+identifier)
}
