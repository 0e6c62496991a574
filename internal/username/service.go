package username

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tbcrypto "github.com/tippinbit/tippind/internal/crypto"
	"github.com/tippinbit/tippind/internal/domain"
)

// ClaimRequest is the payload of a claim attempt. Message is the exact text
// the wallet signed; the service rejects it unless it matches the canonical
// action message for the requested name.
type ClaimRequest struct {
	Username        string
	WalletAddress   string
	Message         string
	Signature       string
	ThankYouMessage string
}

// Notifier delivers operator notifications for successful claims.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Service validates, authenticates and persists username claims, and
// resolves lookups.
type Service struct {
	store    domain.UsernameStore
	notifier Notifier
	logger   *slog.Logger
}

// NewService creates a Service backed by the given registry. notifier is
// optional.
func NewService(store domain.UsernameStore, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "username")),
	}
}

// ClaimMessage returns the exact text a wallet must sign to claim name.
func ClaimMessage(name string) string {
	return tbcrypto.ActionMessage("am claiming @" + name)
}

// Claim records a username for a wallet. Validation failures return
// ErrInvalidInput, a bad signature returns ErrUnauthorized, and a taken name
// returns ErrAlreadyExists.
func (s *Service) Claim(ctx context.Context, req ClaimRequest) (domain.ClaimedUsername, error) {
	name := Normalize(req.Username)
	if err := Validate(name); err != nil {
		return domain.ClaimedUsername{}, err
	}
	if err := ValidateAddress(req.WalletAddress); err != nil {
		return domain.ClaimedUsername{}, err
	}

	expected := ClaimMessage(name)
	if req.Message != expected {
		return domain.ClaimedUsername{}, fmt.Errorf("username: unexpected signed message: %w", domain.ErrUnauthorized)
	}
	if !tbcrypto.VerifyPersonalSignature(req.Message, req.Signature, req.WalletAddress) {
		return domain.ClaimedUsername{}, fmt.Errorf("username: signature does not match wallet: %w", domain.ErrUnauthorized)
	}

	claim := domain.ClaimedUsername{
		Username:        name,
		WalletAddress:   req.WalletAddress,
		ClaimedAt:       time.Now().UTC(),
		ThankYouMessage: SanitizeMessage(req.ThankYouMessage),
	}

	if err := s.store.Claim(ctx, claim); err != nil {
		return domain.ClaimedUsername{}, err
	}

	s.logger.InfoContext(ctx, "username claimed",
		slog.String("username", name),
		slog.String("wallet", req.WalletAddress),
	)

	if s.notifier != nil {
		body := fmt.Sprintf("@%s claimed by %s", name, req.WalletAddress)
		if err := s.notifier.Notify(ctx, "username_claimed", "Username claimed", body); err != nil {
			s.logger.Warn("claim notification failed", slog.String("error", err.Error()))
		}
	}
	return claim, nil
}

// Lookup resolves a username (with or without leading "@") to its record.
func (s *Service) Lookup(ctx context.Context, name string) (domain.ClaimedUsername, error) {
	normalized := Normalize(name)
	if err := Validate(normalized); err != nil {
		return domain.ClaimedUsername{}, err
	}
	return s.store.Get(ctx, normalized)
}
