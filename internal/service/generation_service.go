package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Romainl01/photobooth-backend/internal/gemini"
	"github.com/Romainl01/photobooth-backend/internal/models"
	"github.com/Romainl01/photobooth-backend/internal/repository"
	"github.com/Romainl01/photobooth-backend/internal/styles"
)

var (
	ErrProfileNotFound     = errors.New("profile not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrEmptyImage          = errors.New("image is required")
	ErrUnknownStyle        = errors.New("unknown style")
)

// DebitFailedError is the consistency failure: the provider produced an
// image but the debit procedure errored. The image is withheld from the
// caller and the incident id points at the archived copy.
type DebitFailedError struct {
	IncidentID string
	Err        error
}

func (e *DebitFailedError) Error() string {
	return fmt.Sprintf("debit failed after successful generation (incident %s): %v", e.IncidentID, e.Err)
}

func (e *DebitFailedError) Unwrap() error { return e.Err }

// ProfileReader is the read side the gateway needs for its advisory
// balance pre-check.
type ProfileReader interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
}

// DebitLedger is the atomic debit procedure. It is the sole enforcement of
// the non-negative balance; the pre-check in Generate is advisory only.
type DebitLedger interface {
	DebitCredit(ctx context.Context, profileID, reason string) (int, error)
}

// ImageGenerator produces a stylized image or a typed provider failure.
type ImageGenerator interface {
	Stylize(ctx context.Context, prompt, imageBase64, mimeType string) (*gemini.Image, error)
}

// ImageArchiver parks an undelivered image for manual reconciliation.
type ImageArchiver interface {
	Archive(ctx context.Context, incidentID string, data []byte, contentType string) (string, error)
}

// Alerter notifies an operator about a consistency failure.
type Alerter interface {
	Notify(ctx context.Context, text string) error
}

type GenerationService struct {
	log       *slog.Logger
	profiles  ProfileReader
	ledger    DebitLedger
	generator ImageGenerator
	archive   ImageArchiver // optional
	alerts    Alerter       // optional
}

type GenerateInput struct {
	AccountID string
	Style     string
	Image     string // data URI or bare base64
}

type GenerateOutput struct {
	Image   string // data URI
	Credits int    // post-debit balance, authoritative
}

func NewGenerationService(log *slog.Logger, profiles ProfileReader, ledger DebitLedger, generator ImageGenerator, archive ImageArchiver, alerts Alerter) *GenerationService {
	return &GenerationService{
		log:       log,
		profiles:  profiles,
		ledger:    ledger,
		generator: generator,
		archive:   archive,
		alerts:    alerts,
	}
}

// Generate runs the paid generation pipeline. A credit is debited only
// after the provider returned a usable image; every failure before that
// point leaves the balance untouched, and a debit failure after that point
// withholds the image rather than giving it away.
func (s *GenerationService) Generate(ctx context.Context, in GenerateInput) (*GenerateOutput, error) {
	profile, err := s.profiles.FindByID(ctx, in.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	if profile.Credits < 1 {
		return nil, ErrInsufficientCredits
	}

	if in.Image == "" {
		return nil, ErrEmptyImage
	}
	prompt, ok := styles.Prompt(in.Style)
	if !ok {
		return nil, ErrUnknownStyle
	}

	imageData, mimeType := gemini.ParseImagePayload(in.Image)
	image, err := s.generator.Stylize(ctx, prompt, imageData, mimeType)
	if err != nil {
		// Typed provider failures pass through untouched; no debit happened.
		return nil, err
	}

	balance, err := s.ledger.DebitCredit(ctx, in.AccountID, in.Style)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientCredits) {
			// Lost the race to a concurrent request. The image is withheld;
			// the caller was not charged.
			return nil, ErrInsufficientCredits
		}
		return nil, s.handleDebitFailure(ctx, in, image, err)
	}

	return &GenerateOutput{
		Image:   fmt.Sprintf("data:%s;base64,%s", image.Mime, image.Data),
		Credits: balance,
	}, nil
}

// handleDebitFailure is the fail-closed boundary. The generated image is
// never returned uncharged; it is archived under an incident id and an
// operator is alerted, because no automatic recovery is safe here.
func (s *GenerationService) handleDebitFailure(ctx context.Context, in GenerateInput, image *gemini.Image, debitErr error) error {
	incidentID := uuid.NewString()
	s.log.Error("debit failed after successful generation, withholding image",
		"incident_id", incidentID,
		"account_id", in.AccountID,
		"style", in.Style,
		"err", debitErr,
	)

	if s.archive != nil {
		if raw, err := base64.StdEncoding.DecodeString(image.Data); err == nil {
			if key, err := s.archive.Archive(ctx, incidentID, raw, image.Mime); err != nil {
				s.log.Error("archive undelivered image", "incident_id", incidentID, "err", err)
			} else {
				s.log.Info("undelivered image archived", "incident_id", incidentID, "key", key)
			}
		} else {
			s.log.Error("decode undelivered image", "incident_id", incidentID, "err", err)
		}
	}

	if s.alerts != nil {
		text := fmt.Sprintf("Debit failed after successful generation.\nIncident: %s\nAccount: %s\nStyle: %s\nError: %v\nThe user was not charged and did not receive the image.",
			incidentID, in.AccountID, in.Style, debitErr)
		if err := s.alerts.Notify(ctx, text); err != nil {
			s.log.Error("send debit failure alert", "incident_id", incidentID, "err", err)
		}
	}

	return &DebitFailedError{IncidentID: incidentID, Err: debitErr}
}
