package webhook

import (
	"context"
	"strconv"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/domails/interfaces"
	"github.com/customeros/domails/internal/config"
	domailsErrors "github.com/customeros/domails/internal/errors"
	"github.com/customeros/domails/internal/logger"
	"github.com/customeros/domails/internal/models"
	"github.com/customeros/domails/internal/tracing"
	"github.com/customeros/domails/internal/utils"
)

type validator struct {
	log        logger.Logger
	signingKey string
	maxAge     time.Duration
	replayTTL  time.Duration
	replay     ReplayCache
	now        func() time.Time
}

// NewValidator checks signature, age and token reuse of provider webhooks.
// replay may be nil to skip the reuse check.
func NewValidator(log logger.Logger, signingKey string, cfg *config.WebhookConfig, replay ReplayCache) interfaces.WebhookValidator {
	return &validator{
		log:        log,
		signingKey: signingKey,
		maxAge:     cfg.MaxAge,
		replayTTL:  cfg.ReplayTTL,
		replay:     replay,
		now:        utils.Now,
	}
}

func (v *validator) Verify(ctx context.Context, sig models.WebhookSignature) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "WebhookValidator.Verify")
	defer span.Finish()
	tracing.TagComponentWebhook(span)

	if sig.Timestamp == "" || sig.Token == "" || sig.Signature == "" {
		err := domailsErrors.ErrInvalidSignature
		tracing.TraceErr(span, err)
		return err
	}

	ok, err := ValidateSignature(sig.Timestamp, sig.Token, sig.Signature, v.signingKey)
	if err != nil {
		v.log.Errorf("Rejecting webhook: %v", err)
		tracing.TraceErr(span, err)
		return err
	}
	if !ok {
		tracing.TraceErr(span, domailsErrors.ErrInvalidSignature)
		return domailsErrors.ErrInvalidSignature
	}

	if v.maxAge > 0 {
		seconds, err := strconv.ParseInt(sig.Timestamp, 10, 64)
		if err != nil {
			tracing.TraceErr(span, err)
			return domailsErrors.ErrStaleWebhook
		}
		age := v.now().Sub(time.Unix(seconds, 0))
		if age > v.maxAge || age < -v.maxAge {
			tracing.TraceErr(span, domailsErrors.ErrStaleWebhook)
			return domailsErrors.ErrStaleWebhook
		}
	}

	if v.replay != nil {
		fresh, err := v.replay.Remember(ctx, sig.Token, v.replayTTL)
		if err != nil {
			// an unavailable cache degrades to signature-only checks
			v.log.Warnf("Webhook replay check skipped: %v", err)
		} else if !fresh {
			tracing.TraceErr(span, domailsErrors.ErrReplayedWebhook)
			return domailsErrors.ErrReplayedWebhook
		}
	}
	return nil
}

// Release forgets the token of an accepted webhook whose payload could not be
// handed off, so the provider's redelivery passes the replay check.
func (v *validator) Release(ctx context.Context, sig models.WebhookSignature) {
	if v.replay == nil || sig.Token == "" {
		return
	}
	span, ctx := opentracing.StartSpanFromContext(ctx, "WebhookValidator.Release")
	defer span.Finish()
	tracing.TagComponentWebhook(span)

	if err := v.replay.Forget(ctx, sig.Token); err != nil {
		tracing.TraceErr(span, err)
		v.log.Errorf("Releasing webhook token failed, redelivery will be rejected: %v", err)
	}
}
