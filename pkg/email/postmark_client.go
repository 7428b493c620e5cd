package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

// postmarkAPI is the part of *postmark.Client the sender uses.
type postmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

type postmarkClient struct {
	api    postmarkAPI
	config Config
}

// NewPostmarkClient creates a Postmark-backed email sender.
func NewPostmarkClient(cfg Config) (EmailSender, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &postmarkClient{
		api:    postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		config: cfg,
	}, nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.PostmarkServerToken == "":
		return fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	case cfg.PostmarkAccountToken == "":
		return fmt.Errorf("%w: PostmarkAccountToken is required", ErrInvalidConfig)
	case !ValidEmail(cfg.SenderEmail):
		return fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	case !ValidEmail(cfg.SupportEmail):
		return fmt.Errorf("%w: SupportEmail must be a valid email address", ErrInvalidConfig)
	}
	return nil
}

// NewSender picks the sender for cfg: Postmark when tokens are set, files in
// DevDir when that is set, otherwise a NopSender.
func NewSender(cfg Config) (EmailSender, error) {
	switch {
	case cfg.PostmarkEnabled():
		return NewPostmarkClient(cfg)
	case cfg.DevDir != "":
		return NewDevSender(cfg.DevDir), nil
	default:
		return NopSender{}, nil
	}
}

// SendEmail sends through Postmark with replies routed to the support address.
func (c *postmarkClient) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	resp, err := c.api.SendEmail(ctx, postmark.Email{
		From:       c.config.SenderEmail,
		ReplyTo:    c.config.SupportEmail,
		To:         params.SendTo,
		Subject:    params.Subject,
		Tag:        params.Tag,
		HTMLBody:   params.BodyHTML,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(
			ErrFailedToSendEmail,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return nil
}
