package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/clearproof/gatekeeper/internal/models"
)

// EmailService defines the interface for outbound mail
type EmailService interface {
	SendSecurityAlert(ctx context.Context, alert *models.SecurityAlert) error
	SendOneTimeCode(ctx context.Context, email, name, code string, expiresAt time.Time) error
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient    *ses.Client
	fromAddress  string
	securityAddr string
	logger       *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress, securityAddr string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:    ses.NewFromConfig(cfg),
		fromAddress:  fromAddress,
		securityAddr: securityAddr,
		logger:       logger,
	}, nil
}

// SendSecurityAlert notifies the security address about a tier transition.
func (s *AWSSESEmailService) SendSecurityAlert(ctx context.Context, alert *models.SecurityAlert) error {
	if s.securityAddr == "" {
		s.logger.Warn("no security alert address configured, dropping alert email",
			slog.String("address", alert.Address),
			slog.String("alert_type", string(alert.AlertType)))
		return nil
	}

	subject := fmt.Sprintf("[gatekeeper] %s for %s", alert.AlertType, alert.Address)
	textBody := fmt.Sprintf(`Security alert: %s

Address:         %s
Failed attempts: %d
Triggered at:    %s

Review the address in the security dashboard before taking action.
`, alert.AlertType, alert.Address, alert.TriggeringCount, alert.CreatedAt.UTC().Format(time.RFC3339))

	return s.send(ctx, s.securityAddr, subject, textBody)
}

// SendOneTimeCode delivers a login code to an approver.
func (s *AWSSESEmailService) SendOneTimeCode(ctx context.Context, email, name, code string, expiresAt time.Time) error {
	subject := "Your approval login code"
	textBody := fmt.Sprintf(`Hi %s,

Your one-time login code is:

    %s

The code expires at %s and can be used once.

If you didn't request this code, you can ignore this email.
`, name, code, expiresAt.UTC().Format(time.RFC3339))

	return s.send(ctx, email, subject, textBody)
}

func (s *AWSSESEmailService) send(ctx context.Context, to, subject, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("to", to),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("to", to),
		slog.String("message_id", *result.MessageId))

	return nil
}
