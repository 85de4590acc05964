// Package email provides the email client for sending transactional emails.
package email

import (
	"fmt"

	"github.com/fablepress/fablepress-go/internal/infrastructure/email/templates"
	"github.com/fablepress/fablepress-go/pkg/config"
	"github.com/resendlabs/resend-go"
)

// Service defines the interface for sending emails, allowing for mock implementations in tests.
type Service interface {
	SendFulfillmentEmail(toEmail, projectTitle, downloadURL string) error
}

// ResendClient is the concrete implementation of the email Service using the Resend API.
type ResendClient struct {
	client    *resend.Client
	fromEmail string
	fromName  string
}

// NewService creates a new email service client, returning the Service interface.
func NewService() (Service, error) {
	if config.ResendAPIKey == "" {
		return nil, fmt.Errorf("RESEND_API_KEY environment variable is required")
	}

	return &ResendClient{
		client:    resend.NewClient(config.ResendAPIKey),
		fromEmail: config.EmailFrom,
		fromName:  config.EmailFromName,
	}, nil
}

// SendFulfillmentEmail tells a customer their purchased storybook is ready
// and where to download it.
func (c *ResendClient) SendFulfillmentEmail(toEmail, projectTitle, downloadURL string) error {
	subject := fmt.Sprintf("Your storybook %q is ready", projectTitle)

	htmlContent := templates.GetFulfillmentEmailContent(templates.FulfillmentEmailProps{
		ProjectTitle: projectTitle,
		DownloadURL:  downloadURL,
	})

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", c.fromName, c.fromEmail),
		To:      []string{toEmail},
		Subject: subject,
		Html:    htmlContent,
	}

	_, err := c.client.Emails.Send(params)
	if err != nil {
		return fmt.Errorf("failed to send fulfillment email via Resend: %w", err)
	}

	return nil
}
