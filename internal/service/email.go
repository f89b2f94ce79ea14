package service

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type emailService struct {
	apiKey   string
	from     string
	fromName string
}

func NewEmailService(apiKey, from, fromName string) EmailService {
	return &emailService{
		apiKey:   apiKey,
		from:     from,
		fromName: fromName,
	}
}

func (s *emailService) send(to, toName, subject, body string) error {
	from := mail.NewEmail(s.fromName, s.from)
	recipient := mail.NewEmail(toName, to)
	message := mail.NewSingleEmail(from, subject, recipient, body, "")

	client := sendgrid.NewSendClient(s.apiKey)
	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}

func (s *emailService) SendVerificationEmail(ctx context.Context, email, name, token string) error {
	body := fmt.Sprintf("Hello %s,\n\nWelcome to BookWorm Library. Please verify your account with the following code:\n\n%s\n\nThe code expires in 15 minutes.\n\nBest regards,\nBookWorm Library", name, token)
	return s.send(email, name, "Verify your BookWorm account", body)
}

func (s *emailService) SendReturnReceipt(ctx context.Context, email, name, bookTitle string, totalCents, fineCents int64) error {
	body := fmt.Sprintf("Hello %s,\n\nThank you for returning %q.", name, bookTitle)
	if fineCents > 0 {
		body += fmt.Sprintf("\n\nAn overdue fine of $%.2f was applied. The total charges are $%.2f.", float64(fineCents)/100, float64(totalCents)/100)
	} else {
		body += fmt.Sprintf("\n\nThe total charges are $%.2f.", float64(totalCents)/100)
	}
	body += "\n\nBest regards,\nBookWorm Library"
	return s.send(email, name, "Return receipt", body)
}

func (s *emailService) SendOverdueReminder(ctx context.Context, email, name, bookTitle string, dueAt string) error {
	body := fmt.Sprintf("Hello %s,\n\nThe book %q was due on %s and has not been returned. An hourly fine is accruing; please return it as soon as possible.\n\nBest regards,\nBookWorm Library", name, bookTitle, dueAt)
	return s.send(email, name, "Overdue book reminder", body)
}
