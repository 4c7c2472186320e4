package mailer

import (
	"creditnote/src/lib"
	"creditnote/src/models"
	"fmt"
	"log"
	"os"
)

// SendCreditNoteIssued emails the customer their new credit note. Best
// effort; issuance has already committed when this runs.
func SendCreditNoteIssued(note *models.CreditNote) error {
	if note.CustomerEmail == "" {
		return nil
	}
	from := os.Getenv("MAIL_FROM")
	fromName := os.Getenv("MAIL_FROM_NAME")
	body := fmt.Sprintf(
		"Hi %s,\n\nA store credit of %s %s has been issued to you.\n\nCredit note: %s\nRedemption code: %s\n\nShow the attached code at checkout to redeem.\n",
		note.CustomerName,
		note.OriginalAmount.StringFixed(2),
		note.Currency,
		note.NoteNumber,
		note.QRCode,
	)
	if note.ExpiresAt != nil {
		body += fmt.Sprintf("\nThis credit expires on %s.\n", note.ExpiresAt.Format("January 2, 2006"))
	}
	err := lib.SendMail(&lib.SendMailInput{
		From:     from,
		FromName: fromName,
		To:       []string{note.CustomerEmail},
		Subject:  fmt.Sprintf("Your store credit %s", note.NoteNumber),
		Body:     body,
	})
	if err != nil {
		log.Printf("Error sending issuance email for note [%s]: %s\n", note.NoteNumber, err.Error())
	}
	return err
}
