// Package prompt builds the instruction and content turns sent to the agent
// for each kind of inbound event. Builders are pure: they never call the
// agent and produce the same turns for the same inputs.
package prompt

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/worldofchami/bakerelay/pkg/models"
)

const persona = "You are an intelligent assistant for a homebaker, delighting customers with friendly responses."

// Message is an inbound chat message from a customer.
type Message struct {
	Phone string
	Name  string
	Text  string
}

// Document is a binary attachment submitted with an invoice request.
type Document struct {
	Filename  string
	MediaType string
	Data      []byte
}

func (d Document) Part() models.Part {
	mediaType := d.MediaType
	if mediaType == "" {
		mediaType = models.MediaTypePDF
	}
	return models.DocumentPart(mediaType, base64.StdEncoding.EncodeToString(d.Data))
}

func inputs(m Message) string {
	return fmt.Sprintf("Inputs:\n- Phone number: '%s'\n- Name: '%s'\n- Message: '%s'\n", m.Phone, m.Name, m.Text)
}

func replyContract(success string) string {
	return fmt.Sprintf("Finish your answer with a single JSON object matching this schema:\n%s\n"+
		"Use outcome 'ignored' with status 'Message ignored' when the message is ignored, "+
		"outcome 'succeeded' with status '%s' on success, and outcome 'failed' with status 'ERROR: <reason>' "+
		"and the reason in diagnostic when any tool fails.\n", ReplySchema(), success)
}

// Lead builds the turns for a first contact that names no flavor yet.
func Lead(m Message) []models.Turn {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString(" Process a customer message to identify a cake order intent and send flavor options.\n")
	b.WriteString(inputs(m))
	b.WriteString("Follow these steps exactly, using appropriate spacing and emojis:\n")
	b.WriteString("1. Identify cake order intent:\n")
	fmt.Fprintf(&b, "   - A cake order intent is a message containing any of the keywords (case-insensitive): %s.\n", quoted(LeadKeywords))
	b.WriteString("   - If no intent is identified, do not send anything and return: {'status': 'Message ignored'}\n")
	b.WriteString("2. Offer the cake options:\n")
	fmt.Fprintf(&b, "   - Use the WhatsApp tool to send '%s' exactly these 3 options with prices: %s.\n", m.Phone, menuLine())
	b.WriteString("   - The customer must confirm one of the flavors. Wait for the customer to confirm the flavor.\n")
	b.WriteString("   - If no confirmation is identified, ask the customer to choose a correct option.\n")
	b.WriteString("3. Evaluate the outcome:\n")
	b.WriteString("   - If the flavor options are sent successfully, return: {'status': 'Order identified, flavor options sent'}\n")
	b.WriteString("   - If any tool fails (e.g., message sending failure), return: {'status': 'ERROR: Order processing failed'}\n")
	b.WriteString(replyContract("Order identified, flavor options sent"))

	return []models.Turn{
		models.SystemTurn(b.String()),
		models.UserTurn(m.Text),
	}
}

// Confirmation builds the turns for a message that names a flavor: create a
// payment link and deliver it over WhatsApp.
func Confirmation(m Message) []models.Turn {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString(" Process a customer message to identify a cake flavor in the message and generate a payment link.\n")
	b.WriteString(inputs(m))
	b.WriteString("Follow these steps exactly, using appropriate spacing and emojis:\n")
	b.WriteString("1. Identify the cake flavor:\n")
	fmt.Fprintf(&b, "   - A confirmed flavor is a message containing any of the keywords (case-insensitive): %s.\n", quoted(FlavorKeywords))
	fmt.Fprintf(&b, "   - Prices in %s: %s.\n", Currency, menuLine())
	b.WriteString("   - If no flavor is identified, return: {'status': 'Message ignored'}\n")
	b.WriteString("2. Generate a payment link:\n")
	fmt.Fprintf(&b, "   - Use the payment link tool to create a link for the identified cake at its price for customer '%s' with phone '%s'. Reason about any errors while creating the link.\n", m.Name, m.Phone)
	b.WriteString("3. Send the payment link:\n")
	fmt.Fprintf(&b, "   - Use the WhatsApp tool to send a message to '%s' sharing the payment link url. Add new lines and keep it professional yet cheerful. Do not use a hyperlink, paste the url directly. Use emojis conservatively.\n", m.Phone)
	b.WriteString("4. Evaluate the outcome:\n")
	b.WriteString("   - If the payment link is generated and the message is sent successfully, return: {'status': 'Order processed, payment link sent'}\n")
	b.WriteString("   - If any tool fails (e.g., payment link generation or message sending failure), return: {'status': 'ERROR: Order processing failed'}\n")
	b.WriteString(replyContract("Order processed, payment link sent"))

	return []models.Turn{
		models.SystemTurn(b.String()),
		models.UserTurn(m.Text),
	}
}

// Webhook builds the turns for a payment-provider notification. The payload
// is embedded verbatim.
func Webhook(payload string) []models.Turn {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString(" Process a payment notification for a cake order and confirm it to the customer.\n")
	b.WriteString("Follow these steps exactly, using appropriate spacing and emojis:\n")
	b.WriteString("1. Identify the customer phone number and the status of the payment in the webhook payload.\n")
	b.WriteString("2. Send the payment confirmation, or the failure reason, to the customer via the WhatsApp tool.\n")
	b.WriteString("3. If the payload carries no phone number or no payment status, return: {'status': 'Message ignored'}\n")
	b.WriteString("4. If any tool fails, return: {'status': 'ERROR: <reason>'}\n")
	b.WriteString(replyContract("Order processed, payment link sent"))

	return []models.Turn{
		models.SystemTurn(b.String()),
		models.UserTurn("Payload: " + payload),
	}
}

const invoiceInstructions = persona + ` You also help the homebaker settle supplier invoices.
When the user shares an invoice document or invoice details:
1. Extract the invoice fields: invoice number, invoice date, amount, vendor name, and bank details (account holder, account number, IFSC).
2. Present the extracted fields back to the user.
3. If the user asks to pay or transfer, first confirm the beneficiary, account number, IFSC and amount with the user. Only call the transfer tool after the user explicitly confirms.
4. After a transfer, report the transfer id, amount, beneficiary and status.
Never invent bank details that are not in the document or the conversation. If a field is missing, ask for it.`

// Invoice builds the turns for the free-form invoice assistant: the
// instructions, the conversation history, and the document attached to the
// trailing user turn.
func Invoice(history []models.Turn, doc *Document) []models.Turn {
	turns := make([]models.Turn, 0, len(history)+2)
	turns = append(turns, models.SystemTurn(invoiceInstructions))
	turns = append(turns, models.CloneTurns(history)...)

	if doc == nil || len(doc.Data) == 0 {
		return turns
	}

	last := len(turns) - 1
	if turns[last].Role == models.RoleUser && !turns[last].HasDocument() {
		parts := turns[last].ContentParts()
		turns[last] = models.Turn{Role: models.RoleUser, Parts: append(parts, doc.Part())}
		return turns
	}
	return append(turns, models.Turn{
		Role:  models.RoleUser,
		Parts: []models.Part{models.TextPart("Please process the attached invoice."), doc.Part()},
	})
}
