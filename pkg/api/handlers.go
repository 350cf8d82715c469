package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/worldofchami/bakerelay/pkg/contract"
	"github.com/worldofchami/bakerelay/pkg/models"
	"github.com/worldofchami/bakerelay/pkg/platforms/cashfree"
	"github.com/worldofchami/bakerelay/pkg/prompt"
	"github.com/worldofchami/bakerelay/pkg/router"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

var errUnsupportedDocument = errors.New("unsupported document type")

type messageRequest struct {
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
	Message     string `json:"message"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type invoiceResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "starting"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ready"})
}

func (s *Server) handleProcessMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, s.maxUpload)).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %w", contract.ErrBadRequest, err), msgMissingMessageFields)
		return
	}

	out, err := s.svc.ProcessMessage(r.Context(), router.MessageRequest{
		Phone:   strings.TrimSpace(req.PhoneNumber),
		Name:    strings.TrimSpace(req.Name),
		Message: strings.TrimSpace(req.Message),
	})
	if err != nil {
		writeError(w, r, err, msgMissingMessageFields)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: out.Status})
}

func (s *Server) handleProcessInvoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, r, fmt.Errorf("%w: %w", contract.ErrBadRequest, err), msgMissingInvoice)
		return
	}

	userKey := strings.TrimSpace(r.FormValue("user_id"))
	if userKey == "" {
		userKey = strings.TrimSpace(r.Header.Get(sessionHeader))
	}
	if userKey == "" {
		userKey = defaultUserKey
	}

	doc, err := readDocument(r)
	if err != nil {
		msg := msgMissingInvoice
		if errors.Is(err, errUnsupportedDocument) {
			msg = msgUnsupportedDocument
		}
		writeError(w, r, err, msg)
		return
	}

	reply, err := s.svc.ProcessInvoice(r.Context(), router.InvoiceRequest{
		UserKey:  userKey,
		Text:     r.FormValue("text"),
		Document: doc,
	})
	if err != nil {
		writeError(w, r, err, msgMissingInvoice)
		return
	}
	writeJSON(w, http.StatusOK, invoiceResponse{Message: reply})
}

// readDocument returns the uploaded PDF, or nil when no file was sent.
func readDocument(r *http.Request) (*prompt.Document, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	file, header, err := r.FormFile("document")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contract.ErrBadRequest, err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: read document: %w", contract.ErrBadRequest, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	if !isPDF(header, data) {
		return nil, fmt.Errorf("%w: %w", contract.ErrBadRequest, errUnsupportedDocument)
	}
	return &prompt.Document{
		Filename:  filepath.Base(header.Filename),
		MediaType: models.MediaTypePDF,
		Data:      data,
	}, nil
}

func isPDF(header *multipart.FileHeader, data []byte) bool {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return false
	}
	ct := header.Header.Get("Content-Type")
	return ct == "" || ct == models.MediaTypePDF || ct == "application/octet-stream"
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUpload))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %w", contract.ErrBadPayload, err), msgInvalidPayload)
		return
	}

	if s.webhookSecret != "" {
		timestamp := r.Header.Get(cashfree.TimestampHeader)
		err := cashfree.VerifySignature(s.webhookSecret, timestamp, body, r.Header.Get(cashfree.SignatureHeader))
		if err == nil {
			err = cashfree.CheckTimestamp(timestamp, s.now(), s.tolerance)
		}
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: %w", contract.ErrUnauthorized, err), msgInvalidPayload)
			return
		}
	}

	out, err := s.svc.Webhook(r.Context(), body)
	if err != nil {
		writeError(w, r, err, msgInvalidPayload)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: out.Status})
}

// handleTwilio accepts inbound WhatsApp messages from Twilio and routes them
// like /api/process_message. Replies go out through the messaging tool, so
// the TwiML response is empty.
func (s *Server) handleTwilio(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	from := strings.TrimPrefix(r.FormValue("From"), "whatsapp:")
	body := strings.TrimSpace(r.FormValue("Body"))
	if from == "" || body == "" {
		http.Error(w, "Missing From or Body", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(r.FormValue("ProfileName"))
	if name == "" {
		name = "Customer"
	}

	out, err := s.svc.ProcessMessage(r.Context(), router.MessageRequest{Phone: from, Name: name, Message: body})
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
		hlog.FromRequest(r).Error().Err(err).Str("from", from).Msg("twilio message failed")
	} else {
		hlog.FromRequest(r).Info().Str("from", from).Str("status", out.Status).Msg("twilio message processed")
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(emptyTwiML))
}
