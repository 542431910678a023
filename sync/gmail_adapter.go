// ABOUTME: Email source adapter fetching messages through the Gmail API
// ABOUTME: Time-windowed queries; each message becomes a raw email plus address participants
package sync

import (
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/harperreed/corral/db"
	"github.com/harperreed/corral/match"
	"github.com/harperreed/corral/models"
)

const gmailPageLimit = 500 // Gmail API max per page

// GmailAdapter fetches message metadata through the Gmail API. Incremental
// runs query `after:<unix>` from the time watermark; the window is
// time-based, so partial runs hold the watermark back.
type GmailAdapter struct {
	service *gmail.Service
}

func NewGmailAdapter(service *gmail.Service) (*GmailAdapter, error) {
	if service == nil {
		return nil, fmt.Errorf("gmail service is required")
	}
	return &GmailAdapter{service: service}, nil
}

func (a *GmailAdapter) Source() string      { return models.SourceGmail }
func (a *GmailAdapter) ObjectType() string  { return models.ObjectMessages }
func (a *GmailAdapter) CursorOrdered() bool { return false }

func (a *GmailAdapter) Fetch(ctx context.Context, mode, watermark string) (Pager, error) {
	query := ""
	if mode != models.ModeFull && watermark != "" {
		since, err := time.Parse(time.RFC3339, watermark)
		if err != nil {
			return nil, fmt.Errorf("bad gmail watermark %q: %w", watermark, err)
		}
		// Gmail's after: operator has day granularity on dates but accepts
		// epoch seconds; overlap at the boundary is absorbed by upserts.
		query = fmt.Sprintf("after:%d", since.Unix())
	}
	return &gmailPager{adapter: a, query: query, started: time.Now().UTC()}, nil
}

type gmailPager struct {
	adapter   *GmailAdapter
	query     string
	pageToken string
	started   time.Time
	exhausted bool
}

func (p *gmailPager) Next(ctx context.Context) (*Page, error) {
	if p.exhausted {
		return nil, nil
	}

	call := p.adapter.service.Users.Messages.List("me").MaxResults(gmailPageLimit).Context(ctx)
	if p.query != "" {
		call = call.Q(p.query)
	}
	if p.pageToken != "" {
		call = call.PageToken(p.pageToken)
	}

	response, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	page := &Page{}
	for _, ref := range response.Messages {
		message, err := p.adapter.service.Users.Messages.Get("me", ref.Id).
			Format("metadata").
			MetadataHeaders("From", "To", "Cc", "Subject", "Date").
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("failed to fetch message %s: %w", ref.Id, err)
		}
		page.Records = append(page.Records, emailRecord(message))
	}

	p.pageToken = response.NextPageToken
	if p.pageToken == "" {
		p.exhausted = true
	}

	return page, nil
}

// Watermark is the fetch start time: everything up to it was covered by
// the query, including an empty window.
func (p *gmailPager) Watermark() string {
	return p.started.Format(time.RFC3339)
}

func emailRecord(message *gmail.Message) Record {
	headers := parseHeaders(message.Payload)

	from := headers["From"]
	if from == "" {
		return Record{NativeID: message.Id, Invalid: fmt.Errorf("message %s has no From header", message.Id)}
	}

	sentAt := time.UnixMilli(message.InternalDate).UTC()
	if message.InternalDate == 0 {
		parsed, err := parseEmailDate(headers["Date"])
		if err != nil {
			return Record{NativeID: message.Id, Invalid: fmt.Errorf("message %s has no usable date: %w", message.Id, err)}
		}
		sentAt = parsed
	}

	msg := &models.EmailMessage{
		ID:       message.Id,
		ThreadID: message.ThreadId,
		Subject:  headers["Subject"],
		FromAddr: from,
		ToAddrs:  headers["To"],
		CcAddrs:  headers["Cc"],
		SentAt:   sentAt,
	}

	return Record{NativeID: message.Id, Apply: func(database *sql.DB) error {
		if err := db.UpsertEmailMessage(database, msg); err != nil {
			return err
		}
		return ensureEmailParticipants(database, msg)
	}}
}

// ensureEmailParticipants creates unmatched participant rows for every
// address on the message. Addresses that don't parse or normalize are
// skipped, not fatal — one garbled Cc shouldn't sink the record.
func ensureEmailParticipants(database *sql.DB, msg *models.EmailMessage) error {
	fields := []struct {
		role string
		raw  string
	}{
		{models.RoleFrom, msg.FromAddr},
		{models.RoleTo, msg.ToAddrs},
		{models.RoleCc, msg.CcAddrs},
	}

	for _, field := range fields {
		if strings.TrimSpace(field.raw) == "" {
			continue
		}
		addresses, err := mail.ParseAddressList(field.raw)
		if err != nil {
			continue
		}
		for _, address := range addresses {
			normalized := match.NormalizeEmail(address.Address)
			if normalized == "" {
				continue
			}
			participant := &models.Participant{
				RecordType: models.RecordEmail,
				RecordID:   msg.ID,
				Role:       field.role,
				Kind:       models.KindEmail,
				RawValue:   address.Address,
				Normalized: normalized,
			}
			if err := db.EnsureParticipant(database, participant); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseHeaders(payload *gmail.MessagePart) map[string]string {
	headers := map[string]string{}
	if payload == nil {
		return headers
	}
	for _, header := range payload.Headers {
		headers[header.Name] = header.Value
	}
	return headers
}

// parseEmailDate parses an RFC 2822 Date header, tolerating the common
// format variants.
func parseEmailDate(dateStr string) (time.Time, error) {
	if dateStr == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	// Strip trailing timezone name like "(UTC)" or "(PST)"
	if idx := strings.Index(dateStr, " ("); idx > 0 {
		dateStr = dateStr[:idx]
	}

	formats := []string{
		time.RFC1123Z,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 MST",
		time.RFC822Z,
		time.RFC822,
		time.RFC3339,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unparseable date: %s", dateStr)
}
