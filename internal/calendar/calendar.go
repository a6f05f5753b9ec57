// Package calendar provisions the video link attached to a booked meeting.
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

type Request struct {
	MeetingID    string
	ExpertUserID string
	GuestEmail   string
	GuestName    string
	Summary      string
	Start        time.Time
	End          time.Time
	Timezone     string
}

// LinkProvider issues deterministic meeting-room links under a base URL.
type LinkProvider struct {
	base *url.URL
	log  *slog.Logger
}

func NewLinkProvider(baseURL string, log *slog.Logger) (*LinkProvider, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("calendar base url %q is not absolute", baseURL)
	}
	if log == nil {
		log = slog.Default()
	}
	return &LinkProvider{base: u, log: log}, nil
}

func (p *LinkProvider) CreateEvent(ctx context.Context, r Request) (string, error) {
	if r.MeetingID == "" {
		return "", fmt.Errorf("calendar: meeting id required")
	}
	u := *p.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + url.PathEscape(r.MeetingID)
	link := u.String()
	p.log.InfoContext(ctx, "calendar event created",
		"meeting_id", r.MeetingID, "expert", r.ExpertUserID, "start", r.Start, "tz", r.Timezone)
	return link, nil
}
