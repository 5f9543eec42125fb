package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"p9e.in/qareports/pkg/reports"
)

const defaultHTTPTimeout = 30 * time.Second

// Remote is the server side of a sync pass.
type Remote interface {
	SaveDraft(ctx context.Context, d Draft) (uuid.UUID, error)
	UploadPhoto(ctx context.Context, serverID uuid.UUID, p PendingPhoto) error
	Ping(ctx context.Context) error
}

// HTTPRemote talks to the REST API. Every request is bounded by the client
// timeout so a hung server cannot hold a sync pass open.
type HTTPRemote struct {
	baseURL string
	userID  string
	http    *http.Client
}

func NewHTTPRemote(baseURL, userID string, timeout time.Duration) *HTTPRemote {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		http:    &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRemote) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if r.userID != "" {
		req.Header.Set("X-User-ID", r.userID)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// SaveDraft POSTs a new draft or PUTs one the server already knows. The
// client key makes a retried POST land on the same report.
func (r *HTTPRemote) SaveDraft(ctx context.Context, d Draft) (uuid.UUID, error) {
	in := reports.DraftInput{
		ID:               d.ServerID,
		ClientKey:        d.ClientKey,
		SchoolID:         d.SchoolID,
		ReportType:       d.ReportType,
		InspectionDate:   d.InspectionDate,
		PreviousReportID: d.PreviousReportID,
		OverallRating:    d.OverallRating,
		ClosingNotes:     d.ClosingNotes,
		Responses:        d.Responses.Data(),
	}
	body, err := json.Marshal(in)
	if err != nil {
		return uuid.Nil, err
	}

	method, endpoint := http.MethodPost, r.baseURL+"/api/v1/reports/drafts"
	if d.ServerID != nil {
		method, endpoint = http.MethodPut, endpoint+"/"+d.ServerID.String()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return uuid.Nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out reports.DraftResult
	if err := r.do(req, &out); err != nil {
		return uuid.Nil, err
	}
	if out.Report == nil || out.Report.ID == uuid.Nil {
		return uuid.Nil, errors.New("server response has no report id")
	}
	return out.Report.ID, nil
}

// UploadPhoto sends one queued image as multipart form data. The client key
// lets the server answer a retry with the photo it already stored.
func (r *HTTPRemote) UploadPhoto(ctx context.Context, serverID uuid.UUID, p PendingPhoto) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for field, value := range map[string]string{
		"sectionKey":  p.SectionKey,
		"itemKey":     p.ItemKey,
		"locationTag": p.LocationTag,
		"caption":     p.Caption,
	} {
		if value == "" {
			continue
		}
		if err := w.WriteField(field, value); err != nil {
			return err
		}
	}
	if p.ClientKey != uuid.Nil {
		if err := w.WriteField("clientKey", p.ClientKey.String()); err != nil {
			return err
		}
	}
	filename := p.Filename
	if filename == "" {
		filename = fmt.Sprintf("photo-%d.jpg", p.LocalID)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(p.Data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/api/v1/reports/"+serverID.String()+"/photos", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return r.do(req, nil)
}

// Ping checks the server health endpoint.
func (r *HTTPRemote) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	return r.do(req, nil)
}
