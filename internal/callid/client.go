// Package callid binds outbound caller-ID numbers to uploaded sample
// tables via the external assignment service.
//
// The client is explicitly non-critical: every network or database
// failure is caught, logged, and reported as a nil assignment so the
// upload flow can finish without caller-ID metadata.
package callid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fieldstone/samplehub/internal/sample"
	"github.com/fieldstone/samplehub/internal/schema"
)

// Assignment is the outcome of binding caller IDs to one upload.
type Assignment struct {
	ProjectID string       `json:"projectId"`
	Reused    bool         `json:"reused"`
	Rematched bool         `json:"rematched"`
	Slots     []SlotDetail `json:"slots"`
}

// Client talks to the assignment service and pushes slot values into
// the sample table's caller-ID constant columns.
type Client struct {
	baseURL string
	http    *http.Client
	db      sample.DBTX
	logger  *slog.Logger
}

// NewClient creates an assignment-service client. The timeout bounds
// every outbound call; there is no retry.
func NewClient(baseURL string, timeout time.Duration, db sample.DBTX, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		db:      db,
		logger:  logger,
	}
}

// Bind runs the per-upload assignment state machine.
//
// A project with no assignment, or an assignment whose slots are all
// empty, is handed to the service's auto-assign endpoint verbatim. A
// project with filled slots takes the re-matching path: its numbers are
// re-ranked against the new table's top area codes and written back
// into the table's caller-ID columns.
//
// Bind never fails the upload. Any error along the way yields nil.
func (c *Client) Bind(ctx context.Context, tableName, projectID string, clientID int, identity sample.Identity) *Assignment {
	existing, err := c.fetchAssignment(ctx, projectID, identity)
	if err != nil {
		c.logger.Warn("callid: project lookup failed, skipping binding",
			slog.String("project_id", projectID),
			slog.String("error", err.Error()))
		return nil
	}

	if len(existing) == 0 {
		result, err := c.autoAssign(ctx, tableName, projectID, clientID, identity)
		if err != nil {
			c.logger.Warn("callid: auto-assign failed, skipping binding",
				slog.String("project_id", projectID),
				slog.String("error", err.Error()))
			return nil
		}
		return result
	}

	areaCodes, err := c.fetchAreaCodes(ctx, tableName, identity)
	if err != nil {
		c.logger.Warn("callid: area-code ranking failed, skipping binding",
			slog.String("table", tableName),
			slog.String("error", err.Error()))
		return nil
	}

	details := Rematch(existing, areaCodes)
	if err := c.pushSlots(ctx, tableName, details); err != nil {
		c.logger.Warn("callid: slot push-back failed, skipping binding",
			slog.String("table", tableName),
			slog.String("error", err.Error()))
		return nil
	}

	c.logger.Info("callid: reused existing assignment after re-matching",
		slog.String("project_id", projectID),
		slog.Int("slots", len(details)))

	return &Assignment{
		ProjectID: projectID,
		Reused:    true,
		Rematched: true,
		Slots:     details,
	}
}

// ============================================================================
// Assignment Service Calls
// ============================================================================

type projectResponse struct {
	Assignment *struct {
		Slots []SlotAssignment `json:"slots"`
	} `json:"assignment"`
}

type areaCodesResponse struct {
	AreaCodes []string `json:"areaCodes"`
}

type autoAssignRequest struct {
	TableName string `json:"tableName"`
	ProjectID string `json:"projectId"`
	ClientID  int    `json:"clientId"`
}

type autoAssignResponse struct {
	Slots []SlotDetail `json:"slots"`
}

// fetchAssignment returns the project's currently filled slots. A
// missing project, missing assignment, or all-empty slot row all come
// back as an empty list so the caller falls through to auto-assign.
func (c *Client) fetchAssignment(ctx context.Context, projectID string, identity sample.Identity) ([]SlotAssignment, error) {
	var resp projectResponse
	if err := c.get(ctx, "/projects/"+url.PathEscape(projectID), nil, identity, &resp); err != nil {
		return nil, err
	}
	if resp.Assignment == nil {
		return nil, nil
	}

	filled := make([]SlotAssignment, 0, len(resp.Assignment.Slots))
	for _, s := range resp.Assignment.Slots {
		if s.PhoneNumber != "" {
			filled = append(filled, s)
		}
	}
	return filled, nil
}

func (c *Client) fetchAreaCodes(ctx context.Context, tableName string, identity sample.Identity) ([]string, error) {
	var resp areaCodesResponse
	query := url.Values{"tableName": {tableName}}
	if err := c.get(ctx, "/auto-assign/area-codes", query, identity, &resp); err != nil {
		return nil, err
	}
	return resp.AreaCodes, nil
}

func (c *Client) autoAssign(ctx context.Context, tableName, projectID string, clientID int, identity sample.Identity) (*Assignment, error) {
	body, err := json.Marshal(autoAssignRequest{
		TableName: tableName,
		ProjectID: projectID,
		ClientID:  clientID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode auto-assign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auto-assign", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.forwardIdentity(req, identity)

	var resp autoAssignResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}

	return &Assignment{
		ProjectID: projectID,
		Slots:     resp.Slots,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, identity sample.Identity, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.forwardIdentity(req, identity)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("assignment service returned %s for %s", resp.Status, req.URL.Path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode assignment service response: %w", err)
	}
	return nil
}

// forwardIdentity passes the caller's identity headers through to the
// assignment service. The pipeline never re-validates credentials.
func (c *Client) forwardIdentity(req *http.Request, identity sample.Identity) {
	req.Header.Set("X-Authenticated", strconv.FormatBool(identity.Authenticated))
	req.Header.Set("X-Username", identity.Username)
	req.Header.Set("X-Roles", strings.Join(identity.Roles, ","))
}

// ============================================================================
// Slot Push-Back
// ============================================================================

// slotColumns maps slot names to the caller-ID constant columns of the
// sample table itself.
var slotColumns = map[string]string{
	"L1": sample.ColCIDL1,
	"L2": sample.ColCIDL2,
	"C1": sample.ColCIDC1,
	"C2": sample.ColCIDC2,
}

// pushSlots writes re-matched phone numbers into the table's caller-ID
// columns. Only slots that actually carry a number are touched.
func (c *Client) pushSlots(ctx context.Context, tableName string, details []SlotDetail) error {
	var assignments []string
	var args []interface{}

	for _, d := range details {
		col, ok := slotColumns[d.Slot]
		if !ok || d.PhoneNumber == "" {
			continue
		}
		args = append(args, d.PhoneNumber)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", schema.QuoteIdentifier(col), len(args)))
	}
	if len(assignments) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE %s SET %s", schema.QuoteIdentifier(tableName), strings.Join(assignments, ", "))
	_, err := c.db.Exec(ctx, query, args...)
	return err
}
