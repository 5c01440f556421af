package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/xaenox/lead-router/internal/models"
	"go.uber.org/zap"
)

// RESTStorage talks to a PostgREST-style endpoint (e.g. Supabase) exposing
// one resource per table under /rest/v1.
type RESTStorage struct {
	baseURL string
	key     string
	client  *http.Client
	logger  *zap.Logger
}

func NewRESTStorage(baseURL, key string, client *http.Client, logger *zap.Logger) *RESTStorage {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &RESTStorage{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		client:  client,
		logger:  logger,
	}
}

// Ping checks that the endpoint answers with the configured key.
func (s *RESTStorage) Ping(ctx context.Context) error {
	req, err := s.newRequest(ctx, http.MethodGet, s.baseURL+"/rest/v1/", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("error connecting to store: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("store ping: unexpected status %d", resp.StatusCode)
	}
	return nil
}

type conversationRow struct {
	ChannelType       models.ChannelType `json:"channel_type"`
	ChannelIdentifier string             `json:"channel_identifier"`
	Status            string             `json:"status"`
}

type messageRow struct {
	ConversationID string             `json:"conversation_id"`
	Content        string             `json:"content"`
	Direction      models.Direction   `json:"direction"`
	SenderType     models.SenderType  `json:"sender_type"`
	Channel        models.ChannelType `json:"channel,omitempty"`
}

type handoffRow struct {
	ConversationID string             `json:"conversation_id"`
	Priority       string             `json:"priority"`
	Reason         string             `json:"reason"`
	Channel        models.ChannelType `json:"channel,omitempty"`
}

type assignmentRow struct {
	VendorIndex    int       `json:"vendor_index"`
	VendorName     string    `json:"vendor_name"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *RESTStorage) CreateConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	var rows []*models.Conversation
	row := conversationRow{ChannelType: conv.ChannelType, ChannelIdentifier: conv.ChannelIdentifier, Status: conv.Status}
	if err := s.insert(ctx, TableConversations, row, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &models.StoreError{Table: TableConversations, Op: "insert", Err: fmt.Errorf("no representation returned")}
	}
	return rows[0], nil
}

func (s *RESTStorage) FindConversations(ctx context.Context, channel models.ChannelType, identifier, status string) ([]*models.Conversation, error) {
	filters := [][2]string{
		{"channel_type", string(channel)},
		{"channel_identifier", identifier},
	}
	if status != "" {
		filters = append(filters, [2]string{"status", status})
	}
	var rows []*models.Conversation
	if err := s.selectRows(ctx, TableConversations, filters, "created_at.asc", 0, &rows); err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	return rows, nil
}

func (s *RESTStorage) SaveMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	var rows []*models.Message
	row := messageRow{
		ConversationID: msg.ConversationID,
		Content:        msg.Content,
		Direction:      msg.Direction,
		SenderType:     msg.SenderType,
		Channel:        msg.Channel,
	}
	if err := s.insert(ctx, TableMessages, row, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		out := *msg
		return &out, nil
	}
	return rows[0], nil
}

func (s *RESTStorage) GetConversationMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	var rows []*models.Message
	filters := [][2]string{{"conversation_id", conversationID}}
	if err := s.selectRows(ctx, TableMessages, filters, "created_at.asc", 0, &rows); err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	return rows, nil
}

func (s *RESTStorage) CreateHandoff(ctx context.Context, ticket *models.HandoffTicket) (*models.HandoffTicket, error) {
	var rows []*models.HandoffTicket
	row := handoffRow{
		ConversationID: ticket.ConversationID,
		Priority:       ticket.Priority,
		Reason:         ticket.Reason,
		Channel:        ticket.Channel,
	}
	if err := s.insert(ctx, TableHandoffQueue, row, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		out := *ticket
		return &out, nil
	}
	return rows[0], nil
}

func (s *RESTStorage) SaveAssignment(ctx context.Context, a *models.VendorAssignment) (*models.VendorAssignment, error) {
	var rows []*models.VendorAssignment
	row := assignmentRow{
		VendorIndex:    a.VendorIndex,
		VendorName:     a.VendorName,
		ConversationID: a.ConversationID,
		CreatedAt:      a.CreatedAt.UTC(),
	}
	if err := s.insert(ctx, TableVendorAssignments, row, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		out := *a
		return &out, nil
	}
	return rows[0], nil
}

func (s *RESTStorage) LatestAssignment(ctx context.Context) (*models.VendorAssignment, error) {
	var rows []*models.VendorAssignment
	if err := s.selectRows(ctx, TableVendorAssignments, nil, "created_at.desc", 1, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, models.ErrNotFound
	}
	return rows[0], nil
}

func (s *RESTStorage) ListAssignments(ctx context.Context) ([]*models.VendorAssignment, error) {
	var rows []*models.VendorAssignment
	if err := s.selectRows(ctx, TableVendorAssignments, nil, "created_at.asc", 0, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *RESTStorage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *RESTStorage) insert(ctx context.Context, table string, record any, out any) error {
	body, err := json.Marshal(record)
	if err != nil {
		return &models.StoreError{Table: table, Op: "insert", Err: err}
	}
	req, err := s.newRequest(ctx, http.MethodPost, s.baseURL+"/rest/v1/"+table, bytes.NewReader(body))
	if err != nil {
		return &models.StoreError{Table: table, Op: "insert", Err: err}
	}
	req.Header.Set("Prefer", "return=representation")

	resp, err := s.client.Do(req)
	if err != nil {
		return &models.StoreError{Table: table, Op: "insert", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &models.StoreError{Table: table, Op: "insert", Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return &models.StoreError{Table: table, Op: "insert", Err: fmt.Errorf("decode representation: %w", err)}
	}
	return nil
}

func (s *RESTStorage) selectRows(ctx context.Context, table string, filters [][2]string, order string, limit int, out any) error {
	q := url.Values{}
	for _, f := range filters {
		q.Add(f[0], "eq."+f[1])
	}
	if order != "" {
		q.Set("order", order)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := s.baseURL + "/rest/v1/" + table
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := s.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &models.StoreError{Table: table, Op: "select", Err: err}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return &models.StoreError{Table: table, Op: "select", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &models.StoreError{Table: table, Op: "select", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &models.StoreError{Table: table, Op: "select", Err: fmt.Errorf("decode rows: %w", err)}
	}
	return nil
}

func (s *RESTStorage) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
