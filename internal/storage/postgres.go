package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/xaenox/lead-router/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	return &PostgresStorage{db: db, logger: logger}, nil
}

// Migrate applies the embedded schema migrations.
func (s *PostgresStorage) Migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("error reading migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(s.db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("error preparing migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("error creating migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	s.logger.Info("Database schema is up to date")
	return nil
}

func (s *PostgresStorage) CreateConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (channel_type, channel_identifier, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	out := *conv
	err := s.db.QueryRowContext(ctx, query, conv.ChannelType, conv.ChannelIdentifier, conv.Status).
		Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, &models.StoreError{Table: TableConversations, Op: "insert", Err: err}
	}
	return &out, nil
}

func (s *PostgresStorage) FindConversations(ctx context.Context, channel models.ChannelType, identifier, status string) ([]*models.Conversation, error) {
	query := `
		SELECT id, channel_type, channel_identifier, status, created_at
		FROM conversations
		WHERE channel_type = $1 AND channel_identifier = $2 AND ($3 = '' OR status = $3)
		ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, channel, identifier, status)
	if err != nil {
		return nil, &models.StoreError{Table: TableConversations, Op: "select", Err: err}
	}
	defer rows.Close()

	var result []*models.Conversation
	for rows.Next() {
		c := &models.Conversation{}
		if err := rows.Scan(&c.ID, &c.ChannelType, &c.ChannelIdentifier, &c.Status, &c.CreatedAt); err != nil {
			return nil, &models.StoreError{Table: TableConversations, Op: "scan", Err: err}
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StoreError{Table: TableConversations, Op: "select", Err: err}
	}
	return result, nil
}

func (s *PostgresStorage) SaveMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	query := `
		INSERT INTO messages (conversation_id, content, direction, sender_type, channel)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	out := *msg
	err := s.db.QueryRowContext(ctx, query, msg.ConversationID, msg.Content, msg.Direction, msg.SenderType, msg.Channel).
		Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, &models.StoreError{Table: TableMessages, Op: "insert", Err: err}
	}
	return &out, nil
}

func (s *PostgresStorage) GetConversationMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	query := `
		SELECT id, conversation_id, content, direction, sender_type, channel, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, &models.StoreError{Table: TableMessages, Op: "select", Err: err}
	}
	defer rows.Close()

	var result []*models.Message
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Content, &m.Direction, &m.SenderType, &m.Channel, &m.CreatedAt); err != nil {
			return nil, &models.StoreError{Table: TableMessages, Op: "scan", Err: err}
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StoreError{Table: TableMessages, Op: "select", Err: err}
	}
	return result, nil
}

func (s *PostgresStorage) CreateHandoff(ctx context.Context, ticket *models.HandoffTicket) (*models.HandoffTicket, error) {
	query := `
		INSERT INTO handoff_queue (conversation_id, priority, reason, channel)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	out := *ticket
	err := s.db.QueryRowContext(ctx, query, ticket.ConversationID, ticket.Priority, ticket.Reason, ticket.Channel).
		Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, &models.StoreError{Table: TableHandoffQueue, Op: "insert", Err: err}
	}
	return &out, nil
}

func (s *PostgresStorage) SaveAssignment(ctx context.Context, a *models.VendorAssignment) (*models.VendorAssignment, error) {
	query := `
		INSERT INTO vendor_assignments (vendor_index, vendor_name, conversation_id, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	out := *a
	err := s.db.QueryRowContext(ctx, query, a.VendorIndex, a.VendorName, a.ConversationID, a.CreatedAt).
		Scan(&out.ID)
	if err != nil {
		return nil, &models.StoreError{Table: TableVendorAssignments, Op: "insert", Err: err}
	}
	return &out, nil
}

func (s *PostgresStorage) LatestAssignment(ctx context.Context) (*models.VendorAssignment, error) {
	query := `
		SELECT id, vendor_index, vendor_name, conversation_id, created_at
		FROM vendor_assignments
		ORDER BY created_at DESC
		LIMIT 1`

	a := &models.VendorAssignment{}
	err := s.db.QueryRowContext(ctx, query).Scan(&a.ID, &a.VendorIndex, &a.VendorName, &a.ConversationID, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, &models.StoreError{Table: TableVendorAssignments, Op: "select", Err: err}
	}
	return a, nil
}

func (s *PostgresStorage) ListAssignments(ctx context.Context) ([]*models.VendorAssignment, error) {
	query := `
		SELECT id, vendor_index, vendor_name, conversation_id, created_at
		FROM vendor_assignments
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &models.StoreError{Table: TableVendorAssignments, Op: "select", Err: err}
	}
	defer rows.Close()

	var result []*models.VendorAssignment
	for rows.Next() {
		a := &models.VendorAssignment{}
		if err := rows.Scan(&a.ID, &a.VendorIndex, &a.VendorName, &a.ConversationID, &a.CreatedAt); err != nil {
			return nil, &models.StoreError{Table: TableVendorAssignments, Op: "scan", Err: err}
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StoreError{Table: TableVendorAssignments, Op: "select", Err: err}
	}
	return result, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
