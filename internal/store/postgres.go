package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/lumenhq/agent-platform/internal/config"
	"github.com/lumenhq/agent-platform/internal/model"
)

//go:embed migrations.sql
var migrations embed.FS

// PostgresStore is the Postgres-backed Store.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection and applies the embedded schema.
func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.initializeSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("execute migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAgent(ctx context.Context, id string) (*model.Agent, error) {
	var agent model.Agent
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, description, visibility, model_name,
		       system_prompt, user_prompt, temperature,
		       use_markdown, use_language_detection, restrict_knowledge,
		       use_context_data_agents, use_conversational_mode, include_sources,
		       created_at, updated_at
		FROM agents WHERE id = $1`, id).Scan(
		&agent.ID, &agent.OrganizationID, &agent.Name, &agent.Description,
		&agent.Visibility, &agent.ModelName, &agent.SystemPrompt, &agent.UserPrompt,
		&agent.Temperature, &agent.UseMarkdown, &agent.UseLanguageDetection,
		&agent.RestrictKnowledge, &agent.UseContextDataAgents,
		&agent.UseConversationalMode, &agent.IncludeSources,
		&agent.CreatedAt, &agent.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, type, config FROM tools WHERE agent_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get agent tools: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tool model.Tool
		var cfg []byte
		if err := rows.Scan(&tool.ID, &tool.AgentID, &tool.Type, &cfg); err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		tool.Config = json.RawMessage(cfg)
		agent.Tools = append(agent.Tools, tool)
	}
	return &agent, rows.Err()
}

func (s *PostgresStore) GetOrganization(ctx context.Context, id string) (*model.Organization, error) {
	var org model.Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner_email, plan, agent_queries_quota, created_at
		FROM organizations WHERE id = $1`, id).Scan(
		&org.ID, &org.Name, &org.OwnerEmail, &org.Plan,
		&org.AgentQueriesQuota, &org.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &org, nil
}

func (s *PostgresStore) scanConversation(row *sql.Row) (*model.Conversation, error) {
	var conv model.Conversation
	var metadata []byte
	err := row.Scan(
		&conv.ID, &conv.OrganizationID, &conv.AgentID, &conv.Channel, &conv.Status,
		&conv.IsAIEnabled, &conv.ExternalID, &conv.ContactID, &metadata,
		&conv.CreatedAt, &conv.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &conv.Metadata)
	}
	return &conv, nil
}

const conversationColumns = `id, organization_id, agent_id, channel, status,
	is_ai_enabled, external_id, contact_id, metadata, created_at, updated_at`

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return s.scanConversation(row)
}

func (s *PostgresStore) GetConversationByExternalID(ctx context.Context, agentID, externalID string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE agent_id = $1 AND external_id = $2
		ORDER BY created_at DESC LIMIT 1`, agentID, externalID)
	return s.scanConversation(row)
}

func (s *PostgresStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	metadata, _ := json.Marshal(conv.Metadata)
	if conv.Metadata == nil {
		metadata = []byte("{}")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, organization_id, agent_id, channel, status,
			is_ai_enabled, external_id, contact_id, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		conv.ID, conv.OrganizationID, conv.AgentID, conv.Channel, conv.Status,
		conv.IsAIEnabled, conv.ExternalID, conv.ContactID, metadata,
		conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateConversationStatus(ctx context.Context, id string, status model.ConversationStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = $1, updated_at = now() WHERE id = $2`,
		status, id)
	if err != nil {
		return fmt.Errorf("update conversation status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetAIEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET is_ai_enabled = $1, updated_at = now() WHERE id = $2`,
		enabled, id)
	if err != nil {
		return fmt.Errorf("set ai enabled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, organizationID string, limit, offset int) (*model.ListConversationsResponse, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM conversations WHERE organization_id = $1`,
		organizationID).Scan(&total); err != nil {
		return nil, fmt.Errorf("count conversations: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE organization_id = $1
		ORDER BY updated_at DESC LIMIT $2 OFFSET $3`,
		organizationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		var conv model.Conversation
		var metadata []byte
		if err := rows.Scan(
			&conv.ID, &conv.OrganizationID, &conv.AgentID, &conv.Channel, &conv.Status,
			&conv.IsAIEnabled, &conv.ExternalID, &conv.ContactID, &metadata,
			&conv.CreatedAt, &conv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &conv.Metadata)
		}
		convs = append(convs, conv)
	}

	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         total,
		HasMore:       offset+len(convs) < total,
	}, rows.Err()
}

func (s *PostgresStore) CreateMessage(ctx context.Context, msg *model.Message) error {
	attachments, _ := json.Marshal(msg.Attachments)
	sources, _ := json.Marshal(msg.Sources)
	usage, _ := json.Marshal(msg.Usage)
	metadata, _ := json.Marshal(msg.Metadata)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, "from", text, attachments,
			sources, usage, metadata, input_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		msg.ID, msg.ConversationID, msg.From, msg.Text, attachments,
		sources, usage, metadata, msg.InputID, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = now() WHERE id = $1`,
		msg.ConversationID)
	return err
}

func (s *PostgresStore) ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, "from", text, attachments, sources, usage,
		       metadata, input_id, created_at
		FROM (
			SELECT * FROM messages WHERE conversation_id = $1
			ORDER BY created_at DESC LIMIT $2
		) recent ORDER BY created_at ASC`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var msg model.Message
		var attachments, sources, usage, metadata []byte
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.From, &msg.Text, &attachments,
			&sources, &usage, &metadata, &msg.InputID, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		_ = json.Unmarshal(attachments, &msg.Attachments)
		_ = json.Unmarshal(sources, &msg.Sources)
		_ = json.Unmarshal(usage, &msg.Usage)
		_ = json.Unmarshal(metadata, &msg.Metadata)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *PostgresStore) CreateApprovals(ctx context.Context, approvals []model.Approval) error {
	for _, a := range approvals {
		payload, _ := json.Marshal(a.Payload)
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO approvals (id, conversation_id, tool_id, tool_type, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			a.ID, a.ConversationID, a.ToolID, a.ToolType, payload, a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("create approval: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListPendingApprovals(ctx context.Context, conversationID string) ([]model.Approval, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, tool_id, tool_type, payload, created_at
		FROM approvals WHERE conversation_id = $1
		ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var out []model.Approval
	for rows.Next() {
		var a model.Approval
		var payload []byte
		if err := rows.Scan(&a.ID, &a.ConversationID, &a.ToolID, &a.ToolType,
			&payload, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		_ = json.Unmarshal(payload, &a.Payload)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateContact(ctx context.Context, contact *model.Contact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, organization_id, conversation_id, email,
			phone_number, first_name, last_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		contact.ID, contact.OrganizationID, contact.ConversationID, contact.Email,
		contact.PhoneNumber, contact.FirstName, contact.LastName, contact.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET contact_id = $1, updated_at = now() WHERE id = $2`,
		contact.ID, contact.ConversationID)
	return err
}

func (s *PostgresStore) GetUsage(ctx context.Context, organizationID string) (*model.Usage, error) {
	var usage model.Usage
	err := s.db.QueryRowContext(ctx, `
		SELECT organization_id, nb_agent_queries, notified_agent_queries_limit_reached
		FROM usage WHERE organization_id = $1`, organizationID).Scan(
		&usage.OrganizationID, &usage.NbAgentQueries,
		&usage.NotifiedAgentQueriesLimitReached,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.Usage{OrganizationID: organizationID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	return &usage, nil
}

func (s *PostgresStore) IncrementAgentQueries(ctx context.Context, organizationID string, by int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage (organization_id, nb_agent_queries)
		VALUES ($1, $2)
		ON CONFLICT (organization_id)
		DO UPDATE SET nb_agent_queries = usage.nb_agent_queries + $2`,
		organizationID, by)
	if err != nil {
		return fmt.Errorf("increment agent queries: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetQuotaNotified(ctx context.Context, organizationID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage (organization_id, notified_agent_queries_limit_reached)
		VALUES ($1, true)
		ON CONFLICT (organization_id)
		DO UPDATE SET notified_agent_queries_limit_reached = true`,
		organizationID)
	if err != nil {
		return fmt.Errorf("set quota notified: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
