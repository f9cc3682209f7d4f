package model

import (
	"time"
)

// Organization is the tenant owning agents and conversations.
type Organization struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	OwnerEmail string    `json:"owner_email"`
	Plan       string    `json:"plan"`
	CreatedAt  time.Time `json:"created_at"`

	// AgentQueriesQuota is the plan limit on agent queries per cycle.
	AgentQueriesQuota int `json:"agent_queries_quota"`
}

// Usage is the per-organization agent-query counter.
type Usage struct {
	OrganizationID string `json:"organization_id"`
	NbAgentQueries int    `json:"nb_agent_queries"`

	// NotifiedAgentQueriesLimitReached is sticky: set once when the quota is
	// first exceeded so the limit mail is only sent one time.
	NotifiedAgentQueriesLimitReached bool `json:"notified_agent_queries_limit_reached"`
}
