package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/scout-hq/scout-api/internal/models"
)

// SubscriptionRepository resolves the active plan for a tenant.
type SubscriptionRepository struct {
	db *sqlx.DB
}

// NewSubscriptionRepository creates a new instance of SubscriptionRepository.
func NewSubscriptionRepository(db *sqlx.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// GetActivePlan returns the company's current plan with its limits and
// enabled features, or sql.ErrNoRows when the company has no active
// subscription.
func (r *SubscriptionRepository) GetActivePlan(ctx context.Context, companyID string) (*models.Plan, error) {
	const query = `SELECT p.id, p.name, p.max_jobs, p.max_candidates, p.max_assessments, p.features, s.expires_at
		FROM subscriptions s
		JOIN plans p ON p.id = s.plan_id
		WHERE s.company_id = $1 AND s.active AND s.expires_at > NOW()
		ORDER BY s.expires_at DESC
		LIMIT 1`

	var plan models.Plan
	var features pq.StringArray
	row := r.db.QueryRowxContext(ctx, query, companyID)
	if err := row.Scan(&plan.ID, &plan.Name, &plan.MaxJobs, &plan.MaxCandidates, &plan.MaxAssessments, &features, &plan.ExpiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get active plan: %w", err)
	}
	plan.Features = features
	return &plan, nil
}
