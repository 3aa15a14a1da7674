package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *Store) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	var ws Workspace
	var override sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, status, plan, ai_active, allow_global_ai, ai_blocked,
			usage_limit_override, business_name, business_description,
			business_hours, location, tone
		FROM bosun.workspaces
		WHERE id = $1
	`, id).Scan(
		&ws.ID, &ws.Name, &ws.Status, &ws.Plan, &ws.AIActive, &ws.AllowGlobalAI, &ws.AIBlocked,
		&override, &ws.BusinessName, &ws.BusinessDescription,
		&ws.BusinessHours, &ws.Location, &ws.Tone,
	)
	if err != nil {
		return nil, notFound(err, "get workspace")
	}
	if override.Valid {
		v := override.Int64
		ws.UsageLimitOverride = &v
	}
	return &ws, nil
}

const aiSettingsColumns = `openai_key, anthropic_key,
			customer_provider, customer_model, coach_provider, coach_model,
			embedding_provider, embedding_model,
			temperature, max_tokens, top_p, rate_limit_per_minute, retry_attempts`

type settingsScan struct {
	temperature, topP                  sql.NullFloat64
	maxTokens, rateLimit, retryAttempt sql.NullInt64
}

func (sc *settingsScan) targets(st *AISettings) []any {
	return []any{
		&st.OpenAIKey, &st.AnthropicKey,
		&st.CustomerProvider, &st.CustomerModel, &st.CoachProvider, &st.CoachModel,
		&st.EmbeddingProvider, &st.EmbeddingModel,
		&sc.temperature, &sc.maxTokens, &sc.topP, &sc.rateLimit, &sc.retryAttempt,
	}
}

func (sc *settingsScan) apply(st *AISettings) {
	if sc.temperature.Valid {
		v := sc.temperature.Float64
		st.Temperature = &v
	}
	if sc.topP.Valid {
		v := sc.topP.Float64
		st.TopP = &v
	}
	if sc.maxTokens.Valid {
		v := int(sc.maxTokens.Int64)
		st.MaxTokens = &v
	}
	if sc.rateLimit.Valid {
		v := int(sc.rateLimit.Int64)
		st.RateLimitPerMinute = &v
	}
	if sc.retryAttempt.Valid {
		v := int(sc.retryAttempt.Int64)
		st.RetryAttempts = &v
	}
}

// GetWorkspaceAISettings returns the workspace's own settings row. A missing
// row yields empty settings, not an error.
func (s *Store) GetWorkspaceAISettings(ctx context.Context, workspaceID string) (*AISettings, error) {
	var st AISettings
	var sc settingsScan
	err := s.db.QueryRowContext(ctx, `
		SELECT `+aiSettingsColumns+`, prompt_template
		FROM bosun.workspace_ai_settings
		WHERE workspace_id = $1
	`, workspaceID).Scan(append(sc.targets(&st), &st.PromptTemplate)...)
	if errors.Is(err, sql.ErrNoRows) {
		return &AISettings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace ai settings: %w", err)
	}
	sc.apply(&st)
	return &st, nil
}

// GetGlobalAISettings returns the admin settings row, or empty settings when
// none has been configured.
func (s *Store) GetGlobalAISettings(ctx context.Context) (*AISettings, error) {
	var st AISettings
	var sc settingsScan
	err := s.db.QueryRowContext(ctx, `
		SELECT `+aiSettingsColumns+`
		FROM bosun.global_ai_settings
		WHERE id = 1
	`).Scan(sc.targets(&st)...)
	if errors.Is(err, sql.ErrNoRows) {
		return &AISettings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get global ai settings: %w", err)
	}
	sc.apply(&st)
	return &st, nil
}

// ApplyWorkspacePatch writes the non-nil fields of patch. Profile fields live
// on the workspace row; prompt and model knobs on the settings row, which is
// created on first write.
func (s *Store) ApplyWorkspacePatch(ctx context.Context, workspaceID string, patch WorkspacePatch) error {
	if patch.Empty() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if patch.BusinessName != nil || patch.BusinessDescription != nil || patch.BusinessHours != nil ||
		patch.Location != nil || patch.Tone != nil || patch.AIActive != nil {
		res, err := tx.ExecContext(ctx, `
			UPDATE bosun.workspaces SET
				business_name = COALESCE($2, business_name),
				business_description = COALESCE($3, business_description),
				business_hours = COALESCE($4, business_hours),
				location = COALESCE($5, location),
				tone = COALESCE($6, tone),
				ai_active = COALESCE($7, ai_active),
				updated_at = now()
			WHERE id = $1
		`, workspaceID, patch.BusinessName, patch.BusinessDescription, patch.BusinessHours,
			patch.Location, patch.Tone, patch.AIActive)
		if err != nil {
			return fmt.Errorf("update workspace: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("update workspace: %w", ErrNotFound)
		}
	}

	if patch.PromptTemplate != nil || patch.Temperature != nil || patch.RateLimitPerMinute != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bosun.workspace_ai_settings (workspace_id, prompt_template, temperature, rate_limit_per_minute)
			VALUES ($1, COALESCE($2, ''), $3, $4)
			ON CONFLICT (workspace_id) DO UPDATE SET
				prompt_template = COALESCE($2, bosun.workspace_ai_settings.prompt_template),
				temperature = COALESCE($3, bosun.workspace_ai_settings.temperature),
				rate_limit_per_minute = COALESCE($4, bosun.workspace_ai_settings.rate_limit_per_minute),
				updated_at = now()
		`, workspaceID, patch.PromptTemplate, patch.Temperature, patch.RateLimitPerMinute); err != nil {
			return fmt.Errorf("update ai settings: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
