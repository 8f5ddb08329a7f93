package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gsg-platform/bridge/pkg/errdef"
	"github.com/gsg-platform/bridge/pkg/tenants"
)

// RunStore persists agent run records with upsert semantics on
// agent_run_id. Only output, tools, status, ended_at, duration_ms, and
// metadata change on update; every other field is immutable after first
// write.
type RunStore struct{}

func NewRunStore() *RunStore {
	return &RunStore{}
}

// Upsert creates or updates a run.
func (s *RunStore) Upsert(ctx context.Context, scope *tenants.Scope, run *AgentRun) error {
	if err := scope.Check(run.TenantID); err != nil {
		return err
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if run.EndedAt != nil && run.EndedAt.Before(run.StartedAt) {
		return errdef.Wrap(errdef.ErrConflict, "run %s ended before it started", run.AgentRunID)
	}

	if run.ParentRunID != nil {
		var one int
		err := scope.Conn().QueryRowContext(ctx,
			`SELECT 1 FROM agent_run WHERE tenant_id = $1 AND agent_run_id = $2`,
			run.TenantID, *run.ParentRunID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return errdef.Wrap(errdef.ErrConflict,
				"parent run %s not found in tenant %s", *run.ParentRunID, run.TenantID)
		}
		if err != nil {
			return errdef.Wrap(errdef.ErrTransientStorage, "parent lookup: %v", err)
		}
	}

	tools, err := json.Marshal(run.Tools)
	if err != nil {
		return errdef.Wrap(errdef.ErrConflict, "marshal tools: %v", err)
	}

	res, err := scope.Conn().ExecContext(ctx, `
		INSERT INTO agent_run (agent_run_id, tenant_id, agent_name, agent_type, project_tag,
			parent_run_id, input, output, tools, model_config, tokens_used, cost, status,
			started_at, ended_at, duration_ms, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (agent_run_id) DO UPDATE SET
			output = EXCLUDED.output,
			tools = EXCLUDED.tools,
			status = EXCLUDED.status,
			ended_at = EXCLUDED.ended_at,
			duration_ms = EXCLUDED.duration_ms,
			metadata = EXCLUDED.metadata,
			updated_at = now()
		WHERE agent_run.tenant_id = EXCLUDED.tenant_id
	`, run.AgentRunID, run.TenantID, run.AgentName, run.AgentType, run.ProjectTag,
		run.ParentRunID, nullableJSON(run.Input), nullableJSON(run.Output), tools,
		nullableJSON(run.ModelConfig), run.TokensUsed, run.Cost, run.Status,
		run.StartedAt, run.EndedAt, run.DurationMS, nullableJSON(run.Metadata))
	if err != nil {
		return errdef.Wrap(errdef.ErrTransientStorage, "upsert run: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errdef.Wrap(errdef.ErrTransientStorage, "upsert run: %v", err)
	}
	if n == 0 {
		// The id conflicted but the tenant guard made the update a no-op:
		// the run id is owned by another tenant.
		return errdef.Wrap(errdef.ErrTenantViolation,
			"run %s exists under another tenant", run.AgentRunID)
	}
	return nil
}

const runColumns = `agent_run_id, tenant_id, agent_name, agent_type, project_tag,
	parent_run_id, input, output, tools, model_config, tokens_used, cost, status,
	started_at, ended_at, duration_ms, metadata, created_at, updated_at`

// Get returns one run of the scope's tenant.
func (s *RunStore) Get(ctx context.Context, scope *tenants.Scope, runID string) (*AgentRun, error) {
	row := scope.Conn().QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM agent_run WHERE tenant_id = $1 AND agent_run_id = $2`,
		scope.Tenant(), runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdef.Wrap(errdef.ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrTransientStorage, "get run: %v", err)
	}
	return run, nil
}

// List returns runs matching the filter, started_at descending.
func (s *RunStore) List(ctx context.Context, scope *tenants.Scope, filter RunFilter) ([]AgentRun, int, error) {
	where := `WHERE tenant_id = $1`
	args := []any{scope.Tenant()}
	n := 1

	addArg := func(clause string, v any) {
		n++
		where += ` AND ` + clause + `$` + strconv.Itoa(n)
		args = append(args, v)
	}
	if filter.AgentName != "" {
		addArg("agent_name = ", filter.AgentName)
	}
	if filter.Status != "" {
		addArg("status = ", filter.Status)
	}
	if filter.From != nil {
		addArg("started_at >= ", *filter.From)
	}
	if filter.To != nil {
		addArg("started_at < ", *filter.To)
	}

	var total int
	if err := scope.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_run `+where, args...).Scan(&total); err != nil {
		return nil, 0, errdef.Wrap(errdef.ErrTransientStorage, "count runs: %v", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM agent_run ` + where +
		` ORDER BY started_at DESC LIMIT ` + strconv.Itoa(limit) +
		` OFFSET ` + strconv.Itoa(max(filter.Offset, 0))

	rows, err := scope.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errdef.Wrap(errdef.ErrTransientStorage, "list runs: %v", err)
	}
	defer func() { _ = rows.Close() }()

	//nolint:prealloc // result count unknown from SQL query
	var out []AgentRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errdef.Wrap(errdef.ErrTransientStorage, "list runs: %v", err)
	}
	return out, total, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*AgentRun, error) {
	var run AgentRun
	var input, output, tools, modelConfig, metadata []byte
	if err := row.Scan(&run.AgentRunID, &run.TenantID, &run.AgentName, &run.AgentType,
		&run.ProjectTag, &run.ParentRunID, &input, &output, &tools, &modelConfig,
		&run.TokensUsed, &run.Cost, &run.Status, &run.StartedAt, &run.EndedAt,
		&run.DurationMS, &metadata, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	run.Input = input
	run.Output = output
	run.ModelConfig = modelConfig
	run.Metadata = metadata
	if len(tools) > 0 {
		if err := json.Unmarshal(tools, &run.Tools); err != nil {
			return nil, errdef.Wrap(errdef.ErrTransientStorage, "corrupt tools column: %v", err)
		}
	}
	return &run, nil
}
