package contracts

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/gsg-platform/bridge/pkg/errdef"
)

// PostgresStore persists contracts in the `contracts` table. The table is
// globally owned reference data: readable by every tenant, written only
// at deploy time.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert persists a contract. Inserting the same (name, version) with an
// equivalent schema is a no-op; a different schema is a ContractConflict.
func (s *PostgresStore) Insert(ctx context.Context, c Contract) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts (contract_name, version, schema_json, registered_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (contract_name, version) DO NOTHING
	`, c.Name, c.Version, []byte(c.Schema), c.RegisteredAt)
	if err != nil {
		return fmt.Errorf("insert contract %s@%d: %w", c.Name, c.Version, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if inserted > 0 {
		return nil
	}

	// Conflict path: accept only if the stored schema is equivalent.
	var stored []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT schema_json FROM contracts WHERE contract_name = $1 AND version = $2`,
		c.Name, c.Version).Scan(&stored)
	if err != nil {
		return fmt.Errorf("read back contract %s@%d: %w", c.Name, c.Version, err)
	}

	storedCanonical, err := jcs.Transform(stored)
	if err != nil {
		return fmt.Errorf("stored schema for %s@%d is corrupt: %w", c.Name, c.Version, err)
	}
	newCanonical, err := jcs.Transform(c.Schema)
	if err != nil {
		return fmt.Errorf("schema for %s@%d is not valid JSON: %w", c.Name, c.Version, err)
	}
	if !bytes.Equal(storedCanonical, newCanonical) {
		return errdef.Wrap(errdef.ErrContractConflict,
			"%s@%d already registered with a different schema", c.Name, c.Version)
	}
	return nil
}

// LoadAll reads every persisted contract for cache warming.
func (s *PostgresStore) LoadAll(ctx context.Context) ([]Contract, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT contract_name, version, schema_json, registered_at FROM contracts ORDER BY contract_name, version`)
	if err != nil {
		return nil, fmt.Errorf("load contracts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	//nolint:prealloc // result count unknown from SQL query
	var out []Contract
	for rows.Next() {
		var c Contract
		var schema []byte
		if err := rows.Scan(&c.Name, &c.Version, &schema, &c.RegisteredAt); err != nil {
			return nil, err
		}
		c.Schema = schema
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
