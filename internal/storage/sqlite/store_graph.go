package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/outpost-fi/sovereign/internal/graph"
	"github.com/outpost-fi/sovereign/internal/storage"
)

// UpsertNode merges a node by ID. An upsert carrying no properties never
// clobbers properties written by an earlier upsert.
func (s *Store) UpsertNode(ctx context.Context, node graph.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(node.ID) == "" {
		return fmt.Errorf("node id is required")
	}
	if strings.TrimSpace(node.Type) == "" {
		return fmt.Errorf("node type is required")
	}

	properties, err := encodeProperties(node.Properties)
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}

	if len(node.Properties) == 0 {
		_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO graph_nodes (id, node_type, properties)
VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET node_type = excluded.node_type
`, node.ID, node.Type, properties)
	} else {
		_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO graph_nodes (id, node_type, properties)
VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	node_type = excluded.node_type,
	properties = excluded.properties
`, node.ID, node.Type, properties)
	}
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}
	return nil
}

// UpsertEdge merges an edge by ID; replaying the same projection is a no-op.
func (s *Store) UpsertEdge(ctx context.Context, edge graph.Edge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(edge.ID) == "" {
		return fmt.Errorf("edge id is required")
	}
	if strings.TrimSpace(edge.Type) == "" {
		return fmt.Errorf("edge type is required")
	}
	if strings.TrimSpace(edge.FromID) == "" || strings.TrimSpace(edge.ToID) == "" {
		return fmt.Errorf("edge endpoints are required")
	}

	properties, err := encodeProperties(edge.Properties)
	if err != nil {
		return fmt.Errorf("upsert edge: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO graph_edges (id, edge_type, from_id, to_id, amount, properties)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	edge_type = excluded.edge_type,
	from_id = excluded.from_id,
	to_id = excluded.to_id,
	amount = excluded.amount,
	properties = excluded.properties
`, edge.ID, edge.Type, edge.FromID, edge.ToID, edge.Amount.String(), properties)
	if err != nil {
		return fmt.Errorf("upsert edge: %w", err)
	}
	return nil
}

// CountNodesByType counts mirrored nodes of one type.
func (s *Store) CountNodesByType(ctx context.Context, nodeType string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var count int64
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM graph_nodes WHERE node_type = ?`, nodeType).Scan(&count); err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	return count, nil
}

// SumEdgeAmounts totals the amounts of every edge with the given relation.
// Amounts are stored as text and summed exactly.
func (s *Store) SumEdgeAmounts(ctx context.Context, relation string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	if s == nil || s.sqlDB == nil {
		return decimal.Zero, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT amount FROM graph_edges WHERE edge_type = ?`, relation)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum edge amounts: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, fmt.Errorf("sum edge amounts: %w", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("sum edge amounts: parse %q: %w", raw, err)
		}
		total = total.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("sum edge amounts: %w", err)
	}
	return total, nil
}

// DeleteAll clears the mirror ahead of a rebuild.
func (s *Store) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete graph: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_edges`); err != nil {
		return fmt.Errorf("delete graph edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_nodes`); err != nil {
		return fmt.Errorf("delete graph nodes: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete graph: %w", err)
	}
	return nil
}

func encodeProperties(properties map[string]string) (string, error) {
	if len(properties) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(properties)
	if err != nil {
		return "", fmt.Errorf("encode properties: %w", err)
	}
	return string(raw), nil
}

func decodeProperties(raw string) (map[string]string, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var properties map[string]string
	if err := json.Unmarshal([]byte(raw), &properties); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	return properties, nil
}

// GetNode fetches one mirrored node; used by integrity tooling and tests.
func (s *Store) GetNode(ctx context.Context, nodeID string) (graph.Node, error) {
	if err := ctx.Err(); err != nil {
		return graph.Node{}, err
	}
	if s == nil || s.sqlDB == nil {
		return graph.Node{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, node_type, properties FROM graph_nodes WHERE id = ?`, nodeID)

	var node graph.Node
	var rawProperties string
	if err := row.Scan(&node.ID, &node.Type, &rawProperties); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return graph.Node{}, storage.ErrNotFound
		}
		return graph.Node{}, fmt.Errorf("get node: %w", err)
	}
	properties, err := decodeProperties(rawProperties)
	if err != nil {
		return graph.Node{}, fmt.Errorf("get node: %w", err)
	}
	node.Properties = properties
	return node, nil
}
