package vectorstore

import (
	"context"
	"drone-helpdesk-go/internal/model"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PgvectorBackend 将分块存入 Postgres 表，使用 <=> 计算余弦距离。
type PgvectorBackend struct {
	pool  *pgxpool.Pool
	table string
	dims  int
}

// NewPgvectorBackend 创建后端。表名只允许标识符字符。
func NewPgvectorBackend(pool *pgxpool.Pool, table string, dims int) (*PgvectorBackend, error) {
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PgvectorBackend{pool: pool, table: table, dims: dims}, nil
}

func (b *PgvectorBackend) Name() string       { return "pgvector" }
func (b *PgvectorBackend) Collection() string { return b.table }

// EnsureSchema 创建分块表与 HNSW 索引。
func (b *PgvectorBackend) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			text_content TEXT NOT NULL,
			source TEXT NOT NULL,
			document_type TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			total_chunks INTEGER NOT NULL,
			embedding vector(%d) NOT NULL
		)`, b.table, b.dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, b.table, b.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_document_type_idx ON %s (document_type)`, b.table, b.table),
	}
	for _, stmt := range stmts {
		if _, err := b.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure pgvector schema: %w", err)
		}
	}
	return nil
}

// Upsert 在一个事务内写入全部记录，冲突时覆盖。
func (b *PgvectorBackend) Upsert(ctx context.Context, records []Record) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, text_content, source, document_type, chunk_index, total_chunks, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			text_content = EXCLUDED.text_content,
			source = EXCLUDED.source,
			document_type = EXCLUDED.document_type,
			chunk_index = EXCLUDED.chunk_index,
			total_chunks = EXCLUDED.total_chunks,
			embedding = EXCLUDED.embedding`, b.table)

	return pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range records {
			batch.Queue(query,
				r.ID, r.Text, r.Metadata.Source, string(r.Metadata.DocumentType),
				r.Metadata.ChunkIndex, r.Metadata.TotalChunks, pgvector.NewVector(r.Vector),
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// buildQuery 生成近邻查询语句，过滤字段只来自固定白名单。
func (b *PgvectorBackend) buildQuery(vector []float32, k int, filter Filter) (string, []interface{}) {
	args := []interface{}{pgvector.NewVector(vector)}
	var where []string
	for _, key := range []string{"source", "document_type"} {
		if value, ok := filter[key]; ok {
			args = append(args, value)
			where = append(where, fmt.Sprintf("%s = $%d", key, len(args)))
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT id, text_content, source, document_type, chunk_index, total_chunks, embedding <=> $1 AS distance FROM %s", b.table)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, k)
	fmt.Fprintf(&sb, " ORDER BY distance LIMIT $%d", len(args))
	return sb.String(), args
}

func (b *PgvectorBackend) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]model.SearchHit, error) {
	if !validFilter(filter) {
		return []model.SearchHit{}, nil
	}
	query, args := b.buildQuery(vector, k, filter)
	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := []model.SearchHit{}
	for rows.Next() {
		var (
			h       model.SearchHit
			docType string
		)
		if err := rows.Scan(&h.ID, &h.Text, &h.Metadata.Source, &docType,
			&h.Metadata.ChunkIndex, &h.Metadata.TotalChunks, &h.Distance); err != nil {
			return nil, err
		}
		h.Metadata.DocumentType = model.DocumentType(docType)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (b *PgvectorBackend) Count(ctx context.Context) (int64, error) {
	var n int64
	err := b.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", b.table)).Scan(&n)
	return n, err
}

// Reset 删除并重建分块表。
func (b *PgvectorBackend) Reset(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", b.table)); err != nil {
		return err
	}
	return b.EnsureSchema(ctx)
}
