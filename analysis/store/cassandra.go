// Package store persists pipeline runs to Cassandra.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/loupe/analysis"
)

// CassandraConfig locates the cluster. The keyspace must already exist.
type CassandraConfig struct {
	Hosts    []string
	Keyspace string
	Timeout  time.Duration
}

// execer runs one CQL statement.
type execer interface {
	exec(ctx context.Context, stmt string, args ...any) error
}

type sessionExecer struct {
	session *gocql.Session
}

func (s sessionExecer) exec(ctx context.Context, stmt string, args ...any) error {
	return s.session.Query(stmt, args...).WithContext(ctx).Exec()
}

// CassandraSink writes documents, per-label outcomes and topic tables of a run.
type CassandraSink struct {
	db     execer
	close  func()
	Logger *zap.Logger
}

// ConnectCassandra opens a session with quorum consistency.
func ConnectCassandra(cfg CassandraConfig) (*CassandraSink, error) {
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("ConnectCassandra: no hosts")
	}
	if cfg.Keyspace == "" {
		return nil, fmt.Errorf("ConnectCassandra: keyspace is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = timeout
	cluster.ConnectTimeout = timeout

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("ConnectCassandra: failed to connect to Cassandra: %w", err)
	}
	return &CassandraSink{db: sessionExecer{session: session}, close: session.Close}, nil
}

func (s *CassandraSink) Close() {
	if s.close != nil {
		s.close()
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS loupe_runs (
		run_id uuid PRIMARY KEY,
		created_at timestamp,
		documents int
	)`,
	`CREATE TABLE IF NOT EXISTS loupe_documents (
		run_id uuid,
		doc_id text,
		text text,
		label text,
		scores list<double>,
		topic text,
		topic_probability double,
		fields map<text, text>,
		PRIMARY KEY (run_id, doc_id)
	)`,
	`CREATE TABLE IF NOT EXISTS loupe_labels (
		run_id uuid,
		label text,
		documents int,
		topics int,
		min_topic_size int,
		attempts list<int>,
		degenerate boolean,
		probe_error text,
		PRIMARY KEY (run_id, label)
	)`,
	`CREATE TABLE IF NOT EXISTS loupe_topics (
		run_id uuid,
		label text,
		topic_id int,
		count int,
		main_words text,
		term_scores text,
		PRIMARY KEY ((run_id, label), topic_id)
	)`,
}

// EnsureSchema creates the tables when missing.
func (s *CassandraSink) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if err := s.db.exec(ctx, stmt); err != nil {
			return fmt.Errorf("EnsureSchema: %w", err)
		}
	}
	return nil
}

const (
	insertRun      = `INSERT INTO loupe_runs (run_id, created_at, documents) VALUES (?, ?, ?)`
	insertDocument = `INSERT INTO loupe_documents (run_id, doc_id, text, label, scores, topic, topic_probability, fields) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	insertLabel    = `INSERT INTO loupe_labels (run_id, label, documents, topics, min_topic_size, attempts, degenerate, probe_error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	insertTopic    = `INSERT INTO loupe_topics (run_id, label, topic_id, count, main_words, term_scores) VALUES (?, ?, ?, ?, ?, ?)`
)

// WriteRun stores manifest and res under manifest.RunID, which must be a UUID.
func (s *CassandraSink) WriteRun(ctx context.Context, manifest *analysis.RunManifest, res *analysis.PartitionResult) error {
	runID, err := gocql.ParseUUID(manifest.RunID)
	if err != nil {
		return fmt.Errorf("WriteRun: run id %q: %w", manifest.RunID, err)
	}
	createdAt, err := time.Parse(time.RFC3339, manifest.CreatedAt)
	if err != nil {
		return fmt.Errorf("WriteRun: created_at: %w", err)
	}

	if err := s.db.exec(ctx, insertRun, runID, createdAt, manifest.Documents); err != nil {
		return fmt.Errorf("WriteRun: run: %w", err)
	}
	for _, d := range res.All {
		if err := s.db.exec(ctx, insertDocument, documentRow(runID, d)...); err != nil {
			return fmt.Errorf("WriteRun: document %q: %w", d.ID, err)
		}
	}
	for _, lm := range manifest.Labels {
		if err := s.db.exec(ctx, insertLabel, runID, lm.Label.String(), lm.Documents, lm.Topics,
			lm.MinTopicSize, lm.Attempts, lm.Degenerate, lm.ProbeError); err != nil {
			return fmt.Errorf("WriteRun: label %s: %w", lm.Label, err)
		}
		tr := res.Topics[lm.Label]
		if tr == nil {
			continue
		}
		for _, f := range tr.Frequencies {
			if err := s.db.exec(ctx, insertTopic, runID, lm.Label.String(), f.TopicID, f.Count,
				f.MainWords, f.TermScores); err != nil {
				return fmt.Errorf("WriteRun: topic %s_%d: %w", lm.Label, f.TopicID, err)
			}
		}
	}

	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("run stored in cassandra",
		zap.String("run_id", manifest.RunID),
		zap.Int("documents", len(res.All)),
		zap.Int("labels", len(manifest.Labels)))
	return nil
}

func documentRow(runID gocql.UUID, d *analysis.Document) []any {
	fields := make(map[string]string, len(d.Fields))
	for _, f := range d.Fields {
		fields[f.Name] = f.Value
	}
	topic, prob := "", 0.0
	if d.Topic != nil {
		topic = analysis.TopicColumn(d)
		prob = d.Topic.Probability
	}
	return []any{runID, d.ID, d.Text, d.Sentiment.Label.String(), d.Sentiment.Scores, topic, prob, fields}
}
