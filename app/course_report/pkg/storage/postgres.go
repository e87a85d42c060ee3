package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/lib/pq"

	"github.com/iWorld-y/course_report/app/course_report/pkg/config"
	"github.com/iWorld-y/course_report/app/course_report/pkg/model"
)

const (
	tableCourseRuns   = "course_runs"
	tableSubjectStats = "subject_stats"
)

// Storage 课程运行记录存档
type Storage struct {
	db *sql.DB
}

// NewStorage 连接 PostgreSQL 并初始化表结构
func NewStorage(cfg config.DBConfig) (*Storage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)

	db, err := sql.Open(dialect.Postgres, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close 关闭数据库连接
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS course_runs (
			id SERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			course TEXT NOT NULL,
			total_students INTEGER,
			class_average DOUBLE PRECISION,
			average_std_dev DOUBLE PRECISION,
			pass_rate DOUBLE PRECISION,
			worst_subject TEXT,
			best_subject TEXT,
			narrative TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS subject_stats (
			id SERIAL PRIMARY KEY,
			course_run_id INTEGER REFERENCES course_runs(id),
			code TEXT,
			name TEXT,
			count INTEGER,
			mean DOUBLE PRECISION,
			median DOUBLE PRECISION,
			std_dev DOUBLE PRECISION,
			min DOUBLE PRECISION,
			max DOUBLE PRECISION
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// SaveCourseRun 在同一事务中保存课程统计与各学科统计
func (s *Storage) SaveCourseRun(ctx context.Context, runID, course string, st *model.Statistics) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	query, args := insertRunQuery(runID, course, st)
	var id int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = fmt.Errorf("%w: %v", err, rerr)
		}
		return err
	}

	if len(st.Summary) > 0 {
		query, args := insertSubjectsQuery(id, st.Summary)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				err = fmt.Errorf("%w: %v", err, rerr)
			}
			return err
		}
	}

	return tx.Commit()
}

func insertRunQuery(runID, course string, st *model.Statistics) (string, []any) {
	return entsql.Dialect(dialect.Postgres).
		Insert(tableCourseRuns).
		Columns("run_id", "course", "total_students", "class_average", "average_std_dev",
			"pass_rate", "worst_subject", "best_subject", "narrative").
		Values(runID, removeNullBytes(course), st.TotalStudents, st.ClassAverage, st.AverageStdDev,
			st.PassRate, removeNullBytes(st.WorstSubject.Name), removeNullBytes(st.BestSubject.Name),
			removeNullBytes(st.Narrative)).
		Returning("id").
		Query()
}

func insertSubjectsQuery(courseRunID int, rows []model.SubjectSummary) (string, []any) {
	b := entsql.Dialect(dialect.Postgres).
		Insert(tableSubjectStats).
		Columns("course_run_id", "code", "name", "count", "mean", "median", "std_dev", "min", "max")
	for _, r := range rows {
		b.Values(courseRunID, removeNullBytes(r.Code), removeNullBytes(r.Name), r.Count, r.Mean, r.Median, r.StdDev, r.Min, r.Max)
	}
	return b.Query()
}

// removeNullBytes PostgreSQL 文本字段不支持 NULL 字节
func removeNullBytes(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
