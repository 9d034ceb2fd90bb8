package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"bubblescope/internal/lppl"
	"bubblescope/internal/market"
)

const dateLayout = "2006-01-02"

// SQLiteStore 基于 sqlite 的持久化实现。
// 分析结果以单行 latest-per-symbol 存储，明细 JSON 与聚合字段
// 同一条 INSERT 写入，保证读方看到的始终是一致快照。
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenSQLite 打开（或创建）数据库并执行建表。
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开 sqlite 失败: %w", err)
	}
	// modernc sqlite 对并发写敏感，串行化连接
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// migrate 建表（幂等）。
func (s *SQLiteStore) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS lppl_analysis (
            symbol          TEXT PRIMARY KEY,
            analysis_date   TEXT NOT NULL,
            last_price_date TEXT NOT NULL,
            window_min      INTEGER NOT NULL,
            window_max      INTEGER NOT NULL,
            step            INTEGER NOT NULL,
            report          TEXT NOT NULL,
            created_at      INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS stock_price (
            symbol TEXT NOT NULL,
            date   TEXT NOT NULL,
            open   REAL, high REAL, low REAL,
            close  REAL NOT NULL,
            volume REAL,
            PRIMARY KEY (symbol, date)
        )`,
		`CREATE TABLE IF NOT EXISTS momentum_score (
            symbol        TEXT NOT NULL,
            analysis_date TEXT NOT NULL,
            total_score   REAL,
            signal        INTEGER,
            state         TEXT,
            detail        TEXT,
            latest_price  REAL,
            PRIMARY KEY (symbol, analysis_date)
        )`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) GetLatest(ctx context.Context, symbol string) (*Analysis, error) {
	sym := normSymbol(symbol)
	if sym == "" {
		return nil, errors.New("symbol 不能为空")
	}
	row := s.db.QueryRowContext(ctx, `
        SELECT analysis_date, last_price_date, report, created_at
        FROM lppl_analysis WHERE symbol=?`, sym)

	var analysisDate, lastPriceDate, reportJSON string
	var createdAt int64
	if err := row.Scan(&analysisDate, &lastPriceDate, &reportJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	ad, err := time.Parse(dateLayout, analysisDate)
	if err != nil {
		return nil, fmt.Errorf("损坏的 analysis_date %q: %w", analysisDate, err)
	}
	lpd, err := time.Parse(dateLayout, lastPriceDate)
	if err != nil {
		return nil, fmt.Errorf("损坏的 last_price_date %q: %w", lastPriceDate, err)
	}
	var rep lppl.Report
	if err := json.Unmarshal([]byte(reportJSON), &rep); err != nil {
		return nil, fmt.Errorf("损坏的 report 明细: %w", err)
	}
	return &Analysis{
		Symbol:        sym,
		AnalysisDate:  ad,
		LastPriceDate: lpd,
		Report:        &rep,
		CreatedAt:     time.Unix(createdAt, 0),
	}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, a Analysis) error {
	sym := normSymbol(a.Symbol)
	if sym == "" {
		return errors.New("symbol 不能为空")
	}
	if a.Report == nil {
		return errors.New("report 不能为空")
	}
	blob, err := json.Marshal(a.Report)
	if err != nil {
		return err
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO lppl_analysis
            (symbol, analysis_date, last_price_date, window_min, window_max, step, report, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(symbol) DO UPDATE SET
            analysis_date=excluded.analysis_date,
            last_price_date=excluded.last_price_date,
            window_min=excluded.window_min,
            window_max=excluded.window_max,
            step=excluded.step,
            report=excluded.report,
            created_at=excluded.created_at`,
		sym, a.AnalysisDate.Format(dateLayout), a.LastPriceDate.Format(dateLayout),
		a.Report.WindowMin, a.Report.WindowMax, a.Report.Step, string(blob), created.Unix())
	return err
}

func (s *SQLiteStore) PutBars(ctx context.Context, symbol string, bars []market.Bar) error {
	sym := normSymbol(symbol)
	if sym == "" {
		return errors.New("symbol 不能为空")
	}
	if len(bars) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO stock_price (symbol, date, open, high, low, close, volume)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(symbol, date) DO UPDATE SET
            open=excluded.open, high=excluded.high, low=excluded.low,
            close=excluded.close, volume=excluded.volume`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, sym, b.Date.Format(dateLayout),
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]market.Bar, error) {
	sym := normSymbol(symbol)
	q := `SELECT date, open, high, low, close, volume FROM stock_price WHERE symbol=?`
	args := []any{sym}
	if !start.IsZero() {
		q += ` AND date >= ?`
		args = append(args, start.Format(dateLayout))
	}
	if !end.IsZero() {
		q += ` AND date <= ?`
		args = append(args, end.Format(dateLayout))
	}
	q += ` ORDER BY date ASC`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.Bar
	for rows.Next() {
		var dateStr string
		var b market.Bar
		if err := rows.Scan(&dateStr, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		d, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, err
		}
		b.Date = d
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LastDate(ctx context.Context, symbol string) (time.Time, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM stock_price WHERE symbol=?`, normSymbol(symbol))
	var d sql.NullString
	if err := row.Scan(&d); err != nil {
		return time.Time{}, err
	}
	if !d.Valid || d.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, d.String)
}

func (s *SQLiteStore) GetMomentum(ctx context.Context, symbol string, day time.Time) (*MomentumRecord, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT total_score, signal, state, detail, latest_price
        FROM momentum_score WHERE symbol=? AND analysis_date=?`,
		normSymbol(symbol), day.Format(dateLayout))
	rec := MomentumRecord{Symbol: normSymbol(symbol), AnalysisDate: day}
	if err := row.Scan(&rec.TotalScore, &rec.Signal, &rec.State, &rec.Detail, &rec.LatestPrice); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) PutMomentum(ctx context.Context, rec MomentumRecord) error {
	sym := normSymbol(rec.Symbol)
	if sym == "" {
		return errors.New("symbol 不能为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO momentum_score (symbol, analysis_date, total_score, signal, state, detail, latest_price)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(symbol, analysis_date) DO UPDATE SET
            total_score=excluded.total_score, signal=excluded.signal,
            state=excluded.state, detail=excluded.detail, latest_price=excluded.latest_price`,
		sym, rec.AnalysisDate.Format(dateLayout), rec.TotalScore, rec.Signal,
		rec.State, rec.Detail, rec.LatestPrice)
	return err
}
