package clickhouseclient

import (
	"SQLPumpClickHouse/internal/config"
	"SQLPumpClickHouse/internal/models"
	"SQLPumpClickHouse/internal/sqlparse"
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"
)

type Client struct {
	conn         clickhouse.Conn
	cfg          config.ClickHouseConfig
	QueryTimeout time.Duration
	HistoryTable string
	Logger       *zap.Logger
}

// New создает клиента ClickHouse
func New(cfg config.ClickHouseConfig, logger *zap.Logger) (*Client, error) {
	protocol := clickhouse.Native
	if cfg.Protocol == "http" {
		protocol = clickhouse.HTTP
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Address},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		Protocol:    protocol,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	return &Client{
		conn:         conn,
		cfg:          cfg,
		QueryTimeout: cfg.QueryTimeout,
		HistoryTable: cfg.HistoryTable,
		Logger:       logger,
	}, nil
}

// Ping проверяет соединение
func (c *Client) Ping(ctx context.Context) error {
	if err := c.conn.Ping(ctx); err != nil {
		return fmt.Errorf("clickhouse ping: %w", err)
	}
	return nil
}

// ConnInfo — строка для \conninfo
func (c *Client) ConnInfo() string {
	return fmt.Sprintf("Connected to database %q as user %q on %s (%s)",
		c.cfg.Database, c.cfg.Username, c.cfg.Address, c.cfg.Protocol)
}

// wantsRows — оператор возвращает строки (SELECT, EXPLAIN, SHOW/DESCRIBE/WITH и прочие неизвестные)
func wantsRows(kw sqlparse.Keyword) bool {
	switch kw {
	case sqlparse.KeywordSelect, sqlparse.KeywordExplain, sqlparse.KeywordUnknown:
		return true
	}
	return false
}

// Execute выполняет один закрытый оператор
func (c *Client) Execute(ctx context.Context, stmt *sqlparse.Statement) (*models.Result, error) {
	qctx, cancel := context.WithTimeout(ctx, c.QueryTimeout)
	defer cancel()

	sql := stmt.SQL()
	started := time.Now()
	if !wantsRows(stmt.Keyword) {
		if err := c.conn.Exec(qctx, sql); err != nil {
			c.Logger.Debug("exec", zap.String("keyword", string(stmt.Keyword)), zap.Error(err))
			return nil, err
		}
		return &models.Result{Duration: time.Since(started)}, nil
	}

	rows, err := c.conn.Query(qctx, sql)
	if err != nil {
		c.Logger.Debug("query", zap.String("keyword", string(stmt.Keyword)), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	res := &models.Result{HasRows: true, Columns: rows.Columns()}
	types := rows.ColumnTypes()
	for rows.Next() {
		dest := make([]any, len(types))
		for i, ct := range types {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make([]*string, len(dest))
		for i, v := range dest {
			row[i] = formatValue(v)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	res.Duration = time.Since(started)
	return res, nil
}

// formatValue разыменовывает указатели, которые вернул Scan; nil-значение Nullable даёт nil
func formatValue(v any) *string {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	var s string
	switch val := rv.Interface().(type) {
	case time.Time:
		s = val.Format("2006-01-02 15:04:05")
	case []byte:
		s = string(val)
	default:
		s = fmt.Sprint(val)
	}
	return &s
}

// InsertHistoryBatch пишет журнал выполненных операторов в HistoryTable
func (c *Client) InsertHistoryBatch(ctx context.Context, rows []models.HistoryRow) error {
	if c.HistoryTable == "" || len(rows) == 0 {
		return nil
	}
	// Отдельный контекст с таймаутом, чтобы отмена сервиса не прерывала запись журнала
	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 60*time.Second)
	defer cancel()

	batch, err := c.conn.PrepareBatch(dbCtx,
		"INSERT INTO "+c.HistoryTable+" ("+
			"EventDate, ExecutedAt, Source, Keyword, ObjectType, Object, SQLText, Status, Duration, ErrorText"+
			") VALUES (?,?,?,?,?,?,?,?,?,?)")
	if err != nil {
		c.Logger.Error("prepare batch", zap.Error(err), zap.String("table", c.HistoryTable))
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, row := range rows {
		if err := batch.Append(
			row.EventDate,
			row.ExecutedAt,
			row.Source,
			row.Keyword,
			row.ObjectType,
			row.Object,
			row.SQLText,
			row.Status,
			row.Duration,
			row.ErrorText,
		); err != nil {
			c.Logger.Error("append batch", zap.Error(err), zap.Any("row", row))
			return fmt.Errorf("append: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		c.Logger.Error("send batch", zap.Error(err), zap.String("table", c.HistoryTable))
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Close закрывает соединение с ClickHouse
func (c *Client) Close() error {
	return c.conn.Close()
}
