package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"nester/config"
	"nester/logging"
	"nester/models"
)

const timestampIndex = "idx_scan_results_timestamp"

// Filter narrows a Query. A zero Filter selects every row.
type Filter struct {
	// Case-sensitive substring matched against franchise_id, ip_address
	// and the serialized scan_data.
	Term   string
	Limit  int
	Offset int
}

// Store owns the scan_results table. Rows are append-only.
type Store struct {
	db *gorm.DB
}

func Open(conf config.Database, log zerolog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch conf.Driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(sqliteDSN(conf))
	case config.DriverMySQL:
		dsn, err := mysqlDSN(conf.DSN)
		if err != nil {
			return nil, err
		}
		dialector = mysql.New(mysql.Config{DSN: dsn.FormatDSN(), DSNConfig: dsn})
	default:
		return nil, errors.Errorf("unsupported database driver %q", conf.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:      logging.NewGorm(log, conf.SlowQuery),
		NowFunc:     func() time.Time { return time.Now().UTC() },
		PrepareStmt: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", conf.Driver)
	}

	if conf.Driver == config.DriverSQLite && strings.Contains(conf.DSN, ":memory:") {
		// every connection to :memory: is a different database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "failed to access connection pool")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return New(db)
}

// mysqlDSN parses dsn and forces time parsing in UTC; without it DATETIME
// columns cannot be scanned into time.Time.
func mysqlDSN(dsn string) (*mysqldriver.Config, error) {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "invalid mysql dsn")
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg, nil
}

// WAL lets readers proceed while the single writer holds the lock, and the
// busy timeout bounds how long a writer waits for it.
func sqliteDSN(conf config.Database) string {
	if strings.Contains(conf.DSN, ":memory:") {
		return conf.DSN
	}
	sep := "?"
	if strings.Contains(conf.DSN, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_busy_timeout=%d&_journal_mode=WAL&_txlock=immediate",
		conf.DSN, sep, conf.BusyTimeout.Milliseconds())
}

func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("no database handle provided")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EnsureSchema creates the scan_results table and its timestamp index when
// they are absent. Existing tables are left untouched.
func (s *Store) EnsureSchema(ctx context.Context) error {
	m := s.db.WithContext(ctx).Migrator()
	if !m.HasTable(&models.ScanResult{}) {
		if err := m.CreateTable(&models.ScanResult{}); err != nil {
			// another process may have won the race
			if !m.HasTable(&models.ScanResult{}) {
				return storageErr("ensure schema", err)
			}
		}
	}
	if !m.HasIndex(&models.ScanResult{}, timestampIndex) {
		if err := m.CreateIndex(&models.ScanResult{}, timestampIndex); err != nil {
			return storageErr("ensure schema", err)
		}
	}
	return nil
}

func (s *Store) withTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// Insert appends r and returns its assigned id. The id and timestamp on r
// are always assigned here, whatever the caller put in them.
func (s *Store) Insert(ctx context.Context, r *models.ScanResult) (uint, error) {
	if r == nil {
		return 0, storageErr("insert", errors.New("nil scan result"))
	}
	r.ID = 0
	r.Timestamp = time.Time{}
	if len(r.ScanData) == 0 {
		r.ScanData = []byte("{}")
	}

	err := s.withTransaction(ctx, func(tx *gorm.DB) error {
		return errors.Wrap(tx.Create(r).Error, "failed to create scan result")
	})
	if err != nil {
		return 0, storageErr("insert", err)
	}
	return r.ID, nil
}

// contains returns a case-sensitive substring predicate for column. LIKE is
// avoided on purpose: it folds ASCII case in SQLite and treats % and _ as
// wildcards.
func (s *Store) contains(column string) string {
	if s.db.Dialector.Name() == config.DriverMySQL {
		return fmt.Sprintf("LOCATE(BINARY ?, %s) > 0", column)
	}
	return fmt.Sprintf("instr(%s, ?) > 0", column)
}

// Query returns the rows selected by f, most recent first. Rows sharing a
// timestamp come back in reverse insertion order.
func (s *Store) Query(ctx context.Context, f Filter) ([]models.ScanResult, error) {
	q := s.db.WithContext(ctx).Model(&models.ScanResult{})
	if f.Term != "" {
		q = q.Where(
			strings.Join([]string{
				s.contains("franchise_id"),
				s.contains("ip_address"),
				s.contains("scan_data"),
			}, " OR "),
			f.Term, f.Term, f.Term,
		)
	}
	q = q.Order("timestamp DESC").Order("id DESC")
	// offset is only meaningful inside a page
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
		if f.Offset > 0 {
			q = q.Offset(f.Offset)
		}
	}

	results := []models.ScanResult{}
	if err := q.Find(&results).Error; err != nil {
		return nil, storageErr("query", errors.Wrap(err, "failed to find scan results"))
	}
	return results, nil
}

func (s *Store) Get(ctx context.Context, id uint) (*models.ScanResult, error) {
	var r models.ScanResult
	err := s.db.WithContext(ctx).First(&r, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get", errors.Wrapf(err, "failed to find scan result %d", id))
	}
	return &r, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.ScanResult{}).Count(&n).Error; err != nil {
		return 0, storageErr("count", err)
	}
	return n, nil
}
