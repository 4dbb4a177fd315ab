package main

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	driverMySQL  = "mysql"
	driverSQLite = "sqlite"

	searchLimit = 50

	// LOWER of sqlite folds ASCII only
	sqliteLowerFunc = "unicode_lower"
)

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(sqliteLowerFunc, 1,
		func(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch v := args[0].(type) {
			case string:
				return strings.ToLower(v), nil
			case []byte:
				return strings.ToLower(string(v)), nil
			}
			return args[0], nil
		},
	)
}

//go:embed schema_*.sql
var schemaFS embed.FS

type MusicianRow struct {
	ID           int64  `db:"id"`
	Username     string `db:"username"`
	Name         string `db:"name"`
	Instrument   string `db:"instrument"`
	Bio          string `db:"bio"`
	PasswordHash string `db:"password_hash"`
}

// Public drops the password hash. Everything rendered goes through Musician.
func (r *MusicianRow) Public() *Musician {
	return &Musician{
		ID:         r.ID,
		Username:   r.Username,
		Name:       r.Name,
		Instrument: r.Instrument,
		Bio:        r.Bio,
	}
}

type Musician struct {
	ID         int64  `db:"id"`
	Username   string `db:"username"`
	Name       string `db:"name"`
	Instrument string `db:"instrument"`
	Bio        string `db:"bio"`
}

type PieceRow struct {
	ID         int64  `db:"id"`
	Title      string `db:"title"`
	Composer   string `db:"composer"`
	Year       int    `db:"year"`
	MusicianID int64  `db:"musician_id"`
}

type connOrTx interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	DriverName() string
}

func connectDB(cfg DBConfig) (*sqlx.DB, error) {
	switch cfg.Driver {
	case driverMySQL:
		config := mysql.NewConfig()
		config.Net = "tcp"
		config.Addr = cfg.Host + ":" + cfg.Port
		config.User = cfg.User
		config.Passwd = cfg.Password
		config.DBName = cfg.Name
		config.ParseTime = true

		db, err := sqlx.Open("mysql", config.FormatDSN())
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		return db, nil
	case driverSQLite:
		dsn := "file:" + cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
		db, err := sqlx.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		// sqlite serializes writers anyway
		db.SetMaxOpenConns(1)
		return db, nil
	}
	return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
}

func initSchema(ctx context.Context, db *sqlx.DB, driver string) error {
	b, err := schemaFS.ReadFile("schema_" + driver + ".sql")
	if err != nil {
		return fmt.Errorf("error read schema for %s: %w", driver, err)
	}
	// go-sql-driver/mysql runs one statement per Exec unless multiStatements is on
	for _, stmt := range strings.Split(string(b), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error exec schema statement: %w", err)
		}
	}
	return nil
}

func isDuplicateEntry(err error) bool {
	// handling a "Duplicate entry"
	var merr *mysql.MySQLError
	if errors.As(err, &merr) && merr.Number == 1062 {
		return true
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return true
		}
		return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(serr.Error(), "UNIQUE")
	}
	return false
}

// escapeLike makes the user input match literally inside LIKE ... ESCAPE '!'.
func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}

// DBにアクセスして結果を引いてくる関数

func insertMusician(ctx context.Context, db connOrTx, username, name, instrument, bio, passwordHash string) (int64, error) {
	res, err := db.ExecContext(
		ctx,
		"INSERT INTO musicians (`username`, `name`, `instrument`, `bio`, `password_hash`) VALUES (?, ?, ?, ?, ?)",
		username, name, instrument, bio, passwordHash,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return 0, fmt.Errorf("error Insert musician by username=%s: %w", username, ErrDuplicateUsername)
		}
		return 0, fmt.Errorf("error Insert musician by username=%s: %w", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("error LastInsertId of musician: %w", err)
	}
	return id, nil
}

const musicianColumns = "`id`, `username`, `name`, `instrument`, `bio`, `password_hash`"

func getMusicianByID(ctx context.Context, db connOrTx, id int64) (*MusicianRow, error) {
	var row MusicianRow
	if err := db.GetContext(ctx, &row, "SELECT "+musicianColumns+" FROM musicians WHERE `id` = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error Get musician by id=%d: %w", id, err)
	}
	return &row, nil
}

func getMusicianByUsername(ctx context.Context, db connOrTx, username string) (*MusicianRow, error) {
	var row MusicianRow
	if err := db.GetContext(ctx, &row, "SELECT "+musicianColumns+" FROM musicians WHERE `username` = ?", username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error Get musician by username=%s: %w", username, err)
	}
	return &row, nil
}

// searchMusicians matches query as a case-insensitive substring of username or name.
// Results are ordered by id so paging through equal data is stable.
func searchMusicians(ctx context.Context, db connOrTx, query string, limit int) ([]Musician, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	lower := "LOWER"
	if db.DriverName() == driverSQLite {
		lower = sqliteLowerFunc
	}
	musicians := []Musician{}
	if err := db.SelectContext(
		ctx,
		&musicians,
		"SELECT `id`, `username`, `name`, `instrument`, `bio` FROM musicians"+
			" WHERE "+lower+"(`username`) LIKE ? ESCAPE '!' OR "+lower+"(`name`) LIKE ? ESCAPE '!'"+
			" ORDER BY `id` ASC LIMIT ?",
		pattern, pattern, limit,
	); err != nil {
		return nil, fmt.Errorf("error Select musicians by query=%s: %w", query, err)
	}
	return musicians, nil
}

func updateMusicianProfile(ctx context.Context, db connOrTx, id int64, name, instrument, bio string) error {
	if _, err := db.ExecContext(
		ctx,
		"UPDATE musicians SET `name` = ?, `instrument` = ?, `bio` = ? WHERE `id` = ?",
		name, instrument, bio, id,
	); err != nil {
		return fmt.Errorf("error Update musician profile by id=%d: %w", id, err)
	}
	return nil
}

func updateMusicianPasswordHash(ctx context.Context, db connOrTx, id int64, passwordHash string) error {
	if _, err := db.ExecContext(
		ctx,
		"UPDATE musicians SET `password_hash` = ? WHERE `id` = ?",
		passwordHash, id,
	); err != nil {
		return fmt.Errorf("error Update musician password_hash by id=%d: %w", id, err)
	}
	return nil
}

func insertPiece(ctx context.Context, db connOrTx, title, composer string, year int, musicianID int64) (int64, error) {
	res, err := db.ExecContext(
		ctx,
		"INSERT INTO pieces (`title`, `composer`, `year`, `musician_id`) VALUES (?, ?, ?, ?)",
		title, composer, year, musicianID,
	)
	if err != nil {
		return 0, fmt.Errorf(
			"error Insert piece by title=%s, composer=%s, year=%d, musician_id=%d: %w",
			title, composer, year, musicianID, err,
		)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("error LastInsertId of piece: %w", err)
	}
	return id, nil
}

func getPieceByID(ctx context.Context, db connOrTx, id int64) (*PieceRow, error) {
	var row PieceRow
	if err := db.GetContext(
		ctx,
		&row,
		"SELECT `id`, `title`, `composer`, `year`, `musician_id` FROM pieces WHERE `id` = ?",
		id,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error Get piece by id=%d: %w", id, err)
	}
	return &row, nil
}

func getPiecesByMusicianID(ctx context.Context, db connOrTx, musicianID int64) ([]PieceRow, error) {
	pieces := []PieceRow{}
	if err := db.SelectContext(
		ctx,
		&pieces,
		"SELECT `id`, `title`, `composer`, `year`, `musician_id` FROM pieces WHERE `musician_id` = ? ORDER BY `id` ASC",
		musicianID,
	); err != nil {
		return nil, fmt.Errorf("error Select pieces by musician_id=%d: %w", musicianID, err)
	}
	return pieces, nil
}

// deletePiece is scoped to the owner so a stale ownership check can never remove another musician's row.
func deletePiece(ctx context.Context, db connOrTx, id, musicianID int64) (bool, error) {
	res, err := db.ExecContext(
		ctx,
		"DELETE FROM pieces WHERE `id` = ? AND `musician_id` = ?",
		id, musicianID,
	)
	if err != nil {
		return false, fmt.Errorf("error Delete piece by id=%d, musician_id=%d: %w", id, musicianID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error RowsAffected of piece delete: %w", err)
	}
	return n > 0, nil
}
