package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"market-chat/internal/storage/zapadapter"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

var (
	ErrUserExists        = errors.New("user already exists")
	ErrUserNotExist      = errors.New("user does not exist")
	ErrProductNotExist   = errors.New("product does not exist")
	ErrChatExists        = errors.New("chat room already exists")
	ErrChatBadUsers      = errors.New("buyer and seller must differ")
	ErrChatNotExist      = errors.New("chat room does not exist")
	ErrChatHasNoMessages = errors.New("chat room has no messages")
	ErrMessageBadChat    = errors.New("bad chat room id")
	ErrMessageBadAuthor  = errors.New("bad sender id")
)

//go:embed schema.sql
var schema string

// Store defines fields used in db interaction processes
type Store struct {
	logger *zap.SugaredLogger
	db     *pgxpool.Pool
}

// New sets provided zap.Logger via zapadapter to pgxpool.Pool and returns instance of Store struct
func New(ctx context.Context, logger *zap.SugaredLogger, cfg Config, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("pgxpool.ParseConfig: %w", err)
	}
	config.ConnConfig.Logger = zapadapter.NewLogger(logger.Desugar())
	config.ConnConfig.LogLevel = pgx.LogLevelWarn

	for _, opt := range opts {
		opt.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.ConnectConfig: %w", err)
	}

	return &Store{
		logger: logger,
		db:     pool,
	}, nil
}

// Migrate applies embedded schema, every statement is idempotent
func (s *Store) Migrate(ctx context.Context) error {
	s.logger.Debug("Applying schema")

	// Exec without arguments uses simple protocol which allows several statements
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Close closes all connections in the pool
func (s *Store) Close() {
	s.db.Close()
}

// CreateUser creates user and returns it
func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (User, error) {
	s.logger.Debugf("Creating user (%s)", username)

	u := User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	sql := "insert into users (username, email, password_hash, created_at) values ($1, $2, $3, $4) returning id"
	err := s.db.QueryRow(ctx, sql, u.Username, u.Email, u.PasswordHash, u.CreatedAt).Scan(&u.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.UniqueViolation {
				return User{}, ErrUserExists
			}
		}
		return User{}, err
	}

	s.logger.Debugf("Created user (%s) with id %d", username, u.ID)

	return u, nil
}

// UserByID returns user with provided id
func (s *Store) UserByID(ctx context.Context, id int64) (User, error) {
	sql := "select id, username, email, password_hash, created_at from users where id = $1"
	return s.queryUser(ctx, sql, id)
}

// UserByUsername returns user with provided username
func (s *Store) UserByUsername(ctx context.Context, username string) (User, error) {
	sql := "select id, username, email, password_hash, created_at from users where username = $1"
	return s.queryUser(ctx, sql, username)
}

// UsersByIDs returns users found for ids keyed by id, unknown ids are skipped
func (s *Store) UsersByIDs(ctx context.Context, ids []int64) (map[int64]User, error) {
	users := make(map[int64]User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	sql := "select id, username, email, password_hash, created_at from users where id = any($1)"
	rows, err := s.db.Query(ctx, sql, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, err
		}
		users[u.ID] = u
	}

	return users, rows.Err()
}

func (s *Store) queryUser(ctx context.Context, sql string, arg interface{}) (User, error) {
	var u User
	err := s.db.QueryRow(ctx, sql, arg).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotExist
		}
		return User{}, err
	}
	return u, nil
}
