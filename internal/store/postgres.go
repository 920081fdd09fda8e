package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/walletmaster/backend/internal/models"
)

// PGConfig holds postgres connection settings
type PGConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// GetPGConfig returns postgres configuration with defaults
func GetPGConfig() *PGConfig {
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.name", "walletmaster")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", time.Minute*5)

	return &PGConfig{
		Host:            viper.GetString("database.host"),
		Port:            viper.GetString("database.port"),
		User:            viper.GetString("database.user"),
		Password:        viper.GetString("database.password"),
		Name:            viper.GetString("database.name"),
		SSLMode:         viper.GetString("database.ssl_mode"),
		MaxOpenConns:    viper.GetInt("database.max_open_conns"),
		MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
	}
}

// PostgresStore implements Store on database/sql. Card balance writes use an
// optimistic version check so two concurrent orchestrations cannot both apply
// a stale read.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an existing connection (used by tests via sqlmock)
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects using viper configuration and verifies the connection
func OpenPostgres() (*PostgresStore, error) {
	config := GetPGConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Name, config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	log.Println("[STORE] Database connection established")
	return &PostgresStore{db: db}, nil
}

// Close releases the underlying connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Users

const userColumns = "id, username, password, first_name, last_name, email, profile_image, created_at"

func (s *PostgresStore) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var profileImage sql.NullString
	err := row.Scan(&u.ID, &u.Username, &u.Password, &u.FirstName, &u.LastName, &u.Email, &profileImage, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.ProfileImage = profileImage.String
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = $1", username))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE LOWER(email) = LOWER($1)", email))
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	u := *user
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, password, first_name, last_name, email, profile_image, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW()) RETURNING id, created_at`,
		u.Username, u.Password, u.FirstName, u.LastName, u.Email, u.ProfileImage).
		Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Cards

const cardColumns = "id, user_id, card_type, bank_name, card_number, last_four, expiry_date, balance, card_color, is_default, version, created_at"

func scanCardRow(scan func(dest ...any) error) (*models.Card, error) {
	var c models.Card
	var balance string
	var color sql.NullString
	err := scan(&c.ID, &c.UserID, &c.CardType, &c.BankName, &c.CardNumber, &c.LastFour,
		&c.ExpiryDate, &balance, &color, &c.IsDefault, &c.Version, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("invalid balance for card %d: %w", c.ID, err)
	}
	c.CardColor = color.String
	return &c, nil
}

func (s *PostgresStore) GetCard(ctx context.Context, id int) (*models.Card, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+cardColumns+" FROM cards WHERE id = $1", id)
	return scanCardRow(row.Scan)
}

func (s *PostgresStore) ListCardsByUser(ctx context.Context, userID int) ([]models.Card, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+cardColumns+" FROM cards WHERE user_id = $1 ORDER BY id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []models.Card
	for rows.Next() {
		c, err := scanCardRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

func (s *PostgresStore) CreateCard(ctx context.Context, card *models.Card) (*models.Card, error) {
	c := *card
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO cards (user_id, card_type, bank_name, card_number, last_four, expiry_date, balance, card_color, is_default, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, NOW()) RETURNING id, version, created_at`,
		c.UserID, c.CardType, c.BankName, c.CardNumber, c.LastFour, c.ExpiryDate,
		c.Balance.String(), c.CardColor, c.IsDefault).
		Scan(&c.ID, &c.Version, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) UpdateCard(ctx context.Context, card *models.Card) (*models.Card, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE cards SET card_type = $1, bank_name = $2, expiry_date = $3, card_color = $4, is_default = $5
		 WHERE id = $6`,
		card.CardType, card.BankName, card.ExpiryDate, card.CardColor, card.IsDefault, card.ID)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return s.GetCard(ctx, card.ID)
}

// balanceWriteRetries bounds how often a versioned balance write is retried
// before the conflict is surfaced to the caller.
const balanceWriteRetries = 3

// UpdateCardBalance replaces the card's balance guarded by its version
// counter, retrying on lost races.
func (s *PostgresStore) UpdateCardBalance(ctx context.Context, id int, balance decimal.Decimal) (*models.Card, error) {
	for attempt := 0; attempt < balanceWriteRetries; attempt++ {
		card, err := s.GetCard(ctx, id)
		if err != nil {
			return nil, err
		}

		result, err := s.db.ExecContext(ctx,
			"UPDATE cards SET balance = $1, version = version + 1 WHERE id = $2 AND version = $3",
			balance.String(), id, card.Version)
		if err != nil {
			return nil, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 1 {
			card.Balance = balance
			card.Version++
			return card, nil
		}
		log.Printf("[STORE] Balance write conflict on card %d (attempt %d)", id, attempt+1)
	}
	return nil, ErrConflict
}

func (s *PostgresStore) DeleteCard(ctx context.Context, id int) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM cards WHERE id = $1", id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Categories

func (s *PostgresStore) scanCategory(row *sql.Row) (*models.Category, error) {
	var c models.Category
	err := row.Scan(&c.ID, &c.Name, &c.Icon, &c.Color, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) GetCategory(ctx context.Context, id int) (*models.Category, error) {
	return s.scanCategory(s.db.QueryRowContext(ctx,
		"SELECT id, name, icon, color, created_at FROM categories WHERE id = $1", id))
}

func (s *PostgresStore) GetCategoryByName(ctx context.Context, name string) (*models.Category, error) {
	return s.scanCategory(s.db.QueryRowContext(ctx,
		"SELECT id, name, icon, color, created_at FROM categories WHERE LOWER(name) = LOWER($1)", name))
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, icon, color, created_at FROM categories ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.Color, &c.CreatedAt); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (s *PostgresStore) CreateCategory(ctx context.Context, category *models.Category) (*models.Category, error) {
	c := *category
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO categories (name, icon, color, created_at) VALUES ($1, $2, $3, NOW()) RETURNING id, created_at",
		c.Name, c.Icon, c.Color).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Transactions

const txnColumns = "id, user_id, card_id, category_id, merchant, amount, type, date, description, payment_ref, created_at"

func scanTxnRow(scan func(dest ...any) error) (*models.Transaction, error) {
	var t models.Transaction
	var amount string
	var description, paymentRef sql.NullString
	err := scan(&t.ID, &t.UserID, &t.CardID, &t.CategoryID, &t.Merchant, &amount,
		&t.Type, &t.Date, &description, &paymentRef, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount for transaction %d: %w", t.ID, err)
	}
	t.Description = description.String
	t.PaymentRef = paymentRef.String
	return &t, nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id int) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+txnColumns+" FROM transactions WHERE id = $1", id)
	return scanTxnRow(row.Scan)
}

func (s *PostgresStore) ListTransactionsByUser(ctx context.Context, userID, limit int) ([]models.Transaction, error) {
	query := "SELECT " + txnColumns + " FROM transactions WHERE user_id = $1 ORDER BY date DESC, id DESC"
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		t, err := scanTxnRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

func (s *PostgresStore) CreateTransaction(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	t := *txn
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO transactions (user_id, card_id, category_id, merchant, amount, type, date, description, payment_ref, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW()) RETURNING id, created_at`,
		t.UserID, t.CardID, t.CategoryID, t.Merchant, t.Amount.String(), t.Type, t.Date, t.Description, t.PaymentRef).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Budgets

func scanBudgetRow(scan func(dest ...any) error) (*models.Budget, error) {
	var b models.Budget
	var amount string
	var endDate sql.NullTime
	err := scan(&b.ID, &b.UserID, &b.CategoryID, &amount, &b.Period, &b.StartDate, &endDate, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount for budget %d: %w", b.ID, err)
	}
	if endDate.Valid {
		b.EndDate = &endDate.Time
	}
	return &b, nil
}

func (s *PostgresStore) GetBudget(ctx context.Context, id int) (*models.Budget, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, category_id, amount, period, start_date, end_date, created_at FROM budgets WHERE id = $1", id)
	return scanBudgetRow(row.Scan)
}

func (s *PostgresStore) ListBudgetsByUser(ctx context.Context, userID int) ([]models.Budget, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, category_id, amount, period, start_date, end_date, created_at FROM budgets WHERE user_id = $1 ORDER BY id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var budgets []models.Budget
	for rows.Next() {
		b, err := scanBudgetRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, *b)
	}
	return budgets, rows.Err()
}

func (s *PostgresStore) CreateBudget(ctx context.Context, budget *models.Budget) (*models.Budget, error) {
	b := *budget
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO budgets (user_id, category_id, amount, period, start_date, end_date, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW()) RETURNING id, created_at`,
		b.UserID, b.CategoryID, b.Amount.String(), b.Period, b.StartDate, b.EndDate).
		Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) UpdateBudget(ctx context.Context, budget *models.Budget) (*models.Budget, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE budgets SET category_id = $1, amount = $2, period = $3, start_date = $4, end_date = $5 WHERE id = $6",
		budget.CategoryID, budget.Amount.String(), budget.Period, budget.StartDate, budget.EndDate, budget.ID)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return s.GetBudget(ctx, budget.ID)
}

func (s *PostgresStore) DeleteBudget(ctx context.Context, id int) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM budgets WHERE id = $1", id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Savings goals

func scanGoalRow(scan func(dest ...any) error) (*models.SavingsGoal, error) {
	var g models.SavingsGoal
	var target, current string
	var targetDate sql.NullTime
	err := scan(&g.ID, &g.UserID, &g.Name, &target, &current, &targetDate, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	g.TargetAmount, err = decimal.NewFromString(target)
	if err != nil {
		return nil, fmt.Errorf("invalid target amount for goal %d: %w", g.ID, err)
	}
	g.CurrentAmount, err = decimal.NewFromString(current)
	if err != nil {
		return nil, fmt.Errorf("invalid current amount for goal %d: %w", g.ID, err)
	}
	if targetDate.Valid {
		g.TargetDate = &targetDate.Time
	}
	return &g, nil
}

func (s *PostgresStore) GetSavingsGoal(ctx context.Context, id int) (*models.SavingsGoal, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, name, target_amount, current_amount, target_date, created_at FROM savings_goals WHERE id = $1", id)
	return scanGoalRow(row.Scan)
}

func (s *PostgresStore) ListSavingsGoalsByUser(ctx context.Context, userID int) ([]models.SavingsGoal, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, name, target_amount, current_amount, target_date, created_at FROM savings_goals WHERE user_id = $1 ORDER BY id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []models.SavingsGoal
	for rows.Next() {
		g, err := scanGoalRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}

func (s *PostgresStore) CreateSavingsGoal(ctx context.Context, goal *models.SavingsGoal) (*models.SavingsGoal, error) {
	g := *goal
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO savings_goals (user_id, name, target_amount, current_amount, target_date, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING id, created_at`,
		g.UserID, g.Name, g.TargetAmount.String(), g.CurrentAmount.String(), g.TargetDate).
		Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *PostgresStore) UpdateSavingsGoal(ctx context.Context, goal *models.SavingsGoal) (*models.SavingsGoal, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE savings_goals SET name = $1, target_amount = $2, current_amount = $3, target_date = $4 WHERE id = $5",
		goal.Name, goal.TargetAmount.String(), goal.CurrentAmount.String(), goal.TargetDate, goal.ID)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return s.GetSavingsGoal(ctx, goal.ID)
}

func (s *PostgresStore) DeleteSavingsGoal(ctx context.Context, id int) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM savings_goals WHERE id = $1", id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Advisor history

func (s *PostgresStore) ListAdvisorMessages(ctx context.Context, userID, limit int) ([]models.AdvisorMessage, error) {
	query := "SELECT id, user_id, message, response, timestamp FROM advisor_messages WHERE user_id = $1 ORDER BY timestamp DESC"
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.AdvisorMessage
	for rows.Next() {
		var m models.AdvisorMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Message, &m.Response, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *PostgresStore) CreateAdvisorMessage(ctx context.Context, msg *models.AdvisorMessage) (*models.AdvisorMessage, error) {
	m := *msg
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO advisor_messages (user_id, message, response, timestamp) VALUES ($1, $2, $3, NOW()) RETURNING id, timestamp",
		m.UserID, m.Message, m.Response).Scan(&m.ID, &m.Timestamp)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) ListAdvisorInsights(ctx context.Context, userID int) ([]models.AdvisorInsight, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, insight, type, icon, color, created_at FROM advisor_insights WHERE user_id = $1 ORDER BY id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var insights []models.AdvisorInsight
	for rows.Next() {
		var i models.AdvisorInsight
		if err := rows.Scan(&i.ID, &i.UserID, &i.Insight, &i.Type, &i.Icon, &i.Color, &i.CreatedAt); err != nil {
			return nil, err
		}
		insights = append(insights, i)
	}
	return insights, rows.Err()
}

func (s *PostgresStore) CreateAdvisorInsight(ctx context.Context, insight *models.AdvisorInsight) (*models.AdvisorInsight, error) {
	i := *insight
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO advisor_insights (user_id, insight, type, icon, color, created_at) VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING id, created_at",
		i.UserID, i.Insight, i.Type, i.Icon, i.Color).Scan(&i.ID, &i.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// Seed inserts the default categories when the categories table is empty.
// Mirrors what MemoryStore does at construction.
func (s *PostgresStore) Seed(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM categories").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, c := range defaultCategories {
		if _, err := s.CreateCategory(ctx, &c); err != nil {
			return err
		}
	}
	log.Printf("[STORE] Seeded %d default categories", len(defaultCategories))
	return nil
}

// IsUniqueViolation reports whether err is a driver-level duplicate key
// error, so callers can map it to a conflict response without importing pq.
func IsUniqueViolation(err error) bool {
	var pqErr interface{ SQLState() string }
	if errors.As(err, &pqErr) {
		return pqErr.SQLState() == "23505"
	}
	return false
}
