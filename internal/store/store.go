package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/walletmaster/backend/internal/models"
)

var (
	// ErrNotFound is returned when the requested entity does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a versioned balance write loses the race
	ErrConflict = errors.New("concurrent update conflict")
)

// Store is the persistence contract the rest of the application depends on.
// Create methods assign the identifier and creation timestamp and never
// mutate their input. Payment code only ever replaces a card balance through
// UpdateCardBalance; no entity is hard-deleted by the payment path.
type Store interface {
	// Users
	GetUser(ctx context.Context, id int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)

	// Cards
	GetCard(ctx context.Context, id int) (*models.Card, error)
	ListCardsByUser(ctx context.Context, userID int) ([]models.Card, error)
	CreateCard(ctx context.Context, card *models.Card) (*models.Card, error)
	UpdateCard(ctx context.Context, card *models.Card) (*models.Card, error)
	UpdateCardBalance(ctx context.Context, id int, balance decimal.Decimal) (*models.Card, error)
	DeleteCard(ctx context.Context, id int) error

	// Categories
	GetCategory(ctx context.Context, id int) (*models.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, category *models.Category) (*models.Category, error)

	// Transactions (immutable once created)
	GetTransaction(ctx context.Context, id int) (*models.Transaction, error)
	ListTransactionsByUser(ctx context.Context, userID, limit int) ([]models.Transaction, error)
	CreateTransaction(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)

	// Budgets
	GetBudget(ctx context.Context, id int) (*models.Budget, error)
	ListBudgetsByUser(ctx context.Context, userID int) ([]models.Budget, error)
	CreateBudget(ctx context.Context, budget *models.Budget) (*models.Budget, error)
	UpdateBudget(ctx context.Context, budget *models.Budget) (*models.Budget, error)
	DeleteBudget(ctx context.Context, id int) error

	// Savings goals
	GetSavingsGoal(ctx context.Context, id int) (*models.SavingsGoal, error)
	ListSavingsGoalsByUser(ctx context.Context, userID int) ([]models.SavingsGoal, error)
	CreateSavingsGoal(ctx context.Context, goal *models.SavingsGoal) (*models.SavingsGoal, error)
	UpdateSavingsGoal(ctx context.Context, goal *models.SavingsGoal) (*models.SavingsGoal, error)
	DeleteSavingsGoal(ctx context.Context, id int) error

	// Advisor history
	ListAdvisorMessages(ctx context.Context, userID, limit int) ([]models.AdvisorMessage, error)
	CreateAdvisorMessage(ctx context.Context, msg *models.AdvisorMessage) (*models.AdvisorMessage, error)
	ListAdvisorInsights(ctx context.Context, userID int) ([]models.AdvisorInsight, error)
	CreateAdvisorInsight(ctx context.Context, insight *models.AdvisorInsight) (*models.AdvisorInsight, error)
}
