package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walletmaster/backend/internal/models"
)

// defaultCategories seeds every new MemoryStore so budgets and transactions
// always have something to attach to.
var defaultCategories = []models.Category{
	{Name: "Food & Dining", Icon: "utensils", Color: "#3B82F6"},
	{Name: "Housing", Icon: "home", Color: "#10B981"},
	{Name: "Transportation", Icon: "car", Color: "#6366F1"},
	{Name: "Shopping", Icon: "shopping-bag", Color: "#F59E0B"},
	{Name: "Entertainment", Icon: "film", Color: "#EC4899"},
	{Name: "Health & Fitness", Icon: "heartbeat", Color: "#EF4444"},
	{Name: "Personal Care", Icon: "bath", Color: "#8B5CF6"},
	{Name: "Education", Icon: "graduation-cap", Color: "#14B8A6"},
	{Name: "Gifts & Donations", Icon: "gift", Color: "#F97316"},
	{Name: "Bills & Utilities", Icon: "file-invoice-dollar", Color: "#6B7280"},
	{Name: "Travel", Icon: "plane", Color: "#06B6D4"},
	{Name: "Other", Icon: "ellipsis-h", Color: "#9CA3AF"},
}

// MemoryStore keeps all entities in process-local maps keyed by
// auto-increment id. It is the reference Store implementation; the payment
// orchestrator serializes balance writes itself, the RWMutex here only
// protects map structure.
type MemoryStore struct {
	mu sync.RWMutex

	users        map[int]models.User
	cards        map[int]models.Card
	categories   map[int]models.Category
	transactions map[int]models.Transaction
	budgets      map[int]models.Budget
	goals        map[int]models.SavingsGoal
	messages     map[int]models.AdvisorMessage
	insights     map[int]models.AdvisorInsight

	nextUserID        int
	nextCardID        int
	nextCategoryID    int
	nextTransactionID int
	nextBudgetID      int
	nextGoalID        int
	nextMessageID     int
	nextInsightID     int
}

// NewMemoryStore creates an empty store seeded with the default categories
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		users:             make(map[int]models.User),
		cards:             make(map[int]models.Card),
		categories:        make(map[int]models.Category),
		transactions:      make(map[int]models.Transaction),
		budgets:           make(map[int]models.Budget),
		goals:             make(map[int]models.SavingsGoal),
		messages:          make(map[int]models.AdvisorMessage),
		insights:          make(map[int]models.AdvisorInsight),
		nextUserID:        1,
		nextCardID:        1,
		nextCategoryID:    1,
		nextTransactionID: 1,
		nextBudgetID:      1,
		nextGoalID:        1,
		nextMessageID:     1,
		nextInsightID:     1,
	}
	for _, c := range defaultCategories {
		cat := c
		cat.ID = s.nextCategoryID
		cat.CreatedAt = time.Now()
		s.categories[cat.ID] = cat
		s.nextCategoryID++
	}
	return s
}

// Users

func (s *MemoryStore) GetUser(_ context.Context, id int) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			user := u
			return &user, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			user := u
			return &user, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := *user
	u.ID = s.nextUserID
	u.CreatedAt = time.Now()
	s.nextUserID++
	s.users[u.ID] = u
	return &u, nil
}

// Cards

func (s *MemoryStore) GetCard(_ context.Context, id int) (*models.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cards[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) ListCardsByUser(_ context.Context, userID int) ([]models.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var cards []models.Card
	for _, c := range s.cards {
		if c.UserID == userID {
			cards = append(cards, c)
		}
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
	return cards, nil
}

func (s *MemoryStore) CreateCard(_ context.Context, card *models.Card) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *card
	c.ID = s.nextCardID
	c.CreatedAt = time.Now()
	s.nextCardID++
	s.cards[c.ID] = c
	return &c, nil
}

func (s *MemoryStore) UpdateCard(_ context.Context, card *models.Card) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.cards[card.ID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *card
	c.CreatedAt = existing.CreatedAt
	// Balance only moves through UpdateCardBalance; a stale read written
	// back here must not undo a concurrent payment.
	c.Balance = existing.Balance
	c.Version = existing.Version
	s.cards[c.ID] = c
	return &c, nil
}

func (s *MemoryStore) UpdateCardBalance(_ context.Context, id int, balance decimal.Decimal) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return nil, ErrNotFound
	}
	c.Balance = balance
	c.Version++
	s.cards[id] = c
	return &c, nil
}

func (s *MemoryStore) DeleteCard(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[id]; !ok {
		return ErrNotFound
	}
	delete(s.cards, id)
	return nil
}

// Categories

func (s *MemoryStore) GetCategory(_ context.Context, id int) (*models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) GetCategoryByName(_ context.Context, name string) (*models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories {
		if strings.EqualFold(c.Name, name) {
			cat := c
			return &cat, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListCategories(_ context.Context) ([]models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cats := make([]models.Category, 0, len(s.categories))
	for _, c := range s.categories {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].ID < cats[j].ID })
	return cats, nil
}

func (s *MemoryStore) CreateCategory(_ context.Context, category *models.Category) (*models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *category
	c.ID = s.nextCategoryID
	c.CreatedAt = time.Now()
	s.nextCategoryID++
	s.categories[c.ID] = c
	return &c, nil
}

// Transactions

func (s *MemoryStore) GetTransaction(_ context.Context, id int) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// ListTransactionsByUser returns the user's transactions newest first.
// A limit of 0 means no limit.
func (s *MemoryStore) ListTransactionsByUser(_ context.Context, userID, limit int) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var txns []models.Transaction
	for _, t := range s.transactions {
		if t.UserID == userID {
			txns = append(txns, t)
		}
	}
	sort.Slice(txns, func(i, j int) bool {
		if txns[i].Date.Equal(txns[j].Date) {
			return txns[i].ID > txns[j].ID
		}
		return txns[i].Date.After(txns[j].Date)
	})
	if limit > 0 && len(txns) > limit {
		txns = txns[:limit]
	}
	return txns, nil
}

func (s *MemoryStore) CreateTransaction(_ context.Context, txn *models.Transaction) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *txn
	t.ID = s.nextTransactionID
	t.CreatedAt = time.Now()
	s.nextTransactionID++
	s.transactions[t.ID] = t
	return &t, nil
}

// Budgets

func (s *MemoryStore) GetBudget(_ context.Context, id int) (*models.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.budgets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s *MemoryStore) ListBudgetsByUser(_ context.Context, userID int) ([]models.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var budgets []models.Budget
	for _, b := range s.budgets {
		if b.UserID == userID {
			budgets = append(budgets, b)
		}
	}
	sort.Slice(budgets, func(i, j int) bool { return budgets[i].ID < budgets[j].ID })
	return budgets, nil
}

func (s *MemoryStore) CreateBudget(_ context.Context, budget *models.Budget) (*models.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := *budget
	b.ID = s.nextBudgetID
	b.CreatedAt = time.Now()
	s.nextBudgetID++
	s.budgets[b.ID] = b
	return &b, nil
}

func (s *MemoryStore) UpdateBudget(_ context.Context, budget *models.Budget) (*models.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.budgets[budget.ID]
	if !ok {
		return nil, ErrNotFound
	}
	b := *budget
	b.CreatedAt = existing.CreatedAt
	s.budgets[b.ID] = b
	return &b, nil
}

func (s *MemoryStore) DeleteBudget(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.budgets[id]; !ok {
		return ErrNotFound
	}
	delete(s.budgets, id)
	return nil
}

// Savings goals

func (s *MemoryStore) GetSavingsGoal(_ context.Context, id int) (*models.SavingsGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (s *MemoryStore) ListSavingsGoalsByUser(_ context.Context, userID int) ([]models.SavingsGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var goals []models.SavingsGoal
	for _, g := range s.goals {
		if g.UserID == userID {
			goals = append(goals, g)
		}
	}
	sort.Slice(goals, func(i, j int) bool { return goals[i].ID < goals[j].ID })
	return goals, nil
}

func (s *MemoryStore) CreateSavingsGoal(_ context.Context, goal *models.SavingsGoal) (*models.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := *goal
	g.ID = s.nextGoalID
	g.CreatedAt = time.Now()
	s.nextGoalID++
	s.goals[g.ID] = g
	return &g, nil
}

func (s *MemoryStore) UpdateSavingsGoal(_ context.Context, goal *models.SavingsGoal) (*models.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.goals[goal.ID]
	if !ok {
		return nil, ErrNotFound
	}
	g := *goal
	g.CreatedAt = existing.CreatedAt
	s.goals[g.ID] = g
	return &g, nil
}

func (s *MemoryStore) DeleteSavingsGoal(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[id]; !ok {
		return ErrNotFound
	}
	delete(s.goals, id)
	return nil
}

// Advisor history

func (s *MemoryStore) ListAdvisorMessages(_ context.Context, userID, limit int) ([]models.AdvisorMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var msgs []models.AdvisorMessage
	for _, m := range s.messages {
		if m.UserID == userID {
			msgs = append(msgs, m)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Timestamp.After(msgs[j].Timestamp) })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (s *MemoryStore) CreateAdvisorMessage(_ context.Context, msg *models.AdvisorMessage) (*models.AdvisorMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *msg
	m.ID = s.nextMessageID
	m.Timestamp = time.Now()
	s.nextMessageID++
	s.messages[m.ID] = m
	return &m, nil
}

func (s *MemoryStore) ListAdvisorInsights(_ context.Context, userID int) ([]models.AdvisorInsight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var insights []models.AdvisorInsight
	for _, i := range s.insights {
		if i.UserID == userID {
			insights = append(insights, i)
		}
	}
	sort.Slice(insights, func(i, j int) bool { return insights[i].ID < insights[j].ID })
	return insights, nil
}

func (s *MemoryStore) CreateAdvisorInsight(_ context.Context, insight *models.AdvisorInsight) (*models.AdvisorInsight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := *insight
	i.ID = s.nextInsightID
	i.CreatedAt = time.Now()
	s.nextInsightID++
	s.insights[i.ID] = i
	return &i, nil
}
