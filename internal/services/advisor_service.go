package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/walletmaster/backend/internal/advisor"
	"github.com/walletmaster/backend/internal/middleware"
	"github.com/walletmaster/backend/internal/models"
	"github.com/walletmaster/backend/internal/store"
)

const (
	insightCacheTTL    = time.Hour
	snapshotTxnLimit   = 20
	chatHistoryDefault = 50
)

// AdvisorService backs the AI assistant endpoints: free-form chat, insight
// cards, and spending analysis. Generated insights are cached in Redis so a
// dashboard refresh does not re-bill the model.
type AdvisorService struct {
	store     store.Store
	client    *advisor.Client
	redis     *redis.Client
	validator *validator.Validate
}

func NewAdvisorService(st store.Store, client *advisor.Client, redisClient *redis.Client) *AdvisorService {
	return &AdvisorService{
		store:     st,
		client:    client,
		redis:     redisClient,
		validator: validator.New(),
	}
}

// ChatRequest is the chat endpoint payload
type ChatRequest struct {
	Message string `json:"message" validate:"required,min=1,max=2000"`
}

// financialSnapshot is the aggregated context handed to the model. Card
// numbers and password hashes never appear here.
type financialSnapshot struct {
	TotalBalance string          `json:"totalBalance"`
	Cards        []snapshotCard  `json:"cards"`
	Transactions []snapshotTxn   `json:"recentTransactions"`
	Budgets      []models.Budget `json:"budgets,omitempty"`
	Goals        []snapshotGoal  `json:"savingsGoals,omitempty"`
}

type snapshotCard struct {
	BankName string `json:"bankName"`
	LastFour string `json:"lastFour"`
	Balance  string `json:"balance"`
}

type snapshotTxn struct {
	Merchant string `json:"merchant"`
	Amount   string `json:"amount"`
	Type     string `json:"type"`
	Date     string `json:"date"`
}

type snapshotGoal struct {
	Name          string `json:"name"`
	TargetAmount  string `json:"targetAmount"`
	CurrentAmount string `json:"currentAmount"`
}

func (s *AdvisorService) snapshot(ctx context.Context, userID int) financialSnapshot {
	snap := financialSnapshot{TotalBalance: "0"}

	cards, err := s.store.ListCardsByUser(ctx, userID)
	if err == nil {
		total := decimal.Zero
		for _, c := range cards {
			total = total.Add(c.Balance)
			snap.Cards = append(snap.Cards, snapshotCard{
				BankName: c.BankName, LastFour: c.LastFour, Balance: c.Balance.String(),
			})
		}
		snap.TotalBalance = total.String()
	}

	txns, err := s.store.ListTransactionsByUser(ctx, userID, snapshotTxnLimit)
	if err == nil {
		for _, t := range txns {
			snap.Transactions = append(snap.Transactions, snapshotTxn{
				Merchant: t.Merchant, Amount: t.Amount.String(), Type: t.Type,
				Date: t.Date.Format("2006-01-02"),
			})
		}
	}

	if budgets, err := s.store.ListBudgetsByUser(ctx, userID); err == nil {
		snap.Budgets = budgets
	}
	if goals, err := s.store.ListSavingsGoalsByUser(ctx, userID); err == nil {
		for _, g := range goals {
			snap.Goals = append(snap.Goals, snapshotGoal{
				Name: g.Name, TargetAmount: g.TargetAmount.String(), CurrentAmount: g.CurrentAmount.String(),
			})
		}
	}
	return snap
}

// Chat answers a question and appends the exchange to the user's history
func (s *AdvisorService) Chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req ChatRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	response := s.client.Advice(r.Context(), req.Message, s.snapshot(r.Context(), userID))

	msg, err := s.store.CreateAdvisorMessage(r.Context(), &models.AdvisorMessage{
		UserID:    userID,
		Message:   req.Message,
		Response:  response,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Printf("[ADVISOR] Failed to persist chat message for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to save message", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, msg)
}

// History returns the user's chat history, oldest first
func (s *AdvisorService) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	messages, err := s.store.ListAdvisorMessages(r.Context(), userID, chatHistoryDefault)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch messages", http.StatusInternalServerError, nil)
		return
	}
	if messages == nil {
		messages = []models.AdvisorMessage{}
	}
	SendJSON(w, http.StatusOK, messages)
}

// Insights returns the user's insight cards, generating a fresh set when
// the cache is cold.
func (s *AdvisorService) Insights(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	cacheKey := fmt.Sprintf("advisor_insights:%d", userID)
	if s.redis != nil {
		if cached, err := s.redis.Get(r.Context(), cacheKey).Result(); err == nil {
			var insights []models.AdvisorInsight
			if json.Unmarshal([]byte(cached), &insights) == nil {
				SendJSON(w, http.StatusOK, insights)
				return
			}
		}
	}

	// Previously generated insights are reused before billing the model again
	if existing, err := s.store.ListAdvisorInsights(r.Context(), userID); err == nil && len(existing) > 0 {
		SendJSON(w, http.StatusOK, existing)
		return
	}

	generated := s.client.Insights(r.Context(), s.snapshot(r.Context(), userID))
	insights := make([]models.AdvisorInsight, 0, len(generated))
	for _, in := range generated {
		saved, err := s.store.CreateAdvisorInsight(r.Context(), &models.AdvisorInsight{
			UserID:  userID,
			Insight: in.Text,
			Type:    in.Type,
			Icon:    in.Icon,
			Color:   in.Color,
		})
		if err != nil {
			log.Printf("[ADVISOR] Failed to persist insight for user %d: %v", userID, err)
			continue
		}
		insights = append(insights, *saved)
	}

	if s.redis != nil {
		if data, err := json.Marshal(insights); err == nil {
			if err := s.redis.Set(r.Context(), cacheKey, data, insightCacheTTL).Err(); err != nil {
				log.Printf("[ADVISOR] Failed to cache insights for user %d: %v", userID, err)
			}
		}
	}

	SendJSON(w, http.StatusOK, insights)
}

// SpendingAnalysis returns recommendations computed from recent activity
func (s *AdvisorService) SpendingAnalysis(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	snap := s.snapshot(r.Context(), userID)
	recommendations := s.client.SpendingAnalysis(r.Context(), snap.Transactions)
	SendJSON(w, http.StatusOK, map[string]any{"recommendations": recommendations})
}
