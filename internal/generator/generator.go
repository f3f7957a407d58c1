package generator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vanshika/txscreen/internal/domain"
	"github.com/vanshika/txscreen/internal/rules"
)

// Dataset contains the generated users and their screened transaction history.
type Dataset struct {
	Users        []domain.UserDocument        `json:"users"`
	Transactions []domain.TransactionDocument `json:"transactions"`
}

// Generator produces synthetic sender histories. Transactions are emitted in
// chronological order and classified by the same rule evaluator the service
// uses, so the dataset is a realistic starting history.
type Generator struct {
	cfg           Config
	rand          *rand.Rand
	rules         *rules.Evaluator
	nameFragments nameFragments
	nowFn         func() time.Time
}

// New returns a configured Generator instance. A nil evaluator uses the
// default thresholds.
func New(cfg Config, evaluator *rules.Evaluator) *Generator {
	def := DefaultConfig()
	if cfg.NumUsers <= 0 {
		cfg.NumUsers = def.NumUsers
	}
	if cfg.NumTransactions <= 0 {
		cfg.NumTransactions = def.NumTransactions
	}
	if cfg.BurstChance < 0 {
		cfg.BurstChance = def.BurstChance
	}
	if cfg.HighRiskChance < 0 {
		cfg.HighRiskChance = def.HighRiskChance
	}
	if cfg.LargeAmountChance < 0 {
		cfg.LargeAmountChance = def.LargeAmountChance
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if evaluator == nil {
		evaluator = rules.NewEvaluator(rules.DefaultConfig())
	}

	return &Generator{
		cfg:           cfg,
		rand:          rand.New(rand.NewSource(cfg.Seed)),
		rules:         evaluator,
		nameFragments: defaultNameFragments(),
		nowFn:         time.Now,
	}
}

// WithClock overrides the time the generated history ends at.
func (g *Generator) WithClock(nowFn func() time.Time) *Generator {
	if nowFn != nil {
		g.nowFn = nowFn
	}
	return g
}

// Generate synthesises users and transactions. It respects context cancellation.
func (g *Generator) Generate(ctx context.Context) (Dataset, error) {
	now := g.nowFn().UTC().Truncate(time.Second)
	span := 30 * 24 * time.Hour
	start := now.Add(-span)

	users := make([]domain.User, g.cfg.NumUsers)
	userDocs := make([]domain.UserDocument, g.cfg.NumUsers)
	for i := range users {
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}
		country := g.pick(g.nameFragments.countries)
		users[i] = domain.User{
			ID:        g.newID(),
			Name:      g.randomFullName(),
			Account:   fmt.Sprintf("ACC-%06d", i+1),
			Currency:  currencyFor(country),
			Country:   country,
			RiskScore: float64(g.rand.Intn(101)) / 100,
			CreatedAt: start.Add(-time.Duration(g.rand.Intn(365*24)) * time.Hour),
		}
		userDocs[i] = domain.NewUserDocument(users[i])
	}

	history := make(map[string][]domain.Transaction, len(users))
	txDocs := make([]domain.TransactionDocument, 0, g.cfg.NumTransactions)
	maxGap := span / time.Duration(g.cfg.NumTransactions+1)
	at := start
	senderIdx := 0

	for i := 0; i < g.cfg.NumTransactions; i++ {
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}

		if i > 0 && g.rand.Float64() < g.cfg.BurstChance {
			at = at.Add(time.Duration(1+g.rand.Intn(4)) * time.Minute)
		} else {
			senderIdx = g.rand.Intn(len(users))
			at = at.Add(time.Duration(g.rand.Int63n(int64(maxGap)+1)).Truncate(time.Second))
		}
		if at.After(now) {
			at = now
		}
		sender := users[senderIdx]
		recipient := sender
		if len(users) > 1 {
			recipientIdx := g.rand.Intn(len(users) - 1)
			if recipientIdx >= senderIdx {
				recipientIdx++
			}
			recipient = users[recipientIdx]
		}

		country := sender.Country
		if g.rand.Float64() < g.cfg.HighRiskChance {
			country = g.pick(g.nameFragments.highRiskCountries)
		}

		tx := domain.Transaction{
			ID:          g.newID(),
			ExtrID:      fmt.Sprintf("EXT-%07d", i+1),
			Sender:      domain.Party{Name: sender.Name, Account: sender.Account},
			Recipient:   domain.Party{Name: recipient.Name, Account: recipient.Account},
			Amount:      g.randomAmount(),
			Currency:    sender.Currency,
			Country:     country,
			CallbackURL: "https://hooks.example.com/txscreen",
			Screening: domain.ScreeningResult{
				Score:      float64(g.rand.Intn(40)),
				Similarity: domain.SimilarityWeak,
			},
			CreatedAt: at,
			UpdatedAt: at,
		}

		past := history[sender.Account]
		tx.BusinessRulesChecks = g.rules.Evaluate(tx, past)
		tx.Status = g.settledStatus(tx.BusinessRulesChecks)

		past = append(past, tx)
		if n := g.rules.HistorySize(); len(past) > n {
			past = past[len(past)-n:]
		}
		history[sender.Account] = past
		txDocs = append(txDocs, domain.NewTransactionDocument(tx))
	}

	return Dataset{Users: userDocs, Transactions: txDocs}, nil
}

// settledStatus assigns the status a historical transaction ended up with.
func (g *Generator) settledStatus(checks domain.BusinessRulesChecks) domain.Status {
	roll := g.rand.Float64()
	if checks.Suspicious {
		if roll < 0.6 {
			return domain.StatusFlagged
		}
		return domain.StatusRejected
	}
	if roll < 0.9 {
		return domain.StatusApproved
	}
	return domain.StatusPending
}

func (g *Generator) randomAmount() decimal.Decimal {
	var cents int64
	if g.rand.Float64() < g.cfg.LargeAmountChance {
		cents = 500001 + g.rand.Int63n(1500000)
	} else {
		cents = 1000 + g.rand.Int63n(199000)
	}
	return decimal.New(cents, -2)
}

func (g *Generator) newID() string {
	id, err := uuid.NewRandomFromReader(g.rand)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (g *Generator) pick(options []string) string {
	return options[g.rand.Intn(len(options))]
}

func (g *Generator) randomFullName() string {
	return fmt.Sprintf("%s %s", g.pick(g.nameFragments.first), g.pick(g.nameFragments.last))
}

func currencyFor(country string) string {
	switch country {
	case "GB":
		return "GBP"
	case "DE", "FR", "ES", "IT":
		return "EUR"
	case "IN":
		return "INR"
	case "NG":
		return "NGN"
	default:
		return "USD"
	}
}

type nameFragments struct {
	first             []string
	last              []string
	countries         []string
	highRiskCountries []string
}

func defaultNameFragments() nameFragments {
	return nameFragments{
		first:             []string{"Jane", "John", "Alex", "Priya", "Liu", "Maria", "Omar", "Sofia", "Noah", "Emma", "Lucas", "Mia", "Ava", "Ethan", "Zara"},
		last:              []string{"Doe", "Smith", "Chen", "Patel", "Garcia", "Khan", "Kim", "Ivanov", "Nguyen", "Silva", "Brown", "Lee"},
		countries:         []string{"US", "US", "US", "GB", "DE", "FR", "ES", "IT", "IN", "NG"},
		highRiskCountries: []string{"IR", "KP", "SY"},
	}
}
