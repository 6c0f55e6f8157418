package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// windowEntry records a single scored transaction for sliding-window analysis.
type windowEntry struct {
	To     string
	Amount float64
	Seen   time.Time
}

const (
	maxWindowSize  = 1000
	windowDuration = 24 * time.Hour

	weightAmount   = 0.35
	weightVelocity = 0.30
	weightNovelty  = 0.20
	weightGas      = 0.15

	// Engine scores at or above this label the transaction suspicious.
	suspicionThreshold = 0.7

	engineVersion = "heuristic-v1"

	// Baselines for factor normalization.
	typicalAmount   = 100.0
	typicalGasPrice = 50.0
)

// Engine is an embedded heuristic oracle for deployments without a model
// service. It keeps a per-sender sliding window and scores 4 weighted
// factors: amount spike, sender velocity, recipient novelty, and gas-price
// anomaly.
type Engine struct {
	windows sync.Map // map[string]*senderWindow
	now     func() time.Time
}

type senderWindow struct {
	mu      sync.Mutex
	entries []windowEntry
}

// NewEngine creates the embedded heuristic oracle.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// Predict scores a transaction. Pure in-memory computation; never errors.
func (e *Engine) Predict(_ context.Context, tx *TransactionContext) (*Assessment, error) {
	w := e.window(tx.From)
	w.mu.Lock()
	entries := e.recent(w)
	w.mu.Unlock()

	factors := map[string]float64{
		"amount":   e.amountFactor(tx.Amount),
		"velocity": e.velocityFactor(entries),
		"novelty":  e.noveltyFactor(entries, tx.To),
		"gas":      e.gasFactor(tx.GasPrice),
	}

	score := factors["amount"]*weightAmount +
		factors["velocity"]*weightVelocity +
		factors["novelty"]*weightNovelty +
		factors["gas"]*weightGas
	score = clamp01(math.Round(score*1000) / 1000)

	label := LabelNormal
	if score >= suspicionThreshold {
		label = LabelSuspicious
	}

	e.record(tx)

	return &Assessment{
		RiskScore:    score,
		Label:        label,
		Explanation:  explain(factors),
		ModelVersion: engineVersion,
		ModelHash:    engineHash(),
	}, nil
}

// Status reports engine metadata in the same shape a model service would.
func (e *Engine) Status(context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"model_version": engineVersion,
		"model_hash":    engineHash(),
		"type":          "embedded-heuristic",
		"factors":       []string{"amount", "velocity", "novelty", "gas"},
	}, nil
}

// record appends the transaction to the sender's window and prunes it.
func (e *Engine) record(tx *TransactionContext) {
	w := e.window(tx.From)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries = append(w.entries, windowEntry{To: tx.To, Amount: tx.Amount, Seen: e.now()})

	cutoff := e.now().Add(-windowDuration)
	start := 0
	for start < len(w.entries) && w.entries[start].Seen.Before(cutoff) {
		start++
	}
	if start > 0 {
		w.entries = w.entries[start:]
	}
	if len(w.entries) > maxWindowSize {
		w.entries = w.entries[len(w.entries)-maxWindowSize:]
	}
}

func (e *Engine) window(sender string) *senderWindow {
	v, _ := e.windows.LoadOrStore(sender, &senderWindow{})
	return v.(*senderWindow)
}

// recent returns non-expired entries (caller holds lock).
func (e *Engine) recent(w *senderWindow) []windowEntry {
	cutoff := e.now().Add(-windowDuration)
	result := make([]windowEntry, 0, len(w.entries))
	for _, entry := range w.entries {
		if entry.Seen.After(cutoff) {
			result = append(result, entry)
		}
	}
	return result
}

// amountFactor: log10 scaling above the typical amount.
// 10x typical = 0.5, 100x typical = 1.0.
func (e *Engine) amountFactor(amount float64) float64 {
	if amount <= typicalAmount {
		return 0.0
	}
	return clamp01(math.Log10(amount/typicalAmount) / 2.0)
}

// velocityFactor: 5-minute burst from one sender.
// 5 tx in 5 min = 0.5, 10+ = 1.0.
func (e *Engine) velocityFactor(entries []windowEntry) float64 {
	fiveMinAgo := e.now().Add(-5 * time.Minute)
	burst := 0
	for _, entry := range entries {
		if entry.Seen.After(fiveMinAgo) {
			burst++
		}
	}
	return clamp01(float64(burst) / 10.0)
}

// noveltyFactor: unseen recipient for an active sender scores 0.6.
func (e *Engine) noveltyFactor(entries []windowEntry, to string) float64 {
	if len(entries) == 0 {
		// Cold start, no basis for suspicion.
		return 0.0
	}
	for _, entry := range entries {
		if entry.To == to {
			return 0.0
		}
	}
	return 0.6
}

// gasFactor: deviation from the typical gas price, capped at 5x.
func (e *Engine) gasFactor(gasPrice float64) float64 {
	if gasPrice <= 0 || typicalGasPrice <= 0 {
		return 0.0
	}
	ratio := gasPrice / typicalGasPrice
	if ratio < 1.0 {
		ratio = 1.0 / ratio
	}
	return clamp01((ratio - 1.0) / 4.0)
}

// explain builds the explanation payload from the factor map: every factor
// in model_scores, nonzero factors in top_features sorted by weight.
func explain(factors map[string]float64) Explanation {
	top := make([]FeatureWeight, 0, len(factors))
	for name, weight := range factors {
		if weight > 0 {
			top = append(top, FeatureWeight{Feature: name, Weight: weight})
		}
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Weight == top[j].Weight {
			return top[i].Feature < top[j].Feature
		}
		return top[i].Weight > top[j].Weight
	})
	return Explanation{ModelScores: factors, TopFeatures: top}
}

// engineHash fingerprints the engine's weights so assessments record which
// heuristic configuration produced them.
func engineHash() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%v|%v|%v|%v|%v",
		engineVersion, weightAmount, weightVelocity, weightNovelty, weightGas, suspicionThreshold)))
	return hex.EncodeToString(sum[:8])
}

func clamp01(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0.0 {
		return 0.0
	}
	return v
}
