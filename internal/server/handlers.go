package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chainguardian-io/chainguardian/internal/anchor"
	"github.com/chainguardian-io/chainguardian/internal/logging"
	"github.com/chainguardian-io/chainguardian/internal/metrics"
	"github.com/chainguardian-io/chainguardian/internal/pipeline"
	"github.com/chainguardian-io/chainguardian/internal/traces"
	"github.com/chainguardian-io/chainguardian/internal/validation"
)

// AlertURIPrefix locates an alert document from its on-chain entry.
const AlertURIPrefix = "guardian://alerts/"

// ingestTransaction handles POST /api/tx. This is the hot path: every
// submitted transaction runs the full intake pipeline synchronously and
// the response reports whether an alert was raised.
func (s *Server) ingestTransaction(c *gin.Context) {
	ctx := c.Request.Context()

	var in pipeline.TxInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	// Intake is chain-agnostic, so non-canonical identifiers are accepted,
	// but addresses are normalized so case variants of the same sender
	// dedup to one signature.
	in.From = validation.SanitizeAddress(in.From)
	in.To = validation.SanitizeAddress(in.To)
	if !validation.IsValidTxHash(in.TxHash) || !validation.IsValidEthAddress(in.From) {
		logging.L(ctx).Debug("non-canonical transaction identifiers", "tx_hash", in.TxHash)
	}

	result, err := s.service.Process(ctx, in)
	if err != nil {
		var awErr *pipeline.AlertWriteError
		switch {
		case errors.Is(err, pipeline.ErrMissingField), errors.Is(err, pipeline.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": err.Error(),
			})
		case errors.As(err, &awErr):
			// The transaction record is durable; only the alert write
			// failed. Surfaced distinctly so operators know to reconcile.
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "alert_write_failed",
				"message": "transaction recorded but alert could not be persisted",
				"partial": true,
				"txHash":  awErr.TxHash,
				"sigHash": awErr.SigHash,
			})
		default:
			logging.L(ctx).Error("transaction intake failed", "tx_hash", in.TxHash, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to process transaction",
			})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// listTransactions handles GET /api/txs.
func (s *Server) listTransactions(c *gin.Context) {
	ctx := c.Request.Context()

	txs, err := s.store.ListTransactions(ctx, queryLimit(c))
	if err != nil {
		logging.L(ctx).Error("list transactions failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list transactions",
		})
		return
	}
	if txs == nil {
		txs = []*pipeline.TransactionRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}

// listAlerts handles GET /api/alerts.
func (s *Server) listAlerts(c *gin.Context) {
	ctx := c.Request.Context()

	alerts, err := s.store.ListAlerts(ctx, queryLimit(c))
	if err != nil {
		logging.L(ctx).Error("list alerts failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list alerts",
		})
		return
	}
	if alerts == nil {
		alerts = []*pipeline.AlertRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// getAlert handles GET /api/alerts/:sigHash.
func (s *Server) getAlert(c *gin.Context) {
	ctx := c.Request.Context()
	sigHash := c.Param("sigHash")

	alert, err := s.store.GetAlertBySigHash(ctx, sigHash)
	if err != nil {
		if errors.Is(err, pipeline.ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "alert_not_found",
				"message": "No alert registered for this signature hash",
			})
			return
		}
		logging.L(ctx).Error("get alert failed", "sig_hash", sigHash, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load alert",
		})
		return
	}

	c.JSON(http.StatusOK, alert)
}

// anchorAlert handles POST /api/alerts/:sigHash/anchor. The alert must
// already be persisted; anchoring co-attests an existing record, it
// never creates one.
func (s *Server) anchorAlert(c *gin.Context) {
	ctx := c.Request.Context()
	sigHash := c.Param("sigHash")

	if s.registrar == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "anchor_unavailable",
			"message": "Ledger anchoring is not configured on this deployment",
		})
		return
	}

	alert, err := s.store.GetAlertBySigHash(ctx, sigHash)
	if err != nil {
		if errors.Is(err, pipeline.ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "alert_not_found",
				"message": "No alert registered for this signature hash",
			})
			return
		}
		logging.L(ctx).Error("anchor lookup failed", "sig_hash", sigHash, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load alert",
		})
		return
	}

	ctx, span := traces.StartSpan(ctx, "anchor.Register",
		traces.SigHash(alert.SigHash),
		traces.SeverityTier(alert.Severity.String()),
	)
	defer span.End()

	timer := prometheus.NewTimer(metrics.AnchorDuration)
	result, err := s.registrar.Register(ctx, alert.SigHash, alert.FlaggedAddress, AlertURIPrefix+alert.SigHash, uint8(alert.Severity))
	timer.ObserveDuration()
	if err != nil {
		metrics.AnchorSubmissionsTotal.WithLabelValues("error").Inc()
		logging.L(ctx).Error("anchoring failed", "sig_hash", sigHash, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "anchor_failed",
			"message": err.Error(),
			"sigHash": sigHash,
		})
		return
	}
	metrics.AnchorSubmissionsTotal.WithLabelValues("ok").Inc()

	logging.L(ctx).Info("alert anchored",
		"sig_hash", sigHash,
		"chain_tx", result.ChainTxHash,
		"block", result.BlockNumber,
	)

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"sigHash":     sigHash,
		"chainTxHash": result.ChainTxHash,
		"blockNumber": result.BlockNumber,
		"gasUsed":     result.GasUsed,
		"reporter":    result.Reporter,
	})
}

// getChainAlert handles GET /api/chain/alerts/:sigHash, reading the
// registry contract directly so callers can verify an anchor without
// trusting this service's database.
func (s *Server) getChainAlert(c *gin.Context) {
	ctx := c.Request.Context()
	sigHash := c.Param("sigHash")

	if s.registrar == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "anchor_unavailable",
			"message": "Ledger anchoring is not configured on this deployment",
		})
		return
	}

	onChain, err := s.registrar.GetAlert(ctx, sigHash)
	if err != nil {
		if errors.Is(err, anchor.ErrNotAnchored) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_anchored",
				"message": "Signature hash is not registered on chain",
			})
			return
		}
		logging.L(ctx).Error("chain alert lookup failed", "sig_hash", sigHash, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "chain_read_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, onChain)
}

// getStatistics handles GET /api/stats.
func (s *Server) getStatistics(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := s.store.Statistics(ctx)
	if err != nil {
		logging.L(ctx).Error("statistics failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to compute statistics",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// modelStatus handles GET /api/model/status.
func (s *Server) modelStatus(c *gin.Context) {
	ctx := c.Request.Context()

	if s.oracle == nil {
		c.JSON(http.StatusOK, gin.H{
			"available": false,
			"mode":      s.cfg.OracleMode,
		})
		return
	}

	status, err := s.oracle.Status(ctx)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"available": false,
			"mode":      s.cfg.OracleMode,
			"error":     err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"available": true,
		"mode":      s.cfg.OracleMode,
		"model":     status,
	})
}

// rootHandler handles GET /.
func (s *Server) rootHandler(c *gin.Context) {
	storage := "memory"
	if s.cfg.DatabaseURL != "" {
		storage = "postgres"
	}
	c.JSON(http.StatusOK, gin.H{
		"name":        "ChainGuardian",
		"description": "Transaction intake and fraud alert anchoring",
		"version":     "0.1.0",
		"anchoring":   s.registrar != nil,
		"oracle":      s.oracle != nil,
		"storage":     storage,
	})
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		return 100
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
