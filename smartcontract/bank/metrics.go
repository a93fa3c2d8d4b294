package bank

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InstructionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loader_v4_bank_instructions_total",
		Help: "Total number of loader instructions processed by the bank",
	}, []string{"instruction", "result"})

	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loader_v4_bank_transactions_total",
		Help: "Total number of transactions processed by the bank",
	}, []string{"result"})

	TransactionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loader_v4_bank_transaction_duration_seconds",
		Help:    "Duration of transaction processing in the bank",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12), // 50us .. ~100ms
	})

	ProgramCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loader_v4_bank_program_cache_total",
		Help: "Total number of program cache lookups",
	}, []string{"result"})
)
