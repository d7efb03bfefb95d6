// Package metrics регистрирует Prometheus-метрики бота.
// Коллекторы объявлены на уровне пакета через promauto и
// регистрируются в default registry при инициализации.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VotesTotal — количество обработанных голосов по исходам
	// (created, updated, unchanged, rejected_*)
	VotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karma_votes_total",
			Help: "Обработанные голоса по исходам",
		},
		[]string{"outcome"},
	)

	// RetractionsTotal — количество отзывов голосов по исходам (deleted, not_found)
	RetractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karma_retractions_total",
			Help: "Отзывы голосов по исходам",
		},
		[]string{"outcome"},
	)

	// AuditDivergenceTotal — найденные аудитом расхождения karma_cache с журналом
	AuditDivergenceTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "karma_audit_divergence_total",
			Help: "Расхождения агрегатов, найденные аудитом",
		},
	)

	// StorageErrorsTotal — ошибки хранилища по операциям
	StorageErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karma_storage_errors_total",
			Help: "Ошибки хранилища по операциям",
		},
		[]string{"operation"},
	)
)
