package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики конвейера анализа.
var (
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "an_analyses_total",
		Help: "Общее количество заданий анализа по виду и исходу.",
	}, []string{"kind", "outcome"})

	analysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "an_analysis_duration_seconds",
		Help:    "Длительность выполнения анализа от запуска до записи результата.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"kind"})

	stagedFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "an_staged_files_total",
		Help: "Количество файлов, сохранённых в blob-хранилище при приёме заданий.",
	}, []string{"kind"})
)
