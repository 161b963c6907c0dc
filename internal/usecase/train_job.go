package usecase

import (
	"context"
	"fmt"

	"DropWatch/pkg/logger"
	"DropWatch/pkg/queue"
)

const TrainMessageType = "trainer.run"

// TrainPayload carries per-run window overrides; zero values fall back
// to the configured defaults before bounding.
type TrainPayload struct {
	LookbackDays      int `json:"lookback_days"`
	HorizonMinutes    int `json:"horizon_minutes"`
	HistoryWindowDays int `json:"history_window_days"`
	SampleStepMinutes int `json:"sample_step_minutes"`
	MaxSamples        int `json:"max_samples"`
}

// TrainJob runs the classifier trainer from the job queue. Routing all
// training requests through a single-worker queue is what keeps runs
// from overlapping.
type TrainJob struct {
	trainer  *ClassifierTrainer
	defaults TrainOptions
	logger   *logger.Logger
}

// NewTrainJob creates the queue job with the default training windows.
func NewTrainJob(trainer *ClassifierTrainer, defaults TrainOptions, lgr *logger.Logger) *TrainJob {
	return &TrainJob{trainer: trainer, defaults: defaults, logger: lgr}
}

func (j *TrainJob) Name() string { return "classifier-train" }

func (j *TrainJob) Type() string { return TrainMessageType }

func (j *TrainJob) Handle(ctx context.Context, payload interface{}) error {
	opts := j.defaults
	if payload != nil {
		p, err := queue.ParsePayload[TrainPayload](payload)
		if err != nil {
			return fmt.Errorf("parse train payload: %w", err)
		}
		opts = j.merge(p)
	}

	cal, err := j.trainer.Train(ctx, opts)
	if err != nil {
		return fmt.Errorf("train run: %w", err)
	}
	if cal == nil {
		j.logger.Info("train run skipped, insufficient data")
		return nil
	}
	return nil
}

func (j *TrainJob) merge(p *TrainPayload) TrainOptions {
	opts := j.defaults
	if p.LookbackDays > 0 {
		opts.LookbackDays = p.LookbackDays
	}
	if p.HorizonMinutes > 0 {
		opts.HorizonMinutes = p.HorizonMinutes
	}
	if p.HistoryWindowDays > 0 {
		opts.HistoryWindowDays = p.HistoryWindowDays
	}
	if p.SampleStepMinutes > 0 {
		opts.SampleStepMinutes = p.SampleStepMinutes
	}
	if p.MaxSamples > 0 {
		opts.MaxSamples = p.MaxSamples
	}
	return opts
}
