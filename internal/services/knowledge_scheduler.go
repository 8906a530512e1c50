package services

import (
	"context"
	"time"

	rcron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const knowledgeRunTimeout = 10 * time.Minute

// KnowledgeScheduler triggers ProcessPending on a cron schedule. A run that is still
// going when the next tick fires causes that tick to be skipped.
type KnowledgeScheduler struct {
	cron      *rcron.Cron
	service   *KnowledgeService
	batchSize int
	logger    zerolog.Logger
}

func NewKnowledgeScheduler(service *KnowledgeService, schedule string, batchSize int, logger zerolog.Logger) (*KnowledgeScheduler, error) {
	cl := cronLogger{logger: logger}
	s := &KnowledgeScheduler{
		cron:      rcron.New(rcron.WithLogger(cl), rcron.WithChain(rcron.Recover(cl), rcron.SkipIfStillRunning(cl))),
		service:   service,
		batchSize: batchSize,
		logger:    logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *KnowledgeScheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("Knowledge scheduler started")
}

// Stop waits for a running job to finish or for ctx to expire.
func (s *KnowledgeScheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *KnowledgeScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), knowledgeRunTimeout)
	defer cancel()
	ctx = s.logger.With().Str("trigger", "cron").Logger().WithContext(ctx)

	if _, err := s.service.ProcessPending(ctx, s.batchSize); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled knowledge ingestion failed")
	}
}

// cronLogger adapts zerolog to cron's logging interface.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
