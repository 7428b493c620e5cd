// Package logger builds the service's *slog.Logger.
//
// WithConfig maps APP_ENV and LOG_LEVEL onto handler format and level.
// Context extractors registered with WithContextExtractors add request-scoped
// attributes (request id, shop) to every record logged with a context:
//
//	log := logger.New(
//		logger.WithConfig(cfg.Log),
//		logger.WithContextExtractors(merchant.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "charge created", logger.ChargeID(id))
//
// attr.go holds constructors that keep attribute keys consistent.
package logger
