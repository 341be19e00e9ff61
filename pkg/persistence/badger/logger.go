package badger

import (
	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// badgerLoggerAdapter routes badger's printf-style logging into zap.
// Badger is chatty at info level, so info is demoted to debug.
type badgerLoggerAdapter struct {
	logger *zap.Logger
}

var _ badgerdb.Logger = (*badgerLoggerAdapter)(nil)

func (b *badgerLoggerAdapter) sugar() *zap.SugaredLogger {
	return b.logger.Named("badger").Sugar()
}

func (b *badgerLoggerAdapter) Errorf(format string, args ...interface{}) {
	b.sugar().Errorf(format, args...)
}

func (b *badgerLoggerAdapter) Warningf(format string, args ...interface{}) {
	b.sugar().Warnf(format, args...)
}

func (b *badgerLoggerAdapter) Infof(format string, args ...interface{}) {
	b.sugar().Debugf(format, args...)
}

func (b *badgerLoggerAdapter) Debugf(format string, args ...interface{}) {
	b.sugar().Debugf(format, args...)
}
