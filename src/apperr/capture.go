package apperr

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"time"

	logger "github.com/sirupsen/logrus"

	"aitrader/src/model"
)

// ExceptionStore is the subset of ExceptionRepository that Capture needs;
// declared here instead of imported so apperr never depends on repository.
type ExceptionStore interface {
	Create(ctx context.Context, exc *model.Exception) error
}

// Capture logs err with structured fields and, if repo is non-nil, persists
// it as a model.Exception for later inspection. A nil err is a no-op.
func Capture(
	ctx context.Context,
	repo ExceptionStore,
	service, module, method, level string,
	err error,
	contextData map[string]interface{},
) {
	if err == nil {
		return
	}

	var ctxJSON string
	if contextData != nil {
		if b, e := json.Marshal(contextData); e == nil {
			ctxJSON = string(b)
		}
	}

	logger.WithFields(map[string]interface{}{
		"service": service,
		"module":  module,
		"method":  method,
		"level":   level,
	}).WithError(err).Error("captured exception")

	if repo == nil {
		return
	}

	exc := &model.Exception{
		Service:   service,
		Module:    module,
		Method:    method,
		Message:   err.Error(),
		Stack:     string(debug.Stack()),
		Level:     level,
		Context:   ctxJSON,
		CreatedAt: time.Now(),
	}

	if e := repo.Create(ctx, exc); e != nil {
		logger.WithError(e).Error("failed to persist exception")
	}
}
