package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/middleware"
	"github.com/xxxsen/docqa/internal/pkg/errcode"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/pkg/response"
)

var errorCodes = []struct {
	err  error
	code int
}{
	{appErr.ErrConfiguration, errcode.ErrConfiguration},
	{appErr.ErrInvalidTopK, errcode.ErrInvalidTopK},
	{appErr.ErrSchemaMismatch, errcode.ErrSchemaMismatch},
	{appErr.ErrCollectionNotFound, errcode.ErrCollectionNotFound},
	{appErr.ErrNoResults, errcode.ErrNoResults},
	{appErr.ErrStorageUnavailable, errcode.ErrStorageUnavailable},
	{appErr.ErrEmbeddingService, errcode.ErrEmbeddingService},
	{appErr.ErrSynthesisService, errcode.ErrSynthesisService},
	{appErr.ErrInvalid, errcode.ErrInvalid},
	{appErr.ErrNotFound, errcode.ErrNotFound},
}

func codeOf(err error) int {
	for _, item := range errorCodes {
		if errors.Is(err, item.err) {
			return item.code
		}
	}
	return errcode.ErrInternal
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	subject, _ := c.Get(middleware.ContextSubjectKey)
	code := codeOf(err)
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Any("subject", subject),
		zap.Int("code", code),
		zap.Error(err),
	)
	msg := err.Error()
	switch code {
	case errcode.ErrInternal:
		msg = "internal error"
	case errcode.ErrEmbeddingService:
		msg = "embedding service unavailable"
	case errcode.ErrSynthesisService:
		msg = "answer synthesis unavailable"
	}
	response.Error(c, code, msg)
}
