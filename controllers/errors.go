package controllers

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"

	"github.com/BerniceZTT/crm_engagement/repository"
	"github.com/BerniceZTT/crm_engagement/service"
	"github.com/BerniceZTT/crm_engagement/utils"
)

// handleError 把领域错误转换为 ApiError 后统一响应
func handleError(c *gin.Context, err error) {
	utils.HandleError(c, toApiError(err))
}

func toApiError(err error) error {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		return utils.CreateValidationError(vErr.Error())
	case errors.Is(err, repository.ErrNotFound):
		return utils.CreateNotFoundError("职位对接")
	case errors.Is(err, repository.ErrRetryExhausted):
		return utils.CreateRetryExhaustedError()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return utils.CreateUncertainOperationError()
	default:
		return err
	}
}

// parseOptionalDate 空字符串返回零值
func parseOptionalDate(field, raw string) (civil.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return civil.Date{}, nil
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		return civil.Date{}, &service.ValidationError{Field: field, Message: "日期格式应为 yyyy-mm-dd"}
	}
	return d, nil
}
