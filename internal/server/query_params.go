package server

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const maxListLimit = 500

func parseOptionalInt64(value string) (*int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parseLimit reads ?limit=. Zero lets the repository apply its default.
func parseLimit(c *gin.Context) (int, error) {
	limit, err := parseOptionalInt64(c.Query("limit"))
	if err != nil || (limit != nil && (*limit < 0 || *limit > maxListLimit)) {
		return 0, newValidationError("limit", "invalid_limit", "limit must be between 0 and 500")
	}
	if limit == nil {
		return 0, nil
	}
	return int(*limit), nil
}

func parseIDParam(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id <= 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return id, nil
}
