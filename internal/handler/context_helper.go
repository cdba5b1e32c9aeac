package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/surgitrack-api/internal/middleware"
	"github.com/noah-isme/surgitrack-api/internal/models"
)

func currentActor(c *gin.Context) models.Actor {
	return middleware.Actor(c)
}

func patientFilterFromQuery(c *gin.Context) models.PatientFilter {
	var filter models.PatientFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Status = models.SurgeryStatus(strings.TrimSpace(c.Query("status")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")
	return filter
}
