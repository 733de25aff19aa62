package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tourze/wechat-fans-service/internal/domain"
	"github.com/tourze/wechat-fans-service/internal/reconciler"
	"github.com/tourze/wechat-fans-service/internal/repository"
	"github.com/tourze/wechat-fans-service/internal/service"
	"github.com/tourze/wechat-fans-service/pkg/log"
	"github.com/tourze/wechat-fans-service/pkg/response"
)

// Handler handles HTTP requests for the fans service.
type Handler struct {
	accountService service.AccountService
	fanService     service.FanService
	tagService     service.TagService
	runner         *reconciler.Runner
}

// NewHandler creates a new HTTP handler.
func NewHandler(
	accountService service.AccountService,
	fanService service.FanService,
	tagService service.TagService,
	runner *reconciler.Runner,
) *Handler {
	return &Handler{
		accountService: accountService,
		fanService:     fanService,
		tagService:     tagService,
		runner:         runner,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		accounts := api.Group("/accounts")
		{
			accounts.POST("", h.CreateAccount)
			accounts.GET("", h.ListAccounts)
			accounts.GET("/:id", h.GetAccount)
			accounts.PUT("/:id/valid", h.SetAccountValid)

			accounts.GET("/:id/stats", h.GetStats)

			fans := accounts.Group("/:id/fans")
			{
				fans.GET("", h.ListFans)
				fans.GET("/export", h.ExportFans)
				fans.GET("/:openid", h.GetFan)
				fans.PUT("/:openid/remark", h.UpdateRemark)
			}

			tags := accounts.Group("/:id/tags")
			{
				tags.GET("", h.ListTags)
				tags.POST("", h.CreateTag)
				tags.GET("/stats", h.TagStatistics)
				tags.POST("/sync-counts", h.SyncTagCounts)
				tags.GET("/:tagId", h.GetTag)
				tags.PUT("/:tagId", h.RenameTag)
				tags.DELETE("/:tagId", h.DeleteTag)
				tags.GET("/:tagId/fans", h.FansByTag)
				tags.POST("/:tagId/assign", h.AssignTag)
				tags.POST("/:tagId/unassign", h.UnassignTag)
			}
		}

		api.POST("/sync/:job", h.TriggerSync)
	}
}

type createAccountRequest struct {
	Name      string `json:"name" binding:"required"`
	AppID     string `json:"app_id" binding:"required"`
	AppSecret string `json:"app_secret" binding:"required"`
}

// CreateAccount registers a new official account to mirror.
func (h *Handler) CreateAccount(c *gin.Context) {
	ctx := c.Request.Context()

	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	account := &domain.Account{
		Name:      req.Name,
		AppID:     req.AppID,
		AppSecret: req.AppSecret,
	}
	if err := h.accountService.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, service.ErrInvalidAccount) {
			response.BadRequest(c, err.Error())
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("create account failed")
		response.InternalError(c, "failed to create account")
		return
	}
	response.Created(c, accountView(account))
}

// ListAccounts returns every registered account.
func (h *Handler) ListAccounts(c *gin.Context) {
	accounts, err := h.accountService.ListAccounts(c.Request.Context())
	if err != nil {
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("list accounts failed")
		response.InternalError(c, "failed to list accounts")
		return
	}

	views := make([]gin.H, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, accountView(account))
	}
	response.Success(c, views)
}

// GetAccount returns one account.
func (h *Handler) GetAccount(c *gin.Context) {
	account, err := h.accountService.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			response.NotFound(c, "account not found")
			return
		}
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("get account failed")
		response.InternalError(c, "failed to get account")
		return
	}
	response.Success(c, accountView(account))
}

type setValidRequest struct {
	Valid *bool `json:"valid" binding:"required"`
}

// SetAccountValid toggles whether an account participates in sync jobs.
func (h *Handler) SetAccountValid(c *gin.Context) {
	var req setValidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	err := h.accountService.SetAccountValid(c.Request.Context(), c.Param("id"), *req.Valid)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			response.NotFound(c, "account not found")
			return
		}
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("set account valid failed")
		response.InternalError(c, "failed to update account")
		return
	}
	response.Success(c, gin.H{"valid": *req.Valid})
}

// ListFans returns one page of the fan mirror, optionally filtered by
// status and tag.
func (h *Handler) ListFans(c *gin.Context) {
	ctx := c.Request.Context()

	query := repository.FanQuery{AccountID: c.Param("id")}
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))

	if raw := c.Query("status"); raw != "" {
		status := domain.FanStatus(raw)
		query.Status = &status
	}
	if raw := c.Query("tag_id"); raw != "" {
		tagID, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(c, "tag_id must be an integer")
			return
		}
		query.TagID = &tagID
	}

	page, err := h.fanService.ListFans(ctx, query)
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			response.BadRequest(c, err.Error())
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("list fans failed")
		response.InternalError(c, "failed to list fans")
		return
	}

	fans := make([]gin.H, 0, len(page.Fans))
	for _, fan := range page.Fans {
		fans = append(fans, fanView(fan, nil))
	}
	response.Success(c, gin.H{
		"fans":  fans,
		"total": page.Total,
		"page":  page.Page,
		"limit": page.Limit,
	})
}

// GetFan returns one fan plus its tag names.
func (h *Handler) GetFan(c *gin.Context) {
	ctx := c.Request.Context()

	detail, err := h.fanService.GetFan(ctx, c.Param("id"), c.Param("openid"))
	if err != nil {
		if errors.Is(err, repository.ErrFanNotFound) {
			response.NotFound(c, "fan not found")
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("get fan failed")
		response.InternalError(c, "failed to get fan")
		return
	}
	response.Success(c, fanView(detail.Fan, detail.TagNames))
}

type updateRemarkRequest struct {
	Remark string `json:"remark"`
}

// UpdateRemark sets the free-text annotation on one fan.
func (h *Handler) UpdateRemark(c *gin.Context) {
	var req updateRemarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	err := h.fanService.UpdateRemark(c.Request.Context(), c.Param("id"), c.Param("openid"), req.Remark)
	if err != nil {
		if errors.Is(err, repository.ErrFanNotFound) {
			response.NotFound(c, "fan not found")
			return
		}
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("update remark failed")
		response.InternalError(c, "failed to update remark")
		return
	}
	response.Success(c, gin.H{"remark": req.Remark})
}

// ExportFans returns the full fan list with tag names for download.
func (h *Handler) ExportFans(c *gin.Context) {
	ctx := c.Request.Context()

	var status *domain.FanStatus
	if raw := c.Query("status"); raw != "" {
		s := domain.FanStatus(raw)
		status = &s
	}

	details, err := h.fanService.ExportFans(ctx, c.Param("id"), status)
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			response.BadRequest(c, err.Error())
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("export fans failed")
		response.InternalError(c, "failed to export fans")
		return
	}

	rows := make([]gin.H, 0, len(details))
	for _, detail := range details {
		rows = append(rows, fanView(detail.Fan, detail.TagNames))
	}
	response.Success(c, rows)
}

// GetStats returns the per-status fan counts for one account.
func (h *Handler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.fanService.GetStats(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			response.NotFound(c, "account not found")
			return
		}
		log.Ctx(ctx).Error().Err(err).Msg("get stats failed")
		response.InternalError(c, "failed to get stats")
		return
	}
	response.Success(c, stats)
}

// ListTags returns every tag of the account.
func (h *Handler) ListTags(c *gin.Context) {
	tags, err := h.tagService.ListTags(c.Request.Context(), c.Param("id"))
	if err != nil {
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("list tags failed")
		response.InternalError(c, "failed to list tags")
		return
	}

	views := make([]gin.H, 0, len(tags))
	for _, tag := range tags {
		views = append(views, tagView(tag))
	}
	response.Success(c, views)
}

type tagNameRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateTag registers a new local tag.
func (h *Handler) CreateTag(c *gin.Context) {
	var req tagNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	tag, err := h.tagService.CreateTag(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		h.tagError(c, err, "create tag failed")
		return
	}
	response.Created(c, tagView(tag))
}

// GetTag returns one tag.
func (h *Handler) GetTag(c *gin.Context) {
	tagID, ok := h.tagIDParam(c)
	if !ok {
		return
	}

	tag, err := h.tagService.GetTag(c.Request.Context(), c.Param("id"), tagID)
	if err != nil {
		h.tagError(c, err, "get tag failed")
		return
	}
	response.Success(c, tagView(tag))
}

// RenameTag changes one tag's name.
func (h *Handler) RenameTag(c *gin.Context) {
	tagID, ok := h.tagIDParam(c)
	if !ok {
		return
	}

	var req tagNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	tag, err := h.tagService.RenameTag(c.Request.Context(), c.Param("id"), tagID, req.Name)
	if err != nil {
		h.tagError(c, err, "rename tag failed")
		return
	}
	response.Success(c, tagView(tag))
}

// DeleteTag removes one tag and its relations.
func (h *Handler) DeleteTag(c *gin.Context) {
	tagID, ok := h.tagIDParam(c)
	if !ok {
		return
	}

	if err := h.tagService.DeleteTag(c.Request.Context(), c.Param("id"), tagID); err != nil {
		h.tagError(c, err, "delete tag failed")
		return
	}
	response.Success(c, gin.H{"deleted": tagID})
}

// FansByTag returns the fans carrying one tag.
func (h *Handler) FansByTag(c *gin.Context) {
	tagID, ok := h.tagIDParam(c)
	if !ok {
		return
	}

	fans, err := h.tagService.FansByTag(c.Request.Context(), c.Param("id"), tagID)
	if err != nil {
		h.tagError(c, err, "list fans by tag failed")
		return
	}

	views := make([]gin.H, 0, len(fans))
	for _, fan := range fans {
		views = append(views, fanView(fan, nil))
	}
	response.Success(c, views)
}

type openidsRequest struct {
	OpenIDs []string `json:"openids" binding:"required,min=1"`
}

// AssignTag applies one tag to a set of fans.
func (h *Handler) AssignTag(c *gin.Context) {
	h.changeTagRelations(c, h.fanService.AssignTag, "assigned")
}

// UnassignTag removes one tag from a set of fans.
func (h *Handler) UnassignTag(c *gin.Context) {
	h.changeTagRelations(c, h.fanService.UnassignTag, "removed")
}

func (h *Handler) changeTagRelations(
	c *gin.Context,
	apply func(ctx context.Context, accountID string, tagID int, openids []string) (int64, error),
	key string,
) {
	tagID, ok := h.tagIDParam(c)
	if !ok {
		return
	}

	var req openidsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	changed, err := apply(c.Request.Context(), c.Param("id"), tagID, req.OpenIDs)
	if err != nil {
		h.tagError(c, err, "change tag relations failed")
		return
	}
	response.Success(c, gin.H{key: changed})
}

// TagStatistics returns the per-tag fan counts, largest first.
func (h *Handler) TagStatistics(c *gin.Context) {
	stats, err := h.tagService.TagStatistics(c.Request.Context(), c.Param("id"))
	if err != nil {
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("tag statistics failed")
		response.InternalError(c, "failed to compute tag statistics")
		return
	}
	response.Success(c, stats)
}

// SyncTagCounts refreshes every tag's cached count.
func (h *Handler) SyncTagCounts(c *gin.Context) {
	if err := h.tagService.SyncTagCounts(c.Request.Context(), c.Param("id")); err != nil {
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("sync tag counts failed")
		response.InternalError(c, "failed to sync tag counts")
		return
	}
	response.Success(c, gin.H{"synced": true})
}

// TriggerSync starts one named sync job in the background.
func (h *Handler) TriggerSync(c *gin.Context) {
	job := c.Param("job")
	switch job {
	case reconciler.JobFollowers, reconciler.JobBlacklist, reconciler.JobTags, reconciler.JobUserDetails:
	default:
		response.BadRequest(c, "unknown sync job: "+job)
		return
	}

	// The job outlives the request; run it detached from the request
	// context and let the logs carry the outcome.
	go func() {
		if err := h.runner.RunJob(context.Background(), job); err != nil {
			log.L().Error().Err(err).Str(log.FieldJob, job).Msg("on-demand sync failed")
		}
	}()

	response.Success(c, gin.H{"job": job, "status": "started"})
}

func (h *Handler) tagIDParam(c *gin.Context) (int, bool) {
	tagID, err := strconv.Atoi(c.Param("tagId"))
	if err != nil {
		response.BadRequest(c, "tag id must be an integer")
		return 0, false
	}
	return tagID, true
}

func (h *Handler) tagError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, repository.ErrTagNotFound):
		response.NotFound(c, "tag not found")
	case errors.Is(err, service.ErrTagAlreadyExists):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrInvalidTagName):
		response.BadRequest(c, err.Error())
	default:
		log.Ctx(c.Request.Context()).Error().Err(err).Msg(msg)
		response.InternalError(c, msg)
	}
}

func accountView(account *domain.Account) gin.H {
	return gin.H{
		"id":         account.ID,
		"name":       account.Name,
		"app_id":     account.AppID,
		"valid":      account.Valid,
		"created_at": account.CreatedAt,
		"updated_at": account.UpdatedAt,
	}
}

func fanView(fan *domain.Fan, tagNames []string) gin.H {
	view := gin.H{
		"openid":         fan.OpenID,
		"unionid":        fan.UnionID,
		"nickname":       fan.Nickname,
		"avatar_url":     fan.AvatarURL,
		"sex":            fan.Sex.String(),
		"language":       fan.Language,
		"city":           fan.City,
		"province":       fan.Province,
		"country":        fan.Country,
		"subscribe_time": fan.SubscribeTime,
		"remark":         fan.Remark,
		"status":         fan.Status,
	}
	if tagNames != nil {
		view["tags"] = tagNames
	}
	return view
}

func tagView(tag *domain.Tag) gin.H {
	return gin.H{
		"tag_id": tag.TagID,
		"name":   tag.Name,
		"count":  tag.Count,
	}
}
