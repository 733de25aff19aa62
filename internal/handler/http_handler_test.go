package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tourze/wechat-fans-service/internal/cache"
	"github.com/tourze/wechat-fans-service/internal/domain"
	"github.com/tourze/wechat-fans-service/internal/repository"
	"github.com/tourze/wechat-fans-service/internal/service"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.AccountModel{},
		&domain.FanModel{},
		&domain.TagModel{},
		&domain.FanTagModel{},
	))

	accounts := repository.NewGormAccountRepository(db)
	fans := repository.NewGormFanRepository(db)
	tags := repository.NewGormTagRepository(db)
	fanTags := repository.NewGormFanTagRepository(db)

	handler := NewHandler(
		service.NewAccountService(accounts),
		service.NewFanService(fans, tags, fanTags, accounts, cache.NewNoopStatsCache()),
		service.NewTagService(tags, fanTags),
		nil,
	)

	router := gin.New()
	handler.RegisterRoutes(router)
	return router, db
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func createAccount(t *testing.T, router *gin.Engine) string {
	t.Helper()

	w, env := doJSON(t, router, http.MethodPost, "/api/v1/accounts", gin.H{
		"name":       "shop",
		"app_id":     "wx123",
		"app_secret": "secret",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var data struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.ID)
	return data.ID
}

func TestAccountEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)
	id := createAccount(t, router)

	w, env := doJSON(t, router, http.MethodGet, "/api/v1/accounts/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/accounts/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = doJSON(t, router, http.MethodPut, "/api/v1/accounts/"+id+"/valid", gin.H{"valid": false})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/accounts", gin.H{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFanEndpoints(t *testing.T) {
	router, db := newTestRouter(t)
	id := createAccount(t, router)

	require.NoError(t, db.Create(&domain.FanModel{
		AccountID: id,
		OpenID:    "A",
		Nickname:  "Alice",
		Status:    domain.StatusSubscribed,
	}).Error)
	require.NoError(t, db.Create(&domain.FanModel{
		AccountID: id,
		OpenID:    "B",
		Status:    domain.StatusBlocked,
	}).Error)

	w, env := doJSON(t, router, http.MethodGet, "/api/v1/accounts/"+id+"/fans?status=subscribed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 1, page.Total)

	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/accounts/"+id+"/fans?status=banned", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = doJSON(t, router, http.MethodGet, "/api/v1/accounts/"+id+"/fans/A", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fan struct {
		Nickname string `json:"nickname"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &fan))
	assert.Equal(t, "Alice", fan.Nickname)

	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/accounts/"+id+"/fans/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = doJSON(t, router, http.MethodPut, "/api/v1/accounts/"+id+"/fans/A/remark", gin.H{"remark": "vip"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = doJSON(t, router, http.MethodGet, "/api/v1/accounts/"+id+"/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Subscribed int `json:"subscribed"`
		Blocked    int `json:"blocked"`
		Total      int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.Subscribed)
	assert.Equal(t, 1, stats.Blocked)
	assert.Equal(t, 2, stats.Total)
}

func TestTagEndpoints(t *testing.T) {
	router, db := newTestRouter(t)
	id := createAccount(t, router)

	w, env := doJSON(t, router, http.MethodPost, "/api/v1/accounts/"+id+"/tags", gin.H{"name": "VIP"})
	require.Equal(t, http.StatusCreated, w.Code)
	var tag struct {
		TagID int `json:"tag_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tag))
	assert.Equal(t, 1, tag.TagID)

	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/accounts/"+id+"/tags", gin.H{"name": "VIP"})
	assert.Equal(t, http.StatusConflict, w.Code)

	require.NoError(t, db.Create(&domain.FanModel{
		AccountID: id,
		OpenID:    "A",
		Status:    domain.StatusSubscribed,
	}).Error)

	w, env = doJSON(t, router, http.MethodPost, "/api/v1/accounts/"+id+"/tags/1/assign", gin.H{"openids": []string{"A"}})
	require.Equal(t, http.StatusOK, w.Code)
	var assigned struct {
		Assigned int `json:"assigned"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &assigned))
	assert.Equal(t, 1, assigned.Assigned)

	w, env = doJSON(t, router, http.MethodGet, "/api/v1/accounts/"+id+"/tags/1/fans", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var fans []struct {
		OpenID string `json:"openid"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &fans))
	require.Len(t, fans, 1)
	assert.Equal(t, "A", fans[0].OpenID)

	w, _ = doJSON(t, router, http.MethodPut, "/api/v1/accounts/"+id+"/tags/1", gin.H{"name": "Gold"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, router, http.MethodDelete, "/api/v1/accounts/"+id+"/tags/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/accounts/"+id+"/tags/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/accounts/"+id+"/tags/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTriggerSyncRejectsUnknownJob(t *testing.T) {
	router, _ := newTestRouter(t)

	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/sync/nonsense", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
