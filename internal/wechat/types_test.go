package wechat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserInfoDecodeFullRecord(t *testing.T) {
	payload := `{
		"openid": "o123",
		"unionid": "u456",
		"subscribe": 1,
		"nickname": "Alice",
		"headimgurl": "https://example.com/a.png",
		"sex": 2,
		"language": "zh_CN",
		"city": "Shenzhen",
		"province": "Guangdong",
		"country": "China",
		"remark": "vip",
		"subscribe_time": 1700000000
	}`

	var info UserInfo
	require.NoError(t, json.Unmarshal([]byte(payload), &info))

	assert.Equal(t, "o123", info.OpenID)
	require.NotNil(t, info.Subscribe)
	assert.Equal(t, 1, *info.Subscribe)
	require.NotNil(t, info.Nickname)
	assert.Equal(t, "Alice", *info.Nickname)
	require.NotNil(t, info.AvatarURL)
	assert.Equal(t, "https://example.com/a.png", *info.AvatarURL)
	require.NotNil(t, info.Sex)
	assert.Equal(t, 2, *info.Sex)
	require.NotNil(t, info.SubscribeTime)
	assert.Equal(t, int64(1700000000), *info.SubscribeTime)
	require.NotNil(t, info.Remark)
	assert.Equal(t, "vip", *info.Remark)
}

func TestUserInfoDecodeMissingFieldsStayNil(t *testing.T) {
	var info UserInfo
	require.NoError(t, json.Unmarshal([]byte(`{"openid":"o1","subscribe":1}`), &info))

	assert.Equal(t, "o1", info.OpenID)
	assert.Nil(t, info.Nickname)
	assert.Nil(t, info.City)
	assert.Nil(t, info.SubscribeTime)
	assert.Nil(t, info.Sex)
}

func TestUserInfoDecodeMistypedFieldIsDropped(t *testing.T) {
	// nickname arrives as a number and subscribe_time as a string; both
	// are dropped without failing the record.
	payload := `{"openid":"o1","subscribe":1,"nickname":42,"subscribe_time":"soon","city":"Beijing"}`

	var info UserInfo
	require.NoError(t, json.Unmarshal([]byte(payload), &info))

	assert.Equal(t, "o1", info.OpenID)
	assert.Nil(t, info.Nickname)
	assert.Nil(t, info.SubscribeTime)
	require.NotNil(t, info.City)
	assert.Equal(t, "Beijing", *info.City)
}

func TestUserInfoDecodeMistypedOpenID(t *testing.T) {
	var info UserInfo
	require.NoError(t, json.Unmarshal([]byte(`{"openid":7,"subscribe":1}`), &info))
	assert.Empty(t, info.OpenID)
}

func TestListResponseToPage(t *testing.T) {
	var resp listResponse
	require.NoError(t, json.Unmarshal([]byte(`{
		"total": 3,
		"count": 2,
		"data": {"openid": ["A", "B"]},
		"next_openid": "B"
	}`), &resp))

	page := resp.toPage()
	assert.True(t, page.HasData)
	assert.Equal(t, []string{"A", "B"}, page.OpenIDs)
	require.NotNil(t, page.Total)
	assert.Equal(t, 3, *page.Total)
	assert.Equal(t, "B", page.NextCursor)
}

func TestListResponseToPageEmptyList(t *testing.T) {
	var resp listResponse
	require.NoError(t, json.Unmarshal([]byte(`{"total":0,"count":0,"next_openid":""}`), &resp))

	page := resp.toPage()
	assert.False(t, page.HasData)
	assert.Empty(t, page.OpenIDs)
	require.NotNil(t, page.Total)
	assert.Equal(t, 0, *page.Total)
}

func TestListResponseToPageMissingEverything(t *testing.T) {
	var resp listResponse
	require.NoError(t, json.Unmarshal([]byte(`{"errcode":0}`), &resp))

	page := resp.toPage()
	assert.False(t, page.HasData)
	assert.Nil(t, page.Total)
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{Code: 40001, Message: "invalid credential"}
	assert.Equal(t, "wechat api error 40001: invalid credential", err.Error())
}
