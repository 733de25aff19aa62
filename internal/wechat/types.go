package wechat

import (
	"encoding/json"
	"fmt"
)

// APIError is a non-zero errcode returned in the WeChat response envelope.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wechat api error %d: %s", e.Code, e.Message)
}

// ErrMalformedResponse is returned when a response decodes but does not
// carry the expected payload shape.
var ErrMalformedResponse = fmt.Errorf("wechat: malformed response")

// FollowerPage is one page of an openid list (followers or blacklist).
type FollowerPage struct {
	// OpenIDs is the page payload; HasData reports whether the response
	// actually carried an openid array (an empty list with HasData false
	// is a malformed page, unless Total says the list is empty).
	OpenIDs []string
	HasData bool
	// Total is the list size the remote reports, nil when absent.
	Total *int
	// NextCursor is the pagination cursor; empty means last page.
	NextCursor string
}

// listResponse is the wire shape of /cgi-bin/user/get and
// /cgi-bin/tags/members/getblacklist.
type listResponse struct {
	Errcode int    `json:"errcode"`
	Errmsg  string `json:"errmsg"`
	Total   *int   `json:"total"`
	Count   int    `json:"count"`
	Data    *struct {
		OpenID []string `json:"openid"`
	} `json:"data"`
	NextOpenID string `json:"next_openid"`
}

func (r *listResponse) toPage() *FollowerPage {
	page := &FollowerPage{
		Total:      r.Total,
		NextCursor: r.NextOpenID,
	}
	if r.Data != nil && r.Data.OpenID != nil {
		page.OpenIDs = r.Data.OpenID
		page.HasData = true
	}
	return page
}

// TagInfo is one tag definition as reported by /cgi-bin/tags/get.
type TagInfo struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// UserInfo is one record of /cgi-bin/user/info/batchget. Decoding is
// lenient per field: a field that is absent or carries the wrong JSON
// type is left nil and never fails the record, so one bad field cannot
// block updates to the others. A record whose openid is missing or
// mistyped decodes with an empty OpenID and is skipped by callers.
type UserInfo struct {
	OpenID        string
	Subscribe     *int
	UnionID       *string
	Nickname      *string
	AvatarURL     *string
	Sex           *int
	Language      *string
	City          *string
	Province      *string
	Country       *string
	Remark        *string
	SubscribeTime *int64
}

// UnmarshalJSON implements the lenient per-field decoding.
func (u *UserInfo) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if s, ok := stringField(raw, "openid"); ok {
		u.OpenID = s
	}
	u.Subscribe = intField(raw, "subscribe")
	u.UnionID = stringPtrField(raw, "unionid")
	u.Nickname = stringPtrField(raw, "nickname")
	u.AvatarURL = stringPtrField(raw, "headimgurl")
	u.Sex = intField(raw, "sex")
	u.Language = stringPtrField(raw, "language")
	u.City = stringPtrField(raw, "city")
	u.Province = stringPtrField(raw, "province")
	u.Country = stringPtrField(raw, "country")
	u.Remark = stringPtrField(raw, "remark")
	u.SubscribeTime = int64Field(raw, "subscribe_time")

	return nil
}

func stringField(raw map[string]json.RawMessage, key string) (string, bool) {
	v, ok := raw[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

func stringPtrField(raw map[string]json.RawMessage, key string) *string {
	if s, ok := stringField(raw, key); ok {
		return &s
	}
	return nil
}

func intField(raw map[string]json.RawMessage, key string) *int {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	var n int
	if err := json.Unmarshal(v, &n); err != nil {
		return nil
	}
	return &n
}

func int64Field(raw map[string]json.RawMessage, key string) *int64 {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	var n int64
	if err := json.Unmarshal(v, &n); err != nil {
		return nil
	}
	return &n
}
