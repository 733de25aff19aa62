package domain

import (
	"time"
)

// AccountModel is the GORM model for WeChat official accounts the service
// mirrors fans for.
type AccountModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	Name      string    `gorm:"type:varchar(100);not null"`
	AppID     string    `gorm:"column:app_id;type:varchar(64);uniqueIndex;not null"`
	AppSecret string    `gorm:"column:app_secret;type:varchar(64);not null"`
	Valid     bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (AccountModel) TableName() string { return "wechat_accounts" }

// FanModel is the GORM model for the local fan mirror. One row per
// (account, openid) pair.
type FanModel struct {
	ID            uint       `gorm:"primaryKey;autoIncrement"`
	AccountID     string     `gorm:"column:account_id;type:varchar(36);not null;uniqueIndex:uidx_fan_account_openid;index:idx_fan_account_status,priority:1"`
	OpenID        string     `gorm:"column:openid;type:varchar(128);not null;uniqueIndex:uidx_fan_account_openid"`
	UnionID       string     `gorm:"column:unionid;type:varchar(128)"`
	Nickname      string     `gorm:"type:varchar(64)"`
	AvatarURL     string     `gorm:"column:avatar_url;type:varchar(255)"`
	Sex           Gender     `gorm:"type:smallint;not null;default:0"`
	Language      string     `gorm:"type:varchar(32)"`
	City          string     `gorm:"type:varchar(64)"`
	Province      string     `gorm:"type:varchar(64)"`
	Country       string     `gorm:"type:varchar(64)"`
	SubscribeTime *time.Time `gorm:"column:subscribe_time"`
	Remark        string     `gorm:"type:varchar(64)"`
	Status        FanStatus  `gorm:"type:varchar(16);not null;default:'subscribed';index:idx_fan_account_status,priority:2"`
	CreatedAt     time.Time  `gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime"`
}

func (FanModel) TableName() string { return "wechat_official_account_fans" }

// TagModel is the GORM model for account tags. tag_id is the external
// identifier issued by (or mirrored from) the WeChat API; Count is a
// display cache, not authoritative.
type TagModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	AccountID string    `gorm:"column:account_id;type:varchar(36);not null;uniqueIndex:uidx_tag_account_tagid;uniqueIndex:uidx_tag_account_name"`
	TagID     int       `gorm:"column:tag_id;not null;uniqueIndex:uidx_tag_account_tagid"`
	Name      string    `gorm:"type:varchar(30);not null;uniqueIndex:uidx_tag_account_name"`
	Count     int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (TagModel) TableName() string { return "wechat_official_account_tags" }

// FanTagModel links one fan to one tag. Unique per pair; rows are removed
// when either side is deleted.
type FanTagModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	FanID     uint      `gorm:"column:fan_id;not null;uniqueIndex:uidx_fantag_pair"`
	TagID     uint      `gorm:"column:tag_id;not null;uniqueIndex:uidx_fantag_pair"`
	Fan       FanModel  `gorm:"foreignKey:FanID;constraint:OnDelete:CASCADE"`
	Tag       TagModel  `gorm:"foreignKey:TagID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (FanTagModel) TableName() string { return "wechat_official_account_fan_tags" }

// Account is the domain representation of a mirrored official account.
type Account struct {
	ID        string
	Name      string
	AppID     string
	AppSecret string
	Valid     bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToDomain converts AccountModel to a domain Account.
func (m *AccountModel) ToDomain() *Account {
	return &Account{
		ID:        m.ID,
		Name:      m.Name,
		AppID:     m.AppID,
		AppSecret: m.AppSecret,
		Valid:     m.Valid,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// Fan is the domain representation of one follower/blacklisted user of
// one account.
type Fan struct {
	ID            uint
	AccountID     string
	OpenID        string
	UnionID       string
	Nickname      string
	AvatarURL     string
	Sex           Gender
	Language      string
	City          string
	Province      string
	Country       string
	SubscribeTime *time.Time
	Remark        string
	Status        FanStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ToDomain converts FanModel to a domain Fan.
func (m *FanModel) ToDomain() *Fan {
	return &Fan{
		ID:            m.ID,
		AccountID:     m.AccountID,
		OpenID:        m.OpenID,
		UnionID:       m.UnionID,
		Nickname:      m.Nickname,
		AvatarURL:     m.AvatarURL,
		Sex:           m.Sex,
		Language:      m.Language,
		City:          m.City,
		Province:      m.Province,
		Country:       m.Country,
		SubscribeTime: m.SubscribeTime,
		Remark:        m.Remark,
		Status:        m.Status,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// FanToModel converts a domain Fan to its GORM model.
func FanToModel(f *Fan) *FanModel {
	return &FanModel{
		ID:            f.ID,
		AccountID:     f.AccountID,
		OpenID:        f.OpenID,
		UnionID:       f.UnionID,
		Nickname:      f.Nickname,
		AvatarURL:     f.AvatarURL,
		Sex:           f.Sex,
		Language:      f.Language,
		City:          f.City,
		Province:      f.Province,
		Country:       f.Country,
		SubscribeTime: f.SubscribeTime,
		Remark:        f.Remark,
		Status:        f.Status,
	}
}

// Tag is the domain representation of one account tag.
type Tag struct {
	ID        uint
	AccountID string
	TagID     int
	Name      string
	Count     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToDomain converts TagModel to a domain Tag.
func (m *TagModel) ToDomain() *Tag {
	return &Tag{
		ID:        m.ID,
		AccountID: m.AccountID,
		TagID:     m.TagID,
		Name:      m.Name,
		Count:     m.Count,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
