package domain

import "time"

// UserSettings holds per-user preferences. Only FilterAdultContent is read by search.
type UserSettings struct {
	Username           string    `json:"username" bson:"username"`
	FilterAdultContent bool      `json:"filter_adult_content" bson:"filterAdultContent"`
	Theme              string    `json:"theme" bson:"theme"`
	Language           string    `json:"language" bson:"language"`
	AutoPlay           bool      `json:"auto_play" bson:"autoPlay"`
	VideoQuality       string    `json:"video_quality" bson:"videoQuality"`
	UpdatedAt          time.Time `json:"updated_at" bson:"updatedAt"`
}

func DefaultUserSettings(username string) UserSettings {
	return UserSettings{
		Username:           username,
		FilterAdultContent: true,
		Theme:              "auto",
		Language:           "zh-CN",
		AutoPlay:           true,
		VideoQuality:       "auto",
	}
}

// SiteConfig is the admin-editable site configuration.
type SiteConfig struct {
	SiteName                string `json:"SiteName" bson:"siteName" toml:"site_name"`
	Announcement            string `json:"Announcement" bson:"announcement" toml:"announcement"`
	SearchDownstreamMaxPage int    `json:"SearchDownstreamMaxPage" bson:"searchDownstreamMaxPage" toml:"search_max_page"`
	SiteInterfaceCacheTime  int    `json:"SiteInterfaceCacheTime" bson:"siteInterfaceCacheTime" toml:"cache_time"`
	ImageProxy              string `json:"ImageProxy" bson:"imageProxy" toml:"image_proxy"`
	DoubanProxy             string `json:"DoubanProxy" bson:"doubanProxy" toml:"douban_proxy"`
}

const (
	DefaultSearchDownstreamMaxPage = 5
	DefaultSiteInterfaceCacheTime  = 7200
)

func DefaultSiteConfig() SiteConfig {
	return SiteConfig{
		SiteName:                "KatelyaTV",
		SearchDownstreamMaxPage: DefaultSearchDownstreamMaxPage,
		SiteInterfaceCacheTime:  DefaultSiteInterfaceCacheTime,
	}
}
