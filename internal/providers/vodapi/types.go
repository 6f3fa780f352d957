package vodapi

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/Eternity714/KatelyaTV/internal/jsonutil"
)

// listEnvelope is the `?ac=videolist` answer shared by Apple CMS style APIs.
type listEnvelope struct {
	Code      flexInt    `json:"code"`
	Msg       flexString `json:"msg"`
	Page      flexInt    `json:"page"`
	PageCount flexInt    `json:"pagecount"`
	Total     flexInt    `json:"total"`
	List      []VodItem  `json:"list"`
}

// VodItem is one entry of an upstream list. Sources disagree on whether ids,
// years and douban ids are strings or numbers, so those fields are tolerant.
type VodItem struct {
	VodID       flexString `json:"vod_id"`
	VodName     flexString `json:"vod_name"`
	VodSub      flexString `json:"vod_sub"`
	VodPic      flexString `json:"vod_pic"`
	VodClass    flexString `json:"vod_class"`
	VodRemarks  flexString `json:"vod_remarks"`
	VodYear     flexString `json:"vod_year"`
	VodArea     flexString `json:"vod_area"`
	VodContent  flexString `json:"vod_content"`
	VodPlayFrom flexString `json:"vod_play_from"`
	VodPlayURL  flexString `json:"vod_play_url"`
	VodDoubanID flexString `json:"vod_douban_id"`
	TypeName    flexString `json:"type_name"`
}

// flexString accepts a JSON string, number, bool or null.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*s = ""
	case data[0] == '"':
		var value string
		if err := jsonutil.Unmarshal(data, &value); err != nil {
			return err
		}
		*s = flexString(value)
	default:
		*s = flexString(data)
	}
	return nil
}

func (s flexString) String() string {
	return strings.TrimSpace(string(s))
}

// flexInt accepts a JSON number or a numeric string. Anything else decodes to 0.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*n = 0
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = flexInt(value)
	return nil
}
