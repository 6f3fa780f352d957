package vodapi

import (
	"errors"

	"github.com/Eternity714/KatelyaTV/internal/domain"
	"github.com/Eternity714/KatelyaTV/internal/providers/common"
)

var ErrMalformedItem = errors.New("upstream item is missing id or title")

// Normalize maps one upstream item to a SearchResult of source.
func Normalize(item VodItem, source domain.Source) (domain.SearchResult, error) {
	id := item.VodID.String()
	title := common.CollapseSpaces(string(item.VodName))
	if id == "" || title == "" {
		return domain.SearchResult{}, ErrMalformedItem
	}

	result := domain.SearchResult{
		ID:         id,
		Title:      title,
		Poster:     item.VodPic.String(),
		Episodes:   ExtractEpisodes(string(item.VodPlayURL)),
		Source:     source.Key,
		SourceName: source.Name,
		Class:      item.VodClass.String(),
		Year:       common.ExtractYear(string(item.VodYear)),
		Desc:       common.StripHTML(string(item.VodContent)),
		TypeName:   item.TypeName.String(),
		DoubanID:   item.VodDoubanID.String(),
	}
	return result, nil
}
