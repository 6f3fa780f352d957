package vodapi

import (
	"errors"
	"regexp"
	"testing"

	"github.com/Eternity714/KatelyaTV/internal/domain"
	"github.com/Eternity714/KatelyaTV/internal/jsonutil"
)

var testSource = domain.Source{Key: "alpha", Name: "Alpha", API: "https://alpha.example/api.php/provide/vod"}

func TestNormalize(t *testing.T) {
	item := VodItem{
		VodID:       "42",
		VodName:     "  流浪   地球 \n 2 ",
		VodPic:      " https://img.example/42.jpg ",
		VodClass:    "科幻",
		VodYear:     "2023-01-22",
		VodContent:  "<p>太阳即将<b>毁灭</b></p>",
		VodPlayURL:  "正片$https://a.example/42.m3u8",
		VodDoubanID: "35267208",
		TypeName:    "科幻片",
	}

	result, err := Normalize(item, testSource)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ID != "42" || result.Title != "流浪 地球 2" {
		t.Fatalf("unexpected id/title: %q %q", result.ID, result.Title)
	}
	if result.Year != "2023" {
		t.Fatalf("unexpected year: %q", result.Year)
	}
	if result.Desc != "太阳即将 毁灭" {
		t.Fatalf("unexpected desc: %q", result.Desc)
	}
	if result.Poster != "https://img.example/42.jpg" {
		t.Fatalf("unexpected poster: %q", result.Poster)
	}
	if result.Source != "alpha" || result.SourceName != "Alpha" {
		t.Fatalf("unexpected source: %q %q", result.Source, result.SourceName)
	}
	if result.DoubanID != "35267208" {
		t.Fatalf("unexpected douban id: %q", result.DoubanID)
	}
	if len(result.Episodes) != 1 || result.Episodes[0] != "https://a.example/42.m3u8" {
		t.Fatalf("unexpected episodes: %v", result.Episodes)
	}
}

func TestNormalizeCarriesDoubanIDVerbatim(t *testing.T) {
	cases := []struct {
		raw  flexString
		want string
	}{
		{raw: "", want: ""},
		{raw: "0", want: "0"},
		{raw: "tt1375666", want: "tt1375666"},
		{raw: " 3541415 ", want: "3541415"},
	}
	for _, tc := range cases {
		result, err := Normalize(VodItem{VodID: "1", VodName: "Inception", VodDoubanID: tc.raw}, testSource)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.DoubanID != tc.want {
			t.Errorf("douban id %q: got %q, want %q", tc.raw, result.DoubanID, tc.want)
		}
	}
}

func TestNormalizeRejectsMissingFields(t *testing.T) {
	for _, item := range []VodItem{
		{VodName: "No id"},
		{VodID: "1", VodName: "   "},
	} {
		if _, err := Normalize(item, testSource); !errors.Is(err, ErrMalformedItem) {
			t.Fatalf("expected ErrMalformedItem for %+v, got %v", item, err)
		}
	}
}

func TestNormalizeInvariants(t *testing.T) {
	yearPattern := regexp.MustCompile(`^(unknown|\d{4})$`)
	items := []VodItem{
		{VodID: "1", VodName: "a", VodYear: ""},
		{VodID: "2", VodName: "b", VodYear: "约1998年"},
		{VodID: "3", VodName: "c", VodYear: "未知", VodPlayURL: "1$https://x/1.m3u8#1$https://x/1.m3u8#2$https://x/2.m3u8"},
	}
	for _, item := range items {
		result, err := Normalize(item, testSource)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !yearPattern.MatchString(result.Year) {
			t.Fatalf("year %q breaks the year format", result.Year)
		}
		seen := map[string]bool{}
		for _, episode := range result.Episodes {
			if seen[episode] {
				t.Fatalf("duplicate episode %q", episode)
			}
			seen[episode] = true
		}
	}
}

func TestEnvelopeToleratesMixedTypes(t *testing.T) {
	payload := `{"code":1,"pagecount":"3","list":[
		{"vod_id":101,"vod_name":"Inception","vod_year":2010,"vod_douban_id":3541415,"vod_pic":null},
		{"vod_id":"102","vod_name":"Tenet","vod_year":"2020"}
	]}`

	var envelope listEnvelope
	if err := jsonutil.Unmarshal([]byte(payload), &envelope); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if envelope.PageCount != 3 {
		t.Fatalf("unexpected pagecount: %d", envelope.PageCount)
	}
	if len(envelope.List) != 2 {
		t.Fatalf("unexpected list length: %d", len(envelope.List))
	}
	first := envelope.List[0]
	if first.VodID.String() != "101" || first.VodYear.String() != "2010" || first.VodDoubanID.String() != "3541415" {
		t.Fatalf("unexpected numeric decode: %+v", first)
	}
	if first.VodPic.String() != "" {
		t.Fatalf("null should decode to empty, got %q", first.VodPic)
	}
}
