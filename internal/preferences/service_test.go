package preferences

import (
	"context"
	"errors"
	"testing"

	"github.com/Eternity714/KatelyaTV/internal/domain"
)

type fakeStore struct {
	settings map[string]domain.UserSettings
	err      error
}

func (f *fakeStore) GetUserSettings(_ context.Context, username string) (domain.UserSettings, bool, error) {
	if f.err != nil {
		return domain.UserSettings{}, false, f.err
	}
	settings, ok := f.settings[username]
	return settings, ok, nil
}

func (f *fakeStore) SaveUserSettings(_ context.Context, settings domain.UserSettings) error {
	if f.settings == nil {
		f.settings = map[string]domain.UserSettings{}
	}
	f.settings[settings.Username] = settings
	return nil
}

func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }

func TestFilterAdult(t *testing.T) {
	open := domain.DefaultUserSettings("open")
	open.FilterAdultContent = false
	store := &fakeStore{settings: map[string]domain.UserSettings{
		"open":   open,
		"strict": domain.DefaultUserSettings("strict"),
	}}
	svc := NewService(store, nil)
	ctx := context.Background()

	cases := []struct {
		caller string
		want   bool
	}{
		{caller: "", want: true},
		{caller: "ghost", want: true},
		{caller: "strict", want: true},
		{caller: "open", want: false},
	}
	for _, tc := range cases {
		if got := svc.FilterAdult(ctx, tc.caller); got != tc.want {
			t.Errorf("FilterAdult(%q) = %v, want %v", tc.caller, got, tc.want)
		}
	}

	store.err = errors.New("db down")
	if !svc.FilterAdult(ctx, "open") {
		t.Fatal("lookup failure should filter adult content")
	}
}

func TestGetReturnsDefaults(t *testing.T) {
	svc := NewService(&fakeStore{}, nil)
	settings, err := svc.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings != domain.DefaultUserSettings("alice") {
		t.Fatalf("unexpected defaults: %+v", settings)
	}
	if _, err := svc.Get(context.Background(), " "); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("expected ErrMissingUser, got %v", err)
	}
}

func TestUpdateMergesPatch(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, nil)
	ctx := context.Background()

	updated, err := svc.Update(ctx, "alice", Patch{FilterAdultContent: boolPtr(false), Theme: strPtr(" Dark ")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.FilterAdultContent || updated.Theme != "dark" || updated.Language != "zh-CN" || updated.UpdatedAt.IsZero() {
		t.Fatalf("unexpected merge: %+v", updated)
	}
	if stored := store.settings["alice"]; stored.Theme != "dark" {
		t.Fatalf("expected settings to be stored: %+v", stored)
	}

	if _, err := svc.Update(ctx, "alice", Patch{Theme: strPtr("neon")}); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
	if _, err := svc.Update(ctx, "alice", Patch{VideoQuality: strPtr("8k")}); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
}
