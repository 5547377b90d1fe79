package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func TestFlexBool_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"true", true, false},
		{"false", false, false},
		{"1", true, false},
		{"0", false, false},
		{`"1"`, true, false},
		{`"0"`, false, false},
		{"null", false, false},
		{`""`, false, false},
		{`"yes"`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var b FlexBool
			err := json.Unmarshal([]byte(tt.in), &b)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && bool(b) != tt.want {
				t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, b, tt.want)
			}
		})
	}
}

func TestCardJSON_Validate(t *testing.T) {
	tests := []struct {
		name   string
		card   CardJSON
		errMsg string
	}{
		{
			name: "valid card",
			card: CardJSON{Code: "01001", Name: "Roland Banks", TypeCode: "investigator"},
		},
		{
			name:   "missing code",
			card:   CardJSON{Name: "Roland Banks", TypeCode: "investigator"},
			errMsg: "code is required",
		},
		{
			name: "code only",
			card: CardJSON{Code: "01001", RealName: "X"},
		},
		{
			name: "invalid linked card",
			card: CardJSON{
				Code: "01001", Name: "Roland Banks", TypeCode: "investigator",
				LinkedCard: &CardJSON{Name: "Roland Banks (back)", TypeCode: "investigator"},
			},
			errMsg: "linked card of 01001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.card.Validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want containing %q", err.Error(), tt.errMsg)
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error should wrap ErrInvalid")
			}
		})
	}
}

func TestCardJSON_DecodesMixedFlags(t *testing.T) {
	data := `{"code":"01010","name":"Jenny's Twin .45s","type_code":"asset","xp":0,
		"is_unique":1,"hidden":false,"spoiler":"0","deck_limit":1,"quantity":1,
		"linked_card":{"code":"01010b","name":"Back","type_code":"asset"}}`

	var c CardJSON
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !c.IsUnique {
		t.Error("IsUnique should be true")
	}
	if c.Spoiler {
		t.Error("Spoiler should be false")
	}
	if c.Xp == nil || *c.Xp != 0 {
		t.Errorf("Xp = %v, want 0", c.Xp)
	}
	if c.LinkedCard == nil || c.LinkedCard.Code != "01010b" {
		t.Fatalf("LinkedCard not decoded: %+v", c.LinkedCard)
	}
}

func TestTabooJSON_ParseCards(t *testing.T) {
	t.Run("valid list", func(t *testing.T) {
		taboo := TabooJSON{ID: 5, DateStart: "2023-08-30", Cards: `[{"code":"60123","text":"new text"},{"code":"01030","xp":1}]`}
		cards, err := taboo.ParseCards()
		if err != nil {
			t.Fatalf("ParseCards() failed: %v", err)
		}
		if len(cards) != 2 {
			t.Fatalf("len(cards) = %d, want 2", len(cards))
		}
		if cards[0].Text == nil || *cards[0].Text != "new text" {
			t.Errorf("cards[0].Text = %v, want 'new text'", cards[0].Text)
		}
		if cards[1].Xp == nil || *cards[1].Xp != 1 {
			t.Errorf("cards[1].Xp = %v, want 1", cards[1].Xp)
		}
	})

	t.Run("empty list", func(t *testing.T) {
		taboo := TabooJSON{ID: 1, DateStart: "2019-01-01"}
		cards, err := taboo.ParseCards()
		if err != nil {
			t.Fatalf("ParseCards() failed: %v", err)
		}
		if cards == nil || len(cards) != 0 {
			t.Errorf("expected empty non-nil slice, got %v", cards)
		}
	})

	t.Run("malformed list", func(t *testing.T) {
		taboo := TabooJSON{ID: 7, DateStart: "2024-01-01", Cards: `[{"code":`}
		_, err := taboo.ParseCards()
		var nested *NestedJSONError
		if !errors.As(err, &nested) {
			t.Fatalf("ParseCards() error = %v, want *NestedJSONError", err)
		}
		if nested.TabooID != 7 {
			t.Errorf("TabooID = %d, want 7", nested.TabooID)
		}
	})
}

func TestTabooJSON_Validate(t *testing.T) {
	if err := (&TabooJSON{ID: 0, DateStart: "2020-01-01"}).Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("zero id: error = %v, want ErrInvalid", err)
	}
	if err := (&TabooJSON{ID: 3}).Validate(); err != nil {
		t.Errorf("missing date_start: unexpected error %v", err)
	}
	if err := (&TabooJSON{ID: 3, DateStart: "2020-01-01"}).Validate(); err != nil {
		t.Errorf("valid taboo: unexpected error %v", err)
	}
}

func TestBaseID(t *testing.T) {
	if got := BaseID("01001", nil); got != "01001" {
		t.Errorf("BaseID(nil) = %q", got)
	}
	if got := BaseID("01001", intPtr(0)); got != "01001" {
		t.Errorf("BaseID(0) = %q", got)
	}
	if got := BaseID("01001", intPtr(4)); got != "4-01001" {
		t.Errorf("BaseID(4) = %q, want 4-01001", got)
	}
}

func TestCard_IsPlayerCard(t *testing.T) {
	tests := []struct {
		name string
		card Card
		want bool
	}{
		{"player card", Card{DeckLimit: intPtr(2), Xp: intPtr(0)}, true},
		{"no deck limit", Card{Xp: intPtr(0)}, false},
		{"zero deck limit", Card{DeckLimit: intPtr(0), Xp: intPtr(0)}, false},
		{"spoiler", Card{DeckLimit: intPtr(1), Xp: intPtr(0), Spoiler: true}, false},
		{"undefined xp", Card{DeckLimit: intPtr(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.card.IsPlayerCard(); got != tt.want {
				t.Errorf("IsPlayerCard() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCard_ResolveLinkAndClone(t *testing.T) {
	back := &Card{ID: "01001b", Code: "01001b"}
	front := &Card{ID: "01001", Code: "01001", LinkedCard: back, Xp: intPtr(0)}

	back.ID = "01001b_1"
	front.ResolveLink()
	if front.LinkedCardID == nil || *front.LinkedCardID != "01001b_1" {
		t.Fatalf("LinkedCardID = %v, want 01001b_1", front.LinkedCardID)
	}

	clone := front.Clone()
	*clone.Xp = 3
	*clone.LinkedCardID = "other"
	if *front.Xp != 0 {
		t.Error("Clone shares Xp pointer with original")
	}
	if *front.LinkedCardID != "01001b_1" {
		t.Error("Clone shares LinkedCardID pointer with original")
	}
	if clone.LinkedCard != back {
		t.Error("Clone should keep the in-memory back face")
	}
}

func TestStringList_ValueScan(t *testing.T) {
	v, err := StringList{"core", "rcore"}.Value()
	if err != nil {
		t.Fatalf("Value() failed: %v", err)
	}
	if v != "core,rcore" {
		t.Errorf("Value() = %v, want core,rcore", v)
	}
	if v, _ := StringList(nil).Value(); v != nil {
		t.Errorf("empty Value() = %v, want nil", v)
	}

	var l StringList
	if err := l.Scan([]byte("dwl,tfa")); err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}
	if len(l) != 2 || l[0] != "dwl" || l[1] != "tfa" {
		t.Errorf("Scan() = %v", l)
	}
	if err := l.Scan(nil); err != nil || l != nil {
		t.Errorf("Scan(nil) = %v, %v", l, err)
	}
	if err := l.Scan(42); err == nil {
		t.Error("Scan(int) should fail")
	}
}

func TestCardCache_Conditional(t *testing.T) {
	var nilCache *CardCache
	if nilCache.Conditional(10) {
		t.Error("nil cache must not be conditional")
	}
	c := &CardCache{CardCount: 10, LastModified: "Tue, 06 Oct 2026 10:00:00 GMT"}
	if !c.Conditional(10) {
		t.Error("matching count should be conditional")
	}
	if c.Conditional(9) {
		t.Error("mismatched count must force a full fetch")
	}
	if (&CardCache{CardCount: 10}).Conditional(10) {
		t.Error("missing LastModified must not be conditional")
	}
	if (&CardCache{LastModified: "x"}).Conditional(0) {
		t.Error("zero count must not be conditional")
	}

	tc := &TabooCache{TabooCount: 3, LastModified: "x"}
	if !tc.Conditional(3) || tc.Conditional(4) {
		t.Error("TabooCache.Conditional mismatch")
	}
}

func TestFaqEntry_FreshAt(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	entry := EmptyFaqEntry("01001", "", now.Add(-time.Hour))

	if !entry.Empty {
		t.Error("EmptyFaqEntry should set Empty")
	}
	if !entry.FreshAt(now, 2*time.Hour) {
		t.Error("entry fetched an hour ago should be fresh under a 2h TTL")
	}
	if entry.FreshAt(now, 30*time.Minute) {
		t.Error("entry fetched an hour ago should be stale under a 30m TTL")
	}
	if entry.FreshAt(now, 0) {
		t.Error("zero TTL disables freshness")
	}
	if (&FaqEntry{}).FreshAt(now, time.Hour) {
		t.Error("missing FetchedAt is never fresh")
	}

	full := NewFaqEntry("01001", FaqJSON{Text: "errata"}, "lm", now)
	if full.Empty || full.Text != "errata" || full.LastModified != "lm" {
		t.Errorf("NewFaqEntry() = %+v", full)
	}
}

func TestRule_Validate(t *testing.T) {
	if err := (&Rule{ID: "en_0", Title: "Act"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (&Rule{ID: "en_0", Title: "  "}).Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("blank title: error = %v, want ErrInvalid", err)
	}
}
