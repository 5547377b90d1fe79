package sync

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/db"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/schema"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/catalog"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/normalize"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/rules"
)

const testLastModified = "Wed, 01 May 2024 10:00:00 GMT"

var testPacks = []schema.Pack{
	{Code: "core", Name: "Core Set", Position: 1, CyclePosition: 1},
}

const cardFeed = `[
	{"code": "01001", "name": "Shrivelling", "real_name": "X", "type_code": "asset", "pack_code": "core", "position": 1, "xp": 0},
	{"code": "01001-t", "name": "Shrivelling", "real_name": "X", "type_code": "asset", "pack_code": "core", "position": 2, "xp": 2, "deck_limit": 1},
	{"code": "01104", "name": "Lita Chantler", "type_code": "enemy", "pack_code": "core", "position": 3,
	 "linked_card": {"code": "01104b", "name": "Lita Chantler (back)", "type_code": "enemy", "pack_code": "core", "position": 3}},
	{"code": "01104b", "name": "Lita Chantler (back)", "type_code": "enemy", "pack_code": "core", "position": 3},
	{"code": "01160", "name": "Ghoul Minion", "type_code": "enemy", "pack_code": "core", "position": 160, "encounter_code": "ghouls", "encounter_name": "Ghouls", "quantity": 2},
	{"code": "01161", "name": "Ravenous Ghoul", "type_code": "enemy", "pack_code": "core", "position": 161, "encounter_code": "ghouls", "encounter_name": "Ghouls"},
	{"code": "60123", "name": "Bandolier", "type_code": "asset", "pack_code": "core", "position": 123, "xp": 0, "text": "old text"}
]`

// cards written by a full sync of cardFeed: the custom investigator, the
// seven feed records minus the duplicated back face, plus that back face
const cardFeedRows = 8

// feed is a canned catalog. It answers 304 when If-Modified-Since equals
// lastModified.
type feed struct {
	cards        string
	taboos       string
	faq          map[string]string
	lastModified string
	status       int

	hits atomic.Int32
	ims  atomic.Value
}

func (f *feed) lastIMS() string {
	v, _ := f.ims.Load().(string)
	return v
}

func newCatalog(t *testing.T, f *feed) *catalog.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		ims := r.Header.Get("If-Modified-Since")
		f.ims.Store(ims)
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		if ims != "" && ims == f.lastModified {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		var body string
		switch {
		case r.URL.Path == "/api/public/cards/":
			body = f.cards
		case r.URL.Path == "/api/public/taboos/":
			body = f.taboos
		case strings.HasPrefix(r.URL.Path, "/api/public/faq/"):
			code := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/public/faq/"), ".json")
			body = f.faq[code]
		default:
			http.NotFound(w, r)
			return
		}
		if body == "" {
			body = "[]"
		}
		if f.lastModified != "" {
			w.Header().Set("Last-Modified", f.lastModified)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return catalog.New(catalog.WithBaseURL(srv.URL), catalog.WithLogger(quietLogger()))
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// setupTestDB opens a database with the schema initialized
func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return database
}

func testOptions() *Options {
	opts := DefaultOptions()
	opts.Logger = quietLogger()
	return opts
}

func setupSyncer(t *testing.T, f *feed) (*syncer, *db.DB) {
	t.Helper()
	database := setupTestDB(t)
	s := New(database, newCatalog(t, f), testOptions()).(*syncer)
	return s, database
}

func mustSyncCards(t *testing.T, s Syncer, cache *schema.CardCache) *CardResult {
	t.Helper()
	res, err := s.SyncCards(context.Background(), testPacks, cache)
	if err != nil {
		t.Fatalf("SyncCards() failed: %v", err)
	}
	return res
}

func TestSyncCards_FullSync(t *testing.T) {
	f := &feed{cards: cardFeed, lastModified: testLastModified}
	s, database := setupSyncer(t, f)
	ctx := context.Background()

	res := mustSyncCards(t, s, nil)

	if res.NotModified {
		t.Fatal("NotModified = true on first sync")
	}
	if res.Inserted != cardFeedRows {
		t.Errorf("Inserted = %d, want %d", res.Inserted, cardFeedRows)
	}
	if res.BackFaces != 1 {
		t.Errorf("BackFaces = %d, want 1", res.BackFaces)
	}
	if res.Cache == nil || res.Cache.CardCount != cardFeedRows || res.Cache.LastModified != testLastModified {
		t.Errorf("Cache = %+v, want {%d %s}", res.Cache, cardFeedRows, testLastModified)
	}
	if got := f.lastIMS(); got != "" {
		t.Errorf("first sync sent If-Modified-Since %q", got)
	}

	count, err := database.CountBaseCardsContext(ctx)
	if err != nil {
		t.Fatalf("CountBaseCards() failed: %v", err)
	}
	if count != res.Cache.CardCount {
		t.Errorf("live count = %d, token count = %d", count, res.Cache.CardCount)
	}

	// Back face stored once and referenced by its front
	front, err := database.GetCardContext(ctx, "01104")
	if err != nil {
		t.Fatalf("GetCard(01104) failed: %v", err)
	}
	if front.LinkedCardID == nil || *front.LinkedCardID != "01104b" {
		t.Errorf("front LinkedCardID = %v, want 01104b", front.LinkedCardID)
	}
	if front.LinkedCard == nil || front.LinkedCard.Name != "Lita Chantler (back)" {
		t.Errorf("front LinkedCard = %+v, want the back face", front.LinkedCard)
	}

	// Upgrade flags
	base, err := database.GetCardContext(ctx, "01001")
	if err != nil {
		t.Fatalf("GetCard(01001) failed: %v", err)
	}
	upgraded, err := database.GetCardContext(ctx, "01001-t")
	if err != nil {
		t.Fatalf("GetCard(01001-t) failed: %v", err)
	}
	if !base.HasUpgrades {
		t.Error("xp 0 card: HasUpgrades = false, want true")
	}
	if upgraded.HasUpgrades {
		t.Error("xp 2 card: HasUpgrades = true, want false")
	}

	// Encounter sizing
	sets, err := database.ListEncounterSets(ctx)
	if err != nil {
		t.Fatalf("ListEncounterSets() failed: %v", err)
	}
	if len(sets) != 1 || sets[0].Code != "ghouls" || sets[0].Size != 3 {
		t.Errorf("encounter sets = %+v, want one ghouls set of size 3", sets)
	}
	if res.EncounterSets != 1 {
		t.Errorf("EncounterSets = %d, want 1", res.EncounterSets)
	}

	// Custom investigator and rules come with every full sync
	if _, err := database.GetCardContext(ctx, normalize.CustomInvestigatorCode); err != nil {
		t.Errorf("custom investigator missing: %v", err)
	}
	stored, err := database.ListRules(ctx, "en")
	if err != nil {
		t.Fatalf("ListRules() failed: %v", err)
	}
	raws, err := rules.Load("en")
	if err != nil {
		t.Fatalf("rules.Load() failed: %v", err)
	}
	if len(stored) != len(raws) {
		t.Errorf("stored %d top-level rules, want %d", len(stored), len(raws))
	}
}

func TestSyncCards_NotModified(t *testing.T) {
	f := &feed{cards: cardFeed, lastModified: testLastModified}
	s, database := setupSyncer(t, f)
	ctx := context.Background()

	first := mustSyncCards(t, s, nil)

	// A full replace would revert this edit
	if _, err := database.RawDB().Exec("UPDATE cards SET name = 'edited' WHERE id = '01001'"); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	second := mustSyncCards(t, s, first.Cache)
	if !second.NotModified {
		t.Fatal("NotModified = false, want true")
	}
	if second.Cache != first.Cache {
		t.Errorf("Cache = %+v, want the input token unchanged", second.Cache)
	}
	if got := f.lastIMS(); got != testLastModified {
		t.Errorf("If-Modified-Since = %q, want %q", got, testLastModified)
	}

	card, err := database.GetCardContext(ctx, "01001")
	if err != nil {
		t.Fatalf("GetCard() failed: %v", err)
	}
	if card.Name != "edited" {
		t.Errorf("Name = %q, a 304 must not write", card.Name)
	}
}

func TestSyncCards_CountMismatchForcesFullFetch(t *testing.T) {
	f := &feed{cards: cardFeed, lastModified: testLastModified}
	s, _ := setupSyncer(t, f)

	tests := []struct {
		name  string
		cache *schema.CardCache
	}{
		{"nil token", nil},
		{"count mismatch", &schema.CardCache{CardCount: 999, LastModified: testLastModified}},
		{"zero count", &schema.CardCache{CardCount: 0, LastModified: testLastModified}},
		{"no timestamp", &schema.CardCache{CardCount: cardFeedRows}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustSyncCards(t, s, tt.cache)
			if res.NotModified {
				t.Error("NotModified = true, want a full sync")
			}
			if got := f.lastIMS(); got != "" {
				t.Errorf("If-Modified-Since = %q, want none", got)
			}
		})
	}
}

func TestSyncCards_FetchErrorWritesNothing(t *testing.T) {
	good := &feed{cards: cardFeed, lastModified: testLastModified}
	s, database := setupSyncer(t, good)
	mustSyncCards(t, s, nil)

	broken := New(database, newCatalog(t, &feed{status: http.StatusInternalServerError}), testOptions())
	res, err := broken.SyncCards(context.Background(), testPacks, nil)
	if err == nil {
		t.Fatal("SyncCards() expected error for HTTP 500")
	}
	if res != nil {
		t.Errorf("result = %+v, want nil on fetch failure", res)
	}
	var se *catalog.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError {
		t.Errorf("error = %v, want StatusError 500", err)
	}

	count, err := database.CountBaseCardsContext(context.Background())
	if err != nil {
		t.Fatalf("CountBaseCards() failed: %v", err)
	}
	if count != cardFeedRows {
		t.Errorf("count after failed fetch = %d, want %d", count, cardFeedRows)
	}
}

func TestSyncCards_ReportsFailures(t *testing.T) {
	f := &feed{cards: `[
		{"code": "01001", "name": "Shrivelling", "type_code": "asset", "pack_code": "core"},
		{"name": "Nameless", "type_code": "asset", "pack_code": "core"}
	]`}
	database := setupTestDB(t)
	opts := testOptions()
	var reported []normalize.Failure
	opts.OnFailure = func(f normalize.Failure) { reported = append(reported, f) }
	s := New(database, newCatalog(t, f), opts)

	res := mustSyncCards(t, s, nil)
	if len(res.Failures) != 1 || res.Failures[0].Index != 1 {
		t.Fatalf("Failures = %v, want one for record 1", res.Failures)
	}
	if len(reported) != 1 {
		t.Errorf("OnFailure called %d times, want 1", len(reported))
	}
	var verr *schema.ValidationError
	if !errors.As(res.Failures[0], &verr) {
		t.Errorf("failure %v is not a ValidationError", res.Failures[0])
	}
	// custom investigator + 01001
	if res.Inserted != 2 {
		t.Errorf("Inserted = %d, want 2", res.Inserted)
	}
}

func TestSyncCards_MinimalRecordsFlagUpgrades(t *testing.T) {
	f := &feed{cards: `[
		{"code": "01001", "xp": 0, "real_name": "X"},
		{"code": "01001-t", "xp": 2, "real_name": "X", "deck_limit": 1}
	]`}
	s, database := setupSyncer(t, f)
	ctx := context.Background()

	res := mustSyncCards(t, s, nil)
	if len(res.Failures) != 0 {
		t.Fatalf("Failures = %v, want none", res.Failures)
	}
	// custom investigator + both records
	if res.Inserted != 3 {
		t.Errorf("Inserted = %d, want 3", res.Inserted)
	}

	base, err := database.GetCardContext(ctx, "01001")
	if err != nil {
		t.Fatalf("GetCard(01001) failed: %v", err)
	}
	upgraded, err := database.GetCardContext(ctx, "01001-t")
	if err != nil {
		t.Fatalf("GetCard(01001-t) failed: %v", err)
	}
	if !base.HasUpgrades {
		t.Error("xp 0 card: HasUpgrades = false, want true")
	}
	if upgraded.HasUpgrades {
		t.Error("xp 2 card: HasUpgrades = true, want false")
	}
	if base.Name != "X" {
		t.Errorf("Name = %q, want real_name X", base.Name)
	}
}

func TestSyncCards_IllTypedRecordSkipped(t *testing.T) {
	f := &feed{cards: `[
		{"code": "01001", "name": "Shrivelling", "type_code": "asset", "pack_code": "core", "xp": 0},
		{"code": "01002", "name": "Broken", "type_code": "asset", "pack_code": "core", "xp": "two"},
		{"code": "01003", "name": "Knife", "type_code": "asset", "pack_code": "core", "xp": 0}
	]`}
	s, database := setupSyncer(t, f)
	ctx := context.Background()

	res := mustSyncCards(t, s, nil)
	if len(res.Failures) != 1 || res.Failures[0].Index != 1 || res.Failures[0].Code != "01002" {
		t.Fatalf("Failures = %v, want one for 01002", res.Failures)
	}
	// custom investigator + 01001 + 01003
	if res.Inserted != 3 {
		t.Errorf("Inserted = %d, want 3", res.Inserted)
	}
	for _, code := range []string{"01001", "01003"} {
		if _, err := database.GetCardContext(ctx, code); err != nil {
			t.Errorf("GetCard(%s) failed: %v", code, err)
		}
	}
	if _, err := database.GetCardContext(ctx, "01002"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("GetCard(01002) error = %v, want ErrNotFound", err)
	}
}

func TestSyncCards_ChunkSizes(t *testing.T) {
	f := &feed{cards: cardFeed}
	for _, size := range []int{1, 3, 50} {
		database := setupTestDB(t)
		opts := testOptions()
		opts.MaxInsert = size
		s := New(database, newCatalog(t, f), opts)
		res := mustSyncCards(t, s, nil)
		if res.Cache.CardCount != cardFeedRows {
			t.Errorf("chunk %d: CardCount = %d, want %d", size, res.Cache.CardCount, cardFeedRows)
		}
	}
}

func TestOptions_ChunkSize(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want int
	}{
		{"default", Options{}, DefaultMaxInsert},
		{"override", Options{MaxInsert: 20}, 20},
		{"ios ignores override", Options{Platform: "ios", MaxInsert: 20}, 50},
		{"ios case insensitive", Options{Platform: "iOS"}, 50},
		{"android", Options{Platform: "android"}, DefaultMaxInsert},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.chunkSize(); got != tt.want {
				t.Errorf("chunkSize() = %d, want %d", got, tt.want)
			}
		})
	}
	if got := (&Options{}).tabooChunkSize(); got != DefaultTabooMaxInsert {
		t.Errorf("tabooChunkSize() = %d, want %d", got, DefaultTabooMaxInsert)
	}
}

const tabooFeed = `[
	{"id": 5, "code": "taboo-5", "name": "List 5", "date_start": "2024-01-01", "active": 1,
	 "cards": "[{\"code\":\"60123\",\"text\":\"new text\"},{\"code\":\"99999\",\"xp\":1}]"},
	{"id": 4, "code": "taboo-4", "name": "List 4", "date_start": "2023-01-01", "active": 0,
	 "cards": "[{\"code\":\"01001\",\"xp\":1}]"}
]`

func TestSyncTaboos_AppliesOverlays(t *testing.T) {
	f := &feed{cards: cardFeed, taboos: tabooFeed, lastModified: testLastModified}
	s, database := setupSyncer(t, f)
	ctx := context.Background()
	mustSyncCards(t, s, nil)

	res, err := s.SyncTaboos(ctx, nil)
	if err != nil {
		t.Fatalf("SyncTaboos() failed: %v", err)
	}
	if res.Sets != 2 {
		t.Errorf("Sets = %d, want 2", res.Sets)
	}
	// two resolved codes (60123, 01001) in each of two sets
	if res.Inserted != 4 {
		t.Errorf("Inserted = %d, want 4", res.Inserted)
	}
	if len(res.Unresolved) != 1 || res.Unresolved[0] != "99999" {
		t.Errorf("Unresolved = %v, want [99999]", res.Unresolved)
	}
	if res.Cache == nil || res.Cache.TabooCount != 4 || res.Cache.LastModified != testLastModified {
		t.Errorf("Cache = %+v, want {4 %s}", res.Cache, testLastModified)
	}

	five := 5
	variant, err := database.GetCardByCode(ctx, "60123", &five)
	if err != nil {
		t.Fatalf("GetCardByCode(60123, 5) failed: %v", err)
	}
	if variant.ID != "5-60123" || variant.TabooSetID == nil || *variant.TabooSetID != 5 {
		t.Errorf("variant id = %s taboo = %v, want 5-60123 / 5", variant.ID, variant.TabooSetID)
	}
	if variant.Text != "new text" || variant.TabooTextChange != "new text" {
		t.Errorf("variant text = %q / %q, want new text", variant.Text, variant.TabooTextChange)
	}

	baseRow, err := database.GetCardContext(ctx, "60123")
	if err != nil {
		t.Fatalf("GetCard(60123) failed: %v", err)
	}
	if baseRow.TabooSetID == nil || *baseRow.TabooSetID != 0 {
		t.Errorf("base taboo_set_id = %v, want 0", baseRow.TabooSetID)
	}
	if baseRow.Text != "old text" {
		t.Errorf("base text = %q, want old text", baseRow.Text)
	}

	// Placeholder of 01001 in set 5 is unmodified; set 4 adds one xp
	four := 4
	plain, err := database.GetCardByCode(ctx, "01001", &five)
	if err != nil {
		t.Fatalf("GetCardByCode(01001, 5) failed: %v", err)
	}
	if plain.XpOrZero() != 0 || plain.ExtraXp != nil {
		t.Errorf("placeholder xp = %d extra = %v, want 0 / nil", plain.XpOrZero(), plain.ExtraXp)
	}
	taxed, err := database.GetCardByCode(ctx, "01001", &four)
	if err != nil {
		t.Fatalf("GetCardByCode(01001, 4) failed: %v", err)
	}
	if taxed.XpOrZero() != 1 || taxed.ExtraXp == nil || *taxed.ExtraXp != 1 {
		t.Errorf("taxed xp = %d extra = %v, want 1 / 1", taxed.XpOrZero(), taxed.ExtraXp)
	}

	sets, err := database.ListTabooSets(ctx)
	if err != nil {
		t.Fatalf("ListTabooSets() failed: %v", err)
	}
	if len(sets) != 2 || sets[0].ID != 5 || sets[0].CardCount != 2 || !sets[0].Active {
		t.Errorf("taboo sets = %+v, want list 5 first with 2 cards", sets)
	}

	// Base card count is unaffected by variants
	count, err := database.CountBaseCardsContext(ctx)
	if err != nil {
		t.Fatalf("CountBaseCards() failed: %v", err)
	}
	if count != cardFeedRows {
		t.Errorf("base count = %d, want %d", count, cardFeedRows)
	}
}

func TestSyncTaboos_ResyncReplacesVariants(t *testing.T) {
	f := &feed{cards: cardFeed, taboos: tabooFeed}
	s, database := setupSyncer(t, f)
	ctx := context.Background()
	mustSyncCards(t, s, nil)

	for i := 0; i < 2; i++ {
		if _, err := s.SyncTaboos(ctx, nil); err != nil {
			t.Fatalf("SyncTaboos() run %d failed: %v", i, err)
		}
	}
	count, err := database.CountTabooCards(ctx)
	if err != nil {
		t.Fatalf("CountTabooCards() failed: %v", err)
	}
	if count != 4 {
		t.Errorf("taboo rows after resync = %d, want 4", count)
	}
}

func TestSyncTaboos_MalformedCardList(t *testing.T) {
	f := &feed{cards: cardFeed, taboos: `[
		{"id": 5, "code": "taboo-5", "name": "List 5", "date_start": "2024-01-01", "cards": "not json"},
		{"id": 4, "code": "taboo-4", "name": "List 4", "date_start": "2023-01-01", "cards": "[{\"code\":\"60123\",\"xp\":1}]"}
	]`}
	s, _ := setupSyncer(t, f)
	mustSyncCards(t, s, nil)

	res, err := s.SyncTaboos(context.Background(), nil)
	if err != nil {
		t.Fatalf("SyncTaboos() failed: %v", err)
	}
	if len(res.Failures) != 1 {
		t.Fatalf("Failures = %v, want 1", res.Failures)
	}
	var nested *schema.NestedJSONError
	if !errors.As(res.Failures[0], &nested) || nested.TabooID != 5 {
		t.Errorf("failure = %v, want NestedJSONError for list 5", res.Failures[0])
	}
	if res.Sets != 1 || res.Inserted != 1 {
		t.Errorf("Sets = %d Inserted = %d, want 1 / 1", res.Sets, res.Inserted)
	}
}

func TestSyncTaboos_MissingDateStart(t *testing.T) {
	f := &feed{cards: cardFeed, taboos: `[
		{"id": 4, "code": "taboo-4", "name": "List 4", "cards": "[{\"code\":\"60123\",\"xp\":1}]"}
	]`}
	s, database := setupSyncer(t, f)
	mustSyncCards(t, s, nil)

	res, err := s.SyncTaboos(context.Background(), nil)
	if err != nil {
		t.Fatalf("SyncTaboos() failed: %v", err)
	}
	if len(res.Failures) != 0 {
		t.Fatalf("Failures = %v, want none", res.Failures)
	}
	if res.Sets != 1 || res.Inserted != 1 {
		t.Errorf("Sets = %d Inserted = %d, want 1 / 1", res.Sets, res.Inserted)
	}
	sets, err := database.ListTabooSets(context.Background())
	if err != nil {
		t.Fatalf("ListTabooSets() failed: %v", err)
	}
	if len(sets) != 1 || sets[0].DateStart != "" {
		t.Errorf("taboo sets = %+v, want one with empty date_start", sets)
	}
}

func TestSyncTaboos_NotModified(t *testing.T) {
	f := &feed{cards: cardFeed, taboos: tabooFeed, lastModified: testLastModified}
	s, database := setupSyncer(t, f)
	ctx := context.Background()
	mustSyncCards(t, s, nil)

	first, err := s.SyncTaboos(ctx, nil)
	if err != nil {
		t.Fatalf("SyncTaboos() failed: %v", err)
	}
	if _, err := database.RawDB().Exec("UPDATE cards SET text = 'edited' WHERE id = '5-60123'"); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	second, err := s.SyncTaboos(ctx, first.Cache)
	if err != nil {
		t.Fatalf("SyncTaboos() failed: %v", err)
	}
	if !second.NotModified || second.Cache != first.Cache {
		t.Errorf("second = %+v, want not modified with the input token", second)
	}
	card, err := database.GetCardContext(ctx, "5-60123")
	if err != nil {
		t.Fatalf("GetCard() failed: %v", err)
	}
	if card.Text != "edited" {
		t.Errorf("Text = %q, a 304 must not write", card.Text)
	}
}

func TestRefreshRules(t *testing.T) {
	s, database := setupSyncer(t, &feed{})
	ctx := context.Background()

	// A second plain SyncRules would collide on ids; RefreshRules clears first
	for i := 0; i < 2; i++ {
		if err := s.RefreshRules(ctx); err != nil {
			t.Fatalf("RefreshRules() run %d failed: %v", i, err)
		}
	}
	stored, err := database.ListRules(ctx, "en")
	if err != nil {
		t.Fatalf("ListRules() failed: %v", err)
	}
	if len(stored) == 0 {
		t.Fatal("no rules stored")
	}
	for _, r := range stored {
		if r.ParentID != nil {
			t.Errorf("top-level rule %s has parent %s", r.ID, *r.ParentID)
		}
	}
}

func TestSyncRules_OverrideDir(t *testing.T) {
	dir := t.TempDir()
	data := `[{"title": "Only", "rules": [{"title": "Child", "rules": [{"title": "Grandchild"}]}]}]`
	if err := os.WriteFile(filepath.Join(dir, "rules.json"), []byte(data), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	database := setupTestDB(t)
	opts := testOptions()
	opts.RulesDir = dir
	s := New(database, newCatalog(t, &feed{}), opts)

	if err := s.SyncRules(context.Background()); err != nil {
		t.Fatalf("SyncRules() failed: %v", err)
	}
	stored, err := database.ListRules(context.Background(), "en")
	if err != nil {
		t.Fatalf("ListRules() failed: %v", err)
	}
	if len(stored) != 1 || stored[0].Title != "Only" {
		t.Fatalf("rules = %+v, want the override bundle", stored)
	}
	if len(stored[0].Rules) != 1 || len(stored[0].Rules[0].Rules) != 1 {
		t.Errorf("rule tree not rebuilt: %+v", stored[0])
	}
}

func TestFaqEntry(t *testing.T) {
	f := &feed{
		faq:          map[string]string{"01030": `[{"code": "01030", "text": "Errata text"}]`},
		lastModified: testLastModified,
	}
	s, _ := setupSyncer(t, f)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	entry, err := s.FaqEntry(ctx, "01030")
	if err != nil {
		t.Fatalf("FaqEntry() failed: %v", err)
	}
	if entry.Empty || entry.Text != "Errata text" || entry.LastModified != testLastModified {
		t.Errorf("entry = %+v, want the errata", entry)
	}
	if f.hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1", f.hits.Load())
	}

	// Within the TTL the stored entry is served without a request
	now = now.Add(time.Hour)
	if _, err := s.FaqEntry(ctx, "01030"); err != nil {
		t.Fatalf("FaqEntry() failed: %v", err)
	}
	if f.hits.Load() != 1 {
		t.Errorf("hits = %d, want 1 within TTL", f.hits.Load())
	}

	// Past the TTL a conditional request is sent and a 304 keeps the entry
	now = now.Add(DefaultFaqTTL)
	entry, err = s.FaqEntry(ctx, "01030")
	if err != nil {
		t.Fatalf("FaqEntry() failed: %v", err)
	}
	if f.hits.Load() != 2 {
		t.Errorf("hits = %d, want 2 after TTL", f.hits.Load())
	}
	if got := f.lastIMS(); got != testLastModified {
		t.Errorf("If-Modified-Since = %q, want %q", got, testLastModified)
	}
	if entry.Text != "Errata text" || !entry.Fetched().Equal(now) {
		t.Errorf("entry = %+v, want the stored errata refreshed at %v", entry, now)
	}
}

func TestFaqEntry_EmptySentinel(t *testing.T) {
	f := &feed{faq: map[string]string{}}
	s, database := setupSyncer(t, f)
	ctx := context.Background()

	entry, err := s.FaqEntry(ctx, "01001")
	if err != nil {
		t.Fatalf("FaqEntry() failed: %v", err)
	}
	if !entry.Empty || entry.Text != "" {
		t.Errorf("entry = %+v, want empty sentinel", entry)
	}

	stored, err := database.GetFaqEntry(ctx, "01001")
	if err != nil {
		t.Fatalf("GetFaqEntry() failed: %v", err)
	}
	if !stored.Empty {
		t.Error("stored entry is not the empty sentinel")
	}

	if _, err := s.FaqEntry(ctx, "01001"); err != nil {
		t.Fatalf("FaqEntry() failed: %v", err)
	}
	if f.hits.Load() != 1 {
		t.Errorf("hits = %d, empty sentinel should be served from cache", f.hits.Load())
	}
}
