package world

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/emberfell/emberfell/internal/entity"
	"github.com/emberfell/emberfell/internal/store/memory"
)

func newTestWorld(t *testing.T) *World {
	t.Helper()
	reg := entity.New(slog.New(slog.DiscardHandler))
	w, err := Register(reg, Options{Rooms: memory.New(), Characters: memory.New()})
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func TestEnsureOrigin(t *testing.T) {
	w := newTestWorld(t)
	origin, err := w.EnsureOrigin()
	if err != nil {
		t.Fatal(err)
	}
	if got := origin.Key(); got != OriginKey {
		t.Fatalf("origin key = %v, want %s", got, OriginKey)
	}
	if ok, _ := w.Rooms.Store().Has(OriginKey); !ok {
		t.Fatal("origin not saved")
	}
	again, err := w.EnsureOrigin()
	if err != nil {
		t.Fatal(err)
	}
	if again != origin {
		t.Fatal("second EnsureOrigin created a new room")
	}
}

func TestRoomCoordKey(t *testing.T) {
	w := newTestWorld(t)
	room, err := w.Rooms.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := room.SetKey("5,5,5"); err != nil {
		t.Fatal(err)
	}
	if got := room.Key(); got != "5,5,5" {
		t.Fatalf("key = %v, want 5,5,5", got)
	}
	if got := room.Get("y"); got != 5 {
		t.Fatalf("y = %v, want 5", got)
	}
	if err := room.Set("z", -2); err != nil {
		t.Fatal(err)
	}
	if got := room.Key(); got != "5,5,-2" {
		t.Fatalf("key = %v, want 5,5,-2", got)
	}
}

func TestRoomCoordCollision(t *testing.T) {
	w := newTestWorld(t)
	if _, err := w.EnsureOrigin(); err != nil {
		t.Fatal(err)
	}
	room, err := w.Rooms.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := room.SetKey("1,0,0"); err != nil {
		t.Fatal(err)
	}
	// Moving onto the origin's coordinates must fail and leave the room put.
	if err := room.Set("x", 0); err == nil {
		t.Fatal("moving onto an occupied coordinate succeeded")
	}
	if got := room.Key(); got != "1,0,0" {
		t.Fatalf("key after rejected move = %v, want 1,0,0", got)
	}
}

func TestFreshRoomIsKeyless(t *testing.T) {
	w := newTestWorld(t)
	room, err := w.Rooms.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := room.Key(); !entity.IsUnset(got) {
		t.Fatalf("fresh room key = %v, want Unset until placed", got)
	}
}

func TestSaveNewRoomKeepsExistingRecords(t *testing.T) {
	w := newTestWorld(t)
	if _, err := w.EnsureOrigin(); err != nil {
		t.Fatal(err)
	}
	room, err := w.Rooms.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := room.SetKey("1,1,1"); err != nil {
		t.Fatal(err)
	}
	if _, pending := room.Tags().Get("_old_key"); pending {
		t.Fatal("placing a fresh room left a key to retire")
	}
	if err := room.Save(); err != nil {
		t.Fatal(err)
	}
	if ok, _ := w.Rooms.Store().Has(OriginKey); !ok {
		t.Fatal("saving a new room destroyed the origin record")
	}
	if ok, _ := w.Rooms.Store().Has("1,1,1"); !ok {
		t.Fatal("new room record missing")
	}
}

func TestRoomAtCoordsSharingZeroAxes(t *testing.T) {
	w := newTestWorld(t)
	if _, err := w.EnsureOrigin(); err != nil {
		t.Fatal(err)
	}
	// "0,0,1" shares two axes with the origin; only "0,0,0" itself is taken.
	room, err := w.Rooms.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := room.SetKey("0,0,1"); err != nil {
		t.Fatal(err)
	}
	if err := room.Save(); err != nil {
		t.Fatal(err)
	}
	if ok, _ := w.Rooms.Store().Has(OriginKey); !ok {
		t.Fatal("origin record lost")
	}
	if ok, _ := w.Rooms.Store().Has("0,0,1"); !ok {
		t.Fatal("new room record missing")
	}
}

func TestFindRoomByCoords(t *testing.T) {
	w := newTestWorld(t)
	room, err := w.Rooms.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := room.SetKey("2,0,0"); err != nil {
		t.Fatal(err)
	}
	got, err := w.Rooms.Find([]entity.Criterion{
		{Field: "coords", Value: "2,0,0"},
	}, entity.FindOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != room {
		t.Fatalf("Find by coords = %v, want the placed room", got)
	}
}

func TestRoomCoordKeyParsing(t *testing.T) {
	x, y, z, err := ParseCoordKey(" 1, -2 ,3 ")
	if err != nil {
		t.Fatal(err)
	}
	if x != 1 || y != -2 || z != 3 {
		t.Fatalf("got %d,%d,%d", x, y, z)
	}
	for _, bad := range []string{"", "1,2", "1,2,3,4", "a,b,c"} {
		if _, _, _, err := ParseCoordKey(bad); err == nil {
			t.Errorf("ParseCoordKey(%q) succeeded, want error", bad)
		}
	}
}

func TestRoomName(t *testing.T) {
	w := newTestWorld(t)
	room, err := w.Rooms.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := room.Set("name", "the dusty library"); err != nil {
		t.Fatal(err)
	}
	if got := room.Get("name"); got != "The Dusty Library" {
		t.Fatalf("name = %v, want title case", got)
	}
	for _, bad := range []any{42, "", "name-with-dash", "x9", strings.Repeat("a", 61)} {
		if err := room.Set("name", bad); err == nil {
			t.Errorf("Set(name, %v) succeeded, want error", bad)
		}
	}
}

func TestCharacterNameIsTheKey(t *testing.T) {
	w := newTestWorld(t)
	ch, err := w.Characters.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.Set("name", "Keldran"); err != nil {
		t.Fatal(err)
	}
	if got := ch.Key(); got != "keldran" {
		t.Fatalf("key = %v, want the lowercased name", got)
	}
	if err := ch.Save(); err != nil {
		t.Fatal(err)
	}
	loaded, err := w.Characters.Load("keldran", true)
	if err != nil {
		t.Fatal(err)
	}
	if loaded != ch {
		t.Fatal("load by name missed the live character")
	}
}

func TestCharacterValidation(t *testing.T) {
	w := newTestWorld(t)
	ch, err := w.Characters.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, bad := range []any{"x", "has space", "d1gits", strings.Repeat("a", 17), 7} {
		if err := ch.Set("name", bad); err == nil {
			t.Errorf("Set(name, %v) succeeded, want error", bad)
		}
	}
	if got := ch.Get("level"); got != 1 {
		t.Fatalf("level = %v, want 1", got)
	}
	if err := ch.Set("level", 0); err == nil {
		t.Fatal("level 0 accepted")
	}
	if err := ch.Set("level", 12); err != nil {
		t.Fatal(err)
	}
	if got := ch.Get("title"); got != "the newcomer" {
		t.Fatalf("title = %v", got)
	}
}

func TestWorldSurvivesRestart(t *testing.T) {
	rooms := memory.New()
	characters := memory.New()

	reg := entity.New(slog.New(slog.DiscardHandler))
	w, err := Register(reg, Options{Rooms: rooms, Characters: characters})
	if err != nil {
		t.Fatal(err)
	}
	origin, err := w.EnsureOrigin()
	if err != nil {
		t.Fatal(err)
	}
	uid := origin.UID()

	// A new registry over the same stores sees the same world.
	reg2 := entity.New(slog.New(slog.DiscardHandler))
	w2, err := Register(reg2, Options{Rooms: rooms, Characters: characters})
	if err != nil {
		t.Fatal(err)
	}
	origin2, err := w2.EnsureOrigin()
	if err != nil {
		t.Fatal(err)
	}
	if origin2.UID() != uid {
		t.Fatalf("origin uid changed across restart: %s != %s", origin2.UID(), uid)
	}
}
