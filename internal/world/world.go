// Package world defines the built-in game object types on top of the entity
// engine: rooms addressed by coordinates and characters addressed by name.
// It doubles as the reference for how game subsystems declare their own
// schemas.
package world

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/emberfell/emberfell/internal/entity"
	"github.com/emberfell/emberfell/internal/store"
)

// OriginKey addresses the room every world starts from.
const OriginKey = "0,0,0"

var (
	roomNameRe = regexp.MustCompile(`^[a-zA-Z ]+$`)
	charNameRe = regexp.MustCompile(`^[a-zA-Z]+$`)

	titleCaser = cases.Title(language.English)
)

// World bundles the built-in entity types.
type World struct {
	Rooms      *entity.Type
	Characters *entity.Type
}

// Options configures Register. Either store may be nil for an ephemeral
// world; a zero CacheSize takes the engine default.
type Options struct {
	Rooms      store.Store
	Characters store.Store
	CacheSize  int
}

// Register declares the room and character types on reg.
func Register(reg *entity.Registry, opts Options) (*World, error) {
	w := &World{}
	var err error
	if w.Rooms, err = reg.Register(entity.TypeDefinition{
		Name:  "room",
		Code:  "R",
		Store: opts.Rooms,
		Key: entity.KeySpec{
			Field: "coords",
			Get:   roomCoords,
			Set:   setRoomCoords,
		},
		Blob:      roomSpec(w),
		CacheSize: opts.CacheSize,
	}); err != nil {
		return nil, err
	}
	if w.Characters, err = reg.Register(entity.TypeDefinition{
		Name:      "character",
		Code:      "C",
		Store:     opts.Characters,
		Key:       entity.KeySpec{Field: "name"},
		Blob:      characterSpec(),
		CacheSize: opts.CacheSize,
	}); err != nil {
		return nil, err
	}
	return w, nil
}

// CoordKey formats a coordinate triple as a room key.
func CoordKey(x, y, z int) string {
	return fmt.Sprintf("%d,%d,%d", x, y, z)
}

// ParseCoordKey is the inverse of CoordKey.
func ParseCoordKey(key string) (x, y, z int, err error) {
	parts := strings.Split(key, ",")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("bad coordinate key %q", key)
	}
	n := [3]int{}
	for i, p := range parts {
		if n[i], err = strconv.Atoi(strings.TrimSpace(p)); err != nil {
			return 0, 0, 0, fmt.Errorf("bad coordinate key %q: %w", key, err)
		}
	}
	return n[0], n[1], n[2], nil
}

func roomCoords(e *entity.Entity) any {
	x, xok := asInt(e.Get("x"))
	y, yok := asInt(e.Get("y"))
	z, zok := asInt(e.Get("z"))
	if !xok || !yok || !zok {
		return entity.Unset
	}
	return CoordKey(x, y, z)
}

func setRoomCoords(e *entity.Entity, key any) error {
	s, ok := key.(string)
	if !ok {
		return fmt.Errorf("room key must be a string, got %T", key)
	}
	x, y, z, err := ParseCoordKey(s)
	if err != nil {
		return err
	}
	if err := e.Set("x", x); err != nil {
		return err
	}
	if err := e.Set("y", y); err != nil {
		return err
	}
	return e.Set("z", z)
}

func roomSpec(w *World) *entity.BlobSpec {
	s := entity.NewBlobSpec()
	s.MustRegisterAttr("name", &entity.Attribute{
		Default: "An Unnamed Room",
		Validate: func(v any, _ *entity.Entity) (any, error) {
			name, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("room name must be a string")
			}
			name = strings.TrimSpace(name)
			if len(name) < 1 || len(name) > 60 {
				return nil, fmt.Errorf("room name must be 1 to 60 characters")
			}
			if !roomNameRe.MatchString(name) {
				return nil, fmt.Errorf("room name may only contain letters and spaces")
			}
			return name, nil
		},
		Finalize: func(v any, _ *entity.Entity) any {
			return titleCaser.String(v.(string))
		},
	})
	s.MustRegisterAttr("description", &entity.Attribute{
		Default: "A nondescript room.",
		Validate: func(v any, _ *entity.Entity) (any, error) {
			d, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("room description must be a string")
			}
			return d, nil
		},
	})
	s.MustRegisterAttr("x", coordAttr(w, 0))
	s.MustRegisterAttr("y", coordAttr(w, 1))
	s.MustRegisterAttr("z", coordAttr(w, 2))
	return s
}

// coordAttr builds one coordinate axis. The axes have no default: a fresh
// room is keyless until it is placed, so it can never shadow (or retire) the
// record of whatever room sits at any particular coordinates. Writing an
// axis must not land the room on coordinates another room already occupies,
// live or stored; the check waits until the other two axes have values,
// since no key exists before then.
func coordAttr(w *World, axis int) *entity.Attribute {
	return &entity.Attribute{
		Validate: func(v any, e *entity.Entity) (any, error) {
			n, ok := asInt(v)
			if !ok {
				return nil, fmt.Errorf("coordinate must be an integer")
			}
			coords := [3]int{}
			complete := true
			for i, name := range [3]string{"x", "y", "z"} {
				if i == axis {
					continue
				}
				c, ok := asInt(e.Get(name))
				if !ok {
					complete = false
					break
				}
				coords[i] = c
			}
			coords[axis] = n
			if complete && w.Rooms != nil {
				key := CoordKey(coords[0], coords[1], coords[2])
				other, err := w.Rooms.Load(key, true)
				if err == nil && other != e {
					return nil, fmt.Errorf("a room already exists at %s", key)
				}
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return nil, err
				}
			}
			return n, nil
		},
	}
}

func characterSpec() *entity.BlobSpec {
	s := entity.NewBlobSpec()
	s.MustRegisterAttr("name", &entity.Attribute{
		Validate: func(v any, _ *entity.Entity) (any, error) {
			name, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("character name must be a string")
			}
			if len(name) < 2 || len(name) > 16 {
				return nil, fmt.Errorf("character name must be 2 to 16 characters")
			}
			if !charNameRe.MatchString(name) {
				return nil, fmt.Errorf("character name may only contain letters")
			}
			return name, nil
		},
		// Names are case-insensitive; the canonical (and keyed) form is
		// lowercase. Presentation belongs to the title attribute.
		Finalize: func(v any, _ *entity.Entity) any {
			return strings.ToLower(v.(string))
		},
	})
	s.MustRegisterAttr("title", &entity.Attribute{
		Default: "the newcomer",
		Validate: func(v any, _ *entity.Entity) (any, error) {
			t, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("character title must be a string")
			}
			return strings.TrimSpace(t), nil
		},
	})
	s.MustRegisterAttr("level", &entity.Attribute{
		Default: 1,
		Validate: func(v any, _ *entity.Entity) (any, error) {
			n, ok := asInt(v)
			if !ok || n < 1 {
				return nil, fmt.Errorf("character level must be a positive integer")
			}
			return n, nil
		},
	})
	return s
}

// EnsureOrigin loads the room at the origin coordinates, creating and saving
// it on a fresh world.
func (w *World) EnsureOrigin() (*entity.Entity, error) {
	room, err := w.Rooms.Load(OriginKey, true)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	room, err = w.Rooms.New(nil)
	if err != nil {
		return nil, err
	}
	if err := room.SetKey(OriginKey); err != nil {
		return nil, err
	}
	if err := room.Set("name", "The Origin"); err != nil {
		return nil, err
	}
	if err := room.Set("description", "The fixed point the rest of the world is measured from."); err != nil {
		return nil, err
	}
	room.SetActive(true)
	if w.Rooms.Store() == nil {
		return room, nil
	}
	if err := room.Save(); err != nil {
		return nil, err
	}
	return room, nil
}

// asInt normalizes the integer forms a value takes across live writes and
// JSON store round trips.
func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return int(t), true
	default:
		return 0, false
	}
}
