// Package rdb reads RetroArch's binary game databases (.rdb files), used to
// identify content by checksum. A database is a 16-byte header followed by
// MessagePack maps, one per game, terminated by a nil marker.
//
// Adapted from github.com/libretro/ludo/rdb
// Original Copyright (c) libretro team
package rdb

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Game is one database entry. Only the fields this runtime cares about are
// decoded; unknown keys are skipped.
type Game struct {
	Name         string // full No-Intro name, e.g. "Sonic the Hedgehog (USA, Europe)"
	Description  string
	Genre        string
	Developer    string
	Publisher    string
	Franchise    string
	ESRBRating   string
	ROMName      string
	Serial       string
	ReleaseMonth uint
	ReleaseYear  uint
	Size         uint64
	CRC32        uint32
	MD5          string // hex string, the RetroAchievements lookup key
}

// Database holds the parsed entries with checksum indexes for lookup.
type Database struct {
	games    []Game
	byCRC32  map[uint32]int
	byMD5    map[string]int
	bySerial map[string]int
}

const headerSize = 0x10

var magic = []byte("RARCHDB")

// MessagePack markers the libretrodb writer emits.
const (
	mpFixMap   = 0x80
	mpFixArray = 0x90
	mpFixStr   = 0xa0
	mpNil      = 0xc0
	mpBin8     = 0xc4
	mpBin16    = 0xc5
	mpBin32    = 0xc6
	mpUint8    = 0xcc
	mpUint16   = 0xcd
	mpUint32   = 0xce
	mpUint64   = 0xcf
	mpStr8     = 0xd9
	mpStr16    = 0xda
	mpStr32    = 0xdb
	mpMap16    = 0xde
	mpMap32    = 0xdf
)

// Open reads and parses the database at path.
func Open(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read database: %w", err)
	}
	if len(data) < headerSize || !bytes.HasPrefix(data, magic) {
		return nil, fmt.Errorf("%s is not a libretro database", filepath.Base(path))
	}
	return Parse(data), nil
}

// Parse decodes database bytes. The parser is tolerant: it stops at the
// first nil marker, at truncation, or at a marker kind the writer never
// emits, keeping every complete entry seen up to that point.
func Parse(data []byte) *Database {
	db := &Database{
		byCRC32:  make(map[uint32]int),
		byMD5:    make(map[string]int),
		bySerial: make(map[string]int),
	}
	if len(data) <= headerSize {
		return db
	}

	d := decoder{data: data, pos: headerSize}
	var (
		cur     Game
		key     string
		wantKey bool
	)
	flush := func() {
		if cur.Name != "" || cur.CRC32 != 0 {
			db.add(cur)
		}
		cur = Game{}
	}

	for d.pos < len(d.data) {
		marker := d.data[d.pos]

		switch {
		case marker == mpNil:
			flush()
			return db

		case marker >= mpFixMap && marker < mpFixArray:
			// Each game entry is a map.
			flush()
			d.pos++
			wantKey = true
			continue

		case marker == mpMap16 || marker == mpMap32:
			flush()
			d.pos++
			countLen := 2
			if marker == mpMap32 {
				countLen = 4
			}
			if _, ok := d.take(countLen); !ok {
				return db
			}
			wantKey = true
			continue
		}

		raw, ok := d.value(marker)
		if !ok {
			break
		}
		if wantKey {
			key = string(raw)
		} else {
			cur.set(key, raw)
		}
		wantKey = !wantKey
	}

	flush()
	return db
}

func (db *Database) add(g Game) {
	i := len(db.games)
	db.games = append(db.games, g)
	if g.CRC32 != 0 {
		db.byCRC32[g.CRC32] = i
	}
	if g.MD5 != "" {
		db.byMD5[g.MD5] = i
	}
	if g.Serial != "" {
		db.bySerial[g.Serial] = i
	}
}

// FindCRC32 looks an entry up by CRC32 checksum.
func (db *Database) FindCRC32(sum uint32) (Game, bool) {
	i, ok := db.byCRC32[sum]
	if !ok {
		return Game{}, false
	}
	return db.games[i], true
}

// FindMD5 looks an entry up by lowercase hex MD5.
func (db *Database) FindMD5(sum string) (Game, bool) {
	i, ok := db.byMD5[sum]
	if !ok {
		return Game{}, false
	}
	return db.games[i], true
}

// FindSerial looks an entry up by its media serial.
func (db *Database) FindSerial(serial string) (Game, bool) {
	i, ok := db.bySerial[serial]
	if !ok {
		return Game{}, false
	}
	return db.games[i], true
}

// Len returns the number of entries.
func (db *Database) Len() int { return len(db.games) }

// Games returns a copy of every entry in file order.
func (db *Database) Games() []Game {
	return append([]Game(nil), db.games...)
}

// DisplayName strips the region and revision groups from a No-Intro name:
// "Zillion (Japan) (Rev 2)" becomes "Zillion".
func DisplayName(name string) string {
	if i := strings.Index(name, " ("); i > 0 {
		return strings.TrimSpace(name[:i])
	}
	return name
}

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) take(n int) ([]byte, bool) {
	if n < 0 || d.pos+n > len(d.data) {
		d.pos = len(d.data)
		return nil, false
	}
	v := d.data[d.pos : d.pos+n]
	d.pos += n
	return v, true
}

// value decodes one scalar at the cursor. Strings and binaries come back as
// their bytes; unsigned ints come back big-endian, sized by their marker.
func (d *decoder) value(marker byte) ([]byte, bool) {
	switch {
	case marker < mpFixMap: // positive fixint
		d.pos++
		return []byte{marker}, true
	case marker >= mpFixStr && marker < mpNil:
		d.pos++
		return d.take(int(marker - mpFixStr))
	}

	switch marker {
	case mpStr8, mpStr16, mpStr32:
		d.pos++
		n, ok := d.take(1 << (marker - mpStr8))
		if !ok {
			return nil, false
		}
		return d.take(int(beUint(n)))

	case mpBin8, mpBin16, mpBin32:
		d.pos++
		n, ok := d.take(1 << (marker - mpBin8))
		if !ok {
			return nil, false
		}
		return d.take(int(beUint(n)))

	case mpUint8, mpUint16, mpUint32, mpUint64:
		d.pos++
		return d.take(1 << (marker - mpUint8))
	}

	return nil, false
}

func beUint(p []byte) uint64 {
	var v uint64
	for _, b := range p {
		v = v<<8 | uint64(b)
	}
	return v
}

func (g *Game) set(key string, raw []byte) {
	switch key {
	case "name":
		g.Name = string(raw)
	case "description":
		g.Description = string(raw)
	case "genre":
		g.Genre = string(raw)
	case "developer":
		g.Developer = string(raw)
	case "publisher":
		g.Publisher = string(raw)
	case "franchise":
		g.Franchise = string(raw)
	case "esrb_rating":
		g.ESRBRating = string(raw)
	case "rom_name":
		g.ROMName = string(raw)
	case "serial":
		g.Serial = string(raw)
	case "size":
		g.Size = beUint(raw)
	case "releasemonth":
		g.ReleaseMonth = uint(beUint(raw))
	case "releaseyear":
		g.ReleaseYear = uint(beUint(raw))
	case "crc":
		g.CRC32 = uint32(beUint(raw))
	case "md5":
		g.MD5 = hex.EncodeToString(raw)
	}
}
