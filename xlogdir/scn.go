/*
Copyright (C) 2026  MemCP Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package xlogdir

import (
	"strconv"

	"github.com/google/btree"
)

func scnHeaderKey(shardID uint16) string {
	return "SCN-" + strconv.FormatUint(uint64(shardID), 10)
}

func newSCNTree() *btree.BTreeG[scnEntry] {
	return btree.NewG(32, func(a, b scnEntry) bool { return a.SCN < b.SCN })
}

// ScanDirSCN (re)builds the secondary SCN index for one shard by
// reading every indexed file's header block and looking for that
// shard's "SCN-<id>: <value>" header line. Files that don't carry the
// header (older files, or a shard created after they were written) are
// simply absent from the index, except that the edge policy below
// always leaves at least one entry behind.
func (d *Dir) ScanDirSCN(shardID uint16) error {
	items := d.lsnIndex.GetAll()
	if len(items) == 0 {
		if err := d.ScanDir(); err != nil {
			return err
		}
		items = d.lsnIndex.GetAll()
	}
	if len(items) == 0 {
		return nil
	}

	key := scnHeaderKey(shardID)
	tree := newSCNTree()
	matched := false
	for _, it := range items {
		e := (*it).entry
		hb, err := ReadHeaderBlockFile(e.Path)
		if err != nil {
			d.log.Warningf("xlogdir: skipping unreadable header %s: %v", e.Path, err)
			continue
		}
		raw, ok := hb.Headers[key]
		if !ok {
			continue
		}
		scn, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			d.log.Warningf("xlogdir: malformed %s in %s: %q", key, e.Path, raw)
			continue
		}
		tree.ReplaceOrInsert(scnEntry{SCN: scn, Entry: e})
		matched = true
	}

	d.scnMu.Lock()
	defer d.scnMu.Unlock()
	if matched {
		d.scnIndex[shardID] = tree
		return nil
	}
	// Edge policy: no file carried this shard's header at all. Index
	// just the last (greatest-LSN) file so FindWithSCN still has
	// something to fall back to instead of reporting "not found".
	fallback := newSCNTree()
	fallback.ReplaceOrInsert(scnEntry{SCN: 0, Entry: (*items[len(items)-1]).entry})
	d.scnIndex[shardID] = fallback
	return nil
}

// FindWithSCN returns the entry in shardID's index whose SCN is the
// greatest one not exceeding scn, falling back to the entry with the
// greatest SCN overall when the query is below everything indexed —
// the same out-of-range policy as FindWithLSN.
func (d *Dir) FindWithSCN(shardID uint16, scn int64) (Entry, bool) {
	d.scnMu.Lock()
	tree := d.scnIndex[shardID]
	d.scnMu.Unlock()
	if tree == nil || tree.Len() == 0 {
		return Entry{}, false
	}

	var found scnEntry
	have := false
	tree.DescendLessOrEqual(scnEntry{SCN: scn}, func(item scnEntry) bool {
		found = item
		have = true
		return false
	})
	if have {
		return found.Entry, true
	}
	if max, ok := tree.Max(); ok {
		return max.Entry, true
	}
	return Entry{}, false
}
