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

package main

import (
	"fmt"

	"github.com/launix-de/octolog/pickle"
	"github.com/launix-de/octolog/row"
)

// decodeInner renders the informative inner framing for kind, per §6.
// These layouts are never consulted by the storage core; a decode
// failure here just means "print nothing", not a log-integrity error.
func decodeInner(kind row.Kind, payload []byte) (string, bool) {
	switch kind {
	case row.KindRunCRC:
		return decodeRunCRC(payload)
	case row.KindSnapInitial:
		return decodeSnapInitial(payload)
	case row.KindRaftAppend, row.KindRaftCommit:
		return decodeRaftAppendCommit(payload)
	case row.KindRaftVote:
		return decodeRaftVote(payload)
	case row.KindShardCreate, row.KindShardAlter:
		return decodeShardCreateAlter(payload)
	default:
		return "", false
	}
}

// run_crc payload: optional i64 scn (if payload is 16 bytes) then u32
// log crc, u32 ignored.
func decodeRunCRC(payload []byte) (string, bool) {
	r := pickle.NewReader(payload)
	var scn int64
	haveSCN := len(payload) == 16
	if haveSCN {
		v, err := r.I64()
		if err != nil {
			return "", false
		}
		scn = v
	}
	crc, err := r.U32()
	if err != nil {
		return "", false
	}
	if _, err := r.U32(); err != nil {
		return "", false
	}
	if haveSCN {
		return fmt.Sprintf("run_crc scn=%d crc=%#x", scn, crc), true
	}
	return fmt.Sprintf("run_crc crc=%#x", crc), true
}

// snap_initial: either (u32 count, u32 crc_log, u32 crc_mod) or, when
// the row's scn == -1, (u8 ver, u32 count, u32 flags). The cat tool has
// no access to the row's scn from the payload alone, so it disambiguates
// by length: the first form is exactly 12 bytes, the second 9.
func decodeSnapInitial(payload []byte) (string, bool) {
	r := pickle.NewReader(payload)
	switch len(payload) {
	case 12:
		count, err1 := r.U32()
		crcLog, err2 := r.U32()
		crcMod, err3 := r.U32()
		if err1 != nil || err2 != nil || err3 != nil {
			return "", false
		}
		return fmt.Sprintf("snap_initial count=%d crc_log=%#x crc_mod=%#x", count, crcLog, crcMod), true
	case 9:
		ver, err1 := r.U8()
		count, err2 := r.U32()
		flags, err3 := r.U32()
		if err1 != nil || err2 != nil || err3 != nil {
			return "", false
		}
		return fmt.Sprintf("snap_initial ver=%d count=%d flags=%#x", ver, count, flags), true
	default:
		return "", false
	}
}

// raft_append/raft_commit: u16 flags, u64 term, u16 inner_tag, then
// inner payload by inner_tag (the inner payload is left unparsed: its
// shape is defined by the caller's own protocol, not this spec).
func decodeRaftAppendCommit(payload []byte) (string, bool) {
	r := pickle.NewReader(payload)
	flags, err1 := r.U16()
	term, err2 := r.U64()
	innerTag, err3 := r.U16()
	if err1 != nil || err2 != nil || err3 != nil {
		return "", false
	}
	return fmt.Sprintf("raft flags=%#x term=%d inner_tag=%d inner_len=%d", flags, term, innerTag, r.Len()), true
}

// raft_vote: u16 flags, u64 term, u8 peer_id.
func decodeRaftVote(payload []byte) (string, bool) {
	r := pickle.NewReader(payload)
	flags, err1 := r.U16()
	term, err2 := r.U64()
	peerID, err3 := r.U8()
	if err1 != nil || err2 != nil || err3 != nil {
		return "", false
	}
	return fmt.Sprintf("raft_vote flags=%#x term=%d peer_id=%d", flags, term, peerID), true
}

// shard_create/shard_alter: u8 ver (must be 1), u8 shard_type ∈
// {0 POR, 1 RAFT, 2 PART}, u32 est_row_count, 16-byte mod_name,
// 16-byte master, 4×16-byte replicas, u16 aux_len, aux_len bytes.
func decodeShardCreateAlter(payload []byte) (string, bool) {
	r := pickle.NewReader(payload)
	ver, err := r.U8()
	if err != nil || ver != 1 {
		return "", false
	}
	shardType, err := r.U8()
	if err != nil {
		return "", false
	}
	estRowCount, err := r.U32()
	if err != nil {
		return "", false
	}
	modName, err := r.Bytes(16)
	if err != nil {
		return "", false
	}
	master, err := r.Bytes(16)
	if err != nil {
		return "", false
	}
	for i := 0; i < 4; i++ {
		if _, err := r.Bytes(16); err != nil {
			return "", false
		}
	}
	auxLen, err := r.U16()
	if err != nil {
		return "", false
	}
	if _, err := r.Bytes(int(auxLen)); err != nil {
		return "", false
	}

	typeName := [...]string{"POR", "RAFT", "PART"}
	typeStr := fmt.Sprintf("%d", shardType)
	if int(shardType) < len(typeName) {
		typeStr = typeName[shardType]
	}
	return fmt.Sprintf("shard ver=%d type=%s est_rows=%d mod=%x master=%x aux_len=%d",
		ver, typeStr, estRowCount, modName, master, auxLen), true
}
